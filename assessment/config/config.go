package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/RyanBlaney/sonido-grader/algorithms/tonal"
)

// ErrInvalidProfile wraps every profile validation failure
var ErrInvalidProfile = errors.New("invalid voice range profile")

// VoiceRange identifies a voice category ("soprano", "alto", ...)
type VoiceRange string

const (
	VoiceSoprano VoiceRange = "soprano"
	VoiceAlto    VoiceRange = "alto"

	DefaultVoiceRange = VoiceSoprano
)

// Note is one reference pitch of a melody
type Note struct {
	Name      string  `json:"name" yaml:"name"`
	Frequency float64 `json:"frequency_hz" yaml:"frequency_hz"`
}

// VoiceRangeProfile binds a reference melody to the frequency band a voice
// category is expected to sing in. Note order is the melody order and is
// never re-sorted.
type VoiceRangeProfile struct {
	ID      VoiceRange `json:"voice_range" yaml:"id"`
	Notes   []Note     `json:"notes" yaml:"notes"`
	MinFreq float64    `json:"min_freq" yaml:"min_freq"`
	MaxFreq float64    `json:"max_freq" yaml:"max_freq"`
}

// NewVoiceRangeProfile copies notes and validates the result
func NewVoiceRangeProfile(id VoiceRange, notes []Note, minFreq, maxFreq float64) (*VoiceRangeProfile, error) {
	p := &VoiceRangeProfile{
		ID:      id,
		Notes:   append([]Note(nil), notes...),
		MinFreq: minFreq,
		MaxFreq: maxFreq,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the profile invariants
func (p *VoiceRangeProfile) Validate() error {
	if strings.TrimSpace(string(p.ID)) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidProfile)
	}
	if len(p.Notes) == 0 {
		return fmt.Errorf("%w: %s has no notes", ErrInvalidProfile, p.ID)
	}
	if err := p.Band().Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidProfile, p.ID, err)
	}
	for i, n := range p.Notes {
		if strings.TrimSpace(n.Name) == "" {
			return fmt.Errorf("%w: %s note %d has no name", ErrInvalidProfile, p.ID, i)
		}
		if !(n.Frequency > 0) || math.IsInf(n.Frequency, 0) {
			return fmt.Errorf("%w: %s note %s has frequency %v", ErrInvalidProfile, p.ID, n.Name, n.Frequency)
		}
	}
	return nil
}

// Band returns the profile's valid vocal band
func (p *VoiceRangeProfile) Band() tonal.Band {
	return tonal.Band{Min: p.MinFreq, Max: p.MaxFreq}
}

// NoteNames returns the melody's note names in order
func (p *VoiceRangeProfile) NoteNames() []string {
	names := make([]string, len(p.Notes))
	for i, n := range p.Notes {
		names[i] = n.Name
	}
	return names
}

// Frequencies returns the melody's frequencies in order
func (p *VoiceRangeProfile) Frequencies() []float64 {
	freqs := make([]float64, len(p.Notes))
	for i, n := range p.Notes {
		freqs[i] = n.Frequency
	}
	return freqs
}

// ProfileTable is an immutable set of profiles with a designated default
type ProfileTable struct {
	profiles  map[VoiceRange]*VoiceRangeProfile
	defaultID VoiceRange
}

// NewProfileTable validates every profile and the default id. Later profiles
// with a duplicate id replace earlier ones.
func NewProfileTable(defaultID VoiceRange, profiles ...*VoiceRangeProfile) (*ProfileTable, error) {
	t := &ProfileTable{
		profiles:  make(map[VoiceRange]*VoiceRangeProfile, len(profiles)),
		defaultID: defaultID,
	}

	for _, p := range profiles {
		if p == nil {
			return nil, fmt.Errorf("%w: nil profile", ErrInvalidProfile)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		cp := *p
		cp.Notes = append([]Note(nil), p.Notes...)
		t.profiles[p.ID] = &cp
	}

	if _, ok := t.profiles[defaultID]; !ok {
		return nil, fmt.Errorf("%w: default voice range %q not in table", ErrInvalidProfile, defaultID)
	}

	return t, nil
}

// Lookup returns the profile for id, or the default profile when id is
// empty or unknown.
func (t *ProfileTable) Lookup(id VoiceRange) *VoiceRangeProfile {
	if p, ok := t.profiles[id]; ok {
		return p
	}
	return t.profiles[t.defaultID]
}

// Get returns the profile for id and whether it exists
func (t *ProfileTable) Get(id VoiceRange) (*VoiceRangeProfile, bool) {
	p, ok := t.profiles[id]
	return p, ok
}

// Default returns the default profile
func (t *ProfileTable) Default() *VoiceRangeProfile {
	return t.profiles[t.defaultID]
}

// DefaultID returns the default voice range id
func (t *ProfileTable) DefaultID() VoiceRange {
	return t.defaultID
}

// IDs returns the known voice range ids, sorted
func (t *ProfileTable) IDs() []VoiceRange {
	ids := make([]VoiceRange, 0, len(t.profiles))
	for id := range t.profiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Profiles returns the profiles ordered by id
func (t *ProfileTable) Profiles() []*VoiceRangeProfile {
	out := make([]*VoiceRangeProfile, 0, len(t.profiles))
	for _, id := range t.IDs() {
		out = append(out, t.profiles[id])
	}
	return out
}

// SopranoProfile is the C4-G4 reference melody
func SopranoProfile() *VoiceRangeProfile {
	return &VoiceRangeProfile{
		ID: VoiceSoprano,
		Notes: []Note{
			{Name: "C4", Frequency: 261.63},
			{Name: "D4", Frequency: 293.66},
			{Name: "E4", Frequency: 329.63},
			{Name: "F4", Frequency: 349.23},
			{Name: "G4", Frequency: 392.00},
		},
		MinFreq: 200,
		MaxFreq: 600,
	}
}

// AltoProfile is the G3-D4 reference melody
func AltoProfile() *VoiceRangeProfile {
	return &VoiceRangeProfile{
		ID: VoiceAlto,
		Notes: []Note{
			{Name: "G3", Frequency: 196.00},
			{Name: "A3", Frequency: 220.00},
			{Name: "B3", Frequency: 246.94},
			{Name: "C4", Frequency: 261.63},
			{Name: "D4", Frequency: 293.66},
		},
		MinFreq: 150,
		MaxFreq: 450,
	}
}

// BuiltinProfiles returns fresh copies of the built-in profiles
func BuiltinProfiles() []*VoiceRangeProfile {
	return []*VoiceRangeProfile{SopranoProfile(), AltoProfile()}
}

// DefaultProfileTable returns the built-in soprano/alto table with soprano as default
func DefaultProfileTable() *ProfileTable {
	t, err := NewProfileTable(DefaultVoiceRange, BuiltinProfiles()...)
	if err != nil {
		// built-in profiles are constants; failing here is a programming error
		panic(err)
	}
	return t
}

// ExtractionConfig holds the parameters of the pitch fallback chain
type ExtractionConfig struct {
	PeakTracking    tonal.PeakTrackerParams     `json:"peak_tracking" yaml:"peak_tracking"`
	YIN             tonal.YINParams             `json:"yin" yaml:"yin"`
	Autocorrelation tonal.AutocorrelationParams `json:"autocorrelation" yaml:"autocorrelation"`

	// Peak tracking results shorter than this fall through to YIN
	MinPrimaryPoints int `json:"min_primary_points" yaml:"min_primary_points"`
}

// AssessmentConfig holds scoring and extraction settings
type AssessmentConfig struct {
	ToleranceHz   float64          `json:"tolerance_hz" yaml:"tolerance_hz"`
	ExpectedNotes int              `json:"expected_notes" yaml:"expected_notes"` // 0 = profile note count
	Extraction    ExtractionConfig `json:"extraction" yaml:"extraction"`
}

// DefaultToleranceHz is the accuracy window used when none is configured
const DefaultToleranceHz = 50.0

// DefaultExtractionConfig returns the standard fallback chain settings
func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		PeakTracking:     tonal.DefaultPeakTrackerParams(),
		YIN:              tonal.DefaultYINParams(),
		Autocorrelation:  tonal.DefaultAutocorrelationParams(),
		MinPrimaryPoints: 10,
	}
}

// DefaultAssessmentConfig returns the settings used by the grading service
func DefaultAssessmentConfig() *AssessmentConfig {
	return &AssessmentConfig{
		ToleranceHz:   DefaultToleranceHz,
		ExpectedNotes: 0,
		Extraction:    DefaultExtractionConfig(),
	}
}

// Validate checks scoring settings
func (c *AssessmentConfig) Validate() error {
	if math.IsNaN(c.ToleranceHz) || c.ToleranceHz < 0 {
		return fmt.Errorf("tolerance_hz must be >= 0, got %v", c.ToleranceHz)
	}
	if c.ExpectedNotes < 0 {
		return fmt.Errorf("expected_notes must be >= 0, got %d", c.ExpectedNotes)
	}
	if c.Extraction.MinPrimaryPoints < 0 {
		return fmt.Errorf("min_primary_points must be >= 0, got %d", c.Extraction.MinPrimaryPoints)
	}
	return nil
}
