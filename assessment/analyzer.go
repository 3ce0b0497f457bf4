// Package assessment grades a sung recording against a reference melody:
// it extracts a pitch contour, reduces it to one frequency per expected note
// and scores each note against a tolerance.
package assessment

import (
	"errors"
	"fmt"

	"github.com/RyanBlaney/sonido-grader/assessment/config"
	"github.com/RyanBlaney/sonido-grader/logging"
)

var (
	// ErrInvalidSampleRate is returned when a waveform's sample rate is not positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")

	// ErrInvalidNoteCount is returned for a negative expected note count
	ErrInvalidNoteCount = errors.New("expected note count must not be negative")
)

// Waveform is decoded mono audio
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Analyzer is the complete grading pipeline. It holds only read-only state and
// is safe for concurrent use.
type Analyzer struct {
	profiles      *config.ProfileTable
	extractor     *Extractor
	scorer        *Scorer
	expectedNotes int
	logger        logging.Logger
}

// Option customises an Analyzer
type Option func(*Analyzer)

// WithExtractor replaces the default fallback chain
func WithExtractor(extractor *Extractor) Option {
	return func(a *Analyzer) { a.extractor = extractor }
}

// WithLogger sets the analyzer's logger
func WithLogger(logger logging.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

// NewAnalyzer validates cfg and builds the pipeline. A nil table or config
// uses the built-in defaults.
func NewAnalyzer(profiles *config.ProfileTable, cfg *config.AssessmentConfig, opts ...Option) (*Analyzer, error) {
	if profiles == nil {
		profiles = config.DefaultProfileTable()
	}
	if cfg == nil {
		cfg = config.DefaultAssessmentConfig()
	}

	if cfg.ExpectedNotes < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNoteCount, cfg.ExpectedNotes)
	}

	scorer, err := NewScorer(cfg.ToleranceHz)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Analyzer{
		profiles:      profiles,
		scorer:        scorer,
		expectedNotes: cfg.ExpectedNotes,
		logger: logging.WithFields(logging.Fields{
			"component": "assessment_analyzer",
		}),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		a.logger = &logging.NoOpLogger{}
	}
	if a.extractor == nil {
		a.extractor = NewDefaultExtractor(cfg.Extraction)
		a.extractor.SetLogger(a.logger.WithFields(logging.Fields{"stage": "extract"}))
	}

	return a, nil
}

// Profiles returns the analyzer's profile table
func (a *Analyzer) Profiles() *config.ProfileTable {
	return a.profiles
}

// Tolerance returns the accuracy tolerance in Hz
func (a *Analyzer) Tolerance() float64 {
	return a.scorer.Tolerance()
}

// Analyze grades a waveform against the melody of voiceRange. Unknown or empty
// voice ranges use the table's default profile. The only error is an invalid
// sample rate; an empty contour yields a 0% result with every note undetected.
func (a *Analyzer) Analyze(w Waveform, voiceRange config.VoiceRange) (*AssessmentResult, error) {
	if w.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleRate, w.SampleRate)
	}

	profile := a.profiles.Lookup(voiceRange)

	expected := a.expectedNotes
	if expected == 0 {
		expected = len(profile.Notes)
	}

	logger := a.logger.WithFields(logging.Fields{
		"function":    "Analyze",
		"voice_range": profile.ID,
		"sample_rate": w.SampleRate,
		"samples":     len(w.Samples),
	})

	contour, method := a.extractor.Extract(w.Samples, w.SampleRate, profile)
	detected := Segment(contour, profile, expected)
	result := a.scorer.Score(detected, profile)
	result.Method = method
	result.ContourLength = len(contour)

	logger.Debug("Assessment complete", logging.Fields{
		"method":         method,
		"contour_points": len(contour),
		"score":          result.Score,
	})

	return result, nil
}
