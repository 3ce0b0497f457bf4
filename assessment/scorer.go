package assessment

import (
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-grader/algorithms/common"
	"github.com/RyanBlaney/sonido-grader/assessment/config"
)

// ErrInvalidTolerance is returned for negative or NaN tolerances
var ErrInvalidTolerance = errors.New("tolerance must be a non-negative number")

// boundaryEpsilon absorbs float rounding so reference+tolerance sits exactly on the boundary
const boundaryEpsilon = 1e-9

// Scorer grades detected frequencies against a profile's reference melody
type Scorer struct {
	toleranceHz       float64
	namingToleranceHz float64
}

// NewScorer creates a scorer with the given accuracy tolerance (Hz). Detected
// note names use config.DefaultToleranceHz unless changed with SetNamingTolerance.
func NewScorer(toleranceHz float64) (*Scorer, error) {
	if math.IsNaN(toleranceHz) || toleranceHz < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTolerance, toleranceHz)
	}
	return &Scorer{
		toleranceHz:       toleranceHz,
		namingToleranceHz: config.DefaultToleranceHz,
	}, nil
}

// SetNamingTolerance changes the window NameOf uses for detected note names
func (s *Scorer) SetNamingTolerance(toleranceHz float64) error {
	if math.IsNaN(toleranceHz) || toleranceHz < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTolerance, toleranceHz)
	}
	s.namingToleranceHz = toleranceHz
	return nil
}

// Tolerance returns the accuracy tolerance in Hz
func (s *Scorer) Tolerance() float64 {
	return s.toleranceHz
}

// Score compares detected against the profile's notes. detected is truncated
// or zero-padded to the melody length first.
func (s *Scorer) Score(detected []float64, profile *config.VoiceRangeProfile) *AssessmentResult {
	reference := profile.Frequencies()
	n := len(reference)

	aligned := make([]float64, n)
	copy(aligned, detected)

	results := make([]NoteAssessment, n)
	accurate := 0

	for i, ref := range reference {
		det := aligned[i]
		result := NoteAssessment{
			NoteIndex:         i,
			ExpectedNote:      profile.Notes[i].Name,
			ExpectedFrequency: ref,
			DetectedFrequency: det,
			DetectedNote:      NameOf(det, profile, s.namingToleranceHz),
		}

		if det > 0 {
			diff := math.Abs(det - ref)
			if math.Abs(diff-s.toleranceHz) <= boundaryEpsilon {
				diff = s.toleranceHz
			}

			result.IsAccurate = diff <= s.toleranceHz
			result.FrequencyDifference = det - ref
			result.Confidence = s.confidence(diff)
		}

		if result.IsAccurate {
			accurate++
		}
		results[i] = result
	}

	percentage := 0.0
	if n > 0 {
		percentage = float64(100*accurate) / float64(n)
	}

	return &AssessmentResult{
		Score:             int(math.Floor(percentage)),
		OverallPercentage: percentage,
		NoteResults:       results,
		DetectedPitchesHz: aligned,
		ReferenceMelody: ReferenceMelody{
			Notes:         profile.NoteNames(),
			FrequenciesHz: reference,
			VoiceRange:    profile.ID,
		},
	}
}

// confidence falls linearly from 1 at diff 0 to 0 at the tolerance
func (s *Scorer) confidence(diff float64) float64 {
	if s.toleranceHz == 0 {
		if diff == 0 {
			return 1
		}
		return 0
	}
	return common.Clamp(1-diff/s.toleranceHz, 0, 1)
}
