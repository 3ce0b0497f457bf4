package assessment

import (
	"github.com/RyanBlaney/sonido-grader/assessment/config"
)

// NoteAssessment is the verdict for one reference note
type NoteAssessment struct {
	NoteIndex         int     `json:"note_index"`
	ExpectedNote      string  `json:"expected_note"`
	ExpectedFrequency float64 `json:"expected_frequency"`
	DetectedFrequency float64 `json:"detected_frequency"`
	DetectedNote      string  `json:"detected_note"`
	IsAccurate        bool    `json:"is_accurate"`
	// Detected minus expected; 0.0 when nothing was detected
	FrequencyDifference float64 `json:"frequency_difference"`
	Confidence          float64 `json:"confidence"` // 0-1, linear inside the tolerance
}

// ReferenceMelody echoes the melody a performance was graded against
type ReferenceMelody struct {
	Notes         []string          `json:"notes"`
	FrequenciesHz []float64         `json:"frequencies_hz"`
	VoiceRange    config.VoiceRange `json:"voice_range"`
}

// AssessmentResult is the complete grading of one recording
type AssessmentResult struct {
	Score             int              `json:"score"` // floor(OverallPercentage)
	OverallPercentage float64          `json:"overall_percentage"`
	NoteResults       []NoteAssessment `json:"note_by_note_results"`
	DetectedPitchesHz []float64        `json:"detected_pitches_hz"`
	ReferenceMelody   ReferenceMelody  `json:"reference_melody"`

	// Analysis details, not part of the stored report
	Method        string `json:"-"` // estimator that produced the contour
	ContourLength int    `json:"-"`
}

// NoPitchDetected reports whether extraction found no pitch at all
func (r *AssessmentResult) NoPitchDetected() bool {
	return r.ContourLength == 0
}

// AccurateCount returns how many notes were sung within tolerance
func (r *AssessmentResult) AccurateCount() int {
	count := 0
	for _, n := range r.NoteResults {
		if n.IsAccurate {
			count++
		}
	}
	return count
}
