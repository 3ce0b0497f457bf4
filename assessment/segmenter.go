package assessment

import (
	"github.com/RyanBlaney/sonido-grader/algorithms/common"
	"github.com/RyanBlaney/sonido-grader/assessment/config"
)

// Segment reduces a pitch contour to exactly expectedNotes frequencies.
//
// Points outside the profile band are dropped first. The remaining points are
// split into expectedNotes contiguous slices of equal length, the last slice
// taking the remainder, and each slice is reduced to its median. With fewer
// points than notes the points are returned in order and zero-padded. 0.0
// marks a note with no detected pitch.
func Segment(contour []float64, profile *config.VoiceRangeProfile, expectedNotes int) []float64 {
	if expectedNotes <= 0 {
		return []float64{}
	}

	notes := make([]float64, expectedNotes)

	band := profile.Band()
	filtered := make([]float64, 0, len(contour))
	for _, f := range contour {
		if band.Contains(f) {
			filtered = append(filtered, f)
		}
	}

	if len(filtered) == 0 {
		return notes
	}

	segmentSize := len(filtered) / expectedNotes
	if segmentSize == 0 {
		copy(notes, filtered)
		return notes
	}

	for i := range expectedNotes {
		start := i * segmentSize
		end := start + segmentSize
		if i == expectedNotes-1 {
			end = len(filtered)
		}
		notes[i] = common.Median(filtered[start:end])
	}

	return notes
}
