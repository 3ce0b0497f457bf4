package assessment

import (
	"math"

	"github.com/RyanBlaney/sonido-grader/assessment/config"
)

// UnknownNote is reported for frequencies that match no reference note
const UnknownNote = "Unknown"

// NameOf returns the name of the profile note nearest to frequency, or
// UnknownNote when frequency is not positive or the nearest note is more than
// toleranceHz away. Equidistant notes resolve to the one declared first.
func NameOf(frequency float64, profile *config.VoiceRangeProfile, toleranceHz float64) string {
	if !(frequency > 0) || profile == nil {
		return UnknownNote
	}

	closest := -1
	minDiff := math.Inf(1)
	for i, note := range profile.Notes {
		diff := math.Abs(frequency - note.Frequency)
		if diff < minDiff {
			minDiff = diff
			closest = i
		}
	}

	if closest < 0 || minDiff > toleranceHz {
		return UnknownNote
	}
	return profile.Notes[closest].Name
}
