package tonal

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-grader/algorithms/common"
	"github.com/RyanBlaney/sonido-grader/algorithms/stats"
)

// AutocorrelationParams configures the time-domain autocorrelation estimator
type AutocorrelationParams struct {
	FrameSeconds float64 `json:"frame_seconds" yaml:"frame_seconds"`
	Overlap      float64 `json:"overlap" yaml:"overlap"` // fraction of the frame shared with the next one
}

// DefaultAutocorrelationParams returns 100 ms frames with 50% overlap
func DefaultAutocorrelationParams() AutocorrelationParams {
	return AutocorrelationParams{
		FrameSeconds: 0.1,
		Overlap:      0.5,
	}
}

// Autocorrelation is the last-resort estimator: per frame it takes the lag of
// maximum autocorrelation inside the band's period range.
type Autocorrelation struct {
	params AutocorrelationParams
}

// NewAutocorrelation creates an autocorrelation estimator
func NewAutocorrelation(params AutocorrelationParams) *Autocorrelation {
	return &Autocorrelation{params: params}
}

func (a *Autocorrelation) Name() string {
	return "autocorrelation"
}

// Estimate keeps only frequencies inside the band. Frames start at multiples
// of the hop while a full frame plus at least one sample remains.
func (a *Autocorrelation) Estimate(samples []float64, sampleRate int, band Band) ([]float64, error) {
	if err := band.Validate(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	frameLength := int(a.params.FrameSeconds * float64(sampleRate))
	hop := int(float64(frameLength) * (1 - a.params.Overlap))
	if frameLength <= 1 || hop <= 0 {
		return nil, fmt.Errorf("invalid autocorrelation framing: frame=%d hop=%d", frameLength, hop)
	}

	contour := make([]float64, 0)
	if len(samples) <= frameLength {
		return contour, nil
	}

	sr := float64(sampleRate)
	minPeriod := int(math.Round(sr / band.Max))
	maxPeriod := int(math.Round(sr / band.Min))
	if maxPeriod >= frameLength {
		return contour, nil
	}

	ac := stats.NewAutoCorrelation(maxPeriod)

	for start := 0; start < len(samples)-frameLength; start += hop {
		frame := samples[start : start+frameLength]
		if common.Energy(frame) == 0 {
			continue
		}

		result, err := ac.Compute(frame)
		if err != nil {
			return nil, fmt.Errorf("frame at %d: %w", start, err)
		}

		lag, _, ok := result.PeakInRange(minPeriod, maxPeriod)
		if !ok || lag <= 0 {
			continue
		}

		if freq := sr / float64(lag); band.Contains(freq) {
			contour = append(contour, freq)
		}
	}

	return contour, nil
}
