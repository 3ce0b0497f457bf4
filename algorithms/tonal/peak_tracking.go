package tonal

import (
	"fmt"

	"github.com/RyanBlaney/sonido-grader/algorithms/common"
	"github.com/RyanBlaney/sonido-grader/algorithms/spectral"
	"github.com/RyanBlaney/sonido-grader/algorithms/windowing"
)

// PeakTrackerParams configures spectral peak tracking
type PeakTrackerParams struct {
	WindowSize int            `json:"window_size" yaml:"window_size"`
	HopSize    int            `json:"hop_size" yaml:"hop_size"`
	Threshold  float64        `json:"threshold" yaml:"threshold"` // fraction of the frame's maximum magnitude
	Window     windowing.Type `json:"window_function" yaml:"window_function"`
}

// DefaultPeakTrackerParams mirrors the usual piptrack settings
func DefaultPeakTrackerParams() PeakTrackerParams {
	return PeakTrackerParams{
		WindowSize: 2048,
		HopSize:    512,
		Threshold:  0.1,
		Window:     windowing.TypeHann,
	}
}

// PeakTracker picks, per STFT frame, the strongest in-band spectral peak and
// reports its parabolically interpolated frequency.
type PeakTracker struct {
	params PeakTrackerParams
	stft   *spectral.STFT
}

// NewPeakTracker creates a spectral peak tracker
func NewPeakTracker(params PeakTrackerParams) *PeakTracker {
	return &PeakTracker{
		params: params,
		stft:   spectral.NewSTFT(),
	}
}

func (pt *PeakTracker) Name() string {
	return "spectral_peak_tracking"
}

// Estimate emits one frequency per frame whose strongest in-band local peak
// rises above Threshold times the frame maximum (taken over all bins).
func (pt *PeakTracker) Estimate(samples []float64, sampleRate int, band Band) ([]float64, error) {
	if err := validateInput(samples, sampleRate, band); err != nil {
		return nil, err
	}

	window, err := windowing.New(pt.params.Window, pt.params.WindowSize, false)
	if err != nil {
		return nil, fmt.Errorf("peak tracking window: %w", err)
	}

	result, err := pt.stft.ComputeCentered(samples, pt.params.WindowSize, pt.params.HopSize, sampleRate, window)
	if err != nil {
		return nil, fmt.Errorf("peak tracking stft: %w", err)
	}

	// local-peak test needs both neighbours
	minBin := max(int(band.Min/result.FreqResolution), 1)
	maxBin := min(int(band.Max/result.FreqResolution)+1, result.FreqBins-2)

	contour := make([]float64, 0, result.TimeFrames)
	for _, row := range result.Magnitude {
		frameMax := common.Max(row)
		if frameMax <= 0 {
			continue
		}
		floor := pt.params.Threshold * frameMax

		best := -1
		for k := minBin; k <= maxBin; k++ {
			freq := result.BinFrequency(float64(k))
			if !band.Contains(freq) {
				continue
			}
			m := row[k]
			if m <= floor || m <= row[k-1] || m < row[k+1] {
				continue
			}
			if best < 0 || m > row[best] {
				best = k
			}
		}
		if best < 0 {
			continue
		}

		offset := common.ParabolicOffset(row[best-1], row[best], row[best+1])
		if freq := result.BinFrequency(float64(best) + offset); freq > 0 {
			contour = append(contour, freq)
		}
	}

	return contour, nil
}
