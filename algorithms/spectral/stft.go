package spectral

import (
	"fmt"
	"math/cmplx"
)

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	fft *FFT
}

// STFTResult holds the magnitude spectrogram of an STFT analysis
type STFTResult struct {
	Magnitude      [][]float64 `json:"magnitude"`       // Time x Frequency magnitude matrix
	TimeFrames     int         `json:"time_frames"`     // Number of time frames
	FreqBins       int         `json:"freq_bins"`       // Number of frequency bins
	SampleRate     int         `json:"sample_rate"`     // Sample rate
	WindowSize     int         `json:"window_size"`     // FFT window size
	HopSize        int         `json:"hop_size"`        // Hop size between frames
	FreqResolution float64     `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64     `json:"time_resolution"` // Time resolution (seconds/frame)
}

// BinFrequency returns the center frequency of bin k in Hz
func (r *STFTResult) BinFrequency(k float64) float64 {
	return k * r.FreqResolution
}

// Window interface for windowing functions
type Window interface {
	ApplyInPlace(signal []float64) error
}

// NewSTFT creates a new STFT calculator
func NewSTFT() *STFT {
	return &STFT{
		fft: NewFFT(),
	}
}

// ComputeWithWindow computes the STFT frame by frame. Frames are processed
// sequentially so identical input always yields an identical matrix.
func (s *STFT) ComputeWithWindow(signal []float64, windowSize int, hopSize int, sampleRate int, window Window) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}

	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive")
	}

	numFrames := (len(signal)-windowSize)/hopSize + 1
	if len(signal) < windowSize || numFrames <= 0 {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}

	// Positive frequencies only
	freqBins := windowSize/2 + 1

	magnitude := make([][]float64, numFrames)
	frameBuffer := make([]float64, windowSize)

	for frameIdx := range numFrames {
		start := frameIdx * hopSize
		copy(frameBuffer, signal[start:start+windowSize])

		if window != nil {
			if err := window.ApplyInPlace(frameBuffer); err != nil {
				return nil, fmt.Errorf("frame %d: %w", frameIdx, err)
			}
		}

		fftResult := s.fft.Compute(frameBuffer)

		row := make([]float64, freqBins)
		for i := range freqBins {
			row[i] = cmplx.Abs(fftResult[i])
		}
		magnitude[frameIdx] = row
	}

	return &STFTResult{
		Magnitude:      magnitude,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     windowSize,
		HopSize:        hopSize,
		FreqResolution: float64(sampleRate) / float64(windowSize),
		TimeResolution: float64(hopSize) / float64(sampleRate),
	}, nil
}

// ComputeCentered pads windowSize/2 zeros on both sides so that frame t is
// centered on sample t*hopSize. Signals shorter than one window still produce
// at least one frame.
func (s *STFT) ComputeCentered(signal []float64, windowSize int, hopSize int, sampleRate int, window Window) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}

	pad := windowSize / 2
	padded := make([]float64, len(signal)+2*pad)
	copy(padded[pad:], signal)

	if len(padded) < windowSize {
		grown := make([]float64, windowSize)
		copy(grown, padded)
		padded = grown
	}

	return s.ComputeWithWindow(padded, windowSize, hopSize, sampleRate, window)
}
