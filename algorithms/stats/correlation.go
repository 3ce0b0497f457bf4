package stats

import (
	"fmt"
	"math/cmplx"

	"github.com/RyanBlaney/sonido-grader/algorithms/common"
	"github.com/RyanBlaney/sonido-grader/algorithms/spectral"
)

// CorrelationMethod represents different computational approaches
type CorrelationMethod int

const (
	// Direct time-domain calculation
	TimeDomain CorrelationMethod = iota

	// FFT-based frequency domain (faster for long frames)
	FrequencyDomain

	// Pick by signal length against the FFT threshold
	Auto
)

// CorrelationResult holds the one-sided (non-negative lag) autocorrelation
type CorrelationResult struct {
	Correlations []float64         `json:"correlations"` // Correlations[lag], lag = 0..MaxLag
	MaxLag       int               `json:"max_lag"`
	Method       CorrelationMethod `json:"method"`
}

// PeakInRange returns the lag in [minLag, maxLag) with the largest correlation.
// The first lag wins on ties. ok is false when the range is empty or out of bounds.
func (r *CorrelationResult) PeakInRange(minLag, maxLag int) (lag int, value float64, ok bool) {
	if minLag < 0 {
		minLag = 0
	}
	if maxLag > len(r.Correlations) {
		maxLag = len(r.Correlations)
	}
	if minLag >= maxLag {
		return 0, 0, false
	}

	idx := common.ArgMax(r.Correlations[minLag:maxLag])
	return minLag + idx, r.Correlations[minLag+idx], true
}

// AutoCorrelation computes the unnormalized autocorrelation
// r[k] = sum_n x[n] * x[n+k] of a frame, the same quantity as the
// non-negative half of a full linear correlation of the frame with itself.
//
// References:
// - Rabiner, L.R. (1977). "On the use of autocorrelation analysis for pitch detection"
type AutoCorrelation struct {
	maxLag       int
	method       CorrelationMethod
	fftThreshold int
	fft          *spectral.FFT
}

// NewAutoCorrelation creates an autocorrelation calculator. maxLag <= 0 means
// every lag up to len(signal)-1.
func NewAutoCorrelation(maxLag int) *AutoCorrelation {
	return &AutoCorrelation{
		maxLag:       maxLag,
		method:       Auto,
		fftThreshold: 1000,
		fft:          spectral.NewFFT(),
	}
}

// SetMethod forces a computation method
func (ac *AutoCorrelation) SetMethod(method CorrelationMethod) {
	ac.method = method
}

// Compute calculates the autocorrelation of a signal
func (ac *AutoCorrelation) Compute(signal []float64) (*CorrelationResult, error) {
	n := len(signal)
	if n == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	maxLag := n - 1
	if ac.maxLag > 0 && ac.maxLag < maxLag {
		maxLag = ac.maxLag
	}

	method := ac.method
	if method == Auto {
		method = TimeDomain
		if n >= ac.fftThreshold {
			method = FrequencyDomain
		}
	}

	var correlations []float64
	switch method {
	case TimeDomain:
		correlations = ac.timeDomain(signal, maxLag)
	case FrequencyDomain:
		correlations = ac.frequencyDomain(signal, maxLag)
	default:
		return nil, fmt.Errorf("unsupported correlation method: %d", method)
	}

	return &CorrelationResult{
		Correlations: correlations,
		MaxLag:       maxLag,
		Method:       method,
	}, nil
}

func (ac *AutoCorrelation) timeDomain(signal []float64, maxLag int) []float64 {
	n := len(signal)
	out := make([]float64, maxLag+1)
	for lag := 0; lag <= maxLag; lag++ {
		sum := 0.0
		for i := 0; i+lag < n; i++ {
			sum += signal[i] * signal[i+lag]
		}
		out[lag] = sum
	}
	return out
}

// frequencyDomain uses the Wiener-Khinchin relation; padding to >= 2n avoids
// circular wrap-around.
func (ac *AutoCorrelation) frequencyDomain(signal []float64, maxLag int) []float64 {
	size := common.NextPowerOfTwo(2 * len(signal))
	spectrum := ac.fft.ComputePadded(signal, size)

	power := make([]complex128, len(spectrum))
	for i, c := range spectrum {
		power[i] = c * cmplx.Conj(c)
	}

	full := ac.fft.ComputeInverseReal(power)
	out := make([]float64, maxLag+1)
	copy(out, full[:maxLag+1])
	return out
}
