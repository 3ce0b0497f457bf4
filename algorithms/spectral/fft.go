package spectral

import (
	"github.com/mjibson/go-dsp/fft"
)

// FFT wraps mjibson/go-dsp so callers work in []float64 / []complex128
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the forward transform of a real signal.
// go-dsp handles non power-of-two sizes via Bluestein.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	return fft.FFTReal(x)
}

// ComputePadded zero-pads x to size n before transforming.
// When n <= len(x) the signal is transformed as-is.
func (f *FFT) ComputePadded(x []float64, n int) []complex128 {
	if n <= len(x) {
		return f.Compute(x)
	}

	padded := make([]float64, n)
	copy(padded, x)
	return fft.FFTReal(padded)
}

// ComputeInverse computes inverse FFT
func (f *FFT) ComputeInverse(x []complex128) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	return fft.IFFT(x)
}

// ComputeInverseReal computes inverse FFT and returns real part only
func (f *FFT) ComputeInverseReal(x []complex128) []float64 {
	if len(x) == 0 {
		return []float64{}
	}

	result := fft.IFFT(x)
	realResult := make([]float64, len(result))

	for i, val := range result {
		realResult[i] = real(val)
	}

	return realResult
}
