package tonal

import (
	"errors"
	"fmt"
	"math"
)

// ErrEmptySignal is returned by estimators given no samples
var ErrEmptySignal = errors.New("empty signal")

// Band is the inclusive frequency range an estimator searches, in Hz
type Band struct {
	Min float64 `json:"min_freq" yaml:"min_freq"`
	Max float64 `json:"max_freq" yaml:"max_freq"`
}

// Contains reports whether f lies in [Min, Max]
func (b Band) Contains(f float64) bool {
	return f >= b.Min && f <= b.Max
}

// Validate checks 0 < Min < Max
func (b Band) Validate() error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || b.Min <= 0 || b.Min >= b.Max || math.IsInf(b.Max, 0) {
		return fmt.Errorf("invalid frequency band [%v, %v]", b.Min, b.Max)
	}
	return nil
}

// Estimator turns a mono waveform into a time-ordered pitch contour (Hz).
// Implementations return only positive frequencies and must not modify samples.
type Estimator interface {
	// Name identifies the method in logs and results
	Name() string

	// Estimate produces the contour for samples at sampleRate within band
	Estimate(samples []float64, sampleRate int, band Band) ([]float64, error)
}

func validateInput(samples []float64, sampleRate int, band Band) error {
	if len(samples) == 0 {
		return ErrEmptySignal
	}
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	return band.Validate()
}
