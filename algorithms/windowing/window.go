package windowing

import (
	"fmt"
	"math"
	"strings"
)

// Type names a supported analysis window
type Type string

const (
	TypeHann        Type = "hann"
	TypeHamming     Type = "hamming"
	TypeBlackman    Type = "blackman"
	TypeRectangular Type = "rectangular"
)

// ParseType resolves a config string to a window type
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeHann, TypeHamming, TypeBlackman, TypeRectangular:
		return t, nil
	case "":
		return TypeHann, nil
	default:
		return "", fmt.Errorf("unsupported window function %q", s)
	}
}

// Window holds precomputed coefficients for one window type and size.
// Periodic windows (symmetric=false) are the usual choice for STFT framing.
type Window struct {
	windowType   Type
	size         int
	symmetric    bool
	coefficients []float64
}

// New creates a window of the given type and size
func New(windowType Type, size int, symmetric bool) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", size)
	}

	w := &Window{
		windowType: windowType,
		size:       size,
		symmetric:  symmetric,
	}
	if err := w.generate(); err != nil {
		return nil, err
	}
	return w, nil
}

// NewHann is shorthand for a periodic Hann window
func NewHann(size int) *Window {
	w, _ := New(TypeHann, size, false)
	return w
}

func (w *Window) generate() error {
	w.coefficients = make([]float64, w.size)

	denominator := float64(w.size)
	if w.symmetric && w.size > 1 {
		denominator = float64(w.size - 1)
	}

	for i := range w.size {
		arg := 2 * math.Pi * float64(i) / denominator
		switch w.windowType {
		case TypeHann:
			w.coefficients[i] = 0.5 * (1.0 - math.Cos(arg))
		case TypeHamming:
			w.coefficients[i] = 0.54 - 0.46*math.Cos(arg)
		case TypeBlackman:
			w.coefficients[i] = 0.42 - 0.5*math.Cos(arg) + 0.08*math.Cos(2*arg)
		case TypeRectangular:
			w.coefficients[i] = 1.0
		default:
			return fmt.Errorf("unsupported window function %q", w.windowType)
		}
	}

	return nil
}

// Apply applies the window to a signal (creates new array)
func (w *Window) Apply(signal []float64) []float64 {
	if len(signal) != w.size {
		return nil
	}

	windowed := make([]float64, w.size)
	for i := range w.size {
		windowed[i] = signal[i] * w.coefficients[i]
	}

	return windowed
}

// ApplyInPlace applies the window to a signal in-place
func (w *Window) ApplyInPlace(signal []float64) error {
	if len(signal) != w.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), w.size)
	}

	for i := range w.size {
		signal[i] *= w.coefficients[i]
	}

	return nil
}

// Coefficients returns a copy of the window coefficients
func (w *Window) Coefficients() []float64 {
	coeffs := make([]float64, len(w.coefficients))
	copy(coeffs, w.coefficients)
	return coeffs
}

// Size returns the window size
func (w *Window) Size() int {
	return w.size
}

// Type returns the window type
func (w *Window) Type() Type {
	return w.windowType
}
