package assessment

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/RyanBlaney/sonido-grader/algorithms/tonal"
	"github.com/RyanBlaney/sonido-grader/assessment/config"
	"github.com/RyanBlaney/sonido-grader/logging"
)

type stubEstimator struct {
	name    string
	contour []float64
	err     error
	panics  bool
	calls   int
}

func (s *stubEstimator) Name() string { return s.name }

func (s *stubEstimator) Estimate(samples []float64, sampleRate int, band tonal.Band) ([]float64, error) {
	s.calls++
	if s.panics {
		panic("index out of range")
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]float64(nil), s.contour...), nil
}

func points(n int, f float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func newTestExtractor(primary, secondary, last *stubEstimator) *Extractor {
	e := NewExtractor(
		Stage{Estimator: primary, MinPoints: 10},
		Stage{Estimator: secondary},
		Stage{Estimator: last},
	)
	e.SetLogger(&logging.NoOpLogger{})
	return e
}

func TestExtractorFallbackChain(t *testing.T) {
	tests := []struct {
		name       string
		primary    *stubEstimator
		secondary  *stubEstimator
		last       *stubEstimator
		wantMethod string
		wantLen    int
		wantCalls  [3]int
	}{
		{
			name:       "dense primary accepted",
			primary:    &stubEstimator{name: "peak", contour: points(12, 300)},
			secondary:  &stubEstimator{name: "yin", contour: points(40, 310)},
			last:       &stubEstimator{name: "acf", contour: points(5, 320)},
			wantMethod: "peak",
			wantLen:    12,
			wantCalls:  [3]int{1, 0, 0},
		},
		{
			name:       "sparse primary falls to second stage",
			primary:    &stubEstimator{name: "peak", contour: points(9, 300)},
			secondary:  &stubEstimator{name: "yin", contour: points(3, 310)},
			last:       &stubEstimator{name: "acf", contour: points(5, 320)},
			wantMethod: "yin",
			wantLen:    3,
			wantCalls:  [3]int{1, 1, 0},
		},
		{
			name:       "empty second stage is still accepted",
			primary:    &stubEstimator{name: "peak"},
			secondary:  &stubEstimator{name: "yin"},
			last:       &stubEstimator{name: "acf", contour: points(5, 320)},
			wantMethod: "yin",
			wantLen:    0,
			wantCalls:  [3]int{1, 1, 0},
		},
		{
			name:       "primary error skips to last stage",
			primary:    &stubEstimator{name: "peak", err: errors.New("stft failed")},
			secondary:  &stubEstimator{name: "yin", contour: points(40, 310)},
			last:       &stubEstimator{name: "acf", contour: points(5, 320)},
			wantMethod: "acf",
			wantLen:    5,
			wantCalls:  [3]int{1, 0, 1},
		},
		{
			name:       "second stage error falls to last stage",
			primary:    &stubEstimator{name: "peak", contour: points(2, 300)},
			secondary:  &stubEstimator{name: "yin", err: errors.New("frame too short")},
			last:       &stubEstimator{name: "acf", contour: points(5, 320)},
			wantMethod: "acf",
			wantLen:    5,
			wantCalls:  [3]int{1, 1, 1},
		},
		{
			name:       "panic is absorbed",
			primary:    &stubEstimator{name: "peak", panics: true},
			secondary:  &stubEstimator{name: "yin", contour: points(40, 310)},
			last:       &stubEstimator{name: "acf", contour: points(7, 320)},
			wantMethod: "acf",
			wantLen:    7,
			wantCalls:  [3]int{1, 0, 1},
		},
		{
			name:       "total failure yields empty contour",
			primary:    &stubEstimator{name: "peak", err: errors.New("a")},
			secondary:  &stubEstimator{name: "yin"},
			last:       &stubEstimator{name: "acf", panics: true},
			wantMethod: "",
			wantLen:    0,
			wantCalls:  [3]int{1, 0, 1},
		},
	}

	profile := config.SopranoProfile()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor(tt.primary, tt.secondary, tt.last)
			contour, method := e.Extract([]float64{0.1, 0.2}, 16000, profile)

			if method != tt.wantMethod {
				t.Errorf("method = %q, want %q", method, tt.wantMethod)
			}
			if contour == nil {
				t.Fatal("contour must never be nil")
			}
			if len(contour) != tt.wantLen {
				t.Errorf("contour length = %d, want %d", len(contour), tt.wantLen)
			}
			calls := [3]int{tt.primary.calls, tt.secondary.calls, tt.last.calls}
			if calls != tt.wantCalls {
				t.Errorf("calls = %v, want %v", calls, tt.wantCalls)
			}
		})
	}
}

func TestExtractorFiltersInvalidValues(t *testing.T) {
	raw := []float64{300, 0, -12, math.Inf(1), 310}
	raw = append(raw, points(10, 305)...)
	e := newTestExtractor(
		&stubEstimator{name: "peak", contour: raw},
		&stubEstimator{name: "yin"},
		&stubEstimator{name: "acf"},
	)

	contour, method := e.Extract([]float64{1}, 16000, config.SopranoProfile())
	if method != "peak" {
		t.Fatalf("method = %q, want peak", method)
	}
	want := append([]float64{300, 310}, points(10, 305)...)
	if !reflect.DeepEqual(contour, want) {
		t.Errorf("contour = %v, want %v", contour, want)
	}
}

func TestDefaultExtractorStages(t *testing.T) {
	e := NewDefaultExtractor(config.DefaultExtractionConfig())
	want := []string{
		tonal.NewPeakTracker(tonal.DefaultPeakTrackerParams()).Name(),
		tonal.NewYIN(tonal.DefaultYINParams()).Name(),
		tonal.NewAutocorrelation(tonal.DefaultAutocorrelationParams()).Name(),
	}
	if got := e.Stages(); !reflect.DeepEqual(got, want) {
		t.Errorf("Stages() = %v, want %v", got, want)
	}
}

func TestDefaultExtractorOnSilence(t *testing.T) {
	e := NewDefaultExtractor(config.DefaultExtractionConfig())
	e.SetLogger(nil)

	contour, _ := e.Extract(make([]float64, 16000), 16000, config.SopranoProfile())
	if len(contour) != 0 {
		t.Errorf("silence produced %d pitch points", len(contour))
	}
}
