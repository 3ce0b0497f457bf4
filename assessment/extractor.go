package assessment

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-grader/algorithms/tonal"
	"github.com/RyanBlaney/sonido-grader/assessment/config"
	"github.com/RyanBlaney/sonido-grader/logging"
)

// Stage is one step of the extraction fallback chain
type Stage struct {
	Estimator tonal.Estimator

	// A successful result shorter than MinPoints moves on to the next stage.
	// The final stage's result is always accepted.
	MinPoints int
}

// Extractor runs pitch estimators in order until one yields a usable contour.
// An estimator error (or panic) skips straight to the final stage; if the
// final stage fails too, the contour is empty. Extract never fails.
type Extractor struct {
	stages []Stage
	logger logging.Logger
}

// NewExtractor creates an extractor over the given stages
func NewExtractor(stages ...Stage) *Extractor {
	return &Extractor{
		stages: append([]Stage(nil), stages...),
		logger: logging.WithFields(logging.Fields{
			"component": "pitch_extractor",
		}),
	}
}

// NewDefaultExtractor builds the peak tracking -> YIN -> autocorrelation chain
func NewDefaultExtractor(cfg config.ExtractionConfig) *Extractor {
	return NewExtractor(
		Stage{Estimator: tonal.NewPeakTracker(cfg.PeakTracking), MinPoints: cfg.MinPrimaryPoints},
		Stage{Estimator: tonal.NewYIN(cfg.YIN)},
		Stage{Estimator: tonal.NewAutocorrelation(cfg.Autocorrelation)},
	)
}

// SetLogger replaces the extractor's logger
func (e *Extractor) SetLogger(logger logging.Logger) {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	e.logger = logger
}

// Stages returns the estimator names in chain order
func (e *Extractor) Stages() []string {
	names := make([]string, len(e.stages))
	for i, st := range e.stages {
		names[i] = st.Estimator.Name()
	}
	return names
}

// Extract returns the contour and the name of the estimator that produced it.
// The method is empty when every stage failed.
func (e *Extractor) Extract(samples []float64, sampleRate int, profile *config.VoiceRangeProfile) ([]float64, string) {
	band := profile.Band()
	last := len(e.stages) - 1

	for i := 0; i <= last; i++ {
		stage := e.stages[i]
		name := stage.Estimator.Name()

		contour, err := e.run(stage.Estimator, samples, sampleRate, band)
		if err != nil {
			e.logger.Warn("Pitch estimator failed", logging.Fields{
				"estimator": name,
				"error":     err.Error(),
			})
			if i < last {
				// errors skip directly to the last-resort stage
				i = last - 1
			}
			continue
		}

		if i == last || len(contour) >= stage.MinPoints {
			e.logger.Debug("Pitch contour extracted", logging.Fields{
				"estimator": name,
				"points":    len(contour),
			})
			return contour, name
		}

		e.logger.Debug("Pitch contour too sparse, trying next estimator", logging.Fields{
			"estimator":  name,
			"points":     len(contour),
			"min_points": stage.MinPoints,
		})
	}

	return []float64{}, ""
}

// run calls the estimator, converting panics into errors and dropping any
// non-positive or non-finite values from the contour
func (e *Extractor) run(est tonal.Estimator, samples []float64, sampleRate int, band tonal.Band) (contour []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			contour = nil
			err = fmt.Errorf("%s panicked: %v", est.Name(), r)
		}
	}()

	raw, err := est.Estimate(samples, sampleRate, band)
	if err != nil {
		return nil, err
	}

	contour = make([]float64, 0, len(raw))
	for _, f := range raw {
		if f > 0 && !math.IsInf(f, 0) {
			contour = append(contour, f)
		}
	}
	return contour, nil
}
