package tonal

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-grader/algorithms/common"
)

// YINParams configures the YIN periodicity estimator
type YINParams struct {
	FrameLength int     `json:"frame_length" yaml:"frame_length"`
	HopSize     int     `json:"hop_size" yaml:"hop_size"`
	Threshold   float64 `json:"threshold" yaml:"threshold"` // absolute CMNDF threshold
}

// DefaultYINParams returns a 2048-sample frame with quarter-frame hop
func DefaultYINParams() YINParams {
	return YINParams{
		FrameLength: 2048,
		HopSize:     512,
		Threshold:   0.1,
	}
}

// YIN estimates F0 per frame from the cumulative mean normalized difference
// function, searching only the lags implied by the band.
//
// References:
// - de Cheveigné, A., Kawahara, H. (2002). "YIN, a fundamental frequency estimator for speech and music"
type YIN struct {
	params YINParams
}

// NewYIN creates a YIN estimator
func NewYIN(params YINParams) *YIN {
	return &YIN{params: params}
}

func (y *YIN) Name() string {
	return "yin"
}

// Estimate emits every per-frame estimate inside the band; silent and
// aperiodic frames emit nothing.
func (y *YIN) Estimate(samples []float64, sampleRate int, band Band) ([]float64, error) {
	if err := validateInput(samples, sampleRate, band); err != nil {
		return nil, err
	}
	if y.params.FrameLength <= 2 || y.params.HopSize <= 0 {
		return nil, fmt.Errorf("invalid yin framing: frame=%d hop=%d", y.params.FrameLength, y.params.HopSize)
	}

	sr := float64(sampleRate)
	minPeriod := max(int(math.Floor(sr/band.Max)), 1)
	maxPeriod := int(math.Ceil(sr / band.Min))

	// difference window is half the frame; lags must fit in the remainder
	winLength := y.params.FrameLength / 2
	if maxPeriod > y.params.FrameLength-winLength-1 {
		return nil, fmt.Errorf("yin frame length %d too short for min frequency %.1f Hz at %d Hz",
			y.params.FrameLength, band.Min, sampleRate)
	}

	pad := y.params.FrameLength / 2
	padded := make([]float64, len(samples)+2*pad)
	copy(padded[pad:], samples)

	numFrames := 1 + (len(padded)-y.params.FrameLength)/y.params.HopSize
	contour := make([]float64, 0, numFrames)

	diff := make([]float64, maxPeriod+2)
	cmndf := make([]float64, maxPeriod+2)

	for f := range numFrames {
		start := f * y.params.HopSize
		frame := padded[start : start+y.params.FrameLength]

		if common.Energy(frame[:winLength+maxPeriod+1]) == 0 {
			continue
		}

		period, ok := y.framePeriod(frame, winLength, minPeriod, maxPeriod, diff, cmndf)
		if !ok {
			continue
		}

		if f0 := sr / period; band.Contains(f0) {
			contour = append(contour, f0)
		}
	}

	return contour, nil
}

// framePeriod returns the interpolated period (in samples) of one frame
func (y *YIN) framePeriod(frame []float64, winLength, minPeriod, maxPeriod int, diff, cmndf []float64) (float64, bool) {
	last := maxPeriod + 1

	for tau := 0; tau <= last; tau++ {
		sum := 0.0
		for j := range winLength {
			delta := frame[j] - frame[j+tau]
			sum += delta * delta
		}
		diff[tau] = sum
	}

	cmndf[0] = 1.0
	runningSum := 0.0
	for tau := 1; tau <= last; tau++ {
		runningSum += diff[tau]
		if runningSum == 0 {
			cmndf[tau] = 1.0
			continue
		}
		cmndf[tau] = diff[tau] * float64(tau) / runningSum
	}

	// first trough under the threshold, else the global minimum in range
	best := -1
	for tau := minPeriod; tau <= maxPeriod; tau++ {
		if cmndf[tau] < y.params.Threshold && cmndf[tau] <= cmndf[tau-1] && cmndf[tau] <= cmndf[tau+1] {
			best = tau
			break
		}
	}
	if best < 0 {
		best = minPeriod + common.ArgMax(negate(cmndf[minPeriod:maxPeriod+1]))
		// a flat CMNDF (impulse, noise floor) has no period to report
		if cmndf[best] >= cmndf[best-1] && cmndf[best] >= cmndf[best+1] {
			return 0, false
		}
	}

	if best <= 0 {
		return 0, false
	}

	offset := common.ParabolicOffset(cmndf[best-1], cmndf[best], cmndf[best+1])
	period := float64(best) + offset
	if period <= 0 {
		return 0, false
	}
	return period, true
}

func negate(data []float64) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = -v
	}
	return out
}
