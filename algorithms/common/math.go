package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic numeric helpers shared by the estimators and the assessment pipeline

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Energy returns the sum of squared samples
func Energy(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Dot(data, data)
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(Energy(data) / float64(len(data)))
}

// Median returns the middle value of data, averaging the two middle values
// for even lengths. The input is not modified. Empty input yields 0.
func Median(data []float64) float64 {
	n := len(data)
	if n == 0 {
		return 0.0
	}

	sorted := make([]float64, n)
	copy(sorted, data)
	sort.Float64s(sorted)

	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// ArgMax returns the index of the first maximum in data, or -1 for empty input
func ArgMax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	return floats.MaxIdx(data)
}

// Max returns the largest value in data, or 0 for empty input
func Max(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Max(data)
}

// Clamp constrains a value to a range
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ParabolicOffset fits a parabola through (prev, center, next) and returns the
// vertex offset from the center sample, in [-0.5, 0.5] for a true peak or valley.
// A degenerate (flat) neighborhood returns 0.
func ParabolicOffset(prev, center, next float64) float64 {
	denom := prev - 2*center + next
	if denom == 0 {
		return 0
	}
	offset := 0.5 * (prev - next) / denom
	return Clamp(offset, -0.5, 0.5)
}

// IsPowerOfTwo checks if n is a power of 2
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// NextPowerOfTwo finds the next power of 2 >= n
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}

	power := 1
	for power < n {
		power <<= 1
	}
	return power
}
