package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions used across algorithms using gonum for robustness

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// CoefficientOfVariation returns stddev/mean, or 0 when the mean is not positive
func CoefficientOfVariation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}

	mean, std := stat.MeanStdDev(data, nil)
	if mean <= 0 || math.IsNaN(std) {
		return 0.0
	}
	return std / mean
}

// Median returns the median of data without modifying it. scratch, when it has
// enough capacity, is used for sorting so steady-state callers do not allocate.
func Median(data, scratch []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	if cap(scratch) < len(data) {
		scratch = make([]float64, len(data))
	}
	sorted := scratch[:len(data)]
	copy(sorted, data)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(floats.Dot(data, data) / float64(len(data)))
}

// Max returns the largest value and its index, or (0, -1) for empty data
func Max(data []float64) (float64, int) {
	if len(data) == 0 {
		return 0.0, -1
	}
	idx := floats.MaxIdx(data)
	return data[idx], idx
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

// Lerp performs linear interpolation between two values
func Lerp(a, b, t float64) float64 {
	return a + t*(b-a)
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
