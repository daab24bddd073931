package common

import (
	"gonum.org/v1/gonum/floats"
)

// ScaleInPlace multiplies every element of data by gain
func ScaleInPlace(data []float64, gain float64) {
	if gain == 1.0 {
		return
	}
	floats.Scale(gain, data)
}

// NormalizeByMax divides data in place by (max + eps) and returns the
// pre-normalization maximum. eps keeps an all-zero input finite.
func NormalizeByMax(data []float64, eps float64) float64 {
	maxValue, idx := Max(data)
	if idx < 0 {
		return 0.0
	}

	floats.Scale(1.0/(maxValue+eps), data)
	return maxValue
}
