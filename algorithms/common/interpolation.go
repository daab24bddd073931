package common

// ParabolicOffset fits a parabola through data[idx-1], data[idx], data[idx+1]
// and returns the offset of its vertex from idx. The offset is 0 at the edges
// of data and when the three points are collinear.
func ParabolicOffset(data []float64, idx int) float64 {
	if idx <= 0 || idx >= len(data)-1 {
		return 0.0
	}

	alpha := data[idx-1]
	beta := data[idx]
	gamma := data[idx+1]

	denom := alpha - 2*beta + gamma
	if denom == 0 {
		return 0.0
	}

	return 0.5 * (alpha - gamma) / denom
}
