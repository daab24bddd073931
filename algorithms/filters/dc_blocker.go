package filters

import (
	"fmt"
	"math"
)

// DCBlocker is a one-pole, one-zero high-pass filter that removes a constant
// offset from a signal while leaving the audible band untouched.
//
// References:
//   - Julius O. Smith III, "Introduction to Digital Filters with Audio Applications"
//     https://ccrma.stanford.edu/~jos/filters/DC_Blocker.html
//
// y[n] = x[n] - x[n-1] + R * y[n-1]
//
// State carries across calls, so consecutive buffers of one stream filter as
// a single signal.
type DCBlocker struct {
	pole       float64 // R, 0 < R < 1
	sampleRate int

	x1 float64
	y1 float64
}

// NewDCBlocker creates a filter with an approximate -3dB point at cutoff Hz,
// using R = 1 - 2*pi*fc/fs
func NewDCBlocker(sampleRate int, cutoff float64) (*DCBlocker, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}
	if cutoff <= 0 || cutoff >= float64(sampleRate)/(2*math.Pi) {
		return nil, fmt.Errorf("cutoff %.2f Hz out of range for %d Hz", cutoff, sampleRate)
	}

	return &DCBlocker{
		pole:       1 - 2*math.Pi*cutoff/float64(sampleRate),
		sampleRate: sampleRate,
	}, nil
}

func (dc *DCBlocker) Process(input float64) float64 {
	output := input - dc.x1 + dc.pole*dc.y1
	dc.x1 = input
	dc.y1 = output
	return output
}

// ProcessInPlace filters buf in place
func (dc *DCBlocker) ProcessInPlace(buf []float64) {
	for i, x := range buf {
		buf[i] = dc.Process(x)
	}
}

// Reset clears the filter history. Call between discontinuous segments.
func (dc *DCBlocker) Reset() {
	dc.x1 = 0
	dc.y1 = 0
}

// CutoffFrequency is the approximate -3dB frequency in Hz
func (dc *DCBlocker) CutoffFrequency() float64 {
	return (1 - dc.pole) * float64(dc.sampleRate) / (2 * math.Pi)
}

// Magnitude returns the linear gain at frequency, from
// H(e^jw) = (1 - e^-jw) / (1 - R*e^-jw)
func (dc *DCBlocker) Magnitude(frequency float64) float64 {
	w := 2 * math.Pi * frequency / float64(dc.sampleRate)
	cosW, sinW := math.Cos(w), math.Sin(w)

	num := math.Hypot(1-cosW, sinW)
	den := math.Hypot(1-dc.pole*cosW, dc.pole*sinW)
	return num / den
}
