package source

import (
	"fmt"
	"math"
)

// ToneSource generates an endless sine wave. Phase carries over between
// buffers and across SetFrequency, so a frequency change never clicks.
type ToneSource struct {
	frequency  float64
	amplitude  float64
	sampleRate int
	phase      float64
}

// NewToneSource creates a sine generator. frequency must lie below Nyquist.
func NewToneSource(frequency, amplitude float64, sampleRate int) (*ToneSource, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}

	ts := &ToneSource{amplitude: amplitude, sampleRate: sampleRate}
	if err := ts.SetFrequency(frequency); err != nil {
		return nil, err
	}
	return ts, nil
}

// SetFrequency changes the pitch from the next generated sample on
func (ts *ToneSource) SetFrequency(frequency float64) error {
	if frequency < 0 || frequency >= float64(ts.sampleRate)/2 {
		return fmt.Errorf("frequency %.2f Hz outside [0, %d)", frequency, ts.sampleRate/2)
	}
	ts.frequency = frequency
	return nil
}

// SetAmplitude changes the peak amplitude
func (ts *ToneSource) SetAmplitude(amplitude float64) {
	ts.amplitude = amplitude
}

func (ts *ToneSource) Frequency() float64 {
	return ts.frequency
}

func (ts *ToneSource) Next(buf []float64) error {
	step := 2 * math.Pi * ts.frequency / float64(ts.sampleRate)
	for i := range buf {
		buf[i] = ts.amplitude * math.Sin(ts.phase)
		ts.phase += step
	}

	// Keep the phase small so precision does not degrade over long runs
	ts.phase = math.Mod(ts.phase, 2*math.Pi)
	return nil
}

func (ts *ToneSource) SampleRate() int {
	return ts.sampleRate
}
