package tonal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	// ErrInvalidConfiguration is returned when a TrackerConfig cannot produce a working tracker
	ErrInvalidConfiguration = errors.New("invalid tracker configuration")

	// ErrInvalidInput is returned by Analyze when the sample buffer has the wrong length
	ErrInvalidInput = errors.New("invalid analysis input")
)

// NSDFMethod selects how the normalized square difference function is computed
type NSDFMethod string

const (
	// NSDFDirect evaluates every lag in the time domain, O(n²)
	NSDFDirect NSDFMethod = "direct"

	// NSDFFFT derives the autocorrelation term from a zero-padded FFT, O(n log n)
	NSDFFFT NSDFMethod = "fft"
)

const (
	// AmplitudeHistoryLength is the number of RMS values averaged into Amplitude
	AmplitudeHistoryLength = 10

	// MaxBufferSize bounds the analysis window; NSDFDirect is quadratic in it
	MaxBufferSize = 16384

	// MinOctaveStabilityThreshold keeps the octave margins at least an octave
	// apart so halving and doubling cannot alternate forever
	MinOctaveStabilityThreshold = math.Sqrt2 - 1
)

// TrackerConfig holds everything a PitchTracker needs, fixed at construction
type TrackerConfig struct {
	BufferSize int `json:"buffer_size"` // Analysis window in samples
	SampleRate int `json:"sample_rate"` // Samples per second

	ClarityThreshold float64 `json:"clarity_threshold"` // Minimum normalized peak height (0-1)
	NoiseFloor       float64 `json:"noise_floor"`       // Smoothed RMS below which nothing is analyzed

	MinFrequency float64 `json:"min_frequency"` // Hz
	MaxFrequency float64 `json:"max_frequency"` // Hz

	UseKeyFrequencies        bool    `json:"use_key_frequencies"`        // Snap output to the key frequency table
	FrequencySmoothing       float64 `json:"frequency_smoothing"`        // Lower = more smoothing, (0,1]
	MedianWindowSize         int     `json:"median_window_size"`         // Odd, >= 3
	OctaveStabilityThreshold float64 `json:"octave_stability_threshold"` // Fractional deviation that triggers octave correction

	PreGain float64 `json:"pre_gain"` // Multiplier applied to incoming samples

	Method         NSDFMethod `json:"method"`
	EnableSnapshot bool       `json:"enable_snapshot"` // Record per-call debug data
}

// DefaultTrackerConfig returns defaults tuned for the human singing voice
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		BufferSize:               2048,
		SampleRate:               44100,
		ClarityThreshold:         0.71,
		NoiseFloor:               0.001,
		MinFrequency:             80.0,   // Low male voice
		MaxFrequency:             1000.0, // High female voice
		UseKeyFrequencies:        false,
		FrequencySmoothing:       0.2,
		MedianWindowSize:         5,
		OctaveStabilityThreshold: 0.8, // Margins of 1.8x and 1/1.8x
		PreGain:                  20.0,
		Method:                   NSDFDirect,
		EnableSnapshot:           false,
	}
}

// LoadTrackerConfig decodes JSON from r over the defaults and validates the result
func LoadTrackerConfig(r io.Reader) (*TrackerConfig, error) {
	config := DefaultTrackerConfig()

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidConfiguration, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate reports the first setting that would make the tracker misbehave.
// The returned error wraps ErrInvalidConfiguration.
func (c *TrackerConfig) Validate() error {
	if c.BufferSize < 4 || c.BufferSize > MaxBufferSize {
		return invalidConfig("buffer_size must be between 4 and %d, got %d", MaxBufferSize, c.BufferSize)
	}

	if c.SampleRate <= 0 {
		return invalidConfig("sample_rate must be positive, got %d", c.SampleRate)
	}

	// Range checks are written so NaN fails them
	if !(c.ClarityThreshold > 0 && c.ClarityThreshold < 1) {
		return invalidConfig("clarity_threshold must be in (0, 1), got %v", c.ClarityThreshold)
	}

	if !(c.NoiseFloor >= 0) || math.IsInf(c.NoiseFloor, 0) {
		return invalidConfig("noise_floor must be non-negative and finite, got %v", c.NoiseFloor)
	}

	if !(c.MinFrequency > 0 && c.MinFrequency < c.MaxFrequency) {
		return invalidConfig("min_frequency must be positive and below max_frequency, got [%v, %v]",
			c.MinFrequency, c.MaxFrequency)
	}

	if !(c.MaxFrequency <= float64(c.SampleRate)/2) {
		return invalidConfig("max_frequency %v exceeds the Nyquist frequency of %d Hz", c.MaxFrequency, c.SampleRate)
	}

	// The lowest frequency needs its period (plus one neighbour for
	// interpolation) to fit inside the window.
	if minLag := float64(c.SampleRate) / c.MinFrequency; minLag > float64(c.BufferSize-2) {
		return invalidConfig("buffer_size %d cannot hold one period of min_frequency %v Hz (%.1f samples)",
			c.BufferSize, c.MinFrequency, minLag)
	}

	if !(c.FrequencySmoothing > 0 && c.FrequencySmoothing <= 1) {
		return invalidConfig("frequency_smoothing must be in (0, 1], got %v", c.FrequencySmoothing)
	}

	if c.MedianWindowSize < 3 || c.MedianWindowSize%2 == 0 {
		return invalidConfig("median_window_size must be odd and >= 3, got %d", c.MedianWindowSize)
	}

	if !(c.OctaveStabilityThreshold >= MinOctaveStabilityThreshold && c.OctaveStabilityThreshold <= 1) {
		return invalidConfig("octave_stability_threshold must be in [%.4f, 1], got %v",
			MinOctaveStabilityThreshold, c.OctaveStabilityThreshold)
	}

	if !(c.PreGain > 0) || math.IsInf(c.PreGain, 0) {
		return invalidConfig("pre_gain must be positive and finite, got %v", c.PreGain)
	}

	switch c.Method {
	case NSDFDirect, NSDFFFT:
	default:
		return invalidConfig("unknown method %q", c.Method)
	}

	return nil
}

// maxLag is the largest lag scanned for peaks: half the window, or one
// period of MinFrequency plus the interpolation neighbour when that is
// longer, and never past BufferSize-2. Periods between MinFrequency and
// half the window are still found and clamp to MinFrequency. Beyond half
// the window the overlap is so short that noise alone produces tall peaks.
func (c *TrackerConfig) maxLag() int {
	lag := int(math.Ceil(float64(c.SampleRate)/c.MinFrequency)) + 1
	return min(max(lag, c.BufferSize/2), c.BufferSize-2)
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
