package tonal

import (
	"math"

	"github.com/RyanBlaney/sonido-pitch/algorithms/common"
)

// Stabilizer turns a stream of raw per-frame pitch candidates into a steady
// published frequency: octave correction against the previous output, a
// median over the last MedianWindowSize candidates, exponential smoothing and
// an optional snap to the key frequency table.
//
// Octave correction only folds candidates the recent raw candidates disagree
// with. Once most of the last MedianWindowSize raw candidates sit beyond the
// octave margins, the shift is taken as a real pitch change and passes
// through. The output never moves by more than the octave margins in one
// Update.
//
// A Stabilizer is not safe for concurrent use.
type Stabilizer struct {
	minFrequency float64
	maxFrequency float64
	smoothing    float64
	upperRatio   float64
	lowerRatio   float64
	snapToKeys   bool

	candidates *common.RingBuffer // raw, uncorrected
	history    *common.RingBuffer // octave-corrected
	scratch    []float64

	output    float64
	hasOutput bool
}

// NewStabilizer creates a stabilizer from the stabilization fields of config
func NewStabilizer(config *TrackerConfig) (*Stabilizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Stabilizer{
		minFrequency: config.MinFrequency,
		maxFrequency: config.MaxFrequency,
		smoothing:    config.FrequencySmoothing,
		upperRatio:   1.0 + config.OctaveStabilityThreshold,
		lowerRatio:   1.0 / (1.0 + config.OctaveStabilityThreshold),
		snapToKeys:   config.UseKeyFrequencies,
		candidates:   common.NewRingBuffer(config.MedianWindowSize),
		history:      common.NewRingBuffer(config.MedianWindowSize),
		scratch:      make([]float64, config.MedianWindowSize),
	}, nil
}

// Update feeds one accepted raw frequency and returns the new output
func (s *Stabilizer) Update(candidate float64) float64 {
	if !s.hasOutput {
		// Nothing to correct against yet. Seeding the whole window keeps the
		// zero-filled history from dragging the first medians to 0 Hz.
		s.candidates.Fill(candidate)
		s.history.Fill(candidate)
	} else {
		s.candidates.Push(candidate)
		candidate = s.correctOctave(candidate)
		s.history.Push(candidate)
	}

	median := common.Median(s.history.Values(), s.scratch)

	next := median
	if s.hasOutput {
		next = common.Lerp(s.output, median, s.smoothing)
		next = common.Clamp(next, s.output*s.lowerRatio, s.output*s.upperRatio)
	}

	if s.snapToKeys {
		next = NearestKeyFrequency(next).Frequency
	}

	s.output = common.Clamp(next, s.minFrequency, s.maxFrequency)
	s.hasOutput = true

	return s.output
}

// correctOctave halves or doubles candidate until it lies within the octave
// margins around the previous output, unless the median of the recent raw
// candidates is itself outside them
func (s *Stabilizer) correctOctave(candidate float64) float64 {
	if s.output <= 0 || candidate <= 0 || math.IsInf(candidate, 0) {
		return candidate
	}

	if reference := common.Median(s.candidates.Values(), s.scratch); !s.withinMargins(reference) {
		return candidate
	}

	for candidate > s.output*s.upperRatio {
		candidate *= 0.5
	}
	for candidate < s.output*s.lowerRatio {
		candidate *= 2.0
	}

	return candidate
}

func (s *Stabilizer) withinMargins(frequency float64) bool {
	return frequency >= s.output*s.lowerRatio && frequency <= s.output*s.upperRatio
}

// Output returns the last published frequency, or 0 before the first Update
func (s *Stabilizer) Output() float64 {
	return s.output
}

// HasOutput reports whether Update has been called since construction or Reset
func (s *Stabilizer) HasOutput() bool {
	return s.hasOutput
}

// OctaveMargins returns the ratios to the previous output beyond which a
// candidate is shifted by an octave
func (s *Stabilizer) OctaveMargins() (lower, upper float64) {
	return s.lowerRatio, s.upperRatio
}

// History returns a copy of the candidate window in storage order
func (s *Stabilizer) History() []float64 {
	values := s.history.Values()
	history := make([]float64, len(values))
	copy(history, values)
	return history
}

// Stability is 1 minus the coefficient of variation of the candidate window,
// floored at 0. A steady pitch approaches 1.
func (s *Stabilizer) Stability() float64 {
	if !s.hasOutput {
		return 0.0
	}
	return math.Max(0.0, 1.0-common.CoefficientOfVariation(s.history.Values()))
}

// Reset returns the stabilizer to its construction state
func (s *Stabilizer) Reset() {
	s.candidates.Reset()
	s.history.Reset()
	s.output = 0
	s.hasOutput = false
}
