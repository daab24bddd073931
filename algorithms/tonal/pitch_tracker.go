package tonal

import (
	"fmt"

	"github.com/RyanBlaney/sonido-pitch/algorithms/common"
	"github.com/RyanBlaney/sonido-pitch/logging"
)

// TrackerState is the published result of the most recent Analyze call
type TrackerState struct {
	Frequency     float64 `json:"frequency"`      // Stabilized pitch (Hz), 0 until the first estimate
	Confidence    float64 `json:"confidence"`     // Height of the tallest NSDF peak (0-1)
	Clarity       float64 `json:"clarity"`        // Height of the selected NSDF peak (0-1)
	Amplitude     float64 `json:"amplitude"`      // Moving average of RMS over recent calls
	VoiceDetected bool    `json:"voice_detected"` // Amplitude > NoiseFloor && Confidence > ClarityThreshold
}

// PitchTracker follows the fundamental frequency of a live signal one
// fixed-size buffer at a time using the McLeod Pitch Method.
//
// References:
// - McLeod, P., Wyvill, G. (2005). "A smarter way to find pitch"
// - de Cheveigné, A., Kawahara, H. (2002). "YIN, a fundamental frequency estimator for speech and music"
//
// Each call to Analyze:
// - applies PreGain and measures RMS, smoothed over the last 10 calls
// - gates on NoiseFloor
// - computes the NSDF and picks the first key maximum above ClarityThreshold
// - refines the lag with parabolic interpolation
// - passes confident estimates through the Stabilizer
//
// When the signal is too quiet or not periodic enough, Frequency keeps its
// previous value and Confidence/Clarity drop to 0.
//
// A PitchTracker owns all of its buffers and must be used from one goroutine
// at a time. Track several sources with one tracker each.
type PitchTracker struct {
	config *TrackerConfig
	logger logging.Logger

	// Arena buffers, sized once at construction
	samples []float64
	nsdf    []float64
	peaks   []int

	nsdfComputer *nsdfComputer
	amplitudes   *common.RingBuffer
	stabilizer   *Stabilizer
	maxLag       int

	state    TrackerState
	frames   uint64
	snapshot *snapshotArena
}

// NewPitchTracker validates config and allocates a tracker for it. A nil
// config selects DefaultTrackerConfig.
func NewPitchTracker(config *TrackerConfig) (*PitchTracker, error) {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	cfg := *config

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stabilizer, err := NewStabilizer(&cfg)
	if err != nil {
		return nil, err
	}

	logger := logging.WithFields(logging.Fields{
		"component": "pitch_tracker",
	})

	pt := &PitchTracker{
		config:       &cfg,
		logger:       logger,
		samples:      make([]float64, cfg.BufferSize),
		nsdf:         make([]float64, cfg.BufferSize),
		peaks:        make([]int, 0, cfg.BufferSize/2+1),
		nsdfComputer: newNSDFComputer(cfg.Method, cfg.BufferSize),
		amplitudes:   common.NewRingBuffer(AmplitudeHistoryLength),
		stabilizer:   stabilizer,
		maxLag:       cfg.maxLag(),
	}

	if cfg.EnableSnapshot {
		pt.snapshot = newSnapshotArena(cfg.BufferSize, cap(pt.peaks))
	}

	logger.Debug("Pitch tracker created", logging.Fields{
		"buffer_size":       cfg.BufferSize,
		"sample_rate":       cfg.SampleRate,
		"method":            cfg.Method,
		"clarity_threshold": cfg.ClarityThreshold,
		"frequency_range":   [2]float64{cfg.MinFrequency, cfg.MaxFrequency},
		"max_lag":           pt.maxLag,
	})

	return pt, nil
}

// Analyze processes one buffer of exactly BufferSize samples and returns the
// updated state. samples is not modified. A length mismatch returns an error
// wrapping ErrInvalidInput and leaves the tracker untouched.
func (pt *PitchTracker) Analyze(samples []float64) (TrackerState, error) {
	if len(samples) != pt.config.BufferSize {
		return pt.state, fmt.Errorf("%w: got %d samples, tracker expects %d",
			ErrInvalidInput, len(samples), pt.config.BufferSize)
	}

	pt.frames++
	wasVoiced := pt.state.VoiceDetected

	copy(pt.samples, samples)
	common.ScaleInPlace(pt.samples, pt.config.PreGain)

	rms := common.RMS(pt.samples)
	pt.amplitudes.Push(rms)
	pt.state.Amplitude = pt.amplitudes.Mean()

	if pt.snapshot != nil {
		pt.snapshot.begin(pt.frames, pt.samples, rms)
	}

	if pt.state.Amplitude <= pt.config.NoiseFloor {
		pt.clearPitch()
		pt.finish(wasVoiced)
		return pt.state, nil
	}

	rawFrequency, ok := pt.estimate()
	if !ok || pt.state.Confidence <= pt.config.ClarityThreshold {
		if !ok {
			pt.clearPitch()
		}
		pt.finish(wasVoiced)
		return pt.state, nil
	}

	pt.state.Frequency = pt.stabilizer.Update(rawFrequency)
	if pt.snapshot != nil {
		pt.snapshot.data.StabilizedFrequency = pt.state.Frequency
	}

	pt.finish(wasVoiced)
	return pt.state, nil
}

// estimate runs the NSDF, peak selection and refinement on pt.samples. It
// sets Confidence and Clarity and returns the clamped raw frequency, or
// ok == false when no peak qualifies.
func (pt *PitchTracker) estimate() (float64, bool) {
	pt.nsdfComputer.compute(pt.samples, pt.nsdf)
	common.NormalizeByMax(pt.nsdf, nsdfEpsilon)

	search := findPeaks(pt.nsdf, pt.maxLag, pt.config.ClarityThreshold, pt.peaks)
	pt.peaks = search.peaks

	if pt.snapshot != nil {
		pt.snapshot.recordSearch(pt.nsdf, search, pt.config.ClarityThreshold)
	}

	if search.selected < 0 {
		return 0, false
	}

	peak := search.selected
	refinedLag := float64(peak) + common.ParabolicOffset(pt.nsdf, peak)
	if refinedLag <= 0 {
		refinedLag = float64(peak)
	}

	frequency := float64(pt.config.SampleRate) / refinedLag
	frequency = common.Clamp(frequency, pt.config.MinFrequency, pt.config.MaxFrequency)

	pt.state.Confidence = common.Clamp(search.maxValue, 0, 1)
	pt.state.Clarity = common.Clamp(pt.nsdf[peak], 0, 1)

	if pt.snapshot != nil {
		pt.snapshot.data.RefinedLag = refinedLag
		pt.snapshot.data.RawFrequency = frequency
	}

	return frequency, true
}

func (pt *PitchTracker) clearPitch() {
	pt.state.Confidence = 0
	pt.state.Clarity = 0
}

// finish derives VoiceDetected and logs voiced/unvoiced transitions
func (pt *PitchTracker) finish(wasVoiced bool) {
	pt.state.VoiceDetected = pt.state.Amplitude > pt.config.NoiseFloor &&
		pt.state.Confidence > pt.config.ClarityThreshold

	if pt.state.VoiceDetected == wasVoiced {
		return
	}

	if pt.state.VoiceDetected {
		pt.logger.Debug("Voice detected", logging.Fields{
			"frame":      pt.frames,
			"frequency":  pt.state.Frequency,
			"confidence": pt.state.Confidence,
			"amplitude":  pt.state.Amplitude,
		})
	} else {
		pt.logger.Debug("Voice lost", logging.Fields{
			"frame":     pt.frames,
			"frequency": pt.state.Frequency,
			"amplitude": pt.state.Amplitude,
		})
	}
}

// Frequency returns the stabilized pitch in Hz
func (pt *PitchTracker) Frequency() float64 {
	return pt.state.Frequency
}

// Confidence returns the height of the tallest NSDF peak from the last call
func (pt *PitchTracker) Confidence() float64 {
	return pt.state.Confidence
}

// Clarity returns the height of the selected NSDF peak from the last call
func (pt *PitchTracker) Clarity() float64 {
	return pt.state.Clarity
}

// Amplitude returns the smoothed RMS level after PreGain
func (pt *PitchTracker) Amplitude() float64 {
	return pt.state.Amplitude
}

// IsVoiceDetected reports whether the last call saw a loud, periodic signal
func (pt *PitchTracker) IsVoiceDetected() bool {
	return pt.state.VoiceDetected
}

// State returns all published values at once
func (pt *PitchTracker) State() TrackerState {
	return pt.state
}

// Stability returns the stabilizer's stability measure (0-1)
func (pt *PitchTracker) Stability() float64 {
	return pt.stabilizer.Stability()
}

// Note returns the key frequency table entry nearest the current frequency and
// the offset from it in cents. ok is false until a frequency has been published.
func (pt *PitchTracker) Note() (note Note, cents float64, ok bool) {
	if !pt.stabilizer.HasOutput() {
		return Note{}, 0, false
	}
	note = NearestKeyFrequency(pt.state.Frequency)
	return note, CentsOffset(pt.state.Frequency, note.Frequency), true
}

// Frames returns the number of buffers accepted by Analyze
func (pt *PitchTracker) Frames() uint64 {
	return pt.frames
}

// Config returns a copy of the configuration the tracker was built with
func (pt *PitchTracker) Config() TrackerConfig {
	return *pt.config
}

// Reset clears all history and published values
func (pt *PitchTracker) Reset() {
	pt.amplitudes.Reset()
	pt.stabilizer.Reset()
	pt.state = TrackerState{}
	pt.frames = 0
	if pt.snapshot != nil {
		pt.snapshot.reset()
	}
}
