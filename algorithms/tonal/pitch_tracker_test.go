package tonal

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/RyanBlaney/sonido-pitch/logging"
)

func init() {
	logging.SetGlobalLogger(nil)
}

// sineFrame returns frame number `frame` of a phase-continuous sine
func sineFrame(freq, amplitude float64, sampleRate, size, frame int) []float64 {
	data := make([]float64, size)
	offset := frame * size
	for i := range data {
		t := float64(offset+i) / float64(sampleRate)
		data[i] = amplitude * math.Sin(2*math.Pi*freq*t)
	}
	return data
}

func newTestTracker(t *testing.T, mutate func(*TrackerConfig)) *PitchTracker {
	t.Helper()

	config := DefaultTrackerConfig()
	if mutate != nil {
		mutate(config)
	}

	pt, err := NewPitchTracker(config)
	if err != nil {
		t.Fatalf("NewPitchTracker: %v", err)
	}
	return pt
}

func within(got, want, fraction float64) bool {
	return math.Abs(got-want) <= want*fraction
}

func TestNewPitchTrackerRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TrackerConfig)
	}{
		{"zero buffer", func(c *TrackerConfig) { c.BufferSize = 0 }},
		{"huge buffer", func(c *TrackerConfig) { c.BufferSize = MaxBufferSize + 1 }},
		{"zero sample rate", func(c *TrackerConfig) { c.SampleRate = 0 }},
		{"clarity at one", func(c *TrackerConfig) { c.ClarityThreshold = 1 }},
		{"negative noise floor", func(c *TrackerConfig) { c.NoiseFloor = -0.1 }},
		{"inverted range", func(c *TrackerConfig) { c.MinFrequency, c.MaxFrequency = 500, 400 }},
		{"equal range", func(c *TrackerConfig) { c.MinFrequency, c.MaxFrequency = 400, 400 }},
		{"above nyquist", func(c *TrackerConfig) { c.MaxFrequency = 30000 }},
		{"window too short", func(c *TrackerConfig) { c.BufferSize = 256 }},
		{"zero smoothing", func(c *TrackerConfig) { c.FrequencySmoothing = 0 }},
		{"even median window", func(c *TrackerConfig) { c.MedianWindowSize = 4 }},
		{"tiny median window", func(c *TrackerConfig) { c.MedianWindowSize = 1 }},
		{"octave threshold too small", func(c *TrackerConfig) { c.OctaveStabilityThreshold = 0.3 }},
		{"zero gain", func(c *TrackerConfig) { c.PreGain = 0 }},
		{"unknown method", func(c *TrackerConfig) { c.Method = "cepstrum" }},
		{"NaN clarity", func(c *TrackerConfig) { c.ClarityThreshold = math.NaN() }},
		{"NaN noise floor", func(c *TrackerConfig) { c.NoiseFloor = math.NaN() }},
		{"infinite noise floor", func(c *TrackerConfig) { c.NoiseFloor = math.Inf(1) }},
		{"NaN min frequency", func(c *TrackerConfig) { c.MinFrequency = math.NaN() }},
		{"NaN max frequency", func(c *TrackerConfig) { c.MaxFrequency = math.NaN() }},
		{"NaN smoothing", func(c *TrackerConfig) { c.FrequencySmoothing = math.NaN() }},
		{"NaN octave threshold", func(c *TrackerConfig) { c.OctaveStabilityThreshold = math.NaN() }},
		{"NaN gain", func(c *TrackerConfig) { c.PreGain = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultTrackerConfig()
			tt.mutate(config)

			pt, err := NewPitchTracker(config)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("error %v does not wrap ErrInvalidConfiguration", err)
			}
			if pt != nil {
				t.Error("tracker returned alongside an error")
			}
		})
	}
}

func TestNewPitchTrackerNilConfig(t *testing.T) {
	pt, err := NewPitchTracker(nil)
	if err != nil {
		t.Fatalf("NewPitchTracker(nil): %v", err)
	}
	if pt.Config().BufferSize != 2048 {
		t.Errorf("buffer size = %d, want default 2048", pt.Config().BufferSize)
	}
}

func TestAnalyzeSilenceOnFreshTracker(t *testing.T) {
	pt := newTestTracker(t, nil)

	state, err := pt.Analyze(make([]float64, 2048))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if state.Amplitude != 0 || state.Confidence != 0 || state.Clarity != 0 {
		t.Errorf("silence state = %+v", state)
	}
	if state.VoiceDetected || pt.IsVoiceDetected() {
		t.Error("voice detected in silence")
	}
	if state.Frequency != 0 {
		t.Errorf("frequency = %v, want untouched 0", state.Frequency)
	}
}

func TestAnalyzeSilenceKeepsFrequency(t *testing.T) {
	pt := newTestTracker(t, nil)

	for frame := range 5 {
		if _, err := pt.Analyze(sineFrame(330, 0.3, 44100, 2048, frame)); err != nil {
			t.Fatalf("Analyze: %v", err)
		}
	}
	before := pt.Frequency()

	for range 3 {
		state, err := pt.Analyze(make([]float64, 2048))
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if state.Frequency != before {
			t.Errorf("frequency changed during silence: %v -> %v", before, state.Frequency)
		}
		if state.Confidence != 0 || state.Clarity != 0 || state.VoiceDetected {
			t.Errorf("silence after tone: %+v", state)
		}
	}
}

func TestAnalyzeBelowNoiseFloor(t *testing.T) {
	pt := newTestTracker(t, nil)

	// RMS after the default 20x gain is ~1.4e-5, well under the floor
	state, err := pt.Analyze(sineFrame(220, 1e-6, 44100, 2048, 0))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if state.Amplitude <= 0 || state.Amplitude > pt.Config().NoiseFloor {
		t.Errorf("amplitude = %v, want in (0, noise floor]", state.Amplitude)
	}
	if state.Confidence != 0 || state.Frequency != 0 || state.VoiceDetected {
		t.Errorf("quiet input analyzed: %+v", state)
	}
}

func TestAnalyzeSineConverges(t *testing.T) {
	frequencies := []float64{82.41, 110, 220, 440, 880, 987}

	for _, freq := range frequencies {
		pt := newTestTracker(t, nil)

		detectedAt := -1
		for frame := range 10 {
			state, err := pt.Analyze(sineFrame(freq, 0.3, 44100, 2048, frame))
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if state.VoiceDetected && detectedAt < 0 {
				detectedAt = frame
			}
		}

		if detectedAt < 0 || detectedAt > 2 {
			t.Errorf("%v Hz: voice detected at frame %d, want within 3 calls", freq, detectedAt)
		}
		if !within(pt.Frequency(), freq, 0.02) {
			t.Errorf("%v Hz: tracked %v", freq, pt.Frequency())
		}
		if pt.Confidence() <= 0 || pt.Confidence() > 1 || pt.Clarity() <= 0 || pt.Clarity() > 1 {
			t.Errorf("%v Hz: confidence %v clarity %v outside (0, 1]", freq, pt.Confidence(), pt.Clarity())
		}
	}
}

func TestAnalyzeEndToEnd(t *testing.T) {
	pt := newTestTracker(t, func(c *TrackerConfig) {
		c.BufferSize = 2048
		c.SampleRate = 44100
		c.ClarityThreshold = 0.71
		c.NoiseFloor = 0.001
		c.MinFrequency = 80
		c.MaxFrequency = 1000
	})

	for frame := range 20 {
		if _, err := pt.Analyze(sineFrame(220, 0.3, 44100, 2048, frame)); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
	}

	if f := pt.Frequency(); f < 215 || f > 225 {
		t.Errorf("frequency = %v, want within [215, 225]", f)
	}
	if pt.Confidence() <= 0.71 {
		t.Errorf("confidence = %v, want > 0.71", pt.Confidence())
	}
	if !pt.IsVoiceDetected() {
		t.Error("voice not detected")
	}
	if pt.Frames() != 20 {
		t.Errorf("frames = %d, want 20", pt.Frames())
	}
}

func TestAnalyzeWrongLength(t *testing.T) {
	pt := newTestTracker(t, nil)

	for frame := range 3 {
		if _, err := pt.Analyze(sineFrame(220, 0.3, 44100, 2048, frame)); err != nil {
			t.Fatalf("Analyze: %v", err)
		}
	}
	before := pt.State()
	frames := pt.Frames()

	for _, n := range []int{0, 2047, 4096} {
		state, err := pt.Analyze(make([]float64, n))
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("len %d: error = %v, want ErrInvalidInput", n, err)
		}
		if state != before || pt.State() != before {
			t.Errorf("len %d: state changed from %+v to %+v", n, before, pt.State())
		}
	}

	if pt.Frames() != frames {
		t.Errorf("rejected calls were counted: %d -> %d", frames, pt.Frames())
	}
}

func TestAnalyzeDoesNotModifyInput(t *testing.T) {
	pt := newTestTracker(t, nil)

	input := sineFrame(220, 0.3, 44100, 2048, 0)
	original := append([]float64(nil), input...)

	if _, err := pt.Analyze(input); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for i := range input {
		if input[i] != original[i] {
			t.Fatalf("sample %d modified: %v -> %v", i, original[i], input[i])
		}
	}
}

func TestAnalyzeConstantInputBoundedDrift(t *testing.T) {
	pt := newTestTracker(t, nil)
	frame := sineFrame(261.63, 0.3, 44100, 2048, 0)

	for range 10 {
		if _, err := pt.Analyze(frame); err != nil {
			t.Fatalf("Analyze: %v", err)
		}
	}

	prev := pt.Frequency()
	for i := range 20 {
		state, err := pt.Analyze(frame)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if drift := math.Abs(state.Frequency - prev); drift > 1e-6 {
			t.Errorf("call %d drifted %v Hz on identical input", i, drift)
		}
		prev = state.Frequency
	}

	if pt.Stability() < 0.999 {
		t.Errorf("stability = %v on a steady tone", pt.Stability())
	}
}

func TestAnalyzeOctaveChange(t *testing.T) {
	tests := []struct {
		name string
		from float64
		to   float64
	}{
		{"octave up", 220, 440},
		{"octave down", 440, 220},
		{"beyond upper margin", 220, 415.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt := newTestTracker(t, nil)
			lower, upper := pt.stabilizer.OctaveMargins()

			frame := 0
			for ; frame < 10; frame++ {
				if _, err := pt.Analyze(sineFrame(tt.from, 0.3, 44100, 2048, frame)); err != nil {
					t.Fatalf("Analyze: %v", err)
				}
			}

			prev := pt.Frequency()
			for ; frame < 60; frame++ {
				state, err := pt.Analyze(sineFrame(tt.to, 0.3, 44100, 2048, frame))
				if err != nil {
					t.Fatalf("Analyze: %v", err)
				}

				ratio := state.Frequency / prev
				if ratio > upper || ratio < lower {
					t.Fatalf("frame %d jumped %v -> %v (ratio %v)", frame, prev, state.Frequency, ratio)
				}
				if frame == 10 && !within(state.Frequency, tt.from, 0.02) {
					t.Errorf("first frame at the new pitch moved to %v", state.Frequency)
				}
				prev = state.Frequency
			}

			if !within(pt.Frequency(), tt.to, 0.02) {
				t.Errorf("frequency = %v, want to converge to %v", pt.Frequency(), tt.to)
			}
		})
	}
}

func TestAnalyzeBelowMinFrequencyClamps(t *testing.T) {
	pt := newTestTracker(t, nil)

	var state TrackerState
	for frame := range 10 {
		var err error
		if state, err = pt.Analyze(sineFrame(60, 0.3, 44100, 2048, frame)); err != nil {
			t.Fatalf("Analyze: %v", err)
		}
	}

	if !state.VoiceDetected || state.Confidence <= pt.Config().ClarityThreshold {
		t.Errorf("60 Hz sine not voiced: %+v", state)
	}
	if math.Abs(state.Frequency-80) > 1e-9 {
		t.Errorf("frequency = %v, want clamped to 80", state.Frequency)
	}
}

func TestAnalyzeSingleFrameOutlierRejected(t *testing.T) {
	pt := newTestTracker(t, nil)

	frame := 0
	for ; frame < 10; frame++ {
		if _, err := pt.Analyze(sineFrame(220, 0.3, 44100, 2048, frame)); err != nil {
			t.Fatalf("Analyze: %v", err)
		}
	}
	steady := pt.Frequency()

	// 300 Hz is inside the octave margins, so only the median can reject it
	if _, err := pt.Analyze(sineFrame(300, 0.3, 44100, 2048, frame)); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if math.Abs(pt.Frequency()-steady) > 0.01 {
		t.Errorf("outlier moved frequency %v -> %v", steady, pt.Frequency())
	}

	for frame++; frame < 15; frame++ {
		if _, err := pt.Analyze(sineFrame(220, 0.3, 44100, 2048, frame)); err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if math.Abs(pt.Frequency()-steady) > 0.01 {
			t.Errorf("frame %d: frequency %v, want %v", frame, pt.Frequency(), steady)
		}
	}
}

func TestAnalyzeNoiseIsNotVoiced(t *testing.T) {
	pt := newTestTracker(t, nil)
	rng := rand.New(rand.NewPCG(1, 2))

	for range 3 {
		noise := make([]float64, 2048)
		for i := range noise {
			noise[i] = 0.1 * rng.NormFloat64()
		}

		state, err := pt.Analyze(noise)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if state.Amplitude <= pt.Config().NoiseFloor {
			t.Fatalf("noise amplitude %v below floor", state.Amplitude)
		}
		if state.VoiceDetected || state.Confidence > 0.5 {
			t.Errorf("noise reported as pitched: %+v", state)
		}
		if state.Frequency != 0 {
			t.Errorf("noise published frequency %v", state.Frequency)
		}
	}
}

func TestAnalyzeKeySnapping(t *testing.T) {
	pt := newTestTracker(t, func(c *TrackerConfig) {
		c.UseKeyFrequencies = true
	})

	for frame := range 5 {
		if _, err := pt.Analyze(sineFrame(258, 0.3, 44100, 2048, frame)); err != nil {
			t.Fatalf("Analyze: %v", err)
		}
	}

	if pt.Frequency() != 261.63 {
		t.Errorf("frequency = %v, want snapped to C4 261.63", pt.Frequency())
	}

	note, cents, ok := pt.Note()
	if !ok || note.Name != "C4" || cents != 0 {
		t.Errorf("Note() = %v, %v, %v", note, cents, ok)
	}
}

func TestFFTMethodMatchesDirect(t *testing.T) {
	direct := newTestTracker(t, nil)
	viaFFT := newTestTracker(t, func(c *TrackerConfig) { c.Method = NSDFFFT })

	for frame := range 8 {
		freq := 196.0
		if frame >= 4 {
			freq = 233.08
		}
		samples := sineFrame(freq, 0.3, 44100, 2048, frame)

		a, err := direct.Analyze(samples)
		if err != nil {
			t.Fatalf("direct: %v", err)
		}
		b, err := viaFFT.Analyze(samples)
		if err != nil {
			t.Fatalf("fft: %v", err)
		}

		if math.Abs(a.Frequency-b.Frequency) > 1e-4 {
			t.Errorf("frame %d: direct %v, fft %v", frame, a.Frequency, b.Frequency)
		}
		if math.Abs(a.Confidence-b.Confidence) > 1e-6 || math.Abs(a.Clarity-b.Clarity) > 1e-6 {
			t.Errorf("frame %d: direct %+v, fft %+v", frame, a, b)
		}
	}
}

func TestSnapshot(t *testing.T) {
	pt := newTestTracker(t, func(c *TrackerConfig) { c.EnableSnapshot = true })

	if _, ok := pt.Snapshot(); ok {
		t.Fatal("snapshot available before any analysis")
	}

	if _, err := pt.Analyze(sineFrame(220, 0.3, 44100, 2048, 0)); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	snap, ok := pt.Snapshot()
	if !ok {
		t.Fatal("no snapshot after analysis")
	}

	if snap.Frame != 1 || len(snap.Samples) != 2048 || len(snap.NSDF) != 2048 {
		t.Fatalf("snapshot shape: frame=%d samples=%d nsdf=%d", snap.Frame, len(snap.Samples), len(snap.NSDF))
	}
	if snap.SelectedPeakIndex != 200 {
		t.Errorf("selected peak = %d, want 200 (44100/220 = 200.45)", snap.SelectedPeakIndex)
	}
	if len(snap.PeakIndices) == 0 || snap.PeakIndices[0] != snap.SelectedPeakIndex {
		t.Errorf("peak indices = %v", snap.PeakIndices)
	}
	if math.Abs(snap.NSDF[0]-1) > 1e-9 {
		t.Errorf("normalized nsdf[0] = %v, want 1", snap.NSDF[0])
	}
	if snap.Threshold != pt.Config().ClarityThreshold*snap.MaxValue {
		t.Errorf("threshold = %v, max = %v", snap.Threshold, snap.MaxValue)
	}
	if math.Abs(snap.Samples[10]-20*0.3*math.Sin(2*math.Pi*220*10/44100)) > 1e-12 {
		t.Errorf("snapshot samples not gained input: %v", snap.Samples[10])
	}
	if snap.StabilizedFrequency != pt.Frequency() || snap.RefinedLag <= 200 || snap.RefinedLag >= 201 {
		t.Errorf("snapshot frequencies: %+v", snap)
	}

	// Mutating the copy must not reach the tracker
	snap.NSDF[0] = 42
	again, _ := pt.Snapshot()
	if again.NSDF[0] == 42 {
		t.Error("snapshot shares memory with the tracker")
	}

	if _, err := pt.Analyze(make([]float64, 2048)); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	silent, _ := pt.Snapshot()
	if silent.SelectedPeakIndex != -1 || len(silent.PeakIndices) != 0 {
		t.Errorf("silent snapshot = peak %d, %v", silent.SelectedPeakIndex, silent.PeakIndices)
	}
}

func TestSnapshotDisabled(t *testing.T) {
	pt := newTestTracker(t, nil)
	if _, err := pt.Analyze(sineFrame(220, 0.3, 44100, 2048, 0)); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if _, ok := pt.Snapshot(); ok {
		t.Error("snapshot recorded while disabled")
	}
}

func TestReset(t *testing.T) {
	pt := newTestTracker(t, func(c *TrackerConfig) { c.EnableSnapshot = true })

	for frame := range 3 {
		if _, err := pt.Analyze(sineFrame(440, 0.3, 44100, 2048, frame)); err != nil {
			t.Fatalf("Analyze: %v", err)
		}
	}

	pt.Reset()

	if pt.State() != (TrackerState{}) || pt.Frames() != 0 {
		t.Errorf("state after reset = %+v, frames %d", pt.State(), pt.Frames())
	}
	if _, _, ok := pt.Note(); ok {
		t.Error("note available after reset")
	}
	if _, ok := pt.Snapshot(); ok {
		t.Error("snapshot survived reset")
	}

	// A new tone must not be octave-corrected against the old one
	if _, err := pt.Analyze(sineFrame(220, 0.3, 44100, 2048, 0)); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !within(pt.Frequency(), 220, 0.02) {
		t.Errorf("frequency after reset = %v, want 220", pt.Frequency())
	}
}

func TestIndependentTrackers(t *testing.T) {
	a := newTestTracker(t, nil)
	b := newTestTracker(t, nil)

	done := make(chan error, 2)
	run := func(pt *PitchTracker, freq float64) {
		for frame := range 5 {
			if _, err := pt.Analyze(sineFrame(freq, 0.3, 44100, 2048, frame)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}

	go run(a, 150)
	go run(b, 600)

	for range 2 {
		if err := <-done; err != nil {
			t.Fatalf("Analyze: %v", err)
		}
	}

	if !within(a.Frequency(), 150, 0.02) || !within(b.Frequency(), 600, 0.02) {
		t.Errorf("trackers interfered: %v, %v", a.Frequency(), b.Frequency())
	}
}
