package source

import (
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-pitch/transcode"
)

// PCMSource steps through decoded mono samples held in memory
type PCMSource struct {
	pcm        []float64
	sampleRate int
	pos        int
}

// NewPCMSource wraps pcm without copying it
func NewPCMSource(pcm []float64, sampleRate int) *PCMSource {
	return &PCMSource{pcm: pcm, sampleRate: sampleRate}
}

// FromAudioData wraps the output of a transcode.Decoder
func FromAudioData(audio *transcode.AudioData) (*PCMSource, error) {
	if audio == nil || len(audio.PCM) == 0 {
		return nil, fmt.Errorf("no decoded audio")
	}
	if audio.Channels != 1 {
		return nil, fmt.Errorf("expected mono audio, got %d channels", audio.Channels)
	}
	return NewPCMSource(audio.PCM, audio.SampleRate), nil
}

func (ps *PCMSource) Next(buf []float64) error {
	if ps.pos >= len(ps.pcm) {
		return ErrExhausted
	}

	n := copy(buf, ps.pcm[ps.pos:])
	clear(buf[n:])
	ps.pos += n
	return nil
}

func (ps *PCMSource) SampleRate() int {
	return ps.sampleRate
}

// Position is the playback time of the next unread sample
func (ps *PCMSource) Position() time.Duration {
	if ps.sampleRate <= 0 {
		return 0
	}
	return time.Duration(ps.pos) * time.Second / time.Duration(ps.sampleRate)
}

// Rewind restarts from the first sample
func (ps *PCMSource) Rewind() {
	ps.pos = 0
}
