package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mjibson/go-dsp/wav"
)

const wavFormatPCM = 1

// WAVSource reads a RIFF/WAVE stream incrementally and down-mixes every
// frame to mono by averaging its channels
type WAVSource struct {
	wav       *wav.Wav
	closer    io.Closer
	channels  int
	remaining int // Interleaved samples left in the data chunk
}

// NewWAVSource parses the WAV header from r. Supported encodings are 8 and
// 16 bit PCM and 32 bit IEEE float.
func NewWAVSource(r io.Reader) (*WAVSource, error) {
	w, err := wav.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read wav header: %w", err)
	}
	if w.NumChannels == 0 || w.SampleRate == 0 {
		return nil, fmt.Errorf("invalid wav header: %d channels at %d Hz", w.NumChannels, w.SampleRate)
	}

	return &WAVSource{
		wav:       w,
		channels:  int(w.NumChannels),
		remaining: w.Samples,
	}, nil
}

// OpenWAV opens path for reading. Close releases the file.
func OpenWAV(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	ws, err := NewWAVSource(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ws.closer = f
	return ws, nil
}

func (ws *WAVSource) Next(buf []float64) error {
	// Only request what the data chunk still holds: a short read would
	// discard the partial tail
	want := min(len(buf)*ws.channels, ws.remaining)
	want -= want % ws.channels
	if want == 0 {
		return ErrExhausted
	}

	samples, err := ws.wav.ReadFloats(want)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			ws.remaining = 0
			return ErrExhausted
		}
		return fmt.Errorf("failed to read wav samples: %w", err)
	}
	ws.remaining -= want

	// ReadFloats maps integer PCM onto [0, 1]
	offset, scale := 0.0, 1.0
	if ws.wav.AudioFormat == wavFormatPCM {
		offset, scale = -1, 2
	}

	frames := want / ws.channels
	for i := range frames {
		sum := 0.0
		for _, v := range samples[i*ws.channels : (i+1)*ws.channels] {
			sum += float64(v)*scale + offset
		}
		buf[i] = sum / float64(ws.channels)
	}
	clear(buf[frames:])

	return nil
}

func (ws *WAVSource) SampleRate() int {
	return int(ws.wav.SampleRate)
}

func (ws *WAVSource) Channels() int {
	return ws.channels
}

func (ws *WAVSource) Close() error {
	if ws.closer == nil {
		return nil
	}
	err := ws.closer.Close()
	ws.closer = nil
	return err
}
