package source

import (
	"sync"
	"sync/atomic"
)

// Stream adapts push-style producers such as audio device callbacks to the
// pull-style Source interface. Pushed chunks wait in a bounded queue; when
// the consumer falls behind, new chunks are dropped instead of blocking the
// producer.
type Stream struct {
	sampleRate int
	chunks     chan []float32
	pending    []float32

	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewStream creates a stream that queues up to capacity chunks
func NewStream(sampleRate, capacity int) *Stream {
	return &Stream{
		sampleRate: max(sampleRate, 0),
		chunks:     make(chan []float32, max(capacity, 1)),
		done:       make(chan struct{}),
	}
}

// Push copies samples into the queue. It never blocks and reports false when
// the chunk was dropped because the queue was full or the stream closed.
func (s *Stream) Push(samples []float32) bool {
	if len(samples) == 0 {
		return true
	}

	select {
	case <-s.done:
		return false
	default:
	}

	chunk := append([]float32(nil), samples...)
	select {
	case s.chunks <- chunk:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Next blocks until buf is full or the stream is closed. A buffer cut short
// by Close is discarded and ErrExhausted returned.
func (s *Stream) Next(buf []float64) error {
	filled := 0
	for filled < len(buf) {
		if len(s.pending) == 0 {
			select {
			case chunk := <-s.chunks:
				s.pending = chunk
			case <-s.done:
				return ErrExhausted
			}
		}

		n := min(len(s.pending), len(buf)-filled)
		for i, v := range s.pending[:n] {
			buf[filled+i] = float64(v)
		}
		filled += n
		s.pending = s.pending[n:]
	}
	return nil
}

func (s *Stream) SampleRate() int {
	return s.sampleRate
}

// Dropped counts chunks discarded by Push
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Done is closed once the stream is closed
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close unblocks Next. Safe to call more than once and from any goroutine.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
