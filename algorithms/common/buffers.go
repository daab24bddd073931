package common

// RingBuffer is a fixed-length history of the most recent values. It is
// always full: construction fills it with zeros and every Push overwrites
// the oldest entry.
type RingBuffer struct {
	buffer   []float64
	writePos int
}

// NewRingBuffer creates a zero-filled ring of the given length
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{
		buffer: make([]float64, size),
	}
}

// Push overwrites the oldest value and advances the write position
func (rb *RingBuffer) Push(value float64) {
	rb.buffer[rb.writePos] = value
	rb.writePos = (rb.writePos + 1) % len(rb.buffer)
}

// Fill sets every slot to value and rewinds the write position
func (rb *RingBuffer) Fill(value float64) {
	for i := range rb.buffer {
		rb.buffer[i] = value
	}
	rb.writePos = 0
}

// Values returns the backing slice in storage order. Callers must not modify it.
func (rb *RingBuffer) Values() []float64 {
	return rb.buffer
}

// Newest returns the most recently pushed value
func (rb *RingBuffer) Newest() float64 {
	return rb.buffer[(rb.writePos-1+len(rb.buffer))%len(rb.buffer)]
}

// Mean returns the arithmetic mean of the whole window
func (rb *RingBuffer) Mean() float64 {
	return Mean(rb.buffer)
}

// Len returns the fixed window length
func (rb *RingBuffer) Len() int {
	return len(rb.buffer)
}

// WritePos returns the index the next Push will write to
func (rb *RingBuffer) WritePos() int {
	return rb.writePos
}

// Reset zeroes the window
func (rb *RingBuffer) Reset() {
	rb.Fill(0.0)
}
