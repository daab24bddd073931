// Package source produces fixed-size sample buffers for a PitchTracker.
//
// Every implementation fills the caller's buffer completely on success so
// the result can go straight to Analyze. Finite inputs zero-pad their last
// buffer and then return ErrExhausted.
package source

import "errors"

// ErrExhausted is returned by Next once a source has no more samples
var ErrExhausted = errors.New("source exhausted")

// Source yields consecutive buffers of mono samples
type Source interface {
	// Next fills buf with the next len(buf) samples
	Next(buf []float64) error

	// SampleRate of the produced samples in Hz
	SampleRate() int
}
