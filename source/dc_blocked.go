package source

import "github.com/RyanBlaney/sonido-pitch/algorithms/filters"

// DCBlocked strips any constant offset from the buffers of a wrapped source.
// Microphones and unsigned 8-bit files often carry one, and an offset adds a
// slope to the NSDF that can hide weak peaks.
type DCBlocked struct {
	Source
	filter *filters.DCBlocker
}

// NewDCBlocked wraps src with a DC blocker cutting below cutoff Hz
func NewDCBlocked(src Source, cutoff float64) (*DCBlocked, error) {
	filter, err := filters.NewDCBlocker(src.SampleRate(), cutoff)
	if err != nil {
		return nil, err
	}
	return &DCBlocked{Source: src, filter: filter}, nil
}

func (d *DCBlocked) Next(buf []float64) error {
	if err := d.Source.Next(buf); err != nil {
		return err
	}
	d.filter.ProcessInPlace(buf)
	return nil
}
