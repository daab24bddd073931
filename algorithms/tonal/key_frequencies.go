package tonal

import (
	"math"
)

// Note is a named reference pitch
type Note struct {
	Name      string  `json:"name"`
	Frequency float64 `json:"frequency"` // Hz
}

// keyFrequencies covers the common singing range E2..C5 in 12-TET (A4 = 440 Hz),
// rounded to 0.01 Hz. It is never written after initialization, so concurrent
// trackers may share it.
var keyFrequencies = [...]Note{
	{"E2", 82.41},
	{"F2", 87.31},
	{"F#2", 92.50},
	{"G2", 98.00},
	{"G#2", 103.83},
	{"A2", 110.00},
	{"A#2", 116.54},
	{"B2", 123.47},
	{"C3", 130.81},
	{"C#3", 138.59},
	{"D3", 146.83},
	{"D#3", 155.56},
	{"E3", 164.81},
	{"F3", 174.61},
	{"F#3", 185.00},
	{"G3", 196.00},
	{"G#3", 207.65},
	{"A3", 220.00},
	{"A#3", 233.08},
	{"B3", 246.94},
	{"C4", 261.63},
	{"C#4", 277.18},
	{"D4", 293.66},
	{"D#4", 311.13},
	{"E4", 329.63},
	{"F4", 349.23},
	{"F#4", 369.99},
	{"G4", 392.00},
	{"G#4", 415.30},
	{"A4", 440.00},
	{"A#4", 466.16},
	{"B4", 493.88},
	{"C5", 523.25},
}

// KeyFrequencies returns a copy of the key frequency table in ascending order
func KeyFrequencies() []Note {
	notes := make([]Note, len(keyFrequencies))
	copy(notes, keyFrequencies[:])
	return notes
}

// NearestKeyFrequency returns the table entry with the smallest absolute
// distance in Hz. Ties resolve to the entry that comes first in the table.
func NearestKeyFrequency(frequency float64) Note {
	closest := keyFrequencies[0]
	minDiff := math.Abs(frequency - closest.Frequency)

	for _, note := range keyFrequencies[1:] {
		diff := math.Abs(frequency - note.Frequency)
		if diff < minDiff {
			minDiff = diff
			closest = note
		}
	}

	return closest
}

// CentsOffset returns how far frequency lies from reference in cents
// (1/100 of an equal-tempered semitone). Non-positive inputs yield 0.
func CentsOffset(frequency, reference float64) float64 {
	if frequency <= 0 || reference <= 0 {
		return 0.0
	}
	return 1200.0 * math.Log2(frequency/reference)
}
