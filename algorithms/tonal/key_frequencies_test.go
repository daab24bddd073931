package tonal

import (
	"math"
	"testing"
)

func TestNearestKeyFrequency(t *testing.T) {
	tests := []struct {
		freq float64
		want string
	}{
		{261.0, "C4"},
		{440.0, "A4"},
		{445.0, "A4"},
		{20.0, "E2"},    // below the table
		{2000.0, "C5"},  // above the table
		{95.25, "F#2"},  // exactly between F#2 (92.50) and G2 (98.00): first wins
		{107.0, "A2"},   // nearer A2 than G#2
		{120.1, "B2"},   // nearer B2 than A#2
		{523.25, "C5"},
	}

	for _, tt := range tests {
		if got := NearestKeyFrequency(tt.freq); got.Name != tt.want {
			t.Errorf("NearestKeyFrequency(%v) = %s, want %s", tt.freq, got.Name, tt.want)
		}
	}
}

func TestKeyFrequencyTable(t *testing.T) {
	notes := KeyFrequencies()
	if len(notes) != 33 {
		t.Fatalf("table has %d entries, want 33 (E2..C5)", len(notes))
	}

	for i := 1; i < len(notes); i++ {
		if notes[i].Frequency <= notes[i-1].Frequency {
			t.Fatalf("table not ascending at %s", notes[i].Name)
		}

		// Neighbouring entries are one equal-tempered semitone apart
		if cents := CentsOffset(notes[i].Frequency, notes[i-1].Frequency); math.Abs(cents-100) > 0.5 {
			t.Errorf("%s -> %s is %.2f cents", notes[i-1].Name, notes[i].Name, cents)
		}
	}

	notes[0].Frequency = 1
	if KeyFrequencies()[0].Frequency != 82.41 {
		t.Error("KeyFrequencies exposes the shared table")
	}
}

func TestCentsOffset(t *testing.T) {
	if got := CentsOffset(880, 440); math.Abs(got-1200) > 1e-9 {
		t.Errorf("octave = %v cents", got)
	}
	if got := CentsOffset(440, 440); got != 0 {
		t.Errorf("unison = %v cents", got)
	}
	if got := CentsOffset(0, 440); got != 0 {
		t.Errorf("zero frequency = %v cents", got)
	}
}
