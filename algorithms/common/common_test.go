package common

import (
	"math"
	"testing"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name string
		data []float64
		want float64
	}{
		{"empty", nil, 0},
		{"odd", []float64{220, 880, 219, 221, 0}, 220},
		{"even", []float64{1, 4, 2, 3}, 2.5},
		{"single", []float64{440}, 440},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append([]float64(nil), tt.data...)
			if got := Median(data, nil); got != tt.want {
				t.Errorf("Median(%v) = %v, want %v", tt.data, got, tt.want)
			}
			for i := range data {
				if data[i] != tt.data[i] {
					t.Fatalf("Median reordered its input: %v", data)
				}
			}
		})
	}
}

func TestMedianUsesScratch(t *testing.T) {
	scratch := make([]float64, 8)
	data := []float64{5, 1, 3}

	allocs := testing.AllocsPerRun(100, func() {
		Median(data, scratch)
	})
	if allocs != 0 {
		t.Errorf("Median with scratch allocated %v times per run", allocs)
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v", got)
	}

	n := 4410
	sine := make([]float64, n)
	for i := range sine {
		sine[i] = 0.5 * math.Sin(2*math.Pi*100*float64(i)/44100)
	}
	want := 0.5 / math.Sqrt2
	if got := RMS(sine); math.Abs(got-want) > 1e-3 {
		t.Errorf("RMS(sine) = %v, want %v", got, want)
	}
}

func TestCoefficientOfVariation(t *testing.T) {
	if got := CoefficientOfVariation([]float64{220, 220, 220}); got != 0 {
		t.Errorf("constant series cv = %v, want 0", got)
	}
	if got := CoefficientOfVariation([]float64{0, 0, 0}); got != 0 {
		t.Errorf("zero series cv = %v, want 0", got)
	}
	if got := CoefficientOfVariation([]float64{100, 300}); got <= 0 {
		t.Errorf("varying series cv = %v, want > 0", got)
	}
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(3)

	if rb.Len() != 3 || rb.Mean() != 0 {
		t.Fatalf("new ring not zero-filled: %v", rb.Values())
	}

	rb.Push(3)
	if got := rb.Mean(); got != 1 {
		t.Errorf("mean after one push = %v, want 1", got)
	}

	rb.Push(6)
	rb.Push(9)
	rb.Push(12) // overwrites the 3

	if got := rb.Mean(); got != 9 {
		t.Errorf("mean after wrap = %v, want 9", got)
	}
	if got := rb.Newest(); got != 12 {
		t.Errorf("newest = %v, want 12", got)
	}
	if got := rb.WritePos(); got != 1 {
		t.Errorf("write position = %d, want 1", got)
	}

	rb.Fill(2)
	if rb.WritePos() != 0 || rb.Mean() != 2 {
		t.Errorf("fill: pos=%d mean=%v", rb.WritePos(), rb.Mean())
	}

	rb.Reset()
	if rb.Mean() != 0 {
		t.Errorf("reset ring mean = %v", rb.Mean())
	}
}

func TestParabolicOffset(t *testing.T) {
	// y = -(x-10.25)^2 sampled at integers peaks between 10 and 11
	data := make([]float64, 20)
	for i := range data {
		d := float64(i) - 10.25
		data[i] = -d * d
	}

	if got := ParabolicOffset(data, 10); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("offset = %v, want 0.25", got)
	}
	if got := ParabolicOffset(data, 0); got != 0 {
		t.Errorf("edge offset = %v, want 0", got)
	}
	if got := ParabolicOffset([]float64{1, 1, 1}, 1); got != 0 {
		t.Errorf("flat offset = %v, want 0", got)
	}
}

func TestNormalizeByMax(t *testing.T) {
	data := []float64{2, 1, -1, 0.5}
	peak := NormalizeByMax(data, 0)
	if peak != 2 {
		t.Errorf("peak = %v, want 2", peak)
	}
	if data[0] != 1 || data[1] != 0.5 {
		t.Errorf("normalized = %v", data)
	}

	zeros := make([]float64, 4)
	NormalizeByMax(zeros, 1e-20)
	for _, v := range zeros {
		if v != 0 || math.IsNaN(v) {
			t.Fatalf("zero input normalized to %v", zeros)
		}
	}
}

func TestClampLerp(t *testing.T) {
	if Clamp(1200, 80, 1000) != 1000 || Clamp(40, 80, 1000) != 80 || Clamp(220, 80, 1000) != 220 {
		t.Error("Clamp out of range")
	}
	if Lerp(200, 300, 0.2) != 220 {
		t.Errorf("Lerp = %v", Lerp(200, 300, 0.2))
	}
	if NextPowerOfTwo(2048) != 2048 || NextPowerOfTwo(2000) != 2048 {
		t.Error("power of two helpers")
	}
}
