package spectral

import (
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/RyanBlaney/sonido-pitch/algorithms/common"
)

// Autocorrelation computes the linear (non-circular) autocorrelation
// r[τ] = Σ x[i]·x[i+τ] for τ in [0, len(x)) by way of the Wiener-Khinchin
// theorem. The input is zero padded to a power of two at least 2·len(x) so
// the circular correlation of the FFT does not wrap.
//
// The transform plan and all work buffers are sized at construction; Compute
// does not allocate for inputs up to the prepared length.
type Autocorrelation struct {
	fft      *fourier.FFT
	padded   []float64
	spectrum []complex128
}

// NewAutocorrelation prepares an autocorrelation for inputs of length n
func NewAutocorrelation(n int) *Autocorrelation {
	ac := &Autocorrelation{}
	ac.resize(n)
	return ac
}

func (ac *Autocorrelation) resize(n int) {
	size := common.NextPowerOfTwo(2 * max(n, 1))
	ac.fft = fourier.NewFFT(size)
	ac.padded = make([]float64, size)
	ac.spectrum = make([]complex128, size/2+1)
}

// Len returns the padded transform length
func (ac *Autocorrelation) Len() int {
	return len(ac.padded)
}

// Compute writes r[τ] into out, which must be at least len(x) long
func (ac *Autocorrelation) Compute(x, out []float64) {
	n := len(x)
	if n == 0 {
		return
	}
	if 2*n > len(ac.padded) {
		ac.resize(n)
	}

	copy(ac.padded, x)
	clear(ac.padded[n:])

	ac.fft.Coefficients(ac.spectrum, ac.padded)
	for i, c := range ac.spectrum {
		re, im := real(c), imag(c)
		ac.spectrum[i] = complex(re*re+im*im, 0)
	}

	// gonum's inverse is unnormalized
	ac.fft.Sequence(ac.padded, ac.spectrum)
	scale := 1.0 / float64(len(ac.padded))
	for i := range n {
		out[i] = ac.padded[i] * scale
	}
}
