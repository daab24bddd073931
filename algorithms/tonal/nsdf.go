package tonal

import (
	"github.com/RyanBlaney/sonido-pitch/algorithms/common"
	"github.com/RyanBlaney/sonido-pitch/algorithms/spectral"
)

// nsdfEpsilon keeps the NSDF finite when the window is silent
const nsdfEpsilon = 1e-20

// nsdfComputer evaluates the normalized square difference function
//
//	nsdf[τ] = 2·Σ x[i]·x[i+τ] / (Σ x[i]² + Σ x[i+τ]²),  i in [0, n-τ)
//
// into a caller-owned buffer. All scratch space is allocated up front.
type nsdfComputer struct {
	method   NSDFMethod
	autocorr *spectral.Autocorrelation
	acf      []float64
}

func newNSDFComputer(method NSDFMethod, size int) *nsdfComputer {
	nc := &nsdfComputer{method: method}
	if method == NSDFFFT {
		nc.autocorr = spectral.NewAutocorrelation(size)
		nc.acf = make([]float64, size)
	}
	return nc
}

// compute writes the NSDF of x into nsdf, both of the same length
func (nc *nsdfComputer) compute(x, nsdf []float64) {
	switch nc.method {
	case NSDFFFT:
		nc.computeFFT(x, nsdf)
	default:
		computeNSDFDirect(x, nsdf)
	}
}

func computeNSDFDirect(x, nsdf []float64) {
	n := len(x)
	for tau := range n {
		acf := 0.0
		m0 := 0.0
		m1 := 0.0

		for i := 0; i < n-tau; i++ {
			a := x[i]
			b := x[i+tau]
			acf += a * b
			m0 += a * a
			m1 += b * b
		}

		nsdf[tau] = 2.0 * acf / (m0 + m1 + nsdfEpsilon)
	}
}

// computeFFT takes the autocorrelation from the FFT and maintains the energy
// term incrementally: going from τ to τ+1 drops x[τ]² and x[n-1-τ]².
func (nc *nsdfComputer) computeFFT(x, nsdf []float64) {
	n := len(x)
	nc.autocorr.Compute(x, nc.acf)

	m := 0.0
	for _, v := range x {
		m += 2.0 * v * v
	}

	for tau := range n {
		if m < 0 {
			m = 0
		}

		// FFT round-off is not bounded by Cauchy-Schwarz at long lags, where m is tiny
		nsdf[tau] = common.Clamp(2.0*nc.acf[tau]/(m+nsdfEpsilon), -1.0, 1.0)

		m -= x[tau]*x[tau] + x[n-1-tau]*x[n-1-tau]
	}
}

// peakSearch holds the outcome of scanning a normalized NSDF for key maxima
type peakSearch struct {
	peaks    []int   // every local maximum in scan order
	maxValue float64 // height of the tallest local maximum
	selected int     // first peak above threshold·maxValue, or -1
}

// findPeaks scans lags [2, maxLag] for local maxima
// (nsdf[i] > nsdf[i-1] && nsdf[i] >= nsdf[i+1]) and selects the first whose
// height exceeds threshold times the tallest one. Earlier peaks correspond to
// shorter periods, so this favours the fundamental over its subharmonics.
// peaks is reused as the backing store of the result.
func findPeaks(nsdf []float64, maxLag int, threshold float64, peaks []int) peakSearch {
	result := peakSearch{
		peaks:    peaks[:0],
		selected: -1,
	}

	maxLag = min(maxLag, len(nsdf)-2)
	for i := 2; i <= maxLag; i++ {
		v := nsdf[i]
		if v > nsdf[i-1] && v >= nsdf[i+1] {
			result.peaks = append(result.peaks, i)
			if v > result.maxValue {
				result.maxValue = v
			}
		}
	}

	if result.maxValue <= 0 {
		return result
	}

	cutoff := threshold * result.maxValue
	for _, i := range result.peaks {
		if nsdf[i] > cutoff {
			result.selected = i
			break
		}
	}

	return result
}
