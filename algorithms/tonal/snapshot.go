package tonal

// AnalysisSnapshot captures the intermediate data of one Analyze call for
// visualization and debugging
type AnalysisSnapshot struct {
	Frame               uint64    `json:"frame"`
	Samples             []float64 `json:"samples"`              // Input after PreGain
	NSDF                []float64 `json:"nsdf"`                 // Normalized NSDF, empty when gated by the noise floor
	PeakIndices         []int     `json:"peak_indices"`         // Every key maximum found
	MaxValue            float64   `json:"max_value"`            // Tallest peak height
	Threshold           float64   `json:"threshold"`            // ClarityThreshold * MaxValue
	SelectedPeakIndex   int       `json:"selected_peak_index"`  // -1 when nothing qualified
	RefinedLag          float64   `json:"refined_lag"`          // Selected lag after interpolation
	RawFrequency        float64   `json:"raw_frequency"`        // Clamped, before stabilization
	StabilizedFrequency float64   `json:"stabilized_frequency"` // 0 when the stabilizer was not fed
	RMS                 float64   `json:"rms"`                  // Unsmoothed RMS of this call
}

// snapshotArena records into buffers allocated once so enabling snapshots
// does not allocate per call
type snapshotArena struct {
	data      AnalysisSnapshot
	samples   []float64
	nsdf      []float64
	peaks     []int
	hasNSDF   bool
	populated bool
}

func newSnapshotArena(bufferSize, maxPeaks int) *snapshotArena {
	return &snapshotArena{
		samples: make([]float64, bufferSize),
		nsdf:    make([]float64, bufferSize),
		peaks:   make([]int, 0, maxPeaks),
	}
}

func (sa *snapshotArena) begin(frame uint64, samples []float64, rms float64) {
	copy(sa.samples, samples)
	sa.peaks = sa.peaks[:0]
	sa.hasNSDF = false
	sa.populated = true
	sa.data = AnalysisSnapshot{
		Frame:             frame,
		SelectedPeakIndex: -1,
		RMS:               rms,
	}
}

func (sa *snapshotArena) recordSearch(nsdf []float64, search peakSearch, clarityThreshold float64) {
	copy(sa.nsdf, nsdf)
	sa.hasNSDF = true
	sa.peaks = append(sa.peaks, search.peaks...)
	sa.data.MaxValue = search.maxValue
	sa.data.Threshold = clarityThreshold * search.maxValue
	sa.data.SelectedPeakIndex = search.selected
}

func (sa *snapshotArena) reset() {
	sa.populated = false
	sa.hasNSDF = false
	sa.peaks = sa.peaks[:0]
	sa.data = AnalysisSnapshot{}
}

// Snapshot returns a deep copy of the data recorded by the last Analyze call.
// ok is false when EnableSnapshot is off or nothing has been analyzed yet.
func (pt *PitchTracker) Snapshot() (AnalysisSnapshot, bool) {
	if pt.snapshot == nil || !pt.snapshot.populated {
		return AnalysisSnapshot{}, false
	}

	sa := pt.snapshot
	snap := sa.data
	snap.Samples = append([]float64(nil), sa.samples...)
	snap.PeakIndices = append([]int{}, sa.peaks...)
	if sa.hasNSDF {
		snap.NSDF = append([]float64(nil), sa.nsdf...)
	} else {
		snap.NSDF = []float64{}
	}

	return snap, true
}
