package fingerprint

import "math"

// peak is one locally dominant spectral point inside a frequency band.
type peak struct {
	frame int
	bin   int
	band  int
	mag   float64
}

// Peak picking thresholds.
const (
	// freqNeighbourhood is the +/- bin span of the local-max check.
	freqNeighbourhood = 3
	// minDBAboveAvg is how far above the cross-band average a band
	// maximum must sit to count as a peak.
	minDBAboveAvg = 3.0
	// minPeakDB is an absolute floor on raw STFT magnitude. It is what
	// separates "quiet but real music" from near-silence that should not
	// be stored as an audio identity.
	minPeakDB = 0.0

	epsMag = 1e-10
)

// bandRange is a half-open bin interval [lo, hi) of one frequency band.
type bandRange struct {
	lo, hi int
}

// binBands converts band edges in Hz to FFT bin ranges. Bins outside the
// outermost edges never produce peaks.
func binBands(edges []float64, sampleRate, windowSize, nBins int) []bandRange {
	hzPerBin := float64(sampleRate) / float64(windowSize)
	bands := make([]bandRange, 0, len(edges)-1)
	for i := 0; i+1 < len(edges); i++ {
		lo := int(math.Ceil(edges[i] / hzPerBin))
		hi := int(math.Ceil(edges[i+1] / hzPerBin))
		if lo < 0 {
			lo = 0
		}
		if hi > nBins {
			hi = nBins
		}
		if lo >= hi {
			lo = hi
		}
		bands = append(bands, bandRange{lo: lo, hi: hi})
	}
	return bands
}

func toDB(mag float64) float64 {
	return 20.0 * math.Log10(mag+epsMag)
}

// bandCandidates picks the strongest bin of each band, then drops any that
// fail the adaptive dB threshold, the absolute floor, or the within-frame
// local-max check. Candidates come back ordered by band.
func bandCandidates(mag []float64, bands []bandRange, frameIdx int) []peak {
	maxMag := make([]float64, len(bands))
	maxBin := make([]int, len(bands))
	var sumDB float64
	for bi, b := range bands {
		best := 0.0
		bestBin := b.lo
		for i := b.lo; i < b.hi; i++ {
			if mag[i] > best {
				best = mag[i]
				bestBin = i
			}
		}
		maxMag[bi] = best
		maxBin[bi] = bestBin
		sumDB += toDB(best)
	}
	avgDB := sumDB / float64(len(bands))

	candidates := make([]peak, 0, len(bands))
	for bi := range bands {
		m := maxMag[bi]
		if m <= 0 {
			continue
		}
		db := toDB(m)
		if db < avgDB+minDBAboveAvg || db < minPeakDB {
			continue
		}

		bin := maxBin[bi]
		localMax := true
		for df := -freqNeighbourhood; df <= freqNeighbourhood; df++ {
			i := bin + df
			if df == 0 || i < 0 || i >= len(mag) {
				continue
			}
			if mag[i] > m {
				localMax = false
				break
			}
		}
		if !localMax {
			continue
		}

		candidates = append(candidates, peak{frame: frameIdx, bin: bin, band: bi, mag: m})
	}
	return candidates
}

// confirmPeaks keeps only candidates that are also maximal against the
// neighbouring frames. A nil neighbour (stream boundary) rejects nothing.
func confirmPeaks(candidates []peak, prevMag, nextMag []float64) []peak {
	confirmed := candidates[:0]
	for _, p := range candidates {
		if dominates(p, prevMag) && dominates(p, nextMag) {
			confirmed = append(confirmed, p)
		}
	}
	return confirmed
}

func dominates(p peak, neighbour []float64) bool {
	if neighbour == nil {
		return true
	}
	for df := -freqNeighbourhood; df <= freqNeighbourhood; df++ {
		i := p.bin + df
		if i < 0 || i >= len(neighbour) {
			continue
		}
		if neighbour[i] > p.mag {
			return false
		}
	}
	return true
}
