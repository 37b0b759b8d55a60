// Package similarity scores fingerprints against each other and scans a
// stored corpus for near-duplicates.
package similarity

import (
	"fmt"
	"math"

	"github.com/waveprint/waveprint/pkg/models"
)

// DefaultThreshold is the similarity percentage at or above which a pair
// is surfaced as a candidate duplicate.
const DefaultThreshold = 80.0

// Key reduces a landmark to the canonical string used for set
// construction. Time is used as an absolute offset, so only landmarks
// aligned at identical positions can match; two recordings differing by a
// fixed lead-in will score artificially low. That limitation is accepted:
// the metric targets re-uploads, not time-shifted excerpts.
func Key(l models.Landmark) string {
	return fmt.Sprintf("%d_%d_%d", l.Time, l.FrequencyZone, l.SpectralPeak)
}

func keySet(landmarks []models.Landmark) map[string]struct{} {
	set := make(map[string]struct{}, len(landmarks))
	for _, l := range landmarks {
		set[Key(l)] = struct{}{}
	}
	return set
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// jaccard returns the similarity percentage and the intersection size of a
// prebuilt key set against a landmark list. Empty-set Jaccard is undefined
// and is 0 by convention here.
func jaccard(a map[string]struct{}, b []models.Landmark) (float64, int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0
	}
	bSet := keySet(b)
	inter := 0
	for k := range bSet {
		if _, ok := a[k]; ok {
			inter++
		}
	}
	union := len(a) + len(bSet) - inter
	return round2(float64(inter) / float64(union) * 100), inter
}

// CompareOne returns the Jaccard similarity of two fingerprints as a
// percentage with two-decimal precision. Either side empty yields 0.
func CompareOne(a, b *models.Fingerprint) float64 {
	if a.Empty() || b.Empty() {
		return 0
	}
	sim, _ := jaccard(keySet(a.Landmarks), b.Landmarks)
	return sim
}
