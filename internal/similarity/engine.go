package similarity

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/waveprint/waveprint/pkg/models"
)

// StoredFingerprint is one corpus entry as handed over by the store: the
// owning track's metadata plus the serialized landmark payload. Payloads
// are decoded per comparison so one corrupt row cannot poison the scan.
type StoredFingerprint struct {
	TrackID string
	Title   string
	Artist  string
	Raw     []byte
}

// Logger is the subset of logging the engine needs.
type Logger interface {
	Warnf(format string, args ...any)
}

// Engine runs threshold-filtered corpus scans. The scan is a read-only
// fan-out: the corpus is partitioned across workers and no comparison
// mutates shared state.
type Engine struct {
	workers int
	log     Logger
}

func NewEngine(workers int, log Logger) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{workers: workers, log: log}
}

// CompareAll scores the candidate against every corpus entry and returns
// the entries at or above threshold, ranked by descending similarity.
// A corrupt entry is logged and skipped; the scan always completes for the
// remaining corpus. Cancelling the context abandons unprocessed entries
// and returns what was gathered.
func (e *Engine) CompareAll(ctx context.Context, candidate *models.Fingerprint, corpus []StoredFingerprint, threshold float64) []models.MatchCandidate {
	if candidate.Empty() || len(corpus) == 0 {
		return nil
	}

	candidateKeys := keySet(candidate.Landmarks)

	workers := e.workers
	if workers > len(corpus) {
		workers = len(corpus)
	}

	var (
		mu      sync.Mutex
		matches []models.MatchCandidate
		wg      sync.WaitGroup
	)
	jobs := make(chan StoredFingerprint)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				m, ok := e.compareEntry(candidateKeys, entry, threshold)
				if !ok {
					continue
				}
				mu.Lock()
				matches = append(matches, m)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, entry := range corpus {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- entry:
		}
	}
	close(jobs)
	wg.Wait()

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.MatchingLandmarks != b.MatchingLandmarks {
			return a.MatchingLandmarks > b.MatchingLandmarks
		}
		return a.TrackID < b.TrackID
	})
	return matches
}

func (e *Engine) compareEntry(candidateKeys map[string]struct{}, entry StoredFingerprint, threshold float64) (models.MatchCandidate, bool) {
	landmarks, err := models.DecodeLandmarks(entry.Raw)
	if err != nil {
		if e.log != nil {
			e.log.Warnf("skipping unreadable fingerprint for track %s: %v", entry.TrackID, err)
		}
		return models.MatchCandidate{}, false
	}

	sim, inter := jaccard(candidateKeys, landmarks)
	if sim < threshold {
		return models.MatchCandidate{}, false
	}
	return models.MatchCandidate{
		TrackID:           entry.TrackID,
		Title:             entry.Title,
		Artist:            entry.Artist,
		Similarity:        sim,
		MatchingLandmarks: inter,
	}, true
}
