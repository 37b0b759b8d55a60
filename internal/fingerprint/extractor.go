package fingerprint

import (
	"context"
	"io"
	"sort"

	"github.com/waveprint/waveprint/internal/audio"
	"github.com/waveprint/waveprint/pkg/models"
)

// Pairing policy.
const (
	// FanOut caps how many landmarks a single anchor peak contributes.
	FanOut = 6
	// MaxPairDeltaFrames bounds the time distance between paired peaks.
	// At 22050 Hz and a 256-sample hop this is roughly three quarters of
	// a second.
	MaxPairDeltaFrames = 64

	// targetBinBits is the width of the target-bin field inside
	// Landmark.SpectralPeak. 9 bits fit the 512 positive-frequency bins
	// of a 1024-sample window.
	targetBinBits = 9
)

// DefaultBandEdges partition 200-6400 Hz, the perceptually dense region of
// most music, into five bands.
var DefaultBandEdges = []float64{200, 400, 800, 1600, 3200, 6400}

// Config carries the extraction parameters.
type Config struct {
	// SampleRate of the incoming stream. Zero means audio.DefaultSampleRate.
	SampleRate int
	// BandEdges are the Hz boundaries of the peak bands, low to high.
	// Nil means DefaultBandEdges.
	BandEdges []float64
}

func (c Config) sampleRate() int {
	if c.SampleRate > 0 {
		return c.SampleRate
	}
	return audio.DefaultSampleRate
}

func (c Config) bandEdges() []float64 {
	if len(c.BandEdges) >= 2 {
		return c.BandEdges
	}
	return DefaultBandEdges
}

// anchorPeak is a confirmed peak still eligible to anchor new landmarks.
type anchorPeak struct {
	peak
	paired int
}

// Extract consumes a canonical stream exactly once and produces the
// track's fingerprint. The stream is processed incrementally: samples are
// framed as they arrive and never accumulated beyond one analysis window
// of lookahead, preserving backpressure toward the decoder.
//
// A stream too short or too quiet to yield any peak pair returns a
// *models.ExtractionError, never an empty-but-valid fingerprint.
func Extract(ctx context.Context, stream *audio.Stream, cfg Config) (*models.Fingerprint, error) {
	sampleRate := cfg.sampleRate()
	window := Hamming(WindowSize)
	bands := binBands(cfg.bandEdges(), sampleRate, WindowSize, WindowSize/2)
	numBands := len(bands)

	var (
		landmarks []models.Landmark
		anchors   []anchorPeak

		// One frame of lookahead: peaks of frame t are confirmed only
		// after frame t+1's spectrum is known.
		prevMag, curMag []float64
		pending         []peak

		buf      []float64
		frameIdx int
	)

	flush := func(nextMag []float64) {
		confirmed := confirmPeaks(pending, prevMag, nextMag)
		landmarks, anchors = pairPeaks(landmarks, anchors, confirmed, numBands)
		prevMag = curMag
		curMag = nextMag
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		block, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		buf = append(buf, block...)

		for len(buf) >= WindowSize {
			frame := make([]float64, WindowSize)
			copy(frame, buf[:WindowSize])
			mag := magnitudeFrame(frame, window)

			flush(mag)
			pending = bandCandidates(mag, bands, frameIdx)

			buf = buf[HopSize:]
			frameIdx++
		}
	}
	// Final frame has no right neighbour.
	flush(nil)

	if len(landmarks) == 0 {
		return nil, &models.ExtractionError{Reason: "no landmarks: audio is too short or too quiet"}
	}

	sort.Slice(landmarks, func(i, j int) bool {
		a, b := landmarks[i], landmarks[j]
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if a.FrequencyZone != b.FrequencyZone {
			return a.FrequencyZone < b.FrequencyZone
		}
		return a.SpectralPeak < b.SpectralPeak
	})

	return &models.Fingerprint{
		Landmarks:  landmarks,
		Duration:   float64(stream.Samples()) / float64(sampleRate),
		SampleRate: sampleRate,
	}, nil
}

// pairPeaks emits a landmark for every (anchor, target) pair that spans
// two distinct bands within the delta window, then registers the new peaks
// as anchors themselves. Same-frame pairs are allowed; the anchor is
// always the earlier (or lower-band) peak.
func pairPeaks(landmarks []models.Landmark, anchors []anchorPeak, confirmed []peak, numBands int) ([]models.Landmark, []anchorPeak) {
	for _, p := range confirmed {
		for i := range anchors {
			a := &anchors[i]
			if a.paired >= FanOut || a.band == p.band {
				continue
			}
			delta := p.frame - a.frame
			if delta > MaxPairDeltaFrames {
				continue
			}
			landmarks = append(landmarks, models.Landmark{
				Time:          a.frame,
				FrequencyZone: a.band*numBands + p.band,
				SpectralPeak:  delta<<targetBinBits | p.bin,
			})
			a.paired++
		}
		anchors = append(anchors, anchorPeak{peak: p})
	}

	// Drop anchors that can no longer pair with anything.
	if len(confirmed) > 0 {
		horizon := confirmed[len(confirmed)-1].frame - MaxPairDeltaFrames
		keep := anchors[:0]
		for _, a := range anchors {
			if a.frame >= horizon && a.paired < FanOut {
				keep = append(keep, a)
			}
		}
		anchors = keep
	}
	return landmarks, anchors
}
