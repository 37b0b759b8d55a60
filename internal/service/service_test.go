package service

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/waveprint/waveprint/internal/similarity"
	"github.com/waveprint/waveprint/internal/storage"
	"github.com/waveprint/waveprint/pkg/logger"
	"github.com/waveprint/waveprint/pkg/models"
)

const testRate = 22050

// toneWAV synthesizes a mono 16-bit PCM WAV of the given tones.
func toneWAV(t *testing.T, freqs []float64, seconds float64) []byte {
	t.Helper()
	n := int(seconds * testRate)
	amp := 0.8 / float64(len(freqs))
	pcm := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		var v float64
		for _, f := range freqs {
			v += amp * math.Sin(2*math.Pi*f*float64(i)/testRate)
		}
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(v*32767)))
	}

	var buf []byte
	put32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	put16 := func(v uint16) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		buf = append(buf, b[:]...)
	}

	buf = append(buf, "RIFF"...)
	put32(uint32(36 + len(pcm)))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	put32(16)
	put16(1) // PCM
	put16(1) // mono
	put32(testRate)
	put32(testRate * 2)
	put16(2)
	put16(16)
	buf = append(buf, "data"...)
	put32(uint32(len(pcm)))
	return append(buf, pcm...)
}

func quietLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelError, false)
}

func newTestService(t *testing.T, opts ...Option) *FingerprintService {
	t.Helper()
	opts = append([]Option{
		WithDBPath(filepath.Join(t.TempDir(), "svc.sqlite3")),
		WithLogger(quietLogger()),
		WithWorkers(2),
	}, opts...)
	svc, err := New(opts...)
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestProcessUploadFirstTrackNoMatches(t *testing.T) {
	svc := newTestService(t)
	wav := toneWAV(t, []float64{440, 2000}, 2)

	res, err := svc.ProcessUpload(context.Background(), "First", "Artist", wav)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.TrackID == "" {
		t.Fatal("no track id assigned")
	}
	if res.Fingerprint.Empty() {
		t.Fatal("fingerprint is empty")
	}
	if len(res.Report.Matches) != 0 {
		t.Errorf("first upload matched %d tracks against an empty corpus", len(res.Report.Matches))
	}
	if res.Report.Threshold != similarity.DefaultThreshold {
		t.Errorf("threshold = %v, want default %v", res.Report.Threshold, similarity.DefaultThreshold)
	}

	track, err := svc.Track(res.TrackID)
	if err != nil {
		t.Fatalf("track lookup: %v", err)
	}
	if track.Title != "First" || track.Artist != "Artist" {
		t.Errorf("track metadata = %+v", track)
	}
}

func TestProcessUploadDetectsReupload(t *testing.T) {
	svc := newTestService(t)
	wav := toneWAV(t, []float64{440, 2000}, 2)

	first, err := svc.ProcessUpload(context.Background(), "Original", "A", wav)
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	second, err := svc.ProcessUpload(context.Background(), "Re-upload", "B", wav)
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}

	if len(second.Report.Matches) != 1 {
		t.Fatalf("got %d matches for identical audio, want 1", len(second.Report.Matches))
	}
	m := second.Report.Matches[0]
	if m.TrackID != first.TrackID {
		t.Errorf("matched track %s, want %s", m.TrackID, first.TrackID)
	}
	if m.Similarity != 100.00 {
		t.Errorf("similarity = %v, want 100.00", m.Similarity)
	}
	if m.Title != "Original" {
		t.Errorf("match carries title %q, want owner metadata", m.Title)
	}

	pending, err := svc.PendingMatches()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending matches, want 1", len(pending))
	}
	rec := pending[0]
	if rec.OriginalTrackID != first.TrackID || rec.CandidateTrackID != second.TrackID {
		t.Errorf("match record pairs %s vs %s", rec.OriginalTrackID, rec.CandidateTrackID)
	}
	if rec.Status != models.StatusPending {
		t.Errorf("status = %s, want PENDING", rec.Status)
	}
}

func TestProcessUploadDistinctAudio(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.ProcessUpload(context.Background(), "One", "A", toneWAV(t, []float64{440, 2000}, 2)); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	res, err := svc.ProcessUpload(context.Background(), "Two", "B", toneWAV(t, []float64{523, 3100}, 2))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if len(res.Report.Matches) != 0 {
		t.Errorf("distinct audio matched: %+v", res.Report.Matches)
	}
}

func TestProcessUploadNeverMatchesItself(t *testing.T) {
	svc := newTestService(t)
	wav := toneWAV(t, []float64{440, 2000}, 2)

	res, err := svc.ProcessUpload(context.Background(), "Solo", "A", wav)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	for _, m := range res.Report.Matches {
		if m.TrackID == res.TrackID {
			t.Fatal("upload matched its own fingerprint")
		}
	}
}

func TestGenerateFingerprintDeterministic(t *testing.T) {
	svc := newTestService(t)
	wav := toneWAV(t, []float64{440, 2000}, 2)

	a, err := svc.GenerateFingerprint(context.Background(), wav)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := svc.GenerateFingerprint(context.Background(), wav)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(a.Landmarks, b.Landmarks) {
		t.Error("same bytes produced different fingerprints")
	}
}

func TestGenerateFingerprintBadInput(t *testing.T) {
	svc := newTestService(t, WithFFmpegPath("/nonexistent/ffmpeg"))
	_, err := svc.GenerateFingerprint(context.Background(), []byte("not audio at all"))
	var derr *models.DecodeError
	if !errors.As(err, &derr) {
		t.Errorf("got %v, want DecodeError", err)
	}
}

func TestStoreFingerprintRefusesEmpty(t *testing.T) {
	svc := newTestService(t)
	err := svc.StoreFingerprint("some-track", &models.Fingerprint{SampleRate: testRate})
	var serr *models.StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("got %v, want StorageError for empty fingerprint", err)
	}
}

func TestReviewFlow(t *testing.T) {
	svc := newTestService(t)
	wav := toneWAV(t, []float64{440, 2000}, 2)
	if _, err := svc.ProcessUpload(context.Background(), "Original", "A", wav); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if _, err := svc.ProcessUpload(context.Background(), "Copy", "B", wav); err != nil {
		t.Fatalf("second upload: %v", err)
	}

	pending, err := svc.PendingMatches()
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, %v; want one match", pending, err)
	}
	matchID := pending[0].ID

	if _, err := svc.Review(matchID, models.StatusPending, "mod-1", ""); err == nil {
		t.Error("review accepted PENDING as a decision")
	}

	reviewed, err := svc.Review(matchID, models.StatusConfirmedDuplicate, "mod-1", "same recording")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if reviewed.Status != models.StatusConfirmedDuplicate {
		t.Errorf("status = %s", reviewed.Status)
	}
	if reviewed.ReviewedBy == nil || *reviewed.ReviewedBy != "mod-1" {
		t.Error("reviewer not recorded")
	}

	pending, err = svc.PendingMatches()
	if err != nil {
		t.Fatalf("pending after review: %v", err)
	}
	if len(pending) != 0 {
		t.Error("confirmed match still listed as pending")
	}

	matches, err := svc.MatchesForTrack(reviewed.CandidateTrackID)
	if err != nil || len(matches) != 1 {
		t.Fatalf("matches for track = %v, %v", matches, err)
	}
}

func TestReviewUnknownMatch(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Review("no-such-match", models.StatusRemix, "mod-1", "")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

// failingCorpusStore delegates to a real store but fails corpus listing.
type failingCorpusStore struct {
	Storage
}

func (f *failingCorpusStore) GetAllFingerprints() ([]similarity.StoredFingerprint, error) {
	return nil, errors.New("corpus offline")
}

func TestCheckForDuplicatesDegradesOnStorageFailure(t *testing.T) {
	real, err := storage.NewStore(filepath.Join(t.TempDir(), "svc.sqlite3"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	svc, err := New(
		WithStorage(&failingCorpusStore{Storage: real}),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	defer svc.Close()

	fp, err := svc.GenerateFingerprint(context.Background(), toneWAV(t, []float64{440, 2000}, 2))
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	report := svc.CheckForDuplicates(context.Background(), fp, -1)
	if report == nil {
		t.Fatal("check returned nil report")
	}
	if len(report.Matches) != 0 {
		t.Errorf("degraded check returned matches: %+v", report.Matches)
	}
}

func TestProcessUploadSurvivesCorruptCorpusRow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "svc.sqlite3")
	store, err := storage.NewStore(dbPath)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	svc, err := New(WithStorage(store), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	defer svc.Close()

	wav := toneWAV(t, []float64{440, 2000}, 2)
	first, err := svc.ProcessUpload(context.Background(), "Original", "A", wav)
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}

	// Plant a row that cannot be deserialized.
	corrupt := storage.AudioFingerprint{TrackID: "corrupt-track", Landmarks: []byte("{broken")}
	if err := store.DB.Create(&corrupt).Error; err != nil {
		t.Fatalf("planting corrupt row: %v", err)
	}

	second, err := svc.ProcessUpload(context.Background(), "Copy", "B", wav)
	if err != nil {
		t.Fatalf("upload with corrupt corpus row: %v", err)
	}
	if len(second.Report.Matches) != 1 || second.Report.Matches[0].TrackID != first.TrackID {
		t.Fatalf("expected the one real match, got %+v", second.Report.Matches)
	}
	for _, m := range second.Report.Matches {
		if strings.Contains(m.TrackID, "corrupt") {
			t.Error("corrupt row surfaced as a match")
		}
	}
}

func TestCheckForDuplicatesExplicitThreshold(t *testing.T) {
	svc := newTestService(t)
	wav := toneWAV(t, []float64{440, 2000}, 2)
	if _, err := svc.ProcessUpload(context.Background(), "Original", "A", wav); err != nil {
		t.Fatalf("upload: %v", err)
	}

	fp, err := svc.GenerateFingerprint(context.Background(), wav)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	report := svc.CheckForDuplicates(context.Background(), fp, 100.01)
	if report.Threshold != 100.01 {
		t.Errorf("threshold = %v, want the explicit value", report.Threshold)
	}
	if len(report.Matches) != 0 {
		t.Errorf("matches above an impossible threshold: %+v", report.Matches)
	}
}
