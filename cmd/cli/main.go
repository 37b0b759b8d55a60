package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/waveprint/waveprint/internal/service"
	"github.com/waveprint/waveprint/internal/similarity"
	"github.com/waveprint/waveprint/pkg/logger"
	"github.com/waveprint/waveprint/pkg/models"
)

var (
	dbPath     string
	sampleRate int
	threshold  float64
	ffmpegPath string
)

func init() {
	flag.StringVar(&dbPath, "db", getEnvOrDefault("WAVEPRINT_DB_PATH", "waveprint.sqlite3"), "Path to the SQLite database file")
	flag.IntVar(&sampleRate, "rate", 22050, "Canonical sample rate for processing")
	flag.Float64Var(&threshold, "threshold", 80.0, "Duplicate similarity threshold (0-100)")
	flag.StringVar(&ffmpegPath, "ffmpeg", getEnvOrDefault("WAVEPRINT_FFMPEG", "ffmpeg"), "ffmpeg binary for compressed formats")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func createService() (*service.FingerprintService, error) {
	return service.New(
		service.WithDBPath(dbPath),
		service.WithSampleRate(sampleRate),
		service.WithThreshold(threshold),
		service.WithFFmpegPath(ffmpegPath),
	)
}

func main() {
	// Global flags come before the command; flag.Parse stops at the
	// first non-flag argument.
	flag.Parse()
	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "ingest":
		handleIngest(args)
	case "check":
		handleCheck(args)
	case "compare":
		handleCompare(args)
	case "pending":
		handlePending(args)
	case "review":
		handleReview(args)
	case "matches":
		handleMatches(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`waveprint - audio fingerprinting and duplicate detection

Usage:
  waveprint ingest  <audio-file> -title T -artist A   fingerprint, store and check for duplicates
  waveprint check   <audio-file>                      check against the corpus without storing
  waveprint compare <file-a> <file-b>                 pairwise similarity of two files
  waveprint pending                                   list unreviewed matches, newest first
  waveprint matches <track-id>                        list matches involving a track
  waveprint review  <match-id> -status S -reviewer R [-note N]
                                                      record a review decision

Global flags (before the command): -db, -rate, -threshold, -ffmpeg
`)
}

// splitArgs separates leading positional arguments from trailing flags.
// An empty argument counts as positional.
func splitArgs(args []string, positional int) ([]string, []string) {
	var pos []string
	for len(args) > 0 && len(pos) < positional && !strings.HasPrefix(args[0], "-") {
		pos = append(pos, args[0])
		args = args[1:]
	}
	return pos, args
}

func mustService() *service.FingerprintService {
	svc, err := createService()
	if err != nil {
		logger.Default().Errorf("failed to create service: %v", err)
		os.Exit(1)
	}
	return svc
}

func readAudio(path string) []byte {
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Default().Errorf("reading %s: %v", path, err)
		os.Exit(1)
	}
	return raw
}

func handleIngest(args []string) {
	pos, flagArgs := splitArgs(args, 1)
	if len(pos) != 1 {
		fmt.Println("usage: waveprint ingest <audio-file> -title T -artist A")
		os.Exit(1)
	}

	cmd := flag.NewFlagSet("ingest", flag.ExitOnError)
	title := cmd.String("title", "", "Track title")
	artist := cmd.String("artist", "", "Artist name")
	cmd.Parse(flagArgs)

	svc := mustService()
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := svc.ProcessUpload(ctx, *title, *artist, readAudio(pos[0]))
	if err != nil {
		logger.Default().Errorf("ingest failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("track %s: %d landmarks, %.2fs\n",
		result.TrackID, len(result.Fingerprint.Landmarks), result.Fingerprint.Duration)
	printReport(result.Report)
}

func handleCheck(args []string) {
	pos, _ := splitArgs(args, 1)
	if len(pos) != 1 {
		fmt.Println("usage: waveprint check <audio-file>")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fp, err := svc.GenerateFingerprint(ctx, readAudio(pos[0]))
	if err != nil {
		logger.Default().Errorf("fingerprinting failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("%d landmarks, %.2fs\n", len(fp.Landmarks), fp.Duration)
	printReport(svc.CheckForDuplicates(ctx, fp, -1))
}

func handleCompare(args []string) {
	pos, _ := splitArgs(args, 2)
	if len(pos) != 2 {
		fmt.Println("usage: waveprint compare <file-a> <file-b>")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var fps [2]*models.Fingerprint
	for i, path := range pos {
		fp, err := svc.GenerateFingerprint(ctx, readAudio(path))
		if err != nil {
			logger.Default().Errorf("fingerprinting %s failed: %v", path, err)
			os.Exit(1)
		}
		fps[i] = fp
	}
	fmt.Printf("similarity: %.2f%%\n", similarity.CompareOne(fps[0], fps[1]))
}

func handlePending(args []string) {
	svc := mustService()
	defer svc.Close()

	matches, err := svc.PendingMatches()
	if err != nil {
		logger.Default().Errorf("listing pending matches: %v", err)
		os.Exit(1)
	}
	printMatches(matches)
}

func handleMatches(args []string) {
	pos, _ := splitArgs(args, 1)
	if len(pos) != 1 {
		fmt.Println("usage: waveprint matches <track-id>")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	matches, err := svc.MatchesForTrack(pos[0])
	if err != nil {
		logger.Default().Errorf("listing matches: %v", err)
		os.Exit(1)
	}
	printMatches(matches)
}

func handleReview(args []string) {
	pos, flagArgs := splitArgs(args, 1)
	if len(pos) != 1 {
		fmt.Println("usage: waveprint review <match-id> -status S -reviewer R [-note N]")
		os.Exit(1)
	}

	cmd := flag.NewFlagSet("review", flag.ExitOnError)
	statusRaw := cmd.String("status", "", "CONFIRMED_DUPLICATE, FALSE_POSITIVE or REMIX")
	reviewer := cmd.String("reviewer", "", "Reviewer id")
	note := cmd.String("note", "", "Resolution note")
	cmd.Parse(flagArgs)

	status, ok := models.ParseMatchStatus(*statusRaw)
	if !ok || !status.Terminal() {
		fmt.Println("status must be CONFIRMED_DUPLICATE, FALSE_POSITIVE or REMIX")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	match, err := svc.Review(pos[0], status, *reviewer, *note)
	if err != nil {
		logger.Default().Errorf("review failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("match %s -> %s (reviewed by %s)\n", match.ID, match.Status, *reviewer)
}

func printReport(report *service.DuplicateReport) {
	if len(report.Matches) == 0 {
		fmt.Printf("no duplicates at or above %.2f%%\n", report.Threshold)
		return
	}
	fmt.Printf("%d duplicate candidate(s) at or above %.2f%%:\n", len(report.Matches), report.Threshold)
	for _, m := range report.Matches {
		fmt.Printf("  %6.2f%%  %-36s  %s - %s  (%d landmarks)\n",
			m.Similarity, m.TrackID, m.Artist, m.Title, m.MatchingLandmarks)
	}
}

func printMatches(matches []models.DuplicateMatch) {
	if len(matches) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, m := range matches {
		fmt.Printf("%s  %6.2f%%  %s vs %s  [%s]",
			m.ID, m.Similarity, m.OriginalTrackID, m.CandidateTrackID, m.Status)
		if m.ReviewedBy != nil {
			fmt.Printf("  reviewed by %s", *m.ReviewedBy)
		}
		if m.Note != "" {
			fmt.Printf("  (%s)", m.Note)
		}
		fmt.Println()
	}
}
