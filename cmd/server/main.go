package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/waveprint/waveprint/internal/service"
)

var (
	port           int
	dbPath         string
	sampleRate     int
	threshold      float64
	ffmpegPath     string
	allowedOrigins string
	maxUploadMB    int64
)

func init() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("WAVEPRINT_DB_PATH", "waveprint.sqlite3"), "Path to SQLite database")
	flag.IntVar(&sampleRate, "rate", 22050, "Canonical sample rate")
	flag.Float64Var(&threshold, "threshold", 80.0, "Duplicate similarity threshold (0-100)")
	flag.StringVar(&ffmpegPath, "ffmpeg", getEnvOrDefault("WAVEPRINT_FFMPEG", "ffmpeg"), "ffmpeg binary used for compressed formats")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated allowed CORS origins (* for all)")
	flag.Int64Var(&maxUploadMB, "max-upload-mb", 64, "Maximum upload size in MiB")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	svc, err := service.New(
		service.WithDBPath(dbPath),
		service.WithSampleRate(sampleRate),
		service.WithThreshold(threshold),
		service.WithFFmpegPath(ffmpegPath),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer svc.Close()

	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		SampleRate:     sampleRate,
		Threshold:      threshold,
		AllowedOrigins: origins,
		MaxUploadBytes: maxUploadMB << 20,
	}

	server := NewServer(svc, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
