package service

import (
	"github.com/waveprint/waveprint/internal/audio"
	"github.com/waveprint/waveprint/internal/similarity"
)

type Config struct {
	DBPath     string
	FFmpegPath string
	SampleRate int
	BandEdges  []float64
	Threshold  float64
	Workers    int
	Logger     Logger
	Storage    Storage
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithFFmpegPath(path string) Option {
	return func(c *Config) {
		c.FFmpegPath = path
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

func WithBandEdges(edges []float64) Option {
	return func(c *Config) {
		c.BandEdges = edges
	}
}

func WithThreshold(threshold float64) Option {
	return func(c *Config) {
		c.Threshold = threshold
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:     "waveprint.sqlite3",
		SampleRate: audio.DefaultSampleRate,
		Threshold:  similarity.DefaultThreshold,
	}
}
