// Package audio normalizes arbitrary input audio into a canonical raw
// waveform: mono float64 samples in [-1, 1] at a fixed sample rate.
package audio

import "io"

// DefaultSampleRate is the canonical rate every decoded stream is
// resampled to before landmark extraction.
const DefaultSampleRate = 22050

// blockSize is the number of samples handed out per Next call.
const blockSize = 4096

// Stream is a pull-based iterator over a decoded waveform. It is produced
// once per upload and consumable exactly once.
type Stream struct {
	sampleRate int
	next       func() ([]float64, error)
	consumed   int64
}

// SampleRate returns the rate of the canonical stream in Hz.
func (s *Stream) SampleRate() int { return s.sampleRate }

// Samples returns the number of samples consumed so far. After the stream
// is drained this is the exact track length in samples.
func (s *Stream) Samples() int64 { return s.consumed }

// Next returns the next block of samples. It returns io.EOF when the
// stream is exhausted; any other error means the underlying decode failed
// mid-stream.
func (s *Stream) Next() ([]float64, error) {
	block, err := s.next()
	s.consumed += int64(len(block))
	if len(block) == 0 && err == nil {
		return nil, io.EOF
	}
	return block, err
}

// newBufferStream wraps fully decoded samples in a Stream that hands them
// out block by block.
func newBufferStream(samples []float64, sampleRate int) *Stream {
	off := 0
	return &Stream{
		sampleRate: sampleRate,
		next: func() ([]float64, error) {
			if off >= len(samples) {
				return nil, io.EOF
			}
			end := off + blockSize
			if end > len(samples) {
				end = len(samples)
			}
			block := samples[off:end]
			off = end
			return block, nil
		},
	}
}

// NewBufferStream exposes the buffered constructor for tests and callers
// that already hold canonical samples.
func NewBufferStream(samples []float64, sampleRate int) *Stream {
	return newBufferStream(samples, sampleRate)
}
