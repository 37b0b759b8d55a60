// Package fingerprint turns a canonical waveform stream into a sparse set
// of time-frequency landmarks.
package fingerprint

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Analysis frame geometry.
const (
	WindowSize = 1024
	HopSize    = 256
)

// Hamming returns a Hamming window of length n.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// magnitudeFrame windows one frame in place and returns the magnitude
// spectrum of the positive frequencies.
func magnitudeFrame(frame, window []float64) []float64 {
	for i := range frame {
		frame[i] *= window[i]
	}
	spectrum := fft.FFTReal(frame)
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}
