package audio

// downmix averages interleaved multi-channel samples into a single channel.
func downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	inv := 1.0 / float64(channels)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum * inv
	}
	return mono
}

// resampleLinear converts mono samples from srcRate to dstRate by linear
// interpolation. The landmark representation only needs stable peak
// positions, so a first-order interpolator is enough here; compressed
// formats go through ffmpeg and never reach this path.
func resampleLinear(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen == 0 {
		return nil
	}
	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}
	return out
}
