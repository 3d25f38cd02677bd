package stt

// normalizeSamples converts interleaved int16 PCM into mono float32 in
// [-1, 1], averaging channels. dst is reused when large enough.
func normalizeSamples(dst []float32, samples []int16, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(samples) / channels
	if cap(dst) < frames {
		dst = make([]float32, frames)
	}
	dst = dst[:frames]
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(samples[i*channels+c]) / 32767
		}
		v := sum / float32(channels)
		if v < -1 {
			v = -1
		}
		dst[i] = v
	}
	return dst
}
