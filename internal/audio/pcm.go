package audio

import "math"

// SampleCount converts a duration in seconds to a whole number of samples at
// the working sample rate, rounding to the nearest sample.
func SampleCount(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds * ExpectedSampleRate))
}

// Seconds converts a working-rate sample count back to seconds.
func Seconds(samples int) float64 {
	return float64(samples) / ExpectedSampleRate
}

// Silence returns a zero-amplitude clip of exactly SampleCount(seconds) samples.
func Silence(seconds float64) []float32 {
	return make([]float32, SampleCount(seconds))
}

// Slice returns a copy of samples[start:end] with bounds clamped to the input.
// The copy keeps fades applied by the caller from leaking into shared buffers.
func Slice(samples []float32, start, end int) []float32 {
	if start < 0 {
		start = 0
	}
	if end > len(samples) {
		end = len(samples)
	}
	if end <= start {
		return []float32{}
	}
	out := make([]float32, end-start)
	copy(out, samples[start:end])
	return out
}
