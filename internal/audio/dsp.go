package audio

import "math"

// Fade ramps the edges of clip in place with a raised-cosine curve of ms
// milliseconds. When both edges fade, each ramp is capped at half the clip.
func Fade(clip []float32, ms float64, in, out bool) {
	if !in && !out {
		return
	}
	n := SampleCount(ms / 1000)
	limit := len(clip)
	if in && out {
		limit = len(clip) / 2
	}
	n = min(n, limit)

	last := len(clip) - 1
	for i := 0; i < n; i++ {
		g := float32(0.5 - 0.5*math.Cos(math.Pi*float64(i)/float64(n)))
		if in {
			clip[i] *= g
		}
		if out {
			clip[last-i] *= g
		}
	}
}
