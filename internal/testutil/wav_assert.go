package testutil

import (
	"testing"

	"github.com/example/go-lesson-audio/internal/audio"
)

// DecodeWAV decodes working-format WAV bytes or fails the test.
func DecodeWAV(tb testing.TB, data []byte) []float32 {
	tb.Helper()

	samples, err := audio.DecodeWAV(data)
	if err != nil {
		tb.Fatalf("WAV: %v", err)
	}
	return samples
}

// AssertValidWAV fails unless data is a non-empty WAV in the working format.
func AssertValidWAV(tb testing.TB, data []byte) {
	tb.Helper()

	if len(DecodeWAV(tb, data)) == 0 {
		tb.Fatal("WAV: data chunk contains zero samples")
	}
}

// AssertWAVDurationApprox asserts the decoded duration lies in [minSec, maxSec].
func AssertWAVDurationApprox(tb testing.TB, data []byte, minSec, maxSec float64) {
	tb.Helper()

	d := audio.Seconds(len(DecodeWAV(tb, data)))
	if d < minSec || d > maxSec {
		tb.Fatalf("WAV duration %.3fs out of expected range [%.3fs, %.3fs]", d, minSec, maxSec)
	}
}

// AssertSilent fails unless every sample's magnitude is at most tol.
func AssertSilent(tb testing.TB, samples []float32, tol float32) {
	tb.Helper()

	for i, s := range samples {
		if s > tol || s < -tol {
			tb.Fatalf("sample %d = %v exceeds silence tolerance %v", i, s, tol)
		}
	}
}
