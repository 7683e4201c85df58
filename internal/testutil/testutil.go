// Package testutil provides shared skip helpers and fixtures for tests.
//
// Each Require helper calls t.Skip with a clear human-readable reason when
// the named prerequisite is absent, so integration tests remain runnable in
// partial environments without failing noisily.
//
// Typical usage:
//
//	func TestAssembleIntegration(t *testing.T) {
//	    testutil.RequireFFmpeg(t)
//	    ...
//	}
package testutil

import (
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/example/go-lesson-audio/internal/audio"
	"github.com/example/go-lesson-audio/internal/voice"
)

// RequirePocketTTS skips the test if the pocket-tts binary is not found in
// PATH or the path given by LESSONAUDIO_POCKET_EXECUTABLE_PATH.
func RequirePocketTTS(tb testing.TB) {
	tb.Helper()

	exe := os.Getenv("LESSONAUDIO_POCKET_EXECUTABLE_PATH")
	if exe == "" {
		exe = "pocket-tts"
	}

	if _, err := exec.LookPath(exe); err != nil {
		tb.Skipf("pocket-tts binary not available (%q not in PATH); set LESSONAUDIO_POCKET_EXECUTABLE_PATH to override", exe)
	}
}

// RequireFFmpeg skips the test unless both ffmpeg and ffprobe are runnable.
func RequireFFmpeg(tb testing.TB) {
	tb.Helper()

	for _, name := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(name); err != nil {
			tb.Skipf("%s not available in PATH", name)
		}
	}
}

// RequireEnv skips the test when the variable is unset and returns its value.
func RequireEnv(tb testing.TB, key string) string {
	tb.Helper()

	v := os.Getenv(key)
	if v == "" {
		tb.Skipf("%s not set", key)
	}
	return v
}

// RequireVoiceFile skips the test if the voice cannot be resolved to a local
// file through the given manifest.
func RequireVoiceFile(tb testing.TB, manifestPath, id string) {
	tb.Helper()

	cat, err := voice.Load(manifestPath)
	if err != nil {
		tb.Skipf("voice manifest not available at %q: %v", manifestPath, err)
		return
	}

	if _, err := cat.ResolvePath(id); err != nil {
		tb.Skipf("voice %q not available: %v", id, err)
	}
}

// Tone returns a working-rate sine wave, handy as stand-in speech.
func Tone(seconds, freq float64) []float32 {
	n := audio.SampleCount(seconds)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/audio.ExpectedSampleRate))
	}
	return out
}

// ToneWAV encodes Tone as working-format WAV bytes.
func ToneWAV(tb testing.TB, seconds, freq float64) []byte {
	tb.Helper()

	data, err := audio.EncodeWAV(Tone(seconds, freq))
	if err != nil {
		tb.Fatalf("EncodeWAV: %v", err)
	}
	return data
}

// WriteFile writes data under a fresh temp dir and returns the path.
func WriteFile(tb testing.TB, name string, data []byte) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("WriteFile: %v", err)
	}
	return path
}
