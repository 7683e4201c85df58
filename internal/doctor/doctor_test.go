package doctor_test

import (
	"context"
	"strings"
	"testing"

	"github.com/example/go-lesson-audio/internal/doctor"
)

func okVersion(v string) doctor.VersionFunc {
	return func() (string, error) { return v, nil }
}

func baseConfig() doctor.Config {
	return doctor.Config{
		FFmpegVersion:  okVersion("ffmpeg version 6.1.1 Copyright"),
		FFprobeVersion: okVersion("ffprobe version 6.1.1 Copyright"),
		Catalog:        func() (int, error) { return 4, nil },
		Backends: []doctor.Backend{
			{Name: "google", Enabled: true, Available: true},
			{Name: "pocket", Enabled: false},
		},
	}
}

// ---------------------------------------------------------------------------
// all-pass scenario
// ---------------------------------------------------------------------------

func TestRun_AllChecksPass(t *testing.T) {
	var out strings.Builder
	result := doctor.Run(context.Background(), baseConfig(), &out)

	if result.Failed() {
		t.Errorf("expected all checks to pass; failures: %v", result.Failures())
	}

	body := out.String()
	for _, want := range []string{"ffmpeg binary", "ffprobe binary", "voice catalog: 4 voices", "backend google: available", "backend pocket: disabled"} {
		if !strings.Contains(body, want) {
			t.Errorf("output missing %q:\n%s", want, body)
		}
	}
}

// ---------------------------------------------------------------------------
// media binaries
// ---------------------------------------------------------------------------

func TestRun_FFmpegMissingFails(t *testing.T) {
	cfg := baseConfig()
	cfg.FFmpegVersion = func() (string, error) { return "", errBinaryNotFound }

	var out strings.Builder
	result := doctor.Run(context.Background(), cfg, &out)

	if !result.Failed() {
		t.Fatal("expected failure when ffmpeg is not found")
	}

	if !hasFailureContaining(result.Failures(), "ffmpeg") {
		t.Errorf("expected failure mentioning ffmpeg, got: %v", result.Failures())
	}
}

func TestRun_FFmpegTooOldFails(t *testing.T) {
	cfg := baseConfig()
	cfg.FFmpegVersion = okVersion("ffmpeg version 3.4.8")

	var out strings.Builder
	result := doctor.Run(context.Background(), cfg, &out)

	if !hasFailureContaining(result.Failures(), "ffmpeg version") {
		t.Errorf("expected version failure, got: %v", result.Failures())
	}
}

func TestRun_NilVersionFuncSkips(t *testing.T) {
	cfg := baseConfig()
	cfg.FFprobeVersion = nil

	var out strings.Builder
	result := doctor.Run(context.Background(), cfg, &out)

	if result.Failed() {
		t.Fatalf("unexpected failures: %v", result.Failures())
	}
	if !strings.Contains(out.String(), "ffprobe binary: skipped") {
		t.Errorf("expected skipped output, got:\n%s", out.String())
	}
}

// ---------------------------------------------------------------------------
// voices
// ---------------------------------------------------------------------------

func TestRun_CatalogErrors(t *testing.T) {
	tests := []struct {
		name    string
		catalog func() (int, error)
		want    string
	}{
		{"load error", func() (int, error) { return 0, sentinelError("bad yaml") }, "bad yaml"},
		{"empty", func() (int, error) { return 0, nil }, "no voices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.Catalog = tt.catalog

			var out strings.Builder
			result := doctor.Run(context.Background(), cfg, &out)
			if !hasFailureContaining(result.Failures(), tt.want) {
				t.Errorf("failures = %v; want %q", result.Failures(), tt.want)
			}
		})
	}
}

func TestRun_MissingVoiceFileFails(t *testing.T) {
	cfg := baseConfig()
	cfg.VoiceFiles = []string{"doctor_test.go", "/nonexistent/voice.safetensors"}

	var out strings.Builder
	result := doctor.Run(context.Background(), cfg, &out)

	if len(result.Failures()) != 1 {
		t.Fatalf("failures = %v; want exactly the missing file", result.Failures())
	}

	if !hasFailureContaining(result.Failures(), "voice file") {
		t.Errorf("expected failure mentioning voice file, got: %v", result.Failures())
	}
}

// ---------------------------------------------------------------------------
// backends
// ---------------------------------------------------------------------------

func TestRun_Backends(t *testing.T) {
	tests := []struct {
		name     string
		backends []doctor.Backend
		want     []string
	}{
		{
			name: "enabled but unavailable",
			backends: []doctor.Backend{
				{Name: "google", Enabled: true, Available: true},
				{Name: "polly", Enabled: true, Available: false},
			},
			want: []string{"backend polly"},
		},
		{
			name: "none available",
			backends: []doctor.Backend{
				{Name: "openai", Enabled: false},
				{Name: "pocket", Enabled: false},
			},
			want: []string{"none available"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.Backends = tt.backends

			var out strings.Builder
			result := doctor.Run(context.Background(), cfg, &out)
			if len(result.Failures()) != len(tt.want) {
				t.Fatalf("failures = %v; want %v", result.Failures(), tt.want)
			}
			for _, w := range tt.want {
				if !hasFailureContaining(result.Failures(), w) {
					t.Errorf("failures = %v; want one containing %q", result.Failures(), w)
				}
			}
		})
	}
}

func TestRun_PocketTTSVersion(t *testing.T) {
	cfg := baseConfig()
	cfg.PocketTTSVersion = func() (string, error) { return "", errBinaryNotFound }

	var out strings.Builder
	result := doctor.Run(context.Background(), cfg, &out)

	if !hasFailureContaining(result.Failures(), "pocket-tts") {
		t.Errorf("expected failure mentioning pocket-tts, got: %v", result.Failures())
	}
}

// ---------------------------------------------------------------------------
// probes
// ---------------------------------------------------------------------------

func TestRun_Probes(t *testing.T) {
	cfg := baseConfig()
	cfg.Probes = []doctor.Probe{
		{Name: "nats", Check: func(context.Context) error { return nil }},
		{Name: "redis", Check: func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return sentinelError("no deadline")
			}
			return sentinelError("connection refused")
		}},
	}

	var out strings.Builder
	result := doctor.Run(context.Background(), cfg, &out)

	if len(result.Failures()) != 1 || !hasFailureContaining(result.Failures(), "redis: connection refused") {
		t.Fatalf("failures = %v", result.Failures())
	}

	body := out.String()
	if !strings.Contains(body, doctor.PassMark+" nats: reachable") {
		t.Errorf("output missing nats pass:\n%s", body)
	}

	if !strings.Contains(body, doctor.FailMark+" redis: unreachable") {
		t.Errorf("output missing redis fail:\n%s", body)
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

var errBinaryNotFound = sentinelError("binary not found")

func hasFailureContaining(failures []string, substr string) bool {
	substr = strings.ToLower(substr)
	for _, f := range failures {
		if strings.Contains(strings.ToLower(f), substr) {
			return true
		}
	}

	return false
}
