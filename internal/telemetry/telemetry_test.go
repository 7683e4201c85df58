package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsExported(t *testing.T) {
	p, err := Setup("lessonaudio-test", nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.MeterProvider)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.Batch(ctx, "google", 120)
	m.Batch(ctx, "google", 80)
	m.BackendError(ctx, "polly")
	m.Stage(ctx, "synthesize", 1500*time.Millisecond)
	m.Job(ctx, "ok")

	rec := httptest.NewRecorder()
	p.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"lessonaudio_batches_total",
		"lessonaudio_billed_characters_total",
		"lessonaudio_backend_errors_total",
		"lessonaudio_jobs_total",
		"lessonaudio_stage_duration_seconds",
		`backend="google"`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.Batch(ctx, "x", 1)
	m.BackendError(ctx, "x")
	m.Stage(ctx, "x", time.Second)
	m.Job(ctx, "ok")

	var p *Provider
	if err := p.Shutdown(ctx); err != nil {
		t.Error(err)
	}
}

func TestSetupTwice(t *testing.T) {
	for i := 0; i < 2; i++ {
		p, err := Setup("x", nil)
		if err != nil {
			t.Fatalf("Setup #%d: %v", i, err)
		}
		_ = p.Shutdown(context.Background())
	}
}
