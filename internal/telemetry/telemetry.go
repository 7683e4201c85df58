// Package telemetry exposes pipeline metrics through an OpenTelemetry meter
// provider backed by a Prometheus exporter.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "github.com/example/go-lesson-audio"

// Provider owns the meter provider and the /metrics handler serving it.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Handler       http.Handler
}

// Setup creates a meter provider exporting to a private Prometheus registry.
func Setup(serviceName string, log *slog.Logger) (*Provider, error) {
	reg := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	if log != nil {
		log.Info("telemetry initialized", slog.String("exporter", "prometheus"))
	}
	return &Provider{
		MeterProvider: mp,
		Handler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, nil
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.MeterProvider == nil {
		return nil
	}
	return p.MeterProvider.Shutdown(ctx)
}

// Metrics records pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	jobs          metric.Int64Counter
	batches       metric.Int64Counter
	billedChars   metric.Int64Counter
	backendErrors metric.Int64Counter
	stageSeconds  metric.Float64Histogram
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	var (
		m   Metrics
		err error
	)
	if m.jobs, err = meter.Int64Counter("lessonaudio.jobs",
		metric.WithDescription("Finished render jobs by outcome.")); err != nil {
		return nil, err
	}
	if m.batches, err = meter.Int64Counter("lessonaudio.batches",
		metric.WithDescription("Synthesis batches sent, by backend.")); err != nil {
		return nil, err
	}
	if m.billedChars, err = meter.Int64Counter("lessonaudio.billed_characters",
		metric.WithDescription("Characters billed by synthesis backends.")); err != nil {
		return nil, err
	}
	if m.backendErrors, err = meter.Int64Counter("lessonaudio.backend_errors",
		metric.WithDescription("Failed synthesis batches, by backend.")); err != nil {
		return nil, err
	}
	if m.stageSeconds, err = meter.Float64Histogram("lessonaudio.stage.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Pipeline stage wall time.")); err != nil {
		return nil, err
	}
	return &m, nil
}

func backendAttr(backend string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("backend", backend))
}

func (m *Metrics) Batch(ctx context.Context, backend string, billedChars int) {
	if m == nil {
		return
	}
	m.batches.Add(ctx, 1, backendAttr(backend))
	m.billedChars.Add(ctx, int64(billedChars), backendAttr(backend))
}

func (m *Metrics) BackendError(ctx context.Context, backend string) {
	if m == nil {
		return
	}
	m.backendErrors.Add(ctx, 1, backendAttr(backend))
}

func (m *Metrics) Stage(ctx context.Context, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageSeconds.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *Metrics) Job(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
