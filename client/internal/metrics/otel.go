package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	prometheus2 "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// otelMetrics is the OpenTelemetry implementation of UpdateMetrics. Each
// instance owns its registry so exports only contain update metrics.
type otelMetrics struct {
	registry      *prometheus2.Registry
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter

	checks               metric.Int64Counter
	phases               metric.Int64Counter
	verificationFailures metric.Int64Counter
	checkDuration        metric.Float64Histogram
}

func newOtelMetrics() (metricsImplementation, error) {
	registry := prometheus2.NewRegistry()
	exporter, err := prometheus.New(
		prometheus.WithRegisterer(registry),
		prometheus.WithoutScopeInfo(),
		prometheus.WithoutTargetInfo(),
	)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter("parley.client.update")

	checks, err := meter.Int64Counter(
		"parley.update.checks",
		metric.WithDescription("Number of update checks started"),
	)
	if err != nil {
		return nil, err
	}

	phases, err := meter.Int64Counter(
		"parley.update.phase_transitions",
		metric.WithDescription("Number of applied update phase transitions"),
	)
	if err != nil {
		return nil, err
	}

	verificationFailures, err := meter.Int64Counter(
		"parley.update.verification_failures",
		metric.WithDescription("Number of manifests or artifacts rejected by verification"),
	)
	if err != nil {
		return nil, err
	}

	checkDuration, err := meter.Float64Histogram(
		"parley.update.check.duration",
		metric.WithDescription("Duration from check start to its final phase"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		registry:             registry,
		meterProvider:        meterProvider,
		meter:                meter,
		checks:               checks,
		phases:               phases,
		verificationFailures: verificationFailures,
		checkDuration:        checkDuration,
	}, nil
}

func (m *otelMetrics) RecordCheck(ctx context.Context, channel Channel, trigger string) {
	m.checks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel.String()),
		attribute.String("trigger", trigger),
	))
}

func (m *otelMetrics) RecordPhase(ctx context.Context, channel Channel, phase string) {
	m.phases.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel.String()),
		attribute.String("phase", phase),
	))
}

func (m *otelMetrics) RecordVerificationFailure(ctx context.Context, channel Channel, kind string) {
	m.verificationFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel.String()),
		attribute.String("kind", kind),
	))
}

func (m *otelMetrics) RecordCheckDuration(ctx context.Context, channel Channel, outcome string, d time.Duration) {
	m.checkDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("channel", channel.String()),
		attribute.String("outcome", outcome),
	))
}

// Export writes the gathered metric families in Prometheus text format
func (m *otelMetrics) Export(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func (m *otelMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *otelMetrics) Shutdown(ctx context.Context) error {
	if err := m.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider: %w", err)
	}
	return nil
}
