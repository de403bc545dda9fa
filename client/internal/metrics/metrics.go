// Package metrics records update checks and their outcomes for the client debug bundle.
package metrics

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

type metricsImplementation interface {
	RecordCheck(ctx context.Context, channel Channel, trigger string)
	RecordPhase(ctx context.Context, channel Channel, phase string)
	RecordVerificationFailure(ctx context.Context, channel Channel, kind string)
	RecordCheckDuration(ctx context.Context, channel Channel, outcome string, d time.Duration)
	Export(w io.Writer) error
	Handler() http.Handler
	Shutdown(ctx context.Context) error
}

// UpdateMetrics is safe for concurrent use. A nil *UpdateMetrics records nothing.
type UpdateMetrics struct {
	impl    metricsImplementation
	channel atomic.Int32
}

// NewUpdateMetrics returns OpenTelemetry backed metrics, or no-op ones when disabled
func NewUpdateMetrics(enabled bool) *UpdateMetrics {
	if !enabled {
		return &UpdateMetrics{impl: &noopMetrics{}}
	}

	impl, err := newOtelMetrics()
	if err != nil {
		log.Warnf("update metrics disabled: %v", err)
		return &UpdateMetrics{impl: &noopMetrics{}}
	}
	return &UpdateMetrics{impl: impl}
}

// SetChannel changes the channel attached to subsequent records
func (m *UpdateMetrics) SetChannel(c Channel) {
	if m == nil {
		return
	}
	m.channel.Store(int32(c))
}

func (m *UpdateMetrics) currentChannel() Channel {
	return Channel(m.channel.Load())
}

// RecordCheck counts a started check. trigger is "startup", "manual" or "config".
func (m *UpdateMetrics) RecordCheck(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	m.impl.RecordCheck(ctx, m.currentChannel(), trigger)
}

// RecordPhase counts an applied phase transition
func (m *UpdateMetrics) RecordPhase(ctx context.Context, phase string) {
	if m == nil {
		return
	}
	m.impl.RecordPhase(ctx, m.currentChannel(), phase)
}

// RecordVerificationFailure counts a rejected manifest or artifact by error kind
func (m *UpdateMetrics) RecordVerificationFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.impl.RecordVerificationFailure(ctx, m.currentChannel(), kind)
}

// RecordCheckDuration records how long a check took to reach its final phase
func (m *UpdateMetrics) RecordCheckDuration(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.impl.RecordCheckDuration(ctx, m.currentChannel(), outcome, d)
}

// Export writes metrics in Prometheus text format
func (m *UpdateMetrics) Export(w io.Writer) error {
	if m == nil {
		return nil
	}
	return m.impl.Export(w)
}

// Handler serves the metrics for scraping. Disabled metrics answer 404.
func (m *UpdateMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.impl.Handler()
}

// Shutdown flushes and stops the meter provider
func (m *UpdateMetrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.impl.Shutdown(ctx)
}
