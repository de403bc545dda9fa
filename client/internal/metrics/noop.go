package metrics

import (
	"context"
	"io"
	"net/http"
	"time"
)

// noopMetrics is a no-op implementation of metricsImplementation
type noopMetrics struct{}

func (s *noopMetrics) RecordCheck(_ context.Context, _ Channel, _ string) {}

func (s *noopMetrics) RecordPhase(_ context.Context, _ Channel, _ string) {}

func (s *noopMetrics) RecordVerificationFailure(_ context.Context, _ Channel, _ string) {}

func (s *noopMetrics) RecordCheckDuration(_ context.Context, _ Channel, _ string, _ time.Duration) {}

func (s *noopMetrics) Export(_ io.Writer) error {
	return nil
}

func (s *noopMetrics) Handler() http.Handler {
	return http.NotFoundHandler()
}

func (s *noopMetrics) Shutdown(_ context.Context) error {
	return nil
}
