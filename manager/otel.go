package manager

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/knograph/kgcoord/kg"
)

// managerMetrics holds the OpenTelemetry instruments for the escalation
// pipeline. Created once at construction and reused for every request.
type managerMetrics struct {
	// requestCounter increments per processed escalation.
	requestCounter metric.Int64Counter

	// conflictCounter counts auto-resolved conflicts.
	conflictCounter metric.Int64Counter

	// rollbackCounter counts requests that triggered a rollback.
	rollbackCounter metric.Int64Counter

	// durationHistogram records pipeline duration in milliseconds.
	durationHistogram metric.Float64Histogram
}

func newManagerMetrics(meter metric.Meter) (*managerMetrics, error) {
	m := &managerMetrics{}
	var err error

	m.requestCounter, err = meter.Int64Counter(
		"kgcoord.requests",
		metric.WithDescription("Number of escalation requests processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}

	m.conflictCounter, err = meter.Int64Counter(
		"kgcoord.conflicts_resolved",
		metric.WithDescription("Number of automatically resolved conflicts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create conflict counter: %w", err)
	}

	m.rollbackCounter, err = meter.Int64Counter(
		"kgcoord.rollbacks",
		metric.WithDescription("Number of escalations that triggered a rollback"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rollback counter: %w", err)
	}

	m.durationHistogram, err = meter.Float64Histogram(
		"kgcoord.request_duration",
		metric.WithDescription("Escalation pipeline duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return m, nil
}

// recordMetrics captures per-request observability data. A nil metrics
// struct means no meter was configured; the call is then a no-op.
func (m *Manager) recordMetrics(ctx context.Context, req kg.UpdateRequest, result kg.UpdateResult, elapsed time.Duration) {
	if m.metrics == nil {
		return
	}

	opts := metric.WithAttributes(
		attribute.String("update_type", string(req.UpdateType)),
		attribute.String("domain", req.Domain),
		attribute.Bool("success", result.Success),
	)

	m.metrics.requestCounter.Add(ctx, 1, opts)
	if result.ConflictsResolved > 0 {
		m.metrics.conflictCounter.Add(ctx, int64(result.ConflictsResolved), opts)
	}
	if result.RollbackPerformed {
		m.metrics.rollbackCounter.Add(ctx, 1, opts)
	}
	m.metrics.durationHistogram.Record(ctx, float64(elapsed.Milliseconds()), opts)
}
