package task

import (
	"context"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the OTEL scope for task spans and metrics.
const InstrumentationName = "github.com/fyrsmithlabs/escrowd/internal/task"

// Metrics records task lifecycle counters.
type Metrics struct {
	createdTotal     metric.Int64Counter
	lockedAmount     metric.Int64Counter
	allocationsTotal metric.Int64Counter
	allocationSize   metric.Int64Histogram
	claimsTotal      metric.Int64Counter
	claimedAmount    metric.Int64Counter
	rejectionsTotal  metric.Int64Counter

	initialized bool
}

// NewMetrics creates instruments on meter, or on the global meter if nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.createdTotal, err = meter.Int64Counter(
		"escrowd.task.created.total",
		metric.WithDescription("Tasks created with funds locked"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	m.lockedAmount, err = meter.Int64Counter(
		"escrowd.task.locked.amount",
		metric.WithDescription("Asset locked into task vaults"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, err
	}

	m.allocationsTotal, err = meter.Int64Counter(
		"escrowd.task.allocations.total",
		metric.WithDescription("Allocations committed"),
		metric.WithUnit("{allocation}"),
	)
	if err != nil {
		return nil, err
	}

	m.allocationSize, err = meter.Int64Histogram(
		"escrowd.task.allocation.recipients",
		metric.WithDescription("Recipient slots per committed allocation"),
		metric.WithUnit("{slot}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100),
	)
	if err != nil {
		return nil, err
	}

	m.claimsTotal, err = meter.Int64Counter(
		"escrowd.task.claims.total",
		metric.WithDescription("Slots claimed and paid"),
		metric.WithUnit("{claim}"),
	)
	if err != nil {
		return nil, err
	}

	m.claimedAmount, err = meter.Int64Counter(
		"escrowd.task.claimed.amount",
		metric.WithDescription("Asset paid out of task vaults"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, err
	}

	m.rejectionsTotal, err = meter.Int64Counter(
		"escrowd.task.rejections.total",
		metric.WithDescription("Operations rejected, by operation and error kind"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

// Task names are left off metric attributes; they are unbounded. Spans and
// logs carry them.

func (m *Metrics) RecordCreated(ctx context.Context, amount uint64) {
	if m == nil || !m.initialized {
		return
	}
	m.createdTotal.Add(ctx, 1)
	m.lockedAmount.Add(ctx, clampInt64(amount))
}

func (m *Metrics) RecordAllocation(ctx context.Context, slots int) {
	if m == nil || !m.initialized {
		return
	}
	m.allocationsTotal.Add(ctx, 1)
	m.allocationSize.Record(ctx, int64(slots))
}

func (m *Metrics) RecordClaim(ctx context.Context, amount uint64) {
	if m == nil || !m.initialized {
		return
	}
	m.claimsTotal.Add(ctx, 1)
	m.claimedAmount.Add(ctx, clampInt64(amount))
}

func (m *Metrics) RecordRejected(ctx context.Context, operation string, err error) {
	if m == nil || !m.initialized {
		return
	}
	m.rejectionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("reason", ErrorKind(err)),
	))
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
