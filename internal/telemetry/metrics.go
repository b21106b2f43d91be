package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// PoolLevel is one pool's occupancy at observation time.
type PoolLevel struct {
	Pool        string
	ObjectType  string
	Free        int64
	Outstanding int64
}

// PoolMetrics records pool activity. A nil *PoolMetrics discards everything.
type PoolMetrics struct {
	environment string
	meter       metric.Meter

	acquiredCounter  metric.Int64Counter
	returnedCounter  metric.Int64Counter
	createdCounter   metric.Int64Counter
	destroyedCounter metric.Int64Counter
	rejectedCounter  metric.Int64Counter
	poolsCounter     metric.Int64Counter
	teardownDuration metric.Float64Histogram
	freeGauge        metric.Int64ObservableGauge
	outstandingGauge metric.Int64ObservableGauge
}

// NewPoolMetrics creates the pool instruments on meter.
func NewPoolMetrics(meter metric.Meter, environment string) (*PoolMetrics, error) {
	if meter == nil {
		return nil, fmt.Errorf("telemetry: meter required")
	}
	if environment == "" {
		environment = "development"
	}
	m := new(PoolMetrics)
	m.environment = environment
	m.meter = meter

	var err error
	if m.acquiredCounter, err = meter.Int64Counter("pool.objects.acquired",
		metric.WithDescription("Number of instances handed out"),
		metric.WithUnit("{object}")); err != nil {
		return nil, fmt.Errorf("create acquired counter: %w", err)
	}
	if m.returnedCounter, err = meter.Int64Counter("pool.objects.returned",
		metric.WithDescription("Number of instances returned to their pool"),
		metric.WithUnit("{object}")); err != nil {
		return nil, fmt.Errorf("create returned counter: %w", err)
	}
	if m.createdCounter, err = meter.Int64Counter("pool.objects.created",
		metric.WithDescription("Number of instances instantiated from templates"),
		metric.WithUnit("{object}")); err != nil {
		return nil, fmt.Errorf("create created counter: %w", err)
	}
	if m.destroyedCounter, err = meter.Int64Counter("pool.objects.destroyed",
		metric.WithDescription("Number of instances destroyed by pool disposal"),
		metric.WithUnit("{object}")); err != nil {
		return nil, fmt.Errorf("create destroyed counter: %w", err)
	}
	if m.rejectedCounter, err = meter.Int64Counter("pool.objects.rejected",
		metric.WithDescription("Number of returns rejected by the return guard"),
		metric.WithUnit("{object}")); err != nil {
		return nil, fmt.Errorf("create rejected counter: %w", err)
	}
	if m.poolsCounter, err = meter.Int64Counter("pool.registry.pools_created",
		metric.WithDescription("Number of pools created by the registry"),
		metric.WithUnit("{pool}")); err != nil {
		return nil, fmt.Errorf("create pools counter: %w", err)
	}
	if m.teardownDuration, err = meter.Float64Histogram("pool.teardown.duration",
		metric.WithDescription("Registry teardown sweep duration"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("create teardown histogram: %w", err)
	}
	return m, nil
}

// ObserveLevels registers gauges fed by levels on every collection.
func (m *PoolMetrics) ObserveLevels(levels func() []PoolLevel) error {
	if m == nil || levels == nil {
		return nil
	}
	var err error
	if m.freeGauge, err = m.meter.Int64ObservableGauge("pool.objects.free",
		metric.WithDescription("Instances currently free in the pool"),
		metric.WithUnit("{object}")); err != nil {
		return fmt.Errorf("create free gauge: %w", err)
	}
	if m.outstandingGauge, err = m.meter.Int64ObservableGauge("pool.objects.outstanding",
		metric.WithDescription("Instances currently checked out of the pool"),
		metric.WithUnit("{object}")); err != nil {
		return fmt.Errorf("create outstanding gauge: %w", err)
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, lvl := range levels() {
			attrs := metric.WithAttributes(PoolAttributes(m.environment, lvl.Pool, lvl.ObjectType)...)
			o.ObserveInt64(m.freeGauge, lvl.Free, attrs)
			o.ObserveInt64(m.outstandingGauge, lvl.Outstanding, attrs)
		}
		return nil
	}, m.freeGauge, m.outstandingGauge)
	if err != nil {
		return fmt.Errorf("register level callback: %w", err)
	}
	return nil
}

// Acquired records one acquisition; reused is false when a new instance was created.
func (m *PoolMetrics) Acquired(pool, objectType string, reused bool) {
	if m == nil {
		return
	}
	attrs := append(PoolAttributes(m.environment, pool, objectType), AttrReused.Bool(reused))
	m.acquiredCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// Returned records one accepted return.
func (m *PoolMetrics) Returned(pool, objectType string) {
	if m == nil {
		return
	}
	m.returnedCounter.Add(context.Background(), 1, m.poolAttrs(pool, objectType))
}

// Created records n instantiations.
func (m *PoolMetrics) Created(pool, objectType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.createdCounter.Add(context.Background(), int64(n), m.poolAttrs(pool, objectType))
}

// Destroyed records n instances destroyed on disposal.
func (m *PoolMetrics) Destroyed(pool, objectType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.destroyedCounter.Add(context.Background(), int64(n), m.poolAttrs(pool, objectType))
}

// Rejected records a return refused for reason.
func (m *PoolMetrics) Rejected(pool, objectType, reason string) {
	if m == nil {
		return
	}
	attrs := append(PoolAttributes(m.environment, pool, objectType), AttrReason.String(reason))
	m.rejectedCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// PoolCreated records a new pool.
func (m *PoolMetrics) PoolCreated(pool, objectType string, persistent bool) {
	if m == nil {
		return
	}
	attrs := append(PoolAttributes(m.environment, pool, objectType), AttrPersistent.Bool(persistent))
	m.poolsCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// Teardown records how long a sweep took.
func (m *PoolMetrics) Teardown(elapsed time.Duration) {
	if m == nil {
		return
	}
	ms := float64(elapsed) / float64(time.Millisecond)
	m.teardownDuration.Record(context.Background(), ms,
		metric.WithAttributes(AttrEnvironment.String(m.environment)))
}

func (m *PoolMetrics) poolAttrs(pool, objectType string) metric.MeasurementOption {
	return metric.WithAttributes(PoolAttributes(m.environment, pool, objectType)...)
}
