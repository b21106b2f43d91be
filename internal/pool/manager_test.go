package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/coachpo/spawnpool/errs"
	"github.com/coachpo/spawnpool/internal/clock"
	"github.com/coachpo/spawnpool/internal/pool"
	"github.com/coachpo/spawnpool/internal/scene"
	"github.com/coachpo/spawnpool/internal/telemetry"
)

func TestNewRegistryRequiresCollaborators(t *testing.T) {
	_, err := pool.NewRegistry(nil, clock.New())
	require.True(t, errs.Is(err, errs.CodeInvalidArgument))

	var typedNil *clock.Clock
	_, err = pool.NewRegistry(scene.NewWorld(), typedNil)
	require.True(t, errs.Is(err, errs.CodeInvalidArgument))
}

func TestEnsurePoolReturnsSamePool(t *testing.T) {
	f := newFixture(t)
	tmpl := f.template("bullet")

	created := 0
	f.registry.OnPoolCreated(func(*pool.Pool) { created++ })

	first := f.pool(t, tmpl)
	second := f.pool(t, tmpl)
	require.Same(t, first, second)
	require.Equal(t, 1, created)
	require.Len(t, f.registry.Pools(), 1)
}

func TestEnsurePoolWarnsOnRepeatedOptions(t *testing.T) {
	f := newFixture(t)
	tmpl := f.template("bullet")

	first := f.pool(t, tmpl, pool.WithDiscipline(pool.Stack))
	second := f.pool(t, tmpl, pool.WithDiscipline(pool.Queue))

	require.Same(t, first, second)
	require.Equal(t, pool.Stack, second.Discipline())
	require.Equal(t, 1, countMessages(f.logs, "pool already exists, ignoring options"))
}

func TestNilTemplateIsInvalidArgument(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.EnsurePool(nil)
	require.True(t, errs.Is(err, errs.CodeInvalidArgument))

	_, err = f.registry.HasPool(nil)
	require.True(t, errs.Is(err, errs.CodeInvalidArgument))

	_, err = f.registry.Acquire(nil, nil)
	require.True(t, errs.Is(err, errs.CodeInvalidArgument))

	require.True(t, errs.Is(f.registry.Release(nil), errs.CodeInvalidArgument))
	require.True(t, errs.Is(f.registry.ReleaseDelayed(nil, time.Second, clock.Scaled), errs.CodeInvalidArgument))
}

func TestRegistryRoutesReleaseToOwner(t *testing.T) {
	f := newFixture(t)
	tmpl := f.template("bullet")

	inst, err := f.registry.Acquire(tmpl, nil)
	require.NoError(t, err)

	owner, ok := f.registry.ResolveOwner(inst)
	require.True(t, ok)
	require.Equal(t, tmpl.ID(), owner.ID())

	has, err := f.registry.HasPool(tmpl)
	require.NoError(t, err)
	require.True(t, has)

	require.True(t, f.registry.IsProduct(inst))
	require.False(t, f.registry.IsMember(inst))

	require.NoError(t, f.registry.Release(inst))
	require.True(t, f.registry.IsMember(inst))
	require.True(t, f.registry.IsProduct(inst))
}

func TestReleaseUnknownInstanceIsNoop(t *testing.T) {
	f := newFixture(t)
	stranger := f.world.NewNode("stranger")

	require.NoError(t, f.registry.Release(stranger))
	require.NoError(t, f.registry.ReleaseDelayed(stranger, time.Second, clock.Unscaled))
	require.False(t, stranger.Destroyed())
	require.False(t, f.registry.IsMember(stranger))
	require.False(t, f.registry.IsProduct(stranger))
}

func TestReleaseDelayedThroughRegistry(t *testing.T) {
	f := newFixture(t)
	inst, err := f.registry.Acquire(f.template("bullet"), nil)
	require.NoError(t, err)

	require.NoError(t, f.registry.ReleaseDelayed(inst, 250*time.Millisecond, clock.Unscaled))
	require.False(t, f.registry.IsMember(inst))

	f.clock.Advance(300 * time.Millisecond)
	require.True(t, f.registry.IsMember(inst))
}

func TestIsProductCoversPrewarmedInstances(t *testing.T) {
	f := newFixture(t)
	p := f.pool(t, f.template("bullet"), pool.WithInitialSize(1))

	var prewarmed pool.Object
	container := p.Container().(*scene.Node)
	require.Len(t, container.Children(), 1)
	prewarmed = container.Children()[0]

	_, ok := f.registry.ResolveOwner(prewarmed)
	require.False(t, ok)
	require.True(t, f.registry.IsProduct(prewarmed))
}

func TestTeardownSeparatesPersistentPools(t *testing.T) {
	f := newFixture(t)
	scoped := f.pool(t, f.template("spark"))
	kept := f.pool(t, f.template("bullet"), pool.Persistent())

	spark, err := scoped.Acquire(nil)
	require.NoError(t, err)
	a := acquire(t, kept)
	b := acquire(t, kept)
	kept.ReturnDelayed(b, time.Minute, clock.Scaled)

	var survivors []*pool.Pool
	f.registry.OnCleaned(func(pools []*pool.Pool) { survivors = pools })

	f.world.End()

	require.Equal(t, []*pool.Pool{kept}, survivors)
	require.Equal(t, []*pool.Pool{kept}, f.registry.Pools())

	has, err := f.registry.HasPool(scoped.Template())
	require.NoError(t, err)
	require.False(t, has)
	_, ok := f.registry.ResolveOwner(spark)
	require.False(t, ok)
	require.True(t, spark.(*scene.Node).Destroyed())

	require.Zero(t, kept.CountOutstanding())
	require.Zero(t, kept.CountPending())
	require.True(t, kept.Contains(a))
	require.True(t, kept.Contains(b))
	require.False(t, a.Destroyed())
	require.False(t, b.Destroyed())
	require.False(t, f.registry.Cleaning())
}

func TestPoolCreationRefusedInsideCleanedObserver(t *testing.T) {
	f := newFixture(t)
	f.pool(t, f.template("bullet"), pool.Persistent())
	existing := f.registry.Pools()[0]

	var createErr, existingErr error
	f.registry.OnCleaned(func([]*pool.Pool) {
		_, createErr = f.registry.EnsurePool(f.world.NewNode("late"))
		_, existingErr = f.registry.EnsurePool(existing.Template())
	})

	f.registry.Teardown()

	require.True(t, errs.Is(createErr, errs.CodeInvalidState))
	require.NoError(t, existingErr)
	require.False(t, f.registry.Cleaning())

	_, err := f.registry.EnsurePool(f.world.NewNode("after"))
	require.NoError(t, err)
}

func TestCleanedObserverPanicDoesNotStickCleaning(t *testing.T) {
	f := newFixture(t)
	f.pool(t, f.template("bullet"))

	after := 0
	f.registry.OnCleaned(func([]*pool.Pool) { panic("observer failure") })
	f.registry.OnCleaned(func([]*pool.Pool) { after++ })

	f.registry.Teardown()

	require.Equal(t, 1, after)
	require.False(t, f.registry.Cleaning())
	require.Equal(t, 1, countMessages(f.logs, "callback failed"))
}

func TestCloseDisposesEveryPool(t *testing.T) {
	f := newFixture(t)
	kept := f.pool(t, f.template("bullet"), pool.Persistent())
	inst := acquire(t, kept)

	f.registry.Close()

	require.True(t, kept.Disposed())
	require.True(t, inst.Destroyed())
	require.Empty(t, f.registry.Pools())
	require.Empty(t, f.registry.Snapshot())
}

func TestRegistryMetricsAndLevels(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := telemetry.NewPoolMetrics(provider.Meter(telemetry.MeterName), "test")
	require.NoError(t, err)
	f := newFixture(t, pool.WithMetrics(metrics))

	p := f.pool(t, f.template("bullet"))
	a := acquire(t, p)
	acquire(t, p)
	p.Return(a)
	f.registry.PublishLevels()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	gauges := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					gauges[m.Name] += dp.Value
				}
			}
		}
	}

	require.Equal(t, int64(2), sums["pool.objects.acquired"])
	require.Equal(t, int64(1), sums["pool.objects.returned"])
	require.Equal(t, int64(2), sums["pool.objects.created"])
	require.Equal(t, int64(1), sums["pool.registry.pools_created"])
	require.Equal(t, int64(1), gauges["pool.objects.free"])
	require.Equal(t, int64(1), gauges["pool.objects.outstanding"])
}

func TestDisposedPoolLeavesRegistry(t *testing.T) {
	f := newFixture(t)
	tmpl := f.template("bullet")
	old := f.pool(t, tmpl)
	inst := acquire(t, old)

	old.Dispose()

	has, err := f.registry.HasPool(tmpl)
	require.NoError(t, err)
	require.False(t, has)
	require.Empty(t, f.registry.Pools())
	require.Empty(t, f.registry.Snapshot())
	_, ok := f.registry.ResolveOwner(inst)
	require.False(t, ok)

	obj, err := f.registry.Acquire(tmpl, nil)
	require.NoError(t, err)
	fresh, ok := f.registry.Pool(tmpl)
	require.True(t, ok)
	require.NotSame(t, old, fresh)
	require.True(t, fresh.IsProduct(obj))
	require.Equal(t, []*pool.Pool{fresh}, f.registry.Pools())
}

func TestPoolCreatedObserverPanicIsIsolated(t *testing.T) {
	f := newFixture(t)
	var seen []*pool.Pool
	f.registry.OnPoolCreated(func(*pool.Pool) { panic("observer failure") })
	f.registry.OnPoolCreated(func(p *pool.Pool) { seen = append(seen, p) })

	p, err := f.registry.EnsurePool(f.template("bullet"))
	require.NoError(t, err)
	require.Equal(t, []*pool.Pool{p}, seen)
	require.Equal(t, 1, countMessages(f.logs, "callback failed"))

	_, err = p.Acquire(nil)
	require.NoError(t, err)
}

func TestTeardownSurvivesReturnedObserverPanic(t *testing.T) {
	f := newFixture(t)
	kept := f.pool(t, f.template("bullet"), pool.Persistent())
	a := acquire(t, kept)
	b := acquire(t, kept)
	kept.OnReturned(func(pool.Object) { panic("observer failure") })

	cleaned := 0
	f.registry.OnCleaned(func([]*pool.Pool) { cleaned++ })

	f.registry.Teardown()

	require.Equal(t, 1, cleaned)
	require.True(t, kept.Contains(a))
	require.True(t, kept.Contains(b))
	require.False(t, f.registry.Cleaning())
	require.Equal(t, 2, countMessages(f.logs, "callback failed"))
}
