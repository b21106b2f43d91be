package pool_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/coachpo/spawnpool/internal/clock"
	"github.com/coachpo/spawnpool/internal/observability"
	"github.com/coachpo/spawnpool/internal/pool"
	"github.com/coachpo/spawnpool/internal/scene"
)

type fixture struct {
	world    *scene.World
	clock    *clock.Clock
	registry *pool.Registry
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T, opts ...pool.RegistryOption) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := observability.NewZapLogger(zap.New(core))

	world := scene.NewWorld()
	clk := clock.New()
	all := append([]pool.RegistryOption{pool.WithLogger(logger)}, opts...)
	registry, err := pool.NewRegistry(world, clk, all...)
	require.NoError(t, err)
	registry.Attach(world)

	return &fixture{world: world, clock: clk, registry: registry, logs: logs}
}

func (f *fixture) template(name string) *scene.Node {
	return f.world.NewNode(name)
}

func (f *fixture) pool(t *testing.T, template pool.Object, opts ...pool.Option) *pool.Pool {
	t.Helper()
	p, err := f.registry.EnsurePool(template, opts...)
	require.NoError(t, err)
	return p
}

func acquire(t *testing.T, p *pool.Pool) *scene.Node {
	t.Helper()
	obj, err := p.Acquire(nil)
	require.NoError(t, err)
	n, ok := obj.(*scene.Node)
	require.True(t, ok)
	return n
}

func countMessages(logs *observer.ObservedLogs, msg string) int {
	return logs.FilterMessage(msg).Len()
}

// recorder is a scene hook that logs lifecycle calls in order.
type recorder struct {
	events *[]string
}

func (r recorder) OnAcquired(n *scene.Node) {
	*r.events = append(*r.events, "acquired:"+activeState(n))
}

func (r recorder) OnReturned(n *scene.Node) {
	*r.events = append(*r.events, "returned:"+activeState(n))
}

func activeState(n *scene.Node) string {
	if n.ActiveSelf() {
		return "active"
	}
	return "inactive"
}
