// Package sim drives a small frame loop that exercises the pool registry:
// projectiles fire on a timer, spawn impacts when they expire, and the world
// is torn down and rebuilt at a fixed interval.
package sim

import (
	"context"
	"math"
	"time"

	"github.com/coachpo/spawnpool/config"
	"github.com/coachpo/spawnpool/errs"
	"github.com/coachpo/spawnpool/internal/clock"
	"github.com/coachpo/spawnpool/internal/observability"
	"github.com/coachpo/spawnpool/internal/pool"
	"github.com/coachpo/spawnpool/internal/scene"
	"github.com/coachpo/spawnpool/internal/spatial"
	"github.com/coachpo/spawnpool/internal/telemetry"
)

var poolOrder = []string{config.PoolProjectile, config.PoolImpact, config.PoolMarker}

// Summary reports what a run did.
type Summary struct {
	Frames      uint64        `json:"frames"`
	Worlds      int           `json:"worlds"`
	Fired       int           `json:"fired"`
	Impacts     int           `json:"impacts"`
	Failures    int           `json:"failures"`
	Elapsed     time.Duration `json:"elapsed"`
	Pools       []pool.Stats  `json:"pools"`
	MarkerReuse int           `json:"markerReuse"`
}

// Simulation owns the world, the clock and the registry. Step must be
// called from a single goroutine.
type Simulation struct {
	cfg      config.Settings
	logger   observability.Logger
	world    *scene.World
	clock    *clock.Clock
	registry *pool.Registry

	templates map[string]*scene.Node
	options   map[string][]pool.Option

	worldStart time.Duration
	summary    Summary
	markers    map[string]struct{}
}

// New builds a simulation from cfg. metrics may be nil.
func New(cfg config.Settings, logger observability.Logger, metrics *telemetry.PoolMetrics) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.Log()
	}

	world := scene.NewWorld()
	clk := clock.New()
	clk.SetTimeScale(cfg.Clock.TimeScale)

	registry, err := pool.NewRegistry(world, clk, pool.WithLogger(logger), pool.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}
	registry.Attach(world)

	s := &Simulation{
		cfg:       cfg,
		logger:    logger,
		world:     world,
		clock:     clk,
		registry:  registry,
		templates: make(map[string]*scene.Node),
		options:   make(map[string][]pool.Option),
		markers:   make(map[string]struct{}),
	}
	for _, name := range poolOrder {
		ps, _ := cfg.Pool(name)
		opts, err := ps.Options()
		if err != nil {
			return nil, errs.New("sim", errs.CodeConfig,
				errs.WithMessage("pool options"), errs.WithField("pool", name), errs.WithCause(err))
		}
		tmpl := world.NewNode(name)
		world.MarkPersistent(tmpl)
		world.SetActive(tmpl, false)
		s.templates[name] = tmpl
		s.options[name] = opts
	}
	s.templates[config.PoolProjectile].AddHook(projectileHook{})

	registry.OnPoolCreated(s.wire)
	registry.OnCleaned(func(survivors []*pool.Pool) {
		s.summary.Worlds++
		s.logger.Info("world ended", observability.F("survivors", len(survivors)))
	})
	for _, name := range poolOrder {
		if _, err := s.pool(name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Registry exposes the pool registry.
func (s *Simulation) Registry() *pool.Registry { return s.registry }

// World exposes the scene.
func (s *Simulation) World() *scene.World { return s.world }

// Clock exposes the frame clock.
func (s *Simulation) Clock() *clock.Clock { return s.clock }

// Summary returns the counters so far.
func (s *Simulation) Summary() Summary {
	out := s.summary
	out.Frames = s.clock.Frames()
	out.Elapsed = s.clock.Now(clock.Unscaled)
	out.Pools = s.registry.Snapshot()
	return out
}

// pool returns the pool for name, creating it with its configured options.
func (s *Simulation) pool(name string) (*pool.Pool, error) {
	tmpl := s.templates[name]
	if p, ok := s.registry.Pool(tmpl); ok {
		return p, nil
	}
	return s.registry.EnsurePool(tmpl, s.options[name]...)
}

func (s *Simulation) wire(p *pool.Pool) {
	if p.Template() != pool.Object(s.templates[config.PoolProjectile]) {
		return
	}
	p.OnReturned(func(obj pool.Object) {
		n, ok := obj.(*scene.Node)
		if !ok || s.registry.Cleaning() {
			return
		}
		s.spawnImpact(n.Position())
	})
}

// Step advances one frame of dt real time.
func (s *Simulation) Step(dt time.Duration) {
	frame := s.clock.Frames()
	for i := 0; i < s.cfg.Simulation.SpawnPerFrame; i++ {
		s.fire(frame, i)
	}
	s.ensureMarker()
	s.clock.Advance(dt)

	length := s.cfg.Simulation.WorldLength
	if length > 0 && s.clock.Now(clock.Unscaled)-s.worldStart >= length {
		s.world.End()
		s.worldStart = s.clock.Now(clock.Unscaled)
	}
	s.registry.PublishLevels()
}

func (s *Simulation) fire(frame uint64, i int) {
	p, err := s.pool(config.PoolProjectile)
	if err != nil {
		s.fail("projectile pool", err)
		return
	}
	angle := float64(frame)*0.1 + float64(i)*math.Pi/2
	heading := spatial.AxisAngle(spatial.V3(0, 1, 0), angle)
	_, err = p.Configure().
		WithPosition(heading.Rotate(spatial.V3(0, 1, 2))).
		WithRotation(heading).
		WithAutoReturn(s.cfg.Simulation.Lifetime, clock.Scaled).
		GetOrCreate()
	if err != nil {
		s.fail("fire projectile", err)
		return
	}
	s.summary.Fired++
}

func (s *Simulation) spawnImpact(at spatial.Vec3) {
	p, err := s.pool(config.PoolImpact)
	if err != nil {
		s.fail("impact pool", err)
		return
	}
	_, err = p.Acquire(func(sp *pool.Spawn) {
		sp.WithPosition(at).
			WithLossyScale(spatial.V3(0.5, 0.5, 0.5)).
			WithAutoReturn(s.cfg.Simulation.Lifetime/2, clock.Unscaled)
	})
	if err != nil {
		s.fail("spawn impact", err)
		return
	}
	s.summary.Impacts++
}

// ensureMarker keeps one marker checked out per world. Markers live in a
// persistent pool, so they are reclaimed rather than destroyed at teardown.
func (s *Simulation) ensureMarker() {
	p, err := s.pool(config.PoolMarker)
	if err != nil {
		s.fail("marker pool", err)
		return
	}
	if p.CountOutstanding() > 0 {
		return
	}
	obj, err := p.Acquire(nil)
	if err != nil {
		s.fail("acquire marker", err)
		return
	}
	id := obj.ID().String()
	if _, seen := s.markers[id]; seen {
		s.summary.MarkerReuse++
	}
	s.markers[id] = struct{}{}
}

func (s *Simulation) fail(what string, err error) {
	s.summary.Failures++
	s.logger.Error(what, observability.F("error", err))
}

// Run steps the simulation every frame interval of wall time until ctx is
// done or the configured duration has elapsed. onFrame, when non-nil, runs
// after each step on the loop goroutine.
func (s *Simulation) Run(ctx context.Context, onFrame func(*Simulation)) Summary {
	interval := s.cfg.Clock.FrameInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for s.clock.Now(clock.Unscaled) < s.cfg.Simulation.Duration {
		select {
		case <-ctx.Done():
			return s.Summary()
		case now := <-ticker.C:
			s.Step(now.Sub(last))
			last = now
			if onFrame != nil {
				onFrame(s)
			}
		}
	}
	return s.Summary()
}

// Close disposes every pool.
func (s *Simulation) Close() {
	s.registry.Close()
}

// projectileHook tags projectiles while they are in flight.
type projectileHook struct{}

func (projectileHook) OnAcquired(n *scene.Node) { n.Data = "in-flight" }

func (projectileHook) OnReturned(n *scene.Node) { n.Data = nil }
