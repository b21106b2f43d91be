package pool

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/coachpo/spawnpool/errs"
	"github.com/coachpo/spawnpool/internal/clock"
	"github.com/coachpo/spawnpool/internal/observability"
	"github.com/coachpo/spawnpool/internal/telemetry"
)

// Registry maps each template to exactly one Pool and each handed-out
// instance back to its template. It is not safe for concurrent use; every
// call, including delayed returns fired by the Scheduler, must happen on the
// same logical thread.
type Registry struct {
	engine  Engine
	sched   Scheduler
	logger  observability.Logger
	metrics *telemetry.PoolMetrics

	pools  map[uuid.UUID]*Pool
	order  []*Pool
	owners map[uuid.UUID]Object

	cleaning bool
	created  observerList[*Pool]
	cleaned  observerList[[]*Pool]

	levels atomic.Pointer[[]telemetry.PoolLevel]
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for warnings and isolated callback
// failures. The default is the global observability logger.
func WithLogger(logger observability.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records pool activity on m.
func WithMetrics(m *telemetry.PoolMetrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry driving engine and sched.
func NewRegistry(engine Engine, sched Scheduler, opts ...RegistryOption) (*Registry, error) {
	if isNilValue(engine) {
		return nil, errs.InvalidArgument("registry", "engine required")
	}
	if isNilValue(sched) {
		return nil, errs.InvalidArgument("registry", "scheduler required")
	}
	r := &Registry{
		engine: engine,
		sched:  sched,
		logger: observability.Log(),
		pools:  make(map[uuid.UUID]*Pool),
		owners: make(map[uuid.UUID]Object),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if err := r.metrics.ObserveLevels(r.loadLevels); err != nil {
		return nil, errs.New("registry", errs.CodeConfig,
			errs.WithMessage("register pool gauges"), errs.WithCause(err))
	}
	return r, nil
}

// EnsurePool returns the pool for template, creating it on first use. The
// options only apply at creation; passing them for an existing pool logs a
// warning and has no effect. Creating a pool during Teardown fails with
// errs.CodeInvalidState.
func (r *Registry) EnsurePool(template Object, opts ...Option) (*Pool, error) {
	if isNil(template) {
		return nil, errs.InvalidArgument("registry", "template required")
	}
	if p, ok := r.pools[template.ID()]; ok {
		if len(opts) > 0 {
			r.logger.Warn("pool already exists, ignoring options",
				p.field(), observability.F("template", template.ID().String()))
		}
		return p, nil
	}
	if r.cleaning {
		return nil, errs.New("registry", errs.CodeInvalidState,
			errs.WithMessage("pool creation during teardown"),
			errs.WithField("template", template.ID().String()))
	}

	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	p, err := newPool(r, template, o)
	if err != nil {
		return nil, err
	}
	r.pools[template.ID()] = p
	r.order = append(r.order, p)
	r.metrics.PoolCreated(p.name, p.objectType, p.opts.persistent)
	r.logger.Debug("pool created", p.field(),
		observability.F("discipline", p.opts.discipline.String()),
		observability.F("persistent", p.opts.persistent),
		observability.F("prewarmed", p.CountFree()))
	r.created.fire(r.logger, "on-pool-created", p, p.field())
	return p, nil
}

// HasPool reports whether template already has a pool.
func (r *Registry) HasPool(template Object) (bool, error) {
	if isNil(template) {
		return false, errs.InvalidArgument("registry", "template required")
	}
	_, ok := r.pools[template.ID()]
	return ok, nil
}

// Pool returns the pool registered for template.
func (r *Registry) Pool(template Object) (*Pool, bool) {
	if isNil(template) {
		return nil, false
	}
	p, ok := r.pools[template.ID()]
	return p, ok
}

// Pools lists the registered pools in creation order.
func (r *Registry) Pools() []*Pool {
	out := make([]*Pool, len(r.order))
	copy(out, r.order)
	return out
}

// Cleaning reports whether a teardown sweep is running.
func (r *Registry) Cleaning() bool { return r.cleaning }

// ResolveOwner returns the template instance was acquired from.
func (r *Registry) ResolveOwner(instance Object) (Object, bool) {
	if isNil(instance) {
		return nil, false
	}
	t, ok := r.owners[instance.ID()]
	return t, ok
}

// Acquire hands out an instance of template, creating its pool with default
// options when needed. configure may be nil.
func (r *Registry) Acquire(template Object, configure func(*Spawn)) (Object, error) {
	p, err := r.EnsurePool(template)
	if err != nil {
		return nil, err
	}
	return p.Acquire(configure)
}

// Release returns instance to its pool. Instances the registry never handed
// out are ignored.
func (r *Registry) Release(instance Object) error {
	p, err := r.ownerPool(instance)
	if err != nil || p == nil {
		return err
	}
	p.Return(instance)
	return nil
}

// ReleaseDelayed schedules instance to return to its pool after delay.
func (r *Registry) ReleaseDelayed(instance Object, delay time.Duration, base clock.TimeBase) error {
	p, err := r.ownerPool(instance)
	if err != nil || p == nil {
		return err
	}
	p.ReturnDelayed(instance, delay, base)
	return nil
}

func (r *Registry) ownerPool(instance Object) (*Pool, error) {
	if isNil(instance) {
		return nil, errs.InvalidArgument("registry", "instance required")
	}
	t, ok := r.owners[instance.ID()]
	if !ok {
		return nil, nil
	}
	return r.pools[t.ID()], nil
}

// IsMember reports whether instance is known to the registry and currently
// free in its pool.
func (r *Registry) IsMember(instance Object) bool {
	p, err := r.ownerPool(instance)
	if err != nil || p == nil {
		return false
	}
	return p.Contains(instance)
}

// IsProduct reports whether any registered pool created instance, whether
// it is checked out or free.
func (r *Registry) IsProduct(instance Object) bool {
	if isNil(instance) {
		return false
	}
	if p, err := r.ownerPool(instance); err == nil && p != nil {
		return p.IsProduct(instance)
	}
	for _, p := range r.order {
		if p.IsProduct(instance) {
			return true
		}
	}
	return false
}

// OnPoolCreated registers fn to run after every new pool. The returned func
// unregisters it.
func (r *Registry) OnPoolCreated(fn func(*Pool)) func() { return r.created.add(fn) }

// OnCleaned registers fn to run at the end of every teardown sweep with the
// pools that survived it. Pool creation is still refused while fn runs.
func (r *Registry) OnCleaned(fn func([]*Pool)) func() { return r.cleaned.add(fn) }

// Attach subscribes Teardown to host's world-ending signal.
func (r *Registry) Attach(host Host) {
	if isNilValue(host) {
		return
	}
	host.OnWorldEnding(r.Teardown)
}

// Teardown disposes every non-persistent pool and force-returns the
// outstanding instances of persistent ones, then notifies OnCleaned
// observers. A nested call while the sweep runs is ignored.
func (r *Registry) Teardown() {
	if r.cleaning {
		return
	}
	r.cleaning = true
	defer func() { r.cleaning = false }()
	start := time.Now()

	survivors := make([]*Pool, 0, len(r.order))
	disposed, reclaimed := 0, 0
	for _, p := range r.Pools() {
		if !p.opts.persistent {
			p.Dispose()
			disposed++
			continue
		}
		for _, stack := range p.debug.activeStacks() {
			r.logger.Debug("outstanding instance at teardown", p.field(), observability.F("stack", stack))
		}
		reclaimed += p.ForceReturnAll()
		survivors = append(survivors, p)
	}
	r.order = survivors

	elapsed := time.Since(start)
	r.metrics.Teardown(elapsed)
	r.logger.Info("registry teardown",
		observability.F("disposed", disposed),
		observability.F("survivors", len(survivors)),
		observability.F("reclaimed", reclaimed),
		observability.F("elapsed", elapsed))

	payload := make([]*Pool, len(survivors))
	copy(payload, survivors)
	r.cleaned.fire(r.logger, "on-cleaned", payload)
}

// Close disposes every pool and empties the registry. Unlike Teardown it
// ignores persistence and fires no notifications.
func (r *Registry) Close() {
	for _, p := range r.Pools() {
		p.Dispose()
	}
	r.pools = make(map[uuid.UUID]*Pool)
	r.owners = make(map[uuid.UUID]Object)
	r.order = nil
	r.PublishLevels()
}

// Snapshot returns the stats of every pool in creation order.
func (r *Registry) Snapshot() []Stats {
	out := make([]Stats, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, p.Stats())
	}
	return out
}

// PublishLevels stores the current pool occupancy for the metric gauges,
// which are read off the loop thread. Call it once per frame.
func (r *Registry) PublishLevels() {
	levels := make([]telemetry.PoolLevel, 0, len(r.order))
	for _, p := range r.order {
		levels = append(levels, p.level())
	}
	r.levels.Store(&levels)
}

func (r *Registry) loadLevels() []telemetry.PoolLevel {
	if levels := r.levels.Load(); levels != nil {
		return *levels
	}
	return nil
}

// unregister drops p and the owner entries of its instances. It leaves a
// newer pool for the same template alone.
func (r *Registry) unregister(p *Pool) {
	for _, id := range p.ids() {
		if t, ok := r.owners[id]; ok && t.ID() == p.template.ID() {
			delete(r.owners, id)
		}
	}
	if current, ok := r.pools[p.template.ID()]; ok && current == p {
		delete(r.pools, p.template.ID())
	}
	kept := make([]*Pool, 0, len(r.order))
	for _, other := range r.order {
		if other != p {
			kept = append(kept, other)
		}
	}
	r.order = kept
}

func (r *Registry) bind(instance, template Object) {
	r.owners[instance.ID()] = template
}
