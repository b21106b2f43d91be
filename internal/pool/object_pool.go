package pool

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/coachpo/spawnpool/errs"
	"github.com/coachpo/spawnpool/internal/clock"
	"github.com/coachpo/spawnpool/internal/observability"
)

// entry is one instance the pool created. hooks is nil when the instance
// does not implement Poolable.
type entry struct {
	obj   Object
	hooks Poolable
}

// Pool recycles the instances of a single template. A Pool is obtained from
// a Registry and is not safe for concurrent use.
type Pool struct {
	registry *Registry
	engine   Engine
	sched    Scheduler
	logger   observability.Logger

	name       string
	objectType string
	template   Object
	container  Object
	baseline   Placement
	opts       options

	free    freeList
	freeIDs map[uuid.UUID]struct{}
	created map[uuid.UUID]*entry
	order   []*entry
	delayed map[uuid.UUID]clock.Cancelable
	spawn   *Spawn

	got      observerList[Object]
	returned observerList[Object]

	foreignWarn rate.Sometimes
	debug       *debugState
	disposed    bool
}

func newPool(r *Registry, template Object, opts options) (*Pool, error) {
	if opts.initialSize < 0 {
		return nil, errs.New("pool", errs.CodeInvalidArgument,
			errs.WithMessagef("initial size must not be negative, got %d", opts.initialSize))
	}
	objectType := "object"
	if named, ok := template.(Named); ok && named.Name() != "" {
		objectType = named.Name()
	}
	name := opts.containerName
	if name == "" {
		name = objectType + " Pool"
	}

	container, err := r.engine.NewContainer(name, opts.persistent)
	if err != nil {
		return nil, errs.New("pool", errs.CodeEngine,
			errs.WithMessage("create container"), errs.WithField("pool", name), errs.WithCause(err))
	}

	p := &Pool{
		registry:    r,
		engine:      r.engine,
		sched:       r.sched,
		logger:      r.logger,
		name:        name,
		objectType:  objectType,
		template:    template,
		container:   container,
		baseline:    r.engine.Placement(template),
		opts:        opts,
		free:        newFreeList(opts.discipline),
		freeIDs:     make(map[uuid.UUID]struct{}),
		created:     make(map[uuid.UUID]*entry),
		delayed:     make(map[uuid.UUID]clock.Cancelable),
		foreignWarn: rate.Sometimes{First: 1, Interval: 10 * time.Second},
		debug:       newDebugState(name),
	}
	p.spawn = &Spawn{pool: p}

	if err := p.prewarm(opts.initialSize); err != nil {
		p.Dispose()
		return nil, err
	}
	return p, nil
}

// prewarm parks n fresh instances in the free list without firing hooks or
// notifications; they have never been handed out.
func (p *Pool) prewarm(n int) error {
	for i := 0; i < n; i++ {
		e, err := p.create()
		if err != nil {
			return err
		}
		p.park(e)
	}
	return nil
}

// Name returns the pool name, which is also its container's name.
func (p *Pool) Name() string { return p.name }

// Template returns the object this pool stamps out.
func (p *Pool) Template() Object { return p.template }

// Container returns the object free instances are parented under.
func (p *Pool) Container() Object { return p.container }

// Persistent reports whether the pool survives world teardown.
func (p *Pool) Persistent() bool { return p.opts.persistent }

// Discipline reports the reuse order.
func (p *Pool) Discipline() Discipline { return p.opts.discipline }

// Disposed reports whether Dispose has run.
func (p *Pool) Disposed() bool { return p.disposed }

// CountFree returns the number of free instances.
func (p *Pool) CountFree() int { return p.free.len() }

// CountCreated returns the number of instances this pool ever created.
func (p *Pool) CountCreated() int { return len(p.created) }

// CountOutstanding returns the number of instances currently checked out.
func (p *Pool) CountOutstanding() int { return len(p.created) - p.free.len() }

// CountPending returns the number of scheduled delayed returns.
func (p *Pool) CountPending() int { return len(p.delayed) }

// OnGot registers fn to run after every acquisition. The returned func
// unregisters it.
func (p *Pool) OnGot(fn func(Object)) func() { return p.got.add(fn) }

// OnReturned registers fn to run after every accepted return.
func (p *Pool) OnReturned(fn func(Object)) func() { return p.returned.add(fn) }

// Configure resets the pool's spawn slot and hands it out for one chained
// configuration ending in GetOrCreate. The slot is shared: do not keep it.
func (p *Pool) Configure() *Spawn {
	p.spawn.Reset()
	return p.spawn
}

// Acquire hands out an instance. configure, when non-nil, receives the reset
// spawn slot to set per-call overrides before the instance is placed.
func (p *Pool) Acquire(configure func(*Spawn)) (Object, error) {
	if configure == nil {
		p.spawn.Reset()
		return p.spawn.GetOrCreate()
	}
	s := p.Configure()
	configure(s)
	return s.GetOrCreate()
}

func (p *Pool) acquire(cfg spawnSettings, inits []InitFunc, immediate InitFunc) (Object, error) {
	if p.disposed {
		return nil, errs.InvalidState("pool", "pool "+p.name+" is disposed")
	}

	e, reused, err := p.take()
	if err != nil {
		return nil, err
	}
	obj := e.obj

	p.place(obj, cfg)
	p.runInits(obj, cfg, inits, immediate)
	if err := p.interrupted(obj, "pre-initialization"); err != nil {
		return nil, err
	}
	if cfg.autoReturn {
		p.ReturnDelayed(obj, cfg.autoReturnDelay, cfg.autoReturnBase)
	}
	p.engine.SetActive(obj, true)
	p.registry.bind(obj, p.template)
	if e.hooks != nil {
		observability.Guard(p.logger, "on-acquired", e.hooks.OnAcquired, p.field())
		if err := p.interrupted(obj, "on-acquired"); err != nil {
			return nil, err
		}
	}
	p.debug.recordAcquire(obj)
	p.registry.metrics.Acquired(p.name, p.objectType, reused)
	p.got.fire(p.logger, "on-got", obj, p.field())
	return obj, nil
}

// interrupted reports a callback run during acquisition that already handed
// obj back or disposed the pool. Such an instance is not given out.
func (p *Pool) interrupted(obj Object, stage string) error {
	if p.disposed {
		return errs.InvalidState("pool", "pool "+p.name+" disposed during "+stage)
	}
	if _, free := p.freeIDs[obj.ID()]; !free {
		return nil
	}
	p.logger.Warn("instance returned before acquisition completed",
		p.field(), observability.F("object", obj.ID().String()), observability.F("stage", stage))
	return errs.New("pool", errs.CodeInvalidState,
		errs.WithMessage("instance returned during "+stage), errs.WithField("pool", p.name))
}

// take pops a free instance or creates one.
func (p *Pool) take() (*entry, bool, error) {
	if e := p.free.pop(); e != nil {
		delete(p.freeIDs, e.obj.ID())
		return e, true, nil
	}
	e, err := p.create()
	if err != nil {
		return nil, false, err
	}
	return e, false, nil
}

func (p *Pool) create() (*entry, error) {
	obj, err := p.engine.Instantiate(p.template)
	if err != nil {
		return nil, errs.New("pool", errs.CodeEngine,
			errs.WithMessage("instantiate template"), errs.WithField("pool", p.name), errs.WithCause(err))
	}
	if isNil(obj) || obj.ID() == uuid.Nil {
		return nil, errs.New("pool", errs.CodeEngine,
			errs.WithMessage("engine returned an object without identity"), errs.WithField("pool", p.name))
	}
	e := &entry{obj: obj}
	if hooks, ok := obj.(Poolable); ok {
		e.hooks = hooks
	}
	p.created[obj.ID()] = e
	p.order = append(p.order, e)
	p.registry.metrics.Created(p.name, p.objectType, 1)
	return e, nil
}

func (p *Pool) place(obj Object, cfg spawnSettings) {
	p.engine.SetParent(obj, cfg.parent)
	p.engine.SetLocalPosition(obj, p.baseline.LocalPosition)
	p.engine.SetLocalRotation(obj, p.baseline.LocalRotation)
	p.engine.SetLocalScale(obj, p.baseline.LocalScale)

	switch cfg.positionSpace {
	case spaceWorld:
		p.engine.SetPosition(obj, cfg.position)
	case spaceLocal:
		p.engine.SetLocalPosition(obj, cfg.position)
	}
	switch cfg.rotationSpace {
	case spaceWorld:
		p.engine.SetRotation(obj, cfg.rotation)
	case spaceLocal:
		p.engine.SetLocalRotation(obj, cfg.rotation)
	}
	switch cfg.scaleSpace {
	case spaceWorld:
		p.engine.SetLossyScale(obj, cfg.scale)
	case spaceLocal:
		p.engine.SetLocalScale(obj, cfg.scale)
	}
}

// runInits runs the per-call callback, then the persistent ones in
// registration order, then the replaceable one.
func (p *Pool) runInits(obj Object, cfg spawnSettings, inits []InitFunc, immediate InitFunc) {
	run := func(fn InitFunc) {
		if fn == nil {
			return
		}
		observability.Guard(p.logger, "pre-initialization", func() { fn(obj) }, p.field())
	}
	run(immediate)
	for _, fn := range inits {
		run(fn)
	}
	run(cfg.replaceInit)
}

// Return puts obj back in the free list. It reports false when the return
// guard rejects obj: nil, the template, an object this pool did not create,
// or one that is already free.
func (p *Pool) Return(obj Object) bool {
	e, ok := p.admit(obj)
	if !ok {
		return false
	}
	id := obj.ID()
	if h, pending := p.delayed[id]; pending {
		delete(p.delayed, id)
		h.Cancel()
	}

	p.free.push(e)
	p.freeIDs[id] = struct{}{}
	if e.hooks != nil {
		observability.Guard(p.logger, "on-returned", e.hooks.OnReturned, p.field())
	}
	p.engine.SetActive(obj, false)
	p.engine.SetParent(obj, p.container)
	p.debug.recordRelease(obj)
	p.registry.metrics.Returned(p.name, p.objectType)
	p.returned.fire(p.logger, "on-returned", obj, p.field())
	return true
}

// ReturnDelayed schedules obj to be returned after delay on the given time
// base. Only the first request for an outstanding instance is kept; it
// reports false for rejected objects and for duplicate requests.
func (p *Pool) ReturnDelayed(obj Object, delay time.Duration, base clock.TimeBase) bool {
	e, ok := p.admit(obj)
	if !ok {
		return false
	}
	id := obj.ID()
	if _, pending := p.delayed[id]; pending {
		return false
	}
	var handle clock.Cancelable
	handle = p.sched.After(delay, base, func() {
		if current, ok := p.delayed[id]; !ok || current != handle {
			return
		}
		delete(p.delayed, id)
		p.Return(e.obj)
	})
	p.delayed[id] = handle
	return true
}

// ForceReturnAll returns every outstanding instance immediately, then cancels
// any delayed returns still scheduled. It returns how many were returned.
func (p *Pool) ForceReturnAll() int {
	if p.disposed {
		return 0
	}
	outstanding := make([]*entry, 0, p.CountOutstanding())
	for _, e := range p.order {
		if _, free := p.freeIDs[e.obj.ID()]; !free {
			outstanding = append(outstanding, e)
		}
	}
	returned := 0
	for _, e := range outstanding {
		if p.Return(e.obj) {
			returned++
		}
	}
	p.cancelDelayed()
	return returned
}

// Dispose destroys every instance the pool created, wherever it is now, and
// the container. The registry forgets the pool, so the next acquisition of
// its template builds a fresh one. The pool cannot be used afterwards.
func (p *Pool) Dispose() {
	if p.disposed {
		return
	}
	p.disposed = true
	p.registry.unregister(p)
	p.cancelDelayed()
	for _, e := range p.order {
		p.engine.Destroy(e.obj)
	}
	p.registry.metrics.Destroyed(p.name, p.objectType, len(p.order))
	if p.container != nil {
		p.engine.Destroy(p.container)
	}
	p.free = newFreeList(p.opts.discipline)
	p.freeIDs = make(map[uuid.UUID]struct{})
	p.created = make(map[uuid.UUID]*entry)
	p.order = nil
	p.debug.reset()
}

func (p *Pool) cancelDelayed() {
	for id, h := range p.delayed {
		delete(p.delayed, id)
		h.Cancel()
	}
}

// Contains reports whether obj is currently free in this pool.
func (p *Pool) Contains(obj Object) bool {
	if isNil(obj) {
		return false
	}
	_, ok := p.freeIDs[obj.ID()]
	return ok
}

// IsProduct reports whether this pool created obj. The template itself is
// never a product.
func (p *Pool) IsProduct(obj Object) bool {
	if isNil(obj) || obj.ID() == p.template.ID() {
		return false
	}
	_, ok := p.created[obj.ID()]
	return ok
}

// ids lists every instance id the pool created.
func (p *Pool) ids() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(p.order))
	for _, e := range p.order {
		out = append(out, e.obj.ID())
	}
	return out
}

// park moves a fresh instance straight into the free list.
func (p *Pool) park(e *entry) {
	p.free.push(e)
	p.freeIDs[e.obj.ID()] = struct{}{}
	p.engine.SetActive(e.obj, false)
	p.engine.SetParent(e.obj, p.container)
}

func (p *Pool) field() observability.Field {
	return observability.F("pool", p.name)
}
