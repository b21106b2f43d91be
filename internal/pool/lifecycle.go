package pool

import (
	"reflect"

	"github.com/coachpo/spawnpool/internal/observability"
	"github.com/coachpo/spawnpool/internal/telemetry"
)

// admit is the return guard shared by Return and ReturnDelayed. It hands
// back the entry of an outstanding instance this pool created.
func (p *Pool) admit(obj Object) (*entry, bool) {
	if isNil(obj) || p.disposed {
		return nil, false
	}
	id := obj.ID()
	if id == p.template.ID() {
		p.logger.Warn("refusing to return the pool template",
			p.field(), observability.F("object", id.String()))
		return nil, false
	}
	e, ok := p.created[id]
	if !ok {
		p.rejectForeign(obj)
		return nil, false
	}
	if _, free := p.freeIDs[id]; free {
		return nil, false
	}
	return e, true
}

func (p *Pool) rejectForeign(obj Object) {
	p.registry.metrics.Rejected(p.name, p.objectType, telemetry.ReasonForeign)
	p.foreignWarn.Do(func() {
		p.logger.Warn("object was not created by this pool",
			p.field(),
			observability.F("object", obj.ID().String()),
			observability.F("policy", p.opts.foreign.String()))
	})
	if p.opts.foreign == ForeignDestroy {
		p.engine.Destroy(obj)
	}
}

// isNil reports whether obj is nil, including a typed nil pointer held in
// the interface.
func isNil(obj Object) bool { return isNilValue(obj) }

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
