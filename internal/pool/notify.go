package pool

import (
	"github.com/coachpo/spawnpool/internal/observability"
)

type subscription[T any] struct {
	id int
	fn func(T)
}

// observerList is an ordered set of callbacks. Each callback runs isolated:
// a panic is logged and the remaining callbacks still run.
type observerList[T any] struct {
	next int
	subs []subscription[T]
}

func (l *observerList[T]) add(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	l.next++
	id := l.next
	l.subs = append(l.subs, subscription[T]{id: id, fn: fn})
	return func() { l.remove(id) }
}

func (l *observerList[T]) remove(id int) {
	for i, s := range l.subs {
		if s.id == id {
			l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
			return
		}
	}
}

func (l *observerList[T]) fire(logger observability.Logger, what string, v T, fields ...observability.Field) {
	if len(l.subs) == 0 {
		return
	}
	snapshot := make([]subscription[T], len(l.subs))
	copy(snapshot, l.subs)
	for _, s := range snapshot {
		fn := s.fn
		observability.Guard(logger, what, func() { fn(v) }, fields...)
	}
}
