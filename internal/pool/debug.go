//go:build debug

package pool

import (
	"runtime/debug"
	"sort"

	"github.com/google/uuid"
)

// debugState remembers where every outstanding instance was acquired so
// teardown can report leaks.
type debugState struct {
	name   string
	stacks map[uuid.UUID]string
}

func newDebugState(name string) *debugState {
	return &debugState{
		name:   name,
		stacks: make(map[uuid.UUID]string),
	}
}

func (d *debugState) recordAcquire(obj Object) {
	if d == nil || isNil(obj) {
		return
	}
	d.stacks[obj.ID()] = string(debug.Stack())
}

func (d *debugState) recordRelease(obj Object) {
	if d == nil || isNil(obj) {
		return
	}
	delete(d.stacks, obj.ID())
}

func (d *debugState) activeStacks() []string {
	if d == nil || len(d.stacks) == 0 {
		return nil
	}
	out := make([]string, 0, len(d.stacks))
	for _, stack := range d.stacks {
		out = append(out, stack)
	}
	sort.Strings(out)
	return out
}

func (d *debugState) reset() {
	if d == nil {
		return
	}
	d.stacks = make(map[uuid.UUID]string)
}
