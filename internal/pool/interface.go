package pool

import (
	"time"

	"github.com/google/uuid"

	"github.com/coachpo/spawnpool/internal/clock"
	"github.com/coachpo/spawnpool/internal/spatial"
)

// Object is anything the engine can stamp out and recycle. Templates and
// instances are both Objects; identity is the ID and never changes for the
// lifetime of the object.
type Object interface {
	ID() uuid.UUID
}

// Named objects contribute their name to the default pool name.
type Named interface {
	Name() string
}

// Poolable is the optional capability an instance implements to run its own
// setup and teardown when it leaves or re-enters a pool. The check happens
// once, when the pool creates the instance.
type Poolable interface {
	OnAcquired()
	OnReturned()
}

// Spawner creates, destroys and toggles objects.
type Spawner interface {
	Instantiate(template Object) (Object, error)
	Destroy(obj Object)
	SetActive(obj Object, active bool)
	// NewContainer creates an empty object used as the parent of free
	// instances. Persistent containers survive world teardown.
	NewContainer(name string, persistent bool) (Object, error)
}

// Placer reads and writes an object's placement. A nil parent means the root.
type Placer interface {
	SetParent(obj, parent Object)
	Placement(obj Object) Placement
	SetPosition(obj Object, v spatial.Vec3)
	SetLocalPosition(obj Object, v spatial.Vec3)
	SetRotation(obj Object, q spatial.Quat)
	SetLocalRotation(obj Object, q spatial.Quat)
	SetLocalScale(obj Object, v spatial.Vec3)
	SetLossyScale(obj Object, v spatial.Vec3)
}

// Engine is the full set of primitives a Pool drives.
type Engine interface {
	Spawner
	Placer
}

// Scheduler runs a callback after a delay on the same logical thread as the
// pool. Implemented by *clock.Clock.
type Scheduler interface {
	After(delay time.Duration, base clock.TimeBase, fn func()) clock.Cancelable
}

// Host signals that the current world is ending.
type Host interface {
	OnWorldEnding(fn func())
}

// Placement is the local transform captured from a template when its pool is
// created and restored on instances acquired without overrides.
type Placement struct {
	LocalPosition spatial.Vec3
	LocalRotation spatial.Quat
	LocalScale    spatial.Vec3
}
