package pool

import (
	"time"

	"github.com/coachpo/spawnpool/internal/clock"
	"github.com/coachpo/spawnpool/internal/spatial"
)

// InitMode selects how WithPreInitialization stores a callback.
type InitMode uint8

const (
	// InitAdd appends the callback to the pool's persistent list. It runs on
	// every later acquisition from the pool and survives Reset.
	InitAdd InitMode = iota
	// InitReplace sets the single one-shot callback, cleared by Reset.
	InitReplace
)

// InitFunc runs against an instance after placement and before activation.
type InitFunc func(obj Object)

type space uint8

const (
	spaceNone space = iota
	spaceWorld
	spaceLocal
)

// spawnSettings is the per-call part of a Spawn, copied by value when the
// slot is consumed.
type spawnSettings struct {
	parent Object

	positionSpace space
	position      spatial.Vec3
	rotationSpace space
	rotation      spatial.Quat
	scaleSpace    space
	scale         spatial.Vec3

	autoReturn      bool
	autoReturnDelay time.Duration
	autoReturnBase  clock.TimeBase

	replaceInit InitFunc
}

// Spawn is a pool's single reusable configuration slot. Obtain it through
// Pool.Configure or the callback of Pool.Acquire and never keep it: the next
// acquisition from the same pool mutates it.
type Spawn struct {
	pool     *Pool
	settings spawnSettings
	inits    []InitFunc
}

// WithParent attaches the instance under parent. Without it the instance
// becomes a root.
func (s *Spawn) WithParent(parent Object) *Spawn {
	s.settings.parent = parent
	return s
}

// WithPosition places the instance at a world-space position.
func (s *Spawn) WithPosition(v spatial.Vec3) *Spawn {
	s.settings.positionSpace, s.settings.position = spaceWorld, v
	return s
}

// WithLocalPosition places the instance relative to its parent.
func (s *Spawn) WithLocalPosition(v spatial.Vec3) *Spawn {
	s.settings.positionSpace, s.settings.position = spaceLocal, v
	return s
}

// WithRotation sets the world-space rotation.
func (s *Spawn) WithRotation(q spatial.Quat) *Spawn {
	s.settings.rotationSpace, s.settings.rotation = spaceWorld, q
	return s
}

// WithLocalRotation sets the rotation relative to the parent.
func (s *Spawn) WithLocalRotation(q spatial.Quat) *Spawn {
	s.settings.rotationSpace, s.settings.rotation = spaceLocal, q
	return s
}

// WithLocalScale sets the scale relative to the parent.
func (s *Spawn) WithLocalScale(v spatial.Vec3) *Spawn {
	s.settings.scaleSpace, s.settings.scale = spaceLocal, v
	return s
}

// WithLossyScale sets the world-space scale.
func (s *Spawn) WithLossyScale(v spatial.Vec3) *Spawn {
	s.settings.scaleSpace, s.settings.scale = spaceWorld, v
	return s
}

// WithAutoReturn returns the instance to its pool after delay on base.
func (s *Spawn) WithAutoReturn(delay time.Duration, base clock.TimeBase) *Spawn {
	s.settings.autoReturn = true
	s.settings.autoReturnDelay = delay
	s.settings.autoReturnBase = base
	return s
}

// WithPreInitialization registers fn to run before the instance is
// activated. See InitMode.
func (s *Spawn) WithPreInitialization(fn InitFunc, mode InitMode) *Spawn {
	if fn == nil {
		return s
	}
	if mode == InitAdd {
		s.inits = append(s.inits, fn)
		return s
	}
	s.settings.replaceInit = fn
	return s
}

// Reset clears every per-call override and the replace callback. Callbacks
// added with InitAdd are kept.
func (s *Spawn) Reset() *Spawn {
	s.settings = spawnSettings{}
	return s
}

// GetOrCreate consumes the slot: it acquires an instance with the
// accumulated settings and leaves the slot reset.
func (s *Spawn) GetOrCreate() (Object, error) {
	return s.consume(nil)
}

// GetOrCreateWith is GetOrCreate with an extra callback that runs before
// every other pre-initialization callback.
func (s *Spawn) GetOrCreateWith(fn InitFunc) (Object, error) {
	return s.consume(fn)
}

func (s *Spawn) consume(immediate InitFunc) (Object, error) {
	settings := s.settings
	inits := make([]InitFunc, len(s.inits))
	copy(inits, s.inits)
	s.Reset()
	return s.pool.acquire(settings, inits, immediate)
}
