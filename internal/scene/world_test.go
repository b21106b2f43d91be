package scene

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/spawnpool/errs"
	"github.com/coachpo/spawnpool/internal/spatial"
)

type countingHook struct {
	acquired, returned int
}

func (h *countingHook) OnAcquired(*Node) { h.acquired++ }
func (h *countingHook) OnReturned(*Node) { h.returned++ }

func TestInstantiateClonesSubtreeWithFreshIdentity(t *testing.T) {
	w := NewWorld()
	tmpl := w.NewNode("bullet")
	child := w.NewNode("trail")
	w.Attach(child, tmpl)
	w.SetLocalPosition(tmpl, spatial.V3(1, 2, 3))
	hook := new(countingHook)
	tmpl.AddHook(hook)

	obj, err := w.Instantiate(tmpl)
	require.NoError(t, err)
	clone := obj.(*Node)

	require.NotEqual(t, tmpl.ID(), clone.ID())
	require.Equal(t, "bullet", clone.Name())
	require.Equal(t, spatial.V3(1, 2, 3), clone.LocalPosition())
	require.Len(t, clone.Children(), 1)
	require.NotEqual(t, child.ID(), clone.Children()[0].ID())
	require.Equal(t, 4, w.Len())

	clone.OnAcquired()
	require.Equal(t, 1, hook.acquired)
}

func TestWorldPositionRoundTripsThroughParent(t *testing.T) {
	w := NewWorld()
	parent := w.NewNode("turret")
	w.SetPosition(parent, spatial.V3(10, 0, 0))
	w.SetRotation(parent, spatial.AxisAngle(spatial.V3(0, 1, 0), math.Pi/2))
	w.SetLocalScale(parent, spatial.V3(2, 2, 2))

	child := w.NewNode("muzzle")
	w.Attach(child, parent)
	w.SetPosition(child, spatial.V3(10, 0, -4))

	require.True(t, child.Position().ApproxEqual(spatial.V3(10, 0, -4), 1e-9), "got %+v", child.Position())
	require.True(t, child.LocalPosition().ApproxEqual(spatial.V3(2, 0, 0), 1e-9), "got %+v", child.LocalPosition())

	w.SetLossyScale(child, spatial.V3(1, 1, 1))
	require.True(t, child.LocalScale().ApproxEqual(spatial.V3(0.5, 0.5, 0.5), 1e-9))
	require.True(t, child.LossyScale().ApproxEqual(spatial.One, 1e-9))
}

func TestEndDestroysNonPersistentRoots(t *testing.T) {
	w := NewWorld()
	keep, err := w.NewContainer("keep", true)
	require.NoError(t, err)
	drop := w.NewNode("drop")
	inner := w.NewNode("inner")
	w.Attach(inner, keep.(*Node))

	signalled := 0
	w.OnWorldEnding(func() { signalled++ })
	w.End()

	require.Equal(t, 1, signalled)
	require.True(t, drop.Destroyed())
	require.False(t, keep.(*Node).Destroyed())
	require.False(t, inner.Destroyed())
	require.Equal(t, 1, w.Ended())
}

func TestDestroyDetachesFromParent(t *testing.T) {
	w := NewWorld()
	parent := w.NewNode("parent")
	child := w.NewNode("child")
	w.Attach(child, parent)

	w.Destroy(child)
	require.True(t, child.Destroyed())
	require.Empty(t, parent.Children())

	w.Destroy(child)
	w.SetActive(child, true)
	require.False(t, child.ActiveSelf())
}

func TestInstantiateRejectsDeadOrForeignNodes(t *testing.T) {
	w := NewWorld()
	tmpl := w.NewNode("bullet")
	w.Destroy(tmpl)

	_, err := w.Instantiate(tmpl)
	require.True(t, errs.Is(err, errs.CodeNotFound), err.Error())

	_, err = w.Instantiate(NewWorld().NewNode("other"))
	require.True(t, errs.Is(err, errs.CodeNotFound))

	_, err = w.Instantiate(nil)
	require.True(t, errs.Is(err, errs.CodeInvalidArgument))
}
