// Package scene is a small in-memory transform hierarchy. It supplies the
// spawner, placement and world-lifecycle primitives the pool engine drives.
package scene

import (
	"github.com/google/uuid"

	"github.com/coachpo/spawnpool/internal/spatial"
)

// Hook reacts to a node leaving or re-entering its pool. Hooks are shared by
// reference between a template and its clones, so they should keep per-node
// state on the node passed in.
type Hook interface {
	OnAcquired(n *Node)
	OnReturned(n *Node)
}

// Node is a scene object with a local transform and optional children.
type Node struct {
	id         uuid.UUID
	name       string
	world      *World
	parent     *Node
	children   []*Node
	active     bool
	persistent bool
	destroyed  bool

	localPosition spatial.Vec3
	localRotation spatial.Quat
	localScale    spatial.Vec3

	hooks []Hook
	// Data carries caller-owned payload; it is copied by reference on clone.
	Data any
}

// ID returns the node's stable identity.
func (n *Node) ID() uuid.UUID { return n.id }

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Parent returns the parent node or nil for roots.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// ActiveSelf reports the node's own active flag.
func (n *Node) ActiveSelf() bool { return n.active }

// Destroyed reports whether the node has been destroyed.
func (n *Node) Destroyed() bool { return n.destroyed }

// Persistent reports whether the node survives world teardown.
func (n *Node) Persistent() bool { return n.persistent }

// LocalPosition returns the position relative to the parent.
func (n *Node) LocalPosition() spatial.Vec3 { return n.localPosition }

// LocalRotation returns the rotation relative to the parent.
func (n *Node) LocalRotation() spatial.Quat { return n.localRotation }

// LocalScale returns the scale relative to the parent.
func (n *Node) LocalScale() spatial.Vec3 { return n.localScale }

// Position returns the world-space position.
func (n *Node) Position() spatial.Vec3 {
	if n.parent == nil {
		return n.localPosition
	}
	p := n.parent
	return p.Position().Add(p.Rotation().Rotate(p.LossyScale().Scale(n.localPosition)))
}

// Rotation returns the world-space rotation.
func (n *Node) Rotation() spatial.Quat {
	if n.parent == nil {
		return n.localRotation
	}
	return n.parent.Rotation().Mul(n.localRotation)
}

// LossyScale approximates world-space scale as the product of local scales.
func (n *Node) LossyScale() spatial.Vec3 {
	if n.parent == nil {
		return n.localScale
	}
	return n.parent.LossyScale().Scale(n.localScale)
}

// AddHook attaches a hook. Clones made afterwards share it.
func (n *Node) AddHook(h Hook) {
	if h != nil {
		n.hooks = append(n.hooks, h)
	}
}

// OnAcquired forwards to every hook on the node and its children.
func (n *Node) OnAcquired() {
	for _, h := range n.hooks {
		h.OnAcquired(n)
	}
	for _, c := range n.children {
		c.OnAcquired()
	}
}

// OnReturned forwards to every hook on the node and its children.
func (n *Node) OnReturned() {
	for _, h := range n.hooks {
		h.OnReturned(n)
	}
	for _, c := range n.children {
		c.OnReturned()
	}
}

func (n *Node) detach() {
	if n.parent == nil {
		if n.world != nil {
			n.world.removeRoot(n)
		}
		return
	}
	siblings := n.parent.children
	for i, c := range siblings {
		if c == n {
			n.parent.children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	n.parent = nil
}
