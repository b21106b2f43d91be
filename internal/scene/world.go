package scene

import (
	"github.com/google/uuid"

	"github.com/coachpo/spawnpool/errs"
	"github.com/coachpo/spawnpool/internal/pool"
	"github.com/coachpo/spawnpool/internal/spatial"
)

// World owns every live node and the world-ending signal. It is not safe for
// concurrent use.
type World struct {
	nodes  map[uuid.UUID]*Node
	roots  []*Node
	ending []func()
	ended  int
}

// NewWorld returns an empty world.
func NewWorld() *World {
	return &World{nodes: make(map[uuid.UUID]*Node)}
}

// NewNode creates an active root node with identity transform.
func (w *World) NewNode(name string) *Node {
	n := &Node{
		id:            uuid.New(),
		name:          name,
		world:         w,
		active:        true,
		localRotation: spatial.Identity,
		localScale:    spatial.One,
	}
	w.nodes[n.id] = n
	w.roots = append(w.roots, n)
	return n
}

// Lookup returns the live node with the given id.
func (w *World) Lookup(id uuid.UUID) (*Node, bool) {
	n, ok := w.nodes[id]
	return n, ok
}

// Len returns the number of live nodes.
func (w *World) Len() int { return len(w.nodes) }

// Ended returns how many times End has run.
func (w *World) Ended() int { return w.ended }

// MarkPersistent flags a root node so it survives End.
func (w *World) MarkPersistent(n *Node) {
	if n != nil {
		n.persistent = true
	}
}

// Attach parents child under parent keeping child's local transform. A nil
// parent moves child to the root.
func (w *World) Attach(child, parent *Node) {
	if child == nil || child.destroyed {
		return
	}
	if parent != nil && parent.destroyed {
		parent = nil
	}
	if child.parent == parent && (parent != nil || w.isRoot(child)) {
		return
	}
	child.detach()
	if parent == nil {
		w.roots = append(w.roots, child)
		return
	}
	child.parent = parent
	parent.children = append(parent.children, child)
}

// OnWorldEnding registers fn to run at the start of End.
func (w *World) OnWorldEnding(fn func()) {
	if fn != nil {
		w.ending = append(w.ending, fn)
	}
}

// End signals the world is ending, then destroys every root that is not
// persistent along with its subtree.
func (w *World) End() {
	for _, fn := range w.ending {
		fn()
	}
	roots := make([]*Node, len(w.roots))
	copy(roots, w.roots)
	for _, r := range roots {
		if !r.persistent {
			w.destroy(r)
		}
	}
	w.ended++
}

// Instantiate deep-clones template and its children as a new active root.
func (w *World) Instantiate(template pool.Object) (pool.Object, error) {
	src, err := w.node(template)
	if err != nil {
		return nil, err
	}
	clone := w.clone(src, nil)
	w.roots = append(w.roots, clone)
	return clone, nil
}

func (w *World) clone(src, parent *Node) *Node {
	n := &Node{
		id:            uuid.New(),
		name:          src.name,
		world:         w,
		parent:        parent,
		active:        src.active,
		localPosition: src.localPosition,
		localRotation: src.localRotation,
		localScale:    src.localScale,
		Data:          src.Data,
	}
	n.hooks = append(n.hooks, src.hooks...)
	w.nodes[n.id] = n
	for _, c := range src.children {
		n.children = append(n.children, w.clone(c, n))
	}
	return n
}

// Destroy removes obj and its subtree from the world. Unknown or already
// destroyed objects are ignored.
func (w *World) Destroy(obj pool.Object) {
	n, err := w.node(obj)
	if err != nil {
		return
	}
	w.destroy(n)
}

func (w *World) destroy(n *Node) {
	if n.destroyed {
		return
	}
	n.detach()
	w.destroyTree(n)
}

func (w *World) destroyTree(n *Node) {
	n.destroyed = true
	n.active = false
	delete(w.nodes, n.id)
	for _, c := range n.children {
		c.parent = nil
		w.destroyTree(c)
	}
	n.children = nil
}

// SetActive toggles the node's own active flag.
func (w *World) SetActive(obj pool.Object, active bool) {
	if n, err := w.node(obj); err == nil {
		n.active = active
	}
}

// NewContainer creates a root node that holds pooled instances.
func (w *World) NewContainer(name string, persistent bool) (pool.Object, error) {
	n := w.NewNode(name)
	n.persistent = persistent
	return n, nil
}

// SetParent implements pool.Placer.
func (w *World) SetParent(obj, parent pool.Object) {
	child, err := w.node(obj)
	if err != nil {
		return
	}
	var p *Node
	if parent != nil {
		p, _ = w.node(parent)
	}
	w.Attach(child, p)
}

// Placement returns the local transform of obj.
func (w *World) Placement(obj pool.Object) pool.Placement {
	n, err := w.node(obj)
	if err != nil {
		return pool.Placement{LocalRotation: spatial.Identity, LocalScale: spatial.One}
	}
	return pool.Placement{
		LocalPosition: n.localPosition,
		LocalRotation: n.localRotation,
		LocalScale:    n.localScale,
	}
}

// SetPosition places obj at a world-space position.
func (w *World) SetPosition(obj pool.Object, v spatial.Vec3) {
	n, err := w.node(obj)
	if err != nil {
		return
	}
	if n.parent == nil {
		n.localPosition = v
		return
	}
	p := n.parent
	local := p.Rotation().Inverse().Rotate(v.Sub(p.Position()))
	n.localPosition = local.DivSafe(p.LossyScale())
}

// SetLocalPosition sets the parent-relative position.
func (w *World) SetLocalPosition(obj pool.Object, v spatial.Vec3) {
	if n, err := w.node(obj); err == nil {
		n.localPosition = v
	}
}

// SetRotation sets the world-space rotation.
func (w *World) SetRotation(obj pool.Object, q spatial.Quat) {
	n, err := w.node(obj)
	if err != nil {
		return
	}
	if n.parent == nil {
		n.localRotation = q
		return
	}
	n.localRotation = n.parent.Rotation().Inverse().Mul(q)
}

// SetLocalRotation sets the parent-relative rotation.
func (w *World) SetLocalRotation(obj pool.Object, q spatial.Quat) {
	if n, err := w.node(obj); err == nil {
		n.localRotation = q
	}
}

// SetLocalScale sets the parent-relative scale.
func (w *World) SetLocalScale(obj pool.Object, v spatial.Vec3) {
	if n, err := w.node(obj); err == nil {
		n.localScale = v
	}
}

// SetLossyScale picks a local scale so the world-space scale matches v.
func (w *World) SetLossyScale(obj pool.Object, v spatial.Vec3) {
	n, err := w.node(obj)
	if err != nil {
		return
	}
	if n.parent == nil {
		n.localScale = v
		return
	}
	n.localScale = v.DivSafe(n.parent.LossyScale())
}

func (w *World) node(obj pool.Object) (*Node, error) {
	if obj == nil {
		return nil, errs.InvalidArgument("scene", "nil object")
	}
	n, ok := obj.(*Node)
	if !ok || n == nil {
		return nil, errs.New("scene", errs.CodeInvalidArgument,
			errs.WithMessagef("unsupported object %T", obj))
	}
	if n.destroyed || n.world != w {
		return nil, errs.New("scene", errs.CodeNotFound,
			errs.WithMessage("node is not live in this world"), errs.WithField("node", n.id.String()))
	}
	return n, nil
}

func (w *World) isRoot(n *Node) bool {
	for _, r := range w.roots {
		if r == n {
			return true
		}
	}
	return false
}

func (w *World) removeRoot(n *Node) {
	for i, r := range w.roots {
		if r == n {
			w.roots = append(w.roots[:i], w.roots[i+1:]...)
			return
		}
	}
}
