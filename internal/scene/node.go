// Package scene is the object graph the attachment manager owns and the
// renderer draws: group, mesh and bone nodes with TRS transforms and
// reference-counted materials.
package scene

import (
	"image/color"
	"sync/atomic"

	"tryon-compositor/internal/mathutil"
)

// Kind is the role of a node.
type Kind uint8

const (
	KindGroup Kind = iota
	KindMesh
	KindBone
)

func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindBone:
		return "bone"
	}
	return "group"
}

// ParseKind maps a file-format kind name to a Kind. Unknown names are groups.
func ParseKind(s string) Kind {
	switch s {
	case "mesh":
		return KindMesh
	case "bone":
		return KindBone
	}
	return KindGroup
}

var lastID atomic.Uint32

// nextID hands out process-unique, non-zero node ids. Part id 0 means "no mesh".
func nextID() uint32 { return lastID.Add(1) }

// Geometry is an indexed triangle list in node-local meters.
type Geometry struct {
	Verts []mathutil.Vec3
	Tris  [][3]int
}

// Material is a flat-colored surface. DepthOnly materials write depth but
// never color, hiding whatever lies behind them.
type Material struct {
	Name      string
	Color     color.NRGBA
	DepthOnly bool

	users int
}

// NewMaterial creates an unbound material.
func NewMaterial(name string, c color.NRGBA) *Material {
	return &Material{Name: name, Color: c}
}

// Users returns how many nodes currently reference m.
func (m *Material) Users() int { return m.users }

// Node is one element of an object graph.
type Node struct {
	ID       uint32
	Name     string
	Kind     Kind
	Parent   *Node
	Children []*Node

	Geometry *Geometry
	Material *Material

	Enabled        bool
	ReceiveShadows bool

	Position mathutil.Vec3
	Rotation mathutil.Vec3 // Euler XYZ, radians
	Scale    mathutil.Vec3
}

// NewNode creates an enabled node with unit scale.
func NewNode(name string, kind Kind) *Node {
	return &Node{
		ID:      nextID(),
		Name:    name,
		Kind:    kind,
		Enabled: true,
		Scale:   mathutil.Vec3{1, 1, 1},
	}
}

// SetEnabled shows or hides the node and its subtree.
func (n *Node) SetEnabled(on bool) { n.Enabled = on }

// SetPosition moves the node within its parent's space.
func (n *Node) SetPosition(p mathutil.Vec3) { n.Position = p }

// AddChild reparents c under n.
func (n *Node) AddChild(c *Node) {
	c.Detach()
	c.Parent = n
	n.Children = append(n.Children, c)
}

// Detach removes n from its parent.
func (n *Node) Detach() {
	p := n.Parent
	if p == nil {
		return
	}
	for i, c := range p.Children {
		if c == n {
			p.Children = append(p.Children[:i:i], p.Children[i+1:]...)
			break
		}
	}
	n.Parent = nil
}

// SetMaterial binds m to n and returns the previous material when no node
// references it any more, so the caller can dispose it.
func (n *Node) SetMaterial(m *Material) (released *Material) {
	old := n.Material
	if old == m {
		return nil
	}
	n.Material = m
	if m != nil {
		m.users++
	}
	if old != nil {
		old.users--
		if old.users <= 0 {
			old.users = 0
			return old
		}
	}
	return nil
}

// Local is the node's transform relative to its parent.
func (n *Node) Local() mathutil.Mat4 {
	return mathutil.FromTRS(n.Position, n.Rotation, n.Scale)
}

// World chains local transforms from the root down to n.
func (n *Node) World() mathutil.Mat4 {
	if n.Parent == nil {
		return n.Local()
	}
	return mathutil.Mat4Mul(n.Parent.World(), n.Local())
}

// Visible reports whether n and all of its ancestors are enabled.
func (n *Node) Visible() bool {
	for p := n; p != nil; p = p.Parent {
		if !p.Enabled {
			return false
		}
	}
	return true
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the children of that node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// FindByName returns the first node named name in depth-first order.
func (n *Node) FindByName(name string) *Node {
	var found *Node
	n.Walk(func(x *Node) bool {
		if found != nil {
			return false
		}
		if x.Name == name {
			found = x
			return false
		}
		return true
	})
	return found
}

// FindBone returns the first bone named name in depth-first order.
func (n *Node) FindBone(name string) *Node {
	var found *Node
	n.Walk(func(x *Node) bool {
		if found != nil {
			return false
		}
		if x.Kind == KindBone && x.Name == name {
			found = x
			return false
		}
		return true
	})
	return found
}

// Meshes returns every mesh node in the subtree, n included.
func (n *Node) Meshes() []*Node {
	var out []*Node
	n.Walk(func(x *Node) bool {
		if x.Kind == KindMesh {
			out = append(out, x)
		}
		return true
	})
	return out
}
