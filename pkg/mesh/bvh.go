package mesh

import (
	"fmt"

	"github.com/Faultbox/meshquery/pkg/geom"
	"github.com/Faultbox/meshquery/pkg/math"
)

const (
	noNode   int32 = -1
	rootNode int32 = 0
)

// node is one slot of the tree arena. Links are indices into Tree.nodes.
type node struct {
	bounds geom.AABB
	sphere geom.Sphere
	parent int32
	left   int32
	right  int32
	tri    int32 // noNode for internal nodes
}

func (n *node) isLeaf() bool {
	return n.tri != noNode
}

// Tree is a bounding-volume hierarchy over a mesh's triangles.
//
// The tree is built once by inserting each triangle as a new leaf and is
// never rebalanced, so its shape follows insertion order. Slot 0 is a
// sentinel root with up to two children; its own volume is never
// consulted. After construction the tree is read-only.
type Tree struct {
	nodes       []node
	tris        []Triangle
	vertexCount int
}

// NodeInfo is a read-only view of a tree node.
type NodeInfo struct {
	Index    int
	Bounds   geom.AABB
	Sphere   geom.Sphere
	Leaf     bool
	Triangle int // -1 for internal nodes
	Parent   int // -1 for the root
	Left     int // -1 when absent
	Right    int // -1 when absent
}

// OBB returns the oriented view of the node's box under transform m.
func (n NodeInfo) OBB(m math.Mat4) geom.OBB {
	return n.Bounds.OBB(m)
}

// BuildTree inserts tris in order into a new tree. vertexCount is the size
// of the vertex buffer the triangles' VertexIDs refer to.
func BuildTree(tris []Triangle, vertexCount int) *Tree {
	t := &Tree{
		nodes:       make([]node, 1, 2*len(tris)+1),
		tris:        tris,
		vertexCount: vertexCount,
	}
	t.nodes[rootNode] = node{parent: noNode, left: noNode, right: noNode, tri: noNode}
	for i := range tris {
		t.insert(int32(i))
	}
	return t
}

func (t *Tree) addNode(n node) int32 {
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

func (t *Tree) insert(tri int32) {
	bounds := t.tris[tri].Bounds()
	leaf := t.addNode(node{
		bounds: bounds,
		sphere: bounds.BoundingSphere(),
		parent: rootNode,
		left:   noNode,
		right:  noNode,
		tri:    tri,
	})

	root := &t.nodes[rootNode]
	if root.left == noNode {
		root.left = leaf
		return
	}
	if root.right == noNode {
		root.right = leaf
		return
	}

	// Walk down to the leaf whose sphere is the cheapest to join.
	center := t.nodes[leaf].sphere.Center
	cur := rootNode
	for !t.nodes[cur].isLeaf() {
		cur = t.closerChild(cur, center)
	}

	parent := t.nodes[cur].parent
	inner := t.addNode(node{parent: parent, left: cur, right: leaf, tri: noNode})
	t.nodes[cur].parent = inner
	t.nodes[leaf].parent = inner
	if p := &t.nodes[parent]; p.left == cur {
		p.left = inner
	} else {
		p.right = inner
	}

	for n := inner; n != rootNode; n = t.nodes[n].parent {
		t.enclose(n)
	}
}

// closerChild picks the child of n minimizing the distance to center plus
// the child's radius.
func (t *Tree) closerChild(n int32, center math.Vec3) int32 {
	nd := &t.nodes[n]
	l, r := &t.nodes[nd.left], &t.nodes[nd.right]
	costL := l.sphere.Center.Distance(center) + l.sphere.Radius
	costR := r.sphere.Center.Distance(center) + r.sphere.Radius
	if costL <= costR {
		return nd.left
	}
	return nd.right
}

func (t *Tree) enclose(n int32) {
	nd := &t.nodes[n]
	nd.bounds = t.nodes[nd.left].bounds.Union(t.nodes[nd.right].bounds)
	nd.sphere = nd.bounds.BoundingSphere()
}

// Len returns the number of leaves, one per triangle.
func (t *Tree) Len() int {
	return len(t.tris)
}

// NodeCount returns the number of arena slots including the root sentinel.
func (t *Tree) NodeCount() int {
	return len(t.nodes)
}

// Triangles returns a copy of the triangles the tree was built over.
func (t *Tree) Triangles() []Triangle {
	return append([]Triangle(nil), t.tris...)
}

// Bounds returns the box enclosing every leaf.
func (t *Tree) Bounds() geom.AABB {
	root := t.nodes[rootNode]
	box := geom.EmptyAABB()
	if root.left != noNode {
		box = box.Union(t.nodes[root.left].bounds)
	}
	if root.right != noNode {
		box = box.Union(t.nodes[root.right].bounds)
	}
	return box
}

// Node returns a view of arena slot i.
func (t *Tree) Node(i int) NodeInfo {
	n := t.nodes[i]
	return NodeInfo{
		Index:    i,
		Bounds:   n.bounds,
		Sphere:   n.sphere,
		Leaf:     n.isLeaf(),
		Triangle: int(n.tri),
		Parent:   int(n.parent),
		Left:     int(n.left),
		Right:    int(n.right),
	}
}

// Walk visits every node below the root depth-first. fn receives the node
// and its depth (root children have depth 1); returning false skips the
// node's subtree.
func (t *Tree) Walk(fn func(n NodeInfo, depth int) bool) {
	type entry struct {
		node  int32
		depth int
	}
	root := t.nodes[rootNode]
	var pending []entry
	for _, c := range [2]int32{root.right, root.left} {
		if c != noNode {
			pending = append(pending, entry{c, 1})
		}
	}
	for len(pending) > 0 {
		e := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if !fn(t.Node(int(e.node)), e.depth) {
			continue
		}
		nd := &t.nodes[e.node]
		if !nd.isLeaf() {
			pending = append(pending, entry{nd.right, e.depth + 1}, entry{nd.left, e.depth + 1})
		}
	}
}

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	depth := 0
	t.Walk(func(_ NodeInfo, d int) bool {
		if d > depth {
			depth = d
		}
		return true
	})
	return depth
}

// Validate checks the structural invariants of the tree.
func (t *Tree) Validate() error {
	refs := make([]int, len(t.tris))
	leaves := 0
	var err error

	t.Walk(func(n NodeInfo, _ int) bool {
		if err != nil {
			return false
		}
		parent := t.nodes[n.Parent]
		if parent.left != int32(n.Index) && parent.right != int32(n.Index) {
			err = fmt.Errorf("node %d: not a child of its parent %d", n.Index, n.Parent)
			return false
		}
		if n.Leaf {
			if n.Left != -1 || n.Right != -1 {
				err = fmt.Errorf("node %d: leaf has children", n.Index)
				return false
			}
			if n.Triangle < 0 || n.Triangle >= len(t.tris) {
				err = fmt.Errorf("node %d: triangle %d out of range", n.Index, n.Triangle)
				return false
			}
			refs[n.Triangle]++
			leaves++
			return true
		}
		if n.Left == -1 || n.Right == -1 {
			err = fmt.Errorf("node %d: internal node needs two children", n.Index)
			return false
		}
		for _, c := range [2]int{n.Left, n.Right} {
			if !n.Bounds.ContainsBox(t.nodes[c].bounds) {
				err = fmt.Errorf("node %d: bounds do not enclose child %d", n.Index, c)
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}

	if leaves != len(t.tris) {
		return fmt.Errorf("tree has %d leaves, want %d", leaves, len(t.tris))
	}
	for i, c := range refs {
		if c != 1 {
			return fmt.Errorf("triangle %d referenced by %d leaves", i, c)
		}
	}
	return nil
}
