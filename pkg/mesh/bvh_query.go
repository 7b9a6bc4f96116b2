package mesh

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/meshquery/pkg/geom"
	"github.com/Faultbox/meshquery/pkg/math"
)

// FaceFilter restricts a raycast to triangles the camera can see.
// Camera must be expressed in the tree's model space. Mirrored is set when
// the model-to-world transform reverses winding, which swaps which side of
// each triangle is rendered.
type FaceFilter struct {
	Camera   geom.Camera
	Mirrored bool
}

func (f *FaceFilter) visible(tri *Triangle) bool {
	n := tri.Normal
	if f.Mirrored {
		n = tri.FlippedNormal
	}
	return f.Camera.Faces(tri.V0, n)
}

// BoxQuery is a world-space box together with the transform placing the
// tree in the world. A query in model space uses the identity transform.
type BoxQuery struct {
	Box       geom.OBB
	Transform math.Mat4
	identity  bool
}

// NewBoxQuery returns a query for box against a tree placed by transform.
func NewBoxQuery(box geom.OBB, transform math.Mat4) BoxQuery {
	return BoxQuery{Box: box, Transform: transform, identity: transform == math.Identity()}
}

// ModelBoxQuery returns a query for a box given in the tree's model space.
func ModelBoxQuery(box geom.OBB) BoxQuery {
	return BoxQuery{Box: box, Transform: math.Identity(), identity: true}
}

func (q *BoxQuery) toWorld(p math.Vec3) math.Vec3 {
	if q.identity {
		return p
	}
	return q.Transform.TransformVec3(p)
}

func (q *BoxQuery) overlapsNode(n *node) bool {
	s := n.sphere
	if !q.identity {
		s = s.Transform(q.Transform)
	}
	return q.Box.IntersectsSphere(s)
}

func (q *BoxQuery) overlapsTriangle(tri *Triangle) bool {
	return q.Box.IntersectsTriangle(q.toWorld(tri.V0), q.toWorld(tri.V1), q.toWorld(tri.V2))
}

// OverlapVertex is a mesh vertex found inside a query box.
type OverlapVertex struct {
	// Index is the position of the vertex in the mesh's vertex buffer.
	Index uint32
	// Position is in the space of the query box.
	Position math.Vec3
}

// seed clears s and pushes the root's children.
func (t *Tree) seed(s *Stack) {
	s.reset()
	root := &t.nodes[rootNode]
	if root.right != noNode {
		s.push(root.right)
	}
	if root.left != noNode {
		s.push(root.left)
	}
}

func (t *Tree) pushChildren(s *Stack, n *node) {
	s.push(n.right)
	s.push(n.left)
}

// RaycastClosest returns the nearest triangle hit by ray, which must be in
// model space. dist is in multiples of ray.Direction. A nil filter disables
// back-face culling.
func (t *Tree) RaycastClosest(s *Stack, ray geom.Ray, filter *FaceFilter) (hit bool, tri int, dist float32) {
	best := float32(math32.MaxFloat32)
	bestTri := noNode

	t.seed(s)
	for n, ok := s.pop(); ok; n, ok = s.pop() {
		nd := &t.nodes[n]
		// Grown by the edge tolerance so the box never rejects a ray that
		// Triangle.Raycast would accept.
		tmin, _, inside := ray.SlabRange(nd.bounds.Grow(edgeEpsilon))
		if !inside || tmin > best {
			continue
		}
		if !nd.isLeaf() {
			t.pushChildren(s, nd)
			continue
		}

		candidate := &t.tris[nd.tri]
		if filter != nil && !filter.visible(candidate) {
			continue
		}
		if ok, d := candidate.Raycast(ray); ok && d < best {
			best = d
			bestTri = nd.tri
		}
	}

	if bestTri == noNode {
		return false, -1, 0
	}
	return true, int(bestTri), best
}

// VertsOverlapBox appends every vertex inside the query box to out. Each
// vertex buffer entry is reported at most once.
func (t *Tree) VertsOverlapBox(s *Stack, q BoxQuery, out []OverlapVertex) []OverlapVertex {
	t.seed(s)
	for n, ok := s.pop(); ok; n, ok = s.pop() {
		nd := &t.nodes[n]
		if !q.overlapsNode(nd) {
			continue
		}
		if !nd.isLeaf() {
			t.pushChildren(s, nd)
			continue
		}

		tri := &t.tris[nd.tri]
		for i, v := range tri.Vertices() {
			id := tri.VertexIDs[i]
			if !s.markVertex(id, t.vertexCount) {
				continue
			}
			if p := q.toWorld(v); q.Box.ContainsPoint(p) {
				out = append(out, OverlapVertex{Index: id, Position: p})
			}
		}
	}
	s.reset()
	return out
}

// AnyVertsOverlapBox reports whether any vertex lies inside the query box.
func (t *Tree) AnyVertsOverlapBox(s *Stack, q BoxQuery) bool {
	t.seed(s)
	for n, ok := s.pop(); ok; n, ok = s.pop() {
		nd := &t.nodes[n]
		if !q.overlapsNode(nd) {
			continue
		}
		if !nd.isLeaf() {
			t.pushChildren(s, nd)
			continue
		}

		for _, v := range t.tris[nd.tri].Vertices() {
			if q.Box.ContainsPoint(q.toWorld(v)) {
				s.reset()
				return true
			}
		}
	}
	return false
}

// TrianglesOverlapBox appends the index of every triangle overlapping the
// query box to out.
func (t *Tree) TrianglesOverlapBox(s *Stack, q BoxQuery, out []int) []int {
	t.seed(s)
	for n, ok := s.pop(); ok; n, ok = s.pop() {
		nd := &t.nodes[n]
		if !q.overlapsNode(nd) {
			continue
		}
		if !nd.isLeaf() {
			t.pushChildren(s, nd)
			continue
		}

		if tri := &t.tris[nd.tri]; q.overlapsTriangle(tri) {
			out = append(out, tri.Index)
		}
	}
	return out
}

// AnyTrianglesOverlapBox reports whether any triangle overlaps the query
// box, stopping at the first one found.
func (t *Tree) AnyTrianglesOverlapBox(s *Stack, q BoxQuery) bool {
	t.seed(s)
	for n, ok := s.pop(); ok; n, ok = s.pop() {
		nd := &t.nodes[n]
		if !q.overlapsNode(nd) {
			continue
		}
		if !nd.isLeaf() {
			t.pushChildren(s, nd)
			continue
		}

		if q.overlapsTriangle(&t.tris[nd.tri]) {
			s.reset()
			return true
		}
	}
	return false
}
