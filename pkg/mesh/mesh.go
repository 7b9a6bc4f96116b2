// Package mesh indexes triangle meshes in a bounding-volume hierarchy and
// answers raycast, box-overlap and mesh-intersection queries against them.
package mesh

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	"go.uber.org/zap"

	"github.com/Faultbox/meshquery/internal/logger"
	"github.com/Faultbox/meshquery/pkg/geom"
	"github.com/Faultbox/meshquery/pkg/math"
)

var (
	// ErrIndexCount is returned when the index buffer does not hold whole triangles.
	ErrIndexCount = errors.New("index count is not a multiple of 3")
	// ErrIndexRange is returned when an index points past the vertex buffer.
	ErrIndexRange = errors.New("index out of vertex range")
	// ErrVertexCount is returned when a flat vertex buffer does not hold whole xyz triples.
	ErrVertexCount = errors.New("vertex component count is not a multiple of 3")
)

// singularEpsilon is the smallest |det| of a transform's linear part that
// still places a mesh with volume.
const singularEpsilon = 1e-12

// Mesh is an immutable triangle mesh with its spatial index.
// All query methods are safe for concurrent use.
type Mesh struct {
	vertices  []math.Vec3
	indices   []uint32
	triangles []Triangle
	bounds    geom.AABB
	tree      *Tree

	stacks sync.Pool
}

// New builds a mesh from a vertex buffer and an index buffer holding three
// indices per triangle. The inputs are copied. The tree is built before New
// returns.
func New(vertices []math.Vec3, indices []uint32) (*Mesh, error) {
	if len(indices)%3 != 0 {
		return nil, fmt.Errorf("%d indices: %w", len(indices), ErrIndexCount)
	}
	for i, idx := range indices {
		if int(idx) >= len(vertices) {
			return nil, fmt.Errorf("index %d = %d with %d vertices: %w", i, idx, len(vertices), ErrIndexRange)
		}
	}

	m := &Mesh{
		vertices:  append([]math.Vec3(nil), vertices...),
		indices:   append([]uint32(nil), indices...),
		triangles: make([]Triangle, len(indices)/3),
		bounds:    geom.EmptyAABB(),
	}

	for i := range m.triangles {
		ids := [3]uint32{indices[i*3], indices[i*3+1], indices[i*3+2]}
		tri := NewTriangle(m.vertices[ids[0]], m.vertices[ids[1]], m.vertices[ids[2]], i)
		tri.VertexIDs = ids
		m.triangles[i] = tri
		m.bounds = m.bounds.Union(tri.Bounds())
	}

	m.tree = BuildTree(m.triangles, len(m.vertices))
	m.stacks.New = func() any {
		return NewStack(2 * m.tree.Depth())
	}

	if ce := logger.Log.Check(zap.DebugLevel, "mesh indexed"); ce != nil {
		ce.Write(
			zap.Int("vertices", len(m.vertices)),
			zap.Int("triangles", len(m.triangles)),
			zap.Int("nodes", m.tree.NodeCount()),
			zap.Int("depth", m.tree.Depth()),
		)
	}

	return m, nil
}

// FromFlat builds a mesh from a flat [x0,y0,z0, x1,y1,z1, ...] vertex buffer.
func FromFlat(vertices []float32, indices []uint32) (*Mesh, error) {
	if len(vertices)%3 != 0 {
		return nil, fmt.Errorf("%d components: %w", len(vertices), ErrVertexCount)
	}
	verts := make([]math.Vec3, len(vertices)/3)
	for i := range verts {
		verts[i] = math.Vec3{X: vertices[i*3], Y: vertices[i*3+1], Z: vertices[i*3+2]}
	}
	return New(verts, indices)
}

func (m *Mesh) acquire() *Stack {
	return m.stacks.Get().(*Stack)
}

func (m *Mesh) release(s *Stack) {
	s.reset()
	m.stacks.Put(s)
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.vertices)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.triangles)
}

// IsEmpty returns true if the mesh has no triangles.
func (m *Mesh) IsEmpty() bool {
	return len(m.triangles) == 0
}

// Vertices returns a copy of the vertex buffer.
func (m *Mesh) Vertices() []math.Vec3 {
	return append([]math.Vec3(nil), m.vertices...)
}

// Indices returns a copy of the index buffer.
func (m *Mesh) Indices() []uint32 {
	return append([]uint32(nil), m.indices...)
}

// Bounds returns the model-space bounding box.
func (m *Mesh) Bounds() geom.AABB {
	return m.bounds
}

// Tree returns the mesh's spatial index.
func (m *Mesh) Tree() *Tree {
	return m.tree
}

// Triangle returns triangle i in model space.
func (m *Mesh) Triangle(i int) Triangle {
	return m.triangles[i]
}

// TriangleVerts returns the model-space corners of triangle i.
func (m *Mesh) TriangleVerts(i int) [3]math.Vec3 {
	return m.triangles[i].Vertices()
}

// TriangleVertsTransformed returns the corners of triangle i mapped through
// transform. flipWinding swaps the second and third corner, which callers
// use when transform mirrors the mesh.
func (m *Mesh) TriangleVertsTransformed(i int, transform math.Mat4, flipWinding bool) [3]math.Vec3 {
	t := &m.triangles[i]
	v := [3]math.Vec3{
		transform.TransformVec3(t.V0),
		transform.TransformVec3(t.V1),
		transform.TransformVec3(t.V2),
	}
	if flipWinding {
		v[1], v[2] = v[2], v[1]
	}
	return v
}

// WorldOBB returns the mesh bounds placed by transform and grown by inflate.
func (m *Mesh) WorldOBB(transform math.Mat4, inflate float32) geom.OBB {
	return m.bounds.OBB(transform).Inflate(inflate)
}

// RaycastClosest finds the nearest triangle hit by a world-space ray against
// the mesh placed by transform.
func (m *Mesh) RaycastClosest(ray geom.Ray, transform math.Mat4, cfg RaycastConfig) (bool, RayHit) {
	// A singular transform flattens the mesh to zero volume; nothing can
	// be hit and the inverse is undefined.
	if m.IsEmpty() || math32.Abs(transform.Determinant3()) < singularEpsilon {
		return false, RayHit{TriangleIndex: -1}
	}

	inv := transform.Inverse()
	mirrored := transform.HasNegativeScale()

	var filter *FaceFilter
	if !cfg.CanHitCameraCulledFaces && cfg.Camera != nil {
		filter = &FaceFilter{Camera: cfg.Camera.Transform(inv), Mirrored: mirrored}
	}

	s := m.acquire()
	defer m.release(s)

	ok, idx, t := m.tree.RaycastClosest(s, ray.Transform(inv), filter)
	if !ok {
		return false, RayHit{TriangleIndex: -1}
	}

	normal := transform.TransformNormal(m.triangles[idx].Normal)
	if cfg.FlipNegativeScaleTriangles && mirrored {
		normal = normal.Negate()
	}

	return true, RayHit{
		T:             t,
		Distance:      t * ray.Direction.Length(),
		Point:         ray.At(t),
		Normal:        normal,
		TriangleIndex: idx,
	}
}

// VertsOverlapBox returns the vertices that fall inside a world-space box
// when the mesh is placed by transform. Positions are in world space.
func (m *Mesh) VertsOverlapBox(box geom.OBB, transform math.Mat4) []OverlapVertex {
	s := m.acquire()
	defer m.release(s)
	return m.tree.VertsOverlapBox(s, NewBoxQuery(box, transform), nil)
}

// AnyVertsOverlapBox reports whether any vertex falls inside a world-space box.
func (m *Mesh) AnyVertsOverlapBox(box geom.OBB, transform math.Mat4) bool {
	s := m.acquire()
	defer m.release(s)
	return m.tree.AnyVertsOverlapBox(s, NewBoxQuery(box, transform))
}

// ModelVertsOverlapBox returns the vertices inside a model-space box.
func (m *Mesh) ModelVertsOverlapBox(box geom.OBB) []OverlapVertex {
	s := m.acquire()
	defer m.release(s)
	return m.tree.VertsOverlapBox(s, ModelBoxQuery(box), nil)
}

// AnyModelVertsOverlapBox reports whether any vertex is inside a model-space box.
func (m *Mesh) AnyModelVertsOverlapBox(box geom.OBB) bool {
	s := m.acquire()
	defer m.release(s)
	return m.tree.AnyVertsOverlapBox(s, ModelBoxQuery(box))
}

// TrianglesOverlapBox returns the indices of triangles overlapping a
// world-space box when the mesh is placed by transform.
func (m *Mesh) TrianglesOverlapBox(box geom.OBB, transform math.Mat4) []int {
	s := m.acquire()
	defer m.release(s)
	return m.tree.TrianglesOverlapBox(s, NewBoxQuery(box, transform), nil)
}

// AnyTrianglesOverlapBox reports whether any triangle overlaps a world-space box.
func (m *Mesh) AnyTrianglesOverlapBox(box geom.OBB, transform math.Mat4) bool {
	s := m.acquire()
	defer m.release(s)
	return m.tree.AnyTrianglesOverlapBox(s, NewBoxQuery(box, transform))
}

// TrianglesIntersectTriangles reports whether any triangle of m, placed by
// thisTransform, intersects a triangle of other, placed by otherTransform.
// inflate grows m's bounding box for the coarse pass.
//
// The search narrows in stages: other's tree against m's world box, then
// m's tree against each surviving candidate's box, then exact
// triangle/triangle tests. It stops at the first intersection.
func (m *Mesh) TrianglesIntersectTriangles(thisTransform math.Mat4, inflate float32, other *Mesh, otherTransform math.Mat4) bool {
	if m.IsEmpty() || other.IsEmpty() {
		return false
	}

	thisBox := m.WorldOBB(thisTransform, inflate)
	otherBox := other.WorldOBB(otherTransform, 0)
	if thisBox.IsDegenerate() || otherBox.IsDegenerate() {
		return false
	}

	so := other.acquire()
	candidates := other.tree.TrianglesOverlapBox(so, NewBoxQuery(thisBox, otherTransform), nil)
	other.release(so)
	if len(candidates) == 0 {
		return false
	}

	s := m.acquire()
	defer m.release(s)

	var near []int
	for _, ci := range candidates {
		c := &other.triangles[ci]
		near = m.tree.TrianglesOverlapBox(s, NewBoxQuery(c.Bounds().OBB(otherTransform), thisTransform), near[:0])
		if len(near) == 0 {
			continue
		}

		cw := c.WorldTransform(otherTransform)
		for _, ti := range near {
			if m.triangles[ti].WorldTransform(thisTransform).IntersectsTriangle(cw) {
				return true
			}
		}
	}
	return false
}
