package mesh

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/meshquery/pkg/geom"
	"github.com/Faultbox/meshquery/pkg/math"
)

const (
	// parallelEpsilon rejects rays nearly parallel to a triangle's plane.
	parallelEpsilon = 1e-5
	// edgeEpsilon is the outward distance a point may sit beyond an edge
	// and still count as contained.
	edgeEpsilon = 1e-5
	// planeEpsilon is the distance within which a vertex counts as lying
	// on another triangle's plane.
	planeEpsilon = 1e-5
)

// Triangle is an immutable triangle taken from a mesh.
// A degenerate triangle (collinear or repeated vertices) has a zero normal
// and never reports a hit or containment.
type Triangle struct {
	V0, V1, V2    math.Vec3
	Normal        math.Vec3
	FlippedNormal math.Vec3
	// Index is the ordinal of the triangle in the mesh's index buffer.
	Index int
	// VertexIDs are the vertex buffer indices the corners were read from.
	VertexIDs [3]uint32
	Area      float32
}

// NewTriangle builds a triangle and derives its normal and area.
func NewTriangle(v0, v1, v2 math.Vec3, index int) Triangle {
	cross := v1.Sub(v0).Cross(v2.Sub(v0))
	n := cross.Normalize()
	return Triangle{
		V0:            v0,
		V1:            v1,
		V2:            v2,
		Normal:        n,
		FlippedNormal: n.Negate(),
		Index:         index,
		Area:          cross.Length() * 0.5,
	}
}

// Vertices returns the three corners in winding order.
func (t Triangle) Vertices() [3]math.Vec3 {
	return [3]math.Vec3{t.V0, t.V1, t.V2}
}

// IsDegenerate reports whether the triangle has no usable normal.
func (t Triangle) IsDegenerate() bool {
	return t.Normal.IsZero()
}

// Plane returns the supporting plane of the triangle.
func (t Triangle) Plane() geom.Plane {
	return geom.Plane{Normal: t.Normal, Point: t.V0}
}

// Centroid returns the average of the three corners.
func (t Triangle) Centroid() math.Vec3 {
	return t.V0.Add(t.V1).Add(t.V2).Scale(1.0 / 3.0)
}

// Bounds returns the axis-aligned box around the triangle.
func (t Triangle) Bounds() geom.AABB {
	return geom.AABBFromPoints(t.V0, t.V1, t.V2)
}

// ContainsPoint reports whether point, assumed to lie in the triangle's
// plane, is inside all three edges.
func (t Triangle) ContainsPoint(point math.Vec3) bool {
	if t.IsDegenerate() {
		return false
	}
	n := t.windingNormal()
	return insideEdge(t.V0, t.V1, n, point) &&
		insideEdge(t.V1, t.V2, n, point) &&
		insideEdge(t.V2, t.V0, n, point)
}

// windingNormal returns whichever of Normal and FlippedNormal agrees with
// the corner winding. They differ for copies made by a mirroring
// WorldTransform.
func (t Triangle) windingNormal() math.Vec3 {
	if t.V1.Sub(t.V0).Cross(t.V2.Sub(t.V0)).Dot(t.Normal) < 0 {
		return t.FlippedNormal
	}
	return t.Normal
}

func insideEdge(a, b, n, point math.Vec3) bool {
	outward := b.Sub(a).Cross(n).Normalize()
	return point.Sub(a).Dot(outward) <= edgeEpsilon
}

// Raycast intersects the ray with the triangle. t is expressed in multiples
// of ray.Direction.
func (t Triangle) Raycast(ray geom.Ray) (bool, float32) {
	dist, ok := t.Plane().IntersectRay(ray, parallelEpsilon)
	if !ok {
		return false, 0
	}
	if !t.ContainsPoint(ray.At(dist)) {
		return false, 0
	}
	return true, dist
}

// IntersectsTriangle reports whether the two triangles touch or cross.
// Every edge of each triangle is cast as a segment against the other, then
// vertices lying in the other's plane are checked for containment. The
// same tests run in both directions, so the result does not depend on
// argument order.
func (t Triangle) IntersectsTriangle(other Triangle) bool {
	if t.edgesCross(other) || other.edgesCross(t) {
		return true
	}
	return t.vertexOnFace(other) || other.vertexOnFace(t)
}

// edgesCross casts the edges of t against other.
func (t Triangle) edgesCross(other Triangle) bool {
	verts := t.Vertices()
	for i := 0; i < 3; i++ {
		a, b := verts[i], verts[(i+1)%3]
		edge := b.Sub(a)
		length := edge.Length()
		if length == 0 {
			continue
		}
		hit, dist := other.Raycast(geom.Ray{Origin: a, Direction: edge.Scale(1 / length)})
		if hit && dist <= length {
			return true
		}
	}
	return false
}

// vertexOnFace reports whether a vertex of t lies on other's face.
func (t Triangle) vertexOnFace(other Triangle) bool {
	if other.IsDegenerate() {
		return false
	}
	plane := other.Plane()
	for _, v := range t.Vertices() {
		if math32.Abs(plane.SignedDistance(v)) <= planeEpsilon && other.ContainsPoint(v) {
			return true
		}
	}
	return false
}

// WorldTransform returns a copy of the triangle mapped through m. The
// normal follows the inverse-transpose rule, so under a mirroring transform
// it keeps facing the same side of the surface even though the corner
// winding reverses.
func (t Triangle) WorldTransform(m math.Mat4) Triangle {
	v0, v1, v2 := m.TransformVec3(t.V0), m.TransformVec3(t.V1), m.TransformVec3(t.V2)
	n := m.TransformNormal(t.Normal)
	return Triangle{
		V0:            v0,
		V1:            v1,
		V2:            v2,
		Normal:        n,
		FlippedNormal: n.Negate(),
		Index:         t.Index,
		VertexIDs:     t.VertexIDs,
		Area:          v1.Sub(v0).Cross(v2.Sub(v0)).Length() * 0.5,
	}
}

// IntersectsOBB reports whether the triangle overlaps box. Both must be in
// the same space.
func (t Triangle) IntersectsOBB(box geom.OBB) bool {
	return box.IntersectsTriangle(t.V0, t.V1, t.V2)
}
