package geom

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/meshquery/pkg/math"
)

// AABB represents an axis-aligned bounding box.
type AABB struct {
	Min math.Vec3
	Max math.Vec3
}

// EmptyAABB returns a box that contains nothing and grows to fit the first
// point it is extended by.
func EmptyAABB() AABB {
	inf := math32.Inf(1)
	return AABB{
		Min: math.Vec3{X: inf, Y: inf, Z: inf},
		Max: math.Vec3{X: -inf, Y: -inf, Z: -inf},
	}
}

// NewAABB creates an AABB from two corners, ordering each axis.
func NewAABB(a, b math.Vec3) AABB {
	return AABB{Min: a.Min(b), Max: a.Max(b)}
}

// AABBFromPoints returns the smallest box enclosing points.
func AABBFromPoints(points ...math.Vec3) AABB {
	box := EmptyAABB()
	for _, p := range points {
		box = box.Extend(p)
	}
	return box
}

// IsEmpty reports whether max < min on any axis.
func (b AABB) IsEmpty() bool {
	return b.Max.X < b.Min.X || b.Max.Y < b.Min.Y || b.Max.Z < b.Min.Z
}

// Extend returns the box grown to include p.
func (b AABB) Extend(p math.Vec3) AABB {
	return AABB{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// Grow returns the box expanded by d on every side.
func (b AABB) Grow(d float32) AABB {
	g := math.Vec3{X: d, Y: d, Z: d}
	return AABB{Min: b.Min.Sub(g), Max: b.Max.Add(g)}
}

// Union returns the smallest box enclosing both boxes.
func (b AABB) Union(other AABB) AABB {
	return AABB{Min: b.Min.Min(other.Min), Max: b.Max.Max(other.Max)}
}

// Center returns the midpoint of the box.
func (b AABB) Center() math.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the full extent on each axis.
func (b AABB) Size() math.Vec3 {
	return b.Max.Sub(b.Min)
}

// HalfExtents returns half the size on each axis.
func (b AABB) HalfExtents() math.Vec3 {
	return b.Size().Scale(0.5)
}

// ContainsPoint reports whether p lies inside or on the box.
func (b AABB) ContainsPoint(p math.Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ContainsBox reports whether other lies entirely inside b.
func (b AABB) ContainsBox(other AABB) bool {
	return b.ContainsPoint(other.Min) && b.ContainsPoint(other.Max)
}

// Intersects reports whether the boxes overlap or touch.
func (b AABB) Intersects(other AABB) bool {
	return other.Max.X >= b.Min.X && other.Min.X <= b.Max.X &&
		other.Max.Y >= b.Min.Y && other.Min.Y <= b.Max.Y &&
		other.Max.Z >= b.Min.Z && other.Min.Z <= b.Max.Z
}

// BoundingSphere returns the sphere centred on the box with the
// half-diagonal as radius.
func (b AABB) BoundingSphere() Sphere {
	return Sphere{Center: b.Center(), Radius: b.HalfExtents().Length()}
}

// Transform returns the axis-aligned box enclosing b after mapping it
// through m.
func (b AABB) Transform(m math.Mat4) AABB {
	out := EmptyAABB()
	for _, c := range b.Corners() {
		out = out.Extend(m.TransformVec3(c))
	}
	return out
}

// OBB returns the oriented view of b under m.
func (b AABB) OBB(m math.Mat4) OBB {
	return OBBFromAABB(b, m)
}

// Corners returns the eight corners of the box.
func (b AABB) Corners() [8]math.Vec3 {
	lo, hi := b.Min, b.Max
	return [8]math.Vec3{
		{X: lo.X, Y: lo.Y, Z: lo.Z},
		{X: hi.X, Y: lo.Y, Z: lo.Z},
		{X: lo.X, Y: hi.Y, Z: lo.Z},
		{X: hi.X, Y: hi.Y, Z: lo.Z},
		{X: lo.X, Y: lo.Y, Z: hi.Z},
		{X: hi.X, Y: lo.Y, Z: hi.Z},
		{X: lo.X, Y: hi.Y, Z: hi.Z},
		{X: hi.X, Y: hi.Y, Z: hi.Z},
	}
}
