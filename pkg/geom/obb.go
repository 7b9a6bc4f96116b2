package geom

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/meshquery/pkg/math"
)

// boxEpsilon absorbs rounding when testing points that sit on a box face.
const boxEpsilon = 1e-6

// OBB is an oriented bounding box: a centre, three orthonormal axes and the
// half-size of the box along each axis.
type OBB struct {
	Center   math.Vec3
	Axes     [3]math.Vec3
	HalfSize math.Vec3
}

// NewOBB builds a box centred at center, rotated by rotation, with the given
// half-size along each rotated axis.
func NewOBB(center math.Vec3, rotation math.Quat, halfSize math.Vec3) OBB {
	rotation = rotation.Normalize()
	return OBB{
		Center: center,
		Axes: [3]math.Vec3{
			rotation.Rotate(math.Vec3{X: 1}),
			rotation.Rotate(math.Vec3{Y: 1}),
			rotation.Rotate(math.Vec3{Z: 1}),
		},
		HalfSize: halfSize.Abs(),
	}
}

// AxisAligned returns the OBB view of an axis-aligned box.
func AxisAligned(box AABB) OBB {
	return OBB{
		Center:   box.Center(),
		Axes:     [3]math.Vec3{{X: 1}, {Y: 1}, {Z: 1}},
		HalfSize: box.HalfExtents(),
	}
}

// OBBFromAABB maps box through the affine transform m. The transform is
// assumed to be translation, rotation and (possibly negative) scale; any
// shear is dropped by re-orthogonalizing the axes.
func OBBFromAABB(box AABB, m math.Mat4) OBB {
	half := box.HalfExtents()
	c0, c1, c2 := m.Column(0), m.Column(1), m.Column(2)

	a0 := c0.Normalize()
	a1 := c1.Sub(a0.Scale(c1.Dot(a0))).Normalize()
	a2 := a0.Cross(a1)

	return OBB{
		Center: m.TransformVec3(box.Center()),
		Axes:   [3]math.Vec3{a0, a1, a2},
		HalfSize: math.Vec3{
			X: half.X * c0.Length(),
			Y: half.Y * c1.Length(),
			Z: half.Z * c2.Length(),
		},
	}
}

// Inflate returns the box grown by amount on every axis.
func (o OBB) Inflate(amount float32) OBB {
	o.HalfSize = o.HalfSize.Add(math.Vec3{X: amount, Y: amount, Z: amount})
	return o
}

// IsDegenerate reports whether the box cannot take part in overlap tests:
// non-finite values, a collapsed axis, or zero size on every axis. Flat
// boxes (zero thickness on one or two axes) are still valid.
func (o OBB) IsDegenerate() bool {
	if !o.Center.IsFinite() || !o.HalfSize.IsFinite() {
		return true
	}
	for _, a := range o.Axes {
		if !a.IsFinite() || a.LengthSquared() < 0.5 {
			return true
		}
	}
	return o.HalfSize.Length() < boxEpsilon
}

// Local returns p expressed in the box's axes, relative to its centre.
func (o OBB) Local(p math.Vec3) math.Vec3 {
	d := p.Sub(o.Center)
	return math.Vec3{X: d.Dot(o.Axes[0]), Y: d.Dot(o.Axes[1]), Z: d.Dot(o.Axes[2])}
}

// ContainsPoint reports whether p lies inside or on the box.
func (o OBB) ContainsPoint(p math.Vec3) bool {
	l := o.Local(p).Abs()
	return l.X <= o.HalfSize.X+boxEpsilon &&
		l.Y <= o.HalfSize.Y+boxEpsilon &&
		l.Z <= o.HalfSize.Z+boxEpsilon
}

// ClosestPoint returns the point on or inside the box nearest to p.
func (o OBB) ClosestPoint(p math.Vec3) math.Vec3 {
	l := o.Local(p)
	q := o.Center
	for i := 0; i < 3; i++ {
		h := o.HalfSize.Component(i)
		d := clamp(l.Component(i), -h, h)
		q = q.Add(o.Axes[i].Scale(d))
	}
	return q
}

// IntersectsSphere is the cheap pruning test used while descending a
// hierarchy: the sphere overlaps the box when the closest box point to its
// centre lies within its radius.
func (o OBB) IntersectsSphere(s Sphere) bool {
	d := o.ClosestPoint(s.Center).Sub(s.Center)
	return d.LengthSquared() <= s.Radius*s.Radius+boxEpsilon
}

// IntersectsTriangle runs the separating-axis test between the box and the
// triangle (a, b, c): three box axes, the triangle normal and the nine
// edge cross products.
func (o OBB) IntersectsTriangle(a, b, c math.Vec3) bool {
	v0, v1, v2 := o.Local(a), o.Local(b), o.Local(c)
	h := o.HalfSize

	f0 := v1.Sub(v0)
	f1 := v2.Sub(v1)
	f2 := v0.Sub(v2)

	axes := [13]math.Vec3{
		{X: 1}, {Y: 1}, {Z: 1},
		f0.Cross(f1),
		{X: 0, Y: -f0.Z, Z: f0.Y},
		{X: 0, Y: -f1.Z, Z: f1.Y},
		{X: 0, Y: -f2.Z, Z: f2.Y},
		{X: f0.Z, Y: 0, Z: -f0.X},
		{X: f1.Z, Y: 0, Z: -f1.X},
		{X: f2.Z, Y: 0, Z: -f2.X},
		{X: -f0.Y, Y: f0.X, Z: 0},
		{X: -f1.Y, Y: f1.X, Z: 0},
		{X: -f2.Y, Y: f2.X, Z: 0},
	}

	for _, axis := range axes {
		if axis.LengthSquared() < 1e-12 {
			continue
		}
		p0, p1, p2 := v0.Dot(axis), v1.Dot(axis), v2.Dot(axis)
		triMin := math32.Min(math32.Min(p0, p1), p2)
		triMax := math32.Max(math32.Max(p0, p1), p2)
		r := h.X*math32.Abs(axis.X) + h.Y*math32.Abs(axis.Y) + h.Z*math32.Abs(axis.Z)
		slack := boxEpsilon * axis.Length()
		if triMin > r+slack || triMax < -r-slack {
			return false
		}
	}
	return true
}

// Corners returns the eight corners of the box.
func (o OBB) Corners() [8]math.Vec3 {
	var out [8]math.Vec3
	for i := 0; i < 8; i++ {
		p := o.Center
		for axis := 0; axis < 3; axis++ {
			h := o.HalfSize.Component(axis)
			if i&(1<<axis) == 0 {
				h = -h
			}
			p = p.Add(o.Axes[axis].Scale(h))
		}
		out[i] = p
	}
	return out
}

// Bounds returns the axis-aligned box enclosing the OBB.
func (o OBB) Bounds() AABB {
	c := o.Corners()
	return AABBFromPoints(c[:]...)
}

// Transform maps the box through m (see OBBFromAABB for the assumptions on m).
func (o OBB) Transform(m math.Mat4) OBB {
	basis := math.Mat4{
		o.Axes[0].X, o.Axes[0].Y, o.Axes[0].Z, 0,
		o.Axes[1].X, o.Axes[1].Y, o.Axes[1].Z, 0,
		o.Axes[2].X, o.Axes[2].Y, o.Axes[2].Z, 0,
		o.Center.X, o.Center.Y, o.Center.Z, 1,
	}
	local := AABB{Min: o.HalfSize.Negate(), Max: o.HalfSize}
	return OBBFromAABB(local, m.Mul(basis))
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
