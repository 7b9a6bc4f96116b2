package geom

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/meshquery/pkg/math"
)

// Plane is defined by a unit normal and a point on the plane.
type Plane struct {
	Normal math.Vec3
	Point  math.Vec3
}

// SignedDistance returns the distance from p to the plane, positive on the
// side the normal points to.
func (p Plane) SignedDistance(point math.Vec3) float32 {
	return point.Sub(p.Point).Dot(p.Normal)
}

// IntersectRay returns the ray parameter where r crosses the plane. ok is
// false when the ray is parallel to the plane (within eps) or the crossing
// lies behind the origin.
func (p Plane) IntersectRay(r Ray, eps float32) (t float32, ok bool) {
	denom := r.Direction.Dot(p.Normal)
	if math32.Abs(denom) < eps {
		return 0, false
	}
	t = r.Origin.Sub(p.Point).Dot(p.Normal) / -denom
	if t < 0 {
		return 0, false
	}
	return t, true
}
