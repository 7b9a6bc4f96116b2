package geom

import "github.com/Faultbox/meshquery/pkg/math"

// Sphere is a bounding sphere.
type Sphere struct {
	Center math.Vec3
	Radius float32
}

// Transform returns a sphere that encloses s after mapping it through m.
// Non-uniform scale is covered by using the largest axis scale.
func (s Sphere) Transform(m math.Mat4) Sphere {
	return Sphere{Center: m.TransformVec3(s.Center), Radius: s.Radius * m.MaxScale()}
}

// ContainsPoint reports whether p is inside or on the sphere.
func (s Sphere) ContainsPoint(p math.Vec3) bool {
	return p.Sub(s.Center).LengthSquared() <= s.Radius*s.Radius
}

// Intersects reports whether two spheres overlap or touch.
func (s Sphere) Intersects(other Sphere) bool {
	r := s.Radius + other.Radius
	return s.Center.Sub(other.Center).LengthSquared() <= r*r
}
