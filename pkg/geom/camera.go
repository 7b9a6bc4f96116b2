package geom

import "github.com/Faultbox/meshquery/pkg/math"

// Projection selects how a camera decides which faces it can see.
type Projection int

const (
	// Perspective cameras see a face when the face points back towards
	// the camera position.
	Perspective Projection = iota
	// Orthographic cameras see a face when it points against the view
	// direction.
	Orthographic
)

// String returns the projection name.
func (p Projection) String() string {
	switch p {
	case Perspective:
		return "perspective"
	case Orthographic:
		return "orthographic"
	default:
		return "unknown"
	}
}

// ParseProjection converts a config value to a Projection.
func ParseProjection(s string) (Projection, bool) {
	switch s {
	case "perspective", "":
		return Perspective, true
	case "orthographic", "ortho":
		return Orthographic, true
	default:
		return Perspective, false
	}
}

// Camera is the view a raycast is performed from. It is passed explicitly
// to queries that need back-face culling.
type Camera struct {
	Position   math.Vec3
	Forward    math.Vec3
	Projection Projection
}

// CameraFromMatrices derives a camera from view and projection matrices.
func CameraFromMatrices(view, proj math.Mat4) Camera {
	inv := view.Inverse()
	kind := Orthographic
	if proj.IsPerspective() {
		kind = Perspective
	}
	return Camera{
		Position:   inv.Translation(),
		Forward:    inv.TransformDir(math.Vec3{Z: -1}).Normalize(),
		Projection: kind,
	}
}

// Transform returns the camera expressed in the space m maps into.
func (c Camera) Transform(m math.Mat4) Camera {
	return Camera{
		Position:   m.TransformVec3(c.Position),
		Forward:    m.TransformDir(c.Forward),
		Projection: c.Projection,
	}
}

// Faces reports whether a surface through point with the given normal is
// front-facing from this camera.
func (c Camera) Faces(point, normal math.Vec3) bool {
	if c.Projection == Orthographic {
		return c.Forward.Dot(normal) < 0
	}
	return point.Sub(c.Position).Dot(normal) < 0
}
