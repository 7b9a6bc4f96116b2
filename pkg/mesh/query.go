package mesh

import (
	"github.com/Faultbox/meshquery/pkg/geom"
	"github.com/Faultbox/meshquery/pkg/math"
)

// RaycastConfig controls which triangles a raycast may report.
type RaycastConfig struct {
	// CanHitCameraCulledFaces allows hits on triangles facing away from
	// Camera. Culling only applies when Camera is set.
	CanHitCameraCulledFaces bool
	// FlipNegativeScaleTriangles negates the reported normal when the
	// mesh transform mirrors the geometry, so it matches the rendered
	// winding.
	FlipNegativeScaleTriangles bool
	// Camera is the world-space view used for culling.
	Camera *geom.Camera
}

// RayHit describes the closest intersection found by a raycast.
type RayHit struct {
	// T is the hit parameter in multiples of the ray direction.
	T float32
	// Distance is the world-space distance from the ray origin.
	Distance      float32
	Point         math.Vec3
	Normal        math.Vec3
	TriangleIndex int
}
