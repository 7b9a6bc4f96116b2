// Package geom provides the bounding volumes, rays and camera values that
// flow across the mesh query boundary.
package geom

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/meshquery/pkg/math"
)

// Ray represents a ray in 3D space with origin and direction.
// Direction is not required to be normalized; hit parameters are expressed
// in multiples of Direction.
type Ray struct {
	Origin    math.Vec3
	Direction math.Vec3
}

// NewRay returns a ray with a normalized direction.
func NewRay(origin, direction math.Vec3) Ray {
	return Ray{Origin: origin, Direction: direction.Normalize()}
}

// At returns the point Origin + Direction*t.
func (r Ray) At(t float32) math.Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// Transform returns the ray mapped through m. The direction keeps its
// transformed length, so a parameter t addresses the same point before
// and after the transform.
func (r Ray) Transform(m math.Mat4) Ray {
	return Ray{Origin: m.TransformVec3(r.Origin), Direction: m.TransformDir(r.Direction)}
}

// ScreenToRay converts screen coordinates to a world-space ray.
// screenX, screenY are pixel coordinates, viewportW/H are viewport dimensions.
// invViewProj is the inverse of the view-projection matrix.
func ScreenToRay(screenX, screenY, viewportW, viewportH float32, invViewProj math.Mat4) Ray {
	// Convert screen coords to normalized device coords (-1 to 1)
	ndcX := 2.0*screenX/viewportW - 1.0
	ndcY := 1.0 - 2.0*screenY/viewportH // Flip Y

	nearWorld := unproject(invViewProj, math.Vec4{ndcX, ndcY, -1.0, 1.0})
	farWorld := unproject(invViewProj, math.Vec4{ndcX, ndcY, 1.0, 1.0})

	return NewRay(nearWorld, farWorld.Sub(nearWorld))
}

func unproject(invViewProj math.Mat4, ndc math.Vec4) math.Vec3 {
	p := invViewProj.MulVec4(ndc)
	if p[3] != 0 {
		p[0] /= p[3]
		p[1] /= p[3]
		p[2] /= p[3]
	}
	return math.Vec3{X: p[0], Y: p[1], Z: p[2]}
}

// IntersectAABB tests ray intersection with an axis-aligned bounding box.
// Returns the distance to intersection (t) and whether intersection occurred.
// If the ray starts inside the box, returns the exit distance.
func (r Ray) IntersectAABB(box AABB) (t float32, hit bool) {
	tmin, tmax, ok := r.SlabRange(box)
	if !ok {
		return 0, false
	}

	// Return entry point, or exit point if starting inside
	if tmin < 0 {
		return tmax, true
	}
	return tmin, true
}

// SlabRange returns the parameter interval [tmin, tmax] over which the ray
// is inside box. ok is false when the ray misses the box or the box lies
// entirely behind the origin. tmin is negative when the origin is inside.
func (r Ray) SlabRange(box AABB) (tmin, tmax float32, ok bool) {
	tmin = float32(-math32.MaxFloat32)
	tmax = float32(math32.MaxFloat32)

	for axis := 0; axis < 3; axis++ {
		o := r.Origin.Component(axis)
		d := r.Direction.Component(axis)
		lo := box.Min.Component(axis)
		hi := box.Max.Component(axis)

		if d == 0 {
			// Parallel to this slab: must already be inside it
			if o < lo || o > hi {
				return 0, 0, false
			}
			continue
		}

		t1 := (lo - o) / d
		t2 := (hi - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
	}

	if tmax < tmin || tmax < 0 {
		return 0, 0, false
	}
	return tmin, tmax, true
}
