package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	if q := QuatIdentity(); q != (Quat{W: 1}) {
		t.Errorf("QuatIdentity() = %v, want (0,0,0,1)", q)
	}
	if m := QuatIdentity().ToMat4(); m != Identity() {
		t.Errorf("QuatIdentity().ToMat4() = %v, want identity", m)
	}
}

func TestQuatNormalize(t *testing.T) {
	n := Quat{X: 1, Y: 2, Z: 3, W: 4}.Normalize()
	length := math.Sqrt(float64(n.X*n.X + n.Y*n.Y + n.Z*n.Z + n.W*n.W))
	if math.Abs(length-1) > 1e-4 {
		t.Errorf("Normalize() length = %v, want 1", length)
	}
	if got := (Quat{}).Normalize(); got != QuatIdentity() {
		t.Errorf("zero Normalize() = %v, want identity", got)
	}
}

func TestQuatFromAxisAngle(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{Y: 1}, math.Pi/2)
	if abs(q.W-float32(math.Cos(math.Pi/4))) > 1e-3 || abs(q.Y-float32(math.Sin(math.Pi/4))) > 1e-3 {
		t.Errorf("QuatFromAxisAngle(Y, 90deg) = %v", q)
	}

	// 90 degrees about Y takes +X to -Z.
	if got := q.Rotate(Vec3{X: 1}); !got.ApproxEqual(Vec3{Z: -1}, 1e-5) {
		t.Errorf("Rotate(+X) = %v, want (0,0,-1)", got)
	}
}

func TestQuatRotateMatchesMat4(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 1, Y: 1}.Normalize(), 1.1)
	axis := Vec3{X: 1, Y: 1}.Normalize()
	v := Vec3{0.3, -2, 5}

	got := q.Rotate(v)
	if want := q.ToMat4().TransformVec3(v); !got.ApproxEqual(want, 1e-4) {
		t.Errorf("Rotate = %v, ToMat4().TransformVec3 = %v", got, want)
	}
	if want := RotateAxis(axis, 1.1).TransformVec3(v); !got.ApproxEqual(want, 1e-4) {
		t.Errorf("Rotate = %v, RotateAxis = %v", got, want)
	}
}

func TestRadians(t *testing.T) {
	if got := Radians(180); abs(got-float32(math.Pi)) > 1e-6 {
		t.Errorf("Radians(180) = %v, want pi", got)
	}
	if got := Radians(0); got != 0 {
		t.Errorf("Radians(0) = %v, want 0", got)
	}
}
