package mesh

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshquery/pkg/geom"
	"github.com/Faultbox/meshquery/pkg/math"
)

func singleTriangle(t *testing.T) *Mesh {
	t.Helper()
	m, err := New([]math.Vec3{vec(0, 0, 0), vec(1, 0, 0), vec(0, 1, 0)}, []uint32{0, 1, 2})
	require.NoError(t, err)
	return m
}

// gridMesh is an n x n grid of unit quads in the XY plane facing +Z.
func gridMesh(t *testing.T, n int) *Mesh {
	t.Helper()
	var verts []math.Vec3
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			verts = append(verts, vec(float32(i), float32(j), 0))
		}
	}
	var idx []uint32
	row := uint32(n + 1)
	for j := uint32(0); j < uint32(n); j++ {
		for i := uint32(0); i < uint32(n); i++ {
			a := j*row + i
			b, c, d := a+1, a+row+1, a+row
			idx = append(idx, a, b, c, a, c, d)
		}
	}
	m, err := New(verts, idx)
	require.NoError(t, err)
	return m
}

// cubeMesh is the unit cube [0,1]^3 with outward facing triangles.
func cubeMesh(t *testing.T) *Mesh {
	t.Helper()
	verts := []math.Vec3{
		vec(0, 0, 0), vec(1, 0, 0), vec(1, 1, 0), vec(0, 1, 0),
		vec(0, 0, 1), vec(1, 0, 1), vec(1, 1, 1), vec(0, 1, 1),
	}
	idx := []uint32{
		0, 2, 1, 0, 3, 2, // bottom
		4, 5, 6, 4, 6, 7, // top
		0, 1, 5, 0, 5, 4, // front
		3, 7, 6, 3, 6, 2, // back
		0, 4, 7, 0, 7, 3, // left
		1, 2, 6, 1, 6, 5, // right
	}
	m, err := New(verts, idx)
	require.NoError(t, err)
	return m
}

func TestNewErrors(t *testing.T) {
	verts := []math.Vec3{vec(0, 0, 0), vec(1, 0, 0), vec(0, 1, 0)}

	_, err := New(verts, []uint32{0, 1, 2, 0})
	assert.ErrorIs(t, err, ErrIndexCount)

	_, err = New(verts, []uint32{0, 1, 3})
	assert.ErrorIs(t, err, ErrIndexRange)

	_, err = FromFlat([]float32{0, 0, 0, 1}, nil)
	assert.ErrorIs(t, err, ErrVertexCount)

	m, err := FromFlat([]float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, []uint32{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, m.VertexCount())
	assert.Equal(t, 1, m.TriangleCount())
	assert.Equal(t, vec(1, 0, 0), m.TriangleVerts(0)[1])
}

func TestMeshCopiesInput(t *testing.T) {
	verts := []math.Vec3{vec(0, 0, 0), vec(1, 0, 0), vec(0, 1, 0)}
	idx := []uint32{0, 1, 2}
	m, err := New(verts, idx)
	require.NoError(t, err)

	verts[1] = vec(9, 9, 9)
	idx[0] = 2
	assert.Equal(t, vec(1, 0, 0), m.Vertices()[1])
	assert.Equal(t, []uint32{0, 1, 2}, m.Indices())

	out := m.Vertices()
	out[0] = vec(5, 5, 5)
	assert.Equal(t, vec(0, 0, 0), m.Vertices()[0])
}

func TestMeshAccessors(t *testing.T) {
	m := cubeMesh(t)
	assert.Equal(t, 8, m.VertexCount())
	assert.Equal(t, 12, m.TriangleCount())
	assert.False(t, m.IsEmpty())
	assert.Equal(t, geom.NewAABB(vec(0, 0, 0), vec(1, 1, 1)), m.Bounds())
	require.NoError(t, m.Tree().Validate())

	tri := m.Triangle(2)
	assert.Equal(t, 2, tri.Index)
	assert.Equal(t, [3]uint32{4, 5, 6}, tri.VertexIDs)
	assert.Equal(t, vec(0, 0, 1), tri.Normal)

	v := m.TriangleVertsTransformed(2, math.Translate(0, 0, 1), false)
	assert.Equal(t, [3]math.Vec3{vec(0, 0, 2), vec(1, 0, 2), vec(1, 1, 2)}, v)
	v = m.TriangleVertsTransformed(2, math.Translate(0, 0, 1), true)
	assert.Equal(t, [3]math.Vec3{vec(0, 0, 2), vec(1, 1, 2), vec(1, 0, 2)}, v)

	box := m.WorldOBB(math.Translate(2, 0, 0), 0.5)
	assertVec3(t, vec(2.5, 0.5, 0.5), box.Center)
	assertVec3(t, vec(1, 1, 1), box.HalfSize)
}

func TestEmptyMesh(t *testing.T) {
	m, err := New(nil, nil)
	require.NoError(t, err)
	assert.True(t, m.IsEmpty())

	hit, rh := m.RaycastClosest(geom.NewRay(vec(0, 0, 5), vec(0, 0, -1)), math.Identity(), RaycastConfig{})
	assert.False(t, hit)
	assert.Equal(t, -1, rh.TriangleIndex)

	box := geom.NewOBB(math.Vec3{}, math.QuatIdentity(), vec(10, 10, 10))
	assert.Empty(t, m.VertsOverlapBox(box, math.Identity()))
	assert.Empty(t, m.TrianglesOverlapBox(box, math.Identity()))
	assert.False(t, m.AnyTrianglesOverlapBox(box, math.Identity()))
	assert.False(t, m.TrianglesIntersectTriangles(math.Identity(), 0, singleTriangle(t), math.Identity()))
	assert.False(t, singleTriangle(t).TrianglesIntersectTriangles(math.Identity(), 0, m, math.Identity()))
}

func TestRaycastSingleTriangle(t *testing.T) {
	m := singleTriangle(t)

	hit, rh := m.RaycastClosest(geom.NewRay(vec(0.2, 0.2, 5), vec(0, 0, -1)), math.Identity(), RaycastConfig{})
	require.True(t, hit)
	assert.InDelta(t, 5, rh.T, tol)
	assert.InDelta(t, 5, rh.Distance, tol)
	assert.Equal(t, 0, rh.TriangleIndex)
	assertVec3(t, vec(0.2, 0.2, 0), rh.Point)
	assertVec3(t, vec(0, 0, 1), rh.Normal)

	hit, rh = m.RaycastClosest(geom.NewRay(vec(5, 5, 5), vec(0, 0, -1)), math.Identity(), RaycastConfig{})
	assert.False(t, hit)
	assert.Equal(t, -1, rh.TriangleIndex)

	hit, _ = m.RaycastClosest(geom.NewRay(vec(0.2, 0.2, 5), vec(0, 0, 1)), math.Identity(), RaycastConfig{})
	assert.False(t, hit, "triangle behind the origin")
}

func TestRaycastTransformed(t *testing.T) {
	m := singleTriangle(t)
	transform := math.Translate(10, 0, 0).Mul(math.Scale(2, 2, 2))

	hit, rh := m.RaycastClosest(geom.NewRay(vec(10.5, 0.5, 5), vec(0, 0, -1)), transform, RaycastConfig{})
	require.True(t, hit)
	assert.InDelta(t, 5, rh.T, tol)
	assert.InDelta(t, 5, rh.Distance, tol)
	assertVec3(t, vec(10.5, 0.5, 0), rh.Point)
	assertVec3(t, vec(0, 0, 1), rh.Normal)

	// x=11.5 is only covered because the triangle is scaled.
	hit, _ = m.RaycastClosest(geom.NewRay(vec(11.5, 0.4, 5), vec(0, 0, -1)), transform, RaycastConfig{})
	assert.True(t, hit)
	hit, _ = m.RaycastClosest(geom.NewRay(vec(0.2, 0.2, 5), vec(0, 0, -1)), transform, RaycastConfig{})
	assert.False(t, hit)
}

func TestRaycastCulling(t *testing.T) {
	m := singleTriangle(t)
	ray := geom.NewRay(vec(0.2, 0.2, 5), vec(0, 0, -1))
	above := &geom.Camera{Position: vec(0, 0, 10), Forward: vec(0, 0, -1)}
	below := &geom.Camera{Position: vec(0, 0, -10), Forward: vec(0, 0, 1)}

	tests := []struct {
		name string
		cfg  RaycastConfig
		want bool
	}{
		{"no camera", RaycastConfig{}, true},
		{"camera in front", RaycastConfig{Camera: above}, true},
		{"camera behind", RaycastConfig{Camera: below}, false},
		{"camera behind, culled faces allowed", RaycastConfig{Camera: below, CanHitCameraCulledFaces: true}, true},
		{"ortho looking down", RaycastConfig{Camera: &geom.Camera{Forward: vec(0, 0, -1), Projection: geom.Orthographic}}, true},
		{"ortho looking up", RaycastConfig{Camera: &geom.Camera{Forward: vec(0, 0, 1), Projection: geom.Orthographic}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, _ := m.RaycastClosest(ray, math.Identity(), tt.cfg)
			assert.Equal(t, tt.want, hit)
		})
	}
}

func TestRaycastCullingSkipsToBackFace(t *testing.T) {
	m := cubeMesh(t)
	ray := geom.NewRay(vec(0.3, 0.4, 5), vec(0, 0, -1))

	hit, rh := m.RaycastClosest(ray, math.Identity(), RaycastConfig{})
	require.True(t, hit)
	assert.InDelta(t, 4, rh.T, tol)
	assertVec3(t, vec(0, 0, 1), rh.Normal)

	for _, cam := range []geom.Camera{
		{Position: vec(0.5, 0.5, -10), Forward: vec(0, 0, 1)},
		{Forward: vec(0, 0, 1), Projection: geom.Orthographic},
	} {
		hit, rh = m.RaycastClosest(ray, math.Identity(), RaycastConfig{Camera: &cam})
		require.True(t, hit, cam.Projection.String())
		assert.InDelta(t, 5, rh.T, tol, cam.Projection.String())
		assertVec3(t, vec(0, 0, -1), rh.Normal)
	}
}

func TestRaycastSingularTransform(t *testing.T) {
	m := singleTriangle(t)
	ray := geom.NewRay(vec(0.2, 0.2, 5), vec(0, 0, -1))

	// Sanity: the same ray hits under the identity.
	hit, _ := m.RaycastClosest(ray, math.Identity(), RaycastConfig{})
	require.True(t, hit)

	tests := []struct {
		name      string
		transform math.Mat4
	}{
		{"collapsed onto a line away from the ray", math.Translate(100, 0, 0).Mul(math.Scale(0, 1, 1))},
		{"collapsed in place", math.Scale(0, 1, 1)},
		{"zero scale", math.Scale(0, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, rh := m.RaycastClosest(ray, tt.transform, RaycastConfig{})
			assert.False(t, hit)
			assert.Equal(t, -1, rh.TriangleIndex)
		})
	}
}

func TestRaycastMirrored(t *testing.T) {
	m := singleTriangle(t)
	mirror := math.Scale(1, 1, -1)
	ray := geom.NewRay(vec(0.2, 0.2, 5), vec(0, 0, -1))
	cam := &geom.Camera{Position: vec(0.2, 0.2, 10), Forward: vec(0, 0, -1)}

	// The mirrored corners still wind counter-clockwise seen from +Z.
	hit, rh := m.RaycastClosest(ray, mirror, RaycastConfig{Camera: cam})
	require.True(t, hit)
	assert.InDelta(t, 5, rh.T, tol)
	assertVec3(t, vec(0, 0, -1), rh.Normal)

	hit, rh = m.RaycastClosest(ray, mirror, RaycastConfig{Camera: cam, FlipNegativeScaleTriangles: true})
	require.True(t, hit)
	assertVec3(t, vec(0, 0, 1), rh.Normal)

	below := &geom.Camera{Position: vec(0.2, 0.2, -10), Forward: vec(0, 0, 1)}
	hit, _ = m.RaycastClosest(ray, mirror, RaycastConfig{Camera: below})
	assert.False(t, hit)
}

func TestTrianglesOverlapBoxPicksSecond(t *testing.T) {
	m, err := New([]math.Vec3{
		vec(0, 0, 0), vec(1, 0, 0), vec(0, 1, 0),
		vec(10, 0, 0), vec(11, 0, 0), vec(10, 1, 0),
	}, []uint32{0, 1, 2, 3, 4, 5})
	require.NoError(t, err)

	box := geom.AxisAligned(geom.NewAABB(vec(9, -1, -1), vec(12, 2, 1)))
	assert.Equal(t, []int{1}, m.TrianglesOverlapBox(box, math.Identity()))
	assert.True(t, m.AnyTrianglesOverlapBox(box, math.Identity()))

	// The same box misses once the mesh is moved away.
	assert.Empty(t, m.TrianglesOverlapBox(box, math.Translate(0, 5, 0)))
	assert.Equal(t, []int{0}, m.TrianglesOverlapBox(box, math.Translate(10, 0, 0)))
}

func TestVertsOverlapBox(t *testing.T) {
	m := gridMesh(t, 4)

	all := geom.AxisAligned(geom.NewAABB(vec(-1, -1, -1), vec(5, 5, 1)))
	verts := m.VertsOverlapBox(all, math.Identity())
	require.Len(t, verts, 25)
	seen := make(map[uint32]bool)
	for _, v := range verts {
		assert.False(t, seen[v.Index], "vertex %d reported twice", v.Index)
		seen[v.Index] = true
	}

	// Corner cell only: vertices (0,0), (1,0), (0,1) and (1,1).
	corner := geom.AxisAligned(geom.NewAABB(vec(-0.5, -0.5, -0.5), vec(1.5, 1.5, 0.5)))
	ids := make([]uint32, 0)
	for _, v := range m.ModelVertsOverlapBox(corner) {
		ids = append(ids, v.Index)
	}
	assert.ElementsMatch(t, []uint32{0, 1, 5, 6}, ids)
	assert.True(t, m.AnyModelVertsOverlapBox(corner))

	// Positions are reported in the box's space.
	moved := m.VertsOverlapBox(geom.AxisAligned(geom.NewAABB(vec(99.5, -0.5, -0.5), vec(100.5, 0.5, 0.5))), math.Translate(100, 0, 0))
	require.Len(t, moved, 1)
	assert.Equal(t, uint32(0), moved[0].Index)
	assertVec3(t, vec(100, 0, 0), moved[0].Position)

	gap := geom.AxisAligned(geom.NewAABB(vec(0.2, 0.2, -1), vec(0.8, 0.8, 1)))
	assert.Empty(t, m.VertsOverlapBox(gap, math.Identity()))
	assert.False(t, m.AnyVertsOverlapBox(gap, math.Identity()))
	assert.Len(t, m.TrianglesOverlapBox(gap, math.Identity()), 2, "the box sits inside the first cell")
}

func TestTrianglesIntersectTriangles(t *testing.T) {
	tri := singleTriangle(t)
	cube := cubeMesh(t)
	id := math.Identity()

	// Standing the triangle up in the y=0.1 plane makes one edge pierce the floor triangle.
	standing := math.Translate(0.1, 0.1, -0.5).Mul(math.RotateX(math.Radians(90)))

	tests := []struct {
		name    string
		a       *Mesh
		aXf     math.Mat4
		inflate float32
		b       *Mesh
		bXf     math.Mat4
		want    bool
	}{
		{"crossing", tri, id, 0, tri, standing, true},
		{"crossing reversed", tri, standing, 0, tri, id, true},
		{"far apart", tri, id, 0, tri, math.Translate(5, 0, 0), false},
		{"parallel", tri, id, 0, tri, math.Translate(0, 0, 0.05), false},
		{"parallel inflated", tri, id, 0.1, tri, math.Translate(0, 0, 0.05), false},
		{"coplanar overlap", tri, id, 0, tri, math.Translate(0.1, 0.1, 0), true},
		{"overlapping cubes", cube, id, 0, cube, math.Translate(0.5, 0.5, 0.5), true},
		{"nested cube", cube, id, 0, cube, math.TRS(vec(0.375, 0.375, 0.375), math.QuatIdentity(), vec(0.25, 0.25, 0.25)), false},
		{"cube through triangle", cube, math.Translate(-0.5, -0.5, -0.5), 0, tri, id, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.TrianglesIntersectTriangles(tt.aXf, tt.inflate, tt.b, tt.bXf))
			assert.Equal(t, tt.want, tt.b.TrianglesIntersectTriangles(tt.bXf, tt.inflate, tt.a, tt.aXf), "swapped")
		})
	}
}

func TestConcurrentQueries(t *testing.T) {
	m := gridMesh(t, 16)
	box := geom.AxisAligned(geom.NewAABB(vec(2.5, 2.5, -1), vec(6.5, 6.5, 1)))
	wantVerts := len(m.VertsOverlapBox(box, math.Identity()))
	wantTris := len(m.TrianglesOverlapBox(box, math.Identity()))
	require.Equal(t, 16, wantVerts)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				x := float32(g) + 0.3
				hit, rh := m.RaycastClosest(geom.NewRay(vec(x, 0.6, 3), vec(0, 0, -1)), math.Identity(), RaycastConfig{})
				assert.True(t, hit)
				assert.InDelta(t, 3, rh.T, tol)
				assert.Len(t, m.VertsOverlapBox(box, math.Identity()), wantVerts)
				assert.Len(t, m.TrianglesOverlapBox(box, math.Identity()), wantTris)
			}
		}()
	}
	wg.Wait()
}
