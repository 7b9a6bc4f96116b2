package mesh

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshquery/pkg/geom"
	"github.com/Faultbox/meshquery/pkg/math"
)

func soupTriangles(rng *rand.Rand, count int) []Triangle {
	tris := make([]Triangle, count)
	for i := range tris {
		c := vec(rng.Float32()*40-20, rng.Float32()*40-20, rng.Float32()*40-20)
		p := func() math.Vec3 {
			return c.Add(vec(rng.Float32()*4-2, rng.Float32()*4-2, rng.Float32()*4-2))
		}
		tris[i] = NewTriangle(p(), p(), p(), i)
		tris[i].VertexIDs = [3]uint32{uint32(3 * i), uint32(3*i + 1), uint32(3*i + 2)}
	}
	return tris
}

func TestBuildTreeLeafCount(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, n := range []int{0, 1, 2, 3, 17, 256} {
		tree := BuildTree(soupTriangles(rng, n), 3*n)
		require.NoError(t, tree.Validate(), "n=%d", n)
		assert.Equal(t, n, tree.Len())

		seen := make(map[int]bool)
		tree.Walk(func(node NodeInfo, _ int) bool {
			if node.Leaf {
				assert.False(t, seen[node.Triangle], "triangle %d in two leaves", node.Triangle)
				seen[node.Triangle] = true
			}
			return true
		})
		assert.Len(t, seen, n)

		// One sentinel, n leaves and n-2 internal nodes once the root is full.
		if n >= 2 {
			assert.Equal(t, 2*n-1, tree.NodeCount(), "n=%d", n)
		}
	}
}

func TestTreeShape(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	tris := soupTriangles(rng, 64)
	tree := BuildTree(tris, 3*len(tris))

	assert.GreaterOrEqual(t, tree.Depth(), 6, "a binary tree over 64 leaves")
	assert.LessOrEqual(t, tree.Depth(), 64)

	want := geom.EmptyAABB()
	for _, tri := range tris {
		want = want.Union(tri.Bounds())
	}
	assert.Equal(t, want, tree.Bounds())

	root := tree.Node(0)
	assert.False(t, root.Leaf)
	assert.Equal(t, -1, root.Parent)

	// Skipping a subtree hides its descendants.
	visited := 0
	tree.Walk(func(NodeInfo, int) bool {
		visited++
		return false
	})
	assert.Equal(t, 2, visited)
}

func TestNodeOBB(t *testing.T) {
	tree := BuildTree([]Triangle{unitTriangle()}, 3)
	leaf := tree.Node(1)
	require.True(t, leaf.Leaf)

	o := leaf.OBB(math.Translate(5, 0, 0))
	assertVec3(t, vec(5.5, 0.5, 0), o.Center)
	assertVec3(t, vec(0.5, 0.5, 0), o.HalfSize)
}

func TestValidateDetectsBadBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	tree := BuildTree(soupTriangles(rng, 8), 24)
	require.NoError(t, tree.Validate())

	for i := range tree.nodes {
		if i != int(rootNode) && !tree.nodes[i].isLeaf() {
			tree.nodes[i].bounds = geom.AABB{}
			break
		}
	}
	assert.Error(t, tree.Validate())
}

func TestEmptyTreeQueries(t *testing.T) {
	tree := BuildTree(nil, 0)
	s := NewStack(0)
	box := geom.NewOBB(math.Vec3{}, math.QuatIdentity(), vec(100, 100, 100))

	hit, tri, _ := tree.RaycastClosest(s, geom.NewRay(vec(0, 0, 5), vec(0, 0, -1)), nil)
	assert.False(t, hit)
	assert.Equal(t, -1, tri)
	assert.Empty(t, tree.VertsOverlapBox(s, ModelBoxQuery(box), nil))
	assert.False(t, tree.AnyVertsOverlapBox(s, ModelBoxQuery(box)))
	assert.Empty(t, tree.TrianglesOverlapBox(s, ModelBoxQuery(box), nil))
	assert.False(t, tree.AnyTrianglesOverlapBox(s, ModelBoxQuery(box)))
	assert.Equal(t, 0, tree.Depth())
}

func bruteRaycast(tris []Triangle, ray geom.Ray) (bool, int, float32) {
	best, bestTri := float32(0), -1
	for i := range tris {
		if ok, d := tris[i].Raycast(ray); ok && (bestTri < 0 || d < best) {
			best, bestTri = d, i
		}
	}
	return bestTri >= 0, bestTri, best
}

func TestRaycastMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 8))
	tris := soupTriangles(rng, 300)
	tree := BuildTree(tris, 3*len(tris))
	s := NewStack(tree.Depth())

	hits := 0
	for i := 0; i < 200; i++ {
		origin := vec(rng.Float32()*60-30, rng.Float32()*60-30, rng.Float32()*60-30)
		target := tris[rng.IntN(len(tris))].Centroid()
		ray := geom.NewRay(origin, target.Sub(origin))

		wantHit, wantTri, wantDist := bruteRaycast(tris, ray)
		hit, tri, dist := tree.RaycastClosest(s, ray, nil)
		require.Equal(t, wantHit, hit, "ray %d", i)
		if !hit {
			continue
		}
		hits++
		assert.InDelta(t, wantDist, dist, tol, "ray %d", i)
		if tri != wantTri {
			// Only acceptable when two triangles are hit at the same distance.
			_, d := tris[tri].Raycast(ray)
			assert.InDelta(t, wantDist, d, tol, "ray %d", i)
		}
	}
	assert.Greater(t, hits, 100, "rays aimed at centroids should mostly hit")
}

func TestRaycastClosestOfStack(t *testing.T) {
	tris := []Triangle{
		NewTriangle(vec(0, 0, 0), vec(1, 0, 0), vec(0, 1, 0), 0),
		NewTriangle(vec(0, 0, 2), vec(1, 0, 2), vec(0, 1, 2), 1),
		NewTriangle(vec(0, 0, -2), vec(1, 0, -2), vec(0, 1, -2), 2),
	}
	tree := BuildTree(tris, 9)
	s := NewStack(0)

	hit, tri, d := tree.RaycastClosest(s, geom.NewRay(vec(0.2, 0.2, 5), vec(0, 0, -1)), nil)
	assert.True(t, hit)
	assert.Equal(t, 1, tri)
	assert.InDelta(t, 3, d, tol)

	hit, tri, d = tree.RaycastClosest(s, geom.NewRay(vec(0.2, 0.2, -5), vec(0, 0, 1)), nil)
	assert.True(t, hit)
	assert.Equal(t, 2, tri)
	assert.InDelta(t, 3, d, tol)

	hit, tri, d = tree.RaycastClosest(s, geom.NewRay(vec(0.2, 0.2, 1), vec(0, 0, -1)), nil)
	assert.True(t, hit, "origin between layers")
	assert.Equal(t, 0, tri)
	assert.InDelta(t, 1, d, tol)
}

func TestTrianglesOverlapBoxMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(6, 6))
	tris := soupTriangles(rng, 300)
	tree := BuildTree(tris, 3*len(tris))
	s := NewStack(0)

	transform := math.TRS(vec(3, -2, 1), math.QuatFromAxisAngle(vec(0, 1, 0), 0.7), vec(1.5, 1.5, 1.5))

	for i := 0; i < 50; i++ {
		center := vec(rng.Float32()*60-30, rng.Float32()*60-30, rng.Float32()*60-30)
		rot := math.QuatFromAxisAngle(vec(rng.Float32(), rng.Float32(), rng.Float32()+0.1).Normalize(), rng.Float32()*3)
		box := geom.NewOBB(center, rot, vec(rng.Float32()*8+1, rng.Float32()*8+1, rng.Float32()*8+1))

		var want []int
		for j := range tris {
			if tris[j].WorldTransform(transform).IntersectsOBB(box) {
				want = append(want, j)
			}
		}

		got := tree.TrianglesOverlapBox(s, NewBoxQuery(box, transform), nil)
		assert.ElementsMatch(t, want, got, "box %d", i)
		assert.Equal(t, len(want) > 0, tree.AnyTrianglesOverlapBox(s, NewBoxQuery(box, transform)), "box %d", i)
	}
}

func TestVertsOverlapBoxMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 3))
	tris := soupTriangles(rng, 200)
	tree := BuildTree(tris, 3*len(tris))
	s := NewStack(0)

	for i := 0; i < 50; i++ {
		center := vec(rng.Float32()*40-20, rng.Float32()*40-20, rng.Float32()*40-20)
		box := geom.NewOBB(center, math.QuatFromAxisAngle(vec(1, 0, 0), rng.Float32()), vec(6, 6, 6))

		var want []uint32
		for _, tri := range tris {
			for k, v := range tri.Vertices() {
				if box.ContainsPoint(v) {
					want = append(want, tri.VertexIDs[k])
				}
			}
		}

		got := tree.VertsOverlapBox(s, ModelBoxQuery(box), nil)
		ids := make([]uint32, len(got))
		for k, v := range got {
			ids[k] = v.Index
			assert.True(t, box.ContainsPoint(v.Position))
		}
		assert.ElementsMatch(t, want, ids, "box %d", i)
		assert.Equal(t, len(want) > 0, tree.AnyVertsOverlapBox(s, ModelBoxQuery(box)), "box %d", i)
	}
}

func TestRaycastEdgeToleranceMatchesTriangle(t *testing.T) {
	tris := []Triangle{
		NewTriangle(vec(0, 0, 0), vec(1, 0, 0), vec(0, 1, 0), 0),
		NewTriangle(vec(3, 0, 0), vec(4, 0, 0), vec(3, 1, 0), 1),
	}
	tree := BuildTree(tris, 6)
	s := NewStack(0)

	tests := []struct {
		name string
		ray  geom.Ray
		hit  bool
	}{
		{"straight, just outside edge", geom.NewRay(vec(-5e-6, 0.5, 1), vec(0, 0, -1)), true},
		{"slanted, just outside edge", geom.NewRay(vec(-0.500005, 0.5, 1), vec(0.5, 0, -1)), true},
		{"straight, clearly outside", geom.NewRay(vec(-1e-3, 0.5, 1), vec(0, 0, -1)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direct, _ := tris[0].Raycast(tt.ray)
			require.Equal(t, tt.hit, direct, "triangle test")

			hit, tri, _ := tree.RaycastClosest(s, tt.ray, nil)
			assert.Equal(t, direct, hit, "tree must agree with the triangle test")
			if hit {
				assert.Equal(t, 0, tri)
			}
		})
	}
}

func TestTrianglesReturnsCopy(t *testing.T) {
	tris := []Triangle{NewTriangle(vec(0, 0, 0), vec(1, 0, 0), vec(0, 1, 0), 0)}
	tree := BuildTree(tris, 3)

	got := tree.Triangles()
	got[0].V0 = vec(50, 50, 50)

	assert.Equal(t, vec(0, 0, 0), tree.Triangles()[0].V0)
	require.NoError(t, tree.Validate())
	hit, _, _ := tree.RaycastClosest(NewStack(0), geom.NewRay(vec(0.2, 0.2, 5), vec(0, 0, -1)), nil)
	assert.True(t, hit)
}

func TestStackReuse(t *testing.T) {
	rng := rand.New(rand.NewPCG(8, 1))
	tree := BuildTree(soupTriangles(rng, 50), 150)
	s := NewStack(0)
	everything := ModelBoxQuery(geom.AxisAligned(tree.Bounds()).Inflate(1))

	// Short-circuit queries must leave the stack clean for the next one.
	for i := 0; i < 3; i++ {
		assert.True(t, tree.AnyVertsOverlapBox(s, everything))
		assert.True(t, tree.AnyTrianglesOverlapBox(s, everything))
		assert.Len(t, tree.VertsOverlapBox(s, everything, nil), 150)
		assert.Len(t, tree.TrianglesOverlapBox(s, everything, nil), 50)
	}
	assert.Empty(t, s.nodes)
	assert.Empty(t, s.touched)
}

func TestStack(t *testing.T) {
	s := NewStack(0)
	_, ok := s.pop()
	assert.False(t, ok)

	s.push(1)
	s.push(2)
	n, ok := s.pop()
	assert.True(t, ok)
	assert.Equal(t, int32(2), n)

	assert.True(t, s.markVertex(3, 4))
	assert.False(t, s.markVertex(3, 4))
	assert.True(t, s.markVertex(10, 4), "ids past the vertex count grow the set")

	s.reset()
	assert.Empty(t, s.nodes)
	assert.True(t, s.markVertex(3, 4), "reset forgets marks")
}
