package rsm

import (
	"github.com/Faultbox/meshquery/pkg/math"
	"github.com/Faultbox/meshquery/pkg/mesh"
)

// BuildOptions controls how a model is flattened into one triangle list.
type BuildOptions struct {
	// ReverseWinding swaps the corner order of every face. Positions are
	// mirrored on Y, so set this to keep the winding the file was
	// authored with.
	ReverseWinding bool
	// DoubleSided adds a back face for every face, not only for faces
	// flagged two-sided.
	DoubleSided bool
}

// Group is the run of triangles built from one node.
type Group struct {
	Name          string
	FirstTriangle int
	TriangleCount int
}

// Geometry is a model flattened into a single Y-up vertex and index
// buffer.
type Geometry struct {
	Vertices []math.Vec3
	Indices  []uint32
	Groups   []Group
	// Skipped counts faces dropped for referencing missing vertices.
	Skipped int
}

// Mesh builds an indexed mesh from the geometry.
func (g *Geometry) Mesh() (*mesh.Mesh, error) {
	return mesh.New(g.Vertices, g.Indices)
}

// Geometry places every node at its rest pose and concatenates the
// results. Each node's vertices are transformed once and shared by its
// faces. Two-sided faces get a second, reversed triangle.
func (m *Model) Geometry(opts BuildOptions) *Geometry {
	g := &Geometry{}
	for i := range m.Nodes {
		n := &m.Nodes[i]
		xf := m.NodeMatrix(n)

		base := uint32(len(g.Vertices))
		for _, v := range n.Vertices {
			p := xf.TransformVec3(math.FromArray(v))
			p.Y = -p.Y
			g.Vertices = append(g.Vertices, p)
		}

		group := Group{Name: n.Name, FirstTriangle: len(g.Indices) / 3}
		for _, f := range n.Faces {
			if !f.valid(len(n.Vertices)) {
				g.Skipped++
				continue
			}
			a := base + uint32(f.VertexIDs[0])
			b := base + uint32(f.VertexIDs[1])
			c := base + uint32(f.VertexIDs[2])
			if opts.ReverseWinding {
				b, c = c, b
			}
			g.Indices = append(g.Indices, a, b, c)
			if f.TwoSided || opts.DoubleSided {
				g.Indices = append(g.Indices, a, c, b)
			}
		}
		group.TriangleCount = len(g.Indices)/3 - group.FirstTriangle
		g.Groups = append(g.Groups, group)
	}
	return g
}

func (f Face) valid(vertexCount int) bool {
	for _, id := range f.VertexIDs {
		if int(id) >= vertexCount {
			return false
		}
	}
	return true
}

// NodeMatrix returns the rest transform for n's vertices: the inherited
// chain of position, rotation and scale, followed by n's own offset and
// 3x3 matrix.
func (m *Model) NodeMatrix(n *Node) math.Mat4 {
	return m.chain(n, make(map[string]bool)).
		Mul(math.Translate(n.Offset[0], n.Offset[1], n.Offset[2])).
		Mul(math.FromMat3x3(n.Matrix))
}

// chain returns the transform n passes on to its children. A parent cycle
// is cut at the first repeated node.
func (m *Model) chain(n *Node, visited map[string]bool) math.Mat4 {
	if visited[n.Name] {
		return math.Identity()
	}
	visited[n.Name] = true

	local := math.Translate(n.Position[0], n.Position[1], n.Position[2])
	if axis := math.FromArray(n.RotAxis); n.RotAngle != 0 && axis.Length() > 1e-6 {
		local = local.Mul(math.RotateAxis(axis.Normalize(), n.RotAngle))
	}
	local = local.Mul(math.Scale(n.Scale[0], n.Scale[1], n.Scale[2]))

	if n.Parent != "" && n.Parent != n.Name {
		if p := m.Node(n.Parent); p != nil {
			return m.chain(p, visited).Mul(local)
		}
	}
	return local
}
