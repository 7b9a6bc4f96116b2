// Package querydoc reads batches of mesh queries from YAML and runs them.
//
// A document names the meshes it uses and lists queries against them:
//
//	meshes:
//	  floor: floor.obj
//	  crate: crate.obj
//	queries:
//	  - name: pick
//	    raycast:
//	      mesh: floor
//	      origin: [0, 5, 0]
//	      direction: [0, -1, 0]
//	  - name: footprint
//	    overlap:
//	      mesh: floor
//	      box: {center: [0, 0, 0], half_size: [1, 1, 1]}
//	  - name: stacked
//	    intersect:
//	      a: crate
//	      b: floor
//	      b_transform: {translate: [0, -0.5, 0]}
package querydoc

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/meshquery/pkg/geom"
	"github.com/Faultbox/meshquery/pkg/math"
)

// ErrNoQuery is returned for a query entry with no query body.
var ErrNoQuery = errors.New("query has no raycast, overlap or intersect section")

// Document is a batch of queries.
type Document struct {
	// Meshes maps a mesh name to an OBJ path, relative to the document.
	Meshes  map[string]string `yaml:"meshes"`
	Queries []Query           `yaml:"queries"`
}

// AxisAngle is a rotation in degrees about an axis.
type AxisAngle struct {
	Axis    [3]float32 `yaml:"axis"`
	Degrees float32    `yaml:"degrees"`
}

// Quat converts the rotation to a quaternion.
func (a *AxisAngle) Quat() math.Quat {
	if a == nil {
		return math.QuatIdentity()
	}
	return math.QuatFromAxisAngle(math.FromArray(a.Axis).Normalize(), math.Radians(a.Degrees))
}

// Transform places a mesh in the world. Omitted parts are identity.
type Transform struct {
	Translate [3]float32  `yaml:"translate"`
	Rotate    *AxisAngle  `yaml:"rotate,omitempty"`
	Scale     *[3]float32 `yaml:"scale,omitempty"`
}

// Matrix returns the transform as translate * rotate * scale.
func (t *Transform) Matrix() math.Mat4 {
	if t == nil {
		return math.Identity()
	}
	scale := math.Vec3{X: 1, Y: 1, Z: 1}
	if t.Scale != nil {
		scale = math.FromArray(*t.Scale)
	}
	return math.TRS(math.FromArray(t.Translate), t.Rotate.Quat(), scale)
}

// Box is an oriented query box.
type Box struct {
	Center   [3]float32 `yaml:"center"`
	HalfSize [3]float32 `yaml:"half_size"`
	Rotate   *AxisAngle `yaml:"rotate,omitempty"`
}

// OBB converts the box to a geom.OBB.
func (b Box) OBB() geom.OBB {
	return geom.NewOBB(math.FromArray(b.Center), b.Rotate.Quat(), math.FromArray(b.HalfSize))
}

// RaycastQuery finds the closest hit along a ray.
type RaycastQuery struct {
	Mesh      string     `yaml:"mesh"`
	Transform *Transform `yaml:"transform,omitempty"`
	Origin    [3]float32 `yaml:"origin"`
	Direction [3]float32 `yaml:"direction"`
	// Cull overrides the configured culling for this query.
	Cull *bool `yaml:"cull,omitempty"`
}

// OverlapQuery collects triangles or vertices inside a world-space box.
type OverlapQuery struct {
	Mesh      string     `yaml:"mesh"`
	Transform *Transform `yaml:"transform,omitempty"`
	Box       Box        `yaml:"box"`
	Vertices  bool       `yaml:"vertices"`
	// Any stops at the first overlap and reports only whether one exists.
	Any bool `yaml:"any"`
}

// IntersectQuery tests two placed meshes for touching triangles.
type IntersectQuery struct {
	A          string     `yaml:"a"`
	ATransform *Transform `yaml:"a_transform,omitempty"`
	B          string     `yaml:"b"`
	BTransform *Transform `yaml:"b_transform,omitempty"`
	// Inflate overrides the configured inflation of A's box.
	Inflate *float32 `yaml:"inflate,omitempty"`
}

// Query is one entry of a document. Exactly one body must be set.
type Query struct {
	Name      string          `yaml:"name"`
	Raycast   *RaycastQuery   `yaml:"raycast,omitempty"`
	Overlap   *OverlapQuery   `yaml:"overlap,omitempty"`
	Intersect *IntersectQuery `yaml:"intersect,omitempty"`
}

// Kind names the query body.
func (q *Query) Kind() string {
	switch {
	case q.Raycast != nil:
		return "raycast"
	case q.Overlap != nil:
		return "overlap"
	case q.Intersect != nil:
		return "intersect"
	default:
		return ""
	}
}

// meshNames lists the meshes the query refers to.
func (q *Query) meshNames() []string {
	switch {
	case q.Raycast != nil:
		return []string{q.Raycast.Mesh}
	case q.Overlap != nil:
		return []string{q.Overlap.Mesh}
	case q.Intersect != nil:
		return []string{q.Intersect.A, q.Intersect.B}
	default:
		return nil
	}
}

// Validate checks that every query has one body and names declared meshes.
func (d *Document) Validate() error {
	for i := range d.Queries {
		q := &d.Queries[i]
		set := 0
		for _, body := range []bool{q.Raycast != nil, q.Overlap != nil, q.Intersect != nil} {
			if body {
				set++
			}
		}
		switch {
		case set == 0:
			return fmt.Errorf("query %d (%s): %w", i, q.Name, ErrNoQuery)
		case set > 1:
			return fmt.Errorf("query %d (%s): more than one query section", i, q.Name)
		}

		for _, name := range q.meshNames() {
			if _, ok := d.Meshes[name]; !ok {
				return fmt.Errorf("query %d (%s): unknown mesh %q", i, q.Name, name)
			}
		}
		if r := q.Raycast; r != nil && math.FromArray(r.Direction).IsZero() {
			return fmt.Errorf("query %d (%s): zero ray direction", i, q.Name)
		}
	}
	return nil
}

// Parse decodes and validates a document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing query document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads a document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query document: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
