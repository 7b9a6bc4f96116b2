package querydoc

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/meshquery/internal/logger"
	"github.com/Faultbox/meshquery/internal/meshio"
	"github.com/Faultbox/meshquery/pkg/geom"
	"github.com/Faultbox/meshquery/pkg/math"
	"github.com/Faultbox/meshquery/pkg/mesh"
)

// Options are the defaults queries fall back on.
type Options struct {
	Camera            geom.Camera
	CanHitCulledFaces bool
	FlipNegativeScale bool
	Inflate           float32
	// Workers bounds concurrent queries. Zero uses GOMAXPROCS.
	Workers int
}

// Result is the outcome of one query.
type Result struct {
	Name     string      `yaml:"name,omitempty"`
	Kind     string      `yaml:"kind"`
	Found    bool        `yaml:"found"`
	Distance float32     `yaml:"distance,omitempty"`
	Point    *[3]float32 `yaml:"point,omitempty"`
	Normal   *[3]float32 `yaml:"normal,omitempty"`
	Triangle *int        `yaml:"triangle,omitempty"`
	// Triangles and Vertices are sorted ascending.
	Triangles []int         `yaml:"triangles,omitempty"`
	Vertices  []uint32      `yaml:"vertices,omitempty"`
	Elapsed   time.Duration `yaml:"-"`
}

// Runner executes queries against a fixed set of meshes. Meshes are safe
// for concurrent queries, so a Runner may run many at once.
type Runner struct {
	meshes map[string]*mesh.Mesh
	opts   Options
	log    *zap.Logger
}

// NewRunner returns a runner over named meshes.
func NewRunner(meshes map[string]*mesh.Mesh, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{meshes: meshes, opts: opts, log: logger.Named("querydoc")}
}

// LoadMeshes reads every mesh a document names. Relative paths resolve
// against baseDir.
func LoadMeshes(ctx context.Context, doc *Document, baseDir string, opts meshio.Options) (map[string]*mesh.Mesh, error) {
	var mu sync.Mutex
	meshes := make(map[string]*mesh.Mesh, len(doc.Meshes))

	g, ctx := errgroup.WithContext(ctx)
	for name, path := range doc.Meshes {
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := meshio.Load(path, opts)
			if err != nil {
				return fmt.Errorf("mesh %q: %w", name, err)
			}

			mu.Lock()
			meshes[name] = m
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return meshes, nil
}

// Run executes queries concurrently and returns results in query order.
// It stops at the first failing query or when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, queries []Query) ([]Result, error) {
	results := make([]Result, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i := range queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := r.Execute(&queries[i])
			if err != nil {
				return fmt.Errorf("query %d (%s): %w", i, queries[i].Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Execute runs a single query.
func (r *Runner) Execute(q *Query) (Result, error) {
	start := time.Now()
	res := Result{Name: q.Name, Kind: q.Kind()}

	var err error
	switch {
	case q.Raycast != nil:
		err = r.raycast(q.Raycast, &res)
	case q.Overlap != nil:
		err = r.overlap(q.Overlap, &res)
	case q.Intersect != nil:
		err = r.intersect(q.Intersect, &res)
	default:
		err = ErrNoQuery
	}
	if err != nil {
		return Result{}, err
	}

	res.Elapsed = time.Since(start)
	r.log.Debug("query done",
		zap.String("name", res.Name),
		zap.String("kind", res.Kind),
		zap.Bool("found", res.Found),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (r *Runner) mesh(name string) (*mesh.Mesh, error) {
	m, ok := r.meshes[name]
	if !ok {
		return nil, fmt.Errorf("unknown mesh %q", name)
	}
	return m, nil
}

// RaycastConfig returns the raycast settings, with cull overriding the
// default culling when set.
func (r *Runner) RaycastConfig(cull *bool) mesh.RaycastConfig {
	cfg := mesh.RaycastConfig{
		CanHitCameraCulledFaces:    r.opts.CanHitCulledFaces,
		FlipNegativeScaleTriangles: r.opts.FlipNegativeScale,
	}
	if cull != nil {
		cfg.CanHitCameraCulledFaces = !*cull
	}
	if !cfg.CanHitCameraCulledFaces {
		cam := r.opts.Camera
		cfg.Camera = &cam
	}
	return cfg
}

func (r *Runner) raycast(q *RaycastQuery, res *Result) error {
	m, err := r.mesh(q.Mesh)
	if err != nil {
		return err
	}

	ray := geom.NewRay(math.FromArray(q.Origin), math.FromArray(q.Direction))
	hit, rh := m.RaycastClosest(ray, q.Transform.Matrix(), r.RaycastConfig(q.Cull))
	if !hit {
		return nil
	}

	point, normal, tri := rh.Point.Array(), rh.Normal.Array(), rh.TriangleIndex
	res.Found = true
	res.Distance = rh.Distance
	res.Point = &point
	res.Normal = &normal
	res.Triangle = &tri
	return nil
}

func (r *Runner) overlap(q *OverlapQuery, res *Result) error {
	m, err := r.mesh(q.Mesh)
	if err != nil {
		return err
	}

	box, transform := q.Box.OBB(), q.Transform.Matrix()
	switch {
	case q.Any && q.Vertices:
		res.Found = m.AnyVertsOverlapBox(box, transform)
	case q.Any:
		res.Found = m.AnyTrianglesOverlapBox(box, transform)
	case q.Vertices:
		for _, v := range m.VertsOverlapBox(box, transform) {
			res.Vertices = append(res.Vertices, v.Index)
		}
		sort.Slice(res.Vertices, func(i, j int) bool { return res.Vertices[i] < res.Vertices[j] })
		res.Found = len(res.Vertices) > 0
	default:
		res.Triangles = m.TrianglesOverlapBox(box, transform)
		sort.Ints(res.Triangles)
		res.Found = len(res.Triangles) > 0
	}
	return nil
}

func (r *Runner) intersect(q *IntersectQuery, res *Result) error {
	a, err := r.mesh(q.A)
	if err != nil {
		return err
	}
	b, err := r.mesh(q.B)
	if err != nil {
		return err
	}

	inflate := r.opts.Inflate
	if q.Inflate != nil {
		inflate = *q.Inflate
	}
	res.Found = a.TrianglesIntersectTriangles(q.ATransform.Matrix(), inflate, b, q.BTransform.Matrix())
	return nil
}
