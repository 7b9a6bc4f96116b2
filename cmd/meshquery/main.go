// meshquery is a CLI for indexing OBJ and RSM models and running spatial
// queries against them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/meshquery/internal/config"
	"github.com/Faultbox/meshquery/internal/logger"
	"github.com/Faultbox/meshquery/internal/meshio"
	"github.com/Faultbox/meshquery/internal/querydoc"
	"github.com/Faultbox/meshquery/pkg/geom"
	"github.com/Faultbox/meshquery/pkg/math"
	"github.com/Faultbox/meshquery/pkg/mesh"
)

var errUsage = errors.New("usage")

func main() {
	os.Exit(run())
}

func run() int {
	config.ParseFlags()
	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logOpts := logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Console: true}
	if cfg.Logging.LogFile != "" {
		logOpts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	if err := logger.InitWithOptions(logOpts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	command := args[0]
	rest := args[1:]

	switch command {
	case "info":
		err = cmdInfo(cfg, rest)
	case "models":
		err = cmdModels(rest)
	case "raycast", "ray":
		err = cmdRaycast(cfg, rest)
	case "overlap":
		err = cmdOverlap(cfg, rest)
	case "intersect":
		err = cmdIntersect(cfg, rest)
	case "run":
		err = cmdRun(cfg, rest)
	case "config":
		err = cmdConfig(cfg, rest)
	case "help", "-h", "--help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return 1
	}

	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Println(`meshquery - triangle mesh spatial queries

Usage:
  meshquery [global options] <command> [options]

Commands:
  info <model>                                     Show mesh and index statistics
  models [-n N] <archive.grf> [pattern]            List models stored in an archive
  raycast -origin x,y,z -dir x,y,z <model>         Closest hit along a ray
  overlap -center x,y,z -half x,y,z <model>        Triangles or vertices inside a box
  intersect [-offset x,y,z] <a> <b>                Whether two meshes touch
  run <queries.yaml>                               Run a batch of queries
  config [-write path]                             Print or save the effective config

Global options:
  -config path          Config file (default $MESHQUERY_CONFIG, ./meshquery.yaml)
  -debug                Debug logging
  -log-file path        Also log to a rotating file
  -json-logs            Log as JSON
  -cull                 Skip faces the configured camera cannot see
  -flip-negative-scale  Flip hit normals on mirrored transforms
  -inflate f            Grow the first mesh's box in intersect queries
  -projection name      perspective or orthographic
  -double-sided         Give every RSM face a back face

Models are read by extension: .obj (Wavefront) or .rsm (Ragnarok Online).
A model inside a GRF archive is named archive.grf:path/in/archive.

Examples:
  meshquery info terrain.obj
  meshquery raycast -origin 0,10,0 -dir 0,-1,0 terrain.obj
  meshquery overlap -center 0,0,0 -half 2,2,2 -verts terrain.obj
  meshquery intersect -offset 0,0.5,0 crate.obj terrain.obj
  meshquery -cull raycast -origin 0,-20,0 -dir 0,1,0 tree.rsm
  meshquery models data.grf fountain
  meshquery info 'data.grf:data\model\fountain.rsm'
  meshquery run picks.yaml`)
}

func cmdInfo(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: meshquery info <model>", errUsage)
	}

	model, err := meshio.Read(args[0], cfg.MeshOptions())
	if err != nil {
		return err
	}
	m, err := model.Mesh()
	if err != nil {
		return err
	}

	tree := m.Tree()
	b := m.Bounds()
	fmt.Printf("Mesh:      %s (%s)\n", args[0], model.Format)
	fmt.Printf("Vertices:  %d\n", m.VertexCount())
	fmt.Printf("Triangles: %d\n", m.TriangleCount())
	fmt.Printf("Bounds:    %s .. %s\n", formatVec3(b.Min), formatVec3(b.Max))
	fmt.Printf("Nodes:     %d\n", tree.NodeCount())
	fmt.Printf("Depth:     %d\n", tree.Depth())

	degenerate := 0
	for i := 0; i < m.TriangleCount(); i++ {
		if m.Triangle(i).IsDegenerate() {
			degenerate++
		}
	}
	if degenerate > 0 {
		fmt.Printf("Degenerate triangles: %d\n", degenerate)
	}

	if len(model.Groups) > 0 {
		fmt.Println()
		fmt.Println("Groups:")
		for _, g := range model.Groups {
			fmt.Printf("  %-20s %d triangles\n", g.Name, g.TriangleCount)
		}
	}

	if err := tree.Validate(); err != nil {
		return fmt.Errorf("index invalid: %w", err)
	}
	return nil
}

func cmdModels(args []string) error {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	limit := fs.Int("n", 0, "Limit output to N models (0 = all)")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("%w: meshquery models [-n N] <archive.grf> [pattern]", errUsage)
	}

	names, err := meshio.ListArchive(fs.Arg(0))
	if err != nil {
		return err
	}

	pattern := strings.ToLower(fs.Arg(1))
	shown := 0
	for _, name := range names {
		if pattern != "" && !strings.Contains(strings.ToLower(name), pattern) {
			continue
		}
		fmt.Println(name)
		shown++
		if *limit > 0 && shown >= *limit {
			break
		}
	}
	fmt.Fprintf(os.Stderr, "%d of %d models\n", shown, len(names))
	return nil
}

func cmdRaycast(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("raycast", flag.ExitOnError)
	origin := fs.String("origin", "", "Ray origin x,y,z")
	dir := fs.String("dir", "", "Ray direction x,y,z")
	offset := fs.String("offset", "", "Translate the mesh by x,y,z")
	fs.Parse(args)

	if fs.NArg() < 1 || *origin == "" || *dir == "" {
		return fmt.Errorf("%w: meshquery raycast -origin x,y,z -dir x,y,z <model>", errUsage)
	}

	o, err := parseVec3(*origin)
	if err != nil {
		return fmt.Errorf("-origin: %w", err)
	}
	d, err := parseVec3(*dir)
	if err != nil {
		return fmt.Errorf("-dir: %w", err)
	}
	if d.IsZero() {
		return fmt.Errorf("-dir must be non-zero")
	}
	transform, err := offsetTransform(*offset)
	if err != nil {
		return err
	}

	m, err := meshio.Load(fs.Arg(0), cfg.MeshOptions())
	if err != nil {
		return err
	}

	hit, rh := m.RaycastClosest(geom.NewRay(o, d), transform, cfg.RaycastConfig())
	if !hit {
		fmt.Println("No hit")
		return nil
	}
	fmt.Printf("Triangle: %d\n", rh.TriangleIndex)
	fmt.Printf("Distance: %g\n", rh.Distance)
	fmt.Printf("Point:    %s\n", formatVec3(rh.Point))
	fmt.Printf("Normal:   %s\n", formatVec3(rh.Normal))
	return nil
}

func cmdOverlap(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("overlap", flag.ExitOnError)
	center := fs.String("center", "0,0,0", "Box center x,y,z")
	half := fs.String("half", "", "Box half size x,y,z")
	verts := fs.Bool("verts", false, "Report vertices instead of triangles")
	anyOnly := fs.Bool("any", false, "Only report whether anything overlaps")
	offset := fs.String("offset", "", "Translate the mesh by x,y,z")
	fs.Parse(args)

	if fs.NArg() < 1 || *half == "" {
		return fmt.Errorf("%w: meshquery overlap -center x,y,z -half x,y,z <model>", errUsage)
	}

	c, err := parseVec3(*center)
	if err != nil {
		return fmt.Errorf("-center: %w", err)
	}
	h, err := parseVec3(*half)
	if err != nil {
		return fmt.Errorf("-half: %w", err)
	}
	off, err := parseOffset(*offset)
	if err != nil {
		return err
	}

	m, err := meshio.Load(fs.Arg(0), cfg.MeshOptions())
	if err != nil {
		return err
	}

	r := querydoc.NewRunner(map[string]*mesh.Mesh{"mesh": m}, querydoc.Options{})
	res, err := r.Execute(&querydoc.Query{Overlap: &querydoc.OverlapQuery{
		Mesh:      "mesh",
		Transform: &querydoc.Transform{Translate: off.Array()},
		Box:       querydoc.Box{Center: c.Array(), HalfSize: h.Array()},
		Vertices:  *verts,
		Any:       *anyOnly,
	}})
	if err != nil {
		return err
	}

	switch {
	case *anyOnly:
		fmt.Println(res.Found)
	case *verts:
		for _, v := range res.Vertices {
			fmt.Println(v)
		}
		fmt.Fprintf(os.Stderr, "\n(%d vertices)\n", len(res.Vertices))
	default:
		for _, t := range res.Triangles {
			fmt.Println(t)
		}
		fmt.Fprintf(os.Stderr, "\n(%d triangles)\n", len(res.Triangles))
	}
	return nil
}

func cmdIntersect(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("intersect", flag.ExitOnError)
	offset := fs.String("offset", "", "Translate the first mesh by x,y,z")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return fmt.Errorf("%w: meshquery intersect [-offset x,y,z] <a> <b>", errUsage)
	}

	transform, err := offsetTransform(*offset)
	if err != nil {
		return err
	}

	a, err := meshio.Load(fs.Arg(0), cfg.MeshOptions())
	if err != nil {
		return err
	}
	b, err := meshio.Load(fs.Arg(1), cfg.MeshOptions())
	if err != nil {
		return err
	}

	touching := a.TrianglesIntersectTriangles(transform, cfg.Query.Inflate, b, math.Identity())
	fmt.Println(touching)
	return nil
}

func cmdRun(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	workers := fs.Int("workers", 0, "Concurrent queries (0 = GOMAXPROCS)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("%w: meshquery run <queries.yaml>", errUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	path := fs.Arg(0)
	doc, err := querydoc.Load(path)
	if err != nil {
		return err
	}
	meshes, err := querydoc.LoadMeshes(ctx, doc, filepath.Dir(path), cfg.MeshOptions())
	if err != nil {
		return err
	}

	r := querydoc.NewRunner(meshes, querydoc.Options{
		Camera:            cfg.Camera.Camera(),
		CanHitCulledFaces: cfg.Query.CanHitCulledFaces,
		FlipNegativeScale: cfg.Query.FlipNegativeScale,
		Inflate:           cfg.Query.Inflate,
		Workers:           *workers,
	})

	start := time.Now()
	results, err := r.Run(ctx, doc.Queries)
	if err != nil {
		return err
	}
	logger.Info("queries done", zap.Int("count", len(results)), zap.Duration("elapsed", time.Since(start)))

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(map[string][]querydoc.Result{"results": results})
}

func cmdConfig(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	write := fs.String("write", "", "Save the effective config to this path")
	save := fs.Bool("save", false, "Save the effective config to the user config directory")
	fs.Parse(args)

	switch {
	case *write != "":
		if err := cfg.SaveTo(*write); err != nil {
			return err
		}
		logger.Info("config written", zap.String("path", *write))
	case *save:
		if err := cfg.Save(); err != nil {
			return err
		}
		logger.Info("config written", zap.String("dir", config.ConfigDir()))
	default:
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
	}
	return nil
}

func parseOffset(s string) (math.Vec3, error) {
	if s == "" {
		return math.Vec3{}, nil
	}
	v, err := parseVec3(s)
	if err != nil {
		return math.Vec3{}, fmt.Errorf("-offset: %w", err)
	}
	return v, nil
}

func offsetTransform(s string) (math.Mat4, error) {
	v, err := parseOffset(s)
	if err != nil {
		return math.Mat4{}, err
	}
	return math.Translate(v.X, v.Y, v.Z), nil
}

// parseVec3 parses "x,y,z".
func parseVec3(s string) (math.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return math.Vec3{}, fmt.Errorf("want x,y,z; got %q", s)
	}
	var v [3]float32
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return math.Vec3{}, err
		}
		v[i] = float32(f)
	}
	return math.FromArray(v), nil
}

func formatVec3(v math.Vec3) string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}
