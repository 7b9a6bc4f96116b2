// Package meshio loads model files into meshes, picking the reader from
// the file extension. Models may also be read from inside GRF archives.
package meshio

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/meshquery/internal/logger"
	"github.com/Faultbox/meshquery/pkg/grf"
	"github.com/Faultbox/meshquery/pkg/math"
	"github.com/Faultbox/meshquery/pkg/mesh"
	"github.com/Faultbox/meshquery/pkg/objfile"
	"github.com/Faultbox/meshquery/pkg/rsm"
)

// ErrUnknownFormat is returned for extensions no reader handles.
var ErrUnknownFormat = errors.New("unknown mesh format")

// Options configures format-specific readers.
type Options struct {
	RSM rsm.BuildOptions
}

// Group is a named run of consecutive triangles.
type Group struct {
	Name          string
	FirstTriangle int
	TriangleCount int
}

// Model is triangle geometry read from a file.
type Model struct {
	Path     string
	Format   string
	Vertices []math.Vec3
	Indices  []uint32
	Groups   []Group
}

// Mesh builds an indexed mesh from the model.
func (m *Model) Mesh() (*mesh.Mesh, error) {
	msh, err := mesh.New(m.Vertices, m.Indices)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Path, err)
	}
	return msh, nil
}

// Formats lists the supported extensions.
func Formats() []string {
	return []string{".obj", ".rsm"}
}

// archiveSep joins an archive path to the name of a file inside it, as in
// "data.grf:data/model/tree.rsm".
const archiveSep = ".grf:"

// SplitArchivePath splits "archive.grf:inner/name" into its two parts.
// ok is false for plain file paths.
func SplitArchivePath(path string) (archive, name string, ok bool) {
	i := strings.Index(strings.ToLower(path), archiveSep)
	if i < 0 {
		return "", "", false
	}
	split := i + len(archiveSep) - 1
	return path[:split], path[split+1:], true
}

// Read loads the geometry of the file at path. A path of the form
// "archive.grf:name" reads name from inside the archive.
func Read(path string, opts Options) (*Model, error) {
	archive, name, archived := SplitArchivePath(path)
	if !archived {
		return decode(path, path, nil, opts)
	}

	a, err := grf.Open(archive)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	data, err := a.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", archive, err)
	}
	return decode(path, name, data, opts)
}

// ListArchive returns the names of the models stored in a GRF archive.
func ListArchive(path string) ([]string, error) {
	a, err := grf.Open(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	var out []string
	for _, name := range a.List() {
		if isModel(name) {
			out = append(out, name)
		}
	}
	return out, nil
}

func isModel(name string) bool {
	ext := strings.ToLower(filepath.Ext(strings.ReplaceAll(name, "\\", "/")))
	for _, f := range Formats() {
		if ext == f {
			return true
		}
	}
	return false
}

// decode reads name from data, or from disk when data is nil.
func decode(path, name string, data []byte, opts Options) (*Model, error) {
	out := &Model{Path: path}

	switch ext := strings.ToLower(filepath.Ext(strings.ReplaceAll(name, "\\", "/"))); ext {
	case ".obj":
		var obj *objfile.Model
		var err error
		if data != nil {
			if obj, err = objfile.Read(bytes.NewReader(data)); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		} else if obj, err = objfile.Load(name); err != nil {
			return nil, err
		}
		out.Format = "obj"
		out.Vertices, out.Indices = obj.Vertices, obj.Indices
		for _, g := range obj.Groups {
			out.Groups = append(out.Groups, Group(g))
		}

	case ".rsm":
		var model *rsm.Model
		var err error
		if data != nil {
			if model, err = rsm.Parse(data); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		} else if model, err = rsm.Load(name); err != nil {
			return nil, err
		}
		geo := model.Geometry(opts.RSM)
		if geo.Skipped > 0 {
			logger.Warn("faces skipped",
				zap.String("path", path),
				zap.Int("count", geo.Skipped),
			)
		}
		out.Format = "rsm " + model.Version.String()
		out.Vertices, out.Indices = geo.Vertices, geo.Indices
		for _, g := range geo.Groups {
			out.Groups = append(out.Groups, Group(g))
		}

	default:
		return nil, fmt.Errorf("%s: %w %q (want one of %s)", path, ErrUnknownFormat, ext, strings.Join(Formats(), ", "))
	}
	return out, nil
}

// Load reads path and builds its mesh.
func Load(path string, opts Options) (*mesh.Mesh, error) {
	start := time.Now()
	model, err := Read(path, opts)
	if err != nil {
		return nil, err
	}
	m, err := model.Mesh()
	if err != nil {
		return nil, err
	}

	logger.Info("mesh loaded",
		zap.String("path", path),
		zap.String("format", model.Format),
		zap.Int("triangles", m.TriangleCount()),
		zap.Int("vertices", m.VertexCount()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return m, nil
}
