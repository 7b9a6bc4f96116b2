// Package objfile reads triangle geometry from Wavefront OBJ files.
//
// Only positions and faces are kept. Texture coordinates, normals and
// materials are skipped. Polygons with more than three corners are split
// into a triangle fan around their first corner.
package objfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Faultbox/meshquery/pkg/math"
	"github.com/Faultbox/meshquery/pkg/mesh"
)

// ErrIndexRange is returned when a face references a vertex that has not
// been declared.
var ErrIndexRange = errors.New("face index out of range")

// Group is a named run of consecutive triangles declared by a "g" or "o"
// statement.
type Group struct {
	Name          string
	FirstTriangle int
	TriangleCount int
}

// Model is the geometry read from an OBJ file.
type Model struct {
	Vertices []math.Vec3
	Indices  []uint32
	Groups   []Group
}

// TriangleCount returns the number of triangles in the model.
func (m *Model) TriangleCount() int {
	return len(m.Indices) / 3
}

// Mesh builds an indexed mesh from the model.
func (m *Model) Mesh() (*mesh.Mesh, error) {
	return mesh.New(m.Vertices, m.Indices)
}

// ParseError reports the line an OBJ statement failed on.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads an OBJ file from disk.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening obj: %w", err)
	}
	defer f.Close()

	m, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return m, nil
}

// Read parses OBJ text.
func Read(r io.Reader) (*Model, error) {
	m := &Model{}
	lineNum := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNum++
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 || strings.HasPrefix(tokens[0], "#") {
			continue
		}

		switch tokens[0] {
		case "v":
			v, err := parseVec3(tokens)
			if err != nil {
				return nil, &ParseError{Line: lineNum, Err: err}
			}
			m.Vertices = append(m.Vertices, v)
		case "f":
			if err := m.addFace(tokens); err != nil {
				return nil, &ParseError{Line: lineNum, Err: err}
			}
		case "g", "o":
			name := "default"
			if len(tokens) > 1 {
				name = strings.Join(tokens[1:], " ")
			}
			m.Groups = append(m.Groups, Group{Name: name, FirstTriangle: m.TriangleCount()})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return m, nil
}

// addFace appends the fan triangulation of a face statement. Each corner is
// "v", "v/vt", "v//vn" or "v/vt/vn"; only v is used. Indices start at 1
// and may be negative to count back from the last declared vertex.
func (m *Model) addFace(tokens []string) error {
	if len(tokens) < 4 {
		return fmt.Errorf("face needs at least 3 corners; got %d", len(tokens)-1)
	}

	corners := make([]uint32, 0, len(tokens)-1)
	for i, tok := range tokens[1:] {
		vTok, _, _ := strings.Cut(tok, "/")
		if vTok == "" {
			return fmt.Errorf("corner %d has no vertex index", i)
		}
		idx, err := selectIndex(vTok, len(m.Vertices))
		if err != nil {
			return fmt.Errorf("corner %d: %w", i, err)
		}
		corners = append(corners, idx)
	}

	for i := 1; i+1 < len(corners); i++ {
		m.Indices = append(m.Indices, corners[0], corners[i], corners[i+1])
	}
	if n := len(m.Groups); n > 0 {
		m.Groups[n-1].TriangleCount += len(corners) - 2
	}
	return nil
}

func selectIndex(tok string, count int) (uint32, error) {
	index, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		return 0, err
	}

	var offset int
	if index < 0 {
		offset = count + int(index)
	} else {
		offset = int(index) - 1
	}
	if offset < 0 || offset >= count {
		return 0, fmt.Errorf("index %d with %d vertices: %w", index, count, ErrIndexRange)
	}
	return uint32(offset), nil
}

func parseVec3(tokens []string) (math.Vec3, error) {
	if len(tokens) < 4 {
		return math.Vec3{}, fmt.Errorf("'%s' needs 3 coordinates; got %d", tokens[0], len(tokens)-1)
	}

	var v [3]float32
	for i := range v {
		f, err := strconv.ParseFloat(tokens[i+1], 32)
		if err != nil {
			return math.Vec3{}, err
		}
		v[i] = float32(f)
	}
	return math.FromArray(v), nil
}
