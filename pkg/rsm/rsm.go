// Package rsm reads the static geometry of RSM models, the node-based
// mesh format Ragnarok Online uses for map objects.
//
// Versions 1.1 through 1.5 are supported. Texture coordinates, animation
// keys and volume boxes are skipped; nodes are placed at their rest pose.
package rsm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// RSM format errors.
var (
	ErrInvalidMagic       = errors.New("invalid RSM magic: expected 'GRSM'")
	ErrUnsupportedVersion = errors.New("unsupported RSM version")
	ErrTruncated          = errors.New("truncated RSM data")
	ErrCount              = errors.New("RSM element count out of range")
)

const (
	nameSize    = 40
	maxNodes    = 10000
	maxElements = 100000
	maxKeys     = 10000
)

// Version is the RSM file version.
type Version struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast returns true if version is >= major.minor.
func (v Version) AtLeast(major, minor uint8) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

func (v Version) supported() bool {
	return v.Major == 1 && v.Minor >= 1 && v.Minor <= 5
}

// Face is a triangle referencing its node's vertex list.
type Face struct {
	VertexIDs [3]uint16
	TwoSided  bool
}

// Node is one mesh in the model hierarchy.
type Node struct {
	Name   string
	Parent string // empty for the root

	// Matrix and Offset place the node's own vertices; children do not
	// inherit them.
	Matrix [9]float32
	Offset [3]float32

	// Position, rotation and Scale are inherited by children.
	Position [3]float32
	RotAngle float32 // radians
	RotAxis  [3]float32
	Scale    [3]float32

	Vertices [][3]float32
	Faces    []Face
}

// Model is a parsed RSM file.
type Model struct {
	Version  Version
	Textures []string
	Root     string
	Nodes    []Node
}

// Node returns the node called name, or nil.
func (m *Model) Node(name string) *Node {
	for i := range m.Nodes {
		if m.Nodes[i].Name == name {
			return &m.Nodes[i]
		}
	}
	return nil
}

// FaceCount returns the number of faces across all nodes.
func (m *Model) FaceCount() int {
	total := 0
	for _, n := range m.Nodes {
		total += len(n.Faces)
	}
	return total
}

// Load parses an RSM file from disk.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rsm: %w", err)
	}
	defer f.Close()

	m, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return m, nil
}

// Parse parses RSM data held in memory.
func Parse(data []byte) (*Model, error) {
	return Read(bytes.NewReader(data))
}

// Read parses an RSM stream.
func Read(r io.Reader) (*Model, error) {
	d := &decoder{r: r}

	var magic [4]byte
	d.read(&magic)
	if d.err != nil {
		return nil, d.err
	}
	if string(magic[:]) != "GRSM" {
		return nil, ErrInvalidMagic
	}

	m := &Model{}
	d.read(&m.Version)
	if d.err != nil {
		return nil, d.err
	}
	if !m.Version.supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, m.Version)
	}

	d.skip(4 + 4) // animation length, shading
	if m.Version.AtLeast(1, 4) {
		d.skip(1) // alpha
	}
	d.skip(16)

	m.Textures = make([]string, d.count(maxElements))
	for i := range m.Textures {
		m.Textures[i] = d.name()
	}
	m.Root = d.name()

	m.Nodes = make([]Node, d.count(maxNodes))
	for i := range m.Nodes {
		d.node(&m.Nodes[i], m.Version)
		if d.err != nil {
			return nil, fmt.Errorf("node %d: %w", i, d.err)
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}
