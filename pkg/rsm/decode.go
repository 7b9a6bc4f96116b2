package rsm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Faultbox/meshquery/pkg/encoding"
)

// decoder reads little-endian fields and keeps the first error, so a
// sequence of reads can be checked once.
type decoder struct {
	r   io.Reader
	err error
}

func (d *decoder) fail(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = ErrTruncated
	}
	d.err = err
}

func (d *decoder) read(v any) {
	if d.err != nil {
		return
	}
	if err := binary.Read(d.r, binary.LittleEndian, v); err != nil {
		d.fail(err)
	}
}

func (d *decoder) skip(n int64) {
	if d.err != nil || n == 0 {
		return
	}
	if _, err := io.CopyN(io.Discard, d.r, n); err != nil {
		d.fail(err)
	}
}

// count reads an int32 element count and rejects values outside [0, limit].
func (d *decoder) count(limit int) int {
	var n int32
	d.read(&n)
	if d.err != nil {
		return 0
	}
	if n < 0 || int(n) > limit {
		d.err = fmt.Errorf("%w: %d", ErrCount, n)
		return 0
	}
	return int(n)
}

func (d *decoder) name() string {
	var field [nameSize]byte
	d.read(&field)
	return encoding.FixedStringToUTF8(field[:])
}

// rawFace is the on-disk face record up to the smoothing group.
type rawFace struct {
	VertexIDs   [3]uint16
	TexCoordIDs [3]uint16
	TextureID   uint16
	Padding     uint16
	TwoSide     int32
}

func (d *decoder) node(n *Node, v Version) {
	n.Name = d.name()
	n.Parent = d.name()

	d.skip(4 * int64(d.count(maxElements))) // texture ids

	d.read(&n.Matrix)
	d.read(&n.Offset)
	d.read(&n.Position)
	d.read(&n.RotAngle)
	d.read(&n.RotAxis)
	d.read(&n.Scale)

	n.Vertices = make([][3]float32, d.count(maxElements))
	d.read(n.Vertices)

	texCoordSize := int64(8)
	if v.AtLeast(1, 2) {
		texCoordSize += 4 // vertex colour
	}
	d.skip(texCoordSize * int64(d.count(maxElements)))

	n.Faces = make([]Face, d.count(maxElements))
	for i := range n.Faces {
		var f rawFace
		d.read(&f)
		if v.AtLeast(1, 2) {
			d.skip(4) // smoothing group
		}
		n.Faces[i] = Face{VertexIDs: f.VertexIDs, TwoSided: f.TwoSide != 0}
	}

	if !v.AtLeast(1, 5) {
		d.skip(16 * int64(d.count(maxKeys))) // position keys
	}
	d.skip(20 * int64(d.count(maxKeys))) // rotation keys
	if v.AtLeast(1, 5) {
		d.skip(16 * int64(d.count(maxKeys))) // scale keys
	}
}
