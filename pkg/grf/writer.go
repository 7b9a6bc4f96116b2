package grf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"strings"

	"github.com/Faultbox/meshquery/pkg/encoding"
)

// Writer builds a version 0x200 archive in memory.
type Writer struct {
	data    bytes.Buffer
	entries []Entry
}

// Add compresses data and stores it under name. Forward slashes are written
// as backslashes, as the client does.
func (w *Writer) Add(name string, data []byte) error {
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	size := uint32(compressed.Len())
	aligned := (size + 7) &^ 7
	w.entries = append(w.entries, Entry{
		Name:             strings.ReplaceAll(name, "/", "\\"),
		CompressedSize:   size,
		AlignedSize:      aligned,
		UncompressedSize: uint32(len(data)),
		Flags:            FlagFile,
		Offset:           uint32(w.data.Len()),
	})

	w.data.Write(compressed.Bytes())
	w.data.Write(make([]byte, aligned-size))
	return nil
}

// WriteTo writes the header, file data and file table to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	var table bytes.Buffer
	for _, e := range w.entries {
		table.Write(encoding.UTF8ToEUCKR(e.Name))
		table.WriteByte(0)
		var tail [entryTailSize]byte
		binary.LittleEndian.PutUint32(tail[0:], e.CompressedSize)
		binary.LittleEndian.PutUint32(tail[4:], e.AlignedSize)
		binary.LittleEndian.PutUint32(tail[8:], e.UncompressedSize)
		tail[12] = e.Flags
		binary.LittleEndian.PutUint32(tail[13:], e.Offset)
		table.Write(tail[:])
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(table.Bytes()); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}

	h := header{
		TableOffset: uint32(w.data.Len()),
		FileCount:   uint32(len(w.entries)) + 7,
		Version:     version200,
	}
	copy(h.Magic[:], grfMagic)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		return 0, err
	}
	buf.Write(w.data.Bytes())
	if err := binary.Write(&buf, binary.LittleEndian, [2]uint32{uint32(compressed.Len()), uint32(table.Len())}); err != nil {
		return 0, err
	}
	buf.Write(compressed.Bytes())

	return buf.WriteTo(out)
}

// Bytes returns the encoded archive.
func (w *Writer) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = w.WriteTo(&buf)
	return buf.Bytes()
}
