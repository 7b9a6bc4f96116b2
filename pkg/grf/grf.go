// Package grf reads files stored in Ragnarok Online GRF archives.
//
// Only version 0x200 archives with unencrypted entries are supported.
package grf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Faultbox/meshquery/pkg/encoding"
)

const (
	grfMagic   = "Master of Magic"
	headerSize = 46
	version200 = 0x200

	// entryTailSize is the fixed part of a file table record after the name.
	entryTailSize = 17
)

// Entry flags.
const (
	FlagFile           = 0x01
	FlagEncryptMixed   = 0x02
	FlagEncryptHeader  = 0x04
	flagEncryptedFiles = FlagEncryptMixed | FlagEncryptHeader
)

var (
	ErrInvalidMagic       = errors.New("invalid GRF magic")
	ErrUnsupportedVersion = errors.New("unsupported GRF version")
	ErrCorruptTable       = errors.New("corrupt GRF file table")
	ErrNotFound           = errors.New("file not found in archive")
	ErrEncrypted          = errors.New("encrypted GRF entry")
)

// header is the fixed 46-byte archive header.
type header struct {
	Magic         [15]byte
	EncryptionKey [15]byte
	TableOffset   uint32
	Seed          uint32
	FileCount     uint32
	Version       uint32
}

// Entry describes a stored file.
type Entry struct {
	// Name is the path as stored, decoded to UTF-8.
	Name             string
	CompressedSize   uint32
	AlignedSize      uint32
	UncompressedSize uint32
	Flags            uint8
	// Offset is relative to the end of the header.
	Offset uint32
}

// Encrypted reports whether the entry uses one of the DES schemes.
func (e *Entry) Encrypted() bool {
	return e.Flags&flagEncryptedFiles != 0
}

// Archive is an open GRF archive. Reads are safe for concurrent use when the
// underlying reader is.
type Archive struct {
	r       io.ReaderAt
	closer  io.Closer
	version uint32
	entries map[string]*Entry
	names   []string
}

// Open opens the archive at path.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening grf: %w", err)
	}

	a, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	a.closer = f
	return a, nil
}

// NewReader reads the header and file table of an archive held by r.
func NewReader(r io.ReaderAt) (*Archive, error) {
	var h header
	if err := binary.Read(io.NewSectionReader(r, 0, headerSize), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if string(h.Magic[:]) != grfMagic {
		return nil, ErrInvalidMagic
	}
	if h.Version != version200 {
		return nil, fmt.Errorf("%w: 0x%x", ErrUnsupportedVersion, h.Version)
	}

	a := &Archive{
		r:       r,
		version: h.Version,
		entries: make(map[string]*Entry),
	}
	if err := a.readTable(&h); err != nil {
		return nil, fmt.Errorf("reading file table: %w", err)
	}
	return a, nil
}

func (a *Archive) readTable(h *header) error {
	// The stored count is offset by the seed plus 7.
	count := int64(h.FileCount) - int64(h.Seed) - 7
	if count < 0 {
		return fmt.Errorf("%w: file count %d", ErrCorruptTable, count)
	}

	base := int64(h.TableOffset) + headerSize
	var sizes struct {
		Compressed   uint32
		Uncompressed uint32
	}
	if err := binary.Read(io.NewSectionReader(a.r, base, 8), binary.LittleEndian, &sizes); err != nil {
		return err
	}

	table, err := inflate(io.NewSectionReader(a.r, base+8, int64(sizes.Compressed)), sizes.Uncompressed)
	if err != nil {
		return err
	}

	for i := int64(0); i < count; i++ {
		end := bytes.IndexByte(table, 0)
		if end < 0 || len(table) < end+1+entryTailSize {
			return fmt.Errorf("%w: entry %d truncated", ErrCorruptTable, i)
		}
		rec := table[end+1:]
		e := &Entry{
			Name:             encoding.EUCKRToUTF8(table[:end]),
			CompressedSize:   binary.LittleEndian.Uint32(rec[0:]),
			AlignedSize:      binary.LittleEndian.Uint32(rec[4:]),
			UncompressedSize: binary.LittleEndian.Uint32(rec[8:]),
			Flags:            rec[12],
			Offset:           binary.LittleEndian.Uint32(rec[13:]),
		}
		table = rec[entryTailSize:]

		// Directory records carry no data.
		if e.Flags&FlagFile == 0 {
			continue
		}
		key := encoding.NormalizePath(e.Name)
		if _, dup := a.entries[key]; !dup {
			a.names = append(a.names, e.Name)
		}
		a.entries[key] = e
	}

	sort.Strings(a.names)
	return nil
}

// Close releases the file opened by Open.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// Version returns the archive format version.
func (a *Archive) Version() uint32 {
	return a.version
}

// Len returns the number of stored files.
func (a *Archive) Len() int {
	return len(a.names)
}

// List returns the stored file names in sorted order.
func (a *Archive) List() []string {
	return append([]string(nil), a.names...)
}

// Entry looks up a file. Names are matched case-insensitively and either
// slash direction is accepted.
func (a *Archive) Entry(name string) (*Entry, bool) {
	e, ok := a.entries[encoding.NormalizePath(name)]
	return e, ok
}

// Contains reports whether the archive stores name.
func (a *Archive) Contains(name string) bool {
	_, ok := a.Entry(name)
	return ok
}

// ReadFile returns the uncompressed contents of name.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	e, ok := a.Entry(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if e.Encrypted() {
		return nil, fmt.Errorf("%s: %w", name, ErrEncrypted)
	}

	sr := io.NewSectionReader(a.r, int64(e.Offset)+headerSize, int64(e.CompressedSize))

	// Entries whose sizes match were stored without compression.
	if e.CompressedSize == e.UncompressedSize {
		data := make([]byte, e.UncompressedSize)
		if _, err := io.ReadFull(sr, data); err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		return data, nil
	}

	data, err := inflate(sr, e.UncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", name, err)
	}
	return data, nil
}

func inflate(r io.Reader, size uint32) ([]byte, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, err
	}
	return out, nil
}
