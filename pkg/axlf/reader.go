package axlf

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Container is a validated container header and section table over the
// container bytes. Section payloads have not been checked yet; every access
// goes through the bounded extractors below.
type Container struct {
	Data     []byte
	Header   Header
	Sections []Section
	mmapped  bool
}

// ParseHeader validates the fixed header and section table of data.
// It rejects a wrong magic with ErrMagicMismatch and any header or table
// that does not fit the available bytes with ErrTruncatedHeader. No section
// payload is read.
func ParseHeader(data []byte) (*Container, error) {
	if len(data) < len(MagicCurrent) {
		return nil, fmt.Errorf("%w: %d bytes available", ErrTruncatedHeader, len(data))
	}
	gen, ok := generationOf(data[:len(MagicCurrent)])
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMagicMismatch, data[:len(MagicCurrent)])
	}
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes available, fixed header is %d", ErrTruncatedHeader, len(data), HeaderSize)
	}

	hdr := decodeHeader(data[:HeaderSize])
	hdr.Generation = gen

	count := uint64(hdr.SectionCount)
	if gen == GenerationLegacy {
		// Legacy containers carry exactly one image section.
		count = 1
	}
	extent := uint64(SectionTableOffset) + count*SectionEntrySize
	if extent > uint64(len(data)) {
		return nil, fmt.Errorf("%w: section table needs %d bytes, %d available", ErrTruncatedHeader, extent, len(data))
	}
	if hdr.Length < extent {
		return nil, fmt.Errorf("%w: declared length %d smaller than header and section table (%d)", ErrTruncatedHeader, hdr.Length, extent)
	}
	if hdr.Length > uint64(len(data)) {
		return nil, fmt.Errorf("%w: declared length %d exceeds %d available bytes", ErrTruncatedHeader, hdr.Length, len(data))
	}

	sections := make([]Section, count)
	for i := range sections {
		start := SectionTableOffset + i*SectionEntrySize
		sections[i] = decodeSection(data[start : start+SectionEntrySize])
	}

	return &Container{
		Data:     data,
		Header:   hdr,
		Sections: sections,
	}, nil
}

// Open maps a container file read-only and validates its header.
// If mmap is unavailable, it falls back to ReadAt-based loading.
// The returned container must be closed to release any mapping.
func Open(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < 0 || size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: file size %d", ErrTruncatedHeader, size64)
	}
	size := int(size64)
	if size < HeaderSize {
		return nil, fmt.Errorf("%w: file is %d bytes", ErrTruncatedHeader, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		c, parseErr := ParseHeader(data)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		c.mmapped = true
		return c, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return ParseHeader(data)
}

// OpenReaderAt loads and validates a container from a random-access reader
// without mmap.
func OpenReaderAt(r io.ReaderAt, size int64) (*Container, error) {
	if size < 0 || size > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: size %d", ErrTruncatedHeader, size)
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, err
	}
	return ParseHeader(data)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

// Close releases the container bytes and any mmap backing. Slices returned
// by reference-mode extraction must not be used afterwards.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var err error
	if c.mmapped && c.Data != nil {
		err = unix.Munmap(c.Data)
	}
	c.Data = nil
	c.Sections = nil
	c.mmapped = false
	return err
}

// Find returns the first section table entry of the given kind. Later
// duplicates of the same kind are ignored.
func (c *Container) Find(kind SectionKind) (Section, error) {
	for _, s := range c.Sections {
		if s.Kind == kind {
			return s, nil
		}
	}
	return Section{}, fmt.Errorf("%w: %s", ErrSectionNotFound, kind)
}

// Has reports whether the container carries a section of the given kind.
func (c *Container) Has(kind SectionKind) bool {
	_, err := c.Find(kind)
	return err == nil
}

// SectionRef locates a section and checks its range against the container
// length without reading it.
func (c *Container) SectionRef(kind SectionKind) (Section, error) {
	s, err := c.Find(kind)
	if err != nil {
		return Section{}, err
	}
	if !s.within(c.Header.Length) {
		return Section{}, fmt.Errorf("%w: %s offset %d size %d, container length %d",
			ErrSectionOutOfBounds, kind, s.Offset, s.Size, c.Header.Length)
	}
	return s, nil
}

// SectionData returns a zero-copy slice over a section payload. It is meant
// for consumers that finish with the bytes before the container is closed.
func (c *Container) SectionData(kind SectionKind) ([]byte, error) {
	s, err := c.SectionRef(kind)
	if err != nil {
		return nil, err
	}
	// Safe because ParseHeader rejects a Length beyond len(Data).
	return c.Data[s.Offset : s.Offset+s.Size], nil
}

// CopySection returns an owned copy of a section payload, sized exactly to
// the section. A non-zero limit rejects larger sections with ErrAllocation
// before anything is allocated.
func (c *Container) CopySection(kind SectionKind, limit uint64) ([]byte, error) {
	s, err := c.SectionRef(kind)
	if err != nil {
		return nil, err
	}
	if limit > 0 && s.Size > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrAllocation, kind, s.Size, limit)
	}
	out := make([]byte, s.Size)
	copy(out, c.Data[s.Offset:s.Offset+s.Size])
	return out, nil
}

// Extract copies the payload of an optional section into *dst and returns
// its size. An absent section yields 0 and a nil error, leaving *dst nil.
func (c *Container) Extract(kind SectionKind, dst *[]byte, limit uint64) (uint64, error) {
	*dst = nil
	if !c.Has(kind) {
		return 0, nil
	}
	b, err := c.CopySection(kind, limit)
	if err != nil {
		return 0, err
	}
	*dst = b
	return uint64(len(b)), nil
}
