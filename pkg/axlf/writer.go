package axlf

import (
	"encoding"
	"errors"
	"fmt"
	"io"
)

const sectionAlign = 8

// Writer assembles a container in memory. Header fields other than magic,
// length and section count are taken from Header as given.
type Writer struct {
	Header   Header
	Legacy   bool
	sections []Section
	payloads [][]byte
	closed   bool
}

// NewWriter returns a writer for a current-format container.
func NewWriter(h Header) *Writer {
	return &Writer{Header: h}
}

// AddSection appends a section. Kinds may repeat; readers use the first.
func (w *Writer) AddSection(kind SectionKind, name string, data []byte) error {
	if w.closed {
		return errors.New("axlf: writer already finalised")
	}
	if w.Legacy && len(w.sections) == 1 {
		return errors.New("axlf: legacy containers hold a single section")
	}
	w.sections = append(w.sections, Section{Kind: kind, Name: name, Size: uint64(len(data))})
	w.payloads = append(w.payloads, data)
	return nil
}

// AddTable encodes a table and appends it as a section of the given kind.
func (w *Writer) AddTable(kind SectionKind, t encoding.BinaryMarshaler) error {
	b, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	return w.AddSection(kind, kind.String(), b)
}

// Bytes lays out and returns the finished container.
func (w *Writer) Bytes() ([]byte, error) {
	if w.closed {
		return nil, errors.New("axlf: writer already finalised")
	}
	n := len(w.sections)
	tableEnd := SectionTableOffset + max(n, 1)*SectionEntrySize

	off := alignUp(uint64(tableEnd), sectionAlign)
	for i := range w.sections {
		w.sections[i].Offset = off
		off = alignUp(off+w.sections[i].Size, sectionAlign)
	}

	h := w.Header
	if w.Legacy {
		copy(h.Magic[:], MagicLegacy)
	} else {
		copy(h.Magic[:], MagicCurrent)
	}
	h.Length = off
	h.SectionCount = uint32(n)

	out := make([]byte, off)
	encodeHeader(out, h)
	for i, s := range w.sections {
		start := SectionTableOffset + i*SectionEntrySize
		encodeSection(out[start:start+SectionEntrySize], s)
		copy(out[s.Offset:], w.payloads[i])
	}
	w.closed = true
	return out, nil
}

// WriteTo writes the finished container to dst.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	b, err := w.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := dst.Write(b)
	if err != nil {
		return int64(n), fmt.Errorf("axlf: write container: %w", err)
	}
	return int64(n), nil
}

func alignUp(v, a uint64) uint64 {
	if r := v % a; r != 0 {
		return v + a - r
	}
	return v
}
