// Package bitstream parses the tagged header that prefixes raw programmable
// logic images (.bit files) delivered by the older image path.
//
// The header is a sequence of big-endian length-prefixed fields:
//
//	u16 magic length, magic bytes (0x0F/0xF0 alternating, NUL terminated)
//	u16 0x0001
//	'a' u16 len design name\0
//	'b' u16 len part name\0
//	'c' u16 len date\0
//	'd' u16 len time\0
//	'e' u32 bitstream length
//
// The raw image follows immediately after the header.
package bitstream

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	evenMagicByte = 0x0F
	oddMagicByte  = 0xF0

	// DefaultMagicLength is the magic length written by the vendor tools.
	DefaultMagicLength = 9
)

var ErrInvalidFileHeader = errors.New("bitstream: invalid file header")

// Header is a decoded legacy bitstream header.
type Header struct {
	MagicLength     uint16
	DesignName      string
	PartName        string
	Date            string
	Time            string
	BitstreamLength uint32

	// Length is the number of header bytes consumed; the raw image starts
	// at this offset.
	Length int
}

type reader struct {
	b   []byte
	pos int
}

func (r *reader) fail(format string, args ...any) error {
	return fmt.Errorf("%w: at position %d: %s", ErrInvalidFileHeader, r.pos, fmt.Sprintf(format, args...))
}

func (r *reader) need(n int) error {
	if n < 0 || len(r.b)-r.pos < n {
		return r.fail("need %d bytes, %d remaining", n, len(r.b)-r.pos)
	}
	return nil
}

func (r *reader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.b[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.b[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) tag(want byte) error {
	got, err := r.u8()
	if err != nil {
		return err
	}
	if got != want {
		r.pos--
		return r.fail("tag %q, want %q", got, want)
	}
	return nil
}

// field reads a u16 length-prefixed NUL-terminated string.
func (r *reader) field(want byte) (string, error) {
	if err := r.tag(want); err != nil {
		return "", err
	}
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", r.fail("field %q is empty", want)
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	raw := r.b[r.pos : r.pos+int(n)]
	if raw[n-1] != 0 {
		return "", r.fail("field %q is not NUL terminated", want)
	}
	r.pos += int(n)
	return string(raw[:n-1]), nil
}

// ParseHeader decodes the legacy header at the start of data. Every length
// is checked against data before it is used.
func ParseHeader(data []byte) (*Header, error) {
	r := &reader{b: data}
	h := &Header{}

	var err error
	if h.MagicLength, err = r.u16(); err != nil {
		return nil, err
	}
	if h.MagicLength == 0 {
		return nil, r.fail("zero magic length")
	}
	if err := r.need(int(h.MagicLength)); err != nil {
		return nil, err
	}
	for i := 0; i < int(h.MagicLength)-1; i++ {
		want := byte(evenMagicByte)
		if i%2 == 1 {
			want = oddMagicByte
		}
		if r.b[r.pos] != want {
			return nil, r.fail("sync byte %d is %#02x, want %#02x", i, r.b[r.pos], want)
		}
		r.pos++
	}
	if end, _ := r.u8(); end != 0 {
		r.pos--
		return nil, r.fail("magic not NUL terminated")
	}

	marker, err := r.u16()
	if err != nil {
		return nil, err
	}
	if marker != 0x0001 {
		r.pos -= 2
		return nil, r.fail("marker %#04x, want 0x0001", marker)
	}

	if h.DesignName, err = r.field('a'); err != nil {
		return nil, err
	}
	if h.PartName, err = r.field('b'); err != nil {
		return nil, err
	}
	if h.Date, err = r.field('c'); err != nil {
		return nil, err
	}
	if h.Time, err = r.field('d'); err != nil {
		return nil, err
	}
	if err := r.tag('e'); err != nil {
		return nil, err
	}
	if h.BitstreamLength, err = r.u32(); err != nil {
		return nil, err
	}
	h.Length = r.pos
	return h, nil
}

// Payload returns the raw image that follows the header in data, checking
// that header and image together fit in data.
func (h *Header) Payload(data []byte) ([]byte, error) {
	end := uint64(h.Length) + uint64(h.BitstreamLength)
	if h.Length < 0 || end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: header %d + bitstream %d exceeds %d bytes",
			ErrInvalidFileHeader, h.Length, h.BitstreamLength, len(data))
	}
	return data[h.Length:end], nil
}

// Parse decodes the header and returns it with its payload.
func Parse(data []byte) (*Header, []byte, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, nil, err
	}
	payload, err := h.Payload(data)
	if err != nil {
		return nil, nil, err
	}
	return h, payload, nil
}

// Encode writes a header for h. Only the five named fields and MagicLength
// are used; a zero MagicLength selects DefaultMagicLength.
func Encode(h Header) ([]byte, error) {
	ml := h.MagicLength
	if ml == 0 {
		ml = DefaultMagicLength
	}
	out := binary.BigEndian.AppendUint16(nil, ml)
	for i := 0; i < int(ml)-1; i++ {
		if i%2 == 0 {
			out = append(out, evenMagicByte)
		} else {
			out = append(out, oddMagicByte)
		}
	}
	out = append(out, 0)
	out = binary.BigEndian.AppendUint16(out, 0x0001)

	fields := []struct {
		tag byte
		val string
	}{{'a', h.DesignName}, {'b', h.PartName}, {'c', h.Date}, {'d', h.Time}}
	for _, f := range fields {
		if len(f.val)+1 > 0xFFFF {
			return nil, fmt.Errorf("bitstream: field %q is %d bytes", f.tag, len(f.val))
		}
		out = append(out, f.tag)
		out = binary.BigEndian.AppendUint16(out, uint16(len(f.val)+1))
		out = append(out, f.val...)
		out = append(out, 0)
	}
	out = append(out, 'e')
	out = binary.BigEndian.AppendUint32(out, h.BitstreamLength)
	return out, nil
}
