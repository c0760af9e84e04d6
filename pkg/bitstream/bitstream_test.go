package bitstream

import (
	"bytes"
	"errors"
	"testing"
)

func sampleHeader() Header {
	return Header{
		DesignName:      "system_wrapper;UserID=0XFFFFFFFF;Version=2020.1",
		PartName:        "xczu9eg-ffvb1156-2-e",
		Date:            "2020/06/20",
		Time:            "10:41:07",
		BitstreamLength: 8,
	}
}

func sampleFile(t *testing.T) []byte {
	t.Helper()
	hdr, err := Encode(sampleHeader())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return append(hdr, 0x01, 0x02, 0x03, 0x04, 0xaa, 0xbb, 0xcc, 0xdd)
}

func TestParseHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	data := sampleFile(t)
	h, payload, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := sampleHeader()
	if h.DesignName != want.DesignName {
		t.Fatalf("design name mismatch: got %q want %q", h.DesignName, want.DesignName)
	}
	if h.PartName != want.PartName {
		t.Fatalf("part name mismatch: got %q want %q", h.PartName, want.PartName)
	}
	if h.Date != want.Date || h.Time != want.Time {
		t.Fatalf("date/time mismatch: got %q %q", h.Date, h.Time)
	}
	if h.BitstreamLength != want.BitstreamLength {
		t.Fatalf("bitstream length mismatch: got %d want %d", h.BitstreamLength, want.BitstreamLength)
	}
	if h.MagicLength != DefaultMagicLength {
		t.Fatalf("magic length mismatch: got %d", h.MagicLength)
	}
	if h.Length != len(data)-8 {
		t.Fatalf("header length mismatch: got %d want %d", h.Length, len(data)-8)
	}
	if !bytes.Equal(payload, data[len(data)-8:]) {
		t.Fatalf("payload mismatch: got %x", payload)
	}
}

func TestParseHeaderKnownPrefix(t *testing.T) {
	t.Parallel()

	// First bytes of a vendor-tool .bit file.
	prefix := []byte{0x00, 0x09, 0x0f, 0xf0, 0x0f, 0xf0, 0x0f, 0xf0, 0x0f, 0xf0, 0x00, 0x00, 0x01, 'a'}
	data := sampleFile(t)
	if !bytes.Equal(data[:len(prefix)], prefix) {
		t.Fatalf("encoded prefix mismatch: got %x want %x", data[:len(prefix)], prefix)
	}
}

func TestParseHeaderTruncatedEverywhere(t *testing.T) {
	t.Parallel()

	data := sampleFile(t)
	h, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for n := 0; n < h.Length; n++ {
		if _, err := ParseHeader(data[:n]); !errors.Is(err, ErrInvalidFileHeader) {
			t.Fatalf("prefix of %d bytes: expected ErrInvalidFileHeader, got %v", n, err)
		}
	}
}

func TestParseHeaderCorrupt(t *testing.T) {
	t.Parallel()

	base := sampleFile(t)
	h, _ := ParseHeader(base)
	designStart := 2 + DefaultMagicLength + 2

	tests := []struct {
		name  string
		patch func(b []byte)
	}{
		{"zero magic length", func(b []byte) { b[0], b[1] = 0, 0 }},
		{"even sync byte", func(b []byte) { b[2] = 0x0e }},
		{"odd sync byte", func(b []byte) { b[3] = 0x0f }},
		{"magic terminator", func(b []byte) { b[2+DefaultMagicLength-1] = 0xff }},
		{"marker", func(b []byte) { b[2+DefaultMagicLength+1] = 0x02 }},
		{"design tag", func(b []byte) { b[designStart] = 'x' }},
		{"design terminator", func(b []byte) {
			n := int(b[designStart+1])<<8 | int(b[designStart+2])
			b[designStart+3+n-1] = 'x'
		}},
		{"length tag", func(b []byte) { b[h.Length-5] = 'f' }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			data := bytes.Clone(base)
			tc.patch(data)
			if _, err := ParseHeader(data); !errors.Is(err, ErrInvalidFileHeader) {
				t.Fatalf("expected ErrInvalidFileHeader, got %v", err)
			}
		})
	}
}

func TestPayloadBounds(t *testing.T) {
	t.Parallel()

	data := sampleFile(t)
	h, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := h.Payload(data[:len(data)-1]); !errors.Is(err, ErrInvalidFileHeader) {
		t.Fatalf("expected ErrInvalidFileHeader for short payload, got %v", err)
	}
	h.BitstreamLength = 0xFFFFFFFF
	if _, err := h.Payload(data); !errors.Is(err, ErrInvalidFileHeader) {
		t.Fatalf("expected ErrInvalidFileHeader for oversized length, got %v", err)
	}
}

func TestSwapWords(t *testing.T) {
	t.Parallel()

	src := []byte{0x01, 0x02, 0x03, 0x04, 0xaa, 0xbb, 0xcc, 0xdd, 0xee}
	got := SwapWords(src)
	want := []byte{0x04, 0x03, 0x02, 0x01, 0xdd, 0xcc, 0xbb, 0xaa, 0xee}
	if !bytes.Equal(got, want) {
		t.Fatalf("swap mismatch: got %x want %x", got, want)
	}
	if src[0] != 0x01 {
		t.Fatalf("source modified")
	}
}
