package axlf

import (
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
)

// Header is the decoded fixed header of a container.
type Header struct {
	Magic               [8]byte
	Generation          Generation
	SignatureLength     int32
	KeyBlock            [keyBlockSize]byte
	UniqueID            uint64
	Length              uint64
	TimeStamp           uint64
	FeatureROMTimeStamp uint64
	VersionPatch        uint16
	VersionMajor        uint8
	VersionMinor        uint8
	Mode                Mode
	ROMUUID             uuid.UUID
	PlatformVBNV        string
	UUID                uuid.UUID
	DebugBin            string
	SectionCount        uint32
}

// Signed reports whether the container carries a signature.
func (h *Header) Signed() bool {
	return h.SignatureLength > 0
}

func generationOf(magic []byte) (Generation, bool) {
	switch string(magic) {
	case MagicCurrent:
		return GenerationCurrent, true
	case MagicLegacy:
		return GenerationLegacy, true
	default:
		return 0, false
	}
}

// decodeHeader decodes the fixed header. b must hold at least
// SectionTableOffset bytes and a recognised magic.
func decodeHeader(b []byte) Header {
	le := binary.LittleEndian
	var h Header
	copy(h.Magic[:], b[headerMagicOff:headerMagicOff+8])
	h.Generation, _ = generationOf(h.Magic[:])
	h.SignatureLength = int32(le.Uint32(b[headerSigLenOff:]))
	copy(h.KeyBlock[:], b[headerKeyBlockOff:headerKeyBlockOff+keyBlockSize])
	h.UniqueID = le.Uint64(b[headerUniqueIDOff:])
	h.Length = le.Uint64(b[headerLengthOff:])
	h.TimeStamp = le.Uint64(b[headerTimeStampOff:])
	h.FeatureROMTimeStamp = le.Uint64(b[headerFeatureROMOff:])
	h.VersionPatch = le.Uint16(b[headerVersionOff:])
	h.VersionMajor = b[headerVersionOff+2]
	h.VersionMinor = b[headerVersionOff+3]
	h.Mode = Mode(le.Uint32(b[headerModeOff:]))
	copy(h.ROMUUID[:], b[headerROMUUIDOff:headerROMUUIDOff+16])
	h.PlatformVBNV = cString(b[headerVBNVOff : headerVBNVOff+vbnvSize])
	copy(h.UUID[:], b[headerUUIDOff:headerUUIDOff+16])
	h.DebugBin = cString(b[headerDebugBinOff : headerDebugBinOff+debugBinSize])
	h.SectionCount = le.Uint32(b[headerNumSectionsOff:])
	return h
}

// encodeHeader writes h into b, which must hold SectionTableOffset bytes.
func encodeHeader(b []byte, h Header) {
	le := binary.LittleEndian
	copy(b[headerMagicOff:headerMagicOff+8], h.Magic[:])
	le.PutUint32(b[headerSigLenOff:], uint32(h.SignatureLength))
	copy(b[headerKeyBlockOff:headerKeyBlockOff+keyBlockSize], h.KeyBlock[:])
	le.PutUint64(b[headerUniqueIDOff:], h.UniqueID)
	le.PutUint64(b[headerLengthOff:], h.Length)
	le.PutUint64(b[headerTimeStampOff:], h.TimeStamp)
	le.PutUint64(b[headerFeatureROMOff:], h.FeatureROMTimeStamp)
	le.PutUint16(b[headerVersionOff:], h.VersionPatch)
	b[headerVersionOff+2] = h.VersionMajor
	b[headerVersionOff+3] = h.VersionMinor
	le.PutUint32(b[headerModeOff:], uint32(h.Mode))
	copy(b[headerROMUUIDOff:headerROMUUIDOff+16], h.ROMUUID[:])
	putCString(b[headerVBNVOff:headerVBNVOff+vbnvSize], h.PlatformVBNV)
	copy(b[headerUUIDOff:headerUUIDOff+16], h.UUID[:])
	putCString(b[headerDebugBinOff:headerDebugBinOff+debugBinSize], h.DebugBin)
	le.PutUint32(b[headerNumSectionsOff:], h.SectionCount)
}

func decodeSection(b []byte) Section {
	le := binary.LittleEndian
	return Section{
		Kind:   SectionKind(le.Uint32(b[0:])),
		Name:   cString(b[4 : 4+sectionName]),
		Offset: le.Uint64(b[24:]),
		Size:   le.Uint64(b[32:]),
	}
}

func encodeSection(b []byte, s Section) {
	le := binary.LittleEndian
	le.PutUint32(b[0:], uint32(s.Kind))
	putCString(b[4:4+sectionName], s.Name)
	le.PutUint64(b[24:], s.Offset)
	le.PutUint64(b[32:], s.Size)
}

// cString returns the bytes of b up to the first NUL.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// putCString copies s into a fixed NUL padded field, truncating so that at
// least one NUL remains.
func putCString(dst []byte, s string) {
	clear(dst)
	if len(dst) == 0 {
		return
	}
	copy(dst[:len(dst)-1], s)
}
