// Package axlf implements the xclbin (AXLF) accelerator container format.
//
// An xclbin is a single binary blob describing one hardware configuration of
// an FPGA based accelerator: the programmable logic image, the compute unit
// address map, the debug IP map and the memory topology. Every offset and
// size inside the container is treated as untrusted and validated before any
// byte it covers is read.
package axlf

import (
	"strconv"
	"strings"
)

// Container magic literals. They must never change.
const (
	// MagicCurrent identifies the multi-section container format.
	MagicCurrent = "xclbin2\x00"

	// MagicLegacy identifies the older single-image container format.
	MagicLegacy = "xclbin0\x00"
)

// Fixed binary layout of the container header.
const (
	headerMagicOff       = 0
	headerSigLenOff      = 8
	headerKeyBlockOff    = 40
	headerUniqueIDOff    = 296
	headerLengthOff      = 304
	headerTimeStampOff   = 312
	headerFeatureROMOff  = 320
	headerVersionOff     = 328
	headerModeOff        = 332
	headerROMUUIDOff     = 336
	headerVBNVOff        = 352
	headerUUIDOff        = 416
	headerDebugBinOff    = 432
	headerNumSectionsOff = 448

	// SectionTableOffset is where the section table starts.
	SectionTableOffset = 456

	// SectionEntrySize is the encoded size of one section table entry.
	SectionEntrySize = 40

	// HeaderSize is the size of the fixed header including its one
	// inline section entry.
	HeaderSize = SectionTableOffset + SectionEntrySize

	keyBlockSize = 256
	vbnvSize     = 64
	debugBinSize = 16
	sectionName  = 16
)

// Generation tells which of the two container formats a header carries.
type Generation uint8

const (
	GenerationCurrent Generation = iota
	GenerationLegacy
)

func (g Generation) String() string {
	switch g {
	case GenerationCurrent:
		return "xclbin2"
	case GenerationLegacy:
		return "xclbin0"
	default:
		return "unknown"
	}
}

// Mode is the build mode recorded in the container header.
type Mode uint32

const (
	ModeFlat Mode = iota
	ModePR
	ModeTandemStage2
	ModeTandemStage2WithPR
	ModeHWEmu
	ModeSWEmu
	ModeHWEmuPR
)

var modeNames = [...]string{
	ModeFlat:               "FLAT",
	ModePR:                 "PR",
	ModeTandemStage2:       "TANDEM_STAGE2",
	ModeTandemStage2WithPR: "TANDEM_STAGE2_WITH_PR",
	ModeHWEmu:              "HW_EMU",
	ModeSWEmu:              "SW_EMU",
	ModeHWEmuPR:            "HW_EMU_PR",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "UNKNOWN(" + strconv.FormatUint(uint64(m), 10) + ")"
}

// PartialReconfig reports whether the mode targets a partial reconfiguration
// region.
func (m Mode) PartialReconfig() bool {
	return m == ModePR || m == ModeHWEmuPR
}

// ParseMode accepts a mode name such as "PR" or its decimal value.
func ParseMode(s string) (Mode, bool) {
	for i, name := range modeNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return Mode(i), true
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return Mode(n), true
}
