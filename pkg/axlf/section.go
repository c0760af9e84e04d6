package axlf

import (
	"strconv"
	"strings"
)

// SectionKind is the kind tag of a section table entry.
type SectionKind uint32

const (
	SectionBitstream SectionKind = iota
	SectionClearingBitstream
	SectionEmbeddedMetadata
	SectionFirmware
	SectionDebugData
	SectionSchedFirmware
	SectionMemTopology
	SectionConnectivity
	SectionIPLayout
	SectionDebugIPLayout
	SectionDesignCheckPoint
	SectionClockFreqTopology
	SectionMCS
	SectionBMC
	SectionBuildMetadata
	SectionKeyValueMetadata
	SectionUserMetadata
	SectionDNACertificate
	SectionPDI
	SectionBitstreamPartialPDI
	SectionPartitionMetadata
	SectionEmulationData
	SectionSystemMetadata

	numSectionKinds
)

var sectionKindNames = [numSectionKinds]string{
	SectionBitstream:           "BITSTREAM",
	SectionClearingBitstream:   "CLEARING_BITSTREAM",
	SectionEmbeddedMetadata:    "EMBEDDED_METADATA",
	SectionFirmware:            "FIRMWARE",
	SectionDebugData:           "DEBUG_DATA",
	SectionSchedFirmware:       "SCHED_FIRMWARE",
	SectionMemTopology:         "MEM_TOPOLOGY",
	SectionConnectivity:        "CONNECTIVITY",
	SectionIPLayout:            "IP_LAYOUT",
	SectionDebugIPLayout:       "DEBUG_IP_LAYOUT",
	SectionDesignCheckPoint:    "DESIGN_CHECK_POINT",
	SectionClockFreqTopology:   "CLOCK_FREQ_TOPOLOGY",
	SectionMCS:                 "MCS",
	SectionBMC:                 "BMC",
	SectionBuildMetadata:       "BUILD_METADATA",
	SectionKeyValueMetadata:    "KEYVALUE_METADATA",
	SectionUserMetadata:        "USER_METADATA",
	SectionDNACertificate:      "DNA_CERTIFICATE",
	SectionPDI:                 "PDI",
	SectionBitstreamPartialPDI: "BITSTREAM_PARTIAL_PDI",
	SectionPartitionMetadata:   "PARTITION_METADATA",
	SectionEmulationData:       "EMULATION_DATA",
	SectionSystemMetadata:      "SYSTEM_METADATA",
}

// Known reports whether k is one of the recognised section kinds.
func (k SectionKind) Known() bool {
	return k < numSectionKinds
}

// String returns the display name of k. Unrecognised kinds render as
// UNKNOWN(n) so that they stay distinguishable from each other.
func (k SectionKind) String() string {
	if k.Known() {
		return sectionKindNames[k]
	}
	return "UNKNOWN(" + strconv.FormatUint(uint64(k), 10) + ")"
}

// ParseSectionKind maps a display name (case insensitive) or a decimal tag
// back to a SectionKind.
func ParseSectionKind(s string) (SectionKind, bool) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range sectionKindNames {
		if n == name {
			return SectionKind(i), true
		}
	}
	v, err := strconv.ParseUint(name, 10, 32)
	if err != nil {
		return 0, false
	}
	return SectionKind(v), true
}

// Section is one decoded section table entry. Offset and Size are relative
// to the start of the container and are not trusted until checked against
// the container length.
type Section struct {
	Kind   SectionKind
	Name   string
	Offset uint64
	Size   uint64
}

// End returns Offset+Size and false when the sum overflows.
func (s Section) End() (uint64, bool) {
	end := s.Offset + s.Size
	return end, end >= s.Offset
}

// within reports whether the section lies entirely inside [0, length).
func (s Section) within(length uint64) bool {
	if s.Size > length {
		return false
	}
	return s.Offset <= length-s.Size
}
