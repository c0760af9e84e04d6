package axlf

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// Encoded sizes of the table sections. The table header is the offset of
// the first record, which includes alignment padding after the count field.
const (
	IPLayoutHeaderSize      = 8
	IPDataSize              = 80
	DebugIPLayoutHeaderSize = 8
	DebugIPDataSize         = 144
	ConnectivityHeaderSize  = 4
	ConnectionSize          = 12
	MemTopologyHeaderSize   = 8
	MemDataSize             = 40

	ipNameSize      = 64
	debugIPNameSize = 128
	memTagSize      = 16
)

// IPType is the type of an IP layout entry.
type IPType uint32

const (
	IPMB IPType = iota
	IPKernel
	IPDNASC
	IPDDR4Controller
	IPMemDDR4
	IPMemHBM
)

var ipTypeNames = [...]string{"IP_MB", "IP_KERNEL", "IP_DNASC", "IP_DDR4_CONTROLLER", "IP_MEM_DDR4", "IP_MEM_HBM"}

func (t IPType) String() string {
	if int(t) < len(ipTypeNames) {
		return ipTypeNames[t]
	}
	return "UNKNOWN(" + strconv.FormatUint(uint64(t), 10) + ")"
}

func (t IPType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// DebugIPType is the sub-type of a debug IP layout entry.
type DebugIPType uint8

const (
	DebugIPUndefined DebugIPType = iota
	DebugIPLAPC
	DebugIPILA
	DebugIPAXIMMMonitor
	DebugIPAXITraceFunnel
	DebugIPAXIMonitorFIFOLite
	DebugIPAXIMonitorFIFOFull
	DebugIPAccelMonitor
	DebugIPAXIStreamMonitor
	DebugIPAXIStreamProtocolChecker
	DebugIPTraceS2MM
	DebugIPAXIDMA
	DebugIPTraceS2MMFull
	DebugIPAXINoC
	DebugIPAccelDeadlockDetector
)

var debugIPTypeNames = [...]string{
	"UNDEFINED", "LAPC", "ILA", "AXI_MM_MONITOR", "AXI_TRACE_FUNNEL",
	"AXI_MONITOR_FIFO_LITE", "AXI_MONITOR_FIFO_FULL", "ACCEL_MONITOR",
	"AXI_STREAM_MONITOR", "AXI_STREAM_PROTOCOL_CHECKER", "TRACE_S2MM",
	"AXI_DMA", "TRACE_S2MM_FULL", "AXI_NOC", "ACCEL_DEADLOCK_DETECTOR",
}

func (t DebugIPType) String() string {
	if int(t) < len(debugIPTypeNames) {
		return debugIPTypeNames[t]
	}
	return "UNKNOWN(" + strconv.FormatUint(uint64(t), 10) + ")"
}

func (t DebugIPType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// MemType is the type of a memory topology entry.
type MemType uint8

const (
	MemDDR3 MemType = iota
	MemDDR4
	MemDRAM
	MemStreaming
	MemPreallocatedGlob
	MemARE
	MemHBM
	MemBRAM
	MemURAM
	MemStreamingConnection
	MemHost
)

var memTypeNames = [...]string{
	"MEM_DDR3", "MEM_DDR4", "MEM_DRAM", "MEM_STREAMING", "MEM_PREALLOCATED_GLOB",
	"MEM_ARE", "MEM_HBM", "MEM_BRAM", "MEM_URAM", "MEM_STREAMING_CONNECTION", "MEM_HOST",
}

func (t MemType) String() string {
	if int(t) < len(memTypeNames) {
		return memTypeNames[t]
	}
	return "UNKNOWN(" + strconv.FormatUint(uint64(t), 10) + ")"
}

func (t MemType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Streaming reports whether the memory is a stream endpoint rather than
// addressable storage.
func (t MemType) Streaming() bool {
	return t == MemStreaming || t == MemStreamingConnection
}

// IPData is one IP layout record.
type IPData struct {
	Type        IPType `json:"type"`
	Properties  uint32 `json:"properties"`
	BaseAddress uint64 `json:"base_address"`
	Name        string `json:"name"`
}

// Index returns the CU index stored in the low half of Properties.
func (d IPData) Index() uint16 { return uint16(d.Properties) }

// PCIndex returns the pseudo-channel index stored in Properties.
func (d IPData) PCIndex() uint8 { return uint8(d.Properties >> 16) }

// IPLayout is the IP_LAYOUT section.
type IPLayout struct {
	Entries []IPData `json:"entries"`
}

func (l *IPLayout) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Entries)
}

// DebugIPData is one DEBUG_IP_LAYOUT record.
type DebugIPData struct {
	Type        DebugIPType `json:"type"`
	Index       uint16      `json:"index"`
	Properties  uint8       `json:"properties"`
	Major       uint8       `json:"major"`
	Minor       uint8       `json:"minor"`
	BaseAddress uint64      `json:"base_address"`
	Name        string      `json:"name"`
}

// DebugIPLayout is the DEBUG_IP_LAYOUT section.
type DebugIPLayout struct {
	Entries []DebugIPData `json:"entries"`
}

func (l *DebugIPLayout) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Entries)
}

// Connection binds a kernel argument to a memory bank.
type Connection struct {
	ArgIndex      int32 `json:"arg_index"`
	IPLayoutIndex int32 `json:"ip_layout_index"`
	MemDataIndex  int32 `json:"mem_data_index"`
}

// Connectivity is the CONNECTIVITY section.
type Connectivity struct {
	Connections []Connection `json:"connections"`
}

func (c *Connectivity) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Connections)
}

// MemData is one memory topology record. SizeKB is in KiB as stored.
type MemData struct {
	Type        MemType `json:"type"`
	Used        bool    `json:"used"`
	SizeKB      uint64  `json:"size_kb"`
	BaseAddress uint64  `json:"base_address"`
	Tag         string  `json:"tag"`
}

// Size returns the bank size in bytes.
func (m MemData) Size() uint64 { return m.SizeKB * 1024 }

// MemTopology is the MEM_TOPOLOGY section.
type MemTopology struct {
	Banks []MemData `json:"banks"`
}

func (t *MemTopology) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Banks)
}

// checkTableSize enforces header + count*record == size exactly, computed
// without overflow.
func checkTableSize(kind SectionKind, count int64, header, record, size int) error {
	if count < 0 {
		return fmt.Errorf("%w: %s negative count %d", ErrSizeMismatch, kind, count)
	}
	if count > int64((math.MaxInt-header)/record) {
		return fmt.Errorf("%w: %s count %d too large", ErrSizeMismatch, kind, count)
	}
	want := header + int(count)*record
	if want != size {
		return fmt.Errorf("%w: %s count %d needs %d bytes, section is %d", ErrSizeMismatch, kind, count, want, size)
	}
	return nil
}

// ParseIPLayout decodes an IP_LAYOUT section payload.
func ParseIPLayout(b []byte) (*IPLayout, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrSizeMismatch, SectionIPLayout, len(b))
	}
	count := int64(int32(binary.LittleEndian.Uint32(b)))
	if err := checkTableSize(SectionIPLayout, count, IPLayoutHeaderSize, IPDataSize, len(b)); err != nil {
		return nil, err
	}
	out := &IPLayout{Entries: make([]IPData, count)}
	for i := range out.Entries {
		r := b[IPLayoutHeaderSize+i*IPDataSize:]
		out.Entries[i] = IPData{
			Type:        IPType(binary.LittleEndian.Uint32(r[0:])),
			Properties:  binary.LittleEndian.Uint32(r[4:]),
			BaseAddress: binary.LittleEndian.Uint64(r[8:]),
			Name:        cString(r[16 : 16+ipNameSize]),
		}
	}
	return out, nil
}

// MarshalBinary encodes the layout in section form.
func (l *IPLayout) MarshalBinary() ([]byte, error) {
	b := make([]byte, IPLayoutHeaderSize+len(l.Entries)*IPDataSize)
	binary.LittleEndian.PutUint32(b, uint32(len(l.Entries)))
	for i, e := range l.Entries {
		r := b[IPLayoutHeaderSize+i*IPDataSize:]
		binary.LittleEndian.PutUint32(r[0:], uint32(e.Type))
		binary.LittleEndian.PutUint32(r[4:], e.Properties)
		binary.LittleEndian.PutUint64(r[8:], e.BaseAddress)
		putCString(r[16:16+ipNameSize], e.Name)
	}
	return b, nil
}

// ParseDebugIPLayout decodes a DEBUG_IP_LAYOUT section payload. The count
// field is 16 bits wide.
func ParseDebugIPLayout(b []byte) (*DebugIPLayout, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrSizeMismatch, SectionDebugIPLayout, len(b))
	}
	count := int64(binary.LittleEndian.Uint16(b))
	if err := checkTableSize(SectionDebugIPLayout, count, DebugIPLayoutHeaderSize, DebugIPDataSize, len(b)); err != nil {
		return nil, err
	}
	out := &DebugIPLayout{Entries: make([]DebugIPData, count)}
	for i := range out.Entries {
		r := b[DebugIPLayoutHeaderSize+i*DebugIPDataSize:]
		out.Entries[i] = DebugIPData{
			Type:        DebugIPType(r[0]),
			Index:       uint16(r[1]) | uint16(r[5])<<8,
			Properties:  r[2],
			Major:       r[3],
			Minor:       r[4],
			BaseAddress: binary.LittleEndian.Uint64(r[8:]),
			Name:        cString(r[16 : 16+debugIPNameSize]),
		}
	}
	return out, nil
}

// MarshalBinary encodes the layout in section form.
func (l *DebugIPLayout) MarshalBinary() ([]byte, error) {
	if len(l.Entries) > math.MaxUint16 {
		return nil, fmt.Errorf("axlf: %d debug IP entries exceed the 16-bit count", len(l.Entries))
	}
	b := make([]byte, DebugIPLayoutHeaderSize+len(l.Entries)*DebugIPDataSize)
	binary.LittleEndian.PutUint16(b, uint16(len(l.Entries)))
	for i, e := range l.Entries {
		r := b[DebugIPLayoutHeaderSize+i*DebugIPDataSize:]
		r[0] = byte(e.Type)
		r[1] = byte(e.Index)
		r[2] = e.Properties
		r[3] = e.Major
		r[4] = e.Minor
		r[5] = byte(e.Index >> 8)
		binary.LittleEndian.PutUint64(r[8:], e.BaseAddress)
		putCString(r[16:16+debugIPNameSize], e.Name)
	}
	return b, nil
}

// ParseConnectivity decodes a CONNECTIVITY section payload.
func ParseConnectivity(b []byte) (*Connectivity, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrSizeMismatch, SectionConnectivity, len(b))
	}
	count := int64(int32(binary.LittleEndian.Uint32(b)))
	if err := checkTableSize(SectionConnectivity, count, ConnectivityHeaderSize, ConnectionSize, len(b)); err != nil {
		return nil, err
	}
	out := &Connectivity{Connections: make([]Connection, count)}
	for i := range out.Connections {
		r := b[ConnectivityHeaderSize+i*ConnectionSize:]
		out.Connections[i] = Connection{
			ArgIndex:      int32(binary.LittleEndian.Uint32(r[0:])),
			IPLayoutIndex: int32(binary.LittleEndian.Uint32(r[4:])),
			MemDataIndex:  int32(binary.LittleEndian.Uint32(r[8:])),
		}
	}
	return out, nil
}

// MarshalBinary encodes the connectivity table in section form.
func (c *Connectivity) MarshalBinary() ([]byte, error) {
	b := make([]byte, ConnectivityHeaderSize+len(c.Connections)*ConnectionSize)
	binary.LittleEndian.PutUint32(b, uint32(len(c.Connections)))
	for i, e := range c.Connections {
		r := b[ConnectivityHeaderSize+i*ConnectionSize:]
		binary.LittleEndian.PutUint32(r[0:], uint32(e.ArgIndex))
		binary.LittleEndian.PutUint32(r[4:], uint32(e.IPLayoutIndex))
		binary.LittleEndian.PutUint32(r[8:], uint32(e.MemDataIndex))
	}
	return b, nil
}

// ParseMemTopology decodes a MEM_TOPOLOGY section payload.
func ParseMemTopology(b []byte) (*MemTopology, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrSizeMismatch, SectionMemTopology, len(b))
	}
	count := int64(int32(binary.LittleEndian.Uint32(b)))
	if err := checkTableSize(SectionMemTopology, count, MemTopologyHeaderSize, MemDataSize, len(b)); err != nil {
		return nil, err
	}
	out := &MemTopology{Banks: make([]MemData, count)}
	for i := range out.Banks {
		r := b[MemTopologyHeaderSize+i*MemDataSize:]
		out.Banks[i] = MemData{
			Type:        MemType(r[0]),
			Used:        r[1] != 0,
			SizeKB:      binary.LittleEndian.Uint64(r[8:]),
			BaseAddress: binary.LittleEndian.Uint64(r[16:]),
			Tag:         cString(r[24 : 24+memTagSize]),
		}
	}
	return out, nil
}

// MarshalBinary encodes the topology in section form.
func (t *MemTopology) MarshalBinary() ([]byte, error) {
	b := make([]byte, MemTopologyHeaderSize+len(t.Banks)*MemDataSize)
	binary.LittleEndian.PutUint32(b, uint32(len(t.Banks)))
	for i, m := range t.Banks {
		r := b[MemTopologyHeaderSize+i*MemDataSize:]
		r[0] = byte(m.Type)
		if m.Used {
			r[1] = 1
		}
		binary.LittleEndian.PutUint64(r[8:], m.SizeKB)
		binary.LittleEndian.PutUint64(r[16:], m.BaseAddress)
		putCString(r[24:24+memTagSize], m.Tag)
	}
	return b, nil
}
