// Package aperture builds the table of physical address ranges exposed for
// compute units and debug IP.
package aperture

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samcharles93/xload/pkg/axlf"
)

const (
	// CUSize is the address range reserved for every IP layout entry.
	CUSize = 64 << 10

	// MonitorFIFOSize is the range of AXI monitor FIFO debug IP.
	MonitorFIFOSize = 8 << 10

	// DebugIPSize is the range of every other debug IP.
	DebugIPSize = 64 << 10
)

var ErrNoApertures = errors.New("aperture: container exposes no apertures")

// Source tells which table an aperture was derived from.
type Source uint8

const (
	SourceIP Source = iota
	SourceDebugIP
)

func (s Source) String() string {
	switch s {
	case SourceIP:
		return "ip_layout"
	case SourceDebugIP:
		return "debug_ip_layout"
	default:
		return "unknown"
	}
}

// Entry is one aperture.
type Entry struct {
	Addr   uint64
	Size   uint64
	Source Source
	// Index is the position of the record in its source table.
	Index int
}

// End returns the first address past the aperture, saturating on overflow.
func (e Entry) End() uint64 {
	end := e.Addr + e.Size
	if end < e.Addr {
		return ^uint64(0)
	}
	return end
}

// Contains reports whether addr falls inside the aperture.
func (e Entry) Contains(addr uint64) bool {
	return addr >= e.Addr && addr < e.End()
}

// Table is an immutable aperture list. Entries keep source order: IP layout
// records first, then debug IP records, so an entry's position is its
// aperture index. A second, address-ordered view serves lookups.
type Table struct {
	entries []Entry
	byAddr  []int
	maxSize uint64
}

// Build derives a fresh table from the IP and debug IP layouts. Either may
// be nil. A table with no entries at all is ErrNoApertures.
func Build(ip *axlf.IPLayout, dbg *axlf.DebugIPLayout) (*Table, error) {
	total := ip.Len() + dbg.Len()
	if total == 0 {
		return nil, fmt.Errorf("%w: ip layout %d, debug ip layout %d", ErrNoApertures, ip.Len(), dbg.Len())
	}

	entries := make([]Entry, 0, total)
	if ip != nil {
		for i, d := range ip.Entries {
			entries = append(entries, Entry{Addr: d.BaseAddress, Size: CUSize, Source: SourceIP, Index: i})
		}
	}
	if dbg != nil {
		for i, d := range dbg.Entries {
			entries = append(entries, Entry{Addr: d.BaseAddress, Size: debugIPSize(d.Type), Source: SourceDebugIP, Index: i})
		}
	}

	byAddr := make([]int, len(entries))
	for i := range byAddr {
		byAddr[i] = i
	}
	sort.SliceStable(byAddr, func(a, b int) bool {
		return entries[byAddr[a]].Addr < entries[byAddr[b]].Addr
	})
	var maxSize uint64
	for _, e := range entries {
		maxSize = max(maxSize, e.Size)
	}
	return &Table{entries: entries, byAddr: byAddr, maxSize: maxSize}, nil
}

func debugIPSize(t axlf.DebugIPType) uint64 {
	switch t {
	case axlf.DebugIPAXIMonitorFIFOLite, axlf.DebugIPAXIMonitorFIFOFull:
		return MonitorFIFOSize
	default:
		return DebugIPSize
	}
}

// Len returns the number of apertures.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// At returns the aperture with the given index.
func (t *Table) At(i int) Entry {
	return t.entries[i]
}

// Entries returns a copy of the apertures in index order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	return append([]Entry(nil), t.entries...)
}

// Lookup returns the index of the aperture containing addr. When apertures
// overlap, the one with the highest base at or below addr wins.
func (t *Table) Lookup(addr uint64) (int, bool) {
	if t.Len() == 0 {
		return -1, false
	}
	// First position whose base is above addr.
	n := sort.Search(len(t.byAddr), func(i int) bool {
		return t.entries[t.byAddr[i]].Addr > addr
	})
	for i := n - 1; i >= 0; i-- {
		e := t.entries[t.byAddr[i]]
		if e.Contains(addr) {
			return t.byAddr[i], true
		}
		// No entry is larger than maxSize, so lower bases cannot reach addr.
		if addr-e.Addr >= t.maxSize {
			break
		}
	}
	return -1, false
}

// Index returns the index of the first aperture whose base equals addr.
func (t *Table) Index(addr uint64) (int, bool) {
	if t.Len() == 0 {
		return -1, false
	}
	n := sort.Search(len(t.byAddr), func(i int) bool {
		return t.entries[t.byAddr[i]].Addr >= addr
	})
	if n < len(t.byAddr) && t.entries[t.byAddr[n]].Addr == addr {
		return t.byAddr[n], true
	}
	return -1, false
}
