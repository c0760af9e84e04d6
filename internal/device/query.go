package device

import (
	"slices"

	"github.com/google/uuid"

	"github.com/samcharles93/xload/internal/aperture"
	"github.com/samcharles93/xload/pkg/axlf"
)

// Lookup returns the aperture containing addr.
func (d *Device) Lookup(addr uint64) (aperture.Entry, int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx, ok := d.apertures.Lookup(addr)
	if !ok {
		return aperture.Entry{}, -1, false
	}
	return d.apertures.At(idx), idx, true
}

// ApertureIndex returns the index of the aperture based exactly at addr.
func (d *Device) ApertureIndex(addr uint64) (int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.apertures.Index(addr)
}

func (d *Device) Apertures() []aperture.Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.apertures.Entries()
}

// ComputeUnit is a kernel IP layout record with its aperture.
type ComputeUnit struct {
	Name     string `json:"name"`
	Base     uint64 `json:"base"`
	Size     uint64 `json:"size"`
	CUIndex  uint16 `json:"cu_index"`
	Aperture int    `json:"aperture"`
}

// ComputeUnits lists the kernel entries of the committed IP layout.
func (d *Device) ComputeUnits() []ComputeUnit {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.ipLayout == nil {
		return nil
	}
	var cus []ComputeUnit
	for i, ip := range d.ipLayout.Entries {
		if ip.Type != axlf.IPKernel {
			continue
		}
		// IP layout records come first in the aperture table.
		cus = append(cus, ComputeUnit{
			Name:     ip.Name,
			Base:     ip.BaseAddress,
			Size:     aperture.CUSize,
			CUIndex:  ip.Index(),
			Aperture: i,
		})
	}
	return cus
}

// Snapshot is a deep copy of the committed configuration.
type Snapshot struct {
	State         State               `json:"state"`
	Committed     bool                `json:"committed"`
	UniqueID      uint64              `json:"unique_id"`
	UUID          uuid.UUID           `json:"uuid"`
	ImageLoaded   bool                `json:"image_loaded"`
	IPLayout      *axlf.IPLayout      `json:"ip_layout,omitempty"`
	DebugIPLayout *axlf.DebugIPLayout `json:"debug_ip_layout,omitempty"`
	Connectivity  *axlf.Connectivity  `json:"connectivity,omitempty"`
	MemTopology   *axlf.MemTopology   `json:"mem_topology,omitempty"`
	Apertures     []aperture.Entry    `json:"apertures,omitempty"`
	Banks         []Bank              `json:"banks,omitempty"`
	LastError     string              `json:"last_error,omitempty"`
}

// Snapshot copies the committed state under a single read lock.
func (d *Device) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Snapshot{
		State:       d.state,
		Committed:   d.committed,
		UniqueID:    d.uniqueID,
		UUID:        d.uuid,
		ImageLoaded: d.imageLoaded,
		Apertures:   d.apertures.Entries(),
	}
	if d.lastErr != nil {
		s.LastError = d.lastErr.Error()
	}
	if d.ipLayout != nil {
		s.IPLayout = &axlf.IPLayout{Entries: slices.Clone(d.ipLayout.Entries)}
	}
	if d.debugLayout != nil {
		s.DebugIPLayout = &axlf.DebugIPLayout{Entries: slices.Clone(d.debugLayout.Entries)}
	}
	if d.conn != nil {
		s.Connectivity = &axlf.Connectivity{Connections: slices.Clone(d.conn.Connections)}
	}
	if d.memTopo != nil {
		s.MemTopology = &axlf.MemTopology{Banks: slices.Clone(d.memTopo.Banks)}
	}

	d.mmMu.Lock()
	s.Banks = slices.Clone(d.banks)
	d.mmMu.Unlock()
	return s
}
