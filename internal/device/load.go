package device

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/samcharles93/xload/internal/aperture"
	"github.com/samcharles93/xload/internal/logger"
	"github.com/samcharles93/xload/pkg/axlf"
	"github.com/samcharles93/xload/pkg/bitstream"
)

// Image sections in the order they are looked for.
var imageKinds = [...]axlf.SectionKind{
	axlf.SectionBitstream,
	axlf.SectionPDI,
	axlf.SectionBitstreamPartialPDI,
}

// LoadResult describes the outcome of a load. FailedAt is the last step
// reached before a rejection.
type LoadResult struct {
	State       State     `json:"state"`
	FailedAt    State     `json:"failed_at,omitempty"`
	Duplicate   bool      `json:"duplicate"`
	UniqueID    uint64    `json:"unique_id"`
	UUID        uuid.UUID `json:"uuid"`
	ImageLoaded bool      `json:"image_loaded"`
	ImageKind   string    `json:"image_kind,omitempty"`

	IPLayoutCount      int `json:"ip_layout_count"`
	DebugIPLayoutCount int `json:"debug_ip_layout_count"`
	ConnectivityCount  int `json:"connectivity_count"`
	MemTopologyCount   int `json:"mem_topology_count"`
	ApertureCount      int `json:"aperture_count"`
}

// staged holds everything a load builds before it is committed.
type staged struct {
	reached     State
	imageKind   axlf.SectionKind
	imageLoaded bool
	ipLayout    *axlf.IPLayout
	debugLayout *axlf.DebugIPLayout
	conn        *axlf.Connectivity
	memTopo     *axlf.MemTopology
	apertures   *aperture.Table
}

// Load replaces the device configuration with the container in data.
//
// Waiting for the admission guard honours ctx. Once admitted, the load runs
// to completion or failure; ctx cancellation is not propagated to the
// image loader. Reloading the committed container is a successful no-op
// reported with Duplicate set. Any failure after the header is validated
// leaves the device with no committed tables.
func (d *Device) Load(ctx context.Context, data []byte, flags LoadFlags) (*LoadResult, error) {
	if err := d.admit.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.admit.Release(1)

	c, err := axlf.ParseHeader(data)
	if err != nil {
		d.log.Warn("container rejected", "state", StateIdle.String(), "err", err)
		d.mu.Lock()
		d.state = StateRejected
		d.lastErr = err
		d.mu.Unlock()
		return &LoadResult{State: StateRejected, FailedAt: StateIdle}, err
	}
	hdr := c.Header
	log := d.log.With("unique_id", hdr.UniqueID)
	log.Debug("load state", "state", StateHeaderValidated.String(), "sections", len(c.Sections))

	if res, ok := d.duplicate(hdr); ok {
		log.Info("container already committed")
		return res, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.clear()
	d.state = StateHeaderValidated
	d.lastErr = nil

	st := &staged{reached: StateHeaderValidated}
	if err := d.build(context.WithoutCancel(ctx), c, flags, st, log); err != nil {
		d.state = StateRejected
		d.lastErr = err
		log.Warn("container rejected", "state", st.reached.String(), "err", err)
		res := st.result(StateRejected, hdr)
		res.FailedAt = st.reached
		return res, err
	}

	d.committed = true
	d.uniqueID = hdr.UniqueID
	d.uuid = hdr.UUID
	d.imageLoaded = st.imageLoaded
	d.ipLayout = st.ipLayout
	d.debugLayout = st.debugLayout
	d.conn = st.conn
	d.memTopo = st.memTopo
	d.apertures = st.apertures
	d.state = StateCommitted

	d.mmMu.Lock()
	d.banks = buildBanks(st.memTopo, d.opts.HostMemBase, d.opts.HostMemSize)
	d.mmMu.Unlock()

	log.Info("container committed",
		"uuid", hdr.UUID.String(),
		"apertures", st.apertures.Len(),
		"image_loaded", st.imageLoaded,
	)
	return st.result(StateCommitted, hdr), nil
}

func (d *Device) duplicate(hdr axlf.Header) (*LoadResult, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.committed || d.uniqueID != hdr.UniqueID {
		return nil, false
	}
	st := staged{
		imageLoaded: d.imageLoaded,
		ipLayout:    d.ipLayout,
		debugLayout: d.debugLayout,
		conn:        d.conn,
		memTopo:     d.memTopo,
		apertures:   d.apertures,
	}
	res := st.result(StateCommitted, axlf.Header{UniqueID: d.uniqueID, UUID: d.uuid})
	res.Duplicate = true
	return res, true
}

// build runs the image, table and aperture steps into st. Callers hold mu
// for writing.
func (d *Device) build(ctx context.Context, c *axlf.Container, flags LoadFlags, st *staged, log logger.Logger) error {
	if d.opts.PartialReconfig && !c.Header.Mode.PartialReconfig() {
		return fmt.Errorf("%w: device is partial reconfiguration, container mode %s", ErrModeMismatch, c.Header.Mode)
	}

	if flags&LoadImage != 0 {
		img, kind, err := d.extractImage(c)
		if err != nil {
			return err
		}
		if d.opts.Loader == nil {
			return fmt.Errorf("%w: no image loader configured", ErrImageLoadFailed)
		}
		log.Debug("loading image", "section", kind.String(), "bytes", len(img))
		if err := d.opts.Loader.LoadImage(ctx, img); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrImageLoadFailed, kind, err)
		}
		st.imageKind = kind
		st.imageLoaded = true
		st.reached = StateImageLoaded
		log.Debug("load state", "state", StateImageLoaded.String())
	}

	limit := d.opts.MaxSectionBytes
	var err error
	if st.ipLayout, err = extractTable(c, axlf.SectionIPLayout, limit, axlf.ParseIPLayout); err != nil {
		return err
	}
	if st.debugLayout, err = extractTable(c, axlf.SectionDebugIPLayout, limit, axlf.ParseDebugIPLayout); err != nil {
		return err
	}
	if st.conn, err = extractTable(c, axlf.SectionConnectivity, limit, axlf.ParseConnectivity); err != nil {
		return err
	}
	if st.memTopo, err = extractTable(c, axlf.SectionMemTopology, limit, axlf.ParseMemTopology); err != nil {
		return err
	}
	st.reached = StateTablesPopulated
	log.Debug("load state", "state", StateTablesPopulated.String(),
		"ip_layout", st.ipLayout.Len(),
		"debug_ip_layout", st.debugLayout.Len(),
		"connectivity", st.conn.Len(),
		"mem_topology", st.memTopo.Len(),
	)

	if st.apertures, err = aperture.Build(st.ipLayout, st.debugLayout); err != nil {
		return err
	}
	st.reached = StateAperturesBuilt
	log.Debug("load state", "state", StateAperturesBuilt.String(), "apertures", st.apertures.Len())
	return nil
}

// extractImage copies the first image section present. BITSTREAM payloads
// carry the legacy .bit header, which is stripped, and are word swapped.
func (d *Device) extractImage(c *axlf.Container) ([]byte, axlf.SectionKind, error) {
	for _, kind := range imageKinds {
		if !c.Has(kind) {
			continue
		}
		img, err := c.CopySection(kind, d.opts.MaxSectionBytes)
		if err != nil {
			return nil, kind, err
		}
		if kind != axlf.SectionBitstream {
			return img, kind, nil
		}
		_, payload, err := bitstream.Parse(img)
		if err != nil {
			return nil, kind, err
		}
		return bitstream.SwapWords(payload), kind, nil
	}
	return nil, 0, fmt.Errorf("%w: no %s, %s or %s section", axlf.ErrSectionNotFound,
		imageKinds[0], imageKinds[1], imageKinds[2])
}

// extractTable copies and decodes an optional table section. An absent
// section yields a nil table.
func extractTable[T any](c *axlf.Container, kind axlf.SectionKind, limit uint64, parse func([]byte) (*T, error)) (*T, error) {
	var buf []byte
	if _, err := c.Extract(kind, &buf, limit); err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, nil
	}
	return parse(buf)
}

func (st *staged) result(state State, hdr axlf.Header) *LoadResult {
	res := &LoadResult{
		State:              state,
		UniqueID:           hdr.UniqueID,
		UUID:               hdr.UUID,
		ImageLoaded:        st.imageLoaded,
		IPLayoutCount:      st.ipLayout.Len(),
		DebugIPLayoutCount: st.debugLayout.Len(),
		ConnectivityCount:  st.conn.Len(),
		MemTopologyCount:   st.memTopo.Len(),
		ApertureCount:      st.apertures.Len(),
	}
	if st.imageLoaded {
		res.ImageKind = st.imageKind.String()
	}
	return res
}

// LoadBitstream programs a raw .bit file: it validates the legacy header
// and payload, swaps the payload words and hands them to the image loader.
// It shares the admission guard with Load and leaves the committed tables
// untouched.
func (d *Device) LoadBitstream(ctx context.Context, data []byte) (*bitstream.Header, error) {
	if err := d.admit.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.admit.Release(1)

	h, payload, err := bitstream.Parse(data)
	if err != nil {
		d.log.Warn("bitstream rejected", "err", err)
		return nil, err
	}
	if d.opts.Loader == nil {
		return nil, fmt.Errorf("%w: no image loader configured", ErrImageLoadFailed)
	}
	log := d.log.With("design", h.DesignName, "part", h.PartName)
	log.Debug("loading bitstream", "bytes", len(payload))
	if err := d.opts.Loader.LoadImage(context.WithoutCancel(ctx), bitstream.SwapWords(payload)); err != nil {
		log.Warn("bitstream load failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrImageLoadFailed, err)
	}
	log.Info("bitstream loaded")
	return h, nil
}
