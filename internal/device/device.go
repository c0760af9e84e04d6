// Package device holds the committed configuration of one FPGA device and
// the load sequence that replaces it from an xclbin container.
//
// Two independent locks guard a device. The admission guard lets one load
// sequence run at a time; a second load blocks until the first returns. The
// state lock guards the committed tables and apertures: a load holds it
// exclusively for its whole duration, lookups hold it shared and see either
// the old or the new configuration, never a mix. Memory-bank accounting has
// a third mutex. Acquisition order is admission, state, banks.
package device

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/samcharles93/xload/internal/aperture"
	"github.com/samcharles93/xload/internal/logger"
	"github.com/samcharles93/xload/pkg/axlf"
)

var (
	ErrImageLoadFailed = errors.New("device: image load failed")
	ErrModeMismatch    = errors.New("device: container mode does not match device")
	ErrInvalidBank     = errors.New("device: invalid memory bank")
	ErrBankFull        = errors.New("device: memory bank exhausted")
)

// ImageLoader programs a configuration image into the device fabric. The
// call may block for as long as the hardware takes to reconfigure.
type ImageLoader interface {
	LoadImage(ctx context.Context, image []byte) error
}

// LoadFlags select optional steps of a load.
type LoadFlags uint32

const (
	// LoadImage programs the container image before the tables are read.
	LoadImage LoadFlags = 1 << iota
)

type Options struct {
	// Loader receives images. It is required for LoadImage and LoadBitstream.
	Loader ImageLoader
	Logger logger.Logger

	// PartialReconfig marks a device that only accepts PR containers.
	PartialReconfig bool

	// HostMemBase and HostMemSize describe the host memory window. Banks
	// inside it are accounted as CMA.
	HostMemBase uint64
	HostMemSize uint64

	// MaxSectionBytes caps every copied section. Zero means no cap.
	MaxSectionBytes uint64
}

// Device is the state of one device. The zero value is not usable; call New.
type Device struct {
	opts  Options
	log   logger.Logger
	admit *semaphore.Weighted

	mu          sync.RWMutex
	state       State
	lastErr     error
	committed   bool
	uniqueID    uint64
	uuid        uuid.UUID
	imageLoaded bool
	ipLayout    *axlf.IPLayout
	debugLayout *axlf.DebugIPLayout
	conn        *axlf.Connectivity
	memTopo     *axlf.MemTopology
	apertures   *aperture.Table

	mmMu  sync.Mutex
	banks []Bank
}

// New returns an empty device in the Idle state.
func New(opts Options) *Device {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Device{
		opts:  opts,
		log:   log,
		admit: semaphore.NewWeighted(1),
		state: StateIdle,
	}
}

// State returns the position reached by the most recent load.
func (d *Device) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// LastError returns the error of the most recent rejected load, or nil when
// the most recent load committed.
func (d *Device) LastError() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastErr
}

// UniqueID returns the content identifier of the committed container.
func (d *Device) UniqueID() (uint64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.uniqueID, d.committed
}

// clear drops every committed table. Callers hold mu for writing.
func (d *Device) clear() {
	d.committed = false
	d.uniqueID = 0
	d.uuid = uuid.Nil
	d.imageLoaded = false
	d.ipLayout = nil
	d.debugLayout = nil
	d.conn = nil
	d.memTopo = nil
	d.apertures = nil

	d.mmMu.Lock()
	d.banks = nil
	d.mmMu.Unlock()
}
