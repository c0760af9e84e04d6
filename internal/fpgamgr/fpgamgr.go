// Package fpgamgr programs configuration images through the Linux
// fpga_manager sysfs interface.
package fpgamgr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samcharles93/xload/internal/logger"
)

const (
	DefaultFirmwareDir = "/lib/firmware"
	DefaultSysfsDir    = "/sys/class/fpga_manager"
	DefaultManager     = "fpga0"

	stateOperating = "operating"
)

var ErrNotOperating = errors.New("fpgamgr: fpga manager not operating")

type Config struct {
	FirmwareDir string
	SysfsDir    string
	Manager     string
	// Partial requests partial reconfiguration of the fabric.
	Partial bool
	Logger  logger.Logger
}

// Manager is a device.ImageLoader backed by one fpga_manager instance. The
// kernel loads images by name from the firmware directory, so every image
// is staged there first.
type Manager struct {
	cfg Config
	log logger.Logger
	mu  sync.Mutex
}

func New(cfg Config) *Manager {
	if cfg.FirmwareDir == "" {
		cfg.FirmwareDir = DefaultFirmwareDir
	}
	if cfg.SysfsDir == "" {
		cfg.SysfsDir = DefaultSysfsDir
	}
	if cfg.Manager == "" {
		cfg.Manager = DefaultManager
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{cfg: cfg, log: log.With("manager", cfg.Manager)}
}

func (m *Manager) path(attr string) string {
	return filepath.Join(m.cfg.SysfsDir, m.cfg.Manager, attr)
}

// LoadImage stages image in the firmware directory and asks the manager to
// program it. The manager must report "operating" afterwards.
func (m *Manager) LoadImage(ctx context.Context, image []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := sha256.Sum256(image)
	name := "xload-" + hex.EncodeToString(sum[:6]) + ".bin"
	if err := writeAtomic(filepath.Join(m.cfg.FirmwareDir, name), image); err != nil {
		return fmt.Errorf("stage firmware: %w", err)
	}

	flags := "0"
	if m.cfg.Partial {
		flags = "1"
	}
	if err := writeAttr(m.path("flags"), flags); err != nil {
		return err
	}
	m.log.Debug("programming image", "firmware", name, "bytes", len(image), "partial", m.cfg.Partial)
	if err := writeAttr(m.path("firmware"), name); err != nil {
		return err
	}

	state, err := m.State()
	if err != nil {
		return err
	}
	if state != stateOperating {
		return fmt.Errorf("%w: state %q", ErrNotOperating, state)
	}
	m.log.Info("image programmed", "firmware", name)
	return nil
}

// State reads the manager state attribute.
func (m *Manager) State() (string, error) {
	data, err := os.ReadFile(m.path("state"))
	if err != nil {
		return "", fmt.Errorf("read fpga manager state: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func writeAttr(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.WriteString(value); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".xload-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Record is one image handed to a Recorder.
type Record struct {
	Size   int    `json:"size"`
	SHA256 string `json:"sha256"`
}

// Recorder is a dry-run image loader that only remembers what it was given.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	// Err, when set, is returned from every load.
	Err error
}

func (r *Recorder) LoadImage(ctx context.Context, image []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	sum := sha256.Sum256(image)
	r.records = append(r.records, Record{Size: len(image), SHA256: hex.EncodeToString(sum[:])})
	return nil
}

// Records returns the images loaded so far, oldest first.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}
