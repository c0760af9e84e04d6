package fpgamgr

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fakeSysfs(t *testing.T, state string) (fw, sys string) {
	t.Helper()
	root := t.TempDir()
	fw = filepath.Join(root, "firmware")
	sys = filepath.Join(root, "sys")
	mgr := filepath.Join(sys, "fpga0")
	for _, dir := range []string{fw, mgr} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	for name, content := range map[string]string{"flags": "0\n", "firmware": "", "state": state + "\n"} {
		if err := os.WriteFile(filepath.Join(mgr, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return fw, sys
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestManagerLoadImage(t *testing.T) {
	t.Parallel()

	fw, sys := fakeSysfs(t, "operating")
	m := New(Config{FirmwareDir: fw, SysfsDir: sys, Partial: true})
	image := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := m.LoadImage(context.Background(), image); err != nil {
		t.Fatalf("load image: %v", err)
	}

	if got := readFile(t, filepath.Join(sys, "fpga0", "flags")); got != "1" {
		t.Fatalf("flags = %q, want 1", got)
	}
	name := readFile(t, filepath.Join(sys, "fpga0", "firmware"))
	if !strings.HasPrefix(name, "xload-") || !strings.HasSuffix(name, ".bin") {
		t.Fatalf("firmware name %q", name)
	}
	if got := readFile(t, filepath.Join(fw, name)); !bytes.Equal([]byte(got), image) {
		t.Fatalf("staged image %x", got)
	}

	entries, err := os.ReadDir(fw)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %d entries", len(entries))
	}
}

func TestManagerNotOperating(t *testing.T) {
	t.Parallel()

	fw, sys := fakeSysfs(t, "write error")
	m := New(Config{FirmwareDir: fw, SysfsDir: sys})
	err := m.LoadImage(context.Background(), []byte{1, 2, 3, 4})
	if !errors.Is(err, ErrNotOperating) {
		t.Fatalf("expected ErrNotOperating, got %v", err)
	}
	if got := readFile(t, filepath.Join(sys, "fpga0", "flags")); got != "0" {
		t.Fatalf("flags = %q, want 0", got)
	}
}

func TestManagerMissingManager(t *testing.T) {
	t.Parallel()

	fw, sys := fakeSysfs(t, "operating")
	m := New(Config{FirmwareDir: fw, SysfsDir: sys, Manager: "fpga7"})
	if err := m.LoadImage(context.Background(), []byte{1}); err == nil {
		t.Fatalf("expected an error for a missing manager")
	}
	if _, err := m.State(); err == nil {
		t.Fatalf("expected state read error")
	}
}

func TestManagerCancelledContext(t *testing.T) {
	t.Parallel()

	fw, sys := fakeSysfs(t, "operating")
	m := New(Config{FirmwareDir: fw, SysfsDir: sys})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.LoadImage(ctx, []byte{1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if name := readFile(t, filepath.Join(sys, "fpga0", "firmware")); name != "" {
		t.Fatalf("firmware written despite cancellation: %q", name)
	}
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	var r Recorder
	if err := r.LoadImage(context.Background(), []byte("abc")); err != nil {
		t.Fatalf("load: %v", err)
	}
	recs := r.Records()
	if len(recs) != 1 || recs[0].Size != 3 {
		t.Fatalf("records %+v", recs)
	}
	if recs[0].SHA256 != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("digest %s", recs[0].SHA256)
	}

	r.Err = errors.New("boom")
	if err := r.LoadImage(context.Background(), nil); err == nil {
		t.Fatalf("expected configured error")
	}
	if len(r.Records()) != 1 {
		t.Fatalf("failed load should not be recorded")
	}
}
