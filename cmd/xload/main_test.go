package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/xload/pkg/axlf"
	"github.com/samcharles93/xload/pkg/bitstream"
)

// run executes the CLI with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	defer func() { stdout = prev }()

	// An empty config file keeps the user's own config out of the test.
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, nil, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	full := append([]string{"xload", "--config", cfgPath, "--log-level", "error"}, args...)
	err := newApp().Run(context.Background(), full)
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func sectionFiles(t *testing.T) (dir string, args []string) {
	t.Helper()
	dir = t.TempDir()
	ip, err := (&axlf.IPLayout{Entries: []axlf.IPData{
		{Type: axlf.IPKernel, BaseAddress: 0xA0000000, Name: "vadd:vadd_1"},
		{Type: axlf.IPKernel, BaseAddress: 0xA0010000, Name: "vadd:vadd_2"},
	}}).MarshalBinary()
	if err != nil {
		t.Fatalf("marshal ip layout: %v", err)
	}
	mem, err := (&axlf.MemTopology{Banks: []axlf.MemData{
		{Type: axlf.MemDDR4, Used: true, SizeKB: 1024, BaseAddress: 0x800000000, Tag: "bank0"},
	}}).MarshalBinary()
	if err != nil {
		t.Fatalf("marshal mem topology: %v", err)
	}
	return dir, []string{
		"PDI:image=" + writeFile(t, dir, "image.pdi", []byte{1, 2, 3, 4, 5, 6, 7, 8}),
		"ip_layout=" + writeFile(t, dir, "ip.bin", ip),
		"MEM_TOPOLOGY=" + writeFile(t, dir, "mem.bin", mem),
	}
}

func TestParseSectionArg(t *testing.T) {
	tests := []struct {
		arg     string
		kind    axlf.SectionKind
		name    string
		wantErr bool
	}{
		{arg: "BITSTREAM=/tmp/top.bit", kind: axlf.SectionBitstream, name: "top"},
		{arg: "pdi:boot=/tmp/a.pdi", kind: axlf.SectionPDI, name: "boot"},
		{arg: "8=/tmp/ip.bin", kind: axlf.SectionIPLayout, name: "ip"},
		{arg: "BITSTREAM", wantErr: true},
		{arg: "NOPE=/tmp/x", wantErr: true},
		{arg: "PDI=", wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseSectionArg(tc.arg)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.arg)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.arg, err)
		}
		if got.kind != tc.kind || got.name != tc.name {
			t.Fatalf("%q: got kind %s name %q", tc.arg, got.kind, got.name)
		}
	}
}

func TestPackInspectRoundTrip(t *testing.T) {
	dir, sections := sectionFiles(t)
	out := filepath.Join(dir, "vadd.xclbin")

	args := append([]string{"pack", "--out", out, "--platform", "xilinx_zcu102_base_202010_1", "--unique-id", "0x1234"}, sections...)
	msg, err := run(t, args...)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if !strings.Contains(msg, "3 sections") {
		t.Fatalf("pack output %q", msg)
	}

	js, err := run(t, "inspect", "--json", out)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var r struct {
		UniqueID     uint64 `json:"unique_id"`
		PlatformVBNV string `json:"platform_vbnv"`
		Sections     []struct {
			Kind string `json:"kind"`
			Name string `json:"name"`
		} `json:"sections"`
		Apertures []struct {
			Addr uint64 `json:"addr"`
		} `json:"apertures"`
		Problems []string `json:"problems"`
	}
	if err := json.Unmarshal([]byte(js), &r); err != nil {
		t.Fatalf("decode inspect output: %v\n%s", err, js)
	}
	if r.UniqueID != 0x1234 || r.PlatformVBNV != "xilinx_zcu102_base_202010_1" {
		t.Fatalf("header fields: %+v", r)
	}
	if len(r.Sections) != 3 || r.Sections[0].Kind != "PDI" || r.Sections[0].Name != "image" {
		t.Fatalf("sections: %+v", r.Sections)
	}
	if len(r.Apertures) != 2 || r.Apertures[1].Addr != 0xA0010000 || len(r.Problems) != 0 {
		t.Fatalf("apertures %+v problems %v", r.Apertures, r.Problems)
	}

	text, err := run(t, "inspect", out)
	if err != nil {
		t.Fatalf("inspect text: %v", err)
	}
	for _, want := range []string{"MEM_TOPOLOGY", "vadd:vadd_2", "apertures (2)"} {
		if !strings.Contains(text, want) {
			t.Fatalf("inspect text missing %q:\n%s", want, text)
		}
	}
}

func TestLoadDryRun(t *testing.T) {
	dir, sections := sectionFiles(t)
	out := filepath.Join(dir, "vadd.xclbin")
	if _, err := run(t, append([]string{"pack", "--out", out}, sections...)...); err != nil {
		t.Fatalf("pack: %v", err)
	}

	msg, err := run(t, "load", "--dry-run", "--banks", out)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, want := range []string{"state:      committed", "image:      PDI", "apertures:  2", "dry run: image 8 bytes", "bank 0 bank0"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("load output missing %q:\n%s", want, msg)
		}
	}

	// A partial reconfiguration device refuses a flat container.
	if _, err := run(t, "load", "--dry-run", "--partial", out); err == nil {
		t.Fatalf("expected mode mismatch")
	}
}

func TestBitCommand(t *testing.T) {
	dir := t.TempDir()
	hdr, err := bitstream.Encode(bitstream.Header{
		DesignName:      "top;UserID=0XFFFFFFFF",
		PartName:        "xc7z020clg400-1",
		Date:            "2021/01/01",
		Time:            "12:00:00",
		BitstreamLength: 4,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	in := writeFile(t, dir, "top.bit", append(hdr, 0xaa, 0xbb, 0xcc, 0xdd))
	raw := filepath.Join(dir, "top.bin")

	msg, err := run(t, "bit", "--out", raw, in)
	if err != nil {
		t.Fatalf("bit: %v", err)
	}
	if !strings.Contains(msg, "xc7z020clg400-1") {
		t.Fatalf("bit output %q", msg)
	}
	got, err := os.ReadFile(raw)
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if !bytes.Equal(got, []byte{0xdd, 0xcc, 0xbb, 0xaa}) {
		t.Fatalf("raw image %x", got)
	}

	msg, err = run(t, "load", "--dry-run", "--bit", in)
	if err != nil {
		t.Fatalf("load --bit: %v", err)
	}
	if !strings.Contains(msg, "dry run: image 4 bytes") {
		t.Fatalf("load --bit output %q", msg)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	missing, err := LoadConfig(filepath.Join(dir, "absent.yaml"))
	if err != nil || missing.FirmwareDir != "" {
		t.Fatalf("missing config: %+v %v", missing, err)
	}

	p := writeFile(t, dir, "config.yaml", []byte(strings.Join([]string{
		"firmware_dir: /srv/firmware",
		"manager: fpga1",
		"partial: true",
		"host_mem_base: 0x0",
		"host_mem_size: 0x80000000",
		"log_level: debug",
		"server_address: 0.0.0.0:9000",
	}, "\n")))
	c, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.FirmwareDir != "/srv/firmware" || c.Manager != "fpga1" || c.Partial == nil || !*c.Partial {
		t.Fatalf("config %+v", c)
	}
	if c.HostMemSize == nil || *c.HostMemSize != 0x80000000 || c.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("config %+v", c)
	}

	bad := writeFile(t, dir, "bad.yaml", []byte("manager: [unterminated"))
	if _, err := LoadConfig(bad); err == nil {
		t.Fatalf("expected parse error")
	}
}
