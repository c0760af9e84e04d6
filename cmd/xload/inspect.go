package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/xload/internal/aperture"
	"github.com/samcharles93/xload/pkg/axlf"
)

type sectionReport struct {
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`
	Error  string `json:"error,omitempty"`
}

type apertureReport struct {
	Index  int    `json:"index"`
	Addr   uint64 `json:"addr"`
	Size   uint64 `json:"size"`
	Source string `json:"source"`
}

type inspectReport struct {
	File          string              `json:"file"`
	Generation    string              `json:"generation"`
	UniqueID      uint64              `json:"unique_id"`
	UUID          uuid.UUID           `json:"uuid"`
	ROMUUID       uuid.UUID           `json:"rom_uuid"`
	PlatformVBNV  string              `json:"platform_vbnv"`
	Mode          string              `json:"mode"`
	Version       string              `json:"version"`
	Length        uint64              `json:"length"`
	TimeStamp     uint64              `json:"timestamp"`
	Signed        bool                `json:"signed"`
	Sections      []sectionReport     `json:"sections"`
	IPLayout      *axlf.IPLayout      `json:"ip_layout,omitempty"`
	DebugIPLayout *axlf.DebugIPLayout `json:"debug_ip_layout,omitempty"`
	Connectivity  *axlf.Connectivity  `json:"connectivity,omitempty"`
	MemTopology   *axlf.MemTopology   `json:"mem_topology,omitempty"`
	Apertures     []apertureReport    `json:"apertures,omitempty"`
	Problems      []string            `json:"problems,omitempty"`
}

func inspectCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show the header, sections, tables and apertures of an xclbin",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the report as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("inspect: FILE is required")
			}
			c, err := axlf.Open(path)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", path, err)
			}
			defer func() { _ = c.Close() }()

			r := buildReport(path, c)
			if asJSON {
				b, err := json.MarshalIndent(r, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(stdout, string(b))
				return err
			}
			return printReport(stdout, r)
		},
	}
}

func buildReport(path string, c *axlf.Container) *inspectReport {
	h := c.Header
	r := &inspectReport{
		File:         path,
		Generation:   h.Generation.String(),
		UniqueID:     h.UniqueID,
		UUID:         h.UUID,
		ROMUUID:      h.ROMUUID,
		PlatformVBNV: h.PlatformVBNV,
		Mode:         h.Mode.String(),
		Version:      fmt.Sprintf("%d.%d.%d", h.VersionMajor, h.VersionMinor, h.VersionPatch),
		Length:       h.Length,
		TimeStamp:    h.TimeStamp,
		Signed:       h.Signed(),
	}

	for i, s := range c.Sections {
		sr := sectionReport{Index: i, Kind: s.Kind.String(), Name: s.Name, Offset: s.Offset, Size: s.Size}
		if end, ok := s.End(); !ok || end > h.Length {
			sr.Error = axlf.ErrSectionOutOfBounds.Error()
		}
		r.Sections = append(r.Sections, sr)
	}

	var err error
	if r.IPLayout, err = inspectTable(c, axlf.SectionIPLayout, axlf.ParseIPLayout); err != nil {
		r.Problems = append(r.Problems, err.Error())
	}
	if r.DebugIPLayout, err = inspectTable(c, axlf.SectionDebugIPLayout, axlf.ParseDebugIPLayout); err != nil {
		r.Problems = append(r.Problems, err.Error())
	}
	if r.Connectivity, err = inspectTable(c, axlf.SectionConnectivity, axlf.ParseConnectivity); err != nil {
		r.Problems = append(r.Problems, err.Error())
	}
	if r.MemTopology, err = inspectTable(c, axlf.SectionMemTopology, axlf.ParseMemTopology); err != nil {
		r.Problems = append(r.Problems, err.Error())
	}

	tbl, err := aperture.Build(r.IPLayout, r.DebugIPLayout)
	switch {
	case errors.Is(err, aperture.ErrNoApertures):
		r.Problems = append(r.Problems, err.Error())
	case err == nil:
		for i, e := range tbl.Entries() {
			r.Apertures = append(r.Apertures, apertureReport{Index: i, Addr: e.Addr, Size: e.Size, Source: e.Source.String()})
		}
	}
	return r
}

// inspectTable decodes a table section in place. The container stays open
// for the whole report, so reference mode is enough.
func inspectTable[T any](c *axlf.Container, kind axlf.SectionKind, parse func([]byte) (*T, error)) (*T, error) {
	if !c.Has(kind) {
		return nil, nil
	}
	b, err := c.SectionData(kind)
	if err != nil {
		return nil, err
	}
	return parse(b)
}

func printReport(w io.Writer, r *inspectReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "file:\t%s\n", r.File)
	fmt.Fprintf(tw, "format:\t%s\n", r.Generation)
	fmt.Fprintf(tw, "unique id:\t%#016x\n", r.UniqueID)
	fmt.Fprintf(tw, "uuid:\t%s\n", r.UUID)
	fmt.Fprintf(tw, "platform:\t%s\n", r.PlatformVBNV)
	fmt.Fprintf(tw, "mode:\t%s\n", r.Mode)
	fmt.Fprintf(tw, "version:\t%s\n", r.Version)
	fmt.Fprintf(tw, "length:\t%d\n", r.Length)
	fmt.Fprintf(tw, "signed:\t%t\n", r.Signed)

	fmt.Fprintf(tw, "\nsections (%d)\n", len(r.Sections))
	fmt.Fprintln(tw, "#\tKIND\tNAME\tOFFSET\tSIZE\t")
	for _, s := range r.Sections {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%#x\t%d\t%s\n", s.Index, s.Kind, s.Name, s.Offset, s.Size, s.Error)
	}

	if r.IPLayout != nil {
		fmt.Fprintf(tw, "\nip layout (%d)\n", r.IPLayout.Len())
		for i, ip := range r.IPLayout.Entries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%#x\t\n", i, ip.Type, ip.Name, ip.BaseAddress)
		}
	}
	if r.DebugIPLayout != nil {
		fmt.Fprintf(tw, "\ndebug ip layout (%d)\n", r.DebugIPLayout.Len())
		for i, d := range r.DebugIPLayout.Entries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%#x\t\n", i, d.Type, d.Name, d.BaseAddress)
		}
	}
	if r.Connectivity != nil {
		fmt.Fprintf(tw, "\nconnectivity (%d)\n", r.Connectivity.Len())
		for i, cn := range r.Connectivity.Connections {
			fmt.Fprintf(tw, "%d\targ %d\tip %d\tmem %d\t\n", i, cn.ArgIndex, cn.IPLayoutIndex, cn.MemDataIndex)
		}
	}
	if r.MemTopology != nil {
		fmt.Fprintf(tw, "\nmem topology (%d)\n", r.MemTopology.Len())
		for i, m := range r.MemTopology.Banks {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%#x\t%d KiB\tused=%t\n", i, m.Type, m.Tag, m.BaseAddress, m.SizeKB, m.Used)
		}
	}
	if len(r.Apertures) > 0 {
		fmt.Fprintf(tw, "\napertures (%d)\n", len(r.Apertures))
		for _, a := range r.Apertures {
			fmt.Fprintf(tw, "%d\t%#x\t%#x\t%s\t\n", a.Index, a.Addr, a.Size, a.Source)
		}
	}
	for _, p := range r.Problems {
		fmt.Fprintf(tw, "problem:\t%s\n", p)
	}
	return tw.Flush()
}
