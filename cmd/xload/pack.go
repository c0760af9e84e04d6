package main

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/xload/pkg/axlf"
)

type packSection struct {
	kind axlf.SectionKind
	name string
	path string
}

// parseSectionArg parses KIND=path or KIND:name=path.
func parseSectionArg(arg string) (packSection, error) {
	lhs, path, ok := strings.Cut(arg, "=")
	if !ok || path == "" {
		return packSection{}, fmt.Errorf("section %q: expected KIND=path", arg)
	}
	kindName, name, _ := strings.Cut(lhs, ":")
	kind, ok := axlf.ParseSectionKind(kindName)
	if !ok {
		return packSection{}, fmt.Errorf("section %q: unknown kind %q", arg, kindName)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return packSection{kind: kind, name: name, path: path}, nil
}

func packCmd() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "Build an xclbin from section payload files",
		ArgsUsage: "KIND[:name]=path...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"out", "o"},
				Usage:    "output .xclbin path",
				Required: true,
			},
			&cli.StringFlag{Name: "platform", Usage: "platform VBNV string"},
			&cli.StringFlag{Name: "mode", Usage: "build mode (FLAT, PR, HW_EMU, ...)", Value: "FLAT"},
			&cli.StringFlag{Name: "uuid", Usage: "container uuid (default derived from the payloads)"},
			&cli.StringFlag{Name: "unique-id", Usage: "content identifier (default derived from the payloads)"},
			&cli.BoolFlag{Name: "legacy", Usage: "write a single-section xclbin0 container"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) == 0 {
				return fmt.Errorf("pack: at least one section is required")
			}
			mode, ok := axlf.ParseMode(cmd.String("mode"))
			if !ok {
				return fmt.Errorf("pack: unknown mode %q", cmd.String("mode"))
			}

			digest := sha256.New()
			type loaded struct {
				packSection
				data []byte
			}
			sections := make([]loaded, 0, len(args))
			for _, arg := range args {
				ps, err := parseSectionArg(arg)
				if err != nil {
					return err
				}
				data, err := os.ReadFile(ps.path)
				if err != nil {
					return err
				}
				_, _ = digest.Write(data)
				sections = append(sections, loaded{packSection: ps, data: data})
			}
			sum := digest.Sum(nil)

			h := axlf.Header{
				SignatureLength: -1,
				UniqueID:        binary.LittleEndian.Uint64(sum[:8]),
				TimeStamp:       uint64(time.Now().Unix()),
				Mode:            mode,
				PlatformVBNV:    cmd.String("platform"),
				UUID:            uuid.NewSHA1(uuid.NameSpaceOID, sum),
				VersionMajor:    2,
			}
			if v := cmd.String("uuid"); v != "" {
				id, err := uuid.Parse(v)
				if err != nil {
					return fmt.Errorf("pack: --uuid: %w", err)
				}
				h.UUID = id
			}
			if v := cmd.String("unique-id"); v != "" {
				id, err := parseUint("unique-id", v)
				if err != nil {
					return err
				}
				h.UniqueID = id
			}

			w := axlf.NewWriter(h)
			w.Legacy = cmd.Bool("legacy")
			for _, s := range sections {
				if err := w.AddSection(s.kind, s.name, s.data); err != nil {
					return err
				}
			}
			out, err := os.Create(cmd.String("output"))
			if err != nil {
				return err
			}
			n, err := w.WriteTo(out)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "wrote %s (%d bytes, %d sections, unique id %#016x)\n",
				cmd.String("output"), n, len(sections), h.UniqueID)
			return nil
		},
	}
}
