package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/xload/internal/device"
	"github.com/samcharles93/xload/internal/fpgamgr"
	"github.com/samcharles93/xload/internal/logger"
)

func loadCmd() *cli.Command {
	var (
		noImage   bool
		rawBit    bool
		asJSON    bool
		showBanks bool
	)

	return &cli.Command{
		Name:      "load",
		Usage:     "Load an xclbin (or a raw .bit with --bit) onto the device",
		ArgsUsage: "FILE",
		Flags: append(deviceFlags(),
			&cli.BoolFlag{Name: "no-image", Usage: "only read the tables, do not program the image", Destination: &noImage},
			&cli.BoolFlag{Name: "bit", Usage: "FILE is a raw .bit file", Destination: &rawBit},
			&cli.BoolFlag{Name: "json", Usage: "print the result as JSON", Destination: &asJSON},
			&cli.BoolFlag{Name: "banks", Usage: "list memory banks after loading", Destination: &showBanks},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyDeviceConfig(cmd, cfg)

			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("load: FILE is required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			dev, loader, err := newDevice(log)
			if err != nil {
				return err
			}

			if rawBit {
				h, err := dev.LoadBitstream(ctx, data)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "loaded %s (%s, %d bytes)\n", h.DesignName, h.PartName, h.BitstreamLength)
				return reportDryRun(loader)
			}

			flags := device.LoadImage
			if noImage {
				flags = 0
			}
			res, err := dev.Load(ctx, data, flags)
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			if asJSON {
				b, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, string(b))
			} else {
				fmt.Fprintf(stdout, "state:      %s\n", res.State)
				fmt.Fprintf(stdout, "unique id:  %#016x\n", res.UniqueID)
				fmt.Fprintf(stdout, "uuid:       %s\n", res.UUID)
				if res.ImageLoaded {
					fmt.Fprintf(stdout, "image:      %s\n", res.ImageKind)
				}
				fmt.Fprintf(stdout, "apertures:  %d\n", res.ApertureCount)
				fmt.Fprintf(stdout, "banks:      %d\n", res.MemTopologyCount)
			}
			if showBanks {
				for _, b := range dev.Banks() {
					fmt.Fprintf(stdout, "bank %d %-10s %-9s base=%#x size=%d used=%t\n", b.Index, b.Tag, b.Type, b.Base, b.Size, b.InUse)
				}
			}
			return reportDryRun(loader)
		},
	}
}

func reportDryRun(loader device.ImageLoader) error {
	rec, ok := loader.(*fpgamgr.Recorder)
	if !ok {
		return nil
	}
	for _, r := range rec.Records() {
		fmt.Fprintf(stdout, "dry run: image %d bytes sha256=%s\n", r.Size, r.SHA256)
	}
	return nil
}
