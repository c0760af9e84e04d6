package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/xload/pkg/bitstream"
)

func bitCmd() *cli.Command {
	var (
		out    string
		noSwap bool
	)

	return &cli.Command{
		Name:      "bit",
		Usage:     "Decode the header of a legacy .bit file",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "write the raw configuration image to this path",
				Destination: &out,
			},
			&cli.BoolFlag{
				Name:        "no-swap",
				Usage:       "keep the image words in file order",
				Destination: &noSwap,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("bit: FILE is required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			h, payload, err := bitstream.Parse(data)
			if err != nil {
				return fmt.Errorf("bit %s: %w", path, err)
			}

			fmt.Fprintf(stdout, "design:     %s\n", h.DesignName)
			fmt.Fprintf(stdout, "part:       %s\n", h.PartName)
			fmt.Fprintf(stdout, "date:       %s %s\n", h.Date, h.Time)
			fmt.Fprintf(stdout, "header:     %d bytes\n", h.Length)
			fmt.Fprintf(stdout, "bitstream:  %d bytes\n", h.BitstreamLength)

			if out == "" {
				return nil
			}
			img := payload
			if !noSwap {
				img = bitstream.SwapWords(payload)
			}
			return os.WriteFile(out, img, 0o644)
		},
	}
}
