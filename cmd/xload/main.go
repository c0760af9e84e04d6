package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/xload/internal/logger"
)

// stdout is a small seam for tests.
var stdout io.Writer = os.Stdout

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "xload",
		Usage: "Inspect xclbin containers and load them onto FPGA devices",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to config.yaml (default $XDG_CONFIG_HOME/xload/config.yaml)",
				Destination: &configFile,
			},
		}, loggingFlags()...),
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			inspectCmd(),
			bitCmd(),
			loadCmd(),
			packCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}

// setup reads the config file and attaches the logger to the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := configFile
	if path == "" {
		path = configPath()
	}
	c, err := LoadConfig(path)
	if err != nil {
		return ctx, err
	}
	cfg = c
	applyLoggingConfig(cmd, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	log := logger.Setup(os.Stderr, level, logFormat)
	return logger.WithContext(ctx, log), nil
}
