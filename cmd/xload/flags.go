package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/xload/internal/device"
	"github.com/samcharles93/xload/internal/fpgamgr"
	"github.com/samcharles93/xload/internal/logger"
)

var (
	configFile string
	cfg        Config

	logLevel  string
	logFormat string
	debug     bool

	firmwareDir     string
	sysfsDir        string
	managerName     string
	partial         bool
	hostMemBase     string
	hostMemSize     string
	maxSectionBytes string
	dryRun          bool
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func deviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "firmware-dir",
			Usage:       "directory the fpga manager loads firmware from",
			Value:       fpgamgr.DefaultFirmwareDir,
			Destination: &firmwareDir,
		},
		&cli.StringFlag{
			Name:        "sysfs-dir",
			Usage:       "fpga_manager class directory",
			Value:       fpgamgr.DefaultSysfsDir,
			Destination: &sysfsDir,
		},
		&cli.StringFlag{
			Name:        "manager",
			Usage:       "fpga manager instance",
			Value:       fpgamgr.DefaultManager,
			Destination: &managerName,
		},
		&cli.BoolFlag{
			Name:        "partial",
			Usage:       "device is a partial reconfiguration region",
			Destination: &partial,
		},
		&cli.StringFlag{
			Name:        "host-mem-base",
			Usage:       "base address of the host memory window (banks inside it are CMA)",
			Value:       "0",
			Destination: &hostMemBase,
		},
		&cli.StringFlag{
			Name:        "host-mem-size",
			Usage:       "size of the host memory window",
			Value:       "0",
			Destination: &hostMemSize,
		},
		&cli.StringFlag{
			Name:        "max-section-bytes",
			Usage:       "largest section copied out of a container (0 = unlimited)",
			Value:       "0",
			Destination: &maxSectionBytes,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "record images instead of programming the fpga manager",
			Destination: &dryRun,
		},
	}
}

func parseUint(name, v string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(v), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", name, v, err)
	}
	return n, nil
}

// newDevice builds a device from the device flags.
func newDevice(log logger.Logger) (*device.Device, device.ImageLoader, error) {
	base, err := parseUint("host-mem-base", hostMemBase)
	if err != nil {
		return nil, nil, err
	}
	size, err := parseUint("host-mem-size", hostMemSize)
	if err != nil {
		return nil, nil, err
	}
	limit, err := parseUint("max-section-bytes", maxSectionBytes)
	if err != nil {
		return nil, nil, err
	}

	var loader device.ImageLoader
	if dryRun {
		loader = &fpgamgr.Recorder{}
	} else {
		loader = fpgamgr.New(fpgamgr.Config{
			FirmwareDir: firmwareDir,
			SysfsDir:    sysfsDir,
			Manager:     managerName,
			Partial:     partial,
			Logger:      log,
		})
	}
	dev := device.New(device.Options{
		Loader:          loader,
		Logger:          log,
		PartialReconfig: partial,
		HostMemBase:     base,
		HostMemSize:     size,
		MaxSectionBytes: limit,
	})
	return dev, loader, nil
}
