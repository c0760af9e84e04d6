package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the xload configuration file
// ($XDG_CONFIG_HOME/xload/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	// Device
	FirmwareDir     string  `yaml:"firmware_dir"`
	SysfsDir        string  `yaml:"sysfs_dir"`
	Manager         string  `yaml:"manager"`
	Partial         *bool   `yaml:"partial"`
	HostMemBase     *uint64 `yaml:"host_mem_base"`
	HostMemSize     *uint64 `yaml:"host_mem_size"`
	MaxSectionBytes *uint64 `yaml:"max_section_bytes"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "xload", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config; a
// malformed one is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// applyLoggingConfig applies config file defaults to the logging flags
// when they were not explicitly set.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyDeviceConfig applies config file defaults to the device flags.
func applyDeviceConfig(c *cli.Command, cfg Config) {
	if cfg.FirmwareDir != "" && !c.IsSet("firmware-dir") {
		firmwareDir = cfg.FirmwareDir
	}
	if cfg.SysfsDir != "" && !c.IsSet("sysfs-dir") {
		sysfsDir = cfg.SysfsDir
	}
	if cfg.Manager != "" && !c.IsSet("manager") {
		managerName = cfg.Manager
	}
	if cfg.Partial != nil && !c.IsSet("partial") {
		partial = *cfg.Partial
	}
	if cfg.HostMemBase != nil && !c.IsSet("host-mem-base") {
		hostMemBase = strconv.FormatUint(*cfg.HostMemBase, 10)
	}
	if cfg.HostMemSize != nil && !c.IsSet("host-mem-size") {
		hostMemSize = strconv.FormatUint(*cfg.HostMemSize, 10)
	}
	if cfg.MaxSectionBytes != nil && !c.IsSet("max-section-bytes") {
		maxSectionBytes = strconv.FormatUint(*cfg.MaxSectionBytes, 10)
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyDeviceConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
