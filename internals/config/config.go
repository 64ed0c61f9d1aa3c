// Copyright (c) 2023 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/canonical/x-go/strutil"
	"gopkg.in/yaml.v3"

	"github.com/canonical/bootctl/internals/bootrecord"
)

const (
	// DefaultPath is read when no configuration file is given. It may be
	// missing, in which case defaults apply.
	DefaultPath = "/etc/bootctl.yaml"

	// PathEnv overrides DefaultPath.
	PathEnv = "BOOTCTL_CONFIG"

	DefaultMiscDevice = "/dev/block/by-name/misc"
	DefaultSocket     = "/run/bootctl.socket"
)

// Config holds the settings shared by the command line tool and the daemon.
type Config struct {
	// MiscDevice is the block device (or image file) holding the record.
	MiscDevice string `yaml:"misc-device" env:"BOOTCTL_MISC_DEVICE"`
	// RecordOffset is the byte offset of the record within MiscDevice.
	RecordOffset int64 `yaml:"record-offset" env:"BOOTCTL_RECORD_OFFSET"`
	// SlotSuffixes lists the slot suffixes in slot order.
	SlotSuffixes []string `yaml:"slot-suffixes"`
	// Checksum enables CRC verification of the record.
	Checksum bool `yaml:"checksum" env:"BOOTCTL_CHECKSUM"`
	// Socket is the unix socket the daemon listens on.
	Socket string `yaml:"socket" env:"BOOTCTL_SOCKET"`

	// SlotSuffix is the suffix of the slot the system booted from. It is
	// supplied by the platform at boot, never by the configuration file.
	SlotSuffix string `yaml:"-" env:"BOOTCTL_SLOT_SUFFIX"`
}

var defaultPath = DefaultPath

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MiscDevice:   DefaultMiscDevice,
		RecordOffset: bootrecord.DefaultOffset,
		SlotSuffixes: []string{"_a", "_b"},
		Socket:       DefaultSocket,
	}
}

// FormatError is the error returned when the configuration is malformed or
// fails validation.
type FormatError struct {
	Message string
}

func (e *FormatError) Error() string {
	return e.Message
}

// Load reads the configuration from path, falling back to $BOOTCTL_CONFIG
// and then DefaultPath when path is empty, and applies environment
// overrides on top. An explicitly requested file must exist.
func Load(path string) (*Config, error) {
	explicit := true
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path == "" {
		path = defaultPath
		explicit = false
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.parse(path, data); err != nil {
			return nil, err
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("cannot read configuration: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, &FormatError{Message: fmt.Sprintf("cannot parse environment: %v", err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML configuration data over the defaults and validates
// the result. Environment overrides are not applied.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.parse("configuration", data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) parse(label string, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return &FormatError{Message: fmt.Sprintf("cannot parse %s: %v", label, err)}
	}
	return nil
}

// Validate checks the configuration for consistency.
func (cfg *Config) Validate() error {
	if cfg.MiscDevice == "" {
		return &FormatError{Message: "misc-device cannot be empty"}
	}
	if cfg.RecordOffset < 0 {
		return &FormatError{Message: fmt.Sprintf("record-offset cannot be negative (got %d)", cfg.RecordOffset)}
	}
	n := len(cfg.SlotSuffixes)
	if n == 0 || n > bootrecord.MaxSlots {
		return &FormatError{Message: fmt.Sprintf("slot-suffixes must list between 1 and %d suffixes (got %d)", bootrecord.MaxSlots, n)}
	}
	for i, suffix := range cfg.SlotSuffixes {
		if suffix == "" {
			return &FormatError{Message: fmt.Sprintf("slot-suffixes entry %d cannot be empty", i)}
		}
		if _, err := strconv.Atoi(suffix); err == nil {
			return &FormatError{Message: fmt.Sprintf("slot-suffixes entry %q cannot be a number", suffix)}
		}
		if strutil.ListContains(cfg.SlotSuffixes[:i], suffix) {
			return &FormatError{Message: fmt.Sprintf("slot-suffixes entry %q is repeated", suffix)}
		}
	}
	if cfg.Socket == "" {
		return &FormatError{Message: "socket cannot be empty"}
	}
	return nil
}

// StoreOptions returns the record store options for this configuration.
func (cfg *Config) StoreOptions() bootrecord.Options {
	return bootrecord.Options{
		Path:     cfg.MiscDevice,
		Offset:   cfg.RecordOffset,
		Checksum: cfg.Checksum,
	}
}
