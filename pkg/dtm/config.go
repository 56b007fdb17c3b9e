package dtm

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dmi"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/idcode"
)

// Config holds the build-time parameters of the model and the reference bus
// it is usually paired with.
type Config struct {
	// Identification register fields.
	Version      uint8  `json:"version"`
	PartNumber   uint16 `json:"part_number"`
	Manufacturer uint16 `json:"manufacturer"` // JEP106, 11 bits

	// TimeoutTicks abandons a DMI transaction after this many ticks in one
	// waiting state. Zero waits forever.
	TimeoutTicks uint64 `json:"timeout_ticks,omitempty"`

	// TickRate is the model clock in Hz. Adapters use it to turn a TCK
	// frequency into ticks.
	TickRate uint64 `json:"tick_rate_hz"`

	Bus BusConfig `json:"bus"`
}

// BusConfig describes the dmi.MemoryBus built by NewBus.
type BusConfig struct {
	AcceptDelay   int   `json:"accept_delay"`
	ResponseDelay int   `json:"response_delay"`
	FailAddrs     []int `json:"fail_addrs,omitempty"`
	Stall         bool  `json:"stall,omitempty"`
}

// DefaultTickRate is the model clock assumed when none is configured.
const DefaultTickRate = 48_000_000

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() *Config {
	return &Config{
		Version:      0x1,
		PartNumber:   0x0001,
		Manufacturer: 0x000,
		TickRate:     DefaultTickRate,
		Bus: BusConfig{
			AcceptDelay:   1,
			ResponseDelay: 2,
		},
	}
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Version > idcode.MaxVersion {
		return fmt.Errorf("dtm: version %d exceeds %d bits: %w", c.Version, idcode.VersionBits, ErrInvalidConfig)
	}
	if c.Manufacturer > idcode.MaxManufacturer {
		return fmt.Errorf("dtm: manufacturer 0x%x exceeds %d bits: %w", c.Manufacturer, idcode.ManufacturerBits, ErrInvalidConfig)
	}
	if c.TickRate == 0 {
		return fmt.Errorf("dtm: tick rate must be positive: %w", ErrInvalidConfig)
	}
	if c.Bus.AcceptDelay < 0 || c.Bus.ResponseDelay < 0 {
		return fmt.Errorf("dtm: negative bus delay: %w", ErrInvalidConfig)
	}
	for _, a := range c.Bus.FailAddrs {
		if a < 0 || a > dmi.AddrMask {
			return fmt.Errorf("dtm: fail address 0x%x outside %d-bit space: %w", a, dmi.AddrBits, ErrInvalidConfig)
		}
	}
	return nil
}

// IDCode is the value captured into the identification register.
func (c *Config) IDCode() uint32 {
	return idcode.Encode(c.Version, c.PartNumber, c.Manufacturer)
}

// Timeout returns the arbiter timeout hook, nil when TimeoutTicks is zero.
func (c *Config) Timeout() dmi.TimeoutFunc {
	if c.TimeoutTicks == 0 {
		return nil
	}
	return dmi.WaitLimit(c.TimeoutTicks)
}

// NewBus builds the reference register interface described by c.Bus.
func (c *Config) NewBus() *dmi.MemoryBus {
	bus := dmi.NewMemoryBus()
	bus.AcceptDelay = c.Bus.AcceptDelay
	bus.ResponseDelay = c.Bus.ResponseDelay
	bus.Stall = c.Bus.Stall
	for _, a := range c.Bus.FailAddrs {
		bus.FailAddr(uint8(a), true)
	}
	return bus
}

// LoadConfig reads a JSON config from fs. Fields missing from the file keep
// their DefaultConfig values.
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("dtm: read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("dtm: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes c to fs as indented JSON.
func SaveConfig(fs afero.Fs, path string, c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("dtm: encode config: %w", err)
	}
	data = append(data, '\n')
	if err := afero.WriteFile(fs, path, data, os.FileMode(0o644)); err != nil {
		return fmt.Errorf("dtm: write config: %w", err)
	}
	return nil
}
