package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is injected at build time.
var Version = "dev"

const (
	AdapterMCP2221 = "mcp2221"
	AdapterGeneric = "generic"
	AdapterNanoPi  = "nanopi"
)

type Config struct {
	Bus     BusConfig     `yaml:"bus"`
	ENS160  ENS160Config  `yaml:"ens160"`
	AHT21   AHT21Config   `yaml:"aht21"`
	Monitor MonitorConfig `yaml:"monitor"`
}

type BusConfig struct {
	Adapter string `yaml:"adapter"`
	// Device is the periph bus name used by the generic adapter.
	Device string `yaml:"device"`
	// Number is the gobot bus number used by the nanopi adapter; -1 selects the board default.
	Number   int `yaml:"number"`
	SpeedKHz int `yaml:"speed_khz"`
}

type ENS160Config struct {
	Address uint8 `yaml:"address"`
}

type AHT21Config struct {
	Address uint8 `yaml:"address"`
	Retries int   `yaml:"retries"`
}

type MonitorConfig struct {
	Interval       time.Duration `yaml:"interval"`
	MetricsAddress string        `yaml:"metrics_address"`
}

func Default() Config {
	return Config{
		Bus: BusConfig{
			Adapter:  AdapterMCP2221,
			Device:   "/dev/i2c-1",
			Number:   -1,
			SpeedKHz: 100,
		},
		ENS160: ENS160Config{Address: 0x53},
		AHT21:  AHT21Config{Address: 0x38, Retries: 3},
		Monitor: MonitorConfig{
			Interval:       2 * time.Second,
			MetricsAddress: ":8080",
		},
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Bus.Adapter {
	case AdapterMCP2221, AdapterGeneric, AdapterNanoPi:
	default:
		errs = append(errs, fmt.Errorf("unknown bus adapter %q", c.Bus.Adapter))
	}
	if c.ENS160.Address > 0x7F {
		errs = append(errs, fmt.Errorf("ens160 address %#x is not a 7-bit address", c.ENS160.Address))
	}
	if c.AHT21.Address > 0x7F {
		errs = append(errs, fmt.Errorf("aht21 address %#x is not a 7-bit address", c.AHT21.Address))
	}
	if c.AHT21.Retries < 1 {
		errs = append(errs, fmt.Errorf("aht21 retries must be at least 1, got %d", c.AHT21.Retries))
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, fmt.Errorf("monitor interval must be positive, got %s", c.Monitor.Interval))
	}
	return errors.Join(errs...)
}

func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
