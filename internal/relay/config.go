package relay

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v2"
)

const (
	DefaultPort        = 3491
	DefaultCapacity    = 10
	defaultMetricsAddr = ":9090"
	defaultReadBuffer  = 256
)

// Config carries relay settings. A partial YAML file is fine: unset fields
// are filled with defaults by LoadConfig.
type Config struct {
	Port        int    `yaml:"port"`
	Capacity    int    `yaml:"capacity"`
	MetricsAddr string `yaml:"metrics_addr"`
	AckInbound  bool   `yaml:"ack_inbound"`
	ReadBuffer  int    `yaml:"read_buffer"`

	// ControlFD is the console command source; 0 means stdin. Tests point
	// it at a pipe.
	ControlFD int `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Port:        DefaultPort,
		Capacity:    DefaultCapacity,
		MetricsAddr: defaultMetricsAddr,
		ReadBuffer:  defaultReadBuffer,
	}
}

// LoadConfig reads a YAML config file and fills unset fields with defaults.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = defaultMetricsAddr
	}
	if cfg.ReadBuffer == 0 {
		cfg.ReadBuffer = defaultReadBuffer
	}
	return cfg, nil
}
