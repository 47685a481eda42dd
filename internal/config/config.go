package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the process configuration of cmd/server. Simulation tunables live in
// configs/tuning.yaml; this file only covers how the process runs.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Network NetworkConfig `toml:"network"`
	Storage StorageConfig `toml:"storage"`
	World   WorldConfig   `toml:"world"`
	Logging LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Name       string `toml:"name"`
	ConfigDir  string `toml:"config_dir"`
	TuningFile string `toml:"tuning_file"`
}

type NetworkConfig struct {
	BindAddress   string        `toml:"bind_address"`
	ActsPerSecond float64       `toml:"acts_per_second"`
	ActBurst      int           `toml:"act_burst"`
	OutQueueSize  int           `toml:"out_queue_size"`
	ShutdownGrace time.Duration `toml:"shutdown_grace"`
}

type StorageConfig struct {
	DataDir   string `toml:"data_dir"`
	TickLog   bool   `toml:"tick_log"`
	Index     bool   `toml:"index"`
	Snapshots bool   `toml:"snapshots"`
}

type WorldConfig struct {
	Creatures      int `toml:"creatures"`
	CreatureHealth int `toml:"creature_health"`
	// StarterItems are given to every joining entity.
	StarterItems map[string]int `toml:"starter_items"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:       "tickcraft",
			ConfigDir:  "./configs",
			TuningFile: "./configs/tuning.yaml",
		},
		Network: NetworkConfig{
			BindAddress:   "127.0.0.1:8080",
			ActsPerSecond: 50,
			ActBurst:      20,
			OutQueueSize:  64,
			ShutdownGrace: 5 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:   "./data",
			TickLog:   true,
			Index:     true,
			Snapshots: true,
		},
		World: WorldConfig{
			Creatures:      4,
			CreatureHealth: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func (c *Config) validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q: want json or console", c.Logging.Format)
	}
	if c.Network.ActsPerSecond <= 0 || c.Network.ActBurst <= 0 {
		return fmt.Errorf("network: acts_per_second and act_burst must be positive")
	}
	for item, n := range c.World.StarterItems {
		if n <= 0 {
			return fmt.Errorf("world.starter_items.%s: count %d", item, n)
		}
	}
	return nil
}
