package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the strata configuration file
// (~/.config/strata/config.yaml). All defaults are overridable by flags.
type Config struct {
	// Quantize defaults
	QuantType string `yaml:"quant_type"`

	// Server
	ServerAddress string `yaml:"server_address"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "strata", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or fails to parse.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyConfig fills in config file defaults for flags the user did not
// set explicitly.
func applyConfig(c *cli.Command, cfg Config, quantType, addr *string) {
	if cfg.QuantType != "" && quantType != nil && !c.IsSet("type") {
		*quantType = cfg.QuantType
	}
	if cfg.ServerAddress != "" && addr != nil && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
