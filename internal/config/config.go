// Package config loads the dupcheckd YAML configuration.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration loaded from config.yaml.
type Config struct {
	ScanPaths    []string `yaml:"scan_paths"    json:"scan_paths"`
	ExcludePaths []string `yaml:"exclude_paths" json:"exclude_paths"`
	Schedule     string   `yaml:"schedule"      json:"schedule"`
	ScanPaused   bool     `yaml:"scan_paused"   json:"scan_paused"`
	DBPath       string   `yaml:"db_path"       json:"-"`
	HTTPAddr     string   `yaml:"http_addr"     json:"-"`
	HashWorkers  int      `yaml:"hash_workers"  json:"hash_workers"`
	LogLevel     string   `yaml:"log_level"     json:"-"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Schedule == "" {
		c.Schedule = "0 2 * * 0"
	}
	if c.DBPath == "" {
		c.DBPath = "dupcheck.db"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.HashWorkers == 0 {
		c.HashWorkers = runtime.NumCPU()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Load reads and parses the YAML config file at path. Unknown keys are
// rejected. If the file does not exist, Load returns a default Config so the
// daemon can start without one.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		var cfg Config
		cfg.applyDefaults()
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}
