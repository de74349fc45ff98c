package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML config file format (--config path.yaml),
// overriding settle time and adding extra ignore-glob lines on top of the
// filter built from flags and any .gitignore/.ignore files found under the
// watched root. Grounded on the teacher's pkg/configuration struct-tag
// pattern, substituting YAML for mutagen's TOML since no TOML library
// appears anywhere in the retrieval pack.
type fileConfig struct {
	SettleMilliseconds int      `yaml:"settleMilliseconds"`
	Ignore             []string `yaml:"ignore"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config file")
	}
	return cfg, nil
}

func (c fileConfig) settleTime(fallback time.Duration) time.Duration {
	if c.SettleMilliseconds <= 0 {
		return fallback
	}
	return time.Duration(c.SettleMilliseconds) * time.Millisecond
}
