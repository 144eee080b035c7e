// Package logutil loads the optional log-config YAML file spec §6's
// log_config field points at, applying its output/format settings
// on top of whatever pkg/util.SetLogLevel already set from logger (the
// source's util/elapse.py + logging.yaml pairing: a level comes from the
// main config, finer output shaping comes from a sibling YAML document).
package logutil

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aist-nrm/nrm/pkg/util"
)

// Config is the log_config YAML document's shape.
type Config struct {
	// Format is "json" or "text" (logrus.JSONFormatter vs TextFormatter);
	// empty means leave pkg/util's default text formatter in place.
	Format string `yaml:"format"`
	// OutputPath, when set, redirects logging from stderr to a file
	// (truncated if it exists, created otherwise).
	OutputPath string `yaml:"output_path"`
	// Fields are static key/value pairs (e.g. a deployment or region tag).
	// Apply does not attach them to the shared logger; they are exposed
	// for callers to pass into their own WithFields calls.
	Fields map[string]string `yaml:"fields"`
}

// Load reads and parses path. A missing path is not an error: callers
// treat a nil Config as "no overrides."
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logutil: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("logutil: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// Apply wires cfg's format/output settings into pkg/util's shared logger.
// A nil cfg is a no-op.
func Apply(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	if cfg.Format == "json" {
		util.SetJSONFormat()
	}
	if cfg.OutputPath != "" {
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("logutil: opening %s: %w", cfg.OutputPath, err)
		}
		util.SetLogOutput(f)
	}
	return nil
}
