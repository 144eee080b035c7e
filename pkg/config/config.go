// Package config manages the NRM server's JSON configuration file (spec
// §6's "Environment/config file"): topology location, the GLPK working
// directories, reservation store location, listen address, skeleton file
// keys and the solvec group size.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrConfig is the sentinel wrapped by every ConfigError.
var ErrConfig = errors.New("configuration error")

// ConfigError reports a fatal startup problem reading or writing the
// server's JSON config file (spec §7: ConfigError — malformed config or
// topology, fatal at startup).
type ConfigError struct {
	Path    string
	Detail  string
	Wrapped error
}

func (e *ConfigError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Path, e.Detail, e.Wrapped)
	}
	return fmt.Sprintf("config: %s: %s", e.Path, e.Detail)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// DefaultConfigPath is used when no override is given on the command line.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/nrm_config.json"
	}
	return filepath.Join(home, ".nrm", "config.json")
}

const (
	// DefaultNrmHost is the bind/dial address when unset.
	DefaultNrmHost = "127.0.0.1"
	// DefaultNrmPort is the listen/dial port when unset.
	DefaultNrmPort = 9100
	// DefaultPfTmpModel is the default skeleton file-key base for pf solves.
	DefaultPfTmpModel = "pf_topo"
	// DefaultSolvecTmpModel is the default skeleton file-key base for solvec solves.
	DefaultSolvecTmpModel = "solvec_topo"
	// DefaultNumComps is the default solvec group size (spec §4.8 step 7).
	DefaultNumComps = 2
)

// Config holds the JSON-configurable fields spec §6 lists for the server.
type Config struct {
	// Logger is the logrus level name ("debug", "info", "warn", "error").
	Logger string `json:"logger,omitempty"`
	// LogConfig is a path to an optional logging-output override file.
	LogConfig string `json:"log_config,omitempty"`

	// TopoXML is the path to the topology design XML document.
	TopoXML string `json:"topo_xml,omitempty"`
	// GlpkDir is the root directory for AC tables (<glpk_dir>/ac) and
	// skeleton data/model files (<glpk_dir>/glpk).
	GlpkDir string `json:"glpk_dir,omitempty"`
	// DBDir is the directory backing the durable reservation store when
	// a file-backed store is used instead of Redis.
	DBDir string `json:"db_dir,omitempty"`

	// NrmHost/NrmPort are the server's listen address.
	NrmHost string `json:"nrm_host,omitempty"`
	NrmPort int    `json:"nrm_port,omitempty"`

	// PfTmpModel/SolvecTmpModel are the default skeleton file-key bases,
	// overridable per-request via -model/-data (SPEC_FULL.md §12).
	PfTmpModel     string `json:"pf_tmp_model,omitempty"`
	SolvecTmpModel string `json:"solvec_tmp_model,omitempty"`

	// NumComps bounds the size of each solvec component group.
	NumComps int `json:"num_comps,omitempty"`

	// RedisAddr, when non-empty, selects a Redis-backed reservation store
	// at this address instead of the in-memory default.
	RedisAddr string `json:"redis_addr,omitempty"`

	// RemoteSolverHost, when non-empty, selects an SSH-backed Solver: the
	// server dials this host and runs glpsol there instead of in its own
	// process tree, for deployments where GLPK lives on the controller
	// next to the device rather than on the NRM host.
	RemoteSolverHost string `json:"remote_solver_host,omitempty"`
	// RemoteSolverPort is the SSH port for RemoteSolverHost; 0 means 22.
	RemoteSolverPort int `json:"remote_solver_port,omitempty"`
	// RemoteSolverUser/RemoteSolverPass are the SSH credentials for
	// RemoteSolverHost.
	RemoteSolverUser string `json:"remote_solver_user,omitempty"`
	RemoteSolverPass string `json:"remote_solver_pass,omitempty"`

	// AuditLogPath, when non-empty, enables JSON-lines audit logging of
	// reserve/terminate operations at this file path.
	AuditLogPath string `json:"audit_log_path,omitempty"`
}

// Load reads the config from the default location.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom reads the config from path; a missing file yields an empty
// (all-default) Config rather than an error.
func LoadFrom(path string) (*Config, error) {
	c := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, &ConfigError{Path: path, Detail: "reading config file", Wrapped: err}
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, &ConfigError{Path: path, Detail: "parsing config JSON", Wrapped: err}
	}
	return c, nil
}

// Save writes the config to the default location.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigPath())
}

// SaveTo writes the config to path, creating parent directories as needed.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &ConfigError{Path: path, Detail: "creating config directory", Wrapped: err}
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return &ConfigError{Path: path, Detail: "encoding config JSON", Wrapped: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &ConfigError{Path: path, Detail: "writing config file", Wrapped: err}
	}
	return nil
}

// GetNrmHost returns the configured host, or DefaultNrmHost.
func (c *Config) GetNrmHost() string {
	if c.NrmHost != "" {
		return c.NrmHost
	}
	return DefaultNrmHost
}

// GetNrmPort returns the configured port, or DefaultNrmPort.
func (c *Config) GetNrmPort() int {
	if c.NrmPort > 0 {
		return c.NrmPort
	}
	return DefaultNrmPort
}

// GetPfTmpModel returns the configured pf skeleton file-key base, or its default.
func (c *Config) GetPfTmpModel() string {
	if c.PfTmpModel != "" {
		return c.PfTmpModel
	}
	return DefaultPfTmpModel
}

// GetSolvecTmpModel returns the configured solvec skeleton file-key base, or its default.
func (c *Config) GetSolvecTmpModel() string {
	if c.SolvecTmpModel != "" {
		return c.SolvecTmpModel
	}
	return DefaultSolvecTmpModel
}

// GetNumComps returns the configured solvec group size, or DefaultNumComps.
func (c *Config) GetNumComps() int {
	if c.NumComps > 0 {
		return c.NumComps
	}
	return DefaultNumComps
}

// AcDir is the per-model AvailableConnection output directory under GlpkDir.
func (c *Config) AcDir() string {
	return filepath.Join(c.GlpkDir, "ac")
}

// SkeletonDir is the skeleton data/model output directory under GlpkDir.
func (c *Config) SkeletonDir() string {
	return filepath.Join(c.GlpkDir, "glpk")
}

// Clear resets the config to its zero value.
func (c *Config) Clear() {
	*c = Config{}
}
