package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_Defaults(t *testing.T) {
	c := &Config{}

	if got := c.GetNrmHost(); got != DefaultNrmHost {
		t.Errorf("GetNrmHost() = %q, want %q", got, DefaultNrmHost)
	}
	if got := c.GetNrmPort(); got != DefaultNrmPort {
		t.Errorf("GetNrmPort() = %d, want %d", got, DefaultNrmPort)
	}
	if got := c.GetPfTmpModel(); got != DefaultPfTmpModel {
		t.Errorf("GetPfTmpModel() = %q, want %q", got, DefaultPfTmpModel)
	}
	if got := c.GetSolvecTmpModel(); got != DefaultSolvecTmpModel {
		t.Errorf("GetSolvecTmpModel() = %q, want %q", got, DefaultSolvecTmpModel)
	}
	if got := c.GetNumComps(); got != DefaultNumComps {
		t.Errorf("GetNumComps() = %d, want %d", got, DefaultNumComps)
	}
}

func TestConfig_Overrides(t *testing.T) {
	c := &Config{NrmHost: "10.0.0.1", NrmPort: 7000, NumComps: 4}

	if got := c.GetNrmHost(); got != "10.0.0.1" {
		t.Errorf("GetNrmHost() = %q, want %q", got, "10.0.0.1")
	}
	if got := c.GetNrmPort(); got != 7000 {
		t.Errorf("GetNrmPort() = %d, want %d", got, 7000)
	}
	if got := c.GetNumComps(); got != 4 {
		t.Errorf("GetNumComps() = %d, want %d", got, 4)
	}
}

func TestConfig_Dirs(t *testing.T) {
	c := &Config{GlpkDir: "/opt/nrm/glpk"}
	if got := c.AcDir(); got != filepath.Join("/opt/nrm/glpk", "ac") {
		t.Errorf("AcDir() = %q", got)
	}
	if got := c.SkeletonDir(); got != filepath.Join("/opt/nrm/glpk", "glpk") {
		t.Errorf("SkeletonDir() = %q", got)
	}
}

func TestConfig_LoadFromMissingFile(t *testing.T) {
	c, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.NrmHost != "" {
		t.Errorf("expected empty config, got %+v", c)
	}
}

func TestConfig_SaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	c := &Config{
		TopoXML:  "/etc/nrm/topo.xml",
		GlpkDir:  "/var/lib/nrm/glpk",
		NrmHost:  "0.0.0.0",
		NrmPort:  9200,
		NumComps: 3,
	}
	if err := c.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if loaded.TopoXML != c.TopoXML || loaded.GlpkDir != c.GlpkDir || loaded.NrmPort != c.NrmPort {
		t.Errorf("round trip mismatch: got %+v, want %+v", loaded, c)
	}
}

func TestConfig_LoadFromMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	_, err := LoadFrom(path)
	if err == nil {
		t.Fatal("expected error for malformed config JSON")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
	if !errors.Is(err, ErrConfig) {
		t.Errorf("expected errors.Is(err, ErrConfig) to hold")
	}
	if cfgErr.Path != path {
		t.Errorf("ConfigError.Path = %q, want %q", cfgErr.Path, path)
	}
}

func TestConfig_Clear(t *testing.T) {
	c := &Config{NrmHost: "x", NumComps: 9}
	c.Clear()
	if c.NrmHost != "" || c.NumComps != 0 {
		t.Errorf("expected zero value after Clear, got %+v", c)
	}
}
