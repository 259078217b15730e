package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Merge.
const (
	EnvServer = "AUTHCORE_SERVER"
	EnvOutput = "AUTHCORE_OUTPUT"
	EnvJarDir = "AUTHCORE_JAR"
)

func homeDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, ".authcore")
}

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	return filepath.Join(homeDir(), "cli.yaml")
}

// DefaultJarDir returns the default credential jar directory.
func DefaultJarDir() string {
	return filepath.Join(homeDir(), "jar")
}

// Load loads CLI configuration from file. A missing file yields the
// defaults; keys absent from the file keep their default values.
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, path)
}

// Merge overlays environment variables and then flags onto cfg. Empty
// values are ignored. Recognised flag keys are server, output, jar and
// ca-cert.
func Merge(cfg *CLIConfig, getenv func(string) string, flags map[string]string) *CLIConfig {
	out := *cfg
	if getenv != nil {
		setIf(&out.Server, getenv(EnvServer))
		setIf(&out.Output, getenv(EnvOutput))
		setIf(&out.JarDir, getenv(EnvJarDir))
	}
	setIf(&out.Server, flags["server"])
	setIf(&out.Output, flags["output"])
	setIf(&out.JarDir, flags["jar"])
	setIf(&out.CACert, flags["ca-cert"])
	return &out
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks the configuration.
func (c *CLIConfig) Validate() error {
	switch c.Output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("output must be table, json or yaml, got %q", c.Output)
	}
	if c.Server == "" {
		return errors.New("server must not be empty")
	}
	if c.JarDir == "" {
		return errors.New("jar_dir must not be empty")
	}
	if c.Timeout < 0 || c.RenewalInterval < 0 || c.RefreshThreshold < 0 {
		return errors.New("durations must not be negative")
	}
	if c.RenewalInterval > 0 && c.RenewalInterval < time.Second {
		return errors.New("renewal_interval must be at least 1s")
	}
	return nil
}
