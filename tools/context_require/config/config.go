// Package config loads the optional YAML configuration file of the
// context_require tool.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFilename is looked up in the working directory when no file is given.
const DefaultFilename = "context-require.yaml"

// Env describes where process.env values come from.
type Env struct {
	// File is the base .env path; variants such as .env.local are derived
	// from it.
	File   string `yaml:"file,omitempty"`
	Mode   string `yaml:"mode,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
}

// Config models the on-disk configuration.
type Config struct {
	Extensions []string `yaml:"extensions,omitempty"`
	Conditions []string `yaml:"conditions,omitempty"`
	Env        Env      `yaml:"env,omitempty"`
}

// Load reads and validates a configuration file. Relative paths inside it
// are made relative to the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.normalize(filepath.Dir(path))
	return &cfg, nil
}

// LoadDefault loads DefaultFilename from dir, returning an empty config when
// the file does not exist.
func LoadDefault(dir string) (*Config, error) {
	path := filepath.Join(dir, DefaultFilename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}
	return Load(path)
}

func (c *Config) validate() error {
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	for _, cond := range c.Conditions {
		if strings.TrimSpace(cond) == "" {
			return fmt.Errorf("conditions must not be empty")
		}
	}
	return nil
}

func (c *Config) normalize(base string) {
	if c.Env.File != "" && !filepath.IsAbs(c.Env.File) {
		c.Env.File = filepath.Join(base, filepath.FromSlash(c.Env.File))
	}
	for i, cond := range c.Conditions {
		c.Conditions[i] = strings.TrimSpace(cond)
	}
}

// Merge overlays non-empty values from flags onto c.
func (c *Config) Merge(extensions, conditions []string, env Env) {
	if len(extensions) > 0 {
		c.Extensions = extensions
	}
	if len(conditions) > 0 {
		c.Conditions = conditions
	}
	if env.File != "" {
		c.Env.File = env.File
	}
	if env.Mode != "" {
		c.Env.Mode = env.Mode
	}
	if env.Prefix != "" {
		c.Env.Prefix = env.Prefix
	}
}
