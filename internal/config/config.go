// Package config loads the two YAML configuration layers: per-repository
// project config and the user's global daemon settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfig is the parsed contents of <repo>/.schaltwerk/config.yaml.
type ProjectConfig struct {
	BranchPrefix        string `yaml:"branch_prefix"`
	DefaultParentBranch string `yaml:"default_parent_branch"`
	SetupScriptPath     string `yaml:"setup_script_path"`
	CommitOnReview      bool   `yaml:"commit_on_review"`
}

// defaults applies zero-value fallbacks, mirroring the teacher's own
// overlay-by-zero-check pattern for project configuration.
func (c *ProjectConfig) defaults() {
	if c.BranchPrefix == "" {
		c.BranchPrefix = "schaltwerk"
	}
}

// LoadProjectConfig reads <repoRoot>/.schaltwerk/config.yaml. A missing file
// is not an error; it returns defaults.
func LoadProjectConfig(repoRoot string) (*ProjectConfig, error) {
	path := filepath.Join(repoRoot, ".schaltwerk", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c := &ProjectConfig{}
			c.defaults()
			return c, nil
		}
		return nil, fmt.Errorf("read project config: %w", err)
	}

	var c ProjectConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse project config %s: %w", path, err)
	}
	c.defaults()
	return &c, nil
}

// AppConfig is the parsed contents of <user_config_dir>/schaltwerk/settings.yaml.
type AppConfig struct {
	DefaultRows       int `yaml:"default_rows"`
	DefaultCols       int `yaml:"default_cols"`
	IdleThresholdMS   int `yaml:"idle_threshold_ms"`
	HighWaterOverride int `yaml:"high_water_override"`
	LowWaterOverride  int `yaml:"low_water_override"`
	SocketRoot        string `yaml:"socket_root"`
}

func (c *AppConfig) defaults() {
	if c.DefaultRows == 0 {
		c.DefaultRows = 24
	}
	if c.DefaultCols == 0 {
		c.DefaultCols = 80
	}
	if c.IdleThresholdMS == 0 {
		c.IdleThresholdMS = 5000
	}
}

// LoadAppConfig reads the global settings file. A missing file returns
// defaults, not an error.
func LoadAppConfig() (*AppConfig, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		c := &AppConfig{}
		c.defaults()
		return c, nil
	}
	path := filepath.Join(dir, "schaltwerk", "settings.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c := &AppConfig{}
			c.defaults()
			return c, nil
		}
		return nil, fmt.Errorf("read app config: %w", err)
	}

	var c AppConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse app config %s: %w", path, err)
	}
	c.defaults()
	return &c, nil
}
