package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds optional defaults loaded from ~/.config/eks-inventory/config.yaml.
// CLI flags take precedence over everything here.
type Config struct {
	AuthMode    string `yaml:"auth_mode"`    // "profile" or "assume-role"
	BaseProfile string `yaml:"base_profile"` // profile holding the base identity for assume-role
	S3Bucket    string `yaml:"s3_bucket"`
	S3Prefix    string `yaml:"s3_prefix"`
	Concurrency int    `yaml:"concurrency"`
}

// Load reads the config file. Returns zero-value Config if the file doesn't exist.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return &Config{}, nil
	}

	path := filepath.Join(home, ".config", "eks-inventory", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MergeAuth applies CLI flag overrides for the auth settings.
func (c *Config) MergeAuth(mode, baseProfile string) (string, string) {
	m := c.AuthMode
	if mode != "" {
		m = mode
	}
	if m == "" {
		m = "profile"
	}
	p := c.BaseProfile
	if baseProfile != "" {
		p = baseProfile
	}
	return m, p
}

// MergeS3 applies CLI flag overrides for the upload destination.
func (c *Config) MergeS3(bucket, prefix string) (string, string) {
	b := c.S3Bucket
	if bucket != "" {
		b = bucket
	}
	p := c.S3Prefix
	if prefix != "" {
		p = prefix
	}
	return b, p
}

// Workers returns the effective concurrency, clamped to at least 1.
func (c *Config) Workers(flag int) int {
	n := c.Concurrency
	if flag > 0 {
		n = flag
	}
	if n < 1 {
		n = 1
	}
	return n
}
