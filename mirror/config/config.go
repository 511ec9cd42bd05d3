// Package config loads the tool configuration from an
// optional YAML file layered over built-in defaults. The
// API credential is deliberately not part of the file; it
// comes from the environment only.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config holds the settings of a mirroring run.
type Config struct {
	// Org is the mirror organization hosting repository
	// copies.
	Org string `yaml:"org"`
	// HostKind selects the hosting platform: "github" or
	// "gitlab".
	HostKind string `yaml:"host_kind"`
	// APIHost is an optional API base host (GitHub
	// Enterprise hostname or GitLab base URL). Empty
	// means the public cloud service.
	APIHost string `yaml:"api_host"`
	// GitHost is the hostname used to build clone URLs.
	GitHost string `yaml:"git_host"`
	// BotName and BotEmail form the commit author
	// identity of materialized commits.
	BotName  string `yaml:"bot_name"`
	BotEmail string `yaml:"bot_email"`
	// ScratchDir is the parent directory for scratch
	// areas. Empty means the system temp dir.
	ScratchDir string `yaml:"scratch_dir"`
	// StripDirs are tree directories removed from every
	// materialized tree.
	StripDirs []string `yaml:"strip_dirs"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Org:       "JulianEgbertMasterThesis",
		HostKind:  "github",
		GitHost:   "github.com",
		BotName:   "PR Branch Creator",
		BotEmail:  "pr-branch-creator@example.com",
		StripDirs: []string{".github"},
	}
}

// Load reads a YAML configuration file over the defaults.
// Unknown keys are rejected. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	const errCtx = "loading configuration"

	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return Config{}, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	if err := yaml.UnmarshalWithOptions(
		raw, &cfg, yaml.Strict(),
	); err != nil {
		return Config{}, fmt.Errorf(
			"%s: parse %s: %w", errCtx, path, err,
		)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf(
			"%s: %s: %w", errCtx, path, err,
		)
	}

	return cfg, nil
}

// validate rejects configurations the run cannot use.
func (c Config) validate() error {
	if c.Org == "" {
		return fmt.Errorf("org must be set")
	}

	switch c.HostKind {
	case "github", "gitlab":
	default:
		return fmt.Errorf(
			"unknown host_kind %q", c.HostKind,
		)
	}

	if c.GitHost == "" {
		return fmt.Errorf("git_host must be set")
	}

	return nil
}
