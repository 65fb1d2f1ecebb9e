package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete playbooksyncd configuration
type Config struct {
	Repo  RepoConfig  `yaml:"repo"`
	Paths PathsConfig `yaml:"paths"`
	Sync  SyncConfig  `yaml:"sync"`
	Serve ServeConfig `yaml:"serve"`
}

// RepoConfig configures the Git repository holding the playbooks
type RepoConfig struct {
	URL          string        `yaml:"url"`
	Branch       string        `yaml:"branch"`
	PlaybookDir  string        `yaml:"playbook_dir"`
	CloneDepth   int           `yaml:"clone_depth"`
	AutoSync     bool          `yaml:"auto_sync"`
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	LocalPath string `yaml:"local_path"`
}

// SyncConfig configures sync behavior
type SyncConfig struct {
	// CommandTimeout bounds each git invocation. Zero means no timeout:
	// a hung git process hangs the calling operation.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// ServeConfig configures the webhook server
type ServeConfig struct {
	Enabled                 bool     `yaml:"enabled"`
	ListenAddr              string   `yaml:"listen_addr"`
	GitHubWebhookSecretFile string   `yaml:"github_webhook_secret_file"`
	AllowedEventTypes       []string `yaml:"allowed_event_types"`
	AllowedRefs             []string `yaml:"allowed_refs"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Repo.URL = os.ExpandEnv(c.Repo.URL)
	c.Repo.Branch = os.ExpandEnv(c.Repo.Branch)
	c.Repo.PlaybookDir = os.ExpandEnv(c.Repo.PlaybookDir)
	c.Paths.LocalPath = os.ExpandEnv(c.Paths.LocalPath)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.GitHubWebhookSecretFile = os.ExpandEnv(c.Serve.GitHubWebhookSecretFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Repo.Branch == "" {
		c.Repo.Branch = "main"
	}
	if c.Repo.PlaybookDir == "" {
		c.Repo.PlaybookDir = "playbooks"
	}
	if c.Repo.CloneDepth == 0 {
		c.Repo.CloneDepth = 50
	}
	if c.Repo.SyncInterval == 0 {
		c.Repo.SyncInterval = 5 * time.Minute
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Validate repo config
	if c.Repo.URL == "" {
		return fmt.Errorf("repo.url is required")
	}
	if c.Repo.CloneDepth < 0 {
		return fmt.Errorf("repo.clone_depth must not be negative")
	}
	if c.Repo.SyncInterval < 0 {
		return fmt.Errorf("repo.sync_interval must not be negative")
	}

	// Validate paths
	if c.Paths.LocalPath == "" {
		return fmt.Errorf("paths.local_path is required")
	}
	if !filepath.IsAbs(c.Paths.LocalPath) {
		return fmt.Errorf("paths.local_path must be an absolute path: %s", c.Paths.LocalPath)
	}

	// The playbook directory is relative to the working copy root
	if filepath.IsAbs(c.Repo.PlaybookDir) {
		return fmt.Errorf("repo.playbook_dir must be relative to the repository root: %s", c.Repo.PlaybookDir)
	}

	if c.Sync.CommandTimeout < 0 {
		return fmt.Errorf("sync.command_timeout must not be negative")
	}

	// Validate serve config if enabled
	if c.Serve.Enabled {
		if c.Serve.ListenAddr == "" {
			return fmt.Errorf("serve.listen_addr is required when serve is enabled")
		}
		if c.Serve.GitHubWebhookSecretFile == "" {
			return fmt.Errorf("serve.github_webhook_secret_file is required when serve is enabled")
		}
	}

	return nil
}

// PlaybookPath returns the absolute path of the playbook directory
// inside the working copy.
func (c *Config) PlaybookPath() string {
	return filepath.Join(c.Paths.LocalPath, c.Repo.PlaybookDir)
}
