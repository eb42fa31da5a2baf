// Package config loads codeloops configuration. Two files are consulted:
// a global ~/.config/codeloops/config.yaml and a per-project codeloops.yaml
// in the working directory. Precedence: CLI flags > environment > project
// file > global file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"codeloops/internal/agent"
)

// File names and locations.
const (
	ProjectFileName = "codeloops.yaml"
	globalDirName   = "codeloops"
	globalFileName  = "config.yaml"
)

// RoleConfig holds agent settings for one role (actor or critic).
type RoleConfig struct {
	Agent string `yaml:"agent"`
	Model string `yaml:"model"`
}

// PathsConfig locates on-disk state.
type PathsConfig struct {
	DataDir     string `yaml:"data_dir"`
	SessionsDir string `yaml:"sessions_dir"`
	Database    string `yaml:"database"`
}

// Config is the merged configuration for a run.
type Config struct {
	// Shared defaults, overridden per role.
	Agent string `yaml:"agent"`
	Model string `yaml:"model"`

	Actor  RoleConfig `yaml:"actor"`
	Critic RoleConfig `yaml:"critic"`

	// MaxIterations caps the loop; zero means unlimited.
	MaxIterations int `yaml:"max_iterations"`

	// MaxRevisions caps revision attempts per node before escalation.
	MaxRevisions int `yaml:"max_revisions"`

	// GeminiAPIKey enables the API-backed critic agent.
	GeminiAPIKey string `yaml:"gemini_api_key"`

	Paths PathsConfig `yaml:"paths"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		Agent:        "claude",
		MaxRevisions: 2,
	}
	if data, err := os.UserConfigDir(); err == nil {
		cfg.Paths.DataDir = filepath.Join(data, globalDirName)
	} else {
		cfg.Paths.DataDir = "." + globalDirName
	}
	cfg.Paths.SessionsDir = filepath.Join(cfg.Paths.DataDir, "sessions")
	cfg.Paths.Database = filepath.Join(cfg.Paths.DataDir, "codeloops.db")
	return cfg
}

// GlobalPath returns where the global config file lives.
func GlobalPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, globalDirName, globalFileName), nil
}

// Load builds the effective configuration for a working directory:
// defaults, then the global file, then the project file, then environment
// variables. Missing files are fine; unparsable ones are hard errors.
func Load(workingDir string) (*Config, error) {
	cfg := Default()

	if path, err := GlobalPath(); err == nil {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := mergeFile(cfg, filepath.Join(workingDir, ProjectFileName)); err != nil {
		return nil, err
	}
	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays one YAML file onto cfg if it exists.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays CODELOOPS_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CODELOOPS_AGENT"); v != "" {
		cfg.Agent = v
	}
	if v := os.Getenv("CODELOOPS_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("CODELOOPS_ACTOR_AGENT"); v != "" {
		cfg.Actor.Agent = v
	}
	if v := os.Getenv("CODELOOPS_CRITIC_AGENT"); v != "" {
		cfg.Critic.Agent = v
	}
	if v := os.Getenv("CODELOOPS_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxIterations = n
		}
	}
	if v := os.Getenv("CODELOOPS_GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = v
	}
}

// validate rejects agent names nothing can construct.
func (c *Config) validate() error {
	for _, name := range []string{c.Agent, c.Actor.Agent, c.Critic.Agent} {
		if name == "" {
			continue
		}
		if _, err := agent.ParseType(name); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// ActorAgent returns the effective agent name for the actor role.
func (c *Config) ActorAgent() string {
	if c.Actor.Agent != "" {
		return c.Actor.Agent
	}
	return c.Agent
}

// ActorModel returns the effective model for the actor role.
func (c *Config) ActorModel() string {
	if c.Actor.Model != "" {
		return c.Actor.Model
	}
	return c.Model
}

// CriticAgent returns the effective agent name for the critic role.
func (c *Config) CriticAgent() string {
	if c.Critic.Agent != "" {
		return c.Critic.Agent
	}
	return c.Agent
}

// CriticModel returns the effective model for the critic role.
func (c *Config) CriticModel() string {
	if c.Critic.Model != "" {
		return c.Critic.Model
	}
	return c.Model
}

// WriteStarter writes a commented starter config to path, creating parent
// directories. Unless overwrite is set it refuses to clobber an existing
// file.
func WriteStarter(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("config already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	starter := `# codeloops configuration
# Effective order: CLI flags > CODELOOPS_* env > codeloops.yaml > this file.

# Default agent for both roles: claude, opencode, cursor, or gemini.
agent: claude
# model: sonnet

# Role-specific overrides.
actor:
  # agent: claude
  # model: sonnet
critic:
  # agent: gemini
  # model: gemini-2.5-flash

# Loop limits. max_iterations 0 means unlimited.
max_iterations: 0
max_revisions: 2

# gemini_api_key: ...
`
	if err := os.WriteFile(path, []byte(starter), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
