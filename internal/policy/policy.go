// Package policy holds server configuration: the YAML config file merged
// with the recognized environment overrides. Unrecognized variables are ignored.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jaakkos/opencode-teams/internal/domain"
)

// Recognized environment variables.
const (
	EnvBackend       = "OPENCODE_TEAMS_BACKEND"
	EnvUseWindows    = "USE_TMUX_WINDOWS"
	EnvRootDir       = "OPENCODE_TEAMS_DIR"
	EnvDesktopBinary = "OPENCODE_DESKTOP_BIN"
	EnvConfigPath    = "OPENCODE_TEAMS_CONFIG"
)

// Config holds server configuration.
type Config struct {
	// RootDir is the on-disk tree root (default <home>/.opencode-teams).
	RootDir string `yaml:"root_dir"`
	// DefaultBackend is the spawn backend when a tool call names none.
	DefaultBackend string `yaml:"default_backend"`
	// UseTmuxWindows spawns terminal teammates into windows instead of panes.
	UseTmuxWindows bool `yaml:"use_tmux_windows"`
	// AgentBinary is the agent CLI invoked inside terminal panes.
	AgentBinary string `yaml:"agent_binary"`
	// DesktopBinary overrides desktop-app discovery.
	DesktopBinary string `yaml:"desktop_binary"`
	// DefaultModel resolves spawn requests with model "auto".
	DefaultModel string `yaml:"default_model"`
	// LogFile receives server logs ("none" disables the file).
	LogFile string `yaml:"log_file"`
	// JournalEnabled turns on the sqlite event journal.
	JournalEnabled bool `yaml:"journal_enabled"`
}

// DefaultConfig returns the defaults used when no config file is present.
func DefaultConfig() *Config {
	return &Config{
		DefaultBackend: string(domain.BackendTerminal),
		AgentBinary:    "opencode",
		DefaultModel:   "anthropic/claude-sonnet-4-5",
		LogFile:        filepath.Join(defaultRoot(), "server.log"),
		JournalEnabled: true,
	}
}

func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".opencode-teams")
}

// LoadConfig reads a YAML config file over the defaults: fields the file does
// not set keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Load resolves the effective config: OPENCODE_TEAMS_CONFIG file when set
// (falling back to defaults on failure), then environment overrides.
func Load(warn func(format string, args ...any)) *Config {
	cfg := DefaultConfig()
	if path := os.Getenv(EnvConfigPath); path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			if warn != nil {
				warn("Warning: failed to load config %s: %v, using defaults", path, err)
			}
		} else {
			cfg = loaded
		}
	}
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overlays the recognized environment variables onto cfg.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvBackend); v == string(domain.BackendTerminal) || v == string(domain.BackendDesktop) {
		c.DefaultBackend = v
	}
	if v := os.Getenv(EnvUseWindows); v != "" {
		c.UseTmuxWindows = parseBool(v)
	}
	if v := os.Getenv(EnvRootDir); v != "" {
		c.RootDir = v
	}
	if v := os.Getenv(EnvDesktopBinary); v != "" {
		c.DesktopBinary = v
	}
}

// JournalPath is the sqlite journal location under the root dir.
func (c *Config) JournalPath() string {
	root := c.RootDir
	if root == "" {
		root = defaultRoot()
	}
	return filepath.Join(root, "journal.sqlite")
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
