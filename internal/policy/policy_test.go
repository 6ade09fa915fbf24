package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jaakkos/opencode-teams/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DefaultBackend != string(domain.BackendTerminal) {
		t.Errorf("default backend = %q, want terminal", cfg.DefaultBackend)
	}
	if cfg.AgentBinary != "opencode" {
		t.Errorf("agent binary = %q, want opencode", cfg.AgentBinary)
	}
	if cfg.DefaultModel == "" {
		t.Error("no default model")
	}
	if !cfg.JournalEnabled {
		t.Error("journal disabled by default")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
root_dir: /var/teams
default_backend: desktop
use_tmux_windows: true
agent_binary: /usr/local/bin/opencode
default_model: moonshotai/kimi-k2.5
journal_enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RootDir != "/var/teams" {
		t.Errorf("root dir = %q", cfg.RootDir)
	}
	if cfg.DefaultBackend != "desktop" {
		t.Errorf("backend = %q", cfg.DefaultBackend)
	}
	if !cfg.UseTmuxWindows {
		t.Error("use_tmux_windows not read")
	}
	if cfg.DefaultModel != "moonshotai/kimi-k2.5" {
		t.Errorf("model = %q", cfg.DefaultModel)
	}
	if cfg.JournalEnabled {
		t.Error("journal_enabled not read")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvBackend, "desktop")
	t.Setenv(EnvUseWindows, "1")
	t.Setenv(EnvRootDir, "/custom/root")
	t.Setenv(EnvDesktopBinary, "/opt/OpenCode/opencode-desktop")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.DefaultBackend != "desktop" {
		t.Errorf("backend = %q", cfg.DefaultBackend)
	}
	if !cfg.UseTmuxWindows {
		t.Error("window mode not applied")
	}
	if cfg.RootDir != "/custom/root" {
		t.Errorf("root dir = %q", cfg.RootDir)
	}
	if cfg.DesktopBinary != "/opt/OpenCode/opencode-desktop" {
		t.Errorf("desktop binary = %q", cfg.DesktopBinary)
	}
}

func TestApplyEnvIgnoresInvalidBackend(t *testing.T) {
	t.Setenv(EnvBackend, "hologram")
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if cfg.DefaultBackend != string(domain.BackendTerminal) {
		t.Errorf("backend = %q, want terminal kept", cfg.DefaultBackend)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"1", true}, {"true", true}, {"YES", true}, {"on", true},
		{"0", false}, {"false", false}, {"", false}, {"maybe", false},
	}
	for _, tc := range tests {
		if got := parseBool(tc.input); got != tc.want {
			t.Errorf("parseBool(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestJournalPathUnderRoot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RootDir = "/custom/root"
	if got := cfg.JournalPath(); got != filepath.FromSlash("/custom/root/journal.sqlite") {
		t.Errorf("journal path = %q", got)
	}
}
