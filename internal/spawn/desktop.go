package spawn

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/jaakkos/opencode-teams/internal/domain"
)

// desktopBinaryNames are searched on PATH as the last discovery step.
var desktopBinaryNames = []string{"opencode-desktop", "OpenCode"}

// desktopInstallPaths lists the known install locations per OS.
func desktopInstallPaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/OpenCode.app/Contents/MacOS/OpenCode",
			filepath.Join(os.Getenv("HOME"), "Applications", "OpenCode.app", "Contents", "MacOS", "OpenCode"),
		}
	case "windows":
		return []string{
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Programs", "OpenCode", "OpenCode.exe"),
			filepath.Join(os.Getenv("PROGRAMFILES"), "OpenCode", "OpenCode.exe"),
		}
	default:
		return []string{
			"/usr/local/bin/opencode-desktop",
			"/opt/OpenCode/opencode-desktop",
			filepath.Join(os.Getenv("HOME"), ".local", "bin", "opencode-desktop"),
		}
	}
}

// discoverDesktopBinary resolves the desktop app binary: config/env
// override first, then known install paths, then the executable search path.
func (s *Spawner) discoverDesktopBinary() (string, error) {
	if s.cfg.DesktopBinary != "" {
		if _, err := os.Stat(s.cfg.DesktopBinary); err != nil {
			return "", fmt.Errorf("%w: desktop binary override %s: %v", domain.ErrSpawn, s.cfg.DesktopBinary, err)
		}
		return s.cfg.DesktopBinary, nil
	}
	for _, p := range desktopInstallPaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	for _, name := range desktopBinaryNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: desktop binary not found", domain.ErrSpawn)
}

// launchDesktop starts the desktop app detached (new session on POSIX, new
// process group on Windows) with the identity file on the command line, and
// returns its PID. The server never reads its stdout.
func (s *Spawner) launchDesktop(identityPath string) (int, error) {
	bin, err := s.discoverDesktopBinary()
	if err != nil {
		return 0, err
	}
	cmd := exec.Command(bin, identityPath)
	cmd.SysProcAttr = detachAttr()
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: launch %s: %v", domain.ErrSpawn, bin, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		s.logger.Printf("Warning: release desktop process %d: %v", pid, err)
	}
	return pid, nil
}
