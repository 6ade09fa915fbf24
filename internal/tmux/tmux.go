// Package tmux wraps the terminal multiplexer subprocess interface used by
// the terminal spawn backend. Every query runs with a 5 second timeout.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jaakkos/opencode-teams/internal/domain"
)

// commandTimeout bounds every tmux subprocess call.
const commandTimeout = 5 * time.Second

// Ops abstracts tmux pane operations for testing.
type Ops interface {
	SplitWindow(cwd, shellCommand string) (string, error)
	NewWindow(name, cwd, shellCommand string) (string, error)
	KillPane(paneID string) error
	PaneDead(paneID string) (bool, error)
	CapturePane(paneID string) (string, error)
}

// Real shells out to the installed tmux binary.
type Real struct{}

// InsideTmux reports whether the server itself runs inside a tmux session.
func InsideTmux() bool {
	return os.Getenv("TMUX") != ""
}

func run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "tmux", args...)
	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: tmux %s", domain.ErrTimeout, args[0])
	}
	if err != nil {
		return "", fmt.Errorf("%w: tmux %s: %s (%v)", domain.ErrSpawn, args[0], strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// SplitWindow splits a new pane in the current session running shellCommand
// in cwd and returns the new pane's id.
func (Real) SplitWindow(cwd, shellCommand string) (string, error) {
	return run("split-window", "-d", "-c", cwd, "-P", "-F", "#{pane_id}", shellCommand)
}

// NewWindow creates a new window instead of a pane (USE_TMUX_WINDOWS mode)
// and returns the id of its single pane.
func (Real) NewWindow(name, cwd, shellCommand string) (string, error) {
	return run("new-window", "-d", "-n", name, "-c", cwd, "-P", "-F", "#{pane_id}", shellCommand)
}

// KillPane kills the pane. "no such pane" style failures are swallowed:
// the pane being gone is the goal.
func (Real) KillPane(paneID string) error {
	_, err := run("kill-pane", "-t", paneID)
	if err != nil && !errors.Is(err, domain.ErrTimeout) {
		return nil
	}
	return err
}

// PaneDead reports the pane_dead flag for paneID. An absent pane reports dead.
func (Real) PaneDead(paneID string) (bool, error) {
	out, err := run("display-message", "-t", paneID, "-p", "#{pane_dead}")
	if err != nil {
		if errors.Is(err, domain.ErrTimeout) {
			return false, err
		}
		return true, nil
	}
	return out == "1", nil
}

// CapturePane returns the pane's visible buffer.
func (Real) CapturePane(paneID string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "tmux", "capture-pane", "-t", paneID, "-p")
	out, err := cmd.Output()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: tmux capture-pane", domain.ErrTimeout)
	}
	if err != nil {
		return "", fmt.Errorf("%w: tmux capture-pane: %v", domain.ErrSpawn, err)
	}
	return string(out), nil
}
