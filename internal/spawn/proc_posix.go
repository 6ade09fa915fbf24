//go:build !windows

package spawn

import (
	"errors"
	"syscall"
)

// detachAttr starts the desktop app in its own session so it survives the
// server and owns no controlling terminal.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// processAlive sends signal 0 to test PID liveness.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// terminateProcess sends SIGTERM; an already-dead process is a success.
func terminateProcess(pid int) error {
	err := syscall.Kill(pid, syscall.SIGTERM)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
