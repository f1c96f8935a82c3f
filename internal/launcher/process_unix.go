//go:build !windows

package launcher

import (
	"os"
	"os/exec"
	"syscall"
)

// detach starts the child in its own session so closing the parent's
// terminal does not deliver SIGHUP to it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// terminate asks the child to shut down gracefully.
func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
