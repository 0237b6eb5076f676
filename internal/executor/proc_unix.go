//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

// setupProcessControl puts the child in its own process group and arranges
// for context cancellation to kill the whole group, not just the leader.
// The CLI spawns node workers that would otherwise survive cancellation.
func setupProcessControl(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
