//go:build !windows

package execution

import (
	"os/exec"
	"syscall"
)

// setPlatformSpecificAttrs starts the command in its own process group and
// makes cancellation kill that group rather than the direct child only.
func setPlatformSpecificAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
