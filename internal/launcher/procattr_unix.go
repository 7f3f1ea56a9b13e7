//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// setProcGroupAttr puts the child in a new process group so keyboard
// signals sent to the terminal's foreground group do not reach it.
func setProcGroupAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
