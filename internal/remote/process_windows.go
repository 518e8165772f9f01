//go:build windows

package remote

import (
	"os/exec"
	"syscall"
)

// configureProcAttr starts the command in a new process group. Cancellation
// falls back to exec's default of killing the process.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
