//go:build !windows

package transcode

import (
	"os"
	"syscall"
)

// setupProcessGroup puts the child in its own process group so teardown
// reaches anything it spawns.
func setupProcessGroup(cmd Commander) {
	cmd.SetSysProcAttr(&syscall.SysProcAttr{
		Setpgid: true,
	})
}

// killProcessGroup kills a process and its children
func killProcessGroup(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return syscall.Kill(-proc.Pid, syscall.SIGKILL)
}

func terminateProcess(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}

func pauseProcess(proc *os.Process) error {
	return proc.Signal(syscall.SIGSTOP)
}

func resumeProcess(proc *os.Process) error {
	return proc.Signal(syscall.SIGCONT)
}
