//go:build windows

package transcode

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

func setupProcessGroup(cmd Commander) {
	cmd.SetSysProcAttr(&syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	})
}

// killProcessGroup terminates the process tree with taskkill
func killProcessGroup(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	kill := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(proc.Pid))
	if err := kill.Run(); err != nil {
		return proc.Kill()
	}
	return nil
}

// terminateProcess has no graceful variant on Windows.
func terminateProcess(proc *os.Process) error {
	return proc.Kill()
}

func pauseProcess(proc *os.Process) error {
	return errors.ErrUnsupported
}

func resumeProcess(proc *os.Process) error {
	return errors.ErrUnsupported
}
