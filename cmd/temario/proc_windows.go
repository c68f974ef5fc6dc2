//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// configureDaemonProcess starts temariod in a new process group
func configureDaemonProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
