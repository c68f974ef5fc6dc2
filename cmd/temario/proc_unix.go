//go:build unix

package main

import (
	"os/exec"
	"syscall"
)

// configureDaemonProcess puts temariod in its own process group so it
// outlives the CLI and ignores its terminal signals
func configureDaemonProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
