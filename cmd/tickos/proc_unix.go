//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// configureDaemonProc puts a background daemon in its own session so it
// outlives the terminal that started it.
func configureDaemonProc(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
