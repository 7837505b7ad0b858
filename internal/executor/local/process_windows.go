//go:build windows

package local

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
