//go:build windows

package docker

import "fmt"

func killPID(pid int) error { return fmt.Errorf("killing Docker exec processes is not supported on windows") }
