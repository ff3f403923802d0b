//go:build !unix

package recorder

import (
	"os"
	"os/exec"
)

// setProcessGroup is a no-op where process groups are not available.
func setProcessGroup(cmd *exec.Cmd) {}

// terminateGroup kills the recorder process; there is no graceful signal.
func terminateGroup(pid int) error {
	return killGroup(pid)
}

// killGroup kills the recorder process.
func killGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}
