//go:build windows

package worker

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}

// terminateProcess kills the worker; Windows has no graceful signal for console children.
func terminateProcess(cmd *exec.Cmd, force bool) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
