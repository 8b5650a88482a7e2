//go:build windows

package process

import (
	"os"
	"os/exec"
)

// Windows has no process groups reachable through os/exec; the child
// itself is killed and descendants are left to the job's lifetime.
func setProcessGroup(*exec.Cmd) {}

func interruptGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

func killGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
