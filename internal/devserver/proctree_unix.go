//go:build !windows

package devserver

import (
	"errors"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Terminator signals a process and all of its descendants. The supervisor
// depends on this as an injected capability so tests can observe signaling
// without touching real process trees.
type Terminator interface {
	Terminate(pid int, sig syscall.Signal) error
}

// TreeTerminator signals the full process tree rooted at pid: descendants
// first (the sst dev process spawns bundlers and build tools that hold ports
// and file locks), then the process group as a whole.
type TreeTerminator struct{}

func (TreeTerminator) Terminate(pid int, sig syscall.Signal) error {
	if p, err := gopsproc.NewProcess(int32(pid)); err == nil {
		if kids, err := p.Children(); err == nil {
			for _, k := range kids {
				signalTree(k, sig)
			}
		}
	}
	err := syscall.Kill(-pid, sig)
	if err != nil && errors.Is(err, syscall.ESRCH) {
		// group already gone; try the process directly
		err = syscall.Kill(pid, sig)
	}
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func signalTree(p *gopsproc.Process, sig syscall.Signal) {
	if kids, err := p.Children(); err == nil {
		for _, k := range kids {
			signalTree(k, sig)
		}
	}
	_ = syscall.Kill(int(p.Pid), sig)
}
