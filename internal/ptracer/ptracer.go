// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ptracer drives a traced child process through the ptrace
// syscall family. It owns the narrow set of operations the debugger
// needs: spawn, resume, single-step, wait, register and memory
// transfer, and signal inspection.
//
// The kernel requires every ptrace request to come from the thread
// that attached to the tracee. All requests are therefore funneled
// through one dedicated OS-locked goroutine.
package ptracer

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/minidbg/minidbg/arch"
)

// ErrTraceeUnavailable reports that the traced process is gone or that
// the kernel refused the request. There is no recovery; the session
// terminates.
var ErrTraceeUnavailable = errors.New("tracee unavailable")

// Tracer issues ptrace requests against a single child process.
type Tracer struct {
	arch arch.Architecture
	log  logrus.FieldLogger

	fc chan func() error
	ec chan error

	proc *os.Process
	pid  int
}

// New returns a Tracer ready to spawn a child. All of its ptrace
// traffic runs on one locked OS thread.
func New(log logrus.FieldLogger) *Tracer {
	t := &Tracer{
		arch: arch.AMD64,
		log:  log,
		fc:   make(chan func() error),
		ec:   make(chan error),
	}
	go ptraceRun(t.fc, t.ec)
	return t
}

// ptraceRun runs all the closures from fc on a dedicated OS thread. Errors
// are returned on ec. Both channels must be unbuffered, to ensure that the
// resultant error is sent back to the same goroutine that sent the closure.
func ptraceRun(fc chan func() error, ec chan error) {
	if cap(fc) != 0 || cap(ec) != 0 {
		panic("ptraceRun was given buffered channels")
	}
	runtime.LockOSThread()
	for f := range fc {
		ec <- f()
	}
}

func (t *Tracer) do(f func() error) error {
	t.fc <- f
	return <-t.ec
}

// StartProcess spawns path under tracing with the given arguments and
// the parent's standard streams. The child stops at its first
// instruction; the caller must consume that stop with WaitStop.
func (t *Tracer) StartProcess(path string, argv []string) error {
	err := t.do(func() error {
		proc, err := os.StartProcess(path, argv, &os.ProcAttr{
			Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
			Sys: &syscall.SysProcAttr{
				Ptrace:    true,
				Pdeathsig: unix.SIGKILL,
			},
		})
		if err != nil {
			return err
		}
		t.proc = proc
		t.pid = proc.Pid
		return nil
	})
	if err != nil {
		return fmt.Errorf("start %s: %w", path, err)
	}
	t.log.WithFields(logrus.Fields{"path": path, "pid": t.pid}).Debug("tracee spawned")
	return nil
}

// Pid returns the process ID of the tracee.
func (t *Tracer) Pid() int { return t.pid }

// Kill forcibly terminates the tracee. Used on session teardown; the
// normal command loop lets the tracee run to its own exit.
func (t *Tracer) Kill() error {
	if t.proc == nil {
		return nil
	}
	return t.proc.Kill()
}

// Cont resumes the tracee. It does not wait for the next stop.
func (t *Tracer) Cont() error {
	err := t.do(func() error {
		return unix.PtraceCont(t.pid, 0)
	})
	if err != nil {
		return t.traceeErr("ptraceCont", err)
	}
	t.log.Debug("tracee resumed")
	return nil
}

// SingleStep executes exactly one instruction in the tracee. It does
// not wait for the resulting stop.
func (t *Tracer) SingleStep() error {
	err := t.do(func() error {
		return unix.PtraceSingleStep(t.pid)
	})
	if err != nil {
		return t.traceeErr("ptraceSingleStep", err)
	}
	return nil
}

// WaitStop blocks until the tracee stops or exits and returns the wait
// status.
func (t *Tracer) WaitStop() (unix.WaitStatus, error) {
	var status unix.WaitStatus
	err := t.do(func() error {
		_, err := unix.Wait4(t.pid, &status, unix.WALL, nil)
		return err
	})
	if err != nil {
		return status, t.traceeErr("wait4", err)
	}
	t.log.WithField("status", fmt.Sprintf("%#x", status)).Debug("tracee stopped")
	return status, nil
}

// GetRegs reads the tracee's user register block.
func (t *Tracer) GetRegs() (unix.PtraceRegs, error) {
	var regs unix.PtraceRegs
	err := t.do(func() error {
		return unix.PtraceGetRegs(t.pid, &regs)
	})
	if err != nil {
		return regs, t.traceeErr("ptraceGetRegs", err)
	}
	return regs, nil
}

// SetRegs writes the tracee's user register block.
func (t *Tracer) SetRegs(regs *unix.PtraceRegs) error {
	err := t.do(func() error {
		return unix.PtraceSetRegs(t.pid, regs)
	})
	if err != nil {
		return t.traceeErr("ptraceSetRegs", err)
	}
	return nil
}

// PeekWord reads the 8-byte word at addr in the tracee's memory.
func (t *Tracer) PeekWord(addr uint64) (uint64, error) {
	buf := make([]byte, t.arch.WordSize)
	err := t.do(func() error {
		n, err := unix.PtracePeekData(t.pid, uintptr(addr), buf)
		if err != nil {
			return err
		}
		if n != len(buf) {
			return fmt.Errorf("peeked %d bytes, want %d", n, len(buf))
		}
		return nil
	})
	if err != nil {
		return 0, t.traceeErr("ptracePeek", err)
	}
	return t.arch.Word(buf), nil
}

// PokeWord writes the 8-byte word at addr in the tracee's memory.
func (t *Tracer) PokeWord(addr, word uint64) error {
	buf := make([]byte, t.arch.WordSize)
	t.arch.PutWord(buf, word)
	err := t.do(func() error {
		n, err := unix.PtracePokeData(t.pid, uintptr(addr), buf)
		if err != nil {
			return err
		}
		if n != len(buf) {
			return fmt.Errorf("poked %d bytes, want %d", n, len(buf))
		}
		return nil
	})
	if err != nil {
		return t.traceeErr("ptracePoke", err)
	}
	return nil
}

// traceeErr wraps err with the failed request name. Errors that mean
// the tracee is gone or off-limits are folded into ErrTraceeUnavailable.
func (t *Tracer) traceeErr(op string, err error) error {
	if errors.Is(err, unix.ESRCH) || errors.Is(err, unix.EPERM) {
		return fmt.Errorf("%s: %w: %v", op, ErrTraceeUnavailable, err)
	}
	return fmt.Errorf("%s: %v", op, err)
}
