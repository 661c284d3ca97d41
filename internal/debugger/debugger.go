// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debugger is the tracer core: it owns the breakpoint table,
// orchestrates process control against the debug information, and
// drives the interactive command loop.
package debugger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/minidbg/minidbg/internal/breakpoint"
	"github.com/minidbg/minidbg/internal/debuginfo"
	"github.com/minidbg/minidbg/internal/ptracer"
	"github.com/minidbg/minidbg/internal/regs"
)

var (
	// ErrUnknownCommand reports a dispatch miss. The message doubles
	// as the user-visible diagnostic.
	ErrUnknownCommand = errors.New("Unknown command")

	// ErrMalformedArgument reports a missing argument or a failed
	// numeric parse.
	ErrMalformedArgument = errors.New("malformed argument")

	// errProcessExited ends the command loop once the tracee is gone.
	errProcessExited = errors.New("process exited")
)

// Process is the tracee-control surface the core needs. A
// *ptracer.Tracer satisfies it.
type Process interface {
	Pid() int
	Cont() error
	SingleStep() error
	WaitStop() (unix.WaitStatus, error)
	GetRegs() (unix.PtraceRegs, error)
	SetRegs(*unix.PtraceRegs) error
	PeekWord(addr uint64) (uint64, error)
	PokeWord(addr, word uint64) error
	SigInfo() (ptracer.Siginfo, error)
}

// LineSource yields one command line per call. io.EOF ends the loop.
// A *readline.Instance satisfies it.
type LineSource interface {
	Readline() (string, error)
}

// Debugger holds one debug session: the spawned tracee, its parsed
// debug information, and the breakpoint table.
type Debugger struct {
	prog    string
	proc    Process
	info    *debuginfo.Info
	log     logrus.FieldLogger

	breakpoints map[uint64]*breakpoint.Breakpoint

	out    io.Writer
	errOut io.Writer

	quitting bool
}

// New returns a Debugger for a freshly spawned, not yet awaited tracee.
func New(prog string, proc Process, info *debuginfo.Info, log logrus.FieldLogger) *Debugger {
	return &Debugger{
		prog:        prog,
		proc:        proc,
		info:        info,
		log:         log,
		breakpoints: make(map[uint64]*breakpoint.Breakpoint),
		out:         os.Stdout,
		errOut:      os.Stderr,
	}
}

// Run consumes the tracee's initial exec stop, then reads and executes
// commands until end of input, the quit command, or tracee loss.
func (d *Debugger) Run(lines LineSource) error {
	if _, err := d.proc.WaitStop(); err != nil {
		return err
	}
	for {
		line, err := lines.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		err = d.HandleCommand(line)
		switch {
		case err == nil:
		case errors.Is(err, errProcessExited):
			return nil
		case errors.Is(err, ptracer.ErrTraceeUnavailable):
			fmt.Fprintln(d.errOut, err)
			return err
		default:
			fmt.Fprintln(d.errOut, err)
		}
		if d.quitting {
			return nil
		}
	}
}

// continueExecution resumes the tracee, stepping over a breakpoint at
// the current PC first so the displaced instruction runs.
func (d *Debugger) continueExecution() error {
	if err := d.stepOverBreakpoint(); err != nil {
		return err
	}
	if err := d.proc.Cont(); err != nil {
		return err
	}
	return d.waitForSignal()
}

// stepOverBreakpoint makes a breakpoint under the current PC
// transparent: disable, execute the original instruction with a single
// step, re-enable. No-op when PC carries no enabled breakpoint.
func (d *Debugger) stepOverBreakpoint() error {
	pc, err := regs.GetPC(d.proc)
	if err != nil {
		return err
	}
	bp, ok := d.breakpoints[pc]
	if !ok || !bp.Enabled() {
		return nil
	}
	if err := bp.Disable(); err != nil {
		return err
	}
	if err := d.proc.SingleStep(); err != nil {
		return err
	}
	if err := d.waitForSignal(); err != nil {
		return err
	}
	return bp.Enable()
}

// stopKind classifies what a wait status plus signal info mean for the
// session.
type stopKind int

const (
	stopBreakpoint stopKind = iota
	stopStepComplete
	stopSegfault
	stopOther
)

func classifyTrap(si ptracer.Siginfo) stopKind {
	switch si.Code {
	case ptracer.SIKernel, ptracer.TrapBrkpt:
		return stopBreakpoint
	case ptracer.TrapTrace:
		return stopStepComplete
	default:
		return stopOther
	}
}

// waitForSignal blocks for the next tracee stop and dispatches on the
// delivered signal. After it returns the tracee is stopped (or gone)
// and PC names the next instruction as the user perceives it.
func (d *Debugger) waitForSignal() error {
	status, err := d.proc.WaitStop()
	if err != nil {
		return err
	}
	if status.Exited() {
		fmt.Fprintf(d.out, "Process %d exited with status %d\n", d.proc.Pid(), status.ExitStatus())
		return errProcessExited
	}
	if status.Signaled() {
		fmt.Fprintf(d.out, "Process %d killed by signal %s\n", d.proc.Pid(), unix.SignalName(status.Signal()))
		return errProcessExited
	}
	si, err := d.proc.SigInfo()
	if err != nil {
		return err
	}
	switch syscall.Signal(si.Signo) {
	case unix.SIGTRAP:
		return d.handleSigtrap(si)
	case unix.SIGSEGV:
		fmt.Fprintf(d.out, "Segfault, si_code %d\n", si.Code)
		return nil
	default:
		fmt.Fprintf(d.out, "Got signal %s\n", unix.SignalName(syscall.Signal(si.Signo)))
		return nil
	}
}

// handleSigtrap deals with debug traps. On a software breakpoint the
// tracee's PC points one past the trap byte; rewinding it by one is
// what keeps repeated continues from skipping the displaced
// instruction.
func (d *Debugger) handleSigtrap(si ptracer.Siginfo) error {
	switch classifyTrap(si) {
	case stopBreakpoint:
		pc, err := regs.GetPC(d.proc)
		if err != nil {
			return err
		}
		pc -= 1
		if err := regs.SetPC(d.proc, pc); err != nil {
			return err
		}
		fmt.Fprintf(d.out, "Hit breakpoint at address %#x\n", pc)
		le, err := d.info.LineEntryContaining(pc)
		if err != nil {
			return err
		}
		d.printSource(le.File.Name, le.Line, 2)
		return nil
	case stopStepComplete:
		// Single-step completion; nothing to report.
		return nil
	default:
		d.log.WithField("si_code", si.Code).Debug("unhandled SIGTRAP code")
		return nil
	}
}

// setBreakpointAtAddress installs and arms a breakpoint, announcing the
// address. An address already holding a breakpoint keeps its existing
// entry.
func (d *Debugger) setBreakpointAtAddress(addr uint64) error {
	fmt.Fprintf(d.out, "Set breakpoint at address %#x\n", addr)
	if _, ok := d.breakpoints[addr]; ok {
		return nil
	}
	return d.installBreakpoint(addr)
}

// installBreakpoint arms a breakpoint at addr without announcing it.
// Used for the temporaries the stepping commands plant.
func (d *Debugger) installBreakpoint(addr uint64) error {
	bp := breakpoint.New(d.proc, addr)
	if err := bp.Enable(); err != nil {
		return err
	}
	d.breakpoints[addr] = bp
	d.log.WithField("addr", fmt.Sprintf("%#x", addr)).Debug("breakpoint armed")
	return nil
}

// setBreakpointAtFunction plants a breakpoint at the prologue-skipped
// entry of every function with the given name.
func (d *Debugger) setBreakpointAtFunction(name string) error {
	addrs, err := d.info.FunctionEntryPoints(name)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		if err := d.setBreakpointAtAddress(addr); err != nil {
			return err
		}
	}
	return nil
}

// setBreakpointAtSourceLine plants a breakpoint at the first statement
// entry matching file:line.
func (d *Debugger) setBreakpointAtSourceLine(file string, line int) error {
	le, err := d.info.LineEntryForLine(file, line)
	if err != nil {
		return err
	}
	return d.setBreakpointAtAddress(le.Address)
}

// removeBreakpoint disables a breakpoint if armed and erases it from
// the table.
func (d *Debugger) removeBreakpoint(addr uint64) error {
	bp, ok := d.breakpoints[addr]
	if !ok {
		return fmt.Errorf("no breakpoint at %#x", addr)
	}
	if bp.Enabled() {
		if err := bp.Disable(); err != nil {
			return err
		}
	}
	delete(d.breakpoints, addr)
	return nil
}

// dumpRegisters prints the whole catalog in declared order.
func (d *Debugger) dumpRegisters() error {
	block, err := d.proc.GetRegs()
	if err != nil {
		return err
	}
	regs.Dump(d.out, &block)
	return nil
}

// readRegister prints one register by name.
func (d *Debugger) readRegister(name string) error {
	r, err := regs.FromName(name)
	if err != nil {
		return err
	}
	v, err := regs.GetRegisterValue(d.proc, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "%s %#x\n", name, v)
	return nil
}

// writeRegister sets one register by name.
func (d *Debugger) writeRegister(name string, v uint64) error {
	r, err := regs.FromName(name)
	if err != nil {
		return err
	}
	return regs.SetRegisterValue(d.proc, r, v)
}

// readMemory prints the word at addr.
func (d *Debugger) readMemory(addr uint64) error {
	word, err := d.proc.PeekWord(addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "%#016x\n", word)
	return nil
}

// writeMemory pokes a word at addr.
func (d *Debugger) writeMemory(addr, word uint64) error {
	return d.proc.PokeWord(addr, word)
}

// printSymbols lists all symbol-table entries matching name.
func (d *Debugger) printSymbols(name string) {
	for _, sym := range d.info.LookupSymbols(name) {
		fmt.Fprintf(d.out, "%s %s %#x\n", sym.Name, sym.Kind, sym.Addr)
	}
}

// returnAddress reads the caller's return address from the current
// frame. In unoptimized code [rbp+8] holds it.
func (d *Debugger) returnAddress() (uint64, error) {
	fp, err := regs.GetFP(d.proc)
	if err != nil {
		return 0, err
	}
	return d.proc.PeekWord(fp + 8)
}

// printBacktrace walks the frame-pointer chain, naming each function
// until main.
func (d *Debugger) printBacktrace() error {
	frame := 0
	output := func(fn *debuginfo.Function) {
		fmt.Fprintf(d.out, "frame #%d: %#x %s\n", frame, fn.LowPC, fn.Name())
		frame++
	}

	pc, err := regs.GetPC(d.proc)
	if err != nil {
		return err
	}
	fn, err := d.info.FunctionContaining(pc)
	if err != nil {
		return err
	}
	output(fn)

	fp, err := regs.GetFP(d.proc)
	if err != nil {
		return err
	}
	for fn.Name() != "main" {
		ret, err := d.proc.PeekWord(fp + 8)
		if err != nil {
			return err
		}
		fn, err = d.info.FunctionContaining(ret)
		if err != nil {
			return err
		}
		output(fn)
		fp, err = d.proc.PeekWord(fp)
		if err != nil {
			return err
		}
	}
	return nil
}
