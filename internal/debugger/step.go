// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugger

import (
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/minidbg/minidbg/arch"
	"github.com/minidbg/minidbg/internal/ptracer"
	"github.com/minidbg/minidbg/internal/regs"
)

// singleStepInstruction advances the tracee by exactly one instruction.
func (d *Debugger) singleStepInstruction() error {
	if err := d.proc.SingleStep(); err != nil {
		return err
	}
	return d.waitForSignal()
}

// singleStepInstructionWithBreakpointCheck steps one instruction,
// routing through the breakpoint-transparent path when the current PC
// carries a trap.
func (d *Debugger) singleStepInstructionWithBreakpointCheck() error {
	pc, err := regs.GetPC(d.proc)
	if err != nil {
		return err
	}
	if _, ok := d.breakpoints[pc]; ok {
		return d.stepOverBreakpoint()
	}
	return d.singleStepInstruction()
}

// stepInstruction is the stepi command: one machine instruction, then
// the decoded instruction and source context at the new PC.
func (d *Debugger) stepInstruction() error {
	if err := d.singleStepInstructionWithBreakpointCheck(); err != nil {
		return err
	}
	pc, err := regs.GetPC(d.proc)
	if err != nil {
		return err
	}
	d.printInstruction(pc)
	le, err := d.info.LineEntryContaining(pc)
	if err != nil {
		return err
	}
	d.printSource(le.File.Name, le.Line, 2)
	return nil
}

// printInstruction decodes and prints the instruction at pc. Best
// effort: memory or decode failures are silently dropped.
func (d *Debugger) printInstruction(pc uint64) {
	// An x86 instruction is at most 15 bytes; two words cover it.
	var code [16]byte
	for i := 0; i < 2; i++ {
		word, err := d.proc.PeekWord(pc + uint64(8*i))
		if err != nil {
			return
		}
		arch.AMD64.PutWord(code[8*i:8*i+8], word)
	}
	inst, err := x86asm.Decode(code[:], 64)
	if err != nil {
		return
	}
	fmt.Fprintf(d.out, "=> %#x: %s\n", pc, x86asm.GNUSyntax(inst, pc, nil))
}

// stepIn is the step command: single-step until the source line
// changes, then show where we are.
func (d *Debugger) stepIn() error {
	pc, err := regs.GetPC(d.proc)
	if err != nil {
		return err
	}
	start, err := d.info.LineEntryContaining(pc)
	if err != nil {
		return err
	}
	for {
		if err := d.singleStepInstructionWithBreakpointCheck(); err != nil {
			return err
		}
		pc, err = regs.GetPC(d.proc)
		if err != nil {
			return err
		}
		cur, err := d.info.LineEntryContaining(pc)
		if err != nil {
			return err
		}
		if cur.Line != start.Line {
			d.printSource(cur.File.Name, cur.Line, 2)
			return nil
		}
	}
}

// stepOver is the next command: run to the next source line of the
// enclosing function without entering calls. Temporary breakpoints go
// on every line-table entry of the function except the current one
// (other entries of the current line included) and on the return
// address; only the temporaries planted here are removed afterwards.
func (d *Debugger) stepOver() error {
	pc, err := regs.GetPC(d.proc)
	if err != nil {
		return err
	}
	fn, err := d.info.FunctionContaining(pc)
	if err != nil {
		return err
	}
	entries, err := d.info.FunctionLineEntries(fn)
	if err != nil {
		return err
	}
	start, err := d.info.LineEntryContaining(pc)
	if err != nil {
		return err
	}

	var temps []uint64
	plant := func(addr uint64) error {
		if _, exists := d.breakpoints[addr]; exists {
			return nil
		}
		if err := d.installBreakpoint(addr); err != nil {
			return err
		}
		temps = append(temps, addr)
		return nil
	}

	for _, le := range entries {
		if le.Address == start.Address {
			continue
		}
		if err := plant(le.Address); err != nil {
			return err
		}
	}
	ret, err := d.returnAddress()
	if err != nil {
		return err
	}
	if err := plant(ret); err != nil {
		return err
	}

	err = d.continueExecution()
	if traceeGone(err) {
		return err
	}
	for _, addr := range temps {
		if rmErr := d.removeBreakpoint(addr); rmErr != nil {
			return rmErr
		}
	}
	return err
}

// traceeGone reports errors after which the tracee can no longer be
// operated on, so breakpoint cleanup must be skipped.
func traceeGone(err error) bool {
	return errors.Is(err, errProcessExited) || errors.Is(err, ptracer.ErrTraceeUnavailable)
}

// stepOut is the finish command: run until the current function
// returns, using a temporary breakpoint at the return address.
func (d *Debugger) stepOut() error {
	ret, err := d.returnAddress()
	if err != nil {
		return err
	}
	temp := false
	if _, exists := d.breakpoints[ret]; !exists {
		if err := d.installBreakpoint(ret); err != nil {
			return err
		}
		temp = true
	}
	err = d.continueExecution()
	if traceeGone(err) {
		return err
	}
	if temp {
		if rmErr := d.removeBreakpoint(ret); rmErr != nil {
			return rmErr
		}
	}
	return err
}
