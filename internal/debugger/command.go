// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugger

import (
	"fmt"
	"strconv"
	"strings"
)

// isPrefix reports whether s is a non-empty prefix of the canonical
// command name, so "c" and "cont" both select "continue".
func isPrefix(s, of string) bool {
	return s != "" && strings.HasPrefix(of, s)
}

// parseAddress parses a 0x-prefixed hexadecimal address. Exactly the
// first two characters are skipped before conversion.
func parseAddress(s string) (uint64, error) {
	if len(s) < 3 || !strings.HasPrefix(s, "0x") {
		return 0, fmt.Errorf("%w: %q is not a 0x-prefixed address", ErrMalformedArgument, s)
	}
	addr, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMalformedArgument, s, err)
	}
	return addr, nil
}

// HandleCommand tokenizes one input line and dispatches it. All
// recoverable failures come back as errors for the loop to report; the
// tracee stays in its current state.
func (d *Debugger) HandleCommand(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd := args[0]

	switch {
	case isPrefix(cmd, "continue"):
		return d.continueExecution()

	case isPrefix(cmd, "break"):
		if len(args) < 2 {
			return fmt.Errorf("%w: break needs an address, function, or <file>:<line>", ErrMalformedArgument)
		}
		return d.handleBreak(args[1])

	case isPrefix(cmd, "delete"):
		if len(args) < 2 {
			return fmt.Errorf("%w: delete needs a breakpoint address", ErrMalformedArgument)
		}
		addr, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		return d.removeBreakpoint(addr)

	// "stepi" needs its full name; every shorter prefix of "step"
	// selects the source-level step.
	case cmd == "stepi":
		return d.stepInstruction()

	case isPrefix(cmd, "step"):
		return d.stepIn()

	case isPrefix(cmd, "next"):
		return d.stepOver()

	case isPrefix(cmd, "finish"):
		return d.stepOut()

	case isPrefix(cmd, "register"):
		return d.handleRegister(args[1:])

	case isPrefix(cmd, "memory"):
		return d.handleMemory(args[1:])

	case isPrefix(cmd, "symbol"):
		if len(args) < 2 {
			return fmt.Errorf("%w: symbol needs a name", ErrMalformedArgument)
		}
		d.printSymbols(args[1])
		return nil

	case isPrefix(cmd, "backtrace"):
		return d.printBacktrace()

	case isPrefix(cmd, "quit"):
		d.quitting = true
		return nil

	default:
		return ErrUnknownCommand
	}
}

// handleBreak picks the breakpoint form by shape: a 0x prefix is an
// address, a colon marks <file>:<line>, anything else is a function
// name.
func (d *Debugger) handleBreak(arg string) error {
	switch {
	case strings.HasPrefix(arg, "0x"):
		addr, err := parseAddress(arg)
		if err != nil {
			return err
		}
		return d.setBreakpointAtAddress(addr)

	case strings.Contains(arg, ":"):
		idx := strings.LastIndex(arg, ":")
		file, lineStr := arg[:idx], arg[idx+1:]
		line, err := strconv.Atoi(lineStr)
		if err != nil {
			return fmt.Errorf("%w: bad line number %q", ErrMalformedArgument, lineStr)
		}
		return d.setBreakpointAtSourceLine(file, line)

	default:
		return d.setBreakpointAtFunction(arg)
	}
}

func (d *Debugger) handleRegister(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: register needs a subcommand (dump, read, write)", ErrMalformedArgument)
	}
	switch {
	case isPrefix(args[0], "dump"):
		return d.dumpRegisters()

	case isPrefix(args[0], "read"):
		if len(args) < 2 {
			return fmt.Errorf("%w: register read needs a name", ErrMalformedArgument)
		}
		return d.readRegister(args[1])

	case isPrefix(args[0], "write"):
		if len(args) < 3 {
			return fmt.Errorf("%w: register write needs a name and a 0x value", ErrMalformedArgument)
		}
		val, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		return d.writeRegister(args[1], val)

	default:
		return ErrUnknownCommand
	}
}

func (d *Debugger) handleMemory(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: memory needs a subcommand (read, write)", ErrMalformedArgument)
	}
	switch {
	case isPrefix(args[0], "read"):
		if len(args) < 2 {
			return fmt.Errorf("%w: memory read needs a 0x address", ErrMalformedArgument)
		}
		addr, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		return d.readMemory(addr)

	case isPrefix(args[0], "write"):
		if len(args) < 3 {
			return fmt.Errorf("%w: memory write needs a 0x address and a 0x value", ErrMalformedArgument)
		}
		addr, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		val, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		return d.writeMemory(addr, val)

	default:
		return ErrUnknownCommand
	}
}
