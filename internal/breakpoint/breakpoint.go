// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package breakpoint implements software breakpoints: a single INT3
// byte planted over the first byte of an instruction in the tracee's
// text, with the original byte saved for restore.
package breakpoint

import (
	"fmt"

	"github.com/minidbg/minidbg/arch"
)

// Memory is the word-sized tracee memory surface of the process
// controller.
type Memory interface {
	PeekWord(addr uint64) (uint64, error)
	PokeWord(addr, word uint64) error
}

// Breakpoint is a software breakpoint at one address of one tracee.
// It is constructed disabled.
type Breakpoint struct {
	mem  Memory
	addr uint64

	enabled   bool
	savedByte byte
}

// New returns a disabled breakpoint at addr.
func New(mem Memory, addr uint64) *Breakpoint {
	return &Breakpoint{mem: mem, addr: addr}
}

// Addr returns the breakpoint's target address.
func (b *Breakpoint) Addr() uint64 { return b.addr }

// Enabled reports whether the trap byte is currently planted.
func (b *Breakpoint) Enabled() bool { return b.enabled }

// SavedByte returns the original instruction byte. Valid only while
// the breakpoint is enabled.
func (b *Breakpoint) SavedByte() byte { return b.savedByte }

// Enable saves the byte at the target address and replaces it with the
// trap opcode. The upper seven bytes of the word are preserved. The
// tracee must be stopped.
func (b *Breakpoint) Enable() error {
	word, err := b.mem.PeekWord(b.addr)
	if err != nil {
		return fmt.Errorf("enable breakpoint at %#x: %w", b.addr, err)
	}
	b.savedByte = byte(word & 0xff)
	trapped := (word &^ 0xff) | uint64(arch.AMD64.BreakpointInstr)
	if err := b.mem.PokeWord(b.addr, trapped); err != nil {
		return fmt.Errorf("enable breakpoint at %#x: %w", b.addr, err)
	}
	b.enabled = true
	return nil
}

// Disable restores the saved instruction byte. The tracee must be
// stopped.
func (b *Breakpoint) Disable() error {
	word, err := b.mem.PeekWord(b.addr)
	if err != nil {
		return fmt.Errorf("disable breakpoint at %#x: %w", b.addr, err)
	}
	restored := (word &^ 0xff) | uint64(b.savedByte)
	if err := b.mem.PokeWord(b.addr, restored); err != nil {
		return fmt.Errorf("disable breakpoint at %#x: %w", b.addr, err)
	}
	b.enabled = false
	return nil
}
