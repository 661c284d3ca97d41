// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch contains architecture-specific definitions for the
// debugged machine. Only linux/amd64 targets are supported.
package arch

import (
	"encoding/binary"
)

// Architecture defines the architecture-specific details for a given machine.
type Architecture struct {
	// BreakpointInstr is the trap opcode a software breakpoint plants
	// in the tracee's text.
	BreakpointInstr byte
	// BreakpointSize is the size of a breakpoint instruction, in bytes.
	BreakpointSize int
	// PointerSize is the size of a pointer, in bytes.
	PointerSize int
	// WordSize is the transfer unit of tracee memory access, in bytes.
	WordSize int
	// ByteOrder is the byte order for words and pointers.
	ByteOrder binary.ByteOrder
}

// Word decodes a tracee memory word from buf.
func (a *Architecture) Word(buf []byte) uint64 {
	if len(buf) != a.WordSize {
		panic("bad WordSize")
	}
	return a.ByteOrder.Uint64(buf)
}

// PutWord encodes a tracee memory word into buf.
func (a *Architecture) PutWord(buf []byte, w uint64) {
	if len(buf) != a.WordSize {
		panic("bad WordSize")
	}
	a.ByteOrder.PutUint64(buf, w)
}

// Uintptr decodes a tracee pointer from buf.
func (a *Architecture) Uintptr(buf []byte) uint64 {
	if len(buf) != a.PointerSize {
		panic("bad PointerSize")
	}
	return a.ByteOrder.Uint64(buf)
}

var AMD64 = Architecture{
	BreakpointInstr: 0xCC, // INT 3
	BreakpointSize:  1,
	PointerSize:     8,
	WordSize:        8,
	ByteOrder:       binary.LittleEndian,
}
