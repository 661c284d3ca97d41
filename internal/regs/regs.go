// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs catalogs the x86-64 user registers and provides
// symbolic access to the tracee's register block.
package regs

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// ErrUnknownRegister reports a register name with no catalog entry.
var ErrUnknownRegister = errors.New("unknown register")

// Reg identifies one register in the catalog.
type Reg int

// Catalog order follows the kernel user_regs_struct, so a dump reads
// the same as /proc/<pid>/... register listings and stays stable.
const (
	R15 Reg = iota
	R14
	R13
	R12
	Rbp
	Rbx
	R11
	R10
	R9
	R8
	Rax
	Rcx
	Rdx
	Rsi
	Rdi
	OrigRax
	Rip
	Cs
	Rflags
	Rsp
	Ss
	FsBase
	GsBase
	Ds
	Es
	Fs
	Gs
)

// Descriptor ties a Reg to its DWARF register number, user-visible
// name, and its slot in the ptrace register block.
type Descriptor struct {
	Reg      Reg
	DwarfNum int
	Name     string

	field func(*unix.PtraceRegs) *uint64
}

// Catalog lists every supported register in user_regs_struct order.
var Catalog = []Descriptor{
	{R15, 15, "r15", func(r *unix.PtraceRegs) *uint64 { return &r.R15 }},
	{R14, 14, "r14", func(r *unix.PtraceRegs) *uint64 { return &r.R14 }},
	{R13, 13, "r13", func(r *unix.PtraceRegs) *uint64 { return &r.R13 }},
	{R12, 12, "r12", func(r *unix.PtraceRegs) *uint64 { return &r.R12 }},
	{Rbp, 6, "rbp", func(r *unix.PtraceRegs) *uint64 { return &r.Rbp }},
	{Rbx, 3, "rbx", func(r *unix.PtraceRegs) *uint64 { return &r.Rbx }},
	{R11, 11, "r11", func(r *unix.PtraceRegs) *uint64 { return &r.R11 }},
	{R10, 10, "r10", func(r *unix.PtraceRegs) *uint64 { return &r.R10 }},
	{R9, 9, "r9", func(r *unix.PtraceRegs) *uint64 { return &r.R9 }},
	{R8, 8, "r8", func(r *unix.PtraceRegs) *uint64 { return &r.R8 }},
	{Rax, 0, "rax", func(r *unix.PtraceRegs) *uint64 { return &r.Rax }},
	{Rcx, 2, "rcx", func(r *unix.PtraceRegs) *uint64 { return &r.Rcx }},
	{Rdx, 1, "rdx", func(r *unix.PtraceRegs) *uint64 { return &r.Rdx }},
	{Rsi, 4, "rsi", func(r *unix.PtraceRegs) *uint64 { return &r.Rsi }},
	{Rdi, 5, "rdi", func(r *unix.PtraceRegs) *uint64 { return &r.Rdi }},
	{OrigRax, -1, "orig_rax", func(r *unix.PtraceRegs) *uint64 { return &r.Orig_rax }},
	{Rip, -1, "rip", func(r *unix.PtraceRegs) *uint64 { return &r.Rip }},
	{Cs, 51, "cs", func(r *unix.PtraceRegs) *uint64 { return &r.Cs }},
	{Rflags, 49, "rflags", func(r *unix.PtraceRegs) *uint64 { return &r.Eflags }},
	{Rsp, 7, "rsp", func(r *unix.PtraceRegs) *uint64 { return &r.Rsp }},
	{Ss, 52, "ss", func(r *unix.PtraceRegs) *uint64 { return &r.Ss }},
	{FsBase, 58, "fs_base", func(r *unix.PtraceRegs) *uint64 { return &r.Fs_base }},
	{GsBase, 59, "gs_base", func(r *unix.PtraceRegs) *uint64 { return &r.Gs_base }},
	{Ds, 53, "ds", func(r *unix.PtraceRegs) *uint64 { return &r.Ds }},
	{Es, 50, "es", func(r *unix.PtraceRegs) *uint64 { return &r.Es }},
	{Fs, 54, "fs", func(r *unix.PtraceRegs) *uint64 { return &r.Fs }},
	{Gs, 55, "gs", func(r *unix.PtraceRegs) *uint64 { return &r.Gs }},
}

var byName = func() map[string]Reg {
	m := make(map[string]Reg, len(Catalog))
	for _, d := range Catalog {
		m[d.Name] = d.Reg
	}
	return m
}()

// Name returns the catalog name of r.
func (r Reg) Name() string {
	return Catalog[r].Name
}

// FromName resolves a register by its catalog name. Lookup is
// case-sensitive.
func FromName(name string) (Reg, error) {
	r, ok := byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRegister, name)
	}
	return r, nil
}

// Value selects register r from a fetched register block.
func Value(regs *unix.PtraceRegs, r Reg) uint64 {
	return *Catalog[r].field(regs)
}

// SetValue sets register r in a register block. The block must still
// be written back to the tracee.
func SetValue(regs *unix.PtraceRegs, r Reg, v uint64) {
	*Catalog[r].field(regs) = v
}

// RegIO is the register transfer surface of the process controller.
type RegIO interface {
	GetRegs() (unix.PtraceRegs, error)
	SetRegs(*unix.PtraceRegs) error
}

// GetRegisterValue reads the full register block and selects r.
func GetRegisterValue(t RegIO, r Reg) (uint64, error) {
	regs, err := t.GetRegs()
	if err != nil {
		return 0, err
	}
	return Value(&regs, r), nil
}

// SetRegisterValue reads the register block, mutates r, and writes the
// block back.
func SetRegisterValue(t RegIO, r Reg, v uint64) error {
	regs, err := t.GetRegs()
	if err != nil {
		return err
	}
	SetValue(&regs, r, v)
	return t.SetRegs(&regs)
}

// GetPC reads the program counter (rip).
func GetPC(t RegIO) (uint64, error) {
	return GetRegisterValue(t, Rip)
}

// SetPC writes the program counter (rip).
func SetPC(t RegIO, pc uint64) error {
	return SetRegisterValue(t, Rip, pc)
}

// GetFP reads the frame pointer (rbp).
func GetFP(t RegIO) (uint64, error) {
	return GetRegisterValue(t, Rbp)
}

// Dump writes every register in catalog order, one per line, as the
// name followed by the 16-hex-digit zero-padded value.
func Dump(w io.Writer, regs *unix.PtraceRegs) {
	for _, d := range Catalog {
		fmt.Fprintf(w, "%-8s 0x%016x\n", d.Name, *d.field(regs))
	}
}
