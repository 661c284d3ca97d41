// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debuginfo answers symbolic queries about an ELF executable
// with embedded DWARF: which function or source line a PC falls in,
// where a function's body begins, and which symbols carry a name.
package debuginfo

import (
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
)

// ErrNotFound reports that the debug information holds no answer for
// the requested PC, line, or name.
var ErrNotFound = errors.New("not found in debug info")

// Info holds the parsed ELF and DWARF of one executable.
type Info struct {
	path string
	elf  *elf.File
	data *dwarf.Data
}

// Load parses the executable at path.
func Load(path string) (*Info, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %v", path, err)
	}
	data, err := f.DWARF()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("load %s: no DWARF data: %v", path, err)
	}
	return &Info{path: path, elf: f, data: data}, nil
}

// Close releases the underlying ELF file.
func (i *Info) Close() error {
	return i.elf.Close()
}

// Function is a subprogram DIE together with its compilation unit and
// resolved PC range.
type Function struct {
	Entry *dwarf.Entry
	CU    *dwarf.Entry

	LowPC  uint64
	HighPC uint64
}

// Name returns the function's DW_AT_name, or the empty string.
func (f *Function) Name() string {
	name, _ := f.Entry.Val(dwarf.AttrName).(string)
	return name
}

// FunctionContaining returns the subprogram whose PC range contains pc.
// Compilation units are scanned in file order; the first match wins.
func (i *Info) FunctionContaining(pc uint64) (*Function, error) {
	r := i.data.Reader()
	for {
		cu, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("functionContaining: %v", err)
		}
		if cu == nil {
			break
		}
		if cu.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		if _, _, ok := i.entryContains(cu, pc); !ok {
			r.SkipChildren()
			continue
		}
		for {
			entry, err := r.Next()
			if err != nil {
				return nil, fmt.Errorf("functionContaining: %v", err)
			}
			if entry == nil || entry.Tag == 0 {
				break
			}
			if entry.Tag != dwarf.TagSubprogram {
				r.SkipChildren()
				continue
			}
			if low, high, ok := i.entryContains(entry, pc); ok {
				return &Function{Entry: entry, CU: cu, LowPC: low, HighPC: high}, nil
			}
			r.SkipChildren()
		}
	}
	return nil, fmt.Errorf("no function contains pc %#x: %w", pc, ErrNotFound)
}

// entryContains reports whether a PC range of entry contains pc, and if
// so returns that range. Ranges handles both DWARF2 high_pc addresses
// and DWARF4 high_pc-as-offset encodings.
func (i *Info) entryContains(entry *dwarf.Entry, pc uint64) (low, high uint64, ok bool) {
	ranges, err := i.data.Ranges(entry)
	if err != nil {
		return 0, 0, false
	}
	for _, rng := range ranges {
		if rng[0] <= pc && pc < rng[1] {
			return rng[0], rng[1], true
		}
	}
	return 0, 0, false
}

// LineEntryContaining returns the line-table entry for the statement
// containing pc, from the compilation unit whose range covers pc.
func (i *Info) LineEntryContaining(pc uint64) (dwarf.LineEntry, error) {
	var le dwarf.LineEntry
	r := i.data.Reader()
	cu, err := r.SeekPC(pc)
	if err != nil {
		return le, fmt.Errorf("no compilation unit for pc %#x: %w", pc, ErrNotFound)
	}
	lr, err := i.data.LineReader(cu)
	if err != nil || lr == nil {
		return le, fmt.Errorf("no line table for pc %#x: %w", pc, ErrNotFound)
	}
	if err := lr.SeekPC(pc, &le); err != nil {
		return le, fmt.Errorf("no line entry for pc %#x: %w", pc, ErrNotFound)
	}
	return le, nil
}

// LineEntryForLine returns the first is_stmt line entry matching line,
// scanning every compilation unit's line table in file order. A
// non-empty file must equal the DWARF-recorded path of the entry's
// file; no canonicalization is applied.
func (i *Info) LineEntryForLine(file string, line int) (dwarf.LineEntry, error) {
	var le dwarf.LineEntry
	r := i.data.Reader()
	for {
		cu, err := r.Next()
		if err != nil {
			return le, fmt.Errorf("lineEntryForLine: %v", err)
		}
		if cu == nil {
			break
		}
		if cu.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		r.SkipChildren()
		lr, err := i.data.LineReader(cu)
		if err != nil || lr == nil {
			continue
		}
		for {
			if err := lr.Next(&le); err != nil {
				break
			}
			if le.EndSequence || !le.IsStmt || le.Line != line {
				continue
			}
			if file != "" && le.File != nil && le.File.Name != file {
				continue
			}
			return le, nil
		}
	}
	return le, fmt.Errorf("no line entry for %s:%d: %w", file, line, ErrNotFound)
}

// FunctionLineEntries returns the line-table entries whose addresses
// lie within fn's PC range, in ascending address order.
func (i *Info) FunctionLineEntries(fn *Function) ([]dwarf.LineEntry, error) {
	lr, err := i.data.LineReader(fn.CU)
	if err != nil || lr == nil {
		return nil, fmt.Errorf("no line table for %s: %w", fn.Name(), ErrNotFound)
	}
	var out []dwarf.LineEntry
	var le dwarf.LineEntry
	for {
		if err := lr.Next(&le); err != nil {
			break
		}
		if le.EndSequence {
			continue
		}
		if fn.LowPC <= le.Address && le.Address < fn.HighPC {
			out = append(out, le)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no line entries for %s: %w", fn.Name(), ErrNotFound)
	}
	return out, nil
}

// FunctionEntryPoints returns, for every subprogram named name, the
// address of the line entry following the one at the function's low_pc.
// That skips the prologue, so a breakpoint planted there sees a
// finished stack frame.
func (i *Info) FunctionEntryPoints(name string) ([]uint64, error) {
	var addrs []uint64
	r := i.data.Reader()
	var cu *dwarf.Entry
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("functionEntryPoints: %v", err)
		}
		if entry == nil {
			break
		}
		switch entry.Tag {
		case dwarf.TagCompileUnit:
			cu = entry
		case dwarf.TagSubprogram:
			if cu == nil {
				continue
			}
			if fname, _ := entry.Val(dwarf.AttrName).(string); fname != name {
				continue
			}
			lowpc, ok := entry.Val(dwarf.AttrLowpc).(uint64)
			if !ok {
				continue
			}
			addr, err := i.skipPrologue(cu, lowpc)
			if err != nil {
				continue
			}
			addrs = append(addrs, addr)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no function named %q: %w", name, ErrNotFound)
	}
	return addrs, nil
}

// skipPrologue finds the line entry at lowpc in cu's line table and
// returns the address of the entry after it.
func (i *Info) skipPrologue(cu *dwarf.Entry, lowpc uint64) (uint64, error) {
	lr, err := i.data.LineReader(cu)
	if err != nil || lr == nil {
		return 0, fmt.Errorf("no line table: %w", ErrNotFound)
	}
	var le dwarf.LineEntry
	for {
		if err := lr.Next(&le); err != nil {
			return 0, fmt.Errorf("no line entry at %#x: %w", lowpc, ErrNotFound)
		}
		if le.EndSequence {
			continue
		}
		if le.Address == lowpc {
			break
		}
	}
	for {
		if err := lr.Next(&le); err != nil {
			return 0, fmt.Errorf("no line entry after %#x: %w", lowpc, ErrNotFound)
		}
		if !le.EndSequence {
			return le.Address, nil
		}
	}
}
