// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debuginfo

import (
	"debug/elf"
	"errors"
)

// SymbolKind classifies an ELF symbol.
type SymbolKind int

const (
	SymNoType SymbolKind = iota
	SymObject
	SymFunc
	SymSection
	SymFile
)

// String is total over the closed kind set.
func (k SymbolKind) String() string {
	switch k {
	case SymObject:
		return "object"
	case SymFunc:
		return "func"
	case SymSection:
		return "section"
	case SymFile:
		return "file"
	default:
		return "notype"
	}
}

// Symbol is one ELF symbol-table entry, reduced to what the debugger
// reports.
type Symbol struct {
	Kind SymbolKind
	Name string
	Addr uint64
}

// symbolKind translates an ELF symbol type. Types outside the fixed
// table map to notype.
func symbolKind(t elf.SymType) SymbolKind {
	switch t {
	case elf.STT_OBJECT:
		return SymObject
	case elf.STT_FUNC:
		return SymFunc
	case elf.STT_SECTION:
		return SymSection
	case elf.STT_FILE:
		return SymFile
	default:
		return SymNoType
	}
}

// LookupSymbols returns every SYMTAB and DYNSYM entry whose name equals
// name. Results are produced on demand and never cached.
func (i *Info) LookupSymbols(name string) []Symbol {
	var out []Symbol
	collect := func(syms []elf.Symbol, err error) {
		if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
			return
		}
		for _, s := range syms {
			if s.Name != name {
				continue
			}
			out = append(out, Symbol{
				Kind: symbolKind(elf.ST_TYPE(s.Info)),
				Name: s.Name,
				Addr: s.Value,
			})
		}
	}
	collect(i.elf.Symbols())
	collect(i.elf.DynamicSymbols())
	return out
}
