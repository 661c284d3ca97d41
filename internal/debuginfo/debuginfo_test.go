// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debuginfo

import (
	"debug/elf"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFixture compiles the C test program with debug info and no PIE,
// so DWARF addresses equal runtime addresses. Skips when no C compiler
// is installed.
func buildFixture(t *testing.T) string {
	t.Helper()
	cc, err := exec.LookPath("gcc")
	if err != nil {
		t.Skip("gcc not found, skipping fixture-based test")
	}
	out := filepath.Join(t.TempDir(), "hello")
	cmd := exec.Command(cc, "-g", "-O0", "-no-pie", "-o", out, "testdata/hello.c")
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("compile fixture: %v\n%s", err, b)
	}
	return out
}

func loadFixture(t *testing.T) *Info {
	t.Helper()
	info, err := Load(buildFixture(t))
	require.NoError(t, err)
	t.Cleanup(func() { info.Close() })
	return info
}

func TestSymbolKindMapping(t *testing.T) {
	cases := []struct {
		in   elf.SymType
		want SymbolKind
	}{
		{elf.STT_NOTYPE, SymNoType},
		{elf.STT_OBJECT, SymObject},
		{elf.STT_FUNC, SymFunc},
		{elf.STT_SECTION, SymSection},
		{elf.STT_FILE, SymFile},
		// Outside the fixed table.
		{elf.STT_TLS, SymNoType},
		{elf.STT_LOOS, SymNoType},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, symbolKind(c.in), "type %v", c.in)
	}
}

func TestSymbolKindString(t *testing.T) {
	assert.Equal(t, "notype", SymNoType.String())
	assert.Equal(t, "object", SymObject.String())
	assert.Equal(t, "func", SymFunc.String())
	assert.Equal(t, "section", SymSection.String())
	assert.Equal(t, "file", SymFile.String())
	// Out-of-range values still stringify.
	assert.Equal(t, "notype", SymbolKind(99).String())
}

func TestLoadRejectsNonELF(t *testing.T) {
	_, err := Load("testdata/hello.c")
	assert.Error(t, err)
}

func TestLookupSymbols(t *testing.T) {
	info := loadFixture(t)

	syms := info.LookupSymbols("main")
	require.NotEmpty(t, syms)
	assert.Equal(t, SymFunc, syms[0].Kind)
	assert.Equal(t, "main", syms[0].Name)
	assert.NotZero(t, syms[0].Addr)

	assert.Empty(t, info.LookupSymbols("no_such_symbol"))
}

func TestFunctionEntryPoints(t *testing.T) {
	info := loadFixture(t)

	addrs, err := info.FunctionEntryPoints("f")
	require.NoError(t, err)
	require.Len(t, addrs, 1)

	// The prologue-skipped entry lies inside f, past its low_pc.
	syms := info.LookupSymbols("f")
	require.NotEmpty(t, syms)
	assert.Greater(t, addrs[0], syms[0].Addr)

	fn, err := info.FunctionContaining(addrs[0])
	require.NoError(t, err)
	assert.Equal(t, "f", fn.Name())

	_, err = info.FunctionEntryPoints("no_such_function")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFunctionContaining(t *testing.T) {
	info := loadFixture(t)

	for _, name := range []string{"main", "f", "g"} {
		addrs, err := info.FunctionEntryPoints(name)
		require.NoError(t, err, "entry points of %s", name)
		fn, err := info.FunctionContaining(addrs[0])
		require.NoError(t, err)
		assert.Equal(t, name, fn.Name())
		assert.Less(t, fn.LowPC, fn.HighPC)
	}

	_, err := info.FunctionContaining(0x1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFunctionLineEntries(t *testing.T) {
	info := loadFixture(t)

	addrs, err := info.FunctionEntryPoints("f")
	require.NoError(t, err)
	fn, err := info.FunctionContaining(addrs[0])
	require.NoError(t, err)

	entries, err := info.FunctionLineEntries(fn)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	last := uint64(0)
	for _, le := range entries {
		assert.GreaterOrEqual(t, le.Address, fn.LowPC)
		assert.Less(t, le.Address, fn.HighPC)
		assert.GreaterOrEqual(t, le.Address, last)
		last = le.Address
	}
}

func TestLineEntryContaining(t *testing.T) {
	info := loadFixture(t)

	addrs, err := info.FunctionEntryPoints("g")
	require.NoError(t, err)
	le, err := info.LineEntryContaining(addrs[0])
	require.NoError(t, err)
	require.NotNil(t, le.File)
	assert.Equal(t, "hello.c", filepath.Base(le.File.Name))
	assert.Greater(t, le.Line, 0)

	_, err = info.LineEntryContaining(0x1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLineEntryForLine(t *testing.T) {
	info := loadFixture(t)

	addrs, err := info.FunctionEntryPoints("f")
	require.NoError(t, err)
	at, err := info.LineEntryContaining(addrs[0])
	require.NoError(t, err)

	// Looking the same line back up by (file, line) lands on the same
	// statement.
	le, err := info.LineEntryForLine(at.File.Name, at.Line)
	require.NoError(t, err)
	assert.Equal(t, at.Line, le.Line)
	assert.True(t, le.IsStmt)

	// The recorded path must match exactly; a basename does not.
	_, err = info.LineEntryForLine("hello.c", at.Line)
	if at.File.Name != "hello.c" {
		assert.ErrorIs(t, err, ErrNotFound)
	}

	_, err = info.LineEntryForLine("", 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}
