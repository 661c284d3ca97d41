// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package breakpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMemory is a sparse word-addressed memory standing in for a
// stopped tracee.
type fakeMemory map[uint64]uint64

func (m fakeMemory) PeekWord(addr uint64) (uint64, error) { return m[addr], nil }
func (m fakeMemory) PokeWord(addr, word uint64) error     { m[addr] = word; return nil }

func TestEnablePlantsTrapByte(t *testing.T) {
	const addr = 0x401000
	mem := fakeMemory{addr: 0x1122334455667788}

	bp := New(mem, addr)
	assert.False(t, bp.Enabled())

	require.NoError(t, bp.Enable())
	assert.True(t, bp.Enabled())
	assert.Equal(t, byte(0x88), bp.SavedByte())
	// Low byte is the trap opcode, upper seven bytes untouched.
	assert.Equal(t, uint64(0x11223344556677cc), mem[addr])
}

func TestDisableRestoresOriginalByte(t *testing.T) {
	const addr = 0x401000
	mem := fakeMemory{addr: 0x1122334455667788}

	bp := New(mem, addr)
	require.NoError(t, bp.Enable())
	require.NoError(t, bp.Disable())

	assert.False(t, bp.Enabled())
	assert.Equal(t, uint64(0x1122334455667788), mem[addr])
}

func TestEnableDisableCycleIsIdempotent(t *testing.T) {
	const addr = 0x8049000
	mem := fakeMemory{addr: 0xcafebabe55aa0042}

	bp := New(mem, addr)
	for i := 0; i < 3; i++ {
		require.NoError(t, bp.Enable())
		assert.Equal(t, byte(0x42), bp.SavedByte())
		assert.Equal(t, uint64(0xcafebabe55aa00cc), mem[addr])
		require.NoError(t, bp.Disable())
		assert.Equal(t, uint64(0xcafebabe55aa0042), mem[addr])
	}
}

func TestEnableOverTrapByte(t *testing.T) {
	// An instruction whose first byte already is 0xCC round-trips too;
	// the saved byte is simply 0xCC.
	const addr = 0x400000
	mem := fakeMemory{addr: 0x00000000000000cc}

	bp := New(mem, addr)
	require.NoError(t, bp.Enable())
	assert.Equal(t, byte(0xcc), bp.SavedByte())
	require.NoError(t, bp.Disable())
	assert.Equal(t, uint64(0xcc), mem[addr])
}
