// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sourceFixture = `one
two
three
four
five
six
seven
`

func renderSource(line, context int) string {
	var buf bytes.Buffer
	writeSourceContext(&buf, strings.NewReader(sourceFixture), line, context)
	return buf.String()
}

func TestSourceContextMarksTargetLine(t *testing.T) {
	want := "  two\n  three\n> four\n  five\n  six\n"
	assert.Equal(t, want, renderSource(4, 2))
}

func TestSourceContextClampsAtTop(t *testing.T) {
	want := "> one\n  two\n  three\n"
	assert.Equal(t, want, renderSource(1, 2))
}

func TestSourceContextClampsAtBottom(t *testing.T) {
	want := "  five\n  six\n> seven\n"
	assert.Equal(t, want, renderSource(7, 2))
}

func TestSourceContextBeyondEOF(t *testing.T) {
	assert.Equal(t, "", renderSource(20, 2))
}

func TestPrintSourceMissingFileIsSilent(t *testing.T) {
	d, out := newTestDebugger(newFakeProcess())
	d.printSource("/no/such/file.c", 3, 2)
	assert.Equal(t, "", out.String())
}
