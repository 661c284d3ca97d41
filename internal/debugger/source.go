// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugger

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// printSource shows the source lines around line, marking the target
// line with "> ". A missing or unreadable file prints nothing.
func (d *Debugger) printSource(path string, line, context int) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	writeSourceContext(d.out, f, line, context)
}

// writeSourceContext streams src line by line and emits the window
// [line-context, line+context].
func writeSourceContext(w io.Writer, src io.Reader, line, context int) {
	first := line - context
	if first < 1 {
		first = 1
	}
	last := line + context

	scanner := bufio.NewScanner(src)
	for n := 1; scanner.Scan() && n <= last; n++ {
		if n < first {
			continue
		}
		marker := "  "
		if n == line {
			marker = "> "
		}
		fmt.Fprintf(w, "%s%s\n", marker, scanner.Text())
	}
}
