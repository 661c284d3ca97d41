// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ptracer

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Siginfo carries the head of the kernel siginfo_t for the signal that
// last stopped the tracee.
type Siginfo struct {
	Signo int32
	Errno int32
	Code  int32
}

// si_code values relevant to debug traps. SIKernel accompanies a
// SIGTRAP raised by an INT3 the kernel attributes to itself; TrapBrkpt
// is the modern breakpoint code; TrapTrace reports single-step
// completion.
const (
	SIKernel  = 0x80
	TrapBrkpt = 0x1
	TrapTrace = 0x2
)

// SigInfo fetches the signal information for the tracee's current stop.
// There is no typed wrapper for PTRACE_GETSIGINFO in x/sys/unix, so the
// request is issued raw, in the same way PTRACE_POKEUSR-style requests
// are issued elsewhere.
func (t *Tracer) SigInfo() (Siginfo, error) {
	// The kernel writes a full siginfo_t (128 bytes on amd64); only the
	// leading three fields are of interest here.
	var raw struct {
		Siginfo
		_ [116]byte
	}
	err := t.do(func() error {
		_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_GETSIGINFO,
			uintptr(t.pid), 0, uintptr(unsafe.Pointer(&raw)), 0, 0)
		if errno != 0 {
			return errno
		}
		return nil
	})
	if err != nil {
		return Siginfo{}, t.traceeErr("ptraceGetSigInfo", err)
	}
	return raw.Siginfo, nil
}
