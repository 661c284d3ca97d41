// Copyright 2024 The minidbg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The minidbg command is an interactive source-level debugger for
// unoptimized ELF executables on linux/amd64. It spawns the given
// executable under tracing, stops it before the first instruction, and
// reads commands from a prompt.
//
// Run "minidbg <executable>" and type commands such as:
//
//	break main
//	continue
//	step
//	next
//	finish
//	register dump
//	memory read 0x601040
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/minidbg/minidbg/internal/debugger"
	"github.com/minidbg/minidbg/internal/debuginfo"
	"github.com/minidbg/minidbg/internal/ptracer"
)

const prompt = "minidbg> "

var verbose bool

var rootCmd = &cobra.Command{
	Use:          "minidbg <executable>",
	Short:        "minidbg is a source-level debugger for unoptimized ELF executables",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(path string) error {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	info, err := debuginfo.Load(path)
	if err != nil {
		return err
	}
	defer info.Close()

	tracer := ptracer.New(log)
	if err := tracer.StartProcess(path, []string{path}); err != nil {
		return err
	}

	lines, closeLines, err := newLineSource()
	if err != nil {
		return err
	}
	defer closeLines()

	return debugger.New(path, tracer, info, log).Run(lines)
}

// newLineSource prefers readline with history on a terminal; piped
// input gets a plain buffered reader so the loop stays scriptable.
func newLineSource() (debugger.LineSource, func(), error) {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		rl, err := readline.New(prompt)
		if err != nil {
			return nil, nil, err
		}
		return &rlLines{rl: rl}, func() { rl.Close() }, nil
	}
	return &plainLines{r: bufio.NewReader(os.Stdin)}, func() {}, nil
}

// rlLines adapts a readline instance, folding an interrupt into end of
// input.
type rlLines struct {
	rl *readline.Instance
}

func (l *rlLines) Readline() (string, error) {
	line, err := l.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", io.EOF
	}
	return line, err
}

type plainLines struct {
	r *bufio.Reader
}

func (p *plainLines) Readline() (string, error) {
	fmt.Print(prompt)
	line, err := p.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\n"), nil
}
