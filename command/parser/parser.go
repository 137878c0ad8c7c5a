/*
 * nspire_emu-core - Console command parser.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package parser implements the debugger command line: register and
// CP15 inspection, memory examine/deposit, breakpoints, and run
// control, the way the driver's own command parser drove device
// attach/show/set commands.
package parser

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	command "github.com/rcornwell/armcore/command/command"
	"github.com/rcornwell/armcore/internal/machine"
)

type cmd struct {
	Name     string
	Min      int
	Process  func(line *cmdLine, sess *command.Session) (bool, error)
	Complete func(line *cmdLine) []string
}

type cmdLine struct {
	line string
	pos  int
}

var cmdList = []cmd{
	{Name: "quit", Min: 1, Process: quit},
	{Name: "stop", Min: 3, Process: stop},
	{Name: "continue", Min: 1, Process: cont},
	{Name: "start", Min: 3, Process: start},
	{Name: "step", Min: 2, Process: step},
	{Name: "reset", Min: 3, Process: reset},
	{Name: "break", Min: 2, Process: setBreak},
	{Name: "unbreak", Min: 3, Process: clearBreak},
	{Name: "examine", Min: 2, Process: examine},
	{Name: "deposit", Min: 2, Process: deposit},
	{Name: "show", Min: 2, Process: show, Complete: showComplete},
}

// ProcessCommand parses and executes one command line against sess.
// It returns true when the session should exit.
func ProcessCommand(commandLine string, sess *command.Session) (bool, error) {
	line := cmdLine{line: commandLine}
	name := line.getWord()

	match := matchList(name)
	if len(match) == 0 {
		return false, errors.New("command not found: " + name)
	}
	if len(match) > 1 {
		return false, errors.New("ambiguous command: " + name)
	}
	return match[0].Process(&line, sess)
}

func matchCommand(m cmd, name string) bool {
	if len(name) > len(m.Name) || len(name) < m.Min {
		return false
	}
	return strings.HasPrefix(m.Name, name)
}

func matchList(name string) []cmd {
	if name == "" {
		return nil
	}
	var match []cmd
	for _, m := range cmdList {
		if matchCommand(m, name) {
			match = append(match, m)
		}
	}
	return match
}

func (line *cmdLine) isEOL() bool {
	return line.pos >= len(line.line)
}

func (line *cmdLine) skipSpace() {
	for !line.isEOL() && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

// getWord returns the next run of letters, lowercased.
func (line *cmdLine) getWord() string {
	line.skipSpace()
	start := line.pos
	for !line.isEOL() && unicode.IsLetter(rune(line.line[line.pos])) {
		line.pos++
	}
	return strings.ToLower(line.line[start:line.pos])
}

// getToken returns the next run of non-space characters.
func (line *cmdLine) getToken() string {
	line.skipSpace()
	start := line.pos
	for !line.isEOL() && !unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
	return line.line[start:line.pos]
}

// getHex parses the next token as a hex address, "0x" prefix optional.
func (line *cmdLine) getHex() (uint32, error) {
	tok := line.getToken()
	if tok == "" {
		return 0, errors.New("expected an address")
	}
	tok = strings.TrimPrefix(strings.ToLower(tok), "0x")
	value, err := strconv.ParseUint(tok, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hex address %q: %w", tok, err)
	}
	return uint32(value), nil
}

// getCount parses an optional trailing decimal count, defaulting to 1.
func (line *cmdLine) getCount() (int, error) {
	line.skipSpace()
	if line.isEOL() {
		return 1, nil
	}
	tok := line.getToken()
	n, err := strconv.Atoi(tok)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid count %q", tok)
	}
	return n, nil
}

func quit(_ *cmdLine, _ *command.Session) (bool, error) {
	return true, nil
}

func stop(_ *cmdLine, sess *command.Session) (bool, error) {
	sess.Post(machine.MsgStop, 0)
	return false, nil
}

func cont(_ *cmdLine, sess *command.Session) (bool, error) {
	sess.Post(machine.MsgStart, 0)
	return false, nil
}

func start(_ *cmdLine, sess *command.Session) (bool, error) {
	sess.Post(machine.MsgStart, 0)
	return false, nil
}

func step(_ *cmdLine, sess *command.Session) (bool, error) {
	sess.Post(machine.MsgStep, 0)
	return false, nil
}

func reset(_ *cmdLine, sess *command.Session) (bool, error) {
	sess.Post(machine.MsgReset, 0)
	return false, nil
}

func setBreak(line *cmdLine, sess *command.Session) (bool, error) {
	addr, err := line.getHex()
	if err != nil {
		return false, err
	}
	sess.Post(machine.MsgAddBreakpoint, addr)
	return false, nil
}

func clearBreak(line *cmdLine, sess *command.Session) (bool, error) {
	addr, err := line.getHex()
	if err != nil {
		return false, err
	}
	sess.Post(machine.MsgRemoveBreakpoint, addr)
	return false, nil
}

// examine prints count words of memory starting at addr.
func examine(line *cmdLine, sess *command.Session) (bool, error) {
	addr, err := line.getHex()
	if err != nil {
		return false, err
	}
	count, err := line.getCount()
	if err != nil {
		return false, err
	}
	for i := 0; i < count; i++ {
		a := addr + uint32(i)*4
		value, ok := sess.CPU.Bus.ReadWord(a)
		if !ok {
			return false, fmt.Errorf("abort reading %#08x", a)
		}
		fmt.Printf("%08X: %08X\n", a, value)
	}
	return false, nil
}

// deposit writes a single word to memory.
func deposit(line *cmdLine, sess *command.Session) (bool, error) {
	addr, err := line.getHex()
	if err != nil {
		return false, err
	}
	value, err := line.getHex()
	if err != nil {
		return false, errors.New("expected a value to deposit")
	}
	if !sess.CPU.Bus.WriteWord(addr, value) {
		return false, fmt.Errorf("abort writing %#08x", addr)
	}
	return false, nil
}

var showTargets = []string{"reg", "cpsr", "cp15", "nand", "break"}

func show(line *cmdLine, sess *command.Session) (bool, error) {
	what := line.getWord()
	switch {
	case strings.HasPrefix("reg", what) && what != "":
		showRegs(sess)
	case strings.HasPrefix("cpsr", what) && what != "":
		showCPSR(sess)
	case strings.HasPrefix("cp15", what) && what != "":
		showCP15(sess)
	case strings.HasPrefix("nand", what) && what != "":
		showNAND(sess)
	case strings.HasPrefix("break", what) && what != "":
		showBreak(sess)
	default:
		return false, errors.New("show what? reg, cpsr, cp15, nand, break")
	}
	return false, nil
}

func showComplete(line *cmdLine) []string {
	line.skipSpace()
	prefix := line.getWord()
	var out []string
	for _, t := range showTargets {
		if strings.HasPrefix(t, prefix) {
			out = append(out, t)
		}
	}
	return out
}

func showRegs(sess *command.Session) {
	for i := 0; i < 16; i++ {
		fmt.Printf("R%-2d = %08X  ", i, sess.CPU.Reg[i])
		if i%4 == 3 {
			fmt.Println()
		}
	}
}

func showCPSR(sess *command.Session) {
	cpsr := sess.CPU.GetCPSR()
	fmt.Printf("CPSR = %08X  mode=%#x thumb=%v\n", cpsr, sess.CPU.Mode(), sess.CPU.Thumb())
}

func showCP15(sess *command.Session) {
	fmt.Printf("Control=%08X TTB=%08X DACR=%08X DFSR=%08X IFSR=%08X FAR=%08X\n",
		sess.CPU.CP15.Control, sess.CPU.CP15.TTB, sess.CPU.CP15.DACR,
		sess.CPU.CP15.DFSR, sess.CPU.CP15.IFSR, sess.CPU.CP15.FAR)
}

func showNAND(sess *command.Session) {
	if sess.Flash == nil {
		fmt.Println("no flash image loaded")
		return
	}
	modified := 0
	for _, m := range sess.Flash.ModifiedBlocks() {
		if m {
			modified++
		}
	}
	fmt.Printf("NAND: manuf=%#02x model=%#02x modified blocks=%d\n",
		sess.Flash.Metrics.ChipManuf, sess.Flash.Metrics.ChipModel, modified)
}

func showBreak(sess *command.Session) {
	bps := sess.CPU.Breakpoints()
	sort.Slice(bps, func(i, j int) bool { return bps[i] < bps[j] })
	if len(bps) == 0 {
		fmt.Println("no breakpoints set")
		return
	}
	for _, addr := range bps {
		fmt.Printf("%08X\n", addr)
	}
}
