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

package parser

import (
	"testing"

	command "github.com/rcornwell/armcore/command/command"
	"github.com/rcornwell/armcore/internal/cpu"
	"github.com/rcornwell/armcore/internal/events"
	"github.com/rcornwell/armcore/internal/machine"
)

// abortBus is a cpu.Bus fake that fails accesses to one address, so
// examine/deposit's abort paths can be exercised.
type abortBus struct {
	mem       map[uint32]uint32
	abortAddr uint32
}

func (b *abortBus) FetchARM(uint32) (uint32, bool)   { return 0, true }
func (b *abortBus) FetchThumb(uint32) (uint16, bool) { return 0, true }
func (b *abortBus) ReadByte(uint32) (uint8, bool)    { return 0, true }
func (b *abortBus) ReadHalf(uint32) (uint16, bool)   { return 0, true }
func (b *abortBus) ReadWord(addr uint32) (uint32, bool) {
	if addr == b.abortAddr {
		return 0, false
	}
	return b.mem[addr], true
}
func (b *abortBus) WriteByte(uint32, uint8) bool { return true }
func (b *abortBus) WriteHalf(uint32, uint16) bool { return true }
func (b *abortBus) WriteWord(addr uint32, v uint32) bool {
	if addr == b.abortAddr {
		return false
	}
	if b.mem == nil {
		b.mem = make(map[uint32]uint32)
	}
	b.mem[addr] = v
	return true
}

func newTestSession(bufSize int) (*command.Session, chan machine.Packet) {
	ch := make(chan machine.Packet, bufSize)
	var ev events.Word
	bus := &abortBus{mem: make(map[uint32]uint32), abortAddr: 0xFFFF0000}
	s := cpu.New(bus, nil, &ev, nil)
	return &command.Session{Control: ch, CPU: s}, ch
}

func TestProcessCommandUnknown(t *testing.T) {
	sess, _ := newTestSession(1)
	if _, err := ProcessCommand("bogus", sess); err == nil {
		t.Error("ProcessCommand accepted an unknown command")
	}
}

func TestProcessCommandQuitReturnsTrue(t *testing.T) {
	sess, _ := newTestSession(1)
	exit, err := ProcessCommand("quit", sess)
	if err != nil || !exit {
		t.Errorf("ProcessCommand(quit) = %v, %v, want true, nil", exit, err)
	}
}

func TestStopStartStepResetPostExpectedMessages(t *testing.T) {
	cases := []struct {
		line string
		want machine.MsgKind
	}{
		{"stop", machine.MsgStop},
		{"continue", machine.MsgStart},
		{"start", machine.MsgStart},
		{"step", machine.MsgStep},
		{"reset", machine.MsgReset},
	}

	for _, tc := range cases {
		sess, ch := newTestSession(1)
		if _, err := ProcessCommand(tc.line, sess); err != nil {
			t.Errorf("%q: %v", tc.line, err)
			continue
		}
		select {
		case pkt := <-ch:
			if pkt.Msg != tc.want {
				t.Errorf("%q posted %v, want %v", tc.line, pkt.Msg, tc.want)
			}
		default:
			t.Errorf("%q posted nothing", tc.line)
		}
	}
}

func TestSetBreakAndClearBreakParseHexAddress(t *testing.T) {
	sess, ch := newTestSession(1)

	if _, err := ProcessCommand("break 0x1000", sess); err != nil {
		t.Fatalf("break: %v", err)
	}
	pkt := <-ch
	if pkt.Msg != machine.MsgAddBreakpoint || pkt.Addr != 0x1000 {
		t.Errorf("break posted %+v, want AddBreakpoint at 0x1000", pkt)
	}

	if _, err := ProcessCommand("unbreak 1000", sess); err != nil {
		t.Fatalf("unbreak: %v", err)
	}
	pkt = <-ch
	if pkt.Msg != machine.MsgRemoveBreakpoint || pkt.Addr != 0x1000 {
		t.Errorf("unbreak posted %+v, want RemoveBreakpoint at 0x1000", pkt)
	}
}

func TestSetBreakRejectsMissingAddress(t *testing.T) {
	sess, _ := newTestSession(1)
	if _, err := ProcessCommand("break", sess); err == nil {
		t.Error("break with no address should fail")
	}
}

func TestDepositThenExamineRoundTrip(t *testing.T) {
	sess, _ := newTestSession(1)

	if _, err := ProcessCommand("deposit 2000 cafebabe", sess); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := ProcessCommand("examine 2000", sess); err != nil {
		t.Fatalf("examine: %v", err)
	}
	if v, _ := sess.CPU.Bus.ReadWord(0x2000); v != 0xCAFEBABE {
		t.Errorf("word at 0x2000 = %#x after deposit, want 0xcafebabe", v)
	}
}

func TestExamineReportsAbort(t *testing.T) {
	sess, _ := newTestSession(1)
	if _, err := ProcessCommand("examine FFFF0000", sess); err == nil {
		t.Error("examine at an aborting address should fail")
	}
}

func TestDepositReportsAbort(t *testing.T) {
	sess, _ := newTestSession(1)
	if _, err := ProcessCommand("deposit FFFF0000 1", sess); err == nil {
		t.Error("deposit at an aborting address should fail")
	}
}

func TestShowRequiresKnownTarget(t *testing.T) {
	sess, _ := newTestSession(1)
	if _, err := ProcessCommand("show bogus", sess); err == nil {
		t.Error("show with an unknown target should fail")
	}
	if _, err := ProcessCommand("show reg", sess); err != nil {
		t.Errorf("show reg: %v", err)
	}
	if _, err := ProcessCommand("show cpsr", sess); err != nil {
		t.Errorf("show cpsr: %v", err)
	}
	if _, err := ProcessCommand("show cp15", sess); err != nil {
		t.Errorf("show cp15: %v", err)
	}
	if _, err := ProcessCommand("show break", sess); err != nil {
		t.Errorf("show break: %v", err)
	}
}

func TestShowNANDWithNoFlashLoaded(t *testing.T) {
	sess, _ := newTestSession(1)
	if _, err := ProcessCommand("show nand", sess); err != nil {
		t.Errorf("show nand with no flash loaded should not error: %v", err)
	}
}

func TestShowCompleteFiltersByPrefix(t *testing.T) {
	line := &cmdLine{line: "br"}
	got := showComplete(line)
	if len(got) != 1 || got[0] != "break" {
		t.Errorf("showComplete(%q) = %v, want [break]", "br", got)
	}
}

func TestGetHexAcceptsOptionalPrefix(t *testing.T) {
	l1 := &cmdLine{line: "0x1A2B"}
	v, err := l1.getHex()
	if err != nil || v != 0x1A2B {
		t.Errorf("getHex(0x1A2B) = %#x, %v", v, err)
	}

	l2 := &cmdLine{line: "1A2B"}
	v, err = l2.getHex()
	if err != nil || v != 0x1A2B {
		t.Errorf("getHex(1A2B) = %#x, %v", v, err)
	}
}

func TestGetCountDefaultsToOne(t *testing.T) {
	l := &cmdLine{line: ""}
	n, err := l.getCount()
	if err != nil || n != 1 {
		t.Errorf("getCount() = %d, %v, want 1, nil", n, err)
	}
}

func TestGetCountRejectsNonPositive(t *testing.T) {
	l := &cmdLine{line: "0"}
	if _, err := l.getCount(); err == nil {
		t.Error("getCount() accepted a non-positive count")
	}
}
