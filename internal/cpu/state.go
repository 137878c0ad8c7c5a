/*
 * nspire_emu-core - ARMv5TE processor state and mode transitions.
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

// Package cpu implements the ARMv5TE (ARM926EJ-S) register file, mode
// switching, exception entry, and the ARM/Thumb instruction
// interpreters that operate on it.
package cpu

import (
	"fmt"
	"log/slog"

	"github.com/rcornwell/armcore/internal/events"
)

// Processor modes (low 5 bits of CPSR).
const (
	ModeUSR uint32 = 0x10
	ModeFIQ uint32 = 0x11
	ModeIRQ uint32 = 0x12
	ModeSVC uint32 = 0x13
	ModeABT uint32 = 0x17
	ModeUND uint32 = 0x1B
	ModeSYS uint32 = 0x1F
)

// Exception kinds, indexed the same as the vector table (kind*4).
const (
	ExReset = iota
	ExUndefined
	ExSWI
	ExPrefetchAbort
	ExDataAbort
	exReserved
	ExIRQ
	ExFIQ
)

// Bus is the memory accessor contract the interpreter consumes (spec
// ambient memory contract). ok==false signals an aborted access; the
// CPU has already raised the corresponding exception by the time the
// call returns.
type Bus interface {
	FetchARM(addr uint32) (uint32, bool)
	FetchThumb(addr uint32) (uint16, bool)
	ReadByte(addr uint32) (uint8, bool)
	ReadHalf(addr uint32) (uint16, bool)
	ReadWord(addr uint32) (uint32, bool)
	WriteByte(addr uint32, v uint8) bool
	WriteHalf(addr uint32, v uint16) bool
	WriteWord(addr uint32, v uint32) bool
}

// Invalidator is implemented by the address cache; CP15 writes and
// user/privileged mode transitions call it.
type Invalidator interface {
	InvalidateAddrCache()
}

// CP15 holds the System Control Coprocessor registers (spec §4.7).
type CP15 struct {
	Control uint32
	TTB     uint32
	DACR    uint32
	DFSR    uint32
	IFSR    uint32
	FAR     uint32
}

// State is the complete architectural register file of one ARMv5TE
// core, plus the CP15 coprocessor it owns.
type State struct {
	Reg [16]uint32 // Active view; Reg[15] is PC.

	N, Z, C, V bool   // Flags, stored apart from cpsr_low28.
	cpsrLow28  uint32 // Mode, I/F, T, Q and reserved-masked bits.

	r8Usr, r8Fiq   [5]uint32 // r8..r12
	r13_14Usr      [2]uint32
	r13_14Fiq      [2]uint32
	r13_14Irq      [2]uint32
	r13_14Svc      [2]uint32
	r13_14Abt      [2]uint32
	r13_14Und      [2]uint32
	spsrFiq        uint32
	spsrIrq        uint32
	spsrSvc        uint32
	spsrAbt        uint32
	spsrUnd        uint32

	Interrupts uint32 // Pending-interrupt lines, bit7=IRQ bit6=FIQ.

	CP15 CP15

	Bus   Bus
	Addr  Invalidator
	Event *events.Word

	Log *slog.Logger

	breakpoints map[uint32]bool
	cycles      uint64
}

// New creates a processor in the reset state.
func New(bus Bus, addr Invalidator, ev *events.Word, log *slog.Logger) *State {
	s := &State{Bus: bus, Addr: addr, Event: ev, Log: log}
	s.Reset()
	return s
}

// Reset puts the processor into the architectural reset state: SVC
// mode, interrupts disabled, PC at the reset vector. Breakpoints are a
// debug-session concern and survive a CPU reset.
func (s *State) Reset() {
	bp := s.breakpoints
	*s = State{Bus: s.Bus, Addr: s.Addr, Event: s.Event, Log: s.Log, breakpoints: bp}
	s.cpsrLow28 = ModeSVC | 0xC0
	s.Reg[15] = 0
}

// Mode returns the current processor mode.
func (s *State) Mode() uint32 {
	return s.cpsrLow28 & 0x1F
}

// Thumb reports whether the T bit is set.
func (s *State) Thumb() bool {
	return s.cpsrLow28&0x20 != 0
}

// GetCPSR packs NZCV into bits 31..28 and ORs in cpsr_low28.
func (s *State) GetCPSR() uint32 {
	cpsr := s.cpsrLow28
	if s.N {
		cpsr |= 1 << 31
	}
	if s.Z {
		cpsr |= 1 << 30
	}
	if s.C {
		cpsr |= 1 << 29
	}
	if s.V {
		cpsr |= 1 << 28
	}
	return cpsr
}

// SetCPSRFull installs a full new CPSR value, performing a bank swap
// if the mode bits changed (spec §4.1).
func (s *State) SetCPSRFull(newCPSR uint32) {
	oldMode := s.cpsrLow28 & 0x1F
	newMode := newCPSR & 0x1F

	if (newCPSR^s.cpsrLow28)&0x1F != 0 {
		// Save r8..r12 of the outgoing mode.
		if oldMode == ModeFIQ {
			copy(s.r8Fiq[:], s.Reg[8:13])
		} else {
			copy(s.r8Usr[:], s.Reg[8:13])
		}
		// Save r13/r14 of the outgoing mode.
		switch oldMode {
		case ModeUSR, ModeSYS:
			copy(s.r13_14Usr[:], s.Reg[13:15])
		case ModeFIQ:
			copy(s.r13_14Fiq[:], s.Reg[13:15])
		case ModeIRQ:
			copy(s.r13_14Irq[:], s.Reg[13:15])
		case ModeSVC:
			copy(s.r13_14Svc[:], s.Reg[13:15])
		case ModeABT:
			copy(s.r13_14Abt[:], s.Reg[13:15])
		case ModeUND:
			copy(s.r13_14Und[:], s.Reg[13:15])
		default:
			s.fatal("invalid previous processor mode 0x%02x", oldMode)
		}

		// Load r8..r12 of the incoming mode.
		if newMode == ModeFIQ {
			copy(s.Reg[8:13], s.r8Fiq[:])
		} else {
			copy(s.Reg[8:13], s.r8Usr[:])
		}
		// Load r13/r14 of the incoming mode.
		switch newMode {
		case ModeUSR, ModeSYS:
			copy(s.Reg[13:15], s.r13_14Usr[:])
		case ModeFIQ:
			copy(s.Reg[13:15], s.r13_14Fiq[:])
		case ModeIRQ:
			copy(s.Reg[13:15], s.r13_14Irq[:])
		case ModeSVC:
			copy(s.Reg[13:15], s.r13_14Svc[:])
		case ModeABT:
			copy(s.Reg[13:15], s.r13_14Abt[:])
		case ModeUND:
			copy(s.Reg[13:15], s.r13_14Und[:])
		default:
			s.fatal("invalid new processor mode 0x%02x", newMode)
		}

		// Crossing the user/privileged boundary can change access
		// permissions for the same virtual address.
		if oldMode&3 == 0 || newMode&3 == 0 {
			if s.Addr != nil {
				s.Addr.InvalidateAddrCache()
			}
		}
	}

	if newCPSR&0x01000000 != 0 {
		s.fatal("J (Jazelle) state is not implemented")
	}

	s.N = newCPSR>>31&1 != 0
	s.Z = newCPSR>>30&1 != 0
	s.C = newCPSR>>29&1 != 0
	s.V = newCPSR>>28&1 != 0
	s.cpsrLow28 = newCPSR & 0x090000FF
	s.checkPendingInterrupts()
}

// SetCPSR implements MSR with a field mask; in user mode privileged
// and execution-state bits are stripped from mask first.
func (s *State) SetCPSR(value, mask uint32) {
	if s.Mode() == ModeUSR {
		mask &^= 0x010000FF
	}
	newCPSR := (value & mask) | (s.GetCPSR() &^ mask)
	if newCPSR&0x20 != 0 {
		s.fatal("cannot set T bit with MSR")
	}
	s.SetCPSRFull(newCPSR)
}

// spsrPtr returns the SPSR storage for the current mode, or nil in
// USR/SYS where there is none.
func (s *State) spsrPtr() *uint32 {
	switch s.Mode() {
	case ModeFIQ:
		return &s.spsrFiq
	case ModeIRQ:
		return &s.spsrIrq
	case ModeSVC:
		return &s.spsrSvc
	case ModeABT:
		return &s.spsrAbt
	case ModeUND:
		return &s.spsrUnd
	default:
		return nil
	}
}

// GetSPSR reads the banked SPSR of the current mode; fatal in USR/SYS.
func (s *State) GetSPSR() uint32 {
	p := s.spsrPtr()
	if p == nil {
		s.fatal("SPSR read in USR/SYS mode")
		return 0
	}
	return *p
}

// SetSPSR writes the banked SPSR of the current mode; fatal in USR/SYS.
func (s *State) SetSPSR(value, mask uint32) {
	p := s.spsrPtr()
	if p == nil {
		s.fatal("SPSR write in USR/SYS mode")
		return
	}
	*p = (value & mask) | (*p &^ mask)
}

// checkPendingInterrupts re-evaluates the IRQ/FIQ lines against the
// I/F mask bits and posts the result to the event word (spec §3).
func (s *State) checkPendingInterrupts() {
	if s.Interrupts&^s.cpsrLow28&0x80 != 0 {
		s.Event.Set(events.IRQ)
	} else {
		s.Event.Clear(events.IRQ)
	}
	if s.Interrupts&^s.cpsrLow28&0x40 != 0 {
		s.Event.Set(events.FIQ)
	} else {
		s.Event.Clear(events.FIQ)
	}
}

// SetInterruptLines updates the pending-interrupt word (bit7=IRQ,
// bit6=FIQ) and re-evaluates against the current mask.
func (s *State) SetInterruptLines(irq, fiq bool) {
	s.Interrupts &^= 0xC0
	if irq {
		s.Interrupts |= 0x80
	}
	if fiq {
		s.Interrupts |= 0x40
	}
	s.checkPendingInterrupts()
}

var exceptionTable = [8]struct {
	mode     uint32
	disable  uint32
}{
	ExReset:         {ModeSVC, 0xC0},
	ExUndefined:     {ModeUND, 0x80},
	ExSWI:           {ModeSVC, 0x80},
	ExPrefetchAbort: {ModeABT, 0x80},
	ExDataAbort:     {ModeABT, 0x80},
	exReserved:      {0, 0},
	ExIRQ:           {ModeIRQ, 0x80},
	ExFIQ:           {ModeFIQ, 0xC0},
}

// Exception enters the given exception (spec §4.1): saves CPSR to the
// target mode's SPSR, switches mode and disable bits, sets LR to the
// current PC, and vectors PC to kind*4 (or the high-vector alias).
func (s *State) Exception(kind int) {
	entry := exceptionTable[kind]
	oldCPSR := s.GetCPSR()
	ret := s.Reg[15]

	s.SetCPSRFull((oldCPSR &^ 0x3F) | entry.mode | entry.disable)
	*s.spsrPtr() = oldCPSR

	s.Reg[14] = ret
	vector := uint32(kind) * 4
	if s.CP15.Control&0x2000 != 0 {
		vector += 0xFFFF0000
	}
	s.Reg[15] = vector
}

// fatal reports an unrecoverable emulator error (spec §7).
func (s *State) fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if s.Log != nil {
		s.Log.Error("fatal: " + msg)
	}
	panic("cpu: " + msg)
}

// Warn logs a non-fatal warning (spec §7).
func (s *State) Warn(format string, args ...any) {
	if s.Log != nil {
		s.Log.Warn(fmt.Sprintf(format, args...))
	}
}
