/*
 * nspire_emu-core - Single-instruction step and the inner execution loop.
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

package cpu

import "github.com/rcornwell/armcore/internal/events"

// StopReason explains why Run returned control to the outer driver
// (spec §4.8: the inner loop suspends at state-change or event-word
// boundaries so the driver can service its control channel).
type StopReason int

const (
	StopEvent        StopReason = iota // Reset/debug-step event bit set, or the instruction quantum ran out.
	StopBreakpoint                     // PC matched a set breakpoint.
	StopStateChange                    // ARM<->Thumb transition occurred mid-instruction.
	StopWaiting                        // WFI with nothing pending; driver should idle.
)

// AddBreakpoint arms a PC-matching breakpoint, consulted once per
// instruction fetch by Run.
func (s *State) AddBreakpoint(addr uint32) {
	if s.breakpoints == nil {
		s.breakpoints = make(map[uint32]bool)
	}
	s.breakpoints[addr] = true
}

// RemoveBreakpoint disarms a previously set breakpoint.
func (s *State) RemoveBreakpoint(addr uint32) {
	delete(s.breakpoints, addr)
}

// Breakpoints lists the currently armed addresses, for the console's
// "break" inspection command.
func (s *State) Breakpoints() []uint32 {
	out := make([]uint32, 0, len(s.breakpoints))
	for addr := range s.breakpoints {
		out = append(out, addr)
	}
	return out
}

// Cycles is the running instruction-cycle count since Reset.
func (s *State) Cycles() uint64 {
	return s.cycles
}

// Step executes exactly one instruction at the current PC (spec §4.8
// steps 4-5): fetch via the bus (which is the address cache when the
// MMU is enabled), advance PC by the instruction width, execute, and
// report whether the processor state (ARM vs Thumb) changed mid-
// instruction.
func (s *State) Step() (changedState bool) {
	wasThumb := s.Thumb()

	if wasThumb {
		pc := s.Reg[15] &^ 1
		insn, ok := s.Bus.FetchThumb(pc)
		if !ok {
			return s.Thumb() != wasThumb
		}
		s.Reg[15] = pc + 2
		s.cycles++
		s.ExecuteThumb(insn)
	} else {
		pc := s.Reg[15] &^ 3
		insn, ok := s.Bus.FetchARM(pc)
		if !ok {
			return s.Thumb() != wasThumb
		}
		s.Reg[15] = pc + 4
		s.cycles++
		s.ExecuteARM(insn)
	}

	return s.Thumb() != wasThumb
}

// Run executes instructions until an event, breakpoint, or ARM/Thumb
// state change requires the outer driver's attention (spec §4.8), or
// until runQuantum instructions have been stepped, whichever comes
// first. It is the "inner loop" the machine driver calls between
// servicing its own command channel.
func (s *State) Run() StopReason {
	const runQuantum = 100000
	for n := 0; n < runQuantum; n++ {
		if s.breakpoints[s.Reg[15]] {
			return StopBreakpoint
		}

		if s.Event.Load()&events.Waiting != 0 {
			if s.Interrupts&^s.cpsrLow28&0xC0 != 0 {
				s.Event.Clear(events.Waiting)
			} else {
				return StopWaiting
			}
		}

		if bits := s.Event.Load(); bits&(events.IRQ|events.FIQ) != 0 {
			if bits&events.FIQ != 0 && s.cpsrLow28&0x40 == 0 {
				s.Exception(ExFIQ)
			} else if bits&events.IRQ != 0 && s.cpsrLow28&0x80 == 0 {
				s.Exception(ExIRQ)
			}
		}

		if bits := s.Event.Load(); bits&(events.Reset|events.DebugStep) != 0 {
			return StopEvent
		}

		if s.Step() {
			return StopStateChange
		}
	}
	return StopEvent
}
