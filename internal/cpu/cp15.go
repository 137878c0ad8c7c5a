/*
 * nspire_emu-core - CP15 System Control Coprocessor.
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

// cp15Key packs CRn/CRm/opcode2/opcode1 into one lookup key, the way
// MCR/MRC encode a coprocessor register (spec §4.7).
func cp15Key(crn, crm, op2, op1 uint32) uint32 {
	return crn<<16 | crm<<8 | op2<<4 | op1
}

// MCRCoproc15 dispatches a write to CP15 (MCR p15, ...).
func (s *State) MCRCoproc15(crn, crm, op2, op1, value uint32) {
	switch cp15Key(crn, crm, op2, op1) {
	case cp15Key(1, 0, 0, 0): // Control
		if value&0xFFFF8CF8 != 0x00050078 {
			s.fatal("CP15 control write 0x%08x rejected by mask check", value)
		}
		changed := s.CP15.Control ^ value
		s.CP15.Control = value
		if changed&1 != 0 {
			s.invalidateAddr()
		}
	case cp15Key(2, 0, 0, 0): // TTB
		s.CP15.TTB = value &^ 0x3FFF
		s.invalidateAddr()
	case cp15Key(3, 0, 0, 0): // DACR
		s.CP15.DACR = value
		s.invalidateAddr()
	case cp15Key(5, 0, 0, 0): // Data FSR
		s.CP15.DFSR = value
	case cp15Key(5, 0, 1, 0): // Instruction FSR
		s.CP15.IFSR = value
	case cp15Key(6, 0, 0, 0): // FAR
		s.CP15.FAR = value
	case cp15Key(7, 0, 4, 0): // Wait for interrupt
		if s.Interrupts&0xC0 == 0 {
			s.Reg[15] -= 4
			s.Event.Set(events.Waiting)
		}
	case cp15Key(15, 0, 0, 0): // Debug override
		// No-op.
	default:
		if crn == 7 && (crm == 5 || crm == 7 || crm == 10) {
			// Cache maintenance: caches are not modeled, so every
			// clean/drain/invalidate variant under c7 is a no-op.
			return
		}
		if crn == 8 {
			// TLB maintenance: the address cache plays the TLB role.
			s.invalidateAddr()
			return
		}
		s.Warn("unknown CP15 MCR key crn=%d crm=%d op2=%d op1=%d", crn, crm, op2, op1)
	}
}

// MRCCoproc15 reads a CP15 register (MRC p15, ...).
func (s *State) MRCCoproc15(crn, crm, op2, op1 uint32) uint32 {
	switch cp15Key(crn, crm, op2, op1) {
	case cp15Key(0, 0, 0, 0):
		return 0x41069264 // ARM926EJ-S revision 4.
	case cp15Key(0, 0, 1, 0):
		return 0x1D112152 // Cache type: 16KB/8KB 4-way 8-word lines.
	case cp15Key(0, 0, 2, 0):
		return 0 // TCM status.
	case cp15Key(1, 0, 0, 0):
		return s.CP15.Control
	case cp15Key(2, 0, 0, 0):
		return s.CP15.TTB
	case cp15Key(3, 0, 0, 0):
		return s.CP15.DACR
	case cp15Key(5, 0, 0, 0):
		return s.CP15.DFSR
	case cp15Key(5, 0, 1, 0):
		return s.CP15.IFSR
	case cp15Key(6, 0, 0, 0):
		return s.CP15.FAR
	case cp15Key(7, 10, 3, 0), cp15Key(7, 14, 3, 0):
		return 0x40000000 // "clean done".
	default:
		s.Warn("unknown CP15 MRC key crn=%d crm=%d op2=%d op1=%d", crn, crm, op2, op1)
		return 0
	}
}

func (s *State) invalidateAddr() {
	if s.Addr != nil {
		s.Addr.InvalidateAddrCache()
	}
}
