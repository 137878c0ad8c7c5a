/*
 * nspire_emu-core - Register accessors with R15 pipeline semantics.
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

// GetRegPC reads a register for use as an ARM operand: R15 reads as
// PC+4 (one instruction of pipeline emulation ahead of the fetch that
// already advanced PC).
func (s *State) GetRegPC(r int) uint32 {
	if r == 15 {
		return s.Reg[15] + 4
	}
	return s.Reg[r]
}

// GetRegPCData reads a register the way store instructions sample it
// when R15 is the data operand: PC+8.
func (s *State) GetRegPCData(r int) uint32 {
	if r == 15 {
		return s.Reg[15] + 8
	}
	return s.Reg[r]
}

// GetRegPCThumb is the Thumb-mode equivalent of GetRegPC: PC+2.
func (s *State) GetRegPCThumb(r int) uint32 {
	if r == 15 {
		return s.Reg[15] + 2
	}
	return s.Reg[r]
}

// SetReg writes directly to a register, including R15 (data-processing
// destination semantics: no BX interpretation of bit 0).
func (s *State) SetReg(r int, v uint32) {
	s.Reg[r] = v
}

// SetRegBX writes to a register using the branch-exchange rule: when r
// is R15, bit 0 of v selects ARM/Thumb state and is masked out of PC.
func (s *State) SetRegBX(r int, v uint32) {
	if r != 15 {
		s.Reg[r] = v
		return
	}
	if v&1 != 0 {
		s.cpsrLow28 |= 0x20
		s.Reg[15] = v &^ 1
	} else {
		s.cpsrLow28 &^= 0x20
		s.Reg[15] = v &^ 3
	}
}

// UserBankReg accesses r8..r14 in the USR/SYS bank regardless of the
// current mode, for LDM/STM with the S bit set (spec §4.5).
func (s *State) UserBankReg(r int) uint32 {
	mode := s.Mode()
	if mode == ModeUSR || mode == ModeSYS {
		return s.Reg[r]
	}
	switch {
	case r >= 8 && r <= 12:
		if mode == ModeFIQ {
			return s.r8Usr[r-8]
		}
		return s.Reg[r]
	case r == 13 || r == 14:
		return s.r13_14Usr[r-13]
	default:
		return s.Reg[r]
	}
}

// SetUserBankReg is the write counterpart of UserBankReg.
func (s *State) SetUserBankReg(r int, v uint32) {
	mode := s.Mode()
	if mode == ModeUSR || mode == ModeSYS {
		s.Reg[r] = v
		return
	}
	switch {
	case r >= 8 && r <= 12:
		if mode == ModeFIQ {
			s.r8Usr[r-8] = v
			return
		}
		s.Reg[r] = v
	case r == 13 || r == 14:
		s.r13_14Usr[r-13] = v
	default:
		s.Reg[r] = v
	}
}
