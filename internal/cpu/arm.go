/*
 * nspire_emu-core - ARMv5TE instruction decode and execute.
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

// checkCond evaluates the top 4 bits of an ARM instruction against the
// current flags.
func (s *State) checkCond(insn uint32) bool {
	switch insn >> 29 {
	case 0: // EQ/NE
		return s.Z == (insn>>28&1 == 0)
	case 1: // CS/CC
		return s.C == (insn>>28&1 == 0)
	case 2: // MI/PL
		return s.N == (insn>>28&1 == 0)
	case 3: // VS/VC
		return s.V == (insn>>28&1 == 0)
	case 4: // HI/LS
		hi := s.C && !s.Z
		return hi == (insn>>28&1 == 0)
	case 5: // GE/LT
		ge := s.N == s.V
		return ge == (insn>>28&1 == 0)
	case 6: // GT/LE
		gt := !s.Z && s.N == s.V
		return gt == (insn>>28&1 == 0)
	default: // AL / unconditional space
		return true
	}
}

// ExecuteARM executes one ARM instruction at the current PC, which
// the caller has already advanced by 4.
func (s *State) ExecuteARM(insn uint32) {
	if insn>>28 == 0xF {
		s.executeUnconditional(insn)
		return
	}
	if !s.checkCond(insn) {
		return
	}

	switch {
	case insn&0xE000090 == 0x0000090:
		s.executeMultiplyOrHalfword(insn)
	case insn&0xD900000 == 0x1000000:
		s.executeMisc(insn)
	case insn&0xC000000 == 0x0000000:
		s.executeDataProcessing(insn)
	case insn&0xC000000 == 0x4000000:
		s.executeSingleTransfer(insn)
	case insn&0xE000000 == 0x8000000:
		s.executeBlockTransfer(insn)
	case insn&0xE000000 == 0xA000000:
		s.executeBranch(insn)
	case insn&0xF100F10 == 0xE000F10:
		s.executeMCR(insn)
	case insn&0xF100F10 == 0xE100F10:
		s.executeMRC(insn)
	case insn&0xF000000 == 0xF000000:
		s.Exception(ExSWI)
	default:
		s.fatal("undecodable ARM instruction 0x%08x at 0x%08x", insn, s.Reg[15]-4)
	}
}

// executeUnconditional handles the 0xF condition space: PLD (no-op)
// and BLX immediate; anything else is fatal.
func (s *State) executeUnconditional(insn uint32) {
	switch {
	case insn&0xFD70F000 == 0xF550F000:
		// PLD: preload hint, modeled as a no-op.
	case insn&0xFE000000 == 0xFA000000:
		s.Reg[14] = s.Reg[15]
		offset := int32(insn<<8) >> 6
		s.Reg[15] += 4 + uint32(offset) + (insn >> 23 & 2)
		s.cpsrLow28 |= 0x20
	default:
		s.fatal("invalid condition code in instruction 0x%08x", insn)
	}
}

func (s *State) executeMultiplyOrHalfword(insn uint32) {
	shiftType := insn >> 5 & 3
	if shiftType == 0 {
		switch {
		case insn&0xFC000F0 == 0x0000090:
			s.execMUL(insn)
		case insn&0xF8000F0 == 0x0800090:
			s.execMULL(insn)
		case insn&0xFB00FF0 == 0x1000090:
			s.execSWP(insn)
		default:
			s.fatal("undecoded multiply-class instruction 0x%08x", insn)
		}
		return
	}
	s.execHalfwordTransfer(insn)
}

func (s *State) execMUL(insn uint32) {
	res := s.GetRegPC(int(insn&15)) * s.GetRegPC(int(insn>>8&15))
	if insn&0x0200000 != 0 {
		res += s.GetRegPC(int(insn >> 12 & 15))
	}
	s.SetReg(int(insn>>16&15), res)
	if insn&0x0100000 != 0 {
		s.SetNZ(res)
	}
}

func (s *State) execMULL(insn uint32) {
	left := s.GetRegPC(int(insn & 15))
	right := s.GetRegPC(int(insn >> 8 & 15))
	regLo := int(insn >> 12 & 15)
	regHi := int(insn >> 16 & 15)
	if regLo == regHi {
		s.fatal("RdLo and RdHi cannot be the same register for 64-bit multiply")
	}

	var res uint64
	if insn&0x0400000 != 0 {
		res = uint64(int64(int32(left)) * int64(int32(right)))
	} else {
		res = uint64(left) * uint64(right)
	}
	if insn&0x0200000 != 0 {
		res += uint64(s.Reg[regHi])<<32 | uint64(s.Reg[regLo])
	}
	s.SetReg(regLo, uint32(res))
	s.SetReg(regHi, uint32(res>>32))
	if insn&0x0100000 != 0 {
		s.SetNZ64(res)
	}
}

func (s *State) execSWP(insn uint32) {
	addr := s.GetRegPC(int(insn >> 16 & 15))
	store := s.GetRegPC(int(insn & 15))
	var loaded uint32
	if insn&0x400000 != 0 {
		b, ok := s.Bus.ReadByte(addr)
		if !ok {
			return
		}
		loaded = uint32(b)
		if !s.Bus.WriteByte(addr, uint8(store)) {
			return
		}
	} else {
		w, ok := s.Bus.ReadWord(addr)
		if !ok {
			return
		}
		loaded = w
		if !s.Bus.WriteWord(addr, store) {
			return
		}
	}
	s.SetReg(int(insn>>12&15), loaded)
}

func (s *State) execHalfwordTransfer(insn uint32) {
	kind := insn >> 5 & 3
	baseReg := int(insn >> 16 & 15)
	dataReg := int(insn >> 12 & 15)

	var offset uint32
	if insn&(1<<22) != 0 {
		offset = (insn & 0x0F) | (insn >> 4 & 0xF0)
	} else {
		offset = s.GetRegPC(int(insn & 15))
	}
	if insn&(1<<23) == 0 {
		offset = -offset
	}

	addr := s.GetRegPC(baseReg)
	var writeback bool
	if insn&(1<<24) != 0 {
		addr += offset
		offset = 0
		writeback = insn&(1<<21) != 0
	} else {
		if insn&(1<<21) != 0 {
			s.fatal("T-type memory access is not implemented")
		}
		writeback = true
	}

	load := insn&(1<<20) != 0

	switch {
	case kind == 1 && load: // LDRH
		if baseReg == dataReg && writeback {
			s.fatal("load instruction modifies base register twice")
		}
		h, ok := s.Bus.ReadHalf(addr)
		if !ok {
			return
		}
		s.SetReg(dataReg, uint32(h))
	case kind == 2 && load: // LDRSB
		if baseReg == dataReg && writeback {
			s.fatal("load instruction modifies base register twice")
		}
		b, ok := s.Bus.ReadByte(addr)
		if !ok {
			return
		}
		s.SetReg(dataReg, uint32(int32(int8(b))))
	case kind == 3 && load: // LDRSH
		if baseReg == dataReg && writeback {
			s.fatal("load instruction modifies base register twice")
		}
		h, ok := s.Bus.ReadHalf(addr)
		if !ok {
			return
		}
		s.SetReg(dataReg, uint32(int32(int16(h))))
	case kind == 1: // STRH
		if !s.Bus.WriteHalf(addr, uint16(s.GetRegPC(dataReg))) {
			return
		}
	case kind == 2: // LDRD (L is always 0 in this encoding)
		if dataReg&1 != 0 {
			s.fatal("LDRD/STRD with an odd-numbered data register")
		}
		if baseReg&^1 == dataReg && writeback {
			s.fatal("load instruction modifies base register twice")
		}
		low, ok := s.Bus.ReadWord(addr)
		if !ok {
			return
		}
		high, ok := s.Bus.ReadWord(addr + 4)
		if !ok {
			return
		}
		s.SetReg(dataReg, low)
		s.SetReg(dataReg+1, high)
	default: // STRD (kind == 3, L == 0)
		if dataReg&1 != 0 {
			s.fatal("LDRD/STRD with an odd-numbered data register")
		}
		if !s.Bus.WriteWord(addr, s.Reg[dataReg]) {
			return
		}
		if !s.Bus.WriteWord(addr+4, s.Reg[dataReg+1]) {
			return
		}
	}
	if writeback {
		s.SetReg(baseReg, addr+offset)
	}
}
