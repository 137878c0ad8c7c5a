/*
 * nspire_emu-core - ARM data-processing, memory, and branch classes.
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

// getShiftedImmediate decodes a data-processing immediate operand: an
// 8-bit value rotated right by 2*rot.
func (s *State) getShiftedImmediate(insn uint32, setcc bool) uint32 {
	count := insn >> 7 & 30
	val := insn & 0xFF
	if count != 0 {
		val = val>>count | val<<(32-count)
		if setcc {
			s.C = val&0x80000000 != 0
		}
	}
	return val
}

// getShiftedRegister decodes a data-processing register operand,
// handling the immediate-shift special cases and the register-count
// "bit 7 must be 0" rule.
func (s *State) getShiftedRegister(insn uint32, setcc bool) uint32 {
	res := s.GetRegPC(int(insn & 15))
	kind := int(insn >> 5 & 3)

	if insn&(1<<4) != 0 {
		if insn&(1<<7) != 0 {
			s.fatal("shift by register with bit 7 set")
		}
		count := s.Reg[insn>>8&15] & 0xFF
		return s.Shift(kind, res, count, setcc)
	}
	count := insn >> 7 & 31
	return s.ShiftImmediate(kind, res, count, setcc)
}

// executeDataProcessing implements the 16 data-processing opcodes
// (spec §4.5 table).
func (s *State) executeDataProcessing(insn uint32) {
	setcc := insn>>20&1 != 0
	opcode := insn >> 21 & 15
	destReg := int(insn >> 12 & 15)
	carryIn := uint32(0)
	if s.C {
		carryIn = 1
	}

	left := s.GetRegPC(int(insn >> 16 & 15))
	var right uint32
	if insn&(1<<25) != 0 {
		right = s.getShiftedImmediate(insn, setcc)
	} else {
		right = s.getShiftedRegister(insn, setcc)
	}

	var res uint32
	switch opcode {
	case 0: // AND
		res = left & right
	case 1: // EOR
		res = left ^ right
	case 2: // SUB
		res = s.Add(left, ^right, 1, setcc)
	case 3: // RSB
		res = s.Add(^left, right, 1, setcc)
	case 4: // ADD
		res = s.Add(left, right, 0, setcc)
	case 5: // ADC
		res = s.Add(left, right, carryIn, setcc)
	case 6: // SBC
		res = s.Add(left, ^right, carryIn, setcc)
	case 7: // RSC
		res = s.Add(^left, right, carryIn, setcc)
	case 8: // TST
		res = left & right
	case 9: // TEQ
		res = left ^ right
	case 10: // CMP
		res = s.Add(left, ^right, 1, setcc)
	case 11: // CMN
		res = s.Add(left, right, 0, setcc)
	case 12: // ORR
		res = left | right
	case 13: // MOV
		res = right
	case 14: // BIC
		res = left &^ right
	default: // MVN
		res = ^right
	}

	if opcode&12 == 8 {
		if destReg != 0 {
			s.fatal("compare instruction has a nonzero destination register")
		}
	} else {
		s.SetReg(destReg, res)
	}

	if setcc {
		s.SetNZ(res)
		if destReg == 15 {
			s.SetCPSRFull(s.GetSPSR())
		}
	}
}

// executeMisc implements MRS, MSR, BX/BLX-register, signed multiplies,
// saturating arithmetic, CLZ, and BKPT — the instructions sharing the
// 0x1000000 misc-class mask (spec §4.5).
func (s *State) executeMisc(insn uint32) {
	switch {
	case insn&0xFFFFFD0 == 0x12FFF10:
		s.execBXBLX(insn)
	case insn&0xFBF0FFF == 0x10F0000:
		var v uint32
		if insn&0x0400000 != 0 {
			v = s.GetSPSR()
		} else {
			v = s.GetCPSR()
		}
		s.SetReg(int(insn>>12&15), v)
	case insn&0xFB0FFF0 == 0x120F000 || insn&0xFB0F000 == 0x320F000:
		s.execMSR(insn)
	case insn&0xF900090 == 0x1000080:
		s.execSignedMultiply(insn)
	case insn&0xF900FF0 == 0x1000050:
		s.execSaturatingArith(insn)
	case insn&0xFFF0FF0 == 0x16F0F10:
		s.execCLZ(insn)
	case insn&0xFFF000F0 == 0xE1200070:
		s.Warn("software breakpoint at 0x%08x", s.Reg[15]-4)
	default:
		s.fatal("undecoded misc-class instruction 0x%08x", insn)
	}
}

func (s *State) execBXBLX(insn uint32) {
	target := s.GetRegPC(int(insn & 15))
	if insn&0x20 != 0 {
		s.Reg[14] = s.Reg[15]
	}
	s.SetRegBX(15, target)
}

func (s *State) execMSR(insn uint32) {
	var val uint32
	if insn&0x2000000 != 0 {
		val = s.getShiftedImmediate(insn, false)
	} else {
		val = s.GetRegPC(int(insn & 15))
	}
	var mask uint32
	if insn&0x0080000 != 0 {
		mask |= 0xFF000000
	}
	if insn&0x0040000 != 0 {
		mask |= 0x00FF0000
	}
	if insn&0x0020000 != 0 {
		mask |= 0x0000FF00
	}
	if insn&0x0010000 != 0 {
		mask |= 0x000000FF
	}
	if insn&0x0400000 != 0 {
		s.SetSPSR(val, mask)
	} else {
		s.SetCPSR(val, mask)
	}
}

// halfOf extracts the top or bottom 16-bit half of a register as a
// sign-extended 32-bit value, per the x/y bits of the signed
// multiply-accumulate family.
func halfOf(v uint32, top bool) int32 {
	if top {
		return int32(int16(v >> 16))
	}
	return int32(int16(v))
}

// execSignedMultiply implements the SMLAxy/SMLAWy/SMULWy/SMLALxy/SMULxy
// family (op1 field at bits 22:21, x/y halfword-select at bits 5/6).
func (s *State) execSignedMultiply(insn uint32) {
	rm := s.Reg[insn&15]
	rs := s.Reg[insn>>8&15]
	op1 := insn >> 21 & 3
	x := insn&0x20 != 0
	y := insn&0x40 != 0

	var product int32
	if op1 == 1 {
		// SMLAWy/SMULWy: Rm (full 32 bits) times the y half of Rs.
		product = int32((int64(int32(rm)) * int64(halfOf(rs, y))) >> 16)
	} else {
		product = halfOf(rm, x) * halfOf(rs, y)
	}

	switch op1 {
	case 2: // SMLALxy: 64-bit accumulate
		regLo := int(insn >> 12 & 15)
		regHi := int(insn >> 16 & 15)
		if regLo == regHi {
			s.fatal("RdLo and RdHi cannot be the same register for 64-bit accumulate")
		}
		sum := int64(product) + int64(uint64(s.Reg[regHi])<<32|uint64(s.Reg[regLo]))
		s.SetReg(regLo, uint32(sum))
		s.SetReg(regHi, uint32(sum>>32))
	case 0, 1: // SMLAxy, SMLAWy (accumulate) / SMULWy (bit 5 selects no-accumulate)
		if op1 == 1 && x {
			s.SetReg(int(insn>>16&15), uint32(product))
			return
		}
		acc := int32(s.GetRegPC(int(insn >> 12 & 15)))
		sum := product + acc
		if addOverflow(product, acc, sum) {
			s.cpsrLow28 |= 1 << 27
		}
		s.SetReg(int(insn>>16&15), uint32(sum))
	default: // SMULxy: no accumulate
		s.SetReg(int(insn>>16&15), uint32(product))
	}
}

func addOverflow(left, right, sum int32) bool {
	return (left^sum)&(right^sum) < 0
}

func subOverflow(left, right, sum int32) bool {
	return (left^right)&(left^sum) < 0
}

func (s *State) execSaturatingArith(insn uint32) {
	left := int32(s.GetRegPC(int(insn & 15)))
	right := int32(s.GetRegPC(int(insn >> 16 & 15)))

	if insn&0x400000 != 0 {
		res := right << 1
		if addOverflow(right, right, res) {
			s.cpsrLow28 |= 1 << 27
			res = saturate(res)
		}
		right = res
	}

	var res int32
	var overflow bool
	if insn&0x200000 == 0 {
		res = left + right
		overflow = addOverflow(left, right, res)
	} else {
		res = left - right
		overflow = subOverflow(left, right, res)
	}
	if overflow {
		s.cpsrLow28 |= 1 << 27
		res = saturate(res)
	}
	s.SetReg(int(insn>>12&15), uint32(res))
}

func saturate(res int32) int32 {
	if res < 0 {
		return 0x7FFFFFFF
	}
	return -0x80000000
}

func (s *State) execCLZ(insn uint32) {
	value := int32(s.GetRegPC(int(insn & 15)))
	var zeros uint32
	for zeros < 32 && value >= 0 {
		value <<= 1
		zeros++
	}
	s.SetReg(int(insn>>12&15), zeros)
}

// executeSingleTransfer implements LDR/STR/LDRB/STRB.
func (s *State) executeSingleTransfer(insn uint32) {
	baseReg := int(insn >> 16 & 15)
	dataReg := int(insn >> 12 & 15)

	var offset uint32
	if insn&(1<<25) != 0 {
		if insn&(1<<4) != 0 {
			s.fatal("cannot shift a memory offset by a register")
		}
		offset = s.getShiftedRegister(insn, false)
	} else {
		offset = insn & 0xFFF
	}

	addr := s.GetRegPC(baseReg)
	if insn&(1<<23) == 0 {
		offset = -offset
	}

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

	if insn&(1<<20) != 0 {
		if dataReg == baseReg && writeback {
			s.fatal("load instruction modifies base register twice")
		}
		var ok bool
		var v uint32
		if insn&(1<<22) != 0 {
			var b uint8
			b, ok = s.Bus.ReadByte(addr)
			v = uint32(b)
		} else {
			v, ok = s.Bus.ReadWord(addr)
		}
		if !ok {
			return
		}
		s.SetRegBX(dataReg, v)
	} else {
		store := s.GetRegPCData(dataReg)
		var ok bool
		if insn&(1<<22) != 0 {
			ok = s.Bus.WriteByte(addr, uint8(store))
		} else {
			ok = s.Bus.WriteWord(addr, store)
		}
		if !ok {
			return
		}
	}
	if writeback {
		s.SetReg(baseReg, addr+offset)
	}
}

// executeBlockTransfer implements LDM/STM with all four
// increment/decrement x before/after addressing modes and the
// user-bank (S bit) override.
func (s *State) executeBlockTransfer(insn uint32) {
	baseReg := int(insn >> 16 & 15)
	addr := s.Reg[baseReg]
	newBase := addr

	count := uint32(0)
	for i := 0; i < 16; i++ {
		if insn>>i&1 != 0 {
			count++
		}
	}

	if insn&(1<<23) != 0 { // Increasing
		if insn&(1<<21) != 0 {
			newBase += count * 4
		}
		if insn&(1<<24) != 0 {
			addr += 4
		}
	} else { // Decreasing
		addr -= count * 4
		if insn&(1<<21) != 0 {
			newBase = addr
		}
		if insn&(1<<24) == 0 {
			addr += 4
		}
	}

	userBank := insn&(1<<22) != 0 && insn&((1<<20)|(1<<15)) == 0

	for i := 0; i < 15; i++ {
		if insn>>i&1 == 0 {
			continue
		}
		if insn&(1<<20) != 0 { // Load
			val, ok := s.Bus.ReadWord(addr)
			if !ok {
				return
			}
			if i == baseReg {
				if insn&(1<<21) != 0 {
					s.fatal("load instruction modifies base register twice")
				}
				newBase = val
			} else if userBank {
				s.SetUserBankReg(i, val)
			} else {
				s.Reg[i] = val
			}
		} else { // Store
			var val uint32
			if userBank {
				val = s.UserBankReg(i)
			} else {
				val = s.Reg[i]
			}
			if !s.Bus.WriteWord(addr, val) {
				return
			}
		}
		addr += 4
	}

	if insn&(1<<15) != 0 {
		if insn&(1<<20) != 0 {
			val, ok := s.Bus.ReadWord(addr)
			if !ok {
				return
			}
			s.SetRegBX(15, val)
		} else {
			if !s.Bus.WriteWord(addr, s.Reg[15]+8) {
				return
			}
		}
	}

	s.Reg[baseReg] = newBase
	if insn&((1<<22)|(1<<20)|(1<<15)) == (1<<22)|(1<<20)|(1<<15) {
		s.SetCPSRFull(s.GetSPSR())
	}
}

// executeBranch implements B/BL.
func (s *State) executeBranch(insn uint32) {
	if insn&(1<<24) != 0 {
		s.Reg[14] = s.Reg[15]
	}
	offset := int32(insn<<8) >> 6
	s.Reg[15] += 4 + uint32(offset)
}

func cp15Fields(insn uint32) (crn, crm, op2, op1 uint32) {
	return insn >> 16 & 15, insn & 15, insn >> 5 & 7, insn >> 21 & 7
}

func (s *State) executeMCR(insn uint32) {
	crn, crm, op2, op1 := cp15Fields(insn)
	if insn>>8&15 != 15 {
		s.Exception(ExUndefined)
		return
	}
	s.MCRCoproc15(crn, crm, op2, op1, s.Reg[insn>>12&15])
}

func (s *State) executeMRC(insn uint32) {
	crn, crm, op2, op1 := cp15Fields(insn)
	if insn>>8&15 != 15 {
		s.Exception(ExUndefined)
		return
	}
	value := s.MRCCoproc15(crn, crm, op2, op1)
	dest := insn >> 12 & 15
	if dest == 15 {
		s.N = value>>31&1 != 0
		s.Z = value>>30&1 != 0
		s.C = value>>29&1 != 0
		s.V = value>>28&1 != 0
	} else {
		s.Reg[dest] = value
	}
}
