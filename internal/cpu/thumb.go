/*
 * nspire_emu-core - Thumb-1 instruction decode and execute.
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

// ExecuteThumb executes one 16-bit Thumb instruction at the current
// PC, which the caller has already advanced by 2. It dispatches on
// the top byte, the 23 families of spec §4.6.
func (s *State) ExecuteThumb(insn uint16) {
	switch insn >> 13 {
	case 0: // Shift immediate, or add/sub reg/imm3.
		if insn&0x1800 == 0x1800 {
			s.thumbAddSub(insn)
		} else {
			s.thumbShiftImmediate(insn)
		}
	case 1: // MOV/CMP/ADD/SUB Rd, #imm8.
		s.thumbImmediate(insn)
	default:
		switch insn >> 10 {
		case 0x10: // 010000: ALU operations.
			s.thumbALU(insn)
		case 0x11: // 010001: high-register ops / BX.
			s.thumbHiReg(insn)
		default:
			s.thumbDispatchUpper(insn)
		}
	}
}

func (s *State) thumbDispatchUpper(insn uint16) {
	switch insn >> 11 {
	case 0x09: // 01001: PC-relative LDR.
		s.thumbPCRelativeLoad(insn)
	case 0x0A, 0x0B: // 0101xx: register-offset load/store.
		if insn&0x0200 == 0 {
			s.thumbRegOffsetTransfer(insn)
		} else {
			s.thumbSignExtendTransfer(insn)
		}
	case 0x0C, 0x0D, 0x0E, 0x0F, 0x10, 0x11:
		s.thumbImmOffsetTransfer(insn) // 011xx word/byte, 1000x halfword imm offset.
	case 0x12, 0x13: // 1001x: SP-relative load/store.
		s.thumbSPRelativeTransfer(insn)
	case 0x14, 0x15: // 1010x: ADD Rd, PC/SP.
		s.thumbAddPCOrSP(insn)
	case 0x16, 0x17: // 1011x: ADD/SUB SP,#imm7; PUSH/POP; BKPT.
		s.thumbMisc(insn)
	case 0x18, 0x19: // 1100x: STMIA/LDMIA.
		s.thumbBlockTransfer(insn)
	case 0x1A, 0x1B: // 1101x: conditional branch, or SWI (cond==1111).
		s.thumbCondBranchOrSWI(insn)
	case 0x1C: // 11100: unconditional branch.
		offset := int32(uint32(insn)<<21) >> 20
		s.Reg[15] = uint32(int32(s.Reg[15]) + 2 + offset)
	default: // 0x1D BLX suffix, 0x1E BL prefix, 0x1F BL suffix.
		s.thumbBranchLongHalf(insn)
	}
}

// thumbShiftImmediate implements LSL/LSR/ASR Rd, Rs, #imm5.
func (s *State) thumbShiftImmediate(insn uint16) {
	kind := int(insn >> 11 & 3)
	count := uint32(insn >> 6 & 31)
	rs := int(insn >> 3 & 7)
	rd := int(insn & 7)
	val := s.Reg[rs]
	res := s.ShiftImmediate(kind, val, count, true)
	s.SetReg(rd, res)
	s.SetNZ(res)
}

// thumbAddSub implements ADD/SUB Rd, Rs, Rn and ADD/SUB Rd, Rs, #imm3.
func (s *State) thumbAddSub(insn uint16) {
	rs := int(insn >> 3 & 7)
	rd := int(insn & 7)
	left := s.Reg[rs]

	var right uint32
	if insn&0x0400 != 0 {
		right = uint32(insn >> 6 & 7)
	} else {
		right = s.Reg[insn>>6&7]
	}

	var res uint32
	if insn&0x0200 != 0 {
		res = s.Add(left, ^right, 1, true)
	} else {
		res = s.Add(left, right, 0, true)
	}
	s.SetReg(rd, res)
	s.SetNZ(res)
}

// thumbImmediate implements MOV/CMP/ADD/SUB Rd, #imm8.
func (s *State) thumbImmediate(insn uint16) {
	rd := int(insn >> 8 & 7)
	imm := uint32(insn & 0xFF)
	op := insn >> 11 & 3

	switch op {
	case 0: // MOV
		s.SetReg(rd, imm)
		s.SetNZ(imm)
	case 1: // CMP
		res := s.Add(s.Reg[rd], ^imm, 1, true)
		s.SetNZ(res)
	case 2: // ADD
		res := s.Add(s.Reg[rd], imm, 0, true)
		s.SetReg(rd, res)
		s.SetNZ(res)
	default: // SUB
		res := s.Add(s.Reg[rd], ^imm, 1, true)
		s.SetReg(rd, res)
		s.SetNZ(res)
	}
}

// thumbALU implements the 16-opcode ALU family (spec §4.6): identical
// semantics to the ARM data-processing opcodes, but always flag-setting
// with a fixed low-register destination.
func (s *State) thumbALU(insn uint16) {
	rd := int(insn & 7)
	rs := int(insn >> 3 & 7)
	op := insn >> 6 & 15
	left := s.Reg[rd]
	right := s.Reg[rs]
	carryIn := uint32(0)
	if s.C {
		carryIn = 1
	}

	var res uint32
	write := true
	switch op {
	case 0: // AND
		res = left & right
	case 1: // EOR
		res = left ^ right
	case 2: // LSL
		res = s.Shift(ShiftLSL, left, right&0xFF, true)
	case 3: // LSR
		res = s.Shift(ShiftLSR, left, right&0xFF, true)
	case 4: // ASR
		res = s.Shift(ShiftASR, left, right&0xFF, true)
	case 5: // ADC
		res = s.Add(left, right, carryIn, true)
	case 6: // SBC
		res = s.Add(left, ^right, carryIn, true)
	case 7: // ROR
		res = s.Shift(ShiftROR, left, right&0xFF, true)
	case 8: // TST
		res = left & right
		write = false
	case 9: // NEG
		res = s.Add(0, ^right, 1, true)
	case 10: // CMP
		res = s.Add(left, ^right, 1, true)
		write = false
	case 11: // CMN
		res = s.Add(left, right, 0, true)
		write = false
	case 12: // ORR
		res = left | right
	case 13: // MUL
		res = left * right
	case 14: // BIC
		res = left &^ right
	default: // MVN
		res = ^right
	}

	if write {
		s.SetReg(rd, res)
	}
	s.SetNZ(res)
}

// thumbHiReg implements ADD/CMP/MOV with any of R0..R15, and
// BX/BLX-register.
func (s *State) thumbHiReg(insn uint16) {
	rd := int(insn&7) | int(insn>>4&8)
	rs := int(insn >> 3 & 15)
	op := insn >> 8 & 3

	switch op {
	case 0: // ADD
		s.SetReg(rd, s.GetRegPCThumb(rd)+s.GetRegPCThumb(rs))
	case 1: // CMP
		res := s.Add(s.GetRegPCThumb(rd), ^s.GetRegPCThumb(rs), 1, true)
		s.SetNZ(res)
	case 2: // MOV
		s.SetReg(rd, s.GetRegPCThumb(rs))
	default: // BX/BLX
		target := s.GetRegPCThumb(rs)
		if insn&0x80 != 0 {
			s.Reg[14] = s.Reg[15] | 1
		}
		s.SetRegBX(15, target)
	}
}

// thumbPCRelativeLoad implements LDR Rd, [PC, #imm8*4].
func (s *State) thumbPCRelativeLoad(insn uint16) {
	rd := int(insn >> 8 & 7)
	imm := uint32(insn&0xFF) << 2
	addr := (s.Reg[15]+2)&^3 + imm
	v, ok := s.Bus.ReadWord(addr)
	if !ok {
		return
	}
	s.SetReg(rd, v)
}

// thumbRegOffsetTransfer implements STR/STRB/LDR/LDRB Rd, [Rb, Ro].
func (s *State) thumbRegOffsetTransfer(insn uint16) {
	rd := int(insn & 7)
	rb := int(insn >> 3 & 7)
	ro := int(insn >> 6 & 7)
	addr := s.Reg[rb] + s.Reg[ro]
	byteOp := insn&0x0400 != 0
	load := insn&0x0800 != 0

	if load {
		var v uint32
		var ok bool
		if byteOp {
			var b uint8
			b, ok = s.Bus.ReadByte(addr)
			v = uint32(b)
		} else {
			v, ok = s.Bus.ReadWord(addr)
		}
		if !ok {
			return
		}
		s.SetReg(rd, v)
		return
	}
	if byteOp {
		s.Bus.WriteByte(addr, uint8(s.Reg[rd]))
	} else {
		s.Bus.WriteWord(addr, s.Reg[rd])
	}
}

// thumbSignExtendTransfer implements STRH/LDRH/LDSB/LDSH Rd, [Rb, Ro].
func (s *State) thumbSignExtendTransfer(insn uint16) {
	rd := int(insn & 7)
	rb := int(insn >> 3 & 7)
	ro := int(insn >> 6 & 7)
	addr := s.Reg[rb] + s.Reg[ro]

	switch insn >> 10 & 3 {
	case 0: // STRH
		s.Bus.WriteHalf(addr, uint16(s.Reg[rd]))
	case 1: // LDSB
		b, ok := s.Bus.ReadByte(addr)
		if !ok {
			return
		}
		s.SetReg(rd, uint32(int32(int8(b))))
	case 2: // LDRH
		h, ok := s.Bus.ReadHalf(addr)
		if !ok {
			return
		}
		s.SetReg(rd, uint32(h))
	default: // LDSH
		h, ok := s.Bus.ReadHalf(addr)
		if !ok {
			return
		}
		s.SetReg(rd, uint32(int32(int16(h))))
	}
}

// thumbImmOffsetTransfer implements STR/LDR/STRB/LDRB Rd, [Rb, #imm]
// and STRH/LDRH Rd, [Rb, #imm5*2].
func (s *State) thumbImmOffsetTransfer(insn uint16) {
	rd := int(insn & 7)
	rb := int(insn >> 3 & 7)
	imm := uint32(insn >> 6 & 31)

	if insn&0x8000 != 0 { // 1000x: STRH/LDRH, #imm5*2.
		addr := s.Reg[rb] + imm*2
		if insn&0x0800 != 0 {
			h, ok := s.Bus.ReadHalf(addr)
			if !ok {
				return
			}
			s.SetReg(rd, uint32(h))
		} else {
			s.Bus.WriteHalf(addr, uint16(s.Reg[rd]))
		}
		return
	}

	byteOp := insn&0x1000 != 0
	load := insn&0x0800 != 0
	var addr uint32
	if byteOp {
		addr = s.Reg[rb] + imm
	} else {
		addr = s.Reg[rb] + imm*4
	}

	if load {
		var v uint32
		var ok bool
		if byteOp {
			var b uint8
			b, ok = s.Bus.ReadByte(addr)
			v = uint32(b)
		} else {
			v, ok = s.Bus.ReadWord(addr)
		}
		if !ok {
			return
		}
		s.SetReg(rd, v)
		return
	}
	if byteOp {
		s.Bus.WriteByte(addr, uint8(s.Reg[rd]))
	} else {
		s.Bus.WriteWord(addr, s.Reg[rd])
	}
}

// thumbSPRelativeTransfer implements STR/LDR Rd, [SP, #imm8*4].
func (s *State) thumbSPRelativeTransfer(insn uint16) {
	rd := int(insn >> 8 & 7)
	imm := uint32(insn&0xFF) << 2
	addr := s.Reg[13] + imm
	if insn&0x0800 != 0 {
		v, ok := s.Bus.ReadWord(addr)
		if !ok {
			return
		}
		s.SetReg(rd, v)
		return
	}
	s.Bus.WriteWord(addr, s.Reg[rd])
}

// thumbAddPCOrSP implements ADD Rd, PC, #imm8*4 and ADD Rd, SP, #imm8*4.
func (s *State) thumbAddPCOrSP(insn uint16) {
	rd := int(insn >> 8 & 7)
	imm := uint32(insn&0xFF) << 2
	if insn&0x0800 != 0 {
		s.SetReg(rd, s.Reg[13]+imm)
	} else {
		s.SetReg(rd, (s.Reg[15]+2)&^3+imm)
	}
}

// thumbMisc implements ADD/SUB SP, #imm7 and PUSH/POP {...}.
func (s *State) thumbMisc(insn uint16) {
	switch {
	case insn&0xFF00 == 0xB000: // ADD/SUB SP, #imm7*4.
		imm := uint32(insn&0x7F) << 2
		if insn&0x80 != 0 {
			s.Reg[13] -= imm
		} else {
			s.Reg[13] += imm
		}
	case insn&0xF600 == 0xB400: // PUSH/POP {rlist}[,LR/PC].
		s.thumbPushPop(insn)
	case insn&0xFF00 == 0xBE00: // BKPT
		s.Warn("software breakpoint at 0x%08x", s.Reg[15]-2)
	default:
		s.fatal("undecoded Thumb misc instruction 0x%04x", insn)
	}
}

func (s *State) thumbPushPop(insn uint16) {
	pop := insn&0x0800 != 0
	extra := insn&0x0100 != 0
	sp := s.Reg[13]

	if pop {
		addr := sp
		for i := 0; i < 8; i++ {
			if insn&(1<<i) == 0 {
				continue
			}
			v, ok := s.Bus.ReadWord(addr)
			if !ok {
				return
			}
			s.SetReg(i, v)
			addr += 4
		}
		if extra {
			v, ok := s.Bus.ReadWord(addr)
			if !ok {
				return
			}
			s.SetRegBX(15, v)
			addr += 4
		}
		s.Reg[13] = addr
		return
	}

	count := 0
	for i := 0; i < 8; i++ {
		if insn&(1<<i) != 0 {
			count++
		}
	}
	if extra {
		count++
	}
	addr := sp - uint32(count)*4
	s.Reg[13] = addr
	for i := 0; i < 8; i++ {
		if insn&(1<<i) == 0 {
			continue
		}
		if !s.Bus.WriteWord(addr, s.Reg[i]) {
			return
		}
		addr += 4
	}
	if extra {
		s.Bus.WriteWord(addr, s.Reg[14])
	}
}

// thumbBlockTransfer implements STMIA/LDMIA Rb!, {rlist}.
func (s *State) thumbBlockTransfer(insn uint16) {
	rb := int(insn >> 8 & 7)
	load := insn&0x0800 != 0
	addr := s.Reg[rb]

	for i := 0; i < 8; i++ {
		if insn&(1<<i) == 0 {
			continue
		}
		if load {
			v, ok := s.Bus.ReadWord(addr)
			if !ok {
				return
			}
			s.SetReg(i, v)
		} else {
			if !s.Bus.WriteWord(addr, s.Reg[i]) {
				return
			}
		}
		addr += 4
	}
	s.Reg[rb] = addr
}

// thumbCondBranchOrSWI implements B<cond>, and SWI when cond==1111.
func (s *State) thumbCondBranchOrSWI(insn uint16) {
	cond := insn >> 8 & 15
	if cond == 15 {
		s.Exception(ExSWI)
		return
	}
	if !s.checkCondThumb(cond) {
		return
	}
	offset := int32(int8(insn & 0xFF))
	s.Reg[15] = uint32(int32(s.Reg[15]) + 2 + offset*2)
}

func (s *State) checkCondThumb(cond uint16) bool {
	return s.checkCond(uint32(cond) << 28)
}

// thumbBranchLongHalf implements the two-halfword BL (and BLX, an
// ARMv5 addition) sequence: the first half seeds LR with a PC-relative
// high offset, the second half completes the branch and sets LR to
// the return address.
func (s *State) thumbBranchLongHalf(insn uint16) {
	if insn&0x0800 == 0 {
		// Bit 10 of the 11-bit offset field is the sign bit; shifting
		// it up to bit 31 before the arithmetic right shift sign-extends
		// it into bits [22:12] instead of discarding the field's low
		// bits the way a pre-shifted 16-bit sign extension would.
		offset := int32(insn) << 21 >> 9
		s.Reg[14] = uint32(int32(s.Reg[15]) + 2 + offset)
		return
	}
	target := s.Reg[14] + uint32(insn&0x7FF)<<1
	ret := s.Reg[15] + 2
	if insn&0x1000 != 0 { // BL: stay in Thumb.
		s.Reg[14] = ret | 1
		s.Reg[15] = target
	} else { // BLX: switch to ARM, target word-aligned.
		s.Reg[14] = ret | 1
		s.SetRegBX(15, target&^3)
	}
}
