/*
 * nspire_emu-core - Barrel shifter.
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

// Shift types encoded in bits 6..5 of a register-shift operand.
const (
	ShiftLSL = 0
	ShiftLSR = 1
	ShiftASR = 2
	ShiftROR = 3
)

// Shift applies one of the four shift types to val by count, updating
// C when setcc is true. count==0 is always a no-op (spec §4.3); the
// immediate-encoded LSR#0/ASR#0/ROR#0 special cases are resolved by
// the caller before reaching here (see ShiftImmediate).
func (s *State) Shift(kind int, val, count uint32, setcc bool) uint32 {
	if count == 0 {
		return val
	}
	switch kind {
	case ShiftLSL:
		if count >= 32 {
			if setcc {
				if count == 32 {
					s.C = val&1 != 0
				} else {
					s.C = false
				}
			}
			return 0
		}
		if setcc {
			s.C = (val>>(32-count))&1 != 0
		}
		return val << count
	case ShiftLSR:
		if count >= 32 {
			if setcc {
				if count == 32 {
					s.C = val>>31 != 0
				} else {
					s.C = false
				}
			}
			return 0
		}
		if setcc {
			s.C = (val>>(count-1))&1 != 0
		}
		return val >> count
	case ShiftASR:
		if count >= 32 {
			count = 32
		}
		if setcc {
			if count == 32 {
				s.C = val>>31 != 0
			} else {
				s.C = (val>>(count-1))&1 != 0
			}
		}
		return uint32(int32(val) >> minU(count, 31))
	case ShiftROR:
		count &= 31
		if count == 0 {
			// A register-specified count that is a nonzero multiple
			// of 32 leaves the value unchanged but still latches C.
			if setcc {
				s.C = val>>31 != 0
			}
			return val
		}
		res := val>>count | val<<(32-count)
		if setcc {
			s.C = res>>31 != 0
		}
		return res
	default:
		s.fatal("unreachable shift type %d", kind)
		return 0
	}
}

func minU(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// RRX rotates val right by one through the carry flag (ROR#0 in the
// immediate shift encoding).
func (s *State) RRX(val uint32, setcc bool) uint32 {
	var carryIn uint32
	if s.C {
		carryIn = 1
	}
	res := carryIn<<31 | val>>1
	if setcc {
		s.C = val&1 != 0
	}
	return res
}

// ShiftImmediate resolves the ARM immediate-shift special cases
// (LSL#0 identity, LSR#0 == LSR#32, ASR#0 == ASR#32, ROR#0 == RRX)
// before applying Shift.
func (s *State) ShiftImmediate(kind int, val uint32, count uint32, setcc bool) uint32 {
	if count == 0 {
		switch kind {
		case ShiftLSL:
			return val
		case ShiftLSR:
			return s.Shift(ShiftLSR, val, 32, setcc)
		case ShiftASR:
			return s.Shift(ShiftASR, val, 32, setcc)
		case ShiftROR:
			return s.RRX(val, setcc)
		}
	}
	return s.Shift(kind, val, count, setcc)
}
