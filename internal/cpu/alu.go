/*
 * nspire_emu-core - Flag-setting arithmetic primitives.
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

// Add computes left+right+carryIn. When setcc is true it updates the
// C and V flags per spec §4.4; N/Z are left to the caller (SetNZ),
// since compare forms need the result without writing a destination.
func (s *State) Add(left, right uint32, carryIn uint32, setcc bool) uint32 {
	sum := left + right + carryIn
	if setcc {
		var carryOut uint32
		switch {
		case sum < left:
			carryOut = 1
		case sum > left:
			carryOut = 0
		default:
			carryOut = carryIn
		}
		s.C = carryOut != 0
		s.V = (left^sum)&(right^sum)>>31 != 0
	}
	return sum
}

// Sub computes left-right-(1-carryIn) (carryIn 0 means "borrow", 1 means
// "no borrow", matching ARM's carry-as-NOT-borrow convention) by
// reusing Add with the right operand inverted.
func (s *State) Sub(left, right uint32, carryIn uint32, setcc bool) uint32 {
	return s.Add(left, ^right, carryIn, setcc)
}

// SetNZ sets N and Z from a 32-bit result.
func (s *State) SetNZ(result uint32) {
	s.N = result>>31 != 0
	s.Z = result == 0
}

// SetNZ64 sets N and Z from a 64-bit result (UMULL/UMLAL/SMULL/SMLAL).
func (s *State) SetNZ64(result uint64) {
	s.N = result>>63 != 0
	s.Z = result == 0
}
