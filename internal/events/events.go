/*
 * nspire_emu-core - Execution loop event word.
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

// Package events holds the bitset the execution loop polls between
// instructions. External producers (the interrupt controller, the
// console, a future GUI) only ever set or clear bits here; they never
// reach into CPU or device state directly.
package events

import "sync/atomic"

// Bits of the event word.
const (
	IRQ       uint32 = 1 << 0
	FIQ       uint32 = 1 << 1
	Reset     uint32 = 1 << 2
	DebugStep uint32 = 1 << 3
	Waiting   uint32 = 1 << 4
)

// Word is a bitset safe to set/clear from any goroutine and to read
// from the emulation loop without locking.
type Word struct {
	bits atomic.Uint32
}

// Set raises the given bits.
func (w *Word) Set(bits uint32) {
	w.Replace(bits, 0)
}

// Clear lowers the given bits.
func (w *Word) Clear(bits uint32) {
	w.Replace(0, bits)
}

// Replace atomically sets the bits in set and clears the bits in clear.
func (w *Word) Replace(set, clear uint32) {
	for {
		old := w.bits.Load()
		next := (old &^ clear) | set
		if w.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Load returns the current value of the event word.
func (w *Word) Load() uint32 {
	return w.bits.Load()
}

// Any reports whether any bit is set.
func (w *Word) Any() bool {
	return w.bits.Load() != 0
}
