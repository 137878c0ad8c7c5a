/*
 * nspire_emu-core - Prioritized interrupt controller.
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

// Package intc implements the interrupt controller (spec §4.12):
// active/noninverted/sticky inputs feeding a per-line priority table,
// aggregated into the CPU's IRQ and FIQ lines.
package intc

const numLines = 32

// Line selects which CPU line a priority limit or status bit feeds.
type Line int

const (
	IRQ Line = iota
	FIQ
)

// CPU is the subset of cpu.State the controller drives; kept as an
// interface so intc has no import-time dependency on the cpu package.
type CPU interface {
	SetInterruptLines(irq, fiq bool)
}

// Controller implements the register window described by spec §4.12.
type Controller struct {
	active      uint32
	noninverted uint32
	stickyMask  uint32
	priority    [numLines]uint8
	mask        [2]uint32 // mask[IRQ], mask[FIQ]

	priorityLimit     [2]uint8
	prevPriorityLimit [2]uint8

	stickyStatus uint32
	rawStatus    uint32

	cpu CPU
}

// New creates a controller wired to cpu; priority limits start at 7
// (lowest), admitting every line once its mask bit is set.
func New(cpu CPU) *Controller {
	c := &Controller{cpu: cpu}
	c.priorityLimit[IRQ] = 7
	c.priorityLimit[FIQ] = 7
	return c
}

// status merges raw and sticky status under the sticky mask (spec
// §4.12: status = (raw & ~sticky_mask) | (sticky_status & sticky_mask)).
func (c *Controller) status() uint32 {
	return (c.rawStatus &^ c.stickyMask) | (c.stickyStatus & c.stickyMask)
}

// recompute re-derives raw_status and sticky_status, then re-evaluates
// the IRQ/FIQ aggregation and posts it to the CPU.
func (c *Controller) recompute() {
	newRaw := c.active ^ ^c.noninverted
	c.stickyStatus |= newRaw &^ c.rawStatus // Latch 0->1 transitions.
	c.rawStatus = newRaw

	status := c.status()
	c.cpu.SetInterruptLines(c.lineActive(status, IRQ), c.lineActive(status, FIQ))
}

func (c *Controller) lineActive(status uint32, line Line) bool {
	masked := status & c.mask[line]
	for i := 0; i < numLines; i++ {
		if masked&(1<<i) != 0 && c.priority[i] <= c.priorityLimit[line] {
			return true
		}
	}
	return false
}

// SetActive updates the raw input lines (e.g. from a peripheral's IRQ
// output) and re-evaluates.
func (c *Controller) SetActive(value uint32) {
	c.active = value
	c.recompute()
}

// SetNoninverted, SetStickyMask, SetMask, and SetPriority are the
// remaining register writes that trigger recomputation per spec
// §4.12 ("on every write to active, mask, priority, sticky, or
// noninverted").
func (c *Controller) SetNoninverted(value uint32) {
	c.noninverted = value
	c.recompute()
}

func (c *Controller) SetStickyMask(value uint32) {
	c.stickyMask = value
	c.recompute()
}

func (c *Controller) SetMask(line Line, value uint32) {
	c.mask[line] = value
	c.recompute()
}

func (c *Controller) SetPriority(lineIndex int, priority uint8) {
	if lineIndex < 0 || lineIndex >= numLines {
		return
	}
	c.priority[lineIndex] = priority
	c.recompute()
}

// Ack implements the +0x24 "acknowledge" register: snapshot the
// current priority limit and raise the limit to the priority of the
// highest-priority pending line, so lower-priority interrupts stay
// masked until the handler restores it via +0x28.
func (c *Controller) Ack(line Line) uint8 {
	status := c.status() & c.mask[line]
	best := uint8(7)
	for i := 0; i < numLines; i++ {
		if status&(1<<i) != 0 && c.priority[i] < best {
			best = c.priority[i]
		}
	}
	c.prevPriorityLimit[line] = c.priorityLimit[line]
	c.priorityLimit[line] = best
	c.recompute()
	return best
}

// RestorePriority implements the +0x28 write: restore the priority
// limit saved by the most recent Ack.
func (c *Controller) RestorePriority(line Line) {
	c.priorityLimit[line] = c.prevPriorityLimit[line]
	c.recompute()
}

// Status returns the merged status word.
func (c *Controller) Status() uint32 {
	return c.status()
}

// Regs maps Controller onto a memory-mapped register window
// (spec §4.12's +0x24 ack / +0x28 restore, generalized to both CPU
// lines since one controller feeds both IRQ and FIQ).
type Regs struct {
	c *Controller
}

// NewRegs wraps c as a membus.Peripheral.
func NewRegs(c *Controller) *Regs {
	return &Regs{c: c}
}

const (
	regActive      = 0x00
	regNoninverted = 0x04
	regStickyMask  = 0x08
	regMaskIRQ     = 0x0C
	regMaskFIQ     = 0x10
	regPriorityBase = 0x14
	regAckIRQ       = 0x24
	regRestoreIRQ   = 0x28
	regAckFIQ       = 0x2C
	regRestoreFIQ   = 0x30
)

func (r *Regs) ReadReg(offset uint32) uint32 {
	switch {
	case offset == regActive:
		return r.c.rawStatus
	case offset == regNoninverted:
		return r.c.noninverted
	case offset == regStickyMask:
		return r.c.stickyMask
	case offset == regMaskIRQ:
		return r.c.mask[IRQ]
	case offset == regMaskFIQ:
		return r.c.mask[FIQ]
	case offset >= regPriorityBase && offset < regPriorityBase+numLines*4:
		return uint32(r.c.priority[(offset-regPriorityBase)/4])
	case offset == regAckIRQ:
		return uint32(r.c.Ack(IRQ))
	case offset == regAckFIQ:
		return uint32(r.c.Ack(FIQ))
	default:
		return 0
	}
}

func (r *Regs) WriteReg(offset, value uint32) {
	switch {
	case offset == regActive:
		r.c.SetActive(value)
	case offset == regNoninverted:
		r.c.SetNoninverted(value)
	case offset == regStickyMask:
		r.c.SetStickyMask(value)
	case offset == regMaskIRQ:
		r.c.SetMask(IRQ, value)
	case offset == regMaskFIQ:
		r.c.SetMask(FIQ, value)
	case offset >= regPriorityBase && offset < regPriorityBase+numLines*4:
		r.c.SetPriority(int((offset-regPriorityBase)/4), uint8(value))
	case offset == regRestoreIRQ:
		r.c.RestorePriority(IRQ)
	case offset == regRestoreFIQ:
		r.c.RestorePriority(FIQ)
	}
}
