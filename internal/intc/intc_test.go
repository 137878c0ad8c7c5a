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

package intc

import "testing"

type fakeCPU struct {
	irq, fiq bool
}

func (f *fakeCPU) SetInterruptLines(irq, fiq bool) {
	f.irq, f.fiq = irq, fiq
}

// newActiveHighController wires noninverted to all-ones so raw status
// tracks active directly, the simplest register configuration to
// reason about in tests.
func newActiveHighController() (*Controller, *fakeCPU) {
	cpu := &fakeCPU{}
	c := New(cpu)
	c.SetNoninverted(0xFFFFFFFF)
	return c, cpu
}

func TestSetActiveRaisesIRQWhenMasked(t *testing.T) {
	c, cpu := newActiveHighController()
	c.SetMask(IRQ, 1) // only line 0 reaches IRQ
	c.SetPriority(0, 0)

	c.SetActive(1)

	if !cpu.irq {
		t.Error("IRQ line not raised for an active, masked-in, in-range-priority line")
	}
	if cpu.fiq {
		t.Error("FIQ line raised unexpectedly")
	}
}

func TestSetActiveIgnoresUnmaskedLine(t *testing.T) {
	c, cpu := newActiveHighController()
	c.SetMask(IRQ, 0) // nothing reaches IRQ
	c.SetPriority(0, 0)

	c.SetActive(1)

	if cpu.irq {
		t.Error("IRQ line raised for a line outside the mask")
	}
}

func TestAckRaisesPriorityLimitAndRestoreLowersIt(t *testing.T) {
	c, cpu := newActiveHighController()
	c.SetMask(IRQ, 0x3) // lines 0 and 1
	c.SetPriority(0, 2)
	c.SetPriority(1, 5)
	c.SetActive(0x3)

	if !cpu.irq {
		t.Fatal("IRQ not raised before Ack")
	}

	best := c.Ack(IRQ)
	if best != 2 {
		t.Errorf("Ack() = %d, want 2 (line 0's priority)", best)
	}

	// Drop line 0; only line 1 (priority 5) remains active, which is
	// now masked out by the priority limit Ack just raised.
	c.SetActive(0x2)
	if cpu.irq {
		t.Error("IRQ still raised for a line below the Ack'd priority limit")
	}

	c.RestorePriority(IRQ)
	if !cpu.irq {
		t.Error("IRQ not raised again after RestorePriority lowered the limit")
	}
}

func TestStickyMaskLatchesTransition(t *testing.T) {
	c, _ := newActiveHighController()
	c.SetStickyMask(0x1)

	c.SetActive(0x1)
	if c.Status()&0x1 == 0 {
		t.Fatal("sticky status bit not set after the line went active")
	}

	c.SetActive(0x0)
	if c.Status()&0x1 == 0 {
		t.Error("sticky status bit cleared even though SetStickyMask marked it latching")
	}
}

func TestRegsDispatchesRegisterWindow(t *testing.T) {
	c, cpu := newActiveHighController()
	r := NewRegs(c)

	r.WriteReg(regMaskIRQ, 0x1)
	r.WriteReg(regPriorityBase, 0) // line 0 priority 0
	r.WriteReg(regActive, 0x1)

	if !cpu.irq {
		t.Fatal("IRQ not raised via the register window")
	}
	if r.ReadReg(regActive) != 0x1 {
		t.Errorf("ReadReg(regActive) = %#x, want 0x1", r.ReadReg(regActive))
	}

	limit := r.ReadReg(regAckIRQ)
	if limit != 0 {
		t.Errorf("ReadReg(regAckIRQ) = %d, want 0", limit)
	}
}
