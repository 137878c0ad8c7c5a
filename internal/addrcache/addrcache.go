/*
 * nspire_emu-core - Virtual-address cache in front of the MMU walker.
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

// Package addrcache implements the fast virtual-to-physical lookup
// (spec §4.13/§4.14): a direct-mapped table keyed by virtual page,
// with a miss sentinel that forces an MMU walk. It implements both
// cpu.Bus (so the interpreter can fetch/load/store through it) and
// cpu.Invalidator (so CP15 writes and mode-boundary crossings can
// flush it).
package addrcache

import (
	"log/slog"

	"github.com/rcornwell/armcore/internal/cpu"
	"github.com/rcornwell/armcore/internal/mmu"
)

const (
	pageShift = 12
	pageCount = 1 << 20 // 4GiB address space / 4KiB pages.
)

const (
	permRead  uint8 = 1 << 0
	permWrite uint8 = 1 << 1
)

type entry struct {
	physBase uint32
	perm     uint8
	valid    bool
}

// PhysBus is the physical-memory side of the cache: the flat RAM and
// peripheral dispatch table.
type PhysBus interface {
	cpu.Bus
	ReadPhysWord(addr uint32) (uint32, bool)
}

// Cache is the address cache described by spec §4.13; Attach must be
// called once the owning *cpu.State exists, since faults are raised
// back through it.
type Cache struct {
	phys   PhysBus
	walker *mmu.Walker
	table  []entry
	cpu    *cpu.State
	log    *slog.Logger
}

// New creates a cache over phys, consulting walker on a miss when the
// MMU is enabled.
func New(phys PhysBus, walker *mmu.Walker, log *slog.Logger) *Cache {
	return &Cache{
		phys:   phys,
		walker: walker,
		table:  make([]entry, pageCount),
		log:    log,
	}
}

// Attach connects the cache to the CPU whose CP15.Control MMU-enable
// bit and exceptions it consults and raises.
func (c *Cache) Attach(s *cpu.State) {
	c.cpu = s
}

// InvalidateAddrCache implements cpu.Invalidator.
func (c *Cache) InvalidateAddrCache() {
	clear(c.table)
}

func (c *Cache) mmuEnabled() bool {
	return c.cpu != nil && c.cpu.CP15.Control&1 != 0
}

func (c *Cache) privileged() bool {
	return c.cpu == nil || c.cpu.Mode() != cpu.ModeUSR
}

// resolve returns the physical address and granted permission for va,
// translating and caching on a miss. ok is false when translation
// fails; the caller has already had the matching abort raised.
func (c *Cache) resolve(va uint32, need uint8) (uint32, bool) {
	if !c.mmuEnabled() {
		return va, true
	}
	page := va >> pageShift
	e := &c.table[page]
	if e.valid && e.perm&need == need {
		return e.physBase | (va & (1<<pageShift - 1)), true
	}

	phys, perm, fault := c.walker.Translate(va, c.privileged())
	if fault != mmu.FaultNone {
		c.raiseAbort(va, need, fault)
		return 0, false
	}
	e.physBase = phys &^ (1<<pageShift - 1)
	e.perm = perm
	e.valid = true
	if perm&need != need {
		c.raiseAbort(va, need, mmu.FaultPermission)
		return 0, false
	}
	return phys, true
}

// raiseAbort sets the fault status registers and vectors through the
// CPU's exception entry (spec §4.1). Exception() always sets LR to the
// current PC. On a data abort Step has already advanced PC past the
// faulting instruction by one instruction width; on a prefetch abort
// PC is still the fetch address. The two abort kinds need
// different return-address offsets from the faulting instruction (+4
// prefetch, +8 data), so the handler compensates PC here before
// calling Exception rather than in Exception itself.
func (c *Cache) raiseAbort(va uint32, need uint8, fault mmu.Fault) {
	status := faultStatus(fault)
	if need&permWrite != 0 {
		status |= 1 << 11 // FSR bit 11: write not read.
	}
	if c.cpu == nil {
		return
	}
	if need == 0 { // Instruction fetch: PC not yet advanced past it.
		c.cpu.CP15.IFSR = status
		c.cpu.Reg[15] += 4
		c.cpu.Exception(cpu.ExPrefetchAbort)
		return
	}
	c.cpu.CP15.DFSR = status
	c.cpu.CP15.FAR = va
	if c.cpu.Thumb() {
		c.cpu.Reg[15] += 6 // already advanced by 2; want +8
	} else {
		c.cpu.Reg[15] += 4 // already advanced by 4; want +8
	}
	c.cpu.Exception(cpu.ExDataAbort)
}

func faultStatus(fault mmu.Fault) uint32 {
	switch fault {
	case mmu.FaultSection:
		return 0x5
	case mmu.FaultPage:
		return 0x7
	case mmu.FaultDomain:
		return 0x9
	case mmu.FaultPermission:
		return 0xD
	default:
		return 0
	}
}

func (c *Cache) FetchARM(va uint32) (uint32, bool) {
	phys, ok := c.resolve(va&^3, 0)
	if !ok {
		return 0, false
	}
	return c.phys.ReadWord(phys)
}

func (c *Cache) FetchThumb(va uint32) (uint16, bool) {
	phys, ok := c.resolve(va&^1, 0)
	if !ok {
		return 0, false
	}
	return c.phys.ReadHalf(phys)
}

func (c *Cache) ReadByte(va uint32) (uint8, bool) {
	phys, ok := c.resolve(va, permRead)
	if !ok {
		return 0, false
	}
	return c.phys.ReadByte(phys)
}

func (c *Cache) ReadHalf(va uint32) (uint16, bool) {
	phys, ok := c.resolve(va&^1, permRead)
	if !ok {
		return 0, false
	}
	return c.phys.ReadHalf(phys)
}

func (c *Cache) ReadWord(va uint32) (uint32, bool) {
	phys, ok := c.resolve(va&^3, permRead)
	if !ok {
		return 0, false
	}
	return c.phys.ReadWord(phys)
}

func (c *Cache) WriteByte(va uint32, v uint8) bool {
	phys, ok := c.resolve(va, permWrite)
	if !ok {
		return false
	}
	return c.phys.WriteByte(phys, v)
}

func (c *Cache) WriteHalf(va uint32, v uint16) bool {
	phys, ok := c.resolve(va&^1, permWrite)
	if !ok {
		return false
	}
	return c.phys.WriteHalf(phys, v)
}

func (c *Cache) WriteWord(va uint32, v uint32) bool {
	phys, ok := c.resolve(va&^3, permWrite)
	if !ok {
		return false
	}
	return c.phys.WriteWord(phys, v)
}

var (
	_ cpu.Bus         = (*Cache)(nil)
	_ cpu.Invalidator = (*Cache)(nil)
)
