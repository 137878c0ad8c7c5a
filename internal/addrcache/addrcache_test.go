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

package addrcache

import (
	"testing"

	"github.com/rcornwell/armcore/internal/cpu"
	"github.com/rcornwell/armcore/internal/events"
	"github.com/rcornwell/armcore/internal/mmu"
)

// flatBus is a minimal linear-memory cpu.Bus/PhysBus fake, mirroring the
// one the cpu package's own tests use.
type flatBus struct {
	mem map[uint32]byte
}

func newFlatBus() *flatBus { return &flatBus{mem: make(map[uint32]byte)} }

func (b *flatBus) FetchARM(addr uint32) (uint32, bool) { return b.ReadWord(addr) }
func (b *flatBus) FetchThumb(addr uint32) (uint16, bool) { return b.ReadHalf(addr) }

func (b *flatBus) ReadByte(addr uint32) (uint8, bool) { return b.mem[addr], true }
func (b *flatBus) ReadHalf(addr uint32) (uint16, bool) {
	return uint16(b.mem[addr]) | uint16(b.mem[addr+1])<<8, true
}
func (b *flatBus) ReadWord(addr uint32) (uint32, bool) {
	return uint32(b.mem[addr]) | uint32(b.mem[addr+1])<<8 |
		uint32(b.mem[addr+2])<<16 | uint32(b.mem[addr+3])<<24, true
}
func (b *flatBus) WriteByte(addr uint32, v uint8) bool {
	b.mem[addr] = v
	return true
}
func (b *flatBus) WriteHalf(addr uint32, v uint16) bool {
	b.mem[addr], b.mem[addr+1] = byte(v), byte(v>>8)
	return true
}
func (b *flatBus) WriteWord(addr uint32, v uint32) bool {
	b.mem[addr], b.mem[addr+1] = byte(v), byte(v>>8)
	b.mem[addr+2], b.mem[addr+3] = byte(v>>16), byte(v>>24)
	return true
}
func (b *flatBus) ReadPhysWord(addr uint32) (uint32, bool) { return b.ReadWord(addr) }

func TestResolvePassesThroughWhenMMUDisabled(t *testing.T) {
	phys := newFlatBus()
	c := New(phys, nil, nil)

	if ok := c.WriteWord(0x1000, 0xDEADBEEF); !ok {
		t.Fatal("WriteWord failed with the MMU disabled")
	}
	v, ok := c.ReadWord(0x1000)
	if !ok || v != 0xDEADBEEF {
		t.Errorf("ReadWord = %#x, %v, want %#x, true", v, ok, 0xDEADBEEF)
	}
}

const ttbBase = 0x00004000

// l1SectionEntry builds a first-level section descriptor.
func l1SectionEntry(physBase uint32, domain, ap uint32) uint32 {
	return (physBase & 0xFFF00000) | (ap << 10) | (domain << 5) | 0x2
}

func newMMUState(phys *flatBus, ev *events.Word) (*cpu.State, *Cache) {
	s := cpu.New(phys, nil, ev, nil)
	s.Reset()
	w := &mmu.Walker{
		Mem:  phys,
		TTB:  func() uint32 { return s.CP15.TTB },
		DACR: func() uint32 { return s.CP15.DACR },
	}
	c := New(phys, w, nil)
	c.Attach(s)
	s.CP15.TTB = ttbBase
	s.CP15.DACR = 1 << 2 // domain 1 = client
	s.CP15.Control = 1   // MMU enabled
	return s, c
}

func TestResolveTranslatesThroughMMUAndCaches(t *testing.T) {
	phys := newFlatBus()
	phys.WriteWord(ttbBase+4, l1SectionEntry(0x00200000, 1, 3)) // section 1 -> phys 0x00200000, AP full

	var ev events.Word
	_, c := newMMUState(phys, &ev)

	if ok := c.WriteWord(0x00100000, 0xCAFEF00D); !ok {
		t.Fatal("WriteWord through the MMU failed")
	}
	v, ok := phys.ReadWord(0x00200000)
	if !ok || v != 0xCAFEF00D {
		t.Errorf("physical memory at %#x = %#x, want %#x", 0x00200000, v, 0xCAFEF00D)
	}

	// Second access should hit the cached entry rather than re-walk.
	v, ok = c.ReadWord(0x00100000)
	if !ok || v != 0xCAFEF00D {
		t.Errorf("cached ReadWord = %#x, %v, want %#x, true", v, ok, 0xCAFEF00D)
	}
}

func TestResolveRaisesDataAbortOnDomainFault(t *testing.T) {
	phys := newFlatBus()
	phys.WriteWord(ttbBase+4, l1SectionEntry(0x00200000, 1, 3))

	var ev events.Word
	s, c := newMMUState(phys, &ev)
	s.CP15.DACR = 0 // domain 1: no access

	// Step always advances PC past the faulting instruction before the
	// interpreter accesses memory, so mimic that: the instruction at
	// 0x8000 faults once Step has moved PC on to 0x8004.
	const instrAddr = 0x8000
	s.Reg[15] = instrAddr + 4

	v, ok := c.ReadWord(0x00100000)
	if ok {
		t.Fatalf("ReadWord succeeded despite a domain fault, returned %#x", v)
	}
	if s.CP15.DFSR&0xF != 0x9 {
		t.Errorf("DFSR = %#x, want a domain-fault status (0x9 low nibble)", s.CP15.DFSR)
	}
	if s.Reg[15] == instrAddr+4 {
		t.Error("data abort did not redirect execution to the abort vector")
	}
	if want := uint32(instrAddr + 8); s.Reg[14] != want {
		t.Errorf("LR after data abort = %#x, want %#x (faulting instruction + 8)", s.Reg[14], want)
	}
}

func TestResolveRaisesDataAbortOnDomainFaultInThumbMode(t *testing.T) {
	phys := newFlatBus()
	phys.WriteWord(ttbBase+4, l1SectionEntry(0x00200000, 1, 3))

	var ev events.Word
	s, c := newMMUState(phys, &ev)
	s.CP15.DACR = 0
	s.SetCPSRFull(s.GetCPSR() | 0x20) // enter Thumb state

	const instrAddr = 0x8000
	s.Reg[15] = instrAddr + 2 // Step advances Thumb PC by 2

	if _, ok := c.ReadWord(0x00100000); ok {
		t.Fatal("ReadWord succeeded despite a domain fault")
	}
	if want := uint32(instrAddr + 8); s.Reg[14] != want {
		t.Errorf("LR after Thumb data abort = %#x, want %#x (faulting instruction + 8)", s.Reg[14], want)
	}
}

func TestResolveRaisesPrefetchAbortWithLRFourPastFault(t *testing.T) {
	phys := newFlatBus()
	// No L1 entry at all: translation faults (section fault).

	var ev events.Word
	s, c := newMMUState(phys, &ev)

	const instrAddr = 0x9000
	s.Reg[15] = instrAddr // Step has not yet advanced PC when fetch is attempted.

	if _, ok := c.FetchARM(instrAddr); ok {
		t.Fatal("FetchARM succeeded despite no L1 entry")
	}
	if s.CP15.IFSR&0xF != 0x5 {
		t.Errorf("IFSR = %#x, want a section-fault status (0x5 low nibble)", s.CP15.IFSR)
	}
	if want := uint32(instrAddr + 4); s.Reg[14] != want {
		t.Errorf("LR after prefetch abort = %#x, want %#x (faulting instruction + 4)", s.Reg[14], want)
	}
}

func TestInvalidateAddrCacheClearsCachedEntries(t *testing.T) {
	phys := newFlatBus()
	phys.WriteWord(ttbBase+4, l1SectionEntry(0x00200000, 1, 3))

	var ev events.Word
	_, c := newMMUState(phys, &ev)

	if _, ok := c.ReadWord(0x00100000); !ok {
		t.Fatal("initial translated read failed")
	}

	// Remove the section mapping and invalidate; a stale cached entry
	// would otherwise keep serving the old translation.
	phys.WriteWord(ttbBase+4, 0)
	c.InvalidateAddrCache()

	if _, ok := c.ReadWord(0x00100000); ok {
		t.Error("ReadWord succeeded after invalidation with no valid L1 entry present")
	}
}
