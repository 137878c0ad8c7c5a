/*
 * nspire_emu-core - VMSAv5 page-table walker.
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

package mmu

import "testing"

type fakeMem struct {
	words map[uint32]uint32
}

func (m *fakeMem) ReadPhysWord(addr uint32) (uint32, bool) {
	v, ok := m.words[addr]
	return v, ok
}

const ttbBase = 0x00004000

func newWalker(mem *fakeMem, dacr uint32) *Walker {
	return &Walker{
		Mem:  mem,
		TTB:  func() uint32 { return ttbBase },
		DACR: func() uint32 { return dacr },
	}
}

// l1SectionEntry builds a first-level section descriptor.
func l1SectionEntry(physBase uint32, domain, ap uint32) uint32 {
	return (physBase & 0xFFF00000) | (ap << 10) | (domain << 5) | 0x2
}

func TestTranslateSectionClientAccess(t *testing.T) {
	mem := &fakeMem{words: map[uint32]uint32{
		ttbBase + 4: l1SectionEntry(0x20000000, 1, 3), // section index 1, domain 1, AP full
	}}
	// domain 1 = client (01 << 2 = bits 3:2).
	w := newWalker(mem, 1<<2)

	va := uint32(0x00100123) // section index 1, offset 0x123
	phys, perm, fault := w.Translate(va, true)

	if fault != FaultNone {
		t.Fatalf("fault = %v, want FaultNone", fault)
	}
	if phys != 0x20000123 {
		t.Errorf("phys = %#x, want %#x", phys, 0x20000123)
	}
	if perm != 3 {
		t.Errorf("perm = %d, want 3 (full read/write)", perm)
	}
}

func TestTranslateDomainNoAccessFaults(t *testing.T) {
	mem := &fakeMem{words: map[uint32]uint32{
		ttbBase + 4: l1SectionEntry(0x20000000, 1, 3),
	}}
	w := newWalker(mem, 0) // domain 1 bits = 00: no access.

	_, _, fault := w.Translate(0x00100000, true)
	if fault != FaultDomain {
		t.Errorf("fault = %v, want FaultDomain", fault)
	}
}

func TestTranslatePermissionFaultForUser(t *testing.T) {
	mem := &fakeMem{words: map[uint32]uint32{
		ttbBase + 4: l1SectionEntry(0x20000000, 2, 0), // AP=0: supervisor-only
	}}
	w := newWalker(mem, 1<<4) // domain 2 = client (bits 5:4 = 01).

	_, _, fault := w.Translate(0x00100000, false)
	if fault != FaultPermission {
		t.Errorf("fault = %v, want FaultPermission", fault)
	}

	// The same AP=0 section is fine for a privileged access.
	_, perm, fault := w.Translate(0x00100000, true)
	if fault != FaultNone {
		t.Errorf("privileged fault = %v, want FaultNone", fault)
	}
	if perm != 1 {
		t.Errorf("privileged perm = %d, want 1 (read-only)", perm)
	}
}

func TestTranslateManagerDomainIgnoresPermission(t *testing.T) {
	mem := &fakeMem{words: map[uint32]uint32{
		ttbBase + 4: l1SectionEntry(0x20000000, 3, 0), // AP=0, but domain is manager
	}}
	w := newWalker(mem, 3<<6) // domain 3 = manager (bits 7:6 = 11).

	_, _, fault := w.Translate(0x00100000, false)
	if fault != FaultNone {
		t.Errorf("fault = %v, want FaultNone (manager domain bypasses AP)", fault)
	}
}

func TestTranslateMissingL1EntryFaultsSection(t *testing.T) {
	mem := &fakeMem{words: map[uint32]uint32{}}
	w := newWalker(mem, 0xFFFFFFFF)

	_, _, fault := w.Translate(0x00100000, true)
	if fault != FaultSection {
		t.Errorf("fault = %v, want FaultSection for an unreadable L1 entry", fault)
	}
}

func TestTranslateCoarsePageTable(t *testing.T) {
	const l2Base = 0x00005000
	mem := &fakeMem{words: map[uint32]uint32{
		// Coarse second-level descriptor (l1&3==1), domain 4.
		ttbBase + 8: (l2Base & 0xFFFFFC00) | (4 << 5) | 0x1,
		// Small page at L2 index for va bits 19:12; use va=0x00200000
		// so va>>10&0x3FC == 0.
		l2Base: (uint32(0x30000000) & 0xFFFFF000) | (3 << 4) | 0x2, // AP=3 for subpage 0 (the one va selects), small page
	}}
	w := newWalker(mem, 1<<8) // domain 4 = client.

	phys, perm, fault := w.Translate(0x00200004, true)
	if fault != FaultNone {
		t.Fatalf("fault = %v, want FaultNone", fault)
	}
	if phys != 0x30000004 {
		t.Errorf("phys = %#x, want %#x", phys, 0x30000004)
	}
	if perm != 3 {
		t.Errorf("perm = %d, want 3", perm)
	}
}
