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

// Package mmu implements the VMSAv5 first/second-level page table walk
// consulted by the address cache on a miss.
package mmu

// Access is the kind of access being translated, used to pick which
// permission bits of an AP field apply.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
	AccessExecute
)

// Fault identifies why a translation failed, for FSR encoding.
type Fault int

const (
	FaultNone Fault = iota
	FaultSection
	FaultPage
	FaultDomain
	FaultPermission
)

// WordReader reads one 32-bit physical word, the only access the
// walker needs into the bus (page tables live in RAM).
type WordReader interface {
	ReadPhysWord(addr uint32) (uint32, bool)
}

// Walker holds the two CP15 registers that parameterize translation.
// DACR and TTB are read fresh on every walk so CP15 writes take effect
// immediately once the address cache is invalidated.
type Walker struct {
	Mem  WordReader
	TTB  func() uint32
	DACR func() uint32
}

// Translate walks the page tables for va, returning the physical
// address and access permission bits (bit0=read, bit1=write) on
// success (fault == FaultNone), or the fault reason on failure.
func (w *Walker) Translate(va uint32, privileged bool) (phys uint32, perm uint8, fault Fault) {
	ttb := w.TTB()
	l1addr := (ttb & 0xFFFFC000) | (va>>18)&0x3FFC
	l1, ok := w.Mem.ReadPhysWord(l1addr)
	if !ok {
		return 0, 0, FaultSection
	}

	switch l1 & 3 {
	case 2: // Section: 1MiB, flat base in bits 31:20.
		domain := (l1 >> 5) & 0xF
		ap := (l1 >> 10) & 3
		if !w.domainOK(domain) {
			return 0, 0, FaultDomain
		}
		if !w.domainManager(domain) && !permOK(ap, privileged) {
			return 0, 0, FaultPermission
		}
		return (l1 & 0xFFF00000) | (va & 0xFFFFF), apToPerm(ap, privileged), FaultNone

	case 1, 3: // Coarse (and fine, treated as coarse) second-level table.
		domain := (l1 >> 5) & 0xF
		if !w.domainOK(domain) {
			return 0, 0, FaultDomain
		}
		manager := w.domainManager(domain)
		l2addr := (l1 & 0xFFFFFC00) | (va>>10)&0x3FC
		l2, ok := w.Mem.ReadPhysWord(l2addr)
		if !ok {
			return 0, 0, FaultPage
		}
		switch l2 & 3 {
		case 1: // Large page: 64KiB.
			ap := (l2 >> 4) & 3
			if !manager && !permOK(ap, privileged) {
				return 0, 0, FaultPermission
			}
			return (l2 & 0xFFFF0000) | (va & 0xFFFF), apToPerm(ap, privileged), FaultNone
		case 2, 3: // Small page: 4KiB.
			ap := pageAP(l2, va)
			if !manager && !permOK(ap, privileged) {
				return 0, 0, FaultPermission
			}
			return (l2 & 0xFFFFF000) | (va & 0xFFF), apToPerm(ap, privileged), FaultNone
		default:
			return 0, 0, FaultPage
		}

	default: // Translation fault.
		return 0, 0, FaultSection
	}
}

// domainOK implements the DACR domain-control check: 0=no access,
// 1=client (subject to AP check), 2=reserved, 3=manager (AP ignored).
func (w *Walker) domainOK(domain uint32) bool {
	bits := (w.DACR() >> (domain * 2)) & 3
	return bits != 0
}

func (w *Walker) domainManager(domain uint32) bool {
	bits := (w.DACR() >> (domain * 2)) & 3
	return bits == 3
}

// pageAP extracts the per-subpage AP field of a small-page descriptor
// (four 2-bit AP fields selected by VA bits 11:10).
func pageAP(l2 uint32, va uint32) uint32 {
	sel := (va >> 10) & 3
	return (l2 >> (4 + sel*2)) & 3
}

// permOK implements the small subset of the AP table this core needs:
// AP==0 is supervisor read-only (no user access), AP==1 is supervisor
// read/write only, AP==2 is read-only for everyone, AP==3 is full
// read/write for everyone.
func permOK(ap uint32, privileged bool) bool {
	switch ap {
	case 0:
		return privileged
	default:
		return true
	}
}

func apToPerm(ap uint32, privileged bool) uint8 {
	switch ap {
	case 0:
		if privileged {
			return 1 // Read-only even for supervisor per the simple S bit model.
		}
		return 0
	case 1:
		if privileged {
			return 3
		}
		return 0
	case 2:
		return 1
	default:
		return 3
	}
}
