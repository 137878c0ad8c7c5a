/*
 * nspire_emu-core - System RAM and the memory-mapped I/O dispatch table.
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

// Package membus implements the physical address space the ARM core's
// address cache falls back to on a cache miss: a flat RAM buffer with
// per-page flags, and a dispatch table of memory-mapped peripherals.
package membus

import (
	"encoding/binary"
	"log/slog"

	"github.com/rcornwell/armcore/internal/cpu"
)

const pageShift = 12 // 4KiB pages, matching the ARMv5 small-page size.

// RAM flag bits, tracked per page much like a channel-attached storage
// key tracks access/modify bits per 2KiB block.
const (
	FlagAccessed uint8 = 1 << 0
	FlagModified uint8 = 1 << 1
)

// Peripheral is a memory-mapped device: the NAND controller and the
// interrupt controller both implement this against their own register
// windows.
type Peripheral interface {
	ReadReg(offset uint32) uint32
	WriteReg(offset uint32, value uint32)
}

type region struct {
	base uint32
	size uint32
	dev  Peripheral
}

// Bus is the physical memory map: RAM plus any mapped peripherals.
// It implements cpu.Bus directly so it can be handed to cpu.New, or be
// wrapped by an address cache for the fast path.
type Bus struct {
	ram     []byte
	ramBase uint32
	flags   []uint8
	regions []region
	log     *slog.Logger
}

// New creates a bus with ramSize bytes of RAM based at ramBase.
func New(ramBase, ramSize uint32, log *slog.Logger) *Bus {
	return &Bus{
		ram:     make([]byte, ramSize),
		ramBase: ramBase,
		flags:   make([]uint8, (ramSize>>pageShift)+1),
		log:     log,
	}
}

// MapPeripheral registers a memory-mapped device window. Overlapping
// windows are not checked; an address inside several windows goes to
// the one registered first.
func (b *Bus) MapPeripheral(base, size uint32, dev Peripheral) {
	b.regions = append(b.regions, region{base: base, size: size, dev: dev})
}

func (b *Bus) inRAM(addr uint32) bool {
	return addr >= b.ramBase && addr-b.ramBase < uint32(len(b.ram))
}

func (b *Bus) findRegion(addr uint32) *region {
	for i := range b.regions {
		r := &b.regions[i]
		if addr >= r.base && addr-r.base < r.size {
			return r
		}
	}
	return nil
}

func (b *Bus) markPage(addr uint32, flag uint8) {
	b.flags[(addr-b.ramBase)>>pageShift] |= flag
}

// RAM returns the underlying RAM buffer for boot-image loading.
func (b *Bus) RAM() []byte {
	return b.ram
}

// PageFlags returns a snapshot of the per-page modified/accessed flags.
func (b *Bus) PageFlags() []uint8 {
	out := make([]uint8, len(b.flags))
	copy(out, b.flags)
	return out
}

// ReadByteAt and WriteByteAt give the NAND legacy controller's DMA-style
// bulk-transfer register direct physical-RAM access, independent of
// the cpu.Bus abort-raising contract.
func (b *Bus) ReadByteAt(addr uint32) byte {
	if !b.inRAM(addr) {
		return 0
	}
	return b.ram[addr-b.ramBase]
}

func (b *Bus) WriteByteAt(addr uint32, v byte) {
	if !b.inRAM(addr) {
		return
	}
	b.markPage(addr, FlagAccessed|FlagModified)
	b.ram[addr-b.ramBase] = v
}

// ReadPhysWord reads a word without marking access flags, for the MMU
// walker reading page table entries out of RAM.
func (b *Bus) ReadPhysWord(addr uint32) (uint32, bool) {
	if b.inRAM(addr) {
		off := addr - b.ramBase
		return binary.LittleEndian.Uint32(b.ram[off:]), true
	}
	return 0, false
}

func (b *Bus) FetchARM(addr uint32) (uint32, bool) {
	return b.ReadWord(addr)
}

func (b *Bus) FetchThumb(addr uint32) (uint16, bool) {
	return b.ReadHalf(addr)
}

func (b *Bus) ReadByte(addr uint32) (uint8, bool) {
	if b.inRAM(addr) {
		off := addr - b.ramBase
		b.markPage(addr, FlagAccessed)
		return b.ram[off], true
	}
	if r := b.findRegion(addr); r != nil {
		return uint8(r.dev.ReadReg(addr - r.base)), true
	}
	b.warnUnmapped("read byte", addr)
	return 0, true
}

func (b *Bus) ReadHalf(addr uint32) (uint16, bool) {
	if b.inRAM(addr) {
		off := addr - b.ramBase
		b.markPage(addr, FlagAccessed)
		return binary.LittleEndian.Uint16(b.ram[off:]), true
	}
	if r := b.findRegion(addr); r != nil {
		return uint16(r.dev.ReadReg(addr - r.base)), true
	}
	b.warnUnmapped("read half", addr)
	return 0, true
}

func (b *Bus) ReadWord(addr uint32) (uint32, bool) {
	if b.inRAM(addr) {
		off := addr - b.ramBase
		b.markPage(addr, FlagAccessed)
		return binary.LittleEndian.Uint32(b.ram[off:]), true
	}
	if r := b.findRegion(addr); r != nil {
		return r.dev.ReadReg(addr - r.base), true
	}
	b.warnUnmapped("read word", addr)
	return 0, true
}

func (b *Bus) WriteByte(addr uint32, v uint8) bool {
	if b.inRAM(addr) {
		off := addr - b.ramBase
		b.markPage(addr, FlagAccessed|FlagModified)
		b.ram[off] = v
		return true
	}
	if r := b.findRegion(addr); r != nil {
		r.dev.WriteReg(addr-r.base, uint32(v))
		return true
	}
	b.warnUnmapped("write byte", addr)
	return true
}

func (b *Bus) WriteHalf(addr uint32, v uint16) bool {
	if b.inRAM(addr) {
		off := addr - b.ramBase
		b.markPage(addr, FlagAccessed|FlagModified)
		binary.LittleEndian.PutUint16(b.ram[off:], v)
		return true
	}
	if r := b.findRegion(addr); r != nil {
		r.dev.WriteReg(addr-r.base, uint32(v))
		return true
	}
	b.warnUnmapped("write half", addr)
	return true
}

func (b *Bus) WriteWord(addr uint32, v uint32) bool {
	if b.inRAM(addr) {
		off := addr - b.ramBase
		b.markPage(addr, FlagAccessed|FlagModified)
		binary.LittleEndian.PutUint32(b.ram[off:], v)
		return true
	}
	if r := b.findRegion(addr); r != nil {
		r.dev.WriteReg(addr-r.base, v)
		return true
	}
	b.warnUnmapped("write word", addr)
	return true
}

func (b *Bus) warnUnmapped(op string, addr uint32) {
	if b.log != nil {
		b.log.Warn("unmapped bus access", "op", op, "addr", addr)
	}
}

var _ cpu.Bus = (*Bus)(nil)
