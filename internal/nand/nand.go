/*
 * nspire_emu-core - NAND flash device state machine and ECC.
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

// Package nand implements the NAND flash chip's command/address/data
// state machine, independent of which memory-mapped controller façade
// (legacy or CX) drives it.
package nand

import (
	"encoding/binary"
	"fmt"
	"log/slog"
)

// Metrics describes one of the two chips this core models (spec §4.9).
type Metrics struct {
	ChipManuf, ChipModel byte
	PageSize             uint32
	Log2PagesPerBlock    uint
	NumPages             uint32
}

// Small and Large select the ST Micro NAND256R3A and the Samsung
// 1GBit chip, the two variants the original boot ROM recognizes.
var (
	Small = Metrics{ChipManuf: 0x20, ChipModel: 0x35, PageSize: 0x210, Log2PagesPerBlock: 5, NumPages: 0x10000}
	Large = Metrics{ChipManuf: 0xEC, ChipModel: 0xA1, PageSize: 0x840, Log2PagesPerBlock: 6, NumPages: 0x10000}
)

// Device is one NAND flash chip: command state machine, the backing
// page store, and the per-block modified bitmap used to flush only
// touched blocks back to the image file.
type Device struct {
	Metrics Metrics

	data     []byte
	modified []bool

	writable bool
	state    int
	addrSeq  uint8
	areaPtr  uint8
	row      uint32
	column   uint32

	buffer    [0x840]byte
	bufferPos int

	log *slog.Logger
}

// New creates a device over an existing page store (e.g. loaded from
// a boot image file); data must be len == Metrics.PageSize*NumPages.
func New(m Metrics, data []byte, log *slog.Logger) *Device {
	return &Device{
		Metrics:  m,
		data:     data,
		modified: make([]bool, m.NumPages>>m.Log2PagesPerBlock),
		writable: true,
		state:    0xFF,
		log:      log,
	}
}

// Data exposes the backing page store for persistence.
func (d *Device) Data() []byte { return d.data }

// ModifiedBlocks reports which erase blocks were written since the
// device was created or ClearModified was last called, for a "flush
// changed blocks only" save.
func (d *Device) ModifiedBlocks() []bool {
	out := make([]bool, len(d.modified))
	copy(out, d.modified)
	return out
}

// SetWritable implements the controller's write-protect register.
func (d *Device) SetWritable(w bool) { d.writable = w }

// ClearModified resets the modified-block bitmap, called after a
// flush has durably written every touched block back to the image
// file (flash_save_changes clears nand_block_modified the same way).
func (d *Device) ClearModified() {
	for i := range d.modified {
		d.modified[i] = false
	}
}

func (d *Device) warnf(format string, args ...any) {
	if d.log != nil {
		d.log.Warn(fmt.Sprintf(format, args...))
	}
}

// WriteCommandByte feeds one command-cycle byte into the state machine
// (spec §4.9).
func (d *Device) WriteCommandByte(command byte) {
	switch command {
	case 0x01, 0x50:
		if d.Metrics.PageSize >= 0x800 {
			d.warnf("NAND: unknown command %#02x", command)
			return
		}
		fallthrough
	case 0x00:
		if command == 0x50 {
			d.areaPtr = 2
		} else {
			d.areaPtr = command
		}
		d.addrSeq = 0
		d.state = 0x00
	case 0x10:
		if d.state == 0x80 {
			if !d.writable {
				d.warnf("NAND: program with write protect on")
				return
			}
			base := d.row*d.Metrics.PageSize + d.column
			for i := 0; i < d.bufferPos; i++ {
				d.data[base+uint32(i)] &= d.buffer[i]
			}
			d.modified[d.row>>d.Metrics.Log2PagesPerBlock] = true
			d.state = 0xFF
		}
	case 0x30:
		// Unused confirm code, reserved.
	case 0x60:
		d.addrSeq = 2
		d.state = int(command)
	case 0x80:
		d.bufferPos = 0
		d.addrSeq = 0
		d.state = int(command)
	case 0xD0:
		if d.state == 0x60 {
			blockBits := uint32(1<<d.Metrics.Log2PagesPerBlock) - 1
			if !d.writable {
				d.warnf("NAND: erase with write protect on")
				return
			}
			if d.row&blockBits != 0 {
				d.warnf("NAND: erase nonexistent block %#x", d.row)
				d.row &^= blockBits
			}
			base := d.row * d.Metrics.PageSize
			span := d.Metrics.PageSize << d.Metrics.Log2PagesPerBlock
			for i := uint32(0); i < span; i++ {
				d.data[base+i] = 0xFF
			}
			d.modified[d.row>>d.Metrics.Log2PagesPerBlock] = true
			d.state = 0xFF
		}
	case 0xFF:
		d.row, d.column, d.areaPtr = 0, 0, 0
		fallthrough
	case 0x70, 0x90:
		d.addrSeq = 6
		d.state = int(command)
	default:
		d.warnf("NAND: unknown command %#02x", command)
	}
}

// WriteAddressByte feeds one address-cycle byte.
func (d *Device) WriteAddressByte(b byte) {
	if d.addrSeq >= 6 {
		return
	}
	seq := d.addrSeq
	d.addrSeq++
	switch seq {
	case 0:
		if d.Metrics.PageSize < 0x800 {
			d.column = uint32(d.areaPtr) << 8
			d.addrSeq = 2
			d.areaPtr &^= 1
		}
		d.column = (d.column &^ 0xFF) | uint32(b)
	case 1:
		d.column = (d.column & 0xFF) | uint32(b)<<8
	default:
		bit := uint(seq-2) * 8
		d.row = (d.row &^ (0xFF << bit)) | uint32(b)<<bit
		d.row &= d.Metrics.NumPages - 1
	}
}

// ReadDataByte returns the next byte of page data, or a status/ID byte
// depending on the current command state.
func (d *Device) ReadDataByte() byte {
	switch d.state {
	case 0x00:
		if d.column >= d.Metrics.PageSize {
			return 0
		}
		b := d.data[d.row*d.Metrics.PageSize+d.column]
		d.column++
		return b
	case 0x70:
		status := byte(0x40)
		if d.writable {
			status |= 0x80
		}
		return status
	case 0x90:
		d.state = 0x91
		return d.Metrics.ChipManuf
	case 0x91:
		d.state = 0xFF
		return d.Metrics.ChipModel
	default:
		return 0
	}
}

// ReadDataWord is the 32-bit-wide read path used by the CX controller.
func (d *Device) ReadDataWord() uint32 {
	switch d.state {
	case 0x00:
		if d.column+4 > d.Metrics.PageSize {
			return 0
		}
		base := d.row*d.Metrics.PageSize + d.column
		d.column += 4
		return binary.LittleEndian.Uint32(d.data[base:])
	case 0x70:
		status := uint32(0x40)
		if d.writable {
			status |= 0x80
		}
		return status
	case 0x90:
		d.state = 0xFF
		return uint32(d.Metrics.ChipModel)<<8 | uint32(d.Metrics.ChipManuf)
	default:
		return 0
	}
}

// WriteDataByte feeds the page program buffer.
func (d *Device) WriteDataByte(value byte) {
	if d.state != 0x80 {
		d.warnf("NAND: write in state %#02x", d.state)
		return
	}
	if uint32(d.bufferPos)+d.column >= d.Metrics.PageSize {
		d.warnf("NAND: write past end of page")
		return
	}
	d.buffer[d.bufferPos] = value
	d.bufferPos++
}

// WriteDataWord is the 32-bit-wide write path used by the CX controller.
func (d *Device) WriteDataWord(value uint32) {
	if d.state != 0x80 {
		d.warnf("NAND: write in state %#02x", d.state)
		return
	}
	if uint32(d.bufferPos)+d.column+4 > d.Metrics.PageSize {
		d.warnf("NAND: write past end of page")
		return
	}
	binary.LittleEndian.PutUint32(d.buffer[d.bufferPos:], value)
	d.bufferPos += 4
}

// parity returns the XOR-fold parity of word's set bits.
func parity(word uint32) uint32 {
	word ^= word >> 16
	word ^= word >> 8
	word ^= word >> 4
	return (0x6996 >> (word & 15)) & 1
}

// ECCCalculate computes the 24-bit Hamming-style ECC over one 512-byte
// page, exactly as the original controller's column/row parity tree
// (spec §4.9): repeated XOR-halving of the 128 page words builds the
// column parity bits, then five row-parity masks cover the surviving word.
func ECCCalculate(page []byte) uint32 {
	var in [128]uint32
	for i := range in {
		in[i] = binary.LittleEndian.Uint32(page[i*4:])
	}

	var ecc uint32
	cur := in[:]
	var next [64]uint32
	for j := 64; j != 0; j >>= 1 {
		var words uint32
		for i := 0; i < j; i++ {
			words ^= cur[i]
			next[i] = cur[i] ^ cur[i+j]
		}
		ecc = ecc<<2 | parity(words)
		cur = next[:j]
	}

	words := cur[0]
	ecc = ecc<<2 | parity(words&0x0000FFFF)
	ecc = ecc<<2 | parity(words&0x00FF00FF)
	ecc = ecc<<2 | parity(words&0x0F0F0F0F)
	ecc = ecc<<2 | parity(words&0x33333333)
	ecc = ecc<<2 | parity(words&0x55555555)

	if parity(words) != 0 {
		return (ecc | ecc<<1) ^ 0x555555
	}
	return (ecc | ecc<<1) ^ 0xFFFFFF
}
