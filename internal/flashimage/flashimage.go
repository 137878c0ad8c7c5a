/*
 * nspire_emu-core - NAND boot image file format.
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

// Package flashimage loads and saves the NAND flash image file a boot
// ROM is installed into, and reads the manufacturer-data block that
// tells the core how much SDRAM the image expects (spec §4.16).
package flashimage

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/rcornwell/armcore/internal/nand"
)

const (
	smallImageSize = 33 * 1024 * 1024
	largeImageSize = 132 * 1024 * 1024

	bootMagic       = 0x796EB03C
	manufDataOffset = 0x844
	extSignature    = 0x4C9E5F91

	defaultSDRAMSize = 32 * 1024 * 1024
)

// Settings are the values flash_read_settings derives from the
// manufacturer-data block: which product/revision the image targets
// and how much SDRAM the emulated board should present.
type Settings struct {
	Product    uint16
	Revision   uint16
	SDRAMBytes uint32
}

// Image owns an open boot-image file and the nand.Device reading and
// writing it; Flush implements machine.Flusher.
type Image struct {
	file   *os.File
	dev    *nand.Device
	metric nand.Metrics
}

// Open loads filename into memory and returns an Image backed by a
// nand.Device sized for whichever chip the file size names (spec
// §4.16: 33MiB selects the small chip, 132MiB the large chip).
func Open(filename string) (*Image, error) {
	f, err := os.OpenFile(filename, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	var metric nand.Metrics
	switch info.Size() {
	case smallImageSize:
		metric = nand.Small
	case largeImageSize:
		metric = nand.Large
	default:
		f.Close()
		return nil, fmt.Errorf("flashimage: %s: not a flash image (size %d)", filename, info.Size())
	}

	want := int64(metric.PageSize) * int64(metric.NumPages)
	data := make([]byte, want)
	if _, err := f.ReadAt(data, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("flashimage: reading %s: %w", filename, err)
	}

	return &Image{file: f, dev: nand.New(metric, data, nil), metric: metric}, nil
}

// Device returns the nand.Device the controller façades drive.
func (im *Image) Device() *nand.Device {
	return im.dev
}

// ReadSettings parses the manufacturer-data block at offset 0x844,
// following flash_read_settings: an all-0xFF first word means no
// manufacturer data (a CAS+ image), otherwise the product/revision
// and, when the CX extended-signature block is present, the SDRAM
// size encoded in its config_sdram field.
func (im *Image) ReadSettings() (Settings, error) {
	data := im.dev.Data()
	s := Settings{SDRAMBytes: defaultSDRAMSize}

	if binary.LittleEndian.Uint32(data[0:4]) == 0xFFFFFFFF {
		s.Product = 0x0C0
		return s, nil
	}

	manuf := data[manufDataOffset:]
	s.Product = binary.LittleEndian.Uint16(manuf[0:2])
	s.Revision = binary.LittleEndian.Uint16(manuf[2:4])

	const extOffset = 2 + 2 + 8 + 8 // product, revision, locale[8], _unknown_810[8]
	ext := manuf[extOffset:]
	signature := binary.LittleEndian.Uint32(ext[0:4])
	if signature == extSignature {
		cfg := binary.LittleEndian.Uint32(ext[4+4+4+2+2+2+2+4+4+4+4+4:])
		logsize := (cfg & 7) + (cfg >> 3 & 7)
		if logsize > 4 {
			return s, fmt.Errorf("flashimage: invalid SDRAM size encoding %#x", cfg)
		}
		s.SDRAMBytes = (4 * 1024 * 1024) << logsize
	}

	return s, nil
}

// Flush implements machine.Flusher: it writes every block the device
// has touched since the last flush back to the file (flash_save_changes).
func (im *Image) Flush() error {
	blockSize := int64(im.metric.PageSize) << im.metric.Log2PagesPerBlock
	pagesPerBlock := uint32(1) << im.metric.Log2PagesPerBlock
	data := im.dev.Data()
	modified := im.dev.ModifiedBlocks()

	for block := uint32(0); block < im.metric.NumPages; block += pagesPerBlock {
		idx := block / pagesPerBlock
		if int(idx) >= len(modified) || !modified[idx] {
			continue
		}
		off := int64(block) * int64(im.metric.PageSize)
		if _, err := im.file.WriteAt(data[off:off+blockSize], off); err != nil {
			return err
		}
	}
	if err := im.file.Sync(); err != nil {
		return err
	}
	im.dev.ClearModified()
	return nil
}

// Close releases the underlying file without flushing.
func (im *Image) Close() error {
	return im.file.Close()
}
