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

package flashimage

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func newImageFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flash.img")
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestOpenRejectsWrongSize(t *testing.T) {
	path := newImageFile(t, 1024)

	if _, err := Open(path); err == nil {
		t.Error("Open succeeded for a file with no valid flash image size")
	}
}

func TestOpenSelectsSmallChipBySize(t *testing.T) {
	path := newImageFile(t, smallImageSize)

	im, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer im.Close()

	if im.metric.PageSize != 0x210 {
		t.Errorf("PageSize = %#x, want the small chip's 0x210", im.metric.PageSize)
	}
}

func TestReadSettingsAllFFMeansNoManufData(t *testing.T) {
	path := newImageFile(t, smallImageSize)

	im, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer im.Close()

	s, err := im.ReadSettings()
	if err != nil {
		t.Fatalf("ReadSettings: %v", err)
	}
	if s.Product != 0x0C0 {
		t.Errorf("Product = %#x, want %#x for a CAS+ image with no manuf data", s.Product, 0x0C0)
	}
	if s.SDRAMBytes != defaultSDRAMSize {
		t.Errorf("SDRAMBytes = %d, want the default %d", s.SDRAMBytes, defaultSDRAMSize)
	}
}

func TestReadSettingsParsesProductAndRevision(t *testing.T) {
	path := newImageFile(t, smallImageSize)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// Page 0 must not start with an all-0xFF word, or the image reads as
	// a CAS+ image with no manufacturer data.
	binary.LittleEndian.PutUint32(raw[0:], bootMagic)
	binary.LittleEndian.PutUint16(raw[manufDataOffset:], 0x0F3)
	binary.LittleEndian.PutUint16(raw[manufDataOffset+2:], 0x0002)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	im, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer im.Close()

	s, err := im.ReadSettings()
	if err != nil {
		t.Fatalf("ReadSettings: %v", err)
	}
	if s.Product != 0x0F3 {
		t.Errorf("Product = %#x, want %#x", s.Product, 0x0F3)
	}
	if s.Revision != 0x0002 {
		t.Errorf("Revision = %#x, want %#x", s.Revision, 0x0002)
	}
}

func TestFlushWritesOnlyModifiedBlocks(t *testing.T) {
	path := newImageFile(t, smallImageSize)

	im, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer im.Close()

	dev := im.Device()
	dev.WriteCommandByte(0x80) // program setup
	dev.WriteAddressByte(0)    // column (small-chip address cycle 0)
	dev.WriteAddressByte(0)    // row low byte
	dev.WriteAddressByte(0)    // row high byte
	dev.WriteDataByte(0x7A)
	dev.WriteCommandByte(0x10) // confirm

	if err := im.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if raw[0] != 0x7A {
		t.Errorf("byte 0 on disk = %#02x, want %#02x after Flush", raw[0], 0x7A)
	}
	if raw[len(raw)-1] != 0xFF {
		t.Error("an untouched trailing byte changed on disk; Flush wrote more than the modified block")
	}
}
