/*
 * nspire_emu-core - Boot configuration file parser
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

package bootconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boot.cfg")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadParsesAllKeys(t *testing.T) {
	path := writeConfig(t, `
# a comment
flash = /tmp/image.bin
controller = legacy
logfile = /tmp/arm.log
break = 0x1000
break = 2048
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Flash != "/tmp/image.bin" {
		t.Errorf("Flash = %q, want %q", cfg.Flash, "/tmp/image.bin")
	}
	if cfg.Controller != ControllerLegacy {
		t.Errorf("Controller = %v, want ControllerLegacy", cfg.Controller)
	}
	if cfg.LogFile != "/tmp/arm.log" {
		t.Errorf("LogFile = %q, want %q", cfg.LogFile, "/tmp/arm.log")
	}
	if len(cfg.Breaks) != 2 || cfg.Breaks[0] != 0x1000 || cfg.Breaks[1] != 2048 {
		t.Errorf("Breaks = %v, want [0x1000 2048]", cfg.Breaks)
	}
}

func TestLoadDefaultsControllerToCX(t *testing.T) {
	path := writeConfig(t, "flash = /tmp/image.bin\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Controller != ControllerCX {
		t.Errorf("Controller = %v, want the default ControllerCX", cfg.Controller)
	}
}

func TestLoadRequiresFlash(t *testing.T) {
	path := writeConfig(t, "controller = cx\n")

	if _, err := Load(path); err == nil {
		t.Error("Load succeeded without a 'flash' key")
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "flash = /tmp/x\nbogus = 1\n")

	if _, err := Load(path); err == nil {
		t.Error("Load succeeded with an unknown key")
	}
}

func TestLoadRejectsUnknownController(t *testing.T) {
	path := writeConfig(t, "flash = /tmp/x\ncontroller = pxa\n")

	if _, err := Load(path); err == nil {
		t.Error("Load succeeded with an unrecognized controller value")
	}
}
