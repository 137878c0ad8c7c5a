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

/* Configuration file format:
 *
 * '#' indicates comment, rest of line is ignored.
 * <line> := <key> '=' <value>
 * <key>  := 'flash' | 'controller' | 'logfile' | 'break'
 * <value> ::= *(<letter> | <number> | <punctuation>)
 *
 * 'break' may repeat and each line adds a breakpoint; for every other
 * key a later line replaces the value of an earlier one.
 */

package bootconfig

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Controller selects which NAND controller façade the boot ROM drives.
type Controller int

const (
	ControllerLegacy Controller = iota
	ControllerCX
)

// Config is the parsed contents of a boot-config file.
type Config struct {
	Flash      string
	Controller Controller
	LogFile    string
	Breaks     []uint32
}

// Load reads and parses a boot-config file.
func Load(name string) (*Config, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &Config{Controller: ControllerCX}
	scanner := bufio.NewScanner(file)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		if err := cfg.parseLine(scanner.Text(), lineNumber); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if cfg.Flash == "" {
		return nil, fmt.Errorf("bootconfig: %s: missing required 'flash' key", name)
	}
	return cfg, nil
}

func (cfg *Config) parseLine(line string, lineNumber int) error {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return fmt.Errorf("bootconfig: line %d: expected 'key = value'", lineNumber)
	}
	key = strings.TrimSpace(strings.ToLower(key))
	value = strings.TrimSpace(value)

	switch key {
	case "flash":
		cfg.Flash = value
	case "logfile":
		cfg.LogFile = value
	case "controller":
		switch strings.ToLower(value) {
		case "legacy":
			cfg.Controller = ControllerLegacy
		case "cx":
			cfg.Controller = ControllerCX
		default:
			return fmt.Errorf("bootconfig: line %d: unknown controller %q", lineNumber, value)
		}
	case "break":
		addr, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return fmt.Errorf("bootconfig: line %d: invalid break address %q: %w", lineNumber, value, err)
		}
		cfg.Breaks = append(cfg.Breaks, uint32(addr))
	default:
		return fmt.Errorf("bootconfig: line %d: unknown key %q", lineNumber, key)
	}
	return nil
}
