/*
 * nspire_emu-core - Console command interface.
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

// Package command holds the Session the console parser drives: the
// machine's control channel plus read-only access to CPU and NAND
// state for the "show" family of commands.
package command

import (
	"github.com/rcornwell/armcore/internal/cpu"
	"github.com/rcornwell/armcore/internal/machine"
	"github.com/rcornwell/armcore/internal/nand"
)

// Session bundles everything a console command needs to act on one
// running machine.
type Session struct {
	Control chan<- machine.Packet
	CPU     *cpu.State
	Flash   *nand.Device // nil if no flash image was loaded.
}

// Post is a convenience wrapper over the control channel.
func (s *Session) Post(msg machine.MsgKind, addr uint32) {
	s.Control <- machine.Packet{Msg: msg, Addr: addr}
}
