/*
 * nspire_emu-core - Outer execution driver.
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

// Package machine drives the single-threaded emulation goroutine: it
// calls cpu.State.Run in a loop and services a command channel between
// bursts, the way the driver's core.go drives CycleCPU (spec §4.8,
// §5).
package machine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rcornwell/armcore/internal/cpu"
	"github.com/rcornwell/armcore/internal/events"
)

// MsgKind selects the action a Packet requests of the machine
// goroutine; only it ever touches cpu.State, so every control
// operation is serialized through this channel.
type MsgKind int

const (
	MsgStart MsgKind = iota
	MsgStop
	MsgReset
	MsgStep
	MsgAddBreakpoint
	MsgRemoveBreakpoint
)

// Packet is one request posted to the machine's command channel.
type Packet struct {
	Msg  MsgKind
	Addr uint32
}

// Flusher persists a NAND device's modified blocks back to its image
// file; main.go supplies the concrete implementation (flashimage).
type Flusher interface {
	Flush() error
}

type machine struct {
	cpu     *cpu.State
	flush   []Flusher
	log     *slog.Logger
	wg      sync.WaitGroup
	done    chan struct{}
	control chan Packet
	running bool
}

// New creates a machine driving cpu, flushing flush on Stop.
func New(c *cpu.State, flush []Flusher, log *slog.Logger) *machine {
	return &machine{
		cpu:     c,
		flush:   flush,
		log:     log,
		done:    make(chan struct{}),
		control: make(chan Packet, 16),
	}
}

// Control returns the channel callers (the console, a future GUI) post
// Packets to.
func (m *machine) Control() chan<- Packet {
	return m.control
}

// Start runs the emulation loop until Stop is called. It blocks, so
// callers run it in its own goroutine.
func (m *machine) Start() {
	m.wg.Add(1)
	defer m.wg.Done()

	waiting := false

	for {
		if m.running && !waiting {
			switch m.cpu.Run() {
			case cpu.StopWaiting:
				waiting = true
			case cpu.StopBreakpoint:
				m.running = false
				m.log.Info("breakpoint hit", "pc", m.cpu.Reg[15])
			case cpu.StopStateChange, cpu.StopEvent:
				// Fall through to service the control channel, then resume.
			}
		}

		select {
		case <-m.done:
			m.flushAll()
			m.log.Info("machine stopped")
			return
		case pkt := <-m.control:
			m.process(pkt)
			if pkt.Msg == MsgReset || pkt.Msg == MsgStop {
				waiting = false
			}
		default:
			if !m.running || waiting {
				// Idle (stopped, or WFI with nothing pending): block
				// briefly rather than spinning.
				select {
				case <-m.done:
					m.flushAll()
					return
				case pkt := <-m.control:
					m.process(pkt)
					if pkt.Msg == MsgReset || pkt.Msg == MsgStop {
						waiting = false
					}
				case <-time.After(10 * time.Millisecond):
					if m.cpu.Event.Load()&(events.IRQ|events.FIQ) != 0 {
						waiting = false
					}
				}
			}
		}
	}
}

// Stop signals the goroutine to exit and waits (bounded) for it to do so.
func (m *machine) Stop() {
	close(m.done)
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		m.log.Warn("timed out waiting for machine to stop")
	}
}

func (m *machine) flushAll() {
	for _, f := range m.flush {
		if err := f.Flush(); err != nil {
			m.log.Error("NAND flush failed", "error", err)
		}
	}
}

func (m *machine) process(pkt Packet) {
	switch pkt.Msg {
	case MsgStart:
		m.running = true
	case MsgStop:
		m.running = false
	case MsgReset:
		m.running = false
		m.cpu.Reset()
	case MsgStep:
		m.cpu.Event.Set(events.DebugStep)
		m.cpu.Step()
		m.cpu.Event.Clear(events.DebugStep)
	case MsgAddBreakpoint:
		m.cpu.AddBreakpoint(pkt.Addr)
	case MsgRemoveBreakpoint:
		m.cpu.RemoveBreakpoint(pkt.Addr)
	}
}
