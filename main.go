/*
 * nspire_emu-core - Main process.
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

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	command "github.com/rcornwell/armcore/command/command"
	"github.com/rcornwell/armcore/command/reader"
	"github.com/rcornwell/armcore/config/bootconfig"
	"github.com/rcornwell/armcore/internal/addrcache"
	"github.com/rcornwell/armcore/internal/cpu"
	"github.com/rcornwell/armcore/internal/events"
	"github.com/rcornwell/armcore/internal/flashimage"
	"github.com/rcornwell/armcore/internal/intc"
	"github.com/rcornwell/armcore/internal/machine"
	"github.com/rcornwell/armcore/internal/membus"
	"github.com/rcornwell/armcore/internal/mmu"
	"github.com/rcornwell/armcore/internal/nandctrl"
	logger "github.com/rcornwell/armcore/util/logger"
)

// Physical memory layout (spec §6): SDRAM at 0x10000000 sized by the
// boot image's manufacturer data, a NAND controller register window
// at 0xC0000000 (one of legacy or CX, picked by the boot config), and
// the interrupt controller at 0xDC000000.
const (
	ramBase    = 0x10000000
	defaultRAM = 32 * 1024 * 1024

	legacyNANDBase = 0xC0000000
	legacyNANDSize = 0x1000

	cxNANDBase = 0xC0000000
	cxNANDSize = 0x01000000

	intcBase = 0xDC000000
	intcSize = 0x1000
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "boot.cfg", "Boot configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	debug := false
	log := slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, &debug))
	slog.SetDefault(log)

	log.Info("core started")

	cfg, err := bootconfig.Load(*optConfig)
	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}

	image, err := flashimage.Open(cfg.Flash)
	if err != nil {
		log.Error("opening flash image", "error", err)
		os.Exit(1)
	}
	defer image.Close()

	settings, err := image.ReadSettings()
	if err != nil {
		log.Warn("reading manufacturer data", "error", err)
	}
	ramSize := uint32(defaultRAM)
	if settings.SDRAMBytes != 0 {
		ramSize = settings.SDRAMBytes
	}

	bus := membus.New(ramBase, ramSize, log)

	var ev events.Word
	walker := &mmu.Walker{Mem: bus}
	cache := addrcache.New(bus, walker, log)

	core := cpu.New(cache, cache, &ev, log)
	cache.Attach(core)
	walker.TTB = func() uint32 { return core.CP15.TTB }
	walker.DACR = func() uint32 { return core.CP15.DACR }

	controller := intc.New(core)
	bus.MapPeripheral(intcBase, intcSize, intc.NewRegs(controller))

	switch cfg.Controller {
	case bootconfig.ControllerLegacy:
		bus.MapPeripheral(legacyNANDBase, legacyNANDSize, nandctrl.NewLegacy(image.Device(), bus, log))
	case bootconfig.ControllerCX:
		bus.MapPeripheral(cxNANDBase, cxNANDSize, nandctrl.NewCX(image.Device()))
	}

	for _, addr := range cfg.Breaks {
		core.AddBreakpoint(addr)
	}

	m := machine.New(core, []machine.Flusher{image}, log)
	go m.Start()

	sess := &command.Session{Control: m.Control(), CPU: core, Flash: image.Device()}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		reader.ConsoleReader(sess)
		close(done)
	}()

	select {
	case <-sigChan:
		log.Info("got quit signal")
	case <-done:
	}

	log.Info("shutting down machine")
	m.Stop()
}
