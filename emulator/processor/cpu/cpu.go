/*
Copyright (c) 2019-2021 Andreas T Jonsson

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

package cpu

import (
	"log"
	"math"

	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral"
	"github.com/andreas-jonsson/virtualgba/emulator/processor"
)

// Exception vectors.
const (
	VectorReset         = 0x00
	VectorUndefined     = 0x04
	VectorSWI           = 0x08
	VectorPrefetchAbort = 0x0C
	VectorDataAbort     = 0x10
	VectorIRQ           = 0x18
	VectorFIQ           = 0x1C
)

// Boot state with the BIOS intro skipped.
const (
	bootPC    = 0x08000000
	bootSP    = 0x03007F00
	bootSPirq = 0x03007FA0
	bootSPsvc = 0x03007FE0
)

// TraceFunc is invoked before each executed instruction when a trace
// hook is installed.
type TraceFunc func(addr, opcode uint32, thumb bool)

type CPU struct {
	processor.Registers

	bus         *memory.Bus
	peripherals []peripheral.Peripheral
	irq         processor.InterruptController
	dma         processor.DMAController
	events      []processor.EventDevice
	tickers     []processor.Ticker

	pipe struct {
		opcode [3]uint32
		status int
	}
	flush bool

	hle          bool
	cycles       int
	ticksCPU     int
	ticksToEvent int

	trace TraceFunc
}

func NewCPU(bus *memory.Bus, peripherals []peripheral.Peripheral) *CPU {
	c := &CPU{bus: bus, peripherals: peripherals, ticksToEvent: 1}
	c.installPeripherals()
	return c
}

func (c *CPU) installPeripherals() {
	for _, d := range c.peripherals {
		if pic, ok := d.(processor.InterruptController); ok {
			c.irq = pic
		}
	}
	for _, d := range c.peripherals {
		if dma, ok := d.(processor.DMAController); ok {
			c.dma = dma
		}
	}
	for _, d := range c.peripherals {
		if err := d.Install(c); err != nil {
			log.Print("Failed to install peripheral: ", err)
		}
	}
	if c.irq == nil {
		log.Print("No interrupt controller detected!")
	}
}

func (c *CPU) Close() {
	for _, d := range c.peripherals {
		if cd, ok := d.(peripheral.PeripheralCloser); ok {
			if err := cd.Close(); err != nil {
				log.Print("Failed to close peripheral: ", err)
			}
		}
	}
}

// Processor interface.

func (c *CPU) Bus() *memory.Bus {
	return c.bus
}

func (c *CPU) InstallIODevice(dev memory.IO, from, to memory.Pointer) error {
	return c.bus.InstallIODevice(dev, from, to)
}

func (c *CPU) GetInterruptController() processor.InterruptController {
	return c.irq
}

func (c *CPU) GetDMAController() processor.DMAController {
	return c.dma
}

func (c *CPU) RegisterEvent(dev processor.EventDevice) {
	c.events = append(c.events, dev)
}

func (c *CPU) RegisterTicker(t processor.Ticker) {
	c.tickers = append(c.tickers, t)
}

// SetHLE selects high level BIOS call emulation. Must be set when no
// BIOS image is loaded.
func (c *CPU) SetHLE(b bool) {
	c.hle = b
}

func (c *CPU) SetTraceHook(fn TraceFunc) {
	c.trace = fn
}

// Reset restores the boot state the BIOS intro would leave behind.
func (c *CPU) Reset() {
	c.InitRegisters(processor.ModeUser)
	c.SetBankedReg(processor.ModeSupervisor, 13, bootSPsvc)
	c.SetBankedReg(processor.ModeIRQ, 13, bootSPirq)
	c.SetReg(13, bootSP)
	c.SetPC(bootPC)

	c.pipe.status = 0
	c.flush = false
	c.ticksCPU = 0
	c.ticksToEvent = 1

	if c.hle {
		if err := c.bus.LoadBIOS(hleBIOS[:]); err != nil {
			panic(err)
		}
	}

	for _, d := range c.peripherals {
		d.Reset()
	}
}

// setReg writes a visible register. A write to R15 schedules a pipeline
// flush.
func (c *CPU) setReg(i int, v uint32) {
	if i == 15 {
		c.SetPC(v)
		c.flush = true
		return
	}
	c.SetReg(i, v)
}

func (c *CPU) fetch() uint32 {
	pc := memory.Pointer(c.PC())
	kind := memory.Sequential
	if c.pipe.status == 0 {
		kind = memory.NonSequential
	}
	c.bus.BeginFetch(pc)

	var op uint32
	if c.Thumb() {
		c.cycles += c.bus.Cycles16(kind, pc)
		op = uint32(c.bus.ReadHWord(pc))
	} else {
		c.cycles += c.bus.Cycles32(kind, pc)
		op = c.bus.ReadWord(pc)
	}
	c.bus.RecordFetch(pc, op)
	return op
}

func (c *CPU) execute(opcode uint32, thumb bool) {
	if c.trace != nil {
		size := uint32(8)
		if thumb {
			size = 4
		}
		c.trace(c.PC()-size, opcode, thumb)
	}
	if thumb {
		c.executeThumb(uint16(opcode))
	} else {
		c.executeARM(opcode)
	}
}

// Run advances the pipeline one step: one prefetch plus, once the
// pipeline is primed, one executed instruction. Returns the consumed
// cycles.
func (c *CPU) Run() int {
	c.cycles = 0

	thumb := c.Thumb()
	if thumb {
		c.SetPC(c.PC() &^ 1)
	} else {
		c.SetPC(c.PC() &^ 3)
	}

	p := &c.pipe
	switch p.status {
	case 0:
		p.opcode[0] = c.fetch()
	case 1:
		p.opcode[1] = c.fetch()
	case 2:
		p.opcode[2] = c.fetch()
		c.execute(p.opcode[0], thumb)
	case 3:
		p.opcode[0] = c.fetch()
		c.execute(p.opcode[1], thumb)
	case 4:
		p.opcode[1] = c.fetch()
		c.execute(p.opcode[2], thumb)
	}

	if c.flush {
		p.status = 0
		c.flush = false
		return c.cycles
	}

	if c.Thumb() {
		c.SetPC(c.PC() + 2)
	} else {
		c.SetPC(c.PC() + 4)
	}
	if p.status++; p.status == 5 {
		p.status = 2
	}
	return c.cycles
}

// SignalIrq enters the IRQ exception if interrupts are unmasked. The
// link value points at the instruction after the next one to execute.
func (c *CPU) SignalIrq() {
	if c.IRQDisabled() {
		return
	}

	link := c.PC() - 8 + 4
	if c.Thumb() {
		link = c.PC() - 4 + 4
	}

	old := c.CPSR()
	c.SetCPSR((old &^ (processor.ModeMask | processor.FlagT)) | processor.ModeIRQ | processor.FlagI)
	c.SetSPSR(old)
	c.SetReg(14, link)
	c.SetPC(VectorIRQ)
	c.pipe.status = 0
	c.flush = false
}

// exception enters a synchronous exception raised by the executing
// instruction (SWI, undefined). The link value is the next instruction.
func (c *CPU) exception(vector uint32, mode uint32) {
	link := c.PC() - 4
	if c.Thumb() {
		link = c.PC() - 2
	}

	old := c.CPSR()
	psr := (old &^ (processor.ModeMask | processor.FlagT)) | mode | processor.FlagI
	if vector == VectorReset || vector == VectorFIQ {
		psr |= processor.FlagF
	}
	c.SetCPSR(psr)
	c.SetSPSR(old)
	c.SetReg(14, link)
	c.setReg(15, vector)
}

// Memory helpers charging bus cycles.

func (c *CPU) readByte(addr memory.Pointer, kind memory.Access) byte {
	c.cycles += c.bus.Cycles16(kind, addr)
	return c.bus.ReadByte(addr)
}

func (c *CPU) readHWord(addr memory.Pointer, kind memory.Access) uint16 {
	c.cycles += c.bus.Cycles16(kind, addr)
	return c.bus.ReadHWord(addr)
}

func (c *CPU) readWord(addr memory.Pointer, kind memory.Access) uint32 {
	c.cycles += c.bus.Cycles32(kind, addr)
	return c.bus.ReadWord(addr)
}

func (c *CPU) writeByte(addr memory.Pointer, data byte, kind memory.Access) {
	c.cycles += c.bus.Cycles16(kind, addr)
	c.bus.WriteByte(addr, data)
}

func (c *CPU) writeHWord(addr memory.Pointer, data uint16, kind memory.Access) {
	c.cycles += c.bus.Cycles16(kind, addr)
	c.bus.WriteHWord(addr, data)
}

func (c *CPU) writeWord(addr memory.Pointer, data uint32, kind memory.Access) {
	c.cycles += c.bus.Cycles32(kind, addr)
	c.bus.WriteWord(addr, data)
}

// RunFor drives the machine for the given cycle budget: the CPU (or an
// active DMA) runs up to the next device event, then due events tick.
func (c *CPU) RunFor(cycles int) {
	for cycles > 0 {
		planned := c.ticksToEvent
		c.ticksCPU += planned

		for c.ticksCPU > 0 {
			halt := processor.Running
			if c.irq != nil {
				halt = c.irq.Halt()
				if halt == processor.Halted && c.irq.Pending() {
					c.irq.SetHalt(processor.Running)
					halt = processor.Running
				}
				if halt == processor.Stopped && c.irq.PendingMasked(processor.IRQKeypad) {
					c.irq.SetHalt(processor.Running)
					halt = processor.Running
				}
			}

			prev := c.ticksCPU
			if c.dma != nil && c.dma.Running() {
				c.ticksCPU -= c.dma.Run()
			} else if halt == processor.Running {
				if c.irq != nil && c.irq.Fire() {
					c.SignalIrq()
				}
				c.ticksCPU -= c.Run()
			} else {
				for _, t := range c.tickers {
					t.Run(c.ticksCPU)
				}
				c.ticksCPU = 0
				break
			}

			if n := prev - c.ticksCPU; n > 0 {
				for _, t := range c.tickers {
					t.Run(n)
				}
			}
		}

		elapsed := planned - c.ticksCPU
		cycles -= planned

		c.ticksToEvent = math.MaxInt32
		for _, ev := range c.events {
			ev.Elapse(elapsed)
			for ev.WaitCycles() <= 0 {
				ev.Tick()
			}
			if w := ev.WaitCycles(); w < c.ticksToEvent {
				c.ticksToEvent = w
			}
		}
		if c.ticksToEvent == math.MaxInt32 {
			c.ticksToEvent = 64
		}
	}
}
