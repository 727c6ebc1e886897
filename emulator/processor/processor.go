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

package processor

import (
	"github.com/andreas-jonsson/virtualgba/emulator/memory"
)

// Interrupt request flags, the bit layout of IE and IF.
const (
	IRQVBlank  uint16 = 1 << 0
	IRQHBlank  uint16 = 1 << 1
	IRQVCount  uint16 = 1 << 2
	IRQTimer0  uint16 = 1 << 3
	IRQSerial  uint16 = 1 << 7
	IRQDMA0    uint16 = 1 << 8
	IRQKeypad  uint16 = 1 << 12
	IRQGamePak uint16 = 1 << 13
)

// HaltState is the CPU execution state controlled through HALTCNT.
type HaltState int

const (
	Running HaltState = iota
	Halted
	Stopped
)

// InterruptController is implemented by the irq peripheral.
type InterruptController interface {
	// Request raises flag bits in IF. Flags can only be cleared by the
	// CPU writing ones to IF.
	Request(flag uint16)
	// Pending reports IE&IF, the halt wake-up condition.
	Pending() bool
	// PendingMasked reports IE&IF&mask.
	PendingMasked(mask uint16) bool
	// Fire reports whether an IRQ should be delivered: IME and IE&IF.
	Fire() bool

	Halt() HaltState
	SetHalt(HaltState)
}

// DMAController is implemented by the dma engine.
type DMAController interface {
	NotifyVBlank()
	NotifyHBlank()
	NotifyFIFO(dest memory.Pointer)
	// NotifyVideoCapture arms channel 3's Special trigger, raised by
	// the PPU once per scanline in the capture window.
	NotifyVideoCapture()
	// Running reports whether a triggered channel is holding the bus.
	Running() bool
	// Run executes the highest priority triggered channel to completion
	// and returns the consumed cycles.
	Run() int
}

// EventDevice is a peripheral driven by a cycle countdown. The scheduler
// subtracts elapsed cycles with Elapse and calls Tick each time the
// countdown reaches zero.
type EventDevice interface {
	WaitCycles() int
	Elapse(cycles int)
	Tick()
}

// Ticker is a peripheral that observes every consumed CPU/DMA cycle
// (timers, sound sampling).
type Ticker interface {
	Run(cycles int)
}

// Processor is the install surface handed to peripherals.
type Processor interface {
	Bus() *memory.Bus
	InstallIODevice(dev memory.IO, from, to memory.Pointer) error

	GetInterruptController() InterruptController
	GetDMAController() DMAController

	RegisterEvent(dev EventDevice)
	RegisterTicker(t Ticker)
}
