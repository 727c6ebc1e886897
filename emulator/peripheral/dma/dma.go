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

package dma

import (
	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/processor"
)

const regBase = 0xB0 // DMA0SAD

// Address control modes.
const (
	ctlIncrement = iota
	ctlDecrement
	ctlFixed
	ctlIncReload
)

// Trigger timings.
const (
	timingImmediate = iota
	timingVBlank
	timingHBlank
	timingSpecial
)

// Channel capability masks. Channel 0 cannot address the cartridge
// space and channels 0-2 count at most 0x4000 units.
var (
	srcMask = [4]uint32{0x07FFFFFF, 0x0FFFFFFF, 0x0FFFFFFF, 0x0FFFFFFF}
	dstMask = [4]uint32{0x07FFFFFF, 0x07FFFFFF, 0x07FFFFFF, 0x0FFFFFFF}
	cntMask = [4]uint32{0x3FFF, 0x3FFF, 0x3FFF, 0xFFFF}
)

type channel struct {
	source, dest uint32
	count        uint16

	srcInt, dstInt uint32
	countInt       uint32

	srcCtl, dstCtl int
	timing         int
	words          bool
	repeat         bool
	drq            bool
	interrupt      bool
	enable         bool

	pending bool
	fifo    bool
}

// Engine is the four channel DMA unit. While a triggered channel is
// pending it holds the bus and the CPU does not execute.
type Engine struct {
	bus      *memory.Bus
	pic      processor.InterruptController
	channels [4]channel
}

func (m *Engine) Install(p processor.Processor) error {
	m.bus = p.Bus()
	m.pic = p.GetInterruptController()
	return p.InstallIODevice(m, regBase, regBase+0x2F)
}

func (m *Engine) Name() string {
	return "DMA Engine"
}

func (m *Engine) Reset() {
	*m = Engine{bus: m.bus, pic: m.pic}
}

// DMAController interface.

func (m *Engine) NotifyVBlank() {
	for i := range m.channels {
		ch := &m.channels[i]
		if ch.enable && ch.timing == timingVBlank {
			ch.pending = true
		}
	}
}

func (m *Engine) NotifyHBlank() {
	for i := range m.channels {
		ch := &m.channels[i]
		if ch.enable && ch.timing == timingHBlank {
			ch.pending = true
		}
	}
}

// NotifyFIFO arms the sound channels targeting the given FIFO address.
// Only channels 1 and 2 can serve the FIFOs.
func (m *Engine) NotifyFIFO(dest memory.Pointer) {
	for i := 1; i <= 2; i++ {
		ch := &m.channels[i]
		if ch.enable && ch.timing == timingSpecial && memory.Pointer(ch.dstInt) == dest {
			ch.pending = true
			ch.fifo = true
		}
	}
}

// NotifyVideoCapture arms channel 3 in Special mode, one transfer per
// capture scanline. Channel 0 has no Special trigger at all and the
// sound channels only answer to NotifyFIFO.
func (m *Engine) NotifyVideoCapture() {
	ch := &m.channels[3]
	if ch.enable && ch.timing == timingSpecial {
		ch.pending = true
	}
}

func (m *Engine) Running() bool {
	for i := range m.channels {
		ch := &m.channels[i]
		if ch.enable && ch.pending {
			return true
		}
	}
	return false
}

// Run executes the highest priority pending channel to completion and
// returns the consumed cycles. Channel 0 has the highest priority.
func (m *Engine) Run() int {
	for i := range m.channels {
		ch := &m.channels[i]
		if ch.enable && ch.pending {
			return m.transfer(i)
		}
	}
	return 0
}

func (m *Engine) transfer(i int) int {
	ch := &m.channels[i]
	ch.pending = false
	cycles := 2

	step := uint32(2)
	if ch.words {
		step = 4
	}

	if ch.fifo {
		// FIFO refill: four words, destination pinned, count untouched.
		ch.fifo = false
		for n := 0; n < 4; n++ {
			src := memory.Pointer(ch.srcInt) &^ 3
			dst := memory.Pointer(ch.dstInt) &^ 3
			m.bus.WriteWord(dst, m.bus.ReadWord(src))
			cycles += m.bus.Cycles32(memory.Sequential, src) + m.bus.Cycles32(memory.Sequential, dst)
			m.advance(&ch.srcInt, ch.srcCtl, 4)
		}
		if ch.interrupt {
			m.pic.Request(processor.IRQDMA0 << i)
		}
		return cycles
	}

	for ch.countInt != 0 {
		if ch.words {
			src := memory.Pointer(ch.srcInt) &^ 3
			dst := memory.Pointer(ch.dstInt) &^ 3
			m.bus.WriteWord(dst, m.bus.ReadWord(src))
			cycles += m.bus.Cycles32(memory.Sequential, src) + m.bus.Cycles32(memory.Sequential, dst)
		} else {
			src := memory.Pointer(ch.srcInt) &^ 1
			dst := memory.Pointer(ch.dstInt) &^ 1
			m.bus.WriteHWord(dst, m.bus.ReadHWord(src))
			cycles += m.bus.Cycles16(memory.Sequential, src) + m.bus.Cycles16(memory.Sequential, dst)
		}

		m.advance(&ch.dstInt, ch.dstCtl, step)
		m.advance(&ch.srcInt, ch.srcCtl, step)
		ch.countInt--
	}

	if ch.repeat && ch.timing != timingImmediate {
		ch.countInt = uint32(ch.count) & cntMask[i]
		if ch.countInt == 0 {
			ch.countInt = cntMask[i] + 1
		}
		if ch.dstCtl == ctlIncReload {
			ch.dstInt = ch.dest & dstMask[i]
		}
	} else {
		ch.enable = false
	}

	if ch.interrupt {
		m.pic.Request(processor.IRQDMA0 << i)
	}
	return cycles
}

func (m *Engine) advance(addr *uint32, ctl int, step uint32) {
	switch ctl {
	case ctlIncrement, ctlIncReload:
		*addr += step
	case ctlDecrement:
		*addr -= step
	}
}

func (m *Engine) In(reg memory.Pointer) byte {
	n := int(reg-regBase) / 12
	ch := &m.channels[n]

	switch int(reg-regBase) % 12 {
	case 0, 1, 2, 3:
		return byte(ch.source >> (8 * (uint(reg-regBase) % 12)))
	case 4, 5, 6, 7:
		return byte(ch.dest >> (8 * (uint(reg-regBase)%12 - 4)))
	case 8:
		return byte(ch.count)
	case 9:
		return byte(ch.count >> 8)
	case 10:
		return byte(ch.dstCtl)<<5 | byte(ch.srcCtl&1)<<7
	case 11:
		v := byte(ch.srcCtl >> 1)
		if ch.repeat {
			v |= 1 << 1
		}
		if ch.words {
			v |= 1 << 2
		}
		if ch.drq {
			v |= 1 << 3
		}
		v |= byte(ch.timing) << 4
		if ch.interrupt {
			v |= 1 << 6
		}
		if ch.enable {
			v |= 1 << 7
		}
		return v
	}
	return 0
}

func (m *Engine) Out(reg memory.Pointer, data byte) {
	n := int(reg-regBase) / 12
	ch := &m.channels[n]
	off := int(reg-regBase) % 12

	switch off {
	case 0, 1, 2, 3:
		shift := uint(off) * 8
		ch.source = ch.source&^(0xFF<<shift) | uint32(data)<<shift
	case 4, 5, 6, 7:
		shift := uint(off-4) * 8
		ch.dest = ch.dest&^(0xFF<<shift) | uint32(data)<<shift
	case 8:
		ch.count = ch.count&0xFF00 | uint16(data)
	case 9:
		ch.count = ch.count&0x00FF | uint16(data)<<8
	case 10:
		// The source control field straddles the byte boundary.
		ch.srcCtl = ch.srcCtl&2 | int(data>>7)&1
		ch.dstCtl = int(data>>5) & 3
	case 11:
		ch.srcCtl = ch.srcCtl&1 | int(data&1)<<1
		ch.repeat = data&(1<<1) != 0
		ch.words = data&(1<<2) != 0
		ch.drq = data&(1<<3) != 0
		ch.timing = int(data>>4) & 3
		ch.interrupt = data&(1<<6) != 0

		wasEnabled := ch.enable
		ch.enable = data&(1<<7) != 0

		if ch.enable && !wasEnabled {
			// Rising enable edge latches the working registers.
			ch.srcInt = ch.source & srcMask[n]
			ch.dstInt = ch.dest & dstMask[n]
			ch.countInt = uint32(ch.count) & cntMask[n]
			if ch.countInt == 0 {
				ch.countInt = cntMask[n] + 1
			}
			if ch.timing == timingImmediate {
				ch.pending = true
			}
		}
		if !ch.enable {
			ch.pending = false
		}
	}
}
