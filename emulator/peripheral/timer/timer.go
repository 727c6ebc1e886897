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

package timer

import (
	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/processor"
)

const regBase = 0x100 // TM0CNT_L

var prescale = [4]int{1, 64, 256, 1024}

// SoundClock is fed by timer 0 and 1 overflows, the sample clock of the
// two sound FIFOs.
type SoundClock interface {
	OnTimerOverflow(id int)
}

type channel struct {
	count, reload uint16
	clock         int
	ticks         int
	enable        bool
	countup       bool
	interrupt     bool
}

type Device struct {
	Sound SoundClock

	pic      processor.InterruptController
	channels [4]channel
}

func (m *Device) Install(p processor.Processor) error {
	m.pic = p.GetInterruptController()
	p.RegisterTicker(m)
	return p.InstallIODevice(m, regBase, regBase+0xF)
}

func (m *Device) Name() string {
	return "Timers"
}

func (m *Device) Reset() {
	*m = Device{Sound: m.Sound, pic: m.pic}
}

// Run advances all enabled channels by the consumed cycles. Channel N+1
// in count-up mode increments once per overflow of channel N instead of
// counting cycles.
func (m *Device) Run(cycles int) {
	var overflows [4]int

	for i := range m.channels {
		ch := &m.channels[i]
		if !ch.enable {
			continue
		}

		var steps int
		if ch.countup && i > 0 {
			steps = overflows[i-1]
		} else {
			ch.ticks += cycles
			steps = ch.ticks / prescale[ch.clock]
			ch.ticks %= prescale[ch.clock]
		}

		for n := 0; n < steps; n++ {
			if ch.count != 0xFFFF {
				ch.count++
				continue
			}
			ch.count = ch.reload
			overflows[i]++
			if ch.interrupt && m.pic != nil {
				m.pic.Request(processor.IRQTimer0 << i)
			}
			if m.Sound != nil && i <= 1 {
				m.Sound.OnTimerOverflow(i)
			}
		}
	}
}

func (m *Device) In(reg memory.Pointer) byte {
	n := int(reg-regBase) / 4
	ch := &m.channels[n]

	switch int(reg-regBase) % 4 {
	case 0:
		return byte(ch.count)
	case 1:
		return byte(ch.count >> 8)
	case 2:
		v := byte(ch.clock)
		if ch.countup {
			v |= 4
		}
		if ch.interrupt {
			v |= 64
		}
		if ch.enable {
			v |= 128
		}
		return v
	}
	return 0
}

func (m *Device) Out(reg memory.Pointer, data byte) {
	n := int(reg-regBase) / 4
	ch := &m.channels[n]

	switch int(reg-regBase) % 4 {
	case 0:
		ch.reload = ch.reload&0xFF00 | uint16(data)
	case 1:
		ch.reload = ch.reload&0x00FF | uint16(data)<<8
	case 2:
		wasEnabled := ch.enable
		ch.clock = int(data & 3)
		ch.countup = data&4 != 0
		ch.interrupt = data&64 != 0
		ch.enable = data&128 != 0
		if ch.enable && !wasEnabled {
			ch.count = ch.reload
			ch.ticks = 0
		}
	}
}
