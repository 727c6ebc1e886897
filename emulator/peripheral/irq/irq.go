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

package irq

import (
	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/processor"
)

// Register offsets relative to the IO base.
const (
	regIE      = 0x200
	regIF      = 0x202
	regIME     = 0x208
	regPOSTFLG = 0x300
	regHALTCNT = 0x301
)

// Device is the interrupt controller: IE, IF, IME and the halt control
// latch that parks the CPU.
type Device struct {
	ie, if_ uint16
	ime     uint16
	post    byte
	halt    processor.HaltState
}

func (m *Device) Install(p processor.Processor) error {
	// WAITCNT at 0x204 sits between IF and IME and belongs to the bus.
	if err := p.InstallIODevice(m, regIE, regIF+1); err != nil {
		return err
	}
	if err := p.InstallIODevice(m, regIME, regIME+1); err != nil {
		return err
	}
	return p.InstallIODevice(m, regPOSTFLG, regHALTCNT)
}

func (m *Device) Name() string {
	return "Interrupt Controller"
}

func (m *Device) Reset() {
	*m = Device{}
}

// InterruptController interface for the CPU and the peripherals.

func (m *Device) Request(flag uint16) {
	m.if_ |= flag
}

func (m *Device) Pending() bool {
	return m.ie&m.if_ != 0
}

func (m *Device) PendingMasked(mask uint16) bool {
	return m.ie&m.if_&mask != 0
}

func (m *Device) Fire() bool {
	return m.ime&1 != 0 && m.ie&m.if_ != 0
}

func (m *Device) Halt() processor.HaltState {
	return m.halt
}

func (m *Device) SetHalt(s processor.HaltState) {
	m.halt = s
}

func (m *Device) In(reg memory.Pointer) byte {
	switch reg {
	case regIE:
		return byte(m.ie)
	case regIE + 1:
		return byte(m.ie >> 8)
	case regIF:
		return byte(m.if_)
	case regIF + 1:
		return byte(m.if_ >> 8)
	case regIME:
		return byte(m.ime)
	case regIME + 1:
		return byte(m.ime >> 8)
	case regPOSTFLG:
		return m.post
	}
	return 0
}

func (m *Device) Out(reg memory.Pointer, data byte) {
	switch reg {
	case regIE:
		m.ie = m.ie&0xFF00 | uint16(data)
	case regIE + 1:
		m.ie = m.ie&0x00FF | uint16(data)<<8
	case regIF:
		// Write one to clear.
		m.if_ &^= uint16(data)
	case regIF + 1:
		m.if_ &^= uint16(data) << 8
	case regIME:
		m.ime = m.ime&0xFF00 | uint16(data)
	case regIME + 1:
		m.ime = m.ime&0x00FF | uint16(data)<<8
	case regPOSTFLG:
		m.post = data & 1
	case regHALTCNT:
		if data&0x80 != 0 {
			m.halt = processor.Stopped
		} else {
			m.halt = processor.Halted
		}
	}
}
