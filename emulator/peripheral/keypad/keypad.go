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

package keypad

import (
	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/processor"
)

const (
	regKEYINPUT = 0x130
	regKEYCNT   = 0x132
)

// Button bits of KEYINPUT, active low.
const (
	ButtonA = 1 << iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonRight
	ButtonLeft
	ButtonUp
	ButtonDown
	ButtonR
	ButtonL

	buttonMask = 0x3FF
)

// Device is the key input register pair. The host shell feeds it a
// fresh button bitmap every frame.
type Device struct {
	pic  processor.InterruptController
	keys uint16
	cnt  uint16
}

func (m *Device) Install(p processor.Processor) error {
	m.pic = p.GetInterruptController()
	return p.InstallIODevice(m, regKEYINPUT, regKEYCNT+1)
}

func (m *Device) Name() string {
	return "Keypad"
}

func (m *Device) Reset() {
	*m = Device{pic: m.pic, keys: buttonMask}
}

// Set replaces the active-low button bitmap and evaluates the KEYCNT
// interrupt condition. A raised keypad interrupt is the only event that
// leaves Stop.
func (m *Device) Set(state uint16) {
	m.keys = state & buttonMask
	m.checkInterrupt()
}

// SetButton presses or releases a single button.
func (m *Device) SetButton(button uint16, down bool) {
	if down {
		m.keys &^= button
	} else {
		m.keys |= button
	}
	m.checkInterrupt()
}

func (m *Device) checkInterrupt() {
	if m.cnt&(1<<14) == 0 || m.pic == nil {
		return
	}

	pressed := ^m.keys & buttonMask
	mask := m.cnt & buttonMask

	if m.cnt&(1<<15) != 0 {
		if mask != 0 && pressed&mask == mask {
			m.pic.Request(processor.IRQKeypad)
		}
	} else if pressed&mask != 0 {
		m.pic.Request(processor.IRQKeypad)
	}
}

func (m *Device) In(reg memory.Pointer) byte {
	switch reg {
	case regKEYINPUT:
		return byte(m.keys)
	case regKEYINPUT + 1:
		return byte(m.keys >> 8)
	case regKEYCNT:
		return byte(m.cnt)
	case regKEYCNT + 1:
		return byte(m.cnt >> 8)
	}
	return 0
}

func (m *Device) Out(reg memory.Pointer, data byte) {
	switch reg {
	case regKEYCNT:
		m.cnt = m.cnt&0xFF00 | uint16(data)
	case regKEYCNT + 1:
		m.cnt = m.cnt&0x00FF | uint16(data)<<8
	}
	// KEYINPUT is read-only.
}
