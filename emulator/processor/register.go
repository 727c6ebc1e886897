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

// CPSR flag bits and the privilege mode field.
const (
	FlagN uint32 = 1 << 31
	FlagZ uint32 = 1 << 30
	FlagC uint32 = 1 << 29
	FlagV uint32 = 1 << 28
	FlagI uint32 = 1 << 7
	FlagF uint32 = 1 << 6
	FlagT uint32 = 1 << 5

	ModeMask uint32 = 0x1F

	ModeUser       uint32 = 0x10
	ModeFIQ        uint32 = 0x11
	ModeIRQ        uint32 = 0x12
	ModeSupervisor uint32 = 0x13
	ModeAbort      uint32 = 0x17
	ModeUndefined  uint32 = 0x1B
	ModeSystem     uint32 = 0x1F
)

// Arena slots for the banked registers. R0-R14 of User/System occupy the
// first fifteen slots, followed by the FIQ bank and the R13/R14 pairs of
// the exception modes. R15 is shared by all modes.
const (
	bankFIQ = 15 // r8_fiq..r14_fiq
	bankSVC = 22 // r13_svc, r14_svc
	bankABT = 24
	bankIRQ = 26
	bankUND = 28
	bankPC  = 30
)

// Registers is the ARM7TDMI register file. The sixteen visible registers
// are a window into a 31-slot arena, rebound whenever the CPSR mode
// field changes.
type Registers struct {
	bank   [31]uint32
	window [16]uint8
	cpsr   uint32
	spsr   [5]uint32
}

func spsrIndex(mode uint32) int {
	switch mode {
	case ModeFIQ:
		return 0
	case ModeSupervisor:
		return 1
	case ModeAbort:
		return 2
	case ModeIRQ:
		return 3
	case ModeUndefined:
		return 4
	}
	return -1
}

func (r *Registers) remap() {
	for i := 0; i <= 7; i++ {
		r.window[i] = uint8(i)
	}
	r.window[15] = bankPC

	mode := r.cpsr & ModeMask
	if mode == ModeFIQ {
		for i := 0; i < 7; i++ {
			r.window[8+i] = uint8(bankFIQ + i)
		}
		return
	}

	for i := 8; i <= 12; i++ {
		r.window[i] = uint8(i)
	}
	switch mode {
	case ModeIRQ:
		r.window[13] = bankIRQ
		r.window[14] = bankIRQ + 1
	case ModeSupervisor:
		r.window[13] = bankSVC
		r.window[14] = bankSVC + 1
	case ModeAbort:
		r.window[13] = bankABT
		r.window[14] = bankABT + 1
	case ModeUndefined:
		r.window[13] = bankUND
		r.window[14] = bankUND + 1
	default: // User and System share the flat bank.
		r.window[13] = 13
		r.window[14] = 14
	}
}

// InitRegisters resets the file to the given CPSR value.
func (r *Registers) InitRegisters(cpsr uint32) {
	*r = Registers{cpsr: cpsr}
	r.remap()
}

func (r *Registers) Reg(i int) uint32 {
	return r.bank[r.window[i]]
}

func (r *Registers) SetReg(i int, v uint32) {
	r.bank[r.window[i]] = v
}

// UserReg bypasses the window, reading the User/System bank. Needed by
// LDM/STM with the S bit.
func (r *Registers) UserReg(i int) uint32 {
	if i >= 8 && i <= 14 && r.cpsr&ModeMask == ModeFIQ {
		return r.bank[i]
	}
	return r.Reg(i)
}

func (r *Registers) SetUserReg(i int, v uint32) {
	if i >= 8 && i <= 14 && r.cpsr&ModeMask == ModeFIQ {
		r.bank[i] = v
		return
	}
	r.SetReg(i, v)
}

// BankedReg addresses a register of a mode other than the current one.
// Used by reset to seed the exception stacks.
func (r *Registers) SetBankedReg(mode uint32, i int, v uint32) {
	old := r.cpsr
	r.cpsr = (r.cpsr &^ ModeMask) | (mode & ModeMask)
	r.remap()
	r.SetReg(i, v)
	r.cpsr = old
	r.remap()
}

func (r *Registers) BankedReg(mode uint32, i int) uint32 {
	old := r.cpsr
	r.cpsr = (r.cpsr &^ ModeMask) | (mode & ModeMask)
	r.remap()
	v := r.Reg(i)
	r.cpsr = old
	r.remap()
	return v
}

func (r *Registers) PC() uint32 {
	return r.bank[bankPC]
}

func (r *Registers) SetPC(v uint32) {
	r.bank[bankPC] = v
}

func (r *Registers) CPSR() uint32 {
	return r.cpsr
}

// SetCPSR replaces the whole status register, atomically rebinding the
// window when the mode field changes.
func (r *Registers) SetCPSR(v uint32) {
	changed := (r.cpsr ^ v) & ModeMask
	r.cpsr = v
	if changed != 0 {
		r.remap()
	}
}

func (r *Registers) Mode() uint32 {
	return r.cpsr & ModeMask
}

// SwitchMode changes only the mode field.
func (r *Registers) SwitchMode(mode uint32) {
	r.SetCPSR((r.cpsr &^ ModeMask) | (mode & ModeMask))
}

// SPSR returns the saved status register of the current mode. User and
// System have none and read back the CPSR.
func (r *Registers) SPSR() uint32 {
	if i := spsrIndex(r.Mode()); i >= 0 {
		return r.spsr[i]
	}
	return r.cpsr
}

func (r *Registers) SetSPSR(v uint32) {
	if i := spsrIndex(r.Mode()); i >= 0 {
		r.spsr[i] = v
	}
}

func (r *Registers) Thumb() bool {
	return r.cpsr&FlagT != 0
}

func (r *Registers) Carry() bool {
	return r.cpsr&FlagC != 0
}

func (r *Registers) IRQDisabled() bool {
	return r.cpsr&FlagI != 0
}

func (r *Registers) SetNZ(result uint32) {
	r.cpsr &^= FlagN | FlagZ
	if result&(1<<31) != 0 {
		r.cpsr |= FlagN
	}
	if result == 0 {
		r.cpsr |= FlagZ
	}
}

func (r *Registers) SetNZC(result uint32, carry bool) {
	r.SetNZ(result)
	r.cpsr &^= FlagC
	if carry {
		r.cpsr |= FlagC
	}
}

func (r *Registers) SetNZCV(result uint32, carry, overflow bool) {
	r.SetNZC(result, carry)
	r.cpsr &^= FlagV
	if overflow {
		r.cpsr |= FlagV
	}
}
