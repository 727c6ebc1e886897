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
	"math/bits"

	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/processor"
)

func (c *CPU) executeThumb(op uint16) {
	switch {
	case op&0xFF00 == 0xDF00:
		c.thumbSWI(op)
	case op&0xF800 == 0xE000:
		c.thumbBranch(op)
	case op&0xF000 == 0xD000:
		c.thumbConditionalBranch(op)
	case op&0xF000 == 0xC000:
		c.thumbMultipleTransfer(op)
	case op&0xF000 == 0xF000:
		c.thumbLongBranchLink(op)
	case op&0xFF00 == 0xB000:
		c.thumbAdjustSP(op)
	case op&0xF600 == 0xB400:
		c.thumbPushPop(op)
	case op&0xF000 == 0x8000:
		c.thumbHalfwordTransfer(op)
	case op&0xF000 == 0x9000:
		c.thumbSPRelativeTransfer(op)
	case op&0xF000 == 0xA000:
		c.thumbLoadAddress(op)
	case op&0xE000 == 0x6000:
		c.thumbImmOffsetTransfer(op)
	case op&0xF200 == 0x5000:
		c.thumbRegOffsetTransfer(op)
	case op&0xF200 == 0x5200:
		c.thumbSignedTransfer(op)
	case op&0xF800 == 0x4800:
		c.thumbPCRelativeLoad(op)
	case op&0xFC00 == 0x4400:
		c.thumbHighRegOps(op)
	case op&0xFC00 == 0x4000:
		c.thumbALU(op)
	case op&0xE000 == 0x2000:
		c.thumbImmediate(op)
	case op&0xF800 == 0x1800:
		c.thumbAddSub(op)
	case op&0xE000 == 0x0000:
		c.thumbShifted(op)
	default:
		c.exception(VectorUndefined, processor.ModeUndefined)
	}
}

func (c *CPU) thumbSWI(op uint16) {
	if c.hle {
		c.swiHLE(int(op & 0xFF))
		return
	}
	c.exception(VectorSWI, processor.ModeSupervisor)
}

func (c *CPU) thumbBranch(op uint16) {
	offset := uint32(op & 0x7FF)
	if offset&0x400 != 0 {
		offset |= 0xFFFFF800
	}
	c.setReg(15, c.PC()+offset<<1)
}

func (c *CPU) thumbConditionalBranch(op uint16) {
	if !c.checkCondition(uint32(op >> 8 & 0xF)) {
		return
	}
	offset := uint32(int32(int8(op))) << 1
	c.setReg(15, c.PC()+offset)
}

func (c *CPU) thumbLongBranchLink(op uint16) {
	offset := uint32(op & 0x7FF)
	if op&(1<<11) == 0 {
		// First half: stage the high part of the target in LR.
		if offset&0x400 != 0 {
			offset |= 0xFFFFF800
		}
		c.SetReg(14, c.PC()+offset<<12)
		return
	}
	target := (c.Reg(14) + offset<<1) &^ 1
	ret := (c.PC() - 2) | 1
	c.setReg(15, target)
	c.SetReg(14, ret)
}

func (c *CPU) thumbAdjustSP(op uint16) {
	offset := uint32(op&0x7F) << 2
	if op&(1<<7) != 0 {
		c.SetReg(13, c.Reg(13)-offset)
	} else {
		c.SetReg(13, c.Reg(13)+offset)
	}
}

func (c *CPU) thumbPushPop(op uint16) {
	pop := op&(1<<11) != 0
	pclr := op&(1<<8) != 0
	list := op & 0xFF

	sp := c.Reg(13)
	kind := memory.NonSequential

	if pop {
		for i := 0; i < 8; i++ {
			if list&(1<<i) != 0 {
				c.setReg(i, c.readWord(memory.Pointer(sp), kind))
				sp += 4
				kind = memory.Sequential
			}
		}
		if pclr {
			c.setReg(15, c.readWord(memory.Pointer(sp), kind)&^1)
			sp += 4
		}
		c.cycles++
	} else {
		if pclr {
			sp -= 4
			c.writeWord(memory.Pointer(sp), c.Reg(14), kind)
			kind = memory.Sequential
		}
		for i := 7; i >= 0; i-- {
			if list&(1<<i) != 0 {
				sp -= 4
				c.writeWord(memory.Pointer(sp), c.Reg(i), kind)
				kind = memory.Sequential
			}
		}
	}
	c.SetReg(13, sp)
}

func (c *CPU) thumbMultipleTransfer(op uint16) {
	load := op&(1<<11) != 0
	rb := int(op >> 8 & 7)
	list := op & 0xFF

	addr := c.Reg(rb)

	if list == 0 {
		// Empty list: R15 transfers, base advances by 0x40.
		if load {
			c.setReg(15, c.readWord(memory.Pointer(addr), memory.NonSequential))
		} else {
			c.writeWord(memory.Pointer(addr), c.PC()+2, memory.NonSequential)
		}
		c.SetReg(rb, addr+0x40)
		return
	}

	firstReg := bits.TrailingZeros16(list)
	count := uint32(bits.OnesCount16(list))

	// STM writes the final base back before transferring it.
	if !load && firstReg != rb {
		c.SetReg(rb, addr+count*4)
	}

	kind := memory.NonSequential
	for i := 0; i < 8; i++ {
		if list&(1<<i) == 0 {
			continue
		}
		if load {
			c.setReg(i, c.readWord(memory.Pointer(addr), kind))
		} else {
			c.writeWord(memory.Pointer(addr), c.Reg(i), kind)
		}
		addr += 4
		kind = memory.Sequential
	}
	if load {
		c.cycles++
	}

	if load || firstReg == rb {
		c.SetReg(rb, addr)
	}
}

func (c *CPU) thumbHalfwordTransfer(op uint16) {
	offset := uint32(op>>6&0x1F) << 1
	rb := int(op >> 3 & 7)
	rd := int(op & 7)
	addr := memory.Pointer(c.Reg(rb) + offset)

	if op&(1<<11) != 0 { // LDRH
		value := uint32(c.readHWord(addr&^1, memory.NonSequential))
		if addr&1 != 0 {
			value, _ = ror(value, 8)
		}
		c.cycles++
		c.setReg(rd, value)
	} else { // STRH
		c.writeHWord(addr&^1, uint16(c.Reg(rd)), memory.NonSequential)
	}
}

func (c *CPU) thumbSPRelativeTransfer(op uint16) {
	rd := int(op >> 8 & 7)
	offset := uint32(op&0xFF) << 2
	addr := memory.Pointer(c.Reg(13) + offset)

	if op&(1<<11) != 0 { // LDR
		value := c.readWord(addr&^3, memory.NonSequential)
		value, _ = ror(value, uint(addr&3)*8)
		c.cycles++
		c.setReg(rd, value)
	} else { // STR
		c.writeWord(addr&^3, c.Reg(rd), memory.NonSequential)
	}
}

func (c *CPU) thumbLoadAddress(op uint16) {
	rd := int(op >> 8 & 7)
	offset := uint32(op&0xFF) << 2

	if op&(1<<11) != 0 {
		c.setReg(rd, c.Reg(13)+offset)
	} else {
		c.setReg(rd, (c.PC()&^2)+offset)
	}
}

func (c *CPU) thumbImmOffsetTransfer(op uint16) {
	offset := uint32(op >> 6 & 0x1F)
	rb := int(op >> 3 & 7)
	rd := int(op & 7)
	base := c.Reg(rb)

	switch op >> 11 & 3 {
	case 0: // STR
		c.writeWord(memory.Pointer(base+offset<<2)&^3, c.Reg(rd), memory.NonSequential)
	case 1: // LDR
		addr := memory.Pointer(base + offset<<2)
		value := c.readWord(addr&^3, memory.NonSequential)
		value, _ = ror(value, uint(addr&3)*8)
		c.cycles++
		c.setReg(rd, value)
	case 2: // STRB
		c.writeByte(memory.Pointer(base+offset), byte(c.Reg(rd)), memory.NonSequential)
	case 3: // LDRB
		c.cycles++
		c.setReg(rd, uint32(c.readByte(memory.Pointer(base+offset), memory.NonSequential)))
	}
}

func (c *CPU) thumbRegOffsetTransfer(op uint16) {
	ro := int(op >> 6 & 7)
	rb := int(op >> 3 & 7)
	rd := int(op & 7)
	addr := memory.Pointer(c.Reg(rb) + c.Reg(ro))

	switch op >> 10 & 3 {
	case 0: // STR
		c.writeWord(addr&^3, c.Reg(rd), memory.NonSequential)
	case 1: // STRB
		c.writeByte(addr, byte(c.Reg(rd)), memory.NonSequential)
	case 2: // LDR
		value := c.readWord(addr&^3, memory.NonSequential)
		value, _ = ror(value, uint(addr&3)*8)
		c.cycles++
		c.setReg(rd, value)
	case 3: // LDRB
		c.cycles++
		c.setReg(rd, uint32(c.readByte(addr, memory.NonSequential)))
	}
}

func (c *CPU) thumbSignedTransfer(op uint16) {
	ro := int(op >> 6 & 7)
	rb := int(op >> 3 & 7)
	rd := int(op & 7)
	addr := memory.Pointer(c.Reg(rb) + c.Reg(ro))

	switch op >> 10 & 3 {
	case 0: // STRH
		c.writeHWord(addr&^1, uint16(c.Reg(rd)), memory.NonSequential)
		return
	case 1: // LDRSB
		c.setReg(rd, uint32(int32(int8(c.readByte(addr, memory.NonSequential)))))
	case 2: // LDRH
		value := uint32(c.readHWord(addr&^1, memory.NonSequential))
		if addr&1 != 0 {
			value, _ = ror(value, 8)
		}
		c.setReg(rd, value)
	case 3: // LDRSH
		if addr&1 != 0 {
			c.setReg(rd, uint32(int32(int8(c.readByte(addr, memory.NonSequential)))))
		} else {
			c.setReg(rd, uint32(int32(int16(c.readHWord(addr, memory.NonSequential)))))
		}
	}
	c.cycles++
}

func (c *CPU) thumbPCRelativeLoad(op uint16) {
	rd := int(op >> 8 & 7)
	offset := uint32(op&0xFF) << 2
	addr := memory.Pointer((c.PC() &^ 2) + offset)
	c.cycles++
	c.setReg(rd, c.readWord(addr, memory.NonSequential))
}

func (c *CPU) thumbHighRegOps(op uint16) {
	rs := int(op >> 3 & 0xF)
	rd := int(op & 7)
	if op&(1<<7) != 0 {
		rd |= 8
	}
	rsVal := c.Reg(rs)
	rdVal := c.Reg(rd)

	switch op >> 8 & 3 {
	case 0: // ADD
		if rd == 15 {
			c.setReg(15, (rdVal+rsVal)&^1)
		} else {
			c.SetReg(rd, rdVal+rsVal)
		}
	case 1: // CMP
		result := rdVal - rsVal
		c.SetNZCV(result, rdVal >= rsVal, subOverflow(rdVal, rsVal, result))
	case 2: // MOV
		if rd == 15 {
			c.setReg(15, rsVal&^1)
		} else {
			c.SetReg(rd, rsVal)
		}
	case 3: // BX
		if rsVal&1 != 0 {
			c.setReg(15, rsVal&^1)
		} else {
			c.SetCPSR(c.CPSR() &^ processor.FlagT)
			c.setReg(15, rsVal&^3)
		}
	}
}

func (c *CPU) thumbALU(op uint16) {
	rs := int(op >> 3 & 7)
	rd := int(op & 7)
	rsVal := c.Reg(rs)
	rdVal := c.Reg(rd)

	switch op >> 6 & 0xF {
	case 0x0: // AND
		result := rdVal & rsVal
		c.SetReg(rd, result)
		c.SetNZ(result)
	case 0x1: // EOR
		result := rdVal ^ rsVal
		c.SetReg(rd, result)
		c.SetNZ(result)
	case 0x2: // LSL
		result, carry := barrelShift(rdVal, 0, uint(rsVal&0xFF), c.Carry(), true)
		c.SetReg(rd, result)
		c.SetNZC(result, carry)
		c.cycles++
	case 0x3: // LSR
		result, carry := barrelShift(rdVal, 1, uint(rsVal&0xFF), c.Carry(), true)
		c.SetReg(rd, result)
		c.SetNZC(result, carry)
		c.cycles++
	case 0x4: // ASR
		result, carry := barrelShift(rdVal, 2, uint(rsVal&0xFF), c.Carry(), true)
		c.SetReg(rd, result)
		c.SetNZC(result, carry)
		c.cycles++
	case 0x5: // ADC
		var carryIn uint64
		if c.Carry() {
			carryIn = 1
		}
		sum := uint64(rdVal) + uint64(rsVal) + carryIn
		result := uint32(sum)
		c.SetReg(rd, result)
		c.SetNZCV(result, sum > 0xFFFFFFFF, addOverflow(rdVal, rsVal, result))
	case 0x6: // SBC
		var borrow uint64
		if !c.Carry() {
			borrow = 1
		}
		result := uint32(uint64(rdVal) - uint64(rsVal) - borrow)
		c.SetReg(rd, result)
		c.SetNZCV(result, uint64(rdVal) >= uint64(rsVal)+borrow, subOverflow(rdVal, rsVal, result))
	case 0x7: // ROR
		result, carry := barrelShift(rdVal, 3, uint(rsVal&0xFF), c.Carry(), true)
		if rsVal&0xFF != 0 && rsVal&0x1F == 0 {
			// Rotate by a multiple of 32: value unchanged, carry from bit 31.
			result = rdVal
			carry = rdVal>>31 != 0
		}
		c.SetReg(rd, result)
		c.SetNZC(result, carry)
		c.cycles++
	case 0x8: // TST
		c.SetNZ(rdVal & rsVal)
	case 0x9: // NEG
		result := -rsVal
		c.SetReg(rd, result)
		c.SetNZCV(result, rsVal == 0, subOverflow(0, rsVal, result))
	case 0xA: // CMP
		result := rdVal - rsVal
		c.SetNZCV(result, rdVal >= rsVal, subOverflow(rdVal, rsVal, result))
	case 0xB: // CMN
		sum := uint64(rdVal) + uint64(rsVal)
		result := uint32(sum)
		c.SetNZCV(result, sum > 0xFFFFFFFF, addOverflow(rdVal, rsVal, result))
	case 0xC: // ORR
		result := rdVal | rsVal
		c.SetReg(rd, result)
		c.SetNZ(result)
	case 0xD: // MUL
		result := rdVal * rsVal
		c.SetReg(rd, result)
		c.SetNZ(result)
		c.cycles += multiplyCycles(rdVal)
	case 0xE: // BIC
		result := rdVal &^ rsVal
		c.SetReg(rd, result)
		c.SetNZ(result)
	case 0xF: // MVN
		result := ^rsVal
		c.SetReg(rd, result)
		c.SetNZ(result)
	}
}

func (c *CPU) thumbImmediate(op uint16) {
	rd := int(op >> 8 & 7)
	imm := uint32(op & 0xFF)
	rdVal := c.Reg(rd)

	switch op >> 11 & 3 {
	case 0: // MOV
		c.SetReg(rd, imm)
		c.SetNZ(imm)
	case 1: // CMP
		result := rdVal - imm
		c.SetNZCV(result, rdVal >= imm, subOverflow(rdVal, imm, result))
	case 2: // ADD
		sum := uint64(rdVal) + uint64(imm)
		result := uint32(sum)
		c.SetReg(rd, result)
		c.SetNZCV(result, sum > 0xFFFFFFFF, addOverflow(rdVal, imm, result))
	case 3: // SUB
		result := rdVal - imm
		c.SetReg(rd, result)
		c.SetNZCV(result, rdVal >= imm, subOverflow(rdVal, imm, result))
	}
}

func (c *CPU) thumbAddSub(op uint16) {
	rs := int(op >> 3 & 7)
	rd := int(op & 7)
	rsVal := c.Reg(rs)

	var operand uint32
	if op&(1<<10) != 0 {
		operand = uint32(op >> 6 & 7)
	} else {
		operand = c.Reg(int(op >> 6 & 7))
	}

	if op&(1<<9) != 0 { // SUB
		result := rsVal - operand
		c.SetReg(rd, result)
		c.SetNZCV(result, rsVal >= operand, subOverflow(rsVal, operand, result))
	} else { // ADD
		sum := uint64(rsVal) + uint64(operand)
		result := uint32(sum)
		c.SetReg(rd, result)
		c.SetNZCV(result, sum > 0xFFFFFFFF, addOverflow(rsVal, operand, result))
	}
}

func (c *CPU) thumbShifted(op uint16) {
	shiftType := int(op >> 11 & 3)
	amount := uint(op >> 6 & 0x1F)
	rs := int(op >> 3 & 7)
	rd := int(op & 7)

	result, carry := barrelShift(c.Reg(rs), shiftType, amount, c.Carry(), false)
	c.SetReg(rd, result)
	c.SetNZC(result, carry)
}
