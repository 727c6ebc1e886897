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

// ARM instruction classes, identified by the masked bit patterns of the
// ARM7TDMI instruction set encoding.

func isBranchExchange(op uint32) bool {
	return op&0x0FFFFFF0 == 0x012FFF10
}

func isBlockDataTransfer(op uint32) bool {
	return op&0x0E000000 == 0x08000000
}

func isBranch(op uint32) bool {
	return op&0x0E000000 == 0x0A000000
}

func isSoftwareInterrupt(op uint32) bool {
	return op&0x0F000000 == 0x0F000000
}

func isCoprocessor(op uint32) bool {
	return op&0x0C000000 == 0x0C000000
}

func isUndefined(op uint32) bool {
	return op&0x0E000010 == 0x06000010
}

func isSingleDataTransfer(op uint32) bool {
	return op&0x0C000000 == 0x04000000
}

func isSingleDataSwap(op uint32) bool {
	return op&0x0FB00FF0 == 0x01000090
}

func isMultiply(op uint32) bool {
	return op&0x0FC000F0 == 0x00000090
}

func isMultiplyLong(op uint32) bool {
	return op&0x0F8000F0 == 0x00800090
}

func isHalfwordTransferReg(op uint32) bool {
	return op&0x0E400F90 == 0x00000090
}

func isHalfwordTransferImm(op uint32) bool {
	return op&0x0E400090 == 0x00400090
}

func isMRS(op uint32) bool {
	return op&0x0FBF0000 == 0x010F0000
}

func isMSR(op uint32) bool {
	return op&0x0DB0F000 == 0x0120F000
}

func isDataProcessing(op uint32) bool {
	return op&0x0C000000 == 0
}

func (c *CPU) checkCondition(cond uint32) bool {
	n := c.CPSR()&processor.FlagN != 0
	z := c.CPSR()&processor.FlagZ != 0
	cf := c.CPSR()&processor.FlagC != 0
	v := c.CPSR()&processor.FlagV != 0

	switch cond {
	case 0x0: // EQ
		return z
	case 0x1: // NE
		return !z
	case 0x2: // CS
		return cf
	case 0x3: // CC
		return !cf
	case 0x4: // MI
		return n
	case 0x5: // PL
		return !n
	case 0x6: // VS
		return v
	case 0x7: // VC
		return !v
	case 0x8: // HI
		return cf && !z
	case 0x9: // LS
		return !cf || z
	case 0xA: // GE
		return n == v
	case 0xB: // LT
		return n != v
	case 0xC: // GT
		return !z && n == v
	case 0xD: // LE
		return z || n != v
	case 0xE: // AL
		return true
	}
	return false // NV
}

// barrelShift applies the four shift operations. The zero-amount
// encodings have the special ARM meanings (LSR/ASR #32, RRX) unless the
// amount came from a register.
func barrelShift(value uint32, op int, amount uint, oldCarry, regShift bool) (uint32, bool) {
	if regShift && amount == 0 {
		return value, oldCarry
	}

	switch op {
	case 0: // LSL
		if amount == 0 {
			return value, oldCarry
		}
		if amount > 32 {
			return 0, false
		}
		if amount == 32 {
			return 0, value&1 != 0
		}
		return value << amount, value>>(32-amount)&1 != 0
	case 1: // LSR
		if amount == 0 || amount == 32 {
			return 0, value>>31 != 0
		}
		if amount > 32 {
			return 0, false
		}
		return value >> amount, value>>(amount-1)&1 != 0
	case 2: // ASR
		if amount == 0 || amount >= 32 {
			if value&(1<<31) != 0 {
				return 0xFFFFFFFF, true
			}
			return 0, false
		}
		return uint32(int32(value) >> amount), value>>(amount-1)&1 != 0
	default: // ROR
		if amount == 0 { // RRX
			out := value >> 1
			if oldCarry {
				out |= 1 << 31
			}
			return out, value&1 != 0
		}
		amount &= 31
		if amount == 0 {
			return value, value>>31 != 0
		}
		out := bits.RotateLeft32(value, -int(amount))
		return out, value>>(amount-1)&1 != 0
	}
}

func ror(value uint32, amount uint) (uint32, bool) {
	if amount == 0 {
		return value, value>>31 != 0
	}
	out := bits.RotateLeft32(value, -int(amount&31))
	return out, value>>((amount-1)&31)&1 != 0
}

func addOverflow(a, b, result uint32) bool {
	return (a^result)&(b^result)>>31 != 0
}

func subOverflow(a, b, result uint32) bool {
	return (a^b)&(a^result)>>31 != 0
}

// multiplyCycles returns the internal cycle count of the Booth
// multiplier for the given second operand.
func multiplyCycles(rs uint32) int {
	switch {
	case rs&0xFFFFFF00 == 0 || rs&0xFFFFFF00 == 0xFFFFFF00:
		return 1
	case rs&0xFFFF0000 == 0 || rs&0xFFFF0000 == 0xFFFF0000:
		return 2
	case rs&0xFF000000 == 0 || rs&0xFF000000 == 0xFF000000:
		return 3
	}
	return 4
}

func (c *CPU) executeARM(op uint32) {
	if !c.checkCondition(op >> 28) {
		return
	}

	switch {
	case isBranchExchange(op):
		c.armBranchExchange(op)
	case isBlockDataTransfer(op):
		c.armBlockTransfer(op)
	case isBranch(op):
		c.armBranch(op)
	case isSoftwareInterrupt(op):
		c.armSWI(op)
	case isCoprocessor(op):
		c.exception(VectorUndefined, processor.ModeUndefined)
	case isUndefined(op):
		c.exception(VectorUndefined, processor.ModeUndefined)
	case isSingleDataTransfer(op):
		c.armSingleTransfer(op)
	case isSingleDataSwap(op):
		c.armSwap(op)
	case isMultiply(op):
		c.armMultiply(op)
	case isMultiplyLong(op):
		c.armMultiplyLong(op)
	case isHalfwordTransferReg(op), isHalfwordTransferImm(op):
		c.armHalfwordTransfer(op)
	case isMRS(op):
		c.armMRS(op)
	case isMSR(op):
		c.armMSR(op)
	case isDataProcessing(op):
		c.armDataProcessing(op)
	default:
		c.exception(VectorUndefined, processor.ModeUndefined)
	}
}

func (c *CPU) armBranchExchange(op uint32) {
	addr := c.Reg(int(op & 0xF))
	if addr&1 != 0 {
		c.SetCPSR(c.CPSR() | processor.FlagT)
		c.setReg(15, addr&^1)
	} else {
		c.SetCPSR(c.CPSR() &^ processor.FlagT)
		c.setReg(15, addr)
	}
}

func (c *CPU) armBranch(op uint32) {
	offset := op & 0xFFFFFF
	if offset&0x800000 != 0 {
		offset |= 0xFF000000
	}
	offset <<= 2

	if op&(1<<24) != 0 {
		c.SetReg(14, c.PC()-4)
	}
	c.setReg(15, c.PC()+offset)
}

func (c *CPU) armSWI(op uint32) {
	if c.hle {
		c.swiHLE(int(op >> 16 & 0xFF))
		return
	}
	c.exception(VectorSWI, processor.ModeSupervisor)
}

func (c *CPU) armDataProcessing(op uint32) {
	imm := op&(1<<25) != 0
	opcode := op >> 21 & 0xF
	s := op&(1<<20) != 0
	rn := int(op >> 16 & 0xF)
	rd := int(op >> 12 & 0xF)

	op1 := c.Reg(rn)
	var op2 uint32
	var shiftCarry bool

	if imm {
		op2, shiftCarry = ror(op&0xFF, uint(op>>8&0xF)*2)
		if op>>8&0xF == 0 {
			shiftCarry = c.Carry()
		}
	} else {
		shiftType := int(op >> 5 & 3)
		regShift := op&(1<<4) != 0
		rm := int(op & 0xF)
		rmVal := c.Reg(rm)

		var amount uint
		if regShift {
			// With a register shift the prefetch has advanced one more
			// step by the time the operands are read.
			if rn == 15 {
				op1 += 4
			}
			if rm == 15 {
				rmVal += 4
			}
			amount = uint(c.Reg(int(op>>8&0xF)) & 0xFF)
			c.cycles++
		} else {
			amount = uint(op >> 7 & 0x1F)
		}
		op2, shiftCarry = barrelShift(rmVal, shiftType, amount, c.Carry(), regShift)
	}

	writeResult := func(result uint32) {
		c.setReg(rd, result)
	}

	switch opcode {
	case 0x0: // AND
		result := op1 & op2
		writeResult(result)
		if s {
			c.SetNZC(result, shiftCarry)
		}
	case 0x1: // EOR
		result := op1 ^ op2
		writeResult(result)
		if s {
			c.SetNZC(result, shiftCarry)
		}
	case 0x2: // SUB
		result := op1 - op2
		writeResult(result)
		if s {
			c.SetNZCV(result, op1 >= op2, subOverflow(op1, op2, result))
		}
	case 0x3: // RSB
		result := op2 - op1
		writeResult(result)
		if s {
			c.SetNZCV(result, op2 >= op1, subOverflow(op2, op1, result))
		}
	case 0x4: // ADD
		sum := uint64(op1) + uint64(op2)
		result := uint32(sum)
		writeResult(result)
		if s {
			c.SetNZCV(result, sum > 0xFFFFFFFF, addOverflow(op1, op2, result))
		}
	case 0x5: // ADC
		var carryIn uint64
		if c.Carry() {
			carryIn = 1
		}
		sum := uint64(op1) + uint64(op2) + carryIn
		result := uint32(sum)
		writeResult(result)
		if s {
			c.SetNZCV(result, sum > 0xFFFFFFFF, addOverflow(op1, op2, result))
		}
	case 0x6: // SBC
		var borrow uint64
		if !c.Carry() {
			borrow = 1
		}
		result := uint32(uint64(op1) - uint64(op2) - borrow)
		writeResult(result)
		if s {
			c.SetNZCV(result, uint64(op1) >= uint64(op2)+borrow, subOverflow(op1, op2, result))
		}
	case 0x7: // RSC
		var borrow uint64
		if !c.Carry() {
			borrow = 1
		}
		result := uint32(uint64(op2) - uint64(op1) - borrow)
		writeResult(result)
		if s {
			c.SetNZCV(result, uint64(op2) >= uint64(op1)+borrow, subOverflow(op2, op1, result))
		}
	case 0x8: // TST
		c.SetNZC(op1&op2, shiftCarry)
	case 0x9: // TEQ
		c.SetNZC(op1^op2, shiftCarry)
	case 0xA: // CMP
		result := op1 - op2
		c.SetNZCV(result, op1 >= op2, subOverflow(op1, op2, result))
	case 0xB: // CMN
		sum := uint64(op1) + uint64(op2)
		result := uint32(sum)
		c.SetNZCV(result, sum > 0xFFFFFFFF, addOverflow(op1, op2, result))
	case 0xC: // ORR
		result := op1 | op2
		writeResult(result)
		if s {
			c.SetNZC(result, shiftCarry)
		}
	case 0xD: // MOV
		writeResult(op2)
		if s {
			c.SetNZC(op2, shiftCarry)
		}
	case 0xE: // BIC
		result := op1 &^ op2
		writeResult(result)
		if s {
			c.SetNZC(result, shiftCarry)
		}
	case 0xF: // MVN
		writeResult(^op2)
		if s {
			c.SetNZC(^op2, shiftCarry)
		}
	}

	if s && rd == 15 {
		// Return from exception: restore the saved status register.
		c.SetCPSR(c.SPSR())
	}
}

func (c *CPU) armMRS(op uint32) {
	rd := int(op >> 12 & 0xF)
	if op&(1<<22) != 0 {
		c.setReg(rd, c.SPSR())
	} else {
		c.setReg(rd, c.CPSR())
	}
}

func (c *CPU) armMSR(op uint32) {
	var mask uint32
	if op&(1<<19) != 0 {
		mask |= 0xFF000000
	}
	if op&(1<<18) != 0 {
		mask |= 0x00FF0000
	}
	if op&(1<<17) != 0 {
		mask |= 0x0000FF00
	}
	if op&(1<<16) != 0 {
		mask |= 0x000000FF
	}

	var value uint32
	if op&(1<<25) != 0 {
		value, _ = ror(op&0xFF, uint(op>>8&0xF)*2)
	} else {
		value = c.Reg(int(op & 0xF))
	}

	if op&(1<<22) != 0 {
		c.SetSPSR((c.SPSR() &^ mask) | (value & mask))
		return
	}
	c.SetCPSR((c.CPSR() &^ mask) | (value & mask))
}

func (c *CPU) armMultiply(op uint32) {
	accumulate := op&(1<<21) != 0
	s := op&(1<<20) != 0
	rd := int(op >> 16 & 0xF)
	rn := int(op >> 12 & 0xF)
	rsVal := c.Reg(int(op >> 8 & 0xF))
	rmVal := c.Reg(int(op & 0xF))

	result := rmVal * rsVal
	c.cycles += multiplyCycles(rsVal)
	if accumulate {
		result += c.Reg(rn)
		c.cycles++
	}
	c.setReg(rd, result)
	if s {
		c.SetNZ(result)
	}
}

func (c *CPU) armMultiplyLong(op uint32) {
	signed := op&(1<<22) != 0
	accumulate := op&(1<<21) != 0
	s := op&(1<<20) != 0
	rdHi := int(op >> 16 & 0xF)
	rdLo := int(op >> 12 & 0xF)
	rsVal := c.Reg(int(op >> 8 & 0xF))
	rmVal := c.Reg(int(op & 0xF))

	var result uint64
	if signed {
		result = uint64(int64(int32(rmVal)) * int64(int32(rsVal)))
	} else {
		result = uint64(rmVal) * uint64(rsVal)
	}
	c.cycles += multiplyCycles(rsVal) + 1
	if accumulate {
		result += uint64(c.Reg(rdHi))<<32 | uint64(c.Reg(rdLo))
		c.cycles++
	}

	c.setReg(rdHi, uint32(result>>32))
	c.setReg(rdLo, uint32(result))
	if s {
		c.SetNZ(uint32(result >> 32))
		if result == 0 {
			c.SetCPSR(c.CPSR() | processor.FlagZ)
		} else {
			c.SetCPSR(c.CPSR() &^ processor.FlagZ)
		}
	}
}

func (c *CPU) armSwap(op uint32) {
	byteSwap := op&(1<<22) != 0
	addr := memory.Pointer(c.Reg(int(op >> 16 & 0xF)))
	rd := int(op >> 12 & 0xF)
	rmVal := c.Reg(int(op & 0xF))

	if byteSwap {
		old := uint32(c.readByte(addr, memory.NonSequential))
		c.writeByte(addr, byte(rmVal), memory.NonSequential)
		c.setReg(rd, old)
	} else {
		old := c.readWord(addr&^3, memory.NonSequential)
		old, _ = ror(old, uint(addr&3)*8)
		c.writeWord(addr&^3, rmVal, memory.NonSequential)
		c.setReg(rd, old)
	}
	c.cycles++
}

func (c *CPU) armSingleTransfer(op uint32) {
	shifted := op&(1<<25) != 0
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	byteAccess := op&(1<<22) != 0
	writeback := op&(1<<21) != 0
	load := op&(1<<20) != 0
	rn := int(op >> 16 & 0xF)
	rd := int(op >> 12 & 0xF)

	var offset uint32
	if shifted {
		amount := uint(op >> 7 & 0x1F)
		shiftType := int(op >> 5 & 3)
		offset, _ = barrelShift(c.Reg(int(op&0xF)), shiftType, amount, c.Carry(), false)
	} else {
		offset = op & 0xFFF
	}

	base := c.Reg(rn)
	addr := memory.Pointer(base)
	if pre {
		if up {
			addr += memory.Pointer(offset)
		} else {
			addr -= memory.Pointer(offset)
		}
	}

	storeVal := c.Reg(rd)
	if rd == 15 {
		storeVal += 4 // stores of R15 observe PC+12
	}

	if writeback || !pre {
		if up {
			c.setReg(rn, base+offset)
		} else {
			c.setReg(rn, base-offset)
		}
	}

	if load {
		var value uint32
		if byteAccess {
			value = uint32(c.readByte(addr, memory.NonSequential))
		} else {
			value = c.readWord(addr&^3, memory.NonSequential)
			value, _ = ror(value, uint(addr&3)*8)
		}
		c.cycles++
		c.setReg(rd, value)
	} else {
		if byteAccess {
			c.writeByte(addr, byte(storeVal), memory.NonSequential)
		} else {
			c.writeWord(addr&^3, storeVal, memory.NonSequential)
		}
	}
}

func (c *CPU) armHalfwordTransfer(op uint32) {
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	imm := op&(1<<22) != 0
	writeback := op&(1<<21) != 0
	load := op&(1<<20) != 0
	rn := int(op >> 16 & 0xF)
	rd := int(op >> 12 & 0xF)
	kind := op >> 5 & 3

	var offset uint32
	if imm {
		offset = op>>8&0xF<<4 | op&0xF
	} else {
		offset = c.Reg(int(op & 0xF))
	}

	base := c.Reg(rn)
	addr := memory.Pointer(base)
	if pre {
		if up {
			addr += memory.Pointer(offset)
		} else {
			addr -= memory.Pointer(offset)
		}
	}

	storeVal := c.Reg(rd)
	if rd == 15 {
		storeVal += 4
	}

	if writeback || !pre {
		if up {
			c.setReg(rn, base+offset)
		} else {
			c.setReg(rn, base-offset)
		}
	}

	if load {
		var value uint32
		switch kind {
		case 1: // LDRH
			value = uint32(c.readHWord(addr&^1, memory.NonSequential))
			if addr&1 != 0 {
				value, _ = ror(value, 8)
			}
		case 2: // LDRSB
			value = uint32(int32(int8(c.readByte(addr, memory.NonSequential))))
		case 3: // LDRSH
			if addr&1 != 0 {
				value = uint32(int32(int8(c.readByte(addr, memory.NonSequential))))
			} else {
				value = uint32(int32(int16(c.readHWord(addr, memory.NonSequential))))
			}
		}
		c.cycles++
		c.setReg(rd, value)
	} else if kind == 1 { // STRH
		c.writeHWord(addr&^1, uint16(storeVal), memory.NonSequential)
	}
}

func (c *CPU) armBlockTransfer(op uint32) {
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	psrUser := op&(1<<22) != 0
	writeback := op&(1<<21) != 0
	load := op&(1<<20) != 0
	rn := int(op >> 16 & 0xF)
	list := op & 0xFFFF

	base := c.Reg(rn)

	if list == 0 {
		// Empty list transfers R15 and moves the base by 0x40.
		var addr memory.Pointer
		if up {
			addr = memory.Pointer(base)
			if pre {
				addr += 4
			}
		} else {
			addr = memory.Pointer(base) - 0x40
			if !pre {
				addr += 4
			}
		}
		if load {
			c.setReg(15, c.readWord(addr, memory.NonSequential))
		} else {
			c.writeWord(addr, c.PC()+4, memory.NonSequential)
		}
		if writeback {
			if up {
				c.setReg(rn, base+0x40)
			} else {
				c.setReg(rn, base-0x40)
			}
		}
		return
	}

	count := uint32(bits.OnesCount32(list))
	firstReg := bits.TrailingZeros32(list)

	var addr memory.Pointer
	if up {
		addr = memory.Pointer(base)
		if pre {
			addr += 4
		}
	} else {
		if pre {
			addr = memory.Pointer(base - 4*count)
		} else {
			addr = memory.Pointer(base - 4*(count-1))
		}
	}

	// Base writeback happens before the transfer on loads, and on
	// stores when the base is not the first transferred register.
	if writeback && (load || firstReg != rn) {
		if up {
			c.setReg(rn, base+4*count)
		} else {
			c.setReg(rn, base-4*count)
		}
	}

	kind := memory.NonSequential
	for i := 0; i < 16; i++ {
		if list&(1<<i) == 0 {
			continue
		}
		if load {
			value := c.readWord(addr, kind)
			if psrUser {
				c.SetUserReg(i, value)
				if i == 15 {
					c.SetCPSR(c.SPSR())
					c.flush = true
				}
			} else {
				c.setReg(i, value)
			}
		} else {
			var value uint32
			if psrUser {
				value = c.UserReg(i)
			} else {
				value = c.Reg(i)
			}
			if i == 15 {
				value += 4
			}
			c.writeWord(addr, value, kind)
		}
		addr += 4
		kind = memory.Sequential
	}
	if load {
		c.cycles++
	}

	if writeback && !load && firstReg == rn {
		if up {
			c.setReg(rn, base+4*count)
		} else {
			c.setReg(rn, base-4*count)
		}
	}
}
