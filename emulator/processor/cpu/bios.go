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

	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/processor"
)

// hleBIOS is a minimal BIOS replacement. It branches over the vector
// table at reset and dispatches IRQs to the user handler pointer at
// 0x03007FFC, which is all the high level call emulation needs from
// the real image.
var hleBIOS = [0x40]byte{
	0x06, 0x00, 0x00, 0xEA, 0x00, 0x00, 0xA0, 0xE1,
	0x00, 0x00, 0xA0, 0xE1, 0x00, 0x00, 0xA0, 0xE1,
	0x00, 0x00, 0xA0, 0xE1, 0x00, 0x00, 0xA0, 0xE1,
	0x01, 0x00, 0x00, 0xEA, 0x00, 0x00, 0xA0, 0xE1,
	0x02, 0xF3, 0xA0, 0xE3, 0x0F, 0x50, 0x2D, 0xE9,
	0x01, 0x03, 0xA0, 0xE3, 0x00, 0xE0, 0x8F, 0xE2,
	0x04, 0xF0, 0x10, 0xE5, 0x0F, 0x50, 0xBD, 0xE8,
	0x04, 0xF0, 0x5E, 0xE2, 0x00, 0x00, 0xA0, 0xE1,
}

// BIOS call numbers handled by the high level emulation.
const (
	swiSoftReset        = 0x00
	swiRegisterRamReset = 0x01
	swiHalt             = 0x02
	swiStop             = 0x03
	swiIntrWait         = 0x04
	swiVBlankIntrWait   = 0x05
	swiDiv              = 0x06
	swiDivArm           = 0x07
	swiCpuSet           = 0x0B
	swiCpuFastSet       = 0x0C
	swiHuffUnComp       = 0x13
	swiLZ77UncompWRAM   = 0x11
	swiLZ77UncompVRAM   = 0x12
	swiRLUnCompWRAM     = 0x14
	swiRLUnCompVRAM     = 0x15
)

func (c *CPU) swiHLE(number int) {
	switch number {
	case swiSoftReset, swiRegisterRamReset:
		// Accepted and ignored.
	case swiHalt:
		if c.irq != nil {
			c.irq.SetHalt(processor.Halted)
		}
	case swiStop:
		if c.irq != nil {
			c.irq.SetHalt(processor.Stopped)
		}
	case swiIntrWait, swiVBlankIntrWait:
		if c.irq != nil {
			c.irq.SetHalt(processor.Halted)
		}
	case swiDiv:
		c.swiDivide(c.Reg(0), c.Reg(1))
	case swiDivArm:
		c.swiDivide(c.Reg(1), c.Reg(0))
	case swiCpuSet:
		c.swiCpuSetBlock(false)
	case swiCpuFastSet:
		c.swiCpuSetBlock(true)
	case swiLZ77UncompWRAM:
		c.swiLZ77(false)
	case swiLZ77UncompVRAM:
		c.swiLZ77(true)
	case swiRLUnCompWRAM:
		c.swiRLE(false)
	case swiRLUnCompVRAM:
		c.swiRLE(true)
	case swiHuffUnComp:
		c.swiHuffman()
	default:
		log.Printf("unimplemented BIOS call 0x%X", number)
		c.SetReg(0, 0)
	}
}

func (c *CPU) swiDivide(numerator, denominator uint32) {
	if denominator == 0 {
		// Division by zero does not trap; quotient reads back as zero.
		c.SetReg(0, 0)
		c.SetReg(1, numerator)
		c.SetReg(3, 0)
		return
	}

	quotient := int32(numerator) / int32(denominator)
	remainder := int32(numerator) % int32(denominator)
	c.SetReg(0, uint32(quotient))
	c.SetReg(1, uint32(remainder))
	if quotient < 0 {
		c.SetReg(3, uint32(-quotient))
	} else {
		c.SetReg(3, uint32(quotient))
	}
}

func (c *CPU) swiCpuSetBlock(fast bool) {
	src := memory.Pointer(c.Reg(0))
	dst := memory.Pointer(c.Reg(1))
	control := c.Reg(2)
	count := control & 0xFFFFF
	fixed := control&(1<<24) != 0
	words := fast || control&(1<<26) != 0

	if fast {
		// Blocks of eight words; the count is rounded up.
		count = (count + 7) &^ 7
	}

	for i := uint32(0); i < count; i++ {
		if words {
			c.bus.WriteWord(dst, c.bus.ReadWord(src))
			dst += 4
			if !fixed {
				src += 4
			}
		} else {
			c.bus.WriteHWord(dst, c.bus.ReadHWord(src))
			dst += 2
			if !fixed {
				src += 2
			}
		}
	}
}

// vramSink buffers decompressed bytes into 16-bit writes. The video bus
// cannot take byte stores, so each odd-offset byte goes out together
// with its latched predecessor.
type vramSink struct {
	bus   *memory.Bus
	dst   memory.Pointer
	latch byte
}

func (s *vramSink) write(b byte) {
	if s.dst&1 != 0 {
		s.bus.WriteHWord(s.dst&^1, uint16(s.latch)|uint16(b)<<8)
	}
	s.latch = b
	s.dst++
}

func (c *CPU) swiLZ77(vram bool) {
	header := c.bus.ReadWord(memory.Pointer(c.Reg(0)))
	remaining := int(header >> 8)
	src := memory.Pointer(c.Reg(0)) + 4
	dst := memory.Pointer(c.Reg(1))
	sink := &vramSink{bus: c.bus, dst: dst}

	emit := func(b byte) {
		if vram {
			sink.write(b)
		} else {
			c.bus.WriteByte(dst, b)
		}
		dst++
		remaining--
	}
	readBack := func(disp uint32) byte {
		return c.bus.ReadByte(dst - memory.Pointer(disp) - 1)
	}

	for remaining > 0 {
		flags := c.bus.ReadByte(src)
		src++

		for i := 7; i >= 0; i-- {
			if flags&(1<<i) != 0 {
				block := c.bus.ReadHWord(src)
				src += 2
				disp := uint32(block>>8) | uint32(block&0xF)<<8
				n := int(block>>4&0xF) + 3

				for j := 0; j < n; j++ {
					emit(readBack(disp))
					if remaining == 0 {
						return
					}
				}
			} else {
				emit(c.bus.ReadByte(src))
				src++
				if remaining == 0 {
					return
				}
			}
		}
	}
}

func (c *CPU) swiRLE(vram bool) {
	header := c.bus.ReadWord(memory.Pointer(c.Reg(0)))
	remaining := int(header >> 8)
	src := memory.Pointer(c.Reg(0)) + 4
	dst := memory.Pointer(c.Reg(1))
	sink := &vramSink{bus: c.bus, dst: dst}

	emit := func(b byte) {
		if vram {
			sink.write(b)
		} else {
			c.bus.WriteByte(dst, b)
		}
		dst++
		remaining--
	}

	for remaining > 0 {
		flag := c.bus.ReadByte(src)
		src++

		if flag&0x80 != 0 {
			n := int(flag&0x7F) + 3
			value := c.bus.ReadByte(src)
			src++
			for i := 0; i < n && remaining > 0; i++ {
				emit(value)
			}
		} else {
			n := int(flag&0x7F) + 1
			for i := 0; i < n && remaining > 0; i++ {
				emit(c.bus.ReadByte(src))
				src++
			}
		}
	}
}

func (c *CPU) swiHuffman() {
	base := memory.Pointer(c.Reg(0))
	header := c.bus.ReadWord(base)
	bitsPer := uint(header & 0xF)
	remaining := int(header >> 8)
	if bitsPer != 4 && bitsPer != 8 {
		log.Printf("HuffUnComp: unsupported symbol size %d", bitsPer)
		return
	}

	treeSize := memory.Pointer(c.bus.ReadByte(base + 4))
	root := base + 5
	stream := base + 4 + (treeSize+1)*2
	dst := memory.Pointer(c.Reg(1))

	node := root
	var outWord uint32
	var outShift uint

	for remaining > 0 {
		bitBlock := c.bus.ReadWord(stream)
		stream += 4

		for i := 31; i >= 0; i-- {
			bit := bitBlock >> uint(i) & 1
			flags := c.bus.ReadByte(node)
			next := (node &^ 1) + memory.Pointer(flags&0x3F)*2 + 2 + memory.Pointer(bit)

			leaf := (bit == 0 && flags&0x80 != 0) || (bit == 1 && flags&0x40 != 0)
			if !leaf {
				node = next
				continue
			}

			symbol := uint32(c.bus.ReadByte(next))
			outWord |= symbol << outShift
			outShift += bitsPer
			node = root

			if outShift == 32 {
				c.bus.WriteWord(dst, outWord)
				dst += 4
				remaining -= 4
				outWord = 0
				outShift = 0
				if remaining <= 0 {
					return
				}
			}
		}
	}
}
