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

package memory

import (
	"fmt"
	"log"
)

// Pointer is a 32-bit address on the GBA system bus.
type Pointer uint32

func (p Pointer) String() string {
	return fmt.Sprintf("0x%X", uint32(p))
}

// Page returns the memory region selector, bits 24-27 of the address.
func (p Pointer) Page() int {
	return int(p>>24) & 0xF
}

// Access is the bus access kind used for waitstate lookup.
type Access int

const (
	NonSequential Access = iota
	Sequential
)

// IO is a memory-mapped register handler. Registers are accessed at byte
// granularity; wider accesses are decomposed by the bus.
type IO interface {
	In(reg Pointer) byte
	Out(reg Pointer, data byte)
}

// Memory is an 8-bit device on the cartridge bus (SRAM or Flash backup).
type Memory interface {
	ReadByte(addr Pointer) byte
	WriteByte(addr Pointer, data byte)
}

type DummyIO struct{}

func (m *DummyIO) In(reg Pointer) byte {
	return 0
}

func (m *DummyIO) Out(reg Pointer, data byte) {
	log.Printf("writing unmapped IO register: 0x%X", uint32(reg))
}
