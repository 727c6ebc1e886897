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
	"testing"

	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral/irq"
	"github.com/andreas-jonsson/virtualgba/emulator/processor"
)

func newTestCPU(t *testing.T, program []uint32, peripherals ...peripheral.Peripheral) *CPU {
	t.Helper()

	rom := make([]byte, len(program)*4)
	for i, op := range program {
		rom[i*4] = byte(op)
		rom[i*4+1] = byte(op >> 8)
		rom[i*4+2] = byte(op >> 16)
		rom[i*4+3] = byte(op >> 24)
	}

	bus := memory.NewBus()
	if err := bus.AttachROM(rom); err != nil {
		t.Fatal(err)
	}

	c := NewCPU(bus, peripherals)
	c.Reset()
	return c
}

// step executes n instructions, accounting for the two prefetch steps
// that prime the pipeline.
func step(c *CPU, n int) int {
	cycles := 0
	executed := 0
	for executed < n {
		before := c.pipe.status
		cycles += c.Run()
		if before >= 2 {
			executed++
		}
	}
	return cycles
}

func TestBootState(t *testing.T) {
	c := newTestCPU(t, []uint32{0xE1A00000})

	if pc := c.PC(); pc != 0x08000000 {
		t.Errorf("PC = 0x%X, want 0x08000000", pc)
	}
	if sp := c.Reg(13); sp != 0x03007F00 {
		t.Errorf("SP = 0x%X, want 0x03007F00", sp)
	}
	if sp := c.BankedReg(processor.ModeSupervisor, 13); sp != 0x03007FE0 {
		t.Errorf("SVC SP = 0x%X, want 0x03007FE0", sp)
	}
	if sp := c.BankedReg(processor.ModeIRQ, 13); sp != 0x03007FA0 {
		t.Errorf("IRQ SP = 0x%X, want 0x03007FA0", sp)
	}
	if mode := c.Mode(); mode != processor.ModeUser {
		t.Errorf("mode = 0x%X, want USR", mode)
	}
}

func TestPipelineReadsPCPlus8(t *testing.T) {
	// mov r0, pc
	c := newTestCPU(t, []uint32{0xE1A0000F})

	step(c, 1)
	if r0 := c.Reg(0); r0 != 0x08000008 {
		t.Errorf("R0 = 0x%X, want 0x08000008", r0)
	}
}

func TestBranchFlushesPipeline(t *testing.T) {
	// b +8 ; mov r0, #1 ; mov r0, #2
	c := newTestCPU(t, []uint32{0xEA000000, 0xE3A00001, 0xE3A00002})

	step(c, 2)
	if r0 := c.Reg(0); r0 != 2 {
		t.Errorf("R0 = %d, want 2 (branch must skip the delay slot)", r0)
	}
}

func TestBranchWithLink(t *testing.T) {
	// bl +4
	c := newTestCPU(t, []uint32{0xEB000000, 0xE1A00000, 0xE1A00000})

	step(c, 1)
	if lr := c.Reg(14); lr != 0x08000004 {
		t.Errorf("LR = 0x%X, want 0x08000004", lr)
	}
	if pc := c.PC(); pc != 0x08000008 {
		t.Errorf("PC = 0x%X, want 0x08000008", pc)
	}
}

func TestConditionCodesSkipExecution(t *testing.T) {
	// movs r0, #0 ; moveq r1, #1 ; movne r2, #2
	c := newTestCPU(t, []uint32{0xE3B00000, 0x03A01001, 0x13A02002})

	step(c, 3)
	if r1 := c.Reg(1); r1 != 1 {
		t.Errorf("R1 = %d, want 1 (EQ taken)", r1)
	}
	if r2 := c.Reg(2); r2 != 0 {
		t.Errorf("R2 = %d, want 0 (NE skipped)", r2)
	}
}

func TestIRQEntry(t *testing.T) {
	pic := &irq.Device{}
	c := newTestCPU(t, []uint32{0xE1A00000, 0xE1A00000, 0xE1A00000}, pic)

	step(c, 1)

	// Enable and raise a timer interrupt.
	c.Bus().WriteHWord(0x04000200, uint16(processor.IRQTimer0))
	c.Bus().WriteHWord(0x04000208, 1)
	pic.Request(processor.IRQTimer0)

	pcBefore := c.PC()
	oldCPSR := c.CPSR()

	if !pic.Fire() {
		t.Fatal("interrupt should fire")
	}
	c.SignalIrq()

	if mode := c.Mode(); mode != processor.ModeIRQ {
		t.Errorf("mode = 0x%X, want IRQ", mode)
	}
	if pc := c.PC(); pc != VectorIRQ {
		t.Errorf("PC = 0x%X, want 0x18", pc)
	}
	if c.CPSR()&processor.FlagI == 0 {
		t.Error("IRQs should be masked after entry")
	}
	if spsr := c.SPSR(); spsr != oldCPSR {
		t.Errorf("SPSR = 0x%X, want 0x%X", spsr, oldCPSR)
	}
	if lr := c.Reg(14); lr != pcBefore-8+4 {
		t.Errorf("LR = 0x%X, want 0x%X", lr, pcBefore-8+4)
	}
}

func TestIRQMasked(t *testing.T) {
	c := newTestCPU(t, []uint32{0xE1A00000})
	step(c, 1)

	c.SetCPSR(c.CPSR() | processor.FlagI)
	pc := c.PC()
	c.SignalIrq()

	if c.PC() != pc {
		t.Error("masked interrupt must not enter the exception")
	}
}

func TestUndefinedInstructionException(t *testing.T) {
	// The canonical undefined pattern.
	c := newTestCPU(t, []uint32{0xE7F000F0})

	step(c, 1)
	if mode := c.Mode(); mode != processor.ModeUndefined {
		t.Errorf("mode = 0x%X, want UND", mode)
	}
	if pc := c.PC(); pc != VectorUndefined {
		t.Errorf("PC = 0x%X, want 0x04", pc)
	}
}

func TestModeWindowConsistency(t *testing.T) {
	c := newTestCPU(t, []uint32{0xE1A00000})

	c.SetReg(13, 0x1111)
	c.SwitchMode(processor.ModeSupervisor)
	c.SetReg(13, 0x2222)

	if sp := c.Reg(13); sp != 0x2222 {
		t.Errorf("SVC SP = 0x%X, want 0x2222", sp)
	}
	c.SwitchMode(processor.ModeUser)
	if sp := c.Reg(13); sp != 0x1111 {
		t.Errorf("USR SP = 0x%X, want 0x1111", sp)
	}
}

func TestCycleAccounting(t *testing.T) {
	// ldr r0, [pc] consumes the fetch plus a non-sequential data access
	// plus one internal cycle.
	c := newTestCPU(t, []uint32{0xE59F0000, 0xE1A00000, 0xDEADBEEF})

	bus := c.Bus()
	fetch := bus.Cycles32(memory.Sequential, 0x08000000)
	fetchN := bus.Cycles32(memory.NonSequential, 0x08000000)
	data := bus.Cycles32(memory.NonSequential, 0x08000008)

	got := step(c, 1)
	want := fetchN + fetch + fetch + data + 1
	if got != want {
		t.Errorf("cycles = %d, want %d", got, want)
	}
	if r0 := c.Reg(0); r0 != 0xDEADBEEF {
		t.Errorf("R0 = 0x%X, want 0xDEADBEEF", r0)
	}
}

func TestHaltWakeOnInterrupt(t *testing.T) {
	pic := &irq.Device{}
	c := newTestCPU(t, []uint32{0xE1A00000, 0xE1A00000, 0xE1A00000, 0xE1A00000}, pic)

	pic.SetHalt(processor.Halted)
	c.RunFor(64)
	if pc := c.PC(); pc != 0x08000000 {
		t.Errorf("halted CPU must not fetch, PC = 0x%X", pc)
	}

	c.Bus().WriteHWord(0x04000200, uint16(processor.IRQVBlank))
	pic.Request(processor.IRQVBlank)
	c.RunFor(64)

	if pic.Halt() != processor.Running {
		t.Error("pending interrupt should leave halt")
	}
	if pc := c.PC(); pc == 0x08000000 {
		t.Error("CPU should have resumed")
	}
}
