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
	"github.com/andreas-jonsson/virtualgba/emulator/processor"
)

func newTestThumbCPU(t *testing.T, program []uint16) *CPU {
	t.Helper()

	rom := make([]byte, len(program)*2)
	for i, op := range program {
		rom[i*2] = byte(op)
		rom[i*2+1] = byte(op >> 8)
	}

	bus := memory.NewBus()
	if err := bus.AttachROM(rom); err != nil {
		t.Fatal(err)
	}

	c := NewCPU(bus, nil)
	c.Reset()
	c.SetCPSR(c.CPSR() | processor.FlagT)
	return c
}

func TestThumbPCReadsPlus4(t *testing.T) {
	// mov r0, pc (high register op: add r0, pc, #0 via 0x4678)
	c := newTestThumbCPU(t, []uint16{0x4678})

	step(c, 1)
	if r0 := c.Reg(0); r0 != 0x08000004 {
		t.Errorf("R0 = 0x%X, want 0x08000004", r0)
	}
}

func TestThumbImmediateOps(t *testing.T) {
	// mov r0, #200 ; add r0, #55 ; sub r0, #255
	c := newTestThumbCPU(t, []uint16{0x20C8, 0x3037, 0x38FF})

	step(c, 3)
	if r0 := c.Reg(0); r0 != 0 {
		t.Errorf("R0 = %d, want 0", r0)
	}
	if c.CPSR()&processor.FlagZ == 0 {
		t.Error("Z should be set")
	}
}

func TestThumbAddSubRegister(t *testing.T) {
	// mov r0, #5 ; mov r1, #3 ; add r2, r0, r1 ; sub r3, r0, r1
	c := newTestThumbCPU(t, []uint16{0x2005, 0x2103, 0x1842, 0x1A43})

	step(c, 4)
	if r2 := c.Reg(2); r2 != 8 {
		t.Errorf("R2 = %d, want 8", r2)
	}
	if r3 := c.Reg(3); r3 != 2 {
		t.Errorf("R3 = %d, want 2", r3)
	}
}

func TestThumbShifts(t *testing.T) {
	// mov r0, #1 ; lsl r1, r0, #4
	c := newTestThumbCPU(t, []uint16{0x2001, 0x0101})

	step(c, 2)
	if r1 := c.Reg(1); r1 != 16 {
		t.Errorf("R1 = %d, want 16", r1)
	}
}

func TestThumbConditionalBranch(t *testing.T) {
	// mov r0, #0 ; cmp r0, #0 ; beq +2 ; mov r1, #1 ; mov r2, #2
	c := newTestThumbCPU(t, []uint16{0x2000, 0x2800, 0xD000, 0x2101, 0x2202})

	step(c, 4)
	if r1 := c.Reg(1); r1 != 0 {
		t.Errorf("R1 = %d, want 0 (skipped by branch)", r1)
	}
	if r2 := c.Reg(2); r2 != 2 {
		t.Errorf("R2 = %d, want 2", r2)
	}
}

func TestThumbLongBranchWithLink(t *testing.T) {
	// bl +4: 0xF000, 0xF802 ; nop ; nop ; mov r0, #7
	c := newTestThumbCPU(t, []uint16{0xF000, 0xF802, 0x46C0, 0x46C0, 0x2007})

	step(c, 3)
	if r0 := c.Reg(0); r0 != 7 {
		t.Errorf("R0 = %d, want 7", r0)
	}
	if lr := c.Reg(14); lr != 0x08000004|1 {
		t.Errorf("LR = 0x%X, want 0x08000005", lr)
	}
}

func TestThumbPushPop(t *testing.T) {
	// mov r0, #1 ; mov r1, #2 ; push {r0, r1} ; mov r0, #0 ; mov r1, #0 ; pop {r0, r1}
	c := newTestThumbCPU(t, []uint16{0x2001, 0x2102, 0xB403, 0x2000, 0x2100, 0xBC03})

	sp := c.Reg(13)
	step(c, 6)

	if r0, r1 := c.Reg(0), c.Reg(1); r0 != 1 || r1 != 2 {
		t.Errorf("R0,R1 = %d,%d, want 1,2", r0, r1)
	}
	if got := c.Reg(13); got != sp {
		t.Errorf("SP = 0x%X, want 0x%X", got, sp)
	}
}

func TestThumbLoadStore(t *testing.T) {
	// ldr r0, =0x02000000 via mov+shifts: mov r0, #2 ; lsl r0, r0, #24 ;
	// mov r1, #0x5A ; strb r1, [r0] ; ldrb r2, [r0]
	c := newTestThumbCPU(t, []uint16{0x2002, 0x0600, 0x215A, 0x7001, 0x7802})

	step(c, 5)
	if r2 := c.Reg(2); r2 != 0x5A {
		t.Errorf("R2 = 0x%X, want 0x5A", r2)
	}
	if v := c.Bus().ReadByte(0x02000000); v != 0x5A {
		t.Errorf("memory = 0x%X, want 0x5A", v)
	}
}

func TestThumbPCRelativeLoad(t *testing.T) {
	// ldr r0, [pc, #0] ; nop ; .word 0xCAFEBABE
	c := newTestThumbCPU(t, []uint16{0x4800, 0x46C0, 0xBABE, 0xCAFE})

	step(c, 1)
	if r0 := c.Reg(0); r0 != 0xCAFEBABE {
		t.Errorf("R0 = 0x%X, want 0xCAFEBABE", r0)
	}
}

func TestThumbMultipleLoadStore(t *testing.T) {
	// mov r0, #2 ; lsl r0, r0, #24 ; mov r1, #0x11 ; mov r2, #0x22 ;
	// stmia r0!, {r1, r2}
	c := newTestThumbCPU(t, []uint16{0x2002, 0x0600, 0x2111, 0x2222, 0xC006})

	step(c, 5)
	if r0 := c.Reg(0); r0 != 0x02000008 {
		t.Errorf("R0 = 0x%X, want 0x02000008", r0)
	}
	if v := c.Bus().ReadWord(0x02000000); v != 0x11 {
		t.Errorf("word 0 = 0x%X, want 0x11", v)
	}
	if v := c.Bus().ReadWord(0x02000004); v != 0x22 {
		t.Errorf("word 1 = 0x%X, want 0x22", v)
	}
}

func TestThumbALURegister(t *testing.T) {
	// mov r0, #0xF0 ; mov r1, #0x0F ; orr r0, r1 ; mvn r2, r0
	c := newTestThumbCPU(t, []uint16{0x20F0, 0x210F, 0x4308, 0x43C2})

	step(c, 4)
	if r0 := c.Reg(0); r0 != 0xFF {
		t.Errorf("R0 = 0x%X, want 0xFF", r0)
	}
	if r2 := c.Reg(2); r2 != 0xFFFFFF00 {
		t.Errorf("R2 = 0x%X, want 0xFFFFFF00", r2)
	}
}
