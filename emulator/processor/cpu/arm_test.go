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

	"github.com/andreas-jonsson/virtualgba/emulator/processor"
)

func TestDataProcessingArithmeticFlags(t *testing.T) {
	// mov r0, #0x80000000 ; adds r1, r0, r0 (carry and overflow)
	c := newTestCPU(t, []uint32{
		0xE3A00102, // mov r0, #0x80000000
		0xE0901000, // adds r1, r0, r0
	})

	step(c, 2)
	if r1 := c.Reg(1); r1 != 0 {
		t.Errorf("R1 = 0x%X, want 0", r1)
	}
	cpsr := c.CPSR()
	if cpsr&processor.FlagZ == 0 {
		t.Error("Z should be set")
	}
	if cpsr&processor.FlagC == 0 {
		t.Error("C should be set")
	}
	if cpsr&processor.FlagV == 0 {
		t.Error("V should be set (0x80000000+0x80000000 overflows)")
	}
}

func TestSubtractCarrySemantics(t *testing.T) {
	// mov r0, #1 ; subs r1, r0, #2
	c := newTestCPU(t, []uint32{0xE3A00001, 0xE2501002})

	step(c, 2)
	if r1 := c.Reg(1); r1 != 0xFFFFFFFF {
		t.Errorf("R1 = 0x%X, want 0xFFFFFFFF", r1)
	}
	cpsr := c.CPSR()
	if cpsr&processor.FlagC != 0 {
		t.Error("C should be clear on borrow")
	}
	if cpsr&processor.FlagN == 0 {
		t.Error("N should be set")
	}
}

func TestBarrelShifterCarry(t *testing.T) {
	// mov r0, #3 ; movs r1, r0, lsr #1
	c := newTestCPU(t, []uint32{0xE3A00003, 0xE1B010A0})

	step(c, 2)
	if r1 := c.Reg(1); r1 != 1 {
		t.Errorf("R1 = %d, want 1", r1)
	}
	if c.CPSR()&processor.FlagC == 0 {
		t.Error("C should hold the shifted out bit")
	}
}

func TestMultiply(t *testing.T) {
	// mov r0, #7 ; mov r1, #6 ; mul r2, r0, r1
	c := newTestCPU(t, []uint32{0xE3A00007, 0xE3A01006, 0xE0020190})

	step(c, 3)
	if r2 := c.Reg(2); r2 != 42 {
		t.Errorf("R2 = %d, want 42", r2)
	}
}

func TestMultiplyLong(t *testing.T) {
	// mvn r0, #0 ; mov r1, #2 ; umull r2, r3, r0, r1
	c := newTestCPU(t, []uint32{0xE3E00000, 0xE3A01002, 0xE0832190})

	step(c, 3)
	if lo := c.Reg(2); lo != 0xFFFFFFFE {
		t.Errorf("RdLo = 0x%X, want 0xFFFFFFFE", lo)
	}
	if hi := c.Reg(3); hi != 1 {
		t.Errorf("RdHi = 0x%X, want 1", hi)
	}
}

func TestSingleDataTransfer(t *testing.T) {
	// mov r0, #0x02000000 ; mov r1, #0xAB ; strb r1, [r0] ; ldr r2, [r0]
	c := newTestCPU(t, []uint32{
		0xE3A00402, // mov r0, #0x02000000
		0xE3A010AB, // mov r1, #0xAB
		0xE5C01000, // strb r1, [r0]
		0xE5902000, // ldr r2, [r0]
	})

	step(c, 4)
	if r2 := c.Reg(2); r2 != 0xAB {
		t.Errorf("R2 = 0x%X, want 0xAB", r2)
	}
}

func TestUnalignedLoadRotates(t *testing.T) {
	// mov r0, #0x02000000 ; ldr r1, [r0, #1]
	c := newTestCPU(t, []uint32{0xE3A00402, 0xE5901001})

	bus := c.Bus()
	bus.WriteWord(0x02000000, 0x11223344)

	step(c, 2)
	if r1 := c.Reg(1); r1 != 0x44112233 {
		t.Errorf("R1 = 0x%X, want 0x44112233 (rotated)", r1)
	}
}

func TestBlockTransferRoundTrip(t *testing.T) {
	// mov r0, #0x02000000 ; mov r1, #1 ; mov r2, #2 ; stmia r0!, {r1, r2} ;
	// mov r1, #0 ; mov r2, #0 ; sub r0, r0, #8 ; ldmia r0, {r1, r2}
	c := newTestCPU(t, []uint32{
		0xE3A00402,
		0xE3A01001,
		0xE3A02002,
		0xE8A00006, // stmia r0!, {r1,r2}
		0xE3A01000,
		0xE3A02000,
		0xE2400008,
		0xE8900006, // ldmia r0, {r1,r2}
	})

	step(c, 8)
	if r0 := c.Reg(0); r0 != 0x02000000 {
		t.Errorf("R0 = 0x%X, want 0x02000000", r0)
	}
	if r1, r2 := c.Reg(1), c.Reg(2); r1 != 1 || r2 != 2 {
		t.Errorf("R1,R2 = %d,%d, want 1,2", r1, r2)
	}
}

func TestHalfwordSignedTransfer(t *testing.T) {
	// mov r0, #0x02000000 ; ldrsh r1, [r0]
	c := newTestCPU(t, []uint32{0xE3A00402, 0xE1D010F0})

	c.Bus().WriteHWord(0x02000000, 0x8001)

	step(c, 2)
	if r1 := c.Reg(1); r1 != 0xFFFF8001 {
		t.Errorf("R1 = 0x%X, want 0xFFFF8001 (sign extended)", r1)
	}
}

func TestSwap(t *testing.T) {
	// mov r0, #0x02000000 ; mov r1, #5 ; swp r2, r1, [r0]
	c := newTestCPU(t, []uint32{0xE3A00402, 0xE3A01005, 0xE1002091})

	c.Bus().WriteWord(0x02000000, 0x99)

	step(c, 3)
	if r2 := c.Reg(2); r2 != 0x99 {
		t.Errorf("R2 = 0x%X, want 0x99", r2)
	}
	if v := c.Bus().ReadWord(0x02000000); v != 5 {
		t.Errorf("memory = 0x%X, want 5", v)
	}
}

func TestMSRModeSwitchRebindsBank(t *testing.T) {
	// msr cpsr_c, #0xD3 (SVC, IRQ/FIQ masked) ; mov r13, #0x42
	c := newTestCPU(t, []uint32{
		0xE321F0D3, // msr cpsr_c, #0xD3
		0xE3A0D042, // mov r13, #0x42
	})

	usrSP := c.Reg(13)
	step(c, 2)

	if mode := c.Mode(); mode != processor.ModeSupervisor {
		t.Fatalf("mode = 0x%X, want SVC", mode)
	}
	if sp := c.Reg(13); sp != 0x42 {
		t.Errorf("SVC SP = 0x%X, want 0x42", sp)
	}
	if sp := c.BankedReg(processor.ModeUser, 13); sp != usrSP {
		t.Errorf("USR SP clobbered: 0x%X, want 0x%X", sp, usrSP)
	}
}

func TestMRSReadsCPSR(t *testing.T) {
	// mrs r0, cpsr
	c := newTestCPU(t, []uint32{0xE10F0000})

	step(c, 1)
	if r0 := c.Reg(0); r0 != c.CPSR() {
		t.Errorf("R0 = 0x%X, want CPSR 0x%X", r0, c.CPSR())
	}
}

func TestBXEntersThumb(t *testing.T) {
	// mov r0, #0x02000001 ; bx r0
	c := newTestCPU(t, []uint32{
		0xE3A00402, // mov r0, #0x02000000
		0xE2800001, // add r0, r0, #1
		0xE12FFF10, // bx r0
	})

	step(c, 3)
	if !c.Thumb() {
		t.Error("T bit should be set")
	}
	if pc := c.PC(); pc != 0x02000000 {
		t.Errorf("PC = 0x%X, want 0x02000000", pc)
	}
}
