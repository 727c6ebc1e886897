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

package audio

import (
	"testing"

	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral/dma"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral/irq"
	"github.com/andreas-jonsson/virtualgba/emulator/processor/cpu"
)

func newTestAudio(t *testing.T) (*Device, *dma.Engine, *memory.Bus) {
	t.Helper()

	pic := &irq.Device{}
	eng := &dma.Engine{}
	dev := &Device{}
	bus := memory.NewBus()

	c := cpu.NewCPU(bus, []peripheral.Peripheral{pic, eng, dev})
	c.Reset()
	return dev, eng, bus
}

func TestFIFOPlayback(t *testing.T) {
	dev, _, bus := newTestAudio(t)

	// Direct sound A on both sides, clocked by timer 0.
	bus.WriteHWord(0x04000082, 0x0300)

	bus.WriteWord(0x040000A0, 0x04030201)
	dev.OnTimerOverflow(0)
	if dev.levelA != 1 {
		t.Errorf("level = %d, want 1", dev.levelA)
	}
	dev.OnTimerOverflow(0)
	if dev.levelA != 2 {
		t.Errorf("level = %d, want 2", dev.levelA)
	}

	// Timer 1 is not selected for FIFO A.
	dev.OnTimerOverflow(1)
	if dev.levelA != 2 {
		t.Errorf("level = %d, timer 1 must not clock FIFO A", dev.levelA)
	}
}

func TestFIFORefillRequest(t *testing.T) {
	dev, eng, bus := newTestAudio(t)

	bus.WriteHWord(0x04000082, 0x0300)

	// DMA channel 1 serving FIFO A.
	bus.WriteWord(0x040000BC, 0x02000000)
	bus.WriteWord(0x040000C0, FIFOAAddr)
	bus.WriteHWord(0x040000C6, 0x8000|3<<12|1<<9|1<<10)

	// A drained FIFO requests a refill on the next sample.
	dev.OnTimerOverflow(0)
	if !eng.Running() {
		t.Error("low FIFO should arm the sound DMA channel")
	}
}

func TestFIFOReset(t *testing.T) {
	dev, _, bus := newTestAudio(t)

	bus.WriteWord(0x040000A0, 0x04030201)
	bus.WriteByte(0x04000083, 1<<3)

	if dev.fifoA.size != 0 {
		t.Errorf("FIFO size = %d after reset, want 0", dev.fifoA.size)
	}
}

func TestSampleMixing(t *testing.T) {
	dev, _, bus := newTestAudio(t)

	var queued []byte
	dev.Queue = func(b []byte) {
		queued = append(queued, b...)
	}

	bus.WriteHWord(0x04000082, 0x0300)
	bus.WriteWord(0x040000A0, 0x40404040)
	dev.OnTimerOverflow(0)

	for i := 0; i < chunkSamples; i++ {
		dev.Elapse(dev.WaitCycles())
		dev.Tick()
	}

	if len(queued) == 0 {
		t.Fatal("no samples queued")
	}
	// Level 0x40 mixed at half volume over the 128 bias.
	if queued[0] != 128+0x20 {
		t.Errorf("sample = %d, want %d", queued[0], 128+0x20)
	}
}

func TestSoundRegisterReadback(t *testing.T) {
	_, _, bus := newTestAudio(t)

	bus.WriteByte(0x04000080, 0x77)
	if v := bus.ReadByte(0x04000080); v != 0x77 {
		t.Errorf("SOUNDCNT_L = 0x%X, want 0x77", v)
	}
}
