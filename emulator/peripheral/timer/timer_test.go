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

package timer

import (
	"testing"

	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral/irq"
	"github.com/andreas-jonsson/virtualgba/emulator/processor"
	"github.com/andreas-jonsson/virtualgba/emulator/processor/cpu"
)

func newTestTimers(t *testing.T) (*Device, *irq.Device, *memory.Bus) {
	t.Helper()

	pic := &irq.Device{}
	dev := &Device{}
	bus := memory.NewBus()

	c := cpu.NewCPU(bus, []peripheral.Peripheral{pic, dev})
	c.Reset()
	return dev, pic, bus
}

func TestTimerOverflowRaisesInterrupt(t *testing.T) {
	dev, _, bus := newTestTimers(t)

	// Reload 0xFFFE, prescaler 1, enable with IRQ.
	bus.WriteHWord(0x04000100, 0xFFFE)
	bus.WriteByte(0x04000102, 0xC0|0x80)

	dev.Run(4)

	if v := bus.ReadHWord(0x04000202); v&uint16(processor.IRQTimer0) == 0 {
		t.Error("IF bit 3 should be set after overflow")
	}
	if count := bus.ReadHWord(0x04000100); count != 0xFFFE {
		t.Errorf("count = 0x%X, want 0xFFFE", count)
	}
}

func TestTimerMaxReloadOverflow(t *testing.T) {
	dev, _, bus := newTestTimers(t)

	bus.WriteHWord(0x04000100, 0xFFFF)
	bus.WriteByte(0x04000102, 0xC0|0x80)

	dev.Run(2)
	if v := bus.ReadHWord(0x04000202); v&uint16(processor.IRQTimer0) == 0 {
		t.Error("IF bit 3 should be set within two cycles")
	}
	if count := bus.ReadHWord(0x04000100); count != 0xFFFF {
		t.Errorf("count = 0x%X, want the reload value 0xFFFF", count)
	}
}

func TestTimerPrescaler(t *testing.T) {
	dev, _, bus := newTestTimers(t)

	// Prescaler 64.
	bus.WriteHWord(0x04000100, 0)
	bus.WriteByte(0x04000102, 0x81)

	dev.Run(63)
	if count := bus.ReadHWord(0x04000100); count != 0 {
		t.Errorf("count = %d, want 0 before the prescaler elapses", count)
	}
	dev.Run(1)
	if count := bus.ReadHWord(0x04000100); count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	// Accumulation carries across calls.
	dev.Run(128)
	if count := bus.ReadHWord(0x04000100); count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestTimerCascade(t *testing.T) {
	dev, _, bus := newTestTimers(t)

	// Timer 0 overflows every cycle, timer 1 counts overflows.
	bus.WriteHWord(0x04000100, 0xFFFF)
	bus.WriteByte(0x04000102, 0x80)
	bus.WriteHWord(0x04000104, 0)
	bus.WriteByte(0x04000106, 0x84) // count-up

	dev.Run(5)
	if count := bus.ReadHWord(0x04000104); count != 5 {
		t.Errorf("cascaded count = %d, want 5", count)
	}
}

func TestTimerDisabledDoesNotCount(t *testing.T) {
	dev, _, bus := newTestTimers(t)

	bus.WriteHWord(0x04000100, 0)
	dev.Run(1000)
	if count := bus.ReadHWord(0x04000100); count != 0 {
		t.Errorf("disabled timer counted to %d", count)
	}
}

func TestTimerEnableReloads(t *testing.T) {
	dev, _, bus := newTestTimers(t)

	bus.WriteHWord(0x04000100, 0x1234)
	bus.WriteByte(0x04000102, 0x80)
	if count := bus.ReadHWord(0x04000100); count != 0x1234 {
		t.Errorf("count = 0x%X, want the reload value 0x1234", count)
	}

	dev.Run(3)
	if count := bus.ReadHWord(0x04000100); count != 0x1237 {
		t.Errorf("count = 0x%X, want 0x1237", count)
	}
}

type fakeSound struct {
	overflows []int
}

func (m *fakeSound) OnTimerOverflow(id int) {
	m.overflows = append(m.overflows, id)
}

func TestTimerClocksSound(t *testing.T) {
	pic := &irq.Device{}
	snd := &fakeSound{}
	dev := &Device{Sound: snd}
	bus := memory.NewBus()

	c := cpu.NewCPU(bus, []peripheral.Peripheral{pic, dev})
	c.Reset()

	bus.WriteHWord(0x04000100, 0xFFFF)
	bus.WriteByte(0x04000102, 0x80)

	dev.Run(3)
	if len(snd.overflows) != 3 {
		t.Errorf("sound clocked %d times, want 3", len(snd.overflows))
	}
}
