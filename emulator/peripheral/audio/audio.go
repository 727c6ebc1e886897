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
	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/processor"
)

const (
	regSoundBase = 0x60
	regSOUNDCNTH = 0x82
	regFIFOA     = 0xA0
	regFIFOB     = 0xA4
	regSoundEnd  = 0xA7

	// Full bus addresses of the FIFO ports, the DMA destinations.
	FIFOAAddr = 0x040000A0
	FIFOBAddr = 0x040000A4
)

// One output sample every 512 cycles: 32768 Hz.
const cyclesPerSample = 512

// chunkSamples is the number of samples queued to the host at once.
const chunkSamples = 1024

type fifo struct {
	data [32]int8
	head int
	size int
}

func (f *fifo) push(b int8) {
	if f.size == len(f.data) {
		return
	}
	f.data[(f.head+f.size)%len(f.data)] = b
	f.size++
}

func (f *fifo) pop() int8 {
	if f.size == 0 {
		return 0
	}
	v := f.data[f.head]
	f.head = (f.head + 1) % len(f.data)
	f.size--
	return v
}

// Device holds the two DMA sound FIFOs. Timer 0/1 overflows clock
// samples out, the DMA engine refills a FIFO when it runs low, and an
// event tick resamples the output levels into a PCM stream for the
// host.
type Device struct {
	// Queue receives mixed unsigned 8-bit PCM chunks at 32768 Hz.
	Queue func([]byte)

	dma processor.DMAController

	regs [regSoundEnd - regSoundBase + 1]byte

	fifoA, fifoB   fifo
	levelA, levelB int8

	wait int
	buf  []byte
}

func (m *Device) Install(p processor.Processor) error {
	m.dma = p.GetDMAController()
	p.RegisterEvent(m)
	return p.InstallIODevice(m, regSoundBase, regSoundEnd)
}

func (m *Device) Name() string {
	return "Sound FIFOs"
}

func (m *Device) Reset() {
	*m = Device{Queue: m.Queue, dma: m.dma, wait: cyclesPerSample}
}

func (m *Device) cntH() uint16 {
	return uint16(m.regs[regSOUNDCNTH-regSoundBase]) | uint16(m.regs[regSOUNDCNTH-regSoundBase+1])<<8
}

// OnTimerOverflow advances the FIFO directions clocked by the given
// timer and requests a refill when one drops to half.
func (m *Device) OnTimerOverflow(id int) {
	cnt := m.cntH()

	if int(cnt>>10&1) == id {
		m.levelA = m.fifoA.pop()
		if m.fifoA.size <= 16 && m.dma != nil {
			m.dma.NotifyFIFO(FIFOAAddr)
		}
	}
	if int(cnt>>14&1) == id {
		m.levelB = m.fifoB.pop()
		if m.fifoB.size <= 16 && m.dma != nil {
			m.dma.NotifyFIFO(FIFOBAddr)
		}
	}
}

// EventDevice interface: resample the current output levels.

func (m *Device) WaitCycles() int {
	return m.wait
}

func (m *Device) Elapse(cycles int) {
	m.wait -= cycles
}

func (m *Device) Tick() {
	m.wait += cyclesPerSample

	cnt := m.cntH()
	var sample int
	if cnt&0x0300 != 0 { // direct sound A enabled on either side
		sample += int(m.levelA)
	}
	if cnt&0x3000 != 0 {
		sample += int(m.levelB)
	}

	sample = sample/2 + 128
	if sample < 0 {
		sample = 0
	} else if sample > 255 {
		sample = 255
	}
	m.buf = append(m.buf, byte(sample))

	if len(m.buf) >= chunkSamples {
		if m.Queue != nil {
			m.Queue(m.buf)
		}
		m.buf = m.buf[:0]
	}
}

func (m *Device) In(reg memory.Pointer) byte {
	return m.regs[reg-regSoundBase]
}

func (m *Device) Out(reg memory.Pointer, data byte) {
	m.regs[reg-regSoundBase] = data

	switch {
	case reg >= regFIFOA && reg < regFIFOA+4:
		m.fifoA.push(int8(data))
	case reg >= regFIFOB && reg < regFIFOB+4:
		m.fifoB.push(int8(data))
	case reg == regSOUNDCNTH+1:
		if data&(1<<3) != 0 { // FIFO A reset
			m.fifoA = fifo{}
		}
		if data&(1<<7) != 0 { // FIFO B reset
			m.fifoB = fifo{}
		}
	}
}
