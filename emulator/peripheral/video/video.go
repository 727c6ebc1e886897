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

package video

import (
	"math"

	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/processor"
)

const (
	FrameWidth  = 240
	FrameHeight = 160
)

// Phase durations in cycles. A full line is 1232 cycles.
const (
	scanlineCycles = 960
	hblankCycles   = 272
	lineCycles     = 1232
	lastLine       = 227
)

const (
	phaseScanline = iota
	phaseHBlank
	phaseVBlank
)

// Register offsets.
const (
	regDISPCNT  = 0x00
	regDISPSTAT = 0x04
	regVCOUNT   = 0x06
	regBG0CNT   = 0x08
	regBG0HOFS  = 0x10
	regBG0VOFS  = 0x12
	regBG2PA    = 0x20
	regBG2X     = 0x28
	regBG2Y     = 0x2C
	regBG3PA    = 0x30
	regBG3X     = 0x38
	regBG3Y     = 0x3C
	regWIN0H    = 0x40
	regWIN1H    = 0x42
	regWIN0V    = 0x44
	regWIN1V    = 0x46
	regWININ    = 0x48
	regWINOUT   = 0x4A
)

type background struct {
	enable     bool
	mosaic     bool
	colors256  bool
	wraparound bool
	priority   int
	size       int
	tileBase   uint32
	mapBase    uint32

	x, y uint32 // text mode scroll

	refX, refY       uint32 // raw 28.8 reference point registers
	refXInt, refYInt float64
	pa, pb, pc, pd   uint16
}

type window struct {
	enable bool
	bgIn   [4]bool
	objIn  bool
	sfxIn  bool

	left, right, top, bottom int
}

type windowOuter struct {
	bg  [4]bool
	obj bool
	sfx bool
}

// objectWindow carries the same inclusion bits as the inner windows.
// Its shape comes from the sprites rendered in window mode, not from a
// rectangle.
type objectWindow struct {
	enable bool
	bgIn   [4]bool
	objIn  bool
	sfxIn  bool
}

type objControl struct {
	enable       bool
	hblankAccess bool
	mapping1D    bool
}

// Device is the picture processing unit. It renders one scanline at each
// Scanline->HBlank boundary and walks VCOUNT through the blanking state
// machine.
type Device struct {
	// Present is called with the finished ARGB8888 frame at VBlank start.
	Present func([]uint32)

	pic processor.InterruptController
	dma processor.DMAController

	pal  *[memory.PaletteSize]byte
	vram *[memory.VRAMSize]byte
	oam  *[memory.OAMSize]byte

	bg     [4]background
	win    [2]window
	winOut windowOuter
	objWin objectWindow
	obj    objControl

	mode        int
	frameSelect bool
	forcedBlank bool

	vblankIRQ, hblankIRQ, vcountIRQ bool
	vcountSetting                   byte

	vcount int
	phase  int
	wait   int

	buffer     [FrameWidth * FrameHeight]uint32
	bgBuf      [4][FrameWidth]uint32
	objBuf     [4][FrameWidth]uint32
	objWinMask [FrameWidth]bool
}

func (m *Device) Install(p processor.Processor) error {
	m.pic = p.GetInterruptController()
	m.dma = p.GetDMAController()

	bus := p.Bus()
	m.pal = bus.Palette()
	m.vram = bus.VRAM()
	m.oam = bus.OAM()

	p.RegisterEvent(m)
	return p.InstallIODevice(m, regDISPCNT, 0x5F)
}

func (m *Device) Name() string {
	return "PPU"
}

func (m *Device) Reset() {
	*m = Device{Present: m.Present, pic: m.pic, dma: m.dma, pal: m.pal, vram: m.vram, oam: m.oam}
	m.wait = scanlineCycles
}

// Framebuffer exposes the output for the host and the tests.
func (m *Device) Framebuffer() []uint32 {
	return m.buffer[:]
}

func (m *Device) VCount() int {
	return m.vcount
}

// EventDevice interface.

func (m *Device) WaitCycles() int {
	return m.wait
}

func (m *Device) Elapse(cycles int) {
	m.wait -= cycles
}

func (m *Device) Tick() {
	switch m.phase {
	case phaseScanline:
		m.renderScanline()
		if m.dma != nil {
			m.dma.NotifyHBlank()
			// Video capture transfers once per scanline from line 2 on.
			if m.vcount >= 2 {
				m.dma.NotifyVideoCapture()
			}
		}
		if m.hblankIRQ && m.pic != nil {
			m.pic.Request(processor.IRQHBlank)
		}
		m.phase = phaseHBlank
		m.wait += hblankCycles

	case phaseHBlank:
		m.vcount++
		m.checkVCount()

		if m.vcount == FrameHeight {
			m.latchAffine()
			m.phase = phaseVBlank
			if m.dma != nil {
				m.dma.NotifyVBlank()
			}
			if m.vblankIRQ && m.pic != nil {
				m.pic.Request(processor.IRQVBlank)
			}
			if m.Present != nil {
				m.Present(m.buffer[:])
			}
			m.wait += lineCycles
		} else {
			m.phase = phaseScanline
			m.wait += scanlineCycles
		}

	case phaseVBlank:
		m.vcount++

		if m.vcount > lastLine {
			m.vcount = 0
			m.phase = phaseScanline
			m.wait += scanlineCycles
		} else {
			m.wait += lineCycles
		}
		m.checkVCount()
	}
}

func (m *Device) checkVCount() {
	if m.vcount == int(m.vcountSetting) && m.vcountIRQ && m.pic != nil {
		m.pic.Request(processor.IRQVCount)
	}
}

// latchAffine reloads the internal affine reference points. Called at
// VBlank start and whenever a reference register byte is written.
func (m *Device) latchAffine() {
	for i := 2; i <= 3; i++ {
		m.bg[i].refXInt = DecodeFixed32(m.bg[i].refX)
		m.bg[i].refYInt = DecodeFixed32(m.bg[i].refY)
	}
}

// DecodeFixed32 decodes the 28-bit signed 20.8 fixed point format of
// the affine reference registers.
func DecodeFixed32(v uint32) float64 {
	neg := v&(1<<27) != 0
	intPart := int32((v &^ 0xF0000000) >> 8)
	if neg {
		intPart = int32(uint32(intPart) | 0xFFF00000)
	}
	frac := float64(v&0xFF) / 256
	return float64(intPart) + frac
}

// DecodeFixed16 decodes the signed 8.8 fixed point affine parameters.
func DecodeFixed16(v uint16) float64 {
	neg := v&(1<<15) != 0
	intPart := int32(v >> 8)
	if neg {
		intPart = int32(uint32(intPart) | 0xFFFFFF00)
	}
	frac := float64(v&0xFF) / 256
	return float64(intPart) + frac
}

// EncodeFixed32 is the inverse of DecodeFixed32 for representable
// values.
func EncodeFixed32(f float64) uint32 {
	intPart := int32(math.Floor(f))
	frac := byte((f - float64(intPart)) * 256)
	return uint32(intPart)<<8 | uint32(frac)
}

func (m *Device) In(reg memory.Pointer) byte {
	switch reg {
	case regDISPCNT:
		v := byte(m.mode)
		if m.frameSelect {
			v |= 16
		}
		if m.obj.hblankAccess {
			v |= 32
		}
		if m.obj.mapping1D {
			v |= 64
		}
		if m.forcedBlank {
			v |= 128
		}
		return v
	case regDISPCNT + 1:
		var v byte
		for i := 0; i < 4; i++ {
			if m.bg[i].enable {
				v |= 1 << i
			}
		}
		if m.obj.enable {
			v |= 16
		}
		if m.win[0].enable {
			v |= 32
		}
		if m.win[1].enable {
			v |= 64
		}
		if m.objWin.enable {
			v |= 128
		}
		return v
	case regDISPSTAT:
		var v byte
		if m.phase == phaseVBlank {
			v |= 1
		}
		if m.phase == phaseHBlank {
			v |= 2
		}
		if m.vcount == int(m.vcountSetting) {
			v |= 4
		}
		if m.vblankIRQ {
			v |= 8
		}
		if m.hblankIRQ {
			v |= 16
		}
		if m.vcountIRQ {
			v |= 32
		}
		return v
	case regDISPSTAT + 1:
		return m.vcountSetting
	case regVCOUNT:
		return byte(m.vcount)
	case regVCOUNT + 1:
		return byte(m.vcount >> 8)
	case regBG0CNT, regBG0CNT + 2, regBG0CNT + 4, regBG0CNT + 6:
		n := int(reg-regBG0CNT) / 2
		v := byte(m.bg[n].priority) | byte(m.bg[n].tileBase/0x4000)<<2 | 3<<4
		if m.bg[n].mosaic {
			v |= 64
		}
		if m.bg[n].colors256 {
			v |= 128
		}
		return v
	case regBG0CNT + 1, regBG0CNT + 3, regBG0CNT + 5, regBG0CNT + 7:
		n := int(reg-regBG0CNT-1) / 2
		v := byte(m.bg[n].mapBase/0x800) | byte(m.bg[n].size)<<6
		if m.bg[n].wraparound {
			v |= 32
		}
		return v
	case regWININ:
		return windowBits(m.win[0].bgIn, m.win[0].objIn, m.win[0].sfxIn)
	case regWININ + 1:
		return windowBits(m.win[1].bgIn, m.win[1].objIn, m.win[1].sfxIn)
	case regWINOUT:
		return windowBits(m.winOut.bg, m.winOut.obj, m.winOut.sfx)
	case regWINOUT + 1:
		return windowBits(m.objWin.bgIn, m.objWin.objIn, m.objWin.sfxIn)
	}
	return 0
}

func windowBits(bg [4]bool, obj, sfx bool) byte {
	var v byte
	for i := 0; i < 4; i++ {
		if bg[i] {
			v |= 1 << i
		}
	}
	if obj {
		v |= 16
	}
	if sfx {
		v |= 32
	}
	return v
}

func (m *Device) Out(reg memory.Pointer, data byte) {
	switch {
	case reg == regDISPCNT:
		m.mode = int(data & 7)
		m.frameSelect = data&16 != 0
		m.obj.hblankAccess = data&32 != 0
		m.obj.mapping1D = data&64 != 0
		m.forcedBlank = data&128 != 0
	case reg == regDISPCNT+1:
		for i := 0; i < 4; i++ {
			m.bg[i].enable = data&(1<<i) != 0
		}
		m.obj.enable = data&16 != 0
		m.win[0].enable = data&32 != 0
		m.win[1].enable = data&64 != 0
		m.objWin.enable = data&128 != 0
	case reg == regDISPSTAT:
		// The blanking flags in the low bits are read-only.
		m.vblankIRQ = data&8 != 0
		m.hblankIRQ = data&16 != 0
		m.vcountIRQ = data&32 != 0
	case reg == regDISPSTAT+1:
		m.vcountSetting = data
	case reg >= regBG0CNT && reg < regBG0CNT+8:
		n := int(reg-regBG0CNT) / 2
		if (reg-regBG0CNT)&1 == 0 {
			m.bg[n].priority = int(data & 3)
			m.bg[n].tileBase = uint32(data>>2&3) * 0x4000
			m.bg[n].mosaic = data&64 != 0
			m.bg[n].colors256 = data&128 != 0
		} else {
			m.bg[n].mapBase = uint32(data&31) * 0x800
			if n >= 2 {
				m.bg[n].wraparound = data&32 != 0
			}
			m.bg[n].size = int(data >> 6)
		}
	case reg >= regBG0HOFS && reg < regBG0HOFS+16:
		n := int(reg-regBG0HOFS) / 4
		bg := &m.bg[n]
		switch (reg - regBG0HOFS) % 4 {
		case 0:
			bg.x = bg.x&0x100 | uint32(data)
		case 1:
			bg.x = bg.x&0xFF | uint32(data&1)<<8
		case 2:
			bg.y = bg.y&0x100 | uint32(data)
		case 3:
			bg.y = bg.y&0xFF | uint32(data&1)<<8
		}
	case reg >= regBG2PA && reg < regBG2X:
		m.writeAffineParam(2, int(reg-regBG2PA), data)
	case reg >= regBG2X && reg < regBG3PA:
		m.writeAffineRef(2, int(reg-regBG2X), data)
	case reg >= regBG3PA && reg < regBG3X:
		m.writeAffineParam(3, int(reg-regBG3PA), data)
	case reg >= regBG3X && reg < regWIN0H:
		m.writeAffineRef(3, int(reg-regBG3X), data)
	case reg == regWIN0H:
		m.win[0].right = int(data)
	case reg == regWIN0H+1:
		m.win[0].left = int(data)
	case reg == regWIN1H:
		m.win[1].right = int(data)
	case reg == regWIN1H+1:
		m.win[1].left = int(data)
	case reg == regWIN0V:
		m.win[0].bottom = int(data)
	case reg == regWIN0V+1:
		m.win[0].top = int(data)
	case reg == regWIN1V:
		m.win[1].bottom = int(data)
	case reg == regWIN1V+1:
		m.win[1].top = int(data)
	case reg == regWININ:
		setWindowBits(&m.win[0].bgIn, &m.win[0].objIn, &m.win[0].sfxIn, data)
	case reg == regWININ+1:
		setWindowBits(&m.win[1].bgIn, &m.win[1].objIn, &m.win[1].sfxIn, data)
	case reg == regWINOUT:
		setWindowBits(&m.winOut.bg, &m.winOut.obj, &m.winOut.sfx, data)
	case reg == regWINOUT+1:
		setWindowBits(&m.objWin.bgIn, &m.objWin.objIn, &m.objWin.sfxIn, data)
	}
}

func setWindowBits(bg *[4]bool, obj, sfx *bool, data byte) {
	for i := 0; i < 4; i++ {
		bg[i] = data&(1<<i) != 0
	}
	*obj = data&16 != 0
	*sfx = data&32 != 0
}

func (m *Device) writeAffineParam(n, off int, data byte) {
	bg := &m.bg[n]
	shift := uint(off&1) * 8
	set := func(p *uint16) {
		*p = *p&^(0xFF<<shift) | uint16(data)<<shift
	}
	switch off / 2 {
	case 0:
		set(&bg.pa)
	case 1:
		set(&bg.pb)
	case 2:
		set(&bg.pc)
	case 3:
		set(&bg.pd)
	}
}

func (m *Device) writeAffineRef(n, off int, data byte) {
	bg := &m.bg[n]
	shift := uint(off&3) * 8
	if off < 4 {
		bg.refX = bg.refX&^(0xFF<<shift) | uint32(data)<<shift
		bg.refXInt = DecodeFixed32(bg.refX)
	} else {
		bg.refY = bg.refY&^(0xFF<<shift) | uint32(data)<<shift
		bg.refYInt = DecodeFixed32(bg.refY)
	}
}
