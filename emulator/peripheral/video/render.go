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

const objTileBase = 0x10000

// decodeRGB5 converts a GBA color to ARGB8888.
func decodeRGB5(color uint16) uint32 {
	return 0xFF000000 |
		uint32(color&0x1F)*8<<16 |
		uint32(color>>5&0x1F)*8<<8 |
		uint32(color>>10&0x1F)*8
}

func (m *Device) paletteColor(base uint32, index int) uint32 {
	c := uint16(m.pal[base+uint32(index)*2]) | uint16(m.pal[base+uint32(index)*2+1])<<8
	return decodeRGB5(c)
}

// decodeTileLine4 expands one 4-bit tile line into ARGB pixels. Palette
// index zero decodes with alpha cleared, marking it transparent.
func (m *Device) decodeTileLine4(out *[8]uint32, blockBase, paletteBase uint32, number, line int) {
	offset := blockBase + uint32(number)*32 + uint32(line)*4

	for i := 0; i < 4; i++ {
		value := m.vram[offset+uint32(i)]
		left := int(value & 0xF)
		right := int(value >> 4)

		leftColor := m.paletteColor(paletteBase, left)
		rightColor := m.paletteColor(paletteBase, right)

		if left == 0 {
			leftColor &^= 0xFF000000
		}
		if right == 0 {
			rightColor &^= 0xFF000000
		}
		out[i*2] = leftColor
		out[i*2+1] = rightColor
	}
}

func (m *Device) decodeTileLine8(out *[8]uint32, blockBase uint32, number, line int, sprite bool) {
	offset := blockBase + uint32(number)*64 + uint32(line)*8
	var paletteBase uint32
	if sprite {
		paletteBase = 0x200
	}

	for i := 0; i < 8; i++ {
		value := int(m.vram[offset+uint32(i)])
		color := m.paletteColor(paletteBase, value)
		if value == 0 {
			color &^= 0xFF000000
		}
		out[i] = color
	}
}

func (m *Device) decodeTilePixel8(blockBase uint32, number, line, column int, sprite bool) uint32 {
	value := int(m.vram[blockBase+uint32(number)*64+uint32(line)*8+uint32(column)])
	var paletteBase uint32
	if sprite {
		paletteBase = 0x200
	}
	color := m.paletteColor(paletteBase, value)
	if value == 0 {
		color &^= 0xFF000000
	}
	return color
}

// renderTextBG draws one line of a text mode background into its line
// buffer, honoring scroll, flip and the screen block layout.
func (m *Device) renderTextBG(id int) {
	bg := &m.bg[id]

	width := (bg.size&1 + 1) * 256
	height := (bg.size>>1 + 1) * 256
	yScrolled := (m.vcount + int(bg.y)) % height
	row := yScrolled / 8
	rowRemainder := yScrolled % 8

	leftArea := 0
	rightArea := 1
	if row >= 32 {
		leftArea = bg.size&1 + 1
		rightArea = 3
		row -= 32
	}

	lineBuffer := make([]uint32, width)
	offset := bg.mapBase + uint32(leftArea)*0x800 + uint32(64*row)
	var tile [8]uint32

	for x := 0; x < width/8; x++ {
		entry := uint16(m.vram[offset]) | uint16(m.vram[offset+1])<<8
		number := int(entry & 0x3FF)
		hflip := entry&(1<<10) != 0
		vflip := entry&(1<<11) != 0

		line := rowRemainder
		if vflip {
			line = 7 - line
		}

		if bg.colors256 {
			m.decodeTileLine8(&tile, bg.tileBase, number, line, false)
		} else {
			palette := uint32(entry>>12) * 0x20
			m.decodeTileLine4(&tile, bg.tileBase, palette, number, line)
		}

		if hflip {
			for i := 0; i < 8; i++ {
				lineBuffer[x*8+i] = tile[7-i]
			}
		} else {
			for i := 0; i < 8; i++ {
				lineBuffer[x*8+i] = tile[i]
			}
		}

		if x == 31 {
			offset = bg.mapBase + uint32(rightArea)*0x800 + uint32(64*row)
		} else {
			offset += 2
		}
	}

	for i := 0; i < FrameWidth; i++ {
		m.bgBuf[id][i] = lineBuffer[(int(bg.x)+i)%width]
	}
}

// renderAffineBG draws one line of a rotate/scale background using the
// latched reference point and the 8.8 parameter matrix.
func (m *Device) renderAffineBG(id int) {
	bg := &m.bg[id]

	blocks := (bg.size + 1) << 4
	size := blocks * 8

	pa := DecodeFixed16(bg.pa)
	pb := DecodeFixed16(bg.pb)
	pc := DecodeFixed16(bg.pc)
	pd := DecodeFixed16(bg.pd)

	for i := 0; i < FrameWidth; i++ {
		x := int(bg.refXInt + pa*float64(i) + pb*float64(m.vcount))
		y := int(bg.refYInt + pc*float64(i) + pd*float64(m.vcount))

		if x >= size || y >= size || x < 0 || y < 0 {
			if !bg.wraparound {
				m.bgBuf[id][i] = 0
				continue
			}
			x = (x%size + size) % size
			y = (y%size + size) % size
		}

		number := int(m.vram[bg.mapBase+uint32(y/8*blocks+x/8)])
		m.bgBuf[id][i] = m.decodeTilePixel8(bg.tileBase, number, y%8, x%8, false)
	}
}

var spriteDims = [3][4][2]int{
	{{8, 8}, {16, 16}, {32, 32}, {64, 64}}, // square
	{{16, 8}, {32, 8}, {32, 16}, {64, 32}}, // horizontal
	{{8, 16}, {8, 32}, {16, 32}, {32, 64}}, // vertical
}

// renderSprites walks OAM from entry 127 down so that lower entries end
// up on top, drawing the parts of each sprite crossing the current line
// into the per-priority buffer.
func (m *Device) renderSprites(priority int) {
	offset := uint32(127 * 8)

	for i := 0; i < 128; i++ {
		attr0 := uint16(m.oam[offset]) | uint16(m.oam[offset+1])<<8
		attr1 := uint16(m.oam[offset+2]) | uint16(m.oam[offset+3])<<8
		attr2 := uint16(m.oam[offset+4]) | uint16(m.oam[offset+5])<<8
		offset -= 8

		if int(attr2>>10&3) != priority {
			continue
		}

		shape := int(attr0 >> 14)
		if shape == 3 {
			continue
		}
		size := int(attr1 >> 14)
		width := spriteDims[shape][size][0]
		height := spriteDims[shape][size][1]

		x := int(attr1 & 0x1FF)
		y := int(attr0 & 0xFF)
		if m.vcount < y || m.vcount > y+height-1 {
			continue
		}

		line := m.vcount - y
		tilesPerRow := width / 8
		number := int(attr2 & 0x3FF)
		paletteNumber := uint32(attr2 >> 12)
		rotateScale := attr0&(1<<8) != 0
		hflip := !rotateScale && attr1&(1<<12) != 0
		vflip := !rotateScale && attr1&(1<<13) != 0
		colors256 := attr0&(1<<13) != 0
		windowMode := attr0>>10&3 == 2

		// In 256 color mode the tile index counts 64-byte tiles.
		if colors256 {
			number /= 2
		}

		if vflip {
			line = height - line
		}
		displacement := line % 8
		row := (line - displacement) / 8
		if vflip {
			displacement = 7 - displacement
			row = height/8 - row
		}

		var tile [8]uint32
		for j := 0; j < tilesPerRow; j++ {
			var current int
			if m.obj.mapping1D {
				current = number + row*tilesPerRow + j
			} else {
				current = number + row*32 + j
			}

			if colors256 {
				m.decodeTileLine8(&tile, objTileBase, current, displacement, true)
			} else {
				m.decodeTileLine4(&tile, objTileBase, 0x200+paletteNumber*0x20, current, displacement)
			}

			for k := 0; k < 8; k++ {
				var dst int
				if hflip {
					dst = x + (tilesPerRow-j-1)*8 + (7 - k)
				} else {
					dst = x + j*8 + k
				}
				color := tile[k]
				if color>>24 == 0 || dst < 0 || dst >= FrameWidth {
					continue
				}
				if windowMode {
					// Window mode sprites shape the OBJ window and are
					// never displayed themselves.
					m.objWinMask[dst] = true
				} else {
					m.objBuf[priority][dst] = color
				}
			}
		}
	}
}

// overlayLine copies the opaque pixels of src over dst.
func overlayLine(dst, src *[FrameWidth]uint32) {
	for i := 0; i < FrameWidth; i++ {
		if color := src[i]; color>>24 != 0 {
			dst[i] = color | 0xFF000000
		}
	}
}

// overlayLineMasked is overlayLine restricted to the masked pixels.
func overlayLineMasked(dst, src *[FrameWidth]uint32, mask *[FrameWidth]bool) {
	for i := 0; i < FrameWidth; i++ {
		if !mask[i] {
			continue
		}
		if color := src[i]; color>>24 != 0 {
			dst[i] = color | 0xFF000000
		}
	}
}

// drawLine writes a line buffer into the framebuffer row. The first
// drawn background also paints its transparent pixels, providing the
// backdrop.
func (m *Device) drawLine(line *[FrameWidth]uint32, backdrop bool) {
	row := m.vcount * FrameWidth
	for i := 0; i < FrameWidth; i++ {
		if backdrop || line[i]>>24 != 0 {
			m.buffer[row+i] = line[i] | 0xFF000000
		}
	}
}

func (m *Device) renderScanline() {
	for i := range m.objBuf {
		for j := range m.objBuf[i] {
			m.objBuf[i][j] = 0
		}
	}
	for i := range m.objWinMask {
		m.objWinMask[i] = false
	}

	if m.forcedBlank {
		row := m.vcount * FrameWidth
		for i := 0; i < FrameWidth; i++ {
			m.buffer[row+i] = 0xFFF8F8F8
		}
		return
	}

	switch m.mode {
	case 0:
		for i := 0; i < 4; i++ {
			if m.bg[i].enable {
				m.renderTextBG(i)
			}
		}
	case 1:
		if m.bg[0].enable {
			m.renderTextBG(0)
		}
		if m.bg[1].enable {
			m.renderTextBG(1)
		}
		if m.bg[2].enable {
			m.renderAffineBG(2)
		}
	case 2:
		if m.bg[2].enable {
			m.renderAffineBG(2)
		}
		if m.bg[3].enable {
			m.renderAffineBG(3)
		}
	case 3:
		if m.bg[2].enable {
			offset := uint32(m.vcount) * FrameWidth * 2
			for x := 0; x < FrameWidth; x++ {
				m.bgBuf[2][x] = decodeRGB5(uint16(m.vram[offset]) | uint16(m.vram[offset+1])<<8)
				offset += 2
			}
		}
	case 4:
		if m.bg[2].enable {
			var page uint32
			if m.frameSelect {
				page = 0xA000
			}
			for x := 0; x < FrameWidth; x++ {
				index := int(m.vram[page+uint32(m.vcount*FrameWidth+x)])
				m.bgBuf[2][x] = m.paletteColor(0, index)
			}
		}
	case 5:
		if m.bg[2].enable {
			var page uint32
			if m.frameSelect {
				page = 0xA000
			}
			offset := page + uint32(m.vcount)*160*2
			for x := 0; x < FrameWidth; x++ {
				if x < 160 && m.vcount < 128 {
					m.bgBuf[2][x] = decodeRGB5(uint16(m.vram[offset]) | uint16(m.vram[offset+1])<<8)
					offset += 2
				} else {
					m.bgBuf[2][x] = m.paletteColor(0, 0)
				}
			}
		}
	}

	if m.obj.enable {
		for p := 0; p < 4; p++ {
			m.renderSprites(p)
		}
	}

	m.compose()
}

func (m *Device) compose() {
	firstBG := true
	winNone := !m.win[0].enable && !m.win[1].enable && !m.objWin.enable

	if winNone {
		for p := 3; p >= 0; p-- {
			for b := 3; b >= 0; b-- {
				if m.bg[b].enable && m.bg[b].priority == p {
					m.drawLine(&m.bgBuf[b], firstBG)
					firstBG = false
				}
			}
			if m.obj.enable {
				m.drawLine(&m.objBuf[p], false)
			}
		}
		return
	}

	// Outer window area first, then the OBJ window, then the inner
	// windows on top.
	for p := 3; p >= 0; p-- {
		for b := 3; b >= 0; b-- {
			if m.bg[b].enable && m.bg[b].priority == p && m.winOut.bg[b] {
				m.drawLine(&m.bgBuf[b], firstBG)
				firstBG = false
			}
		}
		if m.obj.enable && m.winOut.obj {
			m.drawLine(&m.objBuf[p], false)
		}
	}

	if m.objWin.enable {
		var winBuffer [FrameWidth]uint32
		for i := range winBuffer {
			if m.objWinMask[i] {
				winBuffer[i] = 0xFF000000
			}
		}

		for p := 3; p >= 0; p-- {
			for b := 3; b >= 0; b-- {
				if m.bg[b].enable && m.bg[b].priority == p && m.objWin.bgIn[b] {
					overlayLineMasked(&winBuffer, &m.bgBuf[b], &m.objWinMask)
				}
			}
			if m.obj.enable && m.objWin.objIn {
				overlayLineMasked(&winBuffer, &m.objBuf[p], &m.objWinMask)
			}
		}

		m.drawLine(&winBuffer, false)
	}

	for w := 1; w >= 0; w-- {
		win := &m.win[w]
		if !win.enable {
			continue
		}

		inside := (win.top <= win.bottom && m.vcount >= win.top && m.vcount <= win.bottom) ||
			(win.top > win.bottom && !(m.vcount <= win.top && m.vcount >= win.bottom))
		if !inside {
			continue
		}

		var winBuffer [FrameWidth]uint32
		for i := range winBuffer {
			winBuffer[i] = 0xFF000000
		}

		for p := 3; p >= 0; p-- {
			for b := 3; b >= 0; b-- {
				if m.bg[b].enable && m.bg[b].priority == p && win.bgIn[b] {
					overlayLine(&winBuffer, &m.bgBuf[b])
				}
			}
			if m.obj.enable && win.objIn {
				overlayLine(&winBuffer, &m.objBuf[p])
			}
		}

		// Pixels outside the horizontal extent stay transparent. The
		// wrapped form (right < left) masks the middle instead.
		if win.left <= win.right {
			for i := 0; i < win.left && i < FrameWidth; i++ {
				winBuffer[i] = 0
			}
			for i := win.right; i < FrameWidth; i++ {
				if i >= 0 {
					winBuffer[i] = 0
				}
			}
		} else {
			for i := win.right; i < win.left; i++ {
				if i >= 0 && i < FrameWidth {
					winBuffer[i] = 0
				}
			}
		}

		m.drawLine(&winBuffer, false)
	}
}
