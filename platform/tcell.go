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

package platform

import (
	"log"
	"sync"
	"time"

	"github.com/andreas-jonsson/virtualgba/platform/dialog"
	"github.com/gdamore/tcell"
)

// The terminal front-end draws two pixel rows per cell with the upper
// half block, giving 240x80 cells for the 240x160 frame.
type tcellPlatform struct {
	sync.Mutex
	aferoFileSystem

	screen tcell.Screen
	frame  [FrameWidth * FrameHeight]uint32

	inputHandler func(Button, bool)
	releaseTimer map[Button]*time.Timer
}

var tcellPlatformInstance tcellPlatform

func tcellStart(mainLoop func(Platform), configs ...Config) {
	p := &tcellPlatformInstance
	p.fs = NewFileSystem().(*aferoFileSystem).fs
	p.releaseTimer = make(map[Button]*time.Timer)

	for _, cfg := range configs {
		if err := cfg(p); err != nil {
			log.Fatal(err)
		}
	}

	tcell.SetEncodingFallback(tcell.EncodingFallbackASCII)

	var err error
	if p.screen, err = tcell.NewScreen(); err != nil {
		log.Fatal(err)
	}

	Instance = p
	s := p.screen

	if err = s.Init(); err != nil {
		log.Fatal(err)
	}
	defer s.Fini()

	s.HideCursor()
	s.DisableMouse()
	s.Clear()

	go mainLoop(p)

	for !dialog.ShutdownRequested() {
		switch ev := s.PollEvent().(type) {
		case *tcell.EventKey:
			p.processKey(ev)
		case *tcell.EventInterrupt:
			p.draw()
		case nil:
			return
		}
	}
}

var tcellKeymap = map[tcell.Key]Button{
	tcell.KeyUp:    ButtonUp,
	tcell.KeyDown:  ButtonDown,
	tcell.KeyLeft:  ButtonLeft,
	tcell.KeyRight: ButtonRight,
	tcell.KeyEnter: ButtonStart,
	tcell.KeyTab:   ButtonSelect,
}

var tcellRuneMap = map[rune]Button{
	'z': ButtonA,
	'x': ButtonB,
	'a': ButtonL,
	's': ButtonR,
}

func (p *tcellPlatform) processKey(ev *tcell.EventKey) {
	if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
		dialog.Quit()
		p.screen.PostEvent(tcell.NewEventInterrupt(nil))
		return
	}

	button, ok := tcellKeymap[ev.Key()]
	if !ok {
		if button, ok = tcellRuneMap[ev.Rune()]; !ok {
			return
		}
	}

	// Terminals report no key releases. Hold the button and release it
	// shortly after the last repeat.
	p.Lock()
	defer p.Unlock()

	if h := p.inputHandler; h != nil {
		h(button, true)
		if t, ok := p.releaseTimer[button]; ok {
			t.Stop()
		}
		p.releaseTimer[button] = time.AfterFunc(100*time.Millisecond, func() {
			p.Lock()
			defer p.Unlock()
			if h := p.inputHandler; h != nil {
				h(button, false)
			}
		})
	}
}

func (p *tcellPlatform) draw() {
	p.Lock()
	defer p.Unlock()

	for y := 0; y < FrameHeight/2; y++ {
		for x := 0; x < FrameWidth; x++ {
			top := p.frame[y*2*FrameWidth+x]
			bottom := p.frame[(y*2+1)*FrameWidth+x]

			style := tcell.StyleDefault.
				Foreground(tcell.NewRGBColor(int32(top>>16&0xFF), int32(top>>8&0xFF), int32(top&0xFF))).
				Background(tcell.NewRGBColor(int32(bottom>>16&0xFF), int32(bottom>>8&0xFF), int32(bottom&0xFF)))
			p.screen.SetContent(x, y, '▀', nil, style)
		}
	}
	p.screen.Show()
}

func (p *tcellPlatform) HasAudio() bool {
	return false
}

func (p *tcellPlatform) RenderFrame(pixels []uint32) {
	p.Lock()
	copy(p.frame[:], pixels)
	p.Unlock()
	p.screen.PostEvent(tcell.NewEventInterrupt(nil))
}

func (p *tcellPlatform) SetTitle(title string) {
}

func (p *tcellPlatform) QueueAudio(soundBuffer []byte) {
}

func (p *tcellPlatform) AudioSpec() AudioSpec {
	return AudioSpec{}
}

func (p *tcellPlatform) EnableAudio(b bool) {
}

func (p *tcellPlatform) SetInputHandler(h func(Button, bool)) {
	p.Lock()
	p.inputHandler = h
	p.Unlock()
}
