// +build sdl

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
	"flag"
	"os"
	"time"

	"github.com/andreas-jonsson/virtualgba/platform/dialog"
	"github.com/veandco/go-sdl2/sdl"
)

type sdlPlatform struct {
	aferoFileSystem

	quitChan     chan struct{}
	inputHandler func(Button, bool)

	pixelBuffer [FrameWidth * FrameHeight * 4]byte

	audioSpec     *sdl.AudioSpec
	audioDeviceID sdl.AudioDeviceID

	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
}

var sdlPlatformInstance sdlPlatform

func Start(mainLoop func(Platform), configs ...Config) {
	if f := flag.Lookup("text"); f != nil && f.Value.(flag.Getter).Get().(bool) {
		tcellStart(mainLoop, configs...)
		return
	}

	errHandle := func(err error) {
		dialog.ShowErrorMessage(err.Error())
		os.Exit(-1)
	}

	p := &sdlPlatformInstance
	p.fs = NewFileSystem().(*aferoFileSystem).fs

	sdl.Main(func() {
		for _, cfg := range configs {
			if err := cfg(p); err != nil {
				errHandle(err)
			}
		}

		if err := sdl.Init(0); err != nil {
			errHandle(err)
		}
		defer sdl.Quit()

		if audioRequested {
			if err := p.initializeAudio(); err != nil {
				dialog.ShowErrorMessage(err.Error())
			}
		}
		defer p.shutdownAudio()

		Instance = p

		if err := p.initializeVideo(); err != nil {
			errHandle(err)
		}
		defer p.shutdownVideo()

		if err := p.initializeEvents(); err != nil {
			errHandle(err)
		}
		defer p.shutdownEvents()

		mainLoop(p)
	})
	os.Exit(0) // Calling Exit is required!
}

func (p *sdlPlatform) initializeVideo() error {
	var err error
	sdl.Do(func() {
		if err = sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
			return
		}

		sdl.SetHint(sdl.HINT_RENDER_SCALE_QUALITY, "0")
		if p.window, p.renderer, err = sdl.CreateWindowAndRenderer(FrameWidth*3, FrameHeight*3, sdl.WINDOW_RESIZABLE); err != nil {
			return
		}
		p.window.SetTitle("VirtualGBA")
		if p.texture, err = p.renderer.CreateTexture(sdl.PIXELFORMAT_ARGB8888, sdl.TEXTUREACCESS_STREAMING, FrameWidth, FrameHeight); err != nil {
			return
		}
		err = p.renderer.SetLogicalSize(FrameWidth, FrameHeight)
	})
	return err
}

func (p *sdlPlatform) shutdownVideo() {
	sdl.Do(func() {
		if p.texture != nil {
			p.texture.Destroy()
		}
		if p.renderer != nil {
			p.renderer.Destroy()
		}
		if p.window != nil {
			p.window.Destroy()
		}
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
	})
}

func (p *sdlPlatform) initializeAudio() error {
	var err error
	sdl.Do(func() {
		if err = sdl.InitSubSystem(sdl.INIT_AUDIO); err != nil {
			return
		}

		// The FIFO sample clock runs at 32768 Hz.
		p.audioSpec = &sdl.AudioSpec{
			Freq:     32768,
			Format:   sdl.AUDIO_U8,
			Channels: 1,
			Samples:  1024,
		}

		var have sdl.AudioSpec
		if p.audioDeviceID, err = sdl.OpenAudioDevice("", false, p.audioSpec, &have, 0); err == nil {
			p.audioSpec = &have
			sdl.PauseAudioDevice(p.audioDeviceID, false)
		} else {
			p.audioSpec = nil
		}
	})
	return err
}

func (p *sdlPlatform) shutdownAudio() {
	if !p.HasAudio() {
		return
	}
	sdl.Do(func() {
		sdl.CloseAudioDevice(p.audioDeviceID)
		sdl.QuitSubSystem(sdl.INIT_AUDIO)
	})
}

var sdlKeymap = map[sdl.Keycode]Button{
	sdl.K_UP:        ButtonUp,
	sdl.K_DOWN:      ButtonDown,
	sdl.K_LEFT:      ButtonLeft,
	sdl.K_RIGHT:     ButtonRight,
	sdl.K_z:         ButtonA,
	sdl.K_x:         ButtonB,
	sdl.K_RETURN:    ButtonStart,
	sdl.K_BACKSPACE: ButtonSelect,
	sdl.K_a:         ButtonL,
	sdl.K_s:         ButtonR,
}

func (p *sdlPlatform) initializeEvents() error {
	var err error
	sdl.Do(func() {
		err = sdl.InitSubSystem(sdl.INIT_EVENTS)
	})
	if err != nil {
		return err
	}

	p.quitChan = make(chan struct{})

	go func() {
		ticker := time.NewTicker(time.Second / 120)
		defer ticker.Stop()

		for {
			select {
			case <-p.quitChan:
				close(p.quitChan)
				return
			case <-ticker.C:
				sdl.Do(func() {
					for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
						switch ev := event.(type) {
						case *sdl.QuitEvent:
							dialog.Quit()
						case *sdl.KeyboardEvent:
							p.processKey(ev)
						}
					}
				})
			}
		}
	}()
	return nil
}

func (p *sdlPlatform) shutdownEvents() {
	p.quitChan <- struct{}{}
	<-p.quitChan
	sdl.Do(func() {
		sdl.QuitSubSystem(sdl.INIT_EVENTS)
	})
}

func (p *sdlPlatform) processKey(ev *sdl.KeyboardEvent) {
	if ev.Repeat != 0 {
		return
	}
	if ev.Keysym.Sym == sdl.K_ESCAPE {
		dialog.Quit()
		return
	}

	if button, ok := sdlKeymap[ev.Keysym.Sym]; ok {
		if h := p.inputHandler; h != nil {
			h(button, ev.Type == sdl.KEYDOWN)
		}
	}
}

func (p *sdlPlatform) HasAudio() bool {
	return p.audioSpec != nil
}

func (p *sdlPlatform) RenderFrame(pixels []uint32) {
	for i, c := range pixels {
		p.pixelBuffer[i*4] = byte(c)
		p.pixelBuffer[i*4+1] = byte(c >> 8)
		p.pixelBuffer[i*4+2] = byte(c >> 16)
		p.pixelBuffer[i*4+3] = byte(c >> 24)
	}

	sdl.Do(func() {
		p.renderer.Clear()
		p.texture.Update(nil, p.pixelBuffer[:], FrameWidth*4)
		p.renderer.Copy(p.texture, nil, nil)
		p.renderer.Present()
	})
}

func (p *sdlPlatform) SetTitle(title string) {
	sdl.Do(func() {
		p.window.SetTitle(title)
	})
}

func (p *sdlPlatform) QueueAudio(soundBuffer []byte) {
	if p.HasAudio() {
		sdl.Do(func() {
			sdl.QueueAudio(p.audioDeviceID, soundBuffer)
		})
	}
}

func (p *sdlPlatform) AudioSpec() AudioSpec {
	if !p.HasAudio() {
		return AudioSpec{}
	}
	return AudioSpec{
		Freq:     int(p.audioSpec.Freq),
		Channels: int(p.audioSpec.Channels),
		Samples:  int(p.audioSpec.Samples),
	}
}

func (p *sdlPlatform) EnableAudio(b bool) {
	if p.HasAudio() {
		sdl.Do(func() {
			sdl.ClearQueuedAudio(p.audioDeviceID)
			sdl.PauseAudioDevice(p.audioDeviceID, !b)
		})
	}
}

func (p *sdlPlatform) SetInputHandler(h func(Button, bool)) {
	p.inputHandler = h
}
