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

package emulator

import (
	"flag"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral/audio"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral/cartridge"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral/dma"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral/irq"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral/keypad"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral/timer"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral/video"
	"github.com/andreas-jonsson/virtualgba/emulator/processor/cpu"
	"github.com/andreas-jonsson/virtualgba/platform"
	"github.com/andreas-jonsson/virtualgba/platform/dialog"
)

// The system clock runs at 2^24 Hz. One frame is 228 lines of 1232
// cycles.
const (
	clockFrequency = 16777216
	cyclesPerFrame = 228 * 1232
)

var (
	biosImage string
	romImage  string
	saveFile  string
	turbo     bool
)

func init() {
	if p, ok := os.LookupEnv("VGBA_DEFAULT_BIOS_PATH"); ok {
		biosImage = p
	}

	flag.StringVar(&biosImage, "bios", biosImage, "Path to BIOS image (omit for high level emulation)")
	flag.StringVar(&romImage, "rom", "", "Path to game ROM")
	flag.StringVar(&saveFile, "save", "", "Path to save file (defaults to <rom>.sav)")
	flag.BoolVar(&turbo, "turbo", false, "Run as fast as possible")
}

// Start builds the machine and drives it at console speed until the
// host requests shutdown.
func Start(p platform.Platform) {
	if romImage == "" && flag.NArg() > 0 {
		romImage = flag.Arg(0)
	}
	if romImage == "" {
		dialog.ShowErrorMessage("No ROM image selected!")
		return
	}

	rom, err := p.Open(romImage)
	if err != nil {
		dialog.ShowErrorMessage(err.Error())
		return
	}
	defer rom.Close()

	bus := memory.NewBus()

	hle := true
	if biosImage != "" {
		data, err := ioutil.ReadAll(mustOpen(p, biosImage))
		if err != nil {
			dialog.ShowErrorMessage(err.Error())
			return
		}
		if len(data) != memory.BIOSSize {
			dialog.ShowErrorMessage("BIOS image must be exactly 16 KiB")
			return
		}
		if err := bus.LoadBIOS(data); err != nil {
			dialog.ShowErrorMessage(err.Error())
			return
		}
		hle = false
	}

	if saveFile == "" {
		saveFile = romImage + ".sav"
	}
	save, err := p.OpenFile(saveFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		dialog.ShowErrorMessage(err.Error())
		return
	}
	defer save.Close()

	snd := &audio.Device{Queue: p.QueueAudio}
	vid := &video.Device{Present: p.RenderFrame}
	keys := &keypad.Device{}
	cart := &cartridge.Device{
		RomName: filepath.Base(romImage),
		Reader:  rom,
		Save:    save,
	}

	peripherals := []peripheral.Peripheral{
		&irq.Device{},   // needs to go first so the others find the controller
		&dma.Engine{},   // likewise for the triggered devices
		cart,
		vid,
		&timer.Device{Sound: snd},
		snd,
		keys,
	}

	c := cpu.NewCPU(bus, peripherals)
	defer c.Close()

	c.SetHLE(hle)
	c.Reset()

	p.SetTitle("VirtualGBA - " + cart.Name())
	p.SetInputHandler(func(b platform.Button, down bool) {
		keys.SetButton(uint16(b), down)
	})
	p.EnableAudio(true)

	frameSeconds := float64(cyclesPerFrame) / clockFrequency
	frameTime := time.Duration(float64(time.Second) * frameSeconds)

	for !dialog.ShutdownRequested() {
		start := time.Now()

		if dialog.RestartRequested() {
			c.Reset()
		}

		c.RunFor(cyclesPerFrame)
		if err := cart.FlushSave(); err != nil {
			dialog.ShowErrorMessage(err.Error())
		}

		if turbo {
			runtime.Gosched()
			continue
		}
		if elapsed := time.Since(start); elapsed < frameTime {
			time.Sleep(frameTime - elapsed)
		}
	}
}

func mustOpen(p platform.Platform, name string) platform.File {
	fp, err := p.Open(name)
	if err != nil {
		dialog.ShowErrorMessage(err.Error())
		os.Exit(-1)
	}
	return fp
}
