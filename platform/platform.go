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
	"io"
	"os"
)

// Output frame dimensions of the console.
const (
	FrameWidth  = 240
	FrameHeight = 160
)

type internalPlatform interface{}

type Config func(internalPlatform) error

type AudioSpec struct {
	Freq,
	Channels,
	Samples int
}

type File interface {
	io.ReadWriteSeeker
	io.ReaderAt
	io.WriterAt
	io.Closer
}

type FileSystem interface {
	Create(name string) (File, error)
	Open(name string) (File, error)
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
}

type Platform interface {
	FileSystem

	HasAudio() bool
	RenderFrame(pixels []uint32)
	SetTitle(title string)
	QueueAudio(soundBuffer []byte)
	AudioSpec() AudioSpec
	EnableAudio(b bool)
	SetInputHandler(h func(Button, bool))
}

var Instance Platform

var audioRequested bool

func ConfigWithAudio(internalPlatform) error {
	audioRequested = true
	return nil
}

// Button is a console key, one bit of the keypad bitmap.
type Button uint16

const (
	ButtonA Button = 1 << iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonRight
	ButtonLeft
	ButtonUp
	ButtonDown
	ButtonR
	ButtonL
)
