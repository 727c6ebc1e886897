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

package cartridge

import (
	"bytes"
	"io"
	"io/ioutil"
	"log"

	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/processor"
)

type SaveType int

const (
	SaveNone SaveType = iota
	SaveEEPROM
	SaveSRAM
	SaveFlash64
	SaveFlash128
)

func (t SaveType) String() string {
	switch t {
	case SaveEEPROM:
		return "EEPROM"
	case SaveSRAM:
		return "SRAM"
	case SaveFlash64:
		return "FLASH64"
	case SaveFlash128:
		return "FLASH128"
	}
	return "NONE"
}

// SaveFile is the persistence handle for the backup memory.
type SaveFile interface {
	io.ReaderAt
	io.WriterAt
}

type backupDevice interface {
	memory.Memory
	data() []byte
	dirty() bool
	clearDirty()
}

// Device loads the ROM, detects the backup type from the ASCII
// signatures in the image and wires both onto the bus.
type Device struct {
	RomName string
	Reader  io.Reader
	Save    SaveFile

	rom      []byte
	saveType SaveType
	backup   backupDevice
}

func (m *Device) Install(p processor.Processor) error {
	var err error
	if m.rom, err = ioutil.ReadAll(m.Reader); err != nil {
		return err
	}
	if m.RomName == "" {
		m.RomName = "Cartridge"
	}

	m.saveType = DetectSaveType(m.rom)
	switch m.saveType {
	case SaveFlash64:
		m.backup = newFlash(false)
	case SaveFlash128:
		m.backup = newFlash(true)
	case SaveEEPROM:
		log.Print("EEPROM save type is not supported, using a SRAM stub")
		m.backup = newSRAM()
	default:
		m.backup = newSRAM()
	}
	log.Print("Save type: ", m.saveType)

	if m.Save != nil {
		if _, err := m.Save.ReadAt(m.backup.data(), 0); err != nil && err != io.EOF {
			log.Print("Could not read save file: ", err)
		}
	}

	bus := p.Bus()
	if err := bus.AttachROM(m.rom); err != nil {
		return err
	}
	bus.AttachBackup(m.backup)
	return nil
}

func (m *Device) Name() string {
	return m.RomName
}

func (m *Device) Reset() {
}

func (m *Device) Close() error {
	return m.FlushSave()
}

func (m *Device) SaveType() SaveType {
	return m.saveType
}

// FlushSave writes the backup memory through to the save file when it
// has been modified since the last flush.
func (m *Device) FlushSave() error {
	if m.backup == nil || m.Save == nil || !m.backup.dirty() {
		return nil
	}
	if _, err := m.Save.WriteAt(m.backup.data(), 0); err != nil {
		return err
	}
	m.backup.clearDirty()
	return nil
}

// DetectSaveType scans the image for the backup library signatures the
// build tools place at 4-byte alignment.
func DetectSaveType(rom []byte) SaveType {
	for i := 0; i+10 <= len(rom); i += 4 {
		switch {
		case bytes.HasPrefix(rom[i:], []byte("EEPROM_V")):
			return SaveEEPROM
		case bytes.HasPrefix(rom[i:], []byte("SRAM_V")):
			return SaveSRAM
		case bytes.HasPrefix(rom[i:], []byte("FLASH1M_V")):
			return SaveFlash128
		case bytes.HasPrefix(rom[i:], []byte("FLASH_V")), bytes.HasPrefix(rom[i:], []byte("FLASH512_V")):
			return SaveFlash64
		}
	}
	return SaveSRAM
}
