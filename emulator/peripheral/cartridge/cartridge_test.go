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
	"testing"

	"github.com/andreas-jonsson/virtualgba/emulator/memory"
	"github.com/andreas-jonsson/virtualgba/emulator/peripheral"
	"github.com/andreas-jonsson/virtualgba/emulator/processor/cpu"
)

func romWithSignature(sig string) []byte {
	rom := make([]byte, 64)
	copy(rom[16:], sig)
	return rom
}

func TestDetectSaveType(t *testing.T) {
	cases := []struct {
		sig  string
		want SaveType
	}{
		{"SRAM_V110", SaveSRAM},
		{"FLASH_V120", SaveFlash64},
		{"FLASH512_V130", SaveFlash64},
		{"FLASH1M_V102", SaveFlash128},
		{"EEPROM_V111", SaveEEPROM},
		{"", SaveSRAM}, // default
	}

	for _, tc := range cases {
		if got := DetectSaveType(romWithSignature(tc.sig)); got != tc.want {
			t.Errorf("signature %q detected as %v, want %v", tc.sig, got, tc.want)
		}
	}
}

func TestSignatureAlignment(t *testing.T) {
	rom := make([]byte, 64)
	copy(rom[17:], "FLASH1M_V") // unaligned must be ignored
	if got := DetectSaveType(rom); got != SaveSRAM {
		t.Errorf("unaligned signature detected as %v", got)
	}
}

type memSaveFile struct {
	data []byte
}

func (m *memSaveFile) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.data[off:])
	return n, nil
}

func (m *memSaveFile) WriteAt(p []byte, off int64) (int, error) {
	need := int(off) + len(p)
	if need > len(m.data) {
		grown := make([]byte, need)
		copy(grown, m.data)
		m.data = grown
	}
	return copy(m.data[off:], p), nil
}

func TestInstallAndPersistence(t *testing.T) {
	save := &memSaveFile{data: make([]byte, sramSize)}
	save.data[5] = 0x77

	dev := &Device{
		RomName: "test",
		Reader:  bytes.NewReader(romWithSignature("SRAM_V110")),
		Save:    save,
	}

	bus := memory.NewBus()
	c := cpu.NewCPU(bus, []peripheral.Peripheral{dev})
	c.Reset()

	if dev.SaveType() != SaveSRAM {
		t.Fatalf("save type = %v, want SRAM", dev.SaveType())
	}

	// The save file content is visible on the cartridge bus.
	if v := bus.ReadByte(0x0E000005); v != 0x77 {
		t.Errorf("backup byte = 0x%X, want 0x77", v)
	}

	// Writes flow back to the file on flush.
	bus.WriteByte(0x0E000010, 0x42)
	if err := dev.FlushSave(); err != nil {
		t.Fatal(err)
	}
	if save.data[0x10] != 0x42 {
		t.Errorf("save file byte = 0x%X, want 0x42", save.data[0x10])
	}

	// No write, no flush needed.
	if err := dev.FlushSave(); err != nil {
		t.Fatal(err)
	}
}

func TestROMOnBus(t *testing.T) {
	rom := romWithSignature("SRAM_V110")
	rom[0] = 0xEA

	dev := &Device{RomName: "test", Reader: bytes.NewReader(rom)}
	bus := memory.NewBus()
	c := cpu.NewCPU(bus, []peripheral.Peripheral{dev})
	c.Reset()

	if v := bus.ReadByte(0x08000000); v != 0xEA {
		t.Errorf("ROM byte = 0x%X, want 0xEA", v)
	}
}

func TestFlashCommands(t *testing.T) {
	f := newFlash(false)

	command := func(c byte) {
		f.WriteByte(0x0E005555, 0xAA)
		f.WriteByte(0x0E002AAA, 0x55)
		f.WriteByte(0x0E005555, c)
	}

	// Chip identification.
	command(flashCmdEnterID)
	if mfr, id := f.ReadByte(0x0E000000), f.ReadByte(0x0E000001); mfr != 0xC2 || id != 0x1C {
		t.Errorf("flash ID = %X,%X, want C2,1C", mfr, id)
	}
	command(flashCmdExitID)

	// Byte write.
	command(flashCmdWriteByte)
	f.WriteByte(0x0E000123, 0x5A)
	if v := f.ReadByte(0x0E000123); v != 0x5A {
		t.Errorf("flash byte = 0x%X, want 0x5A", v)
	}

	// Sector erase restores 0xFF.
	command(flashCmdEraseMode)
	f.WriteByte(0x0E005555, 0xAA)
	f.WriteByte(0x0E002AAA, 0x55)
	f.WriteByte(0x0E000000, flashCmdEraseSect)
	if v := f.ReadByte(0x0E000123); v != 0xFF {
		t.Errorf("erased byte = 0x%X, want 0xFF", v)
	}
}

func TestFlashEraseAll(t *testing.T) {
	f := newFlash(false)

	command := func(c byte) {
		f.WriteByte(0x0E005555, 0xAA)
		f.WriteByte(0x0E002AAA, 0x55)
		f.WriteByte(0x0E005555, c)
	}

	command(flashCmdWriteByte)
	f.WriteByte(0x0E000000, 0x11)

	command(flashCmdEraseMode)
	command(flashCmdEraseAll)
	if v := f.ReadByte(0x0E000000); v != 0xFF {
		t.Errorf("byte after erase all = 0x%X, want 0xFF", v)
	}
}

func TestFlashBankSwitch(t *testing.T) {
	f := newFlash(true)

	command := func(c byte) {
		f.WriteByte(0x0E005555, 0xAA)
		f.WriteByte(0x0E002AAA, 0x55)
		f.WriteByte(0x0E005555, c)
	}

	command(flashCmdWriteByte)
	f.WriteByte(0x0E000000, 0x11)

	command(flashCmdSelectBank)
	f.WriteByte(0x0E000000, 1)

	command(flashCmdWriteByte)
	f.WriteByte(0x0E000000, 0x22)

	if v := f.ReadByte(0x0E000000); v != 0x22 {
		t.Errorf("bank 1 byte = 0x%X, want 0x22", v)
	}

	command(flashCmdSelectBank)
	f.WriteByte(0x0E000000, 0)
	if v := f.ReadByte(0x0E000000); v != 0x11 {
		t.Errorf("bank 0 byte = 0x%X, want 0x11", v)
	}
}
