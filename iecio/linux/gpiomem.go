// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

// Package linux drives the IEC bus directly off a Raspberry-Pi-class
// host's BCM283x GPIO registers, mmap'd through /dev/gpiomem. It plays the
// role the teacher's hostextra/d2xx/d2xx_posix.go plays with its cgo/ioctl
// path into the D2XX library: "go around the generic abstraction and poke
// the hardware register directly for speed", retargeted from a USB-serial
// ioctl to a BCM283x register mmap.
package linux

import (
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/gocbm/iecdevice/iec"
)

// asUint32Slice reinterprets the mmap'd byte slice as a slice of 32-bit
// registers, the width the BCM283x GPIO block is addressed in.
func asUint32Slice(b []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// Register offsets in 32-bit words, from the BCM283x peripheral datasheet.
const (
	regGPFSEL0 = 0x00 / 4
	regGPSET0  = 0x1C / 4
	regGPCLR0  = 0x28 / 4
	regGPLEV0  = 0x34 / 4

	mmapSize = 0xB4
)

// Pins names the four BCM GPIO numbers the bus lines are wired to.
type Pins struct {
	ATN, CLK, DATA, Reset int
}

// Dev drives an iec.Pins contract over a mmap'd GPIO register block.
type Dev struct {
	mu   sync.Mutex
	mem  []byte
	regs []uint32 // same backing memory as mem, viewed as uint32 words
	pins Pins
}

// Open mmaps /dev/gpiomem and configures atn/reset as permanent inputs;
// clk/data start released (also inputs, pulled up externally).
func Open(pins Pins) (*Dev, error) {
	f, err := os.OpenFile("/dev/gpiomem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mem, err := unix.Mmap(int(f.Fd()), 0, mmapSize, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, err
	}

	d := &Dev{mem: mem, regs: asUint32Slice(mem), pins: pins}
	d.setInputLocked(pins.ATN)
	d.setInputLocked(pins.Reset)
	d.setInputLocked(pins.CLK)
	d.setInputLocked(pins.DATA)
	return d, nil
}

// Close unmaps the register block.
func (d *Dev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mem == nil {
		return nil
	}
	err := unix.Munmap(d.mem)
	d.mem = nil
	d.regs = nil
	return err
}

func (d *Dev) fselWord(pin int) (word, shift int) {
	return pin / 10, (pin % 10) * 3
}

// setInputLocked configures pin as an input (FSEL=000), the released state
// for an open-collector line under this package's convention.
func (d *Dev) setInputLocked(pin int) {
	word, shift := d.fselWord(pin)
	reg := regGPFSEL0 + word
	d.regs[reg] &^= uint32(0x7) << uint(shift)
}

// setOutputLowLocked configures pin as an output and immediately clears it,
// i.e. asserts (drives low) the line.
func (d *Dev) setOutputLowLocked(pin int) {
	word, shift := d.fselWord(pin)
	reg := regGPFSEL0 + word
	d.regs[reg] = (d.regs[reg] &^ (uint32(0x7) << uint(shift))) | (uint32(0x1) << uint(shift))
	d.regs[regGPCLR0] = 1 << uint(pin)
}

func (d *Dev) level(pin int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[regGPLEV0]&(1<<uint(pin)) != 0
}

func (d *Dev) drive(pin int, assert bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if assert {
		d.setOutputLowLocked(pin)
	} else {
		d.setInputLocked(pin)
	}
}

func (d *Dev) ReadATN() bool   { return d.level(d.pins.ATN) }
func (d *Dev) ReadCLK() bool   { return d.level(d.pins.CLK) }
func (d *Dev) ReadDATA() bool  { return d.level(d.pins.DATA) }
func (d *Dev) ReadReset() bool { return d.level(d.pins.Reset) }

func (d *Dev) DriveCLK(assert bool)  { d.drive(d.pins.CLK, assert) }
func (d *Dev) DriveDATA(assert bool) { d.drive(d.pins.DATA, assert) }

// DriveCTRL is a no-op: this backend has no hardware ATN-to-DATA assist
// line wired.
func (d *Dev) DriveCTRL(bool) {}

func (d *Dev) Now() time.Time { return time.Now() }

var _ iec.Pins = (*Dev)(nil)
