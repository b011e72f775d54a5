// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ftdi drives the IEC bus over an FTDI FT232H/FT232R's ADBUS pins
// in asynchronous bit-bang mode, letting a PC stand in as the IEC
// peripheral without any GPIO header. It plays the role the teacher's
// cgo d2xx driver plays for SPI/I2C (dev.go/driver.go's open/reset
// lifecycle, gpio.go's per-pin bit plumbing), retargeted from "talk
// SPI/I2C to a chip" to "bit-bang four open-collector lines over USB",
// and goes through gousb/libusb instead of the proprietary D2XX library
// so the dependency is a real, fetchable Go module.
package ftdi

import (
	"errors"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/gocbm/iecdevice/iec"
)

// FTDI vendor requests, from the FT232R/FT232H bit-bang application note.
const (
	reqSetBitMode    = 0x0B
	modeAsyncBitbang = 0x01

	ctrlOutVendorDevice = 0x40 // host-to-device, vendor type, device recipient
)

// ADBUS bit assignments. ATN and RESET are always inputs: the PC never
// drives them, it only samples them between polls.
const (
	bitATN = 1 << iota
	bitCLK
	bitDATA
	bitRESET
)

var errNoDevice = errors.New("ftdi: no matching FTDI device found")

// Dev drives an iec.Pins contract over an FT232H/FT232R's GPIO pins.
type Dev struct {
	mu sync.Mutex

	ctx    *gousb.Context
	usbDev *gousb.Device
	cfg    *gousb.Config
	iface  *gousb.Interface
	out    *gousb.OutEndpoint
	in     *gousb.InEndpoint

	dir   byte // 1 = output (we drive it), 0 = input (released, read-only)
	value byte // output levels for bits set in dir
}

// Open finds the first device matching vid/pid and configures its ADBUS
// pins for asynchronous bit-bang mode, CLK/DATA released and ATN/RESET
// permanently as inputs.
func Open(vid, pid gousb.ID) (*Dev, error) {
	ctx := gousb.NewContext()
	usbDev, err := ctx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	if usbDev == nil {
		ctx.Close()
		return nil, errNoDevice
	}

	cfg, err := usbDev.Config(1)
	if err != nil {
		usbDev.Close()
		ctx.Close()
		return nil, err
	}
	iface, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		usbDev.Close()
		ctx.Close()
		return nil, err
	}
	out, err := iface.OutEndpoint(1)
	if err != nil {
		iface.Close()
		cfg.Close()
		usbDev.Close()
		ctx.Close()
		return nil, err
	}
	in, err := iface.InEndpoint(2)
	if err != nil {
		iface.Close()
		cfg.Close()
		usbDev.Close()
		ctx.Close()
		return nil, err
	}

	d := &Dev{ctx: ctx, usbDev: usbDev, cfg: cfg, iface: iface, out: out, in: in}
	if err := d.setBitModeLocked(0); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the USB interface and closes the underlying context.
func (d *Dev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.iface != nil {
		d.iface.Close()
	}
	var err error
	if d.cfg != nil {
		err = d.cfg.Close()
	}
	if d.usbDev != nil {
		if cerr := d.usbDev.Close(); err == nil {
			err = cerr
		}
	}
	if d.ctx != nil {
		d.ctx.Close()
	}
	return err
}

func (d *Dev) setBitModeLocked(dir byte) error {
	d.dir = dir
	val := uint16(dir) | uint16(modeAsyncBitbang)<<8
	_, err := d.usbDev.Control(ctrlOutVendorDevice, reqSetBitMode, val, 0, nil)
	return err
}

func (d *Dev) sampleLocked() byte {
	var buf [1]byte
	if _, err := d.in.Read(buf[:]); err != nil {
		return 0xFF // assume released on a read error; fail safe for an open-collector bus
	}
	return buf[0]
}

func (d *Dev) read(bit byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleLocked()&bit != 0
}

// drive asserts (drives low, an output) or releases (input, pulled high
// externally) the ADBUS bit for line, matching the open-collector
// semantics iec.Pins expects.
func (d *Dev) drive(line byte, assert bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dir := d.dir
	if assert {
		dir |= line
		d.value &^= line
	} else {
		dir &^= line
	}
	if dir != d.dir {
		d.setBitModeLocked(dir)
	}
	d.out.Write([]byte{d.value})
}

func (d *Dev) ReadATN() bool   { return d.read(bitATN) }
func (d *Dev) ReadCLK() bool   { return d.read(bitCLK) }
func (d *Dev) ReadDATA() bool  { return d.read(bitDATA) }
func (d *Dev) ReadReset() bool { return d.read(bitRESET) }

func (d *Dev) DriveCLK(assert bool)  { d.drive(bitCLK, assert) }
func (d *Dev) DriveDATA(assert bool) { d.drive(bitDATA, assert) }

// DriveCTRL is a no-op: the FT232H has no hardware ATN-to-DATA assist line.
func (d *Dev) DriveCTRL(bool) {}

func (d *Dev) Now() time.Time { return time.Now() }

var _ iec.Pins = (*Dev)(nil)
