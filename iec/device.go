// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iec

import (
	"errors"
	"sort"
	"time"
)

// MaxDevices is the compile-time cap on how many device numbers a single
// Device (bus engine instance) may claim (§3).
const MaxDevices = 16

// Timing constants from §4.1/§4.2, taken from the original source
// (original_source/src/IECDevice.cpp) except where spec.md states an
// explicit value (the bit hold/valid windows), in which case spec.md
// wins — see DESIGN.md.
const (
	atnSettle        = 100 * time.Microsecond
	eoiDetectWindow  = 200 * time.Microsecond
	eoiAckPulse      = 80 * time.Microsecond
	talkerPreDelay   = 80 * time.Microsecond
	talkerReadyWait  = 100 * time.Microsecond
	bitHoldAsserted  = 80 * time.Microsecond
	bitHoldReleased  = 60 * time.Microsecond
	transmitAckWait  = 1 * time.Millisecond
	frameErrPulse    = 100 * time.Microsecond
	talkerRetryDelay = 200 * time.Microsecond
)

// role/flag bits, named after the P_* bitfield in the original source.
type flags uint8

const (
	flagATN flags = 1 << iota
	flagListening
	flagTalking
)

type state int

const (
	stIdle state = iota

	// receive side (listening or under ATN)
	stRecvPre     // waiting for canWrite and CLK release by talker
	stRecvReady   // DATA released, waiting CLK low or EOI timeout
	stRecvEOIAck  // holding DATA low to acknowledge EOI
	stRecvEOIWait // released DATA, waiting for CLK low
	stRecvBit     // waiting CLK high to sample a bit
	stRecvBitWait // waiting CLK low before next bit
	stRecvDone    // waiting for ATN to rise

	// talk side
	stTalkPre0     // waiting for listener CLK high (role reversal start)
	stTalkPre1     // 80us settle before canRead
	stTalkPre2     // undocumented case: listener DATA already high
	stTalkPre3     // waiting for listener DATA high (ready to receive)
	stTalkReady    // CLK released, waiting DATA high (ready-for-data)
	stTalkEOIAck   // waiting DATA low (receiver begins EOI ack)
	stTalkEOIWait  // waiting DATA high (receiver completes EOI ack)
	stTalkBit      // holding bit, waiting bitHoldAsserted
	stTalkBitWait  // CLK high (valid), waiting bitHoldReleased
	stTalkDone0    // waiting before pulling CLK low for ack phase
	stTalkDone1    // waiting for listener ack (DATA low) or timeout
	stTalkFrameErr0
	stTalkFrameErr1

	// JiffyDOS byte protocol (§4.2), entered instead of stRecvBit/stTalkBit
	// once jiffyDetected is set and we are outside ATN.
	stJiffyRecvWaitStart
	stJiffyRecvSample
	stJiffyTalkWaitReady
	stJiffyTalkSend

	// Epyx FastLoad data-transfer mode (§4.4), entered once the uploaded
	// loader signature has been recognized and a TALK follows.
	stEpyxTalkWaitReady
	stEpyxTalkSend
)

// Callbacks is the upward-facing API the bus engine calls into (§6). The
// file-device layer (package iecfile) implements this; a bare application
// could implement it directly for a channel-less device.
type Callbacks interface {
	// Listen/Talk/Untalk/Unlisten are invoked with the secondary byte (or 0
	// for Untalk/Unlisten) once ATN rises and our device number matched.
	Listen(devnr byte, secondary byte)
	Talk(devnr byte, secondary byte)
	Untalk(devnr byte)
	Unlisten(devnr byte)

	// CanWrite/CanRead are polled before Write/Read; see the return value
	// contract in spec.md §4.5 (<0 = not ready yet, 0 = error/EOF, >0 = n
	// bytes ready).
	CanWrite(devnr byte) int8
	CanRead(devnr byte) int8

	Write(devnr byte, data byte)
	Read(devnr byte) byte

	Reset(devnr byte)
}

// Device is one bus-engine instance: it owns a Pins implementation and
// reacts to ATN on behalf of up to MaxDevices claimed device numbers.
type Device struct {
	pins Pins
	cb   Callbacks

	numbers []byte // claimed device numbers, sorted

	flags     flags
	sflags    sflags
	state     state
	bitIndex  int
	data      byte
	primary   byte
	secondary byte

	deadline    time.Time
	hasDeadline bool

	numData int8 // cached CanRead/CanWrite result for the in-flight byte

	prevResetOK bool // tracks RESET line across calls (true == not in reset)

	atnPending atomicFlag // set by RegisterISR's interrupt source
	inTask     bool

	scratch []byte // caller-supplied buffer for fast-protocol block transfers

	dolphinPrevIn bool    // last-seen level of the DolphinDOS handshake-in line
	preBurst      [2]byte // first two bytes of the current SAVE/LOAD, kept until burst is armed or the channel closes
	preBurstLen   int

	epyx epyxState
}

// NewDevice creates a bus engine instance claiming the given device
// numbers (each in 4..30). len(numbers) must not exceed MaxDevices.
func NewDevice(pins Pins, cb Callbacks, numbers ...byte) (*Device, error) {
	if len(numbers) == 0 {
		return nil, errors.New("iec: at least one device number is required")
	}
	if len(numbers) > MaxDevices {
		return nil, errors.New("iec: too many device numbers claimed")
	}
	ns := append([]byte(nil), numbers...)
	for _, n := range ns {
		if n < 4 || n > 30 {
			return nil, errors.New("iec: device number out of range")
		}
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i] < ns[j] })
	d := &Device{pins: pins, cb: cb, numbers: ns, prevResetOK: true}
	return d, nil
}

func (d *Device) claims(n byte) bool {
	for _, c := range d.numbers {
		if c == n {
			return true
		}
	}
	return false
}

// Begin arms the device: releases CLK/DATA, enables the CTRL hardware
// assist and resets protocol-detection state. Call once before the first
// Task call.
func (d *Device) Begin() {
	d.flags = 0
	d.sflags = 0
	d.state = stIdle
	d.pins.DriveCLK(false)
	d.pins.DriveDATA(false)
	d.pins.DriveCTRL(false)
	d.prevResetOK = true
}

// RegisterISR marks that ATN fell, to be serviced on the next Task call.
// Call this from a GPIO falling-edge interrupt handler; it is the only
// safe thing to do from interrupt context (§5: "the ISR is the only
// writer of the 'set' transition; the main loop is the only clearer").
func (d *Device) RegisterISR() {
	if !d.inTask && !d.flags.has(flagATN) {
		d.atnPending.set()
	}
}

func (f flags) has(b flags) bool { return f&b != 0 }

// atnRequest handles a falling edge on ATN, whether observed by polling or
// signalled via RegisterISR (original: IECDevice::atnRequest).
func (d *Device) atnRequest() {
	d.state = stRecvPre
	d.flags |= flagATN
	d.primary = 0
	d.secondary = 0
	d.sflags.clearDetected()
	d.deadline = d.pins.Now().Add(atnSettle)
	d.hasDeadline = true

	d.pins.DriveCLK(false)
	d.pins.DriveDATA(true)
	d.pins.DriveCTRL(true)
}

// Task runs the bus state machine until it reaches a safe yield point: no
// transfer in progress, or blocked purely on Callbacks.CanRead/CanWrite
// (§5). It must be called at least once a millisecond unless ATN rides an
// interrupt source feeding RegisterISR.
func (d *Device) Task() {
	d.inTask = true
	for {
		d.microTask()
		if d.flags.has(flagATN|flagListening) && d.state != stRecvPre {
			continue
		}
		if d.flags&(flagATN|flagTalking) == flagTalking && d.state != stTalkPre1 {
			continue
		}
		break
	}
	d.inTask = false

	if d.atnPending.testAndClear() && !d.flags.has(flagATN) {
		d.atnRequest()
	}
}

func (d *Device) timedOut(now time.Time) bool {
	return d.hasDeadline && !now.Before(d.deadline)
}

func (d *Device) setDeadline(now time.Time, after time.Duration) {
	d.deadline = now.Add(after)
	d.hasDeadline = true
}

// microTask is a single non-blocking pass through the state machine
// (original: IECDevice::microTask). It never sleeps; every wait is
// expressed as "check Now() against a deadline, otherwise fall through".
func (d *Device) microTask() {
	now := d.pins.Now()

	if !d.pins.ReadReset() {
		if d.prevResetOK {
			d.prevResetOK = false
			d.flags = 0
			d.sflags = 0
			d.pins.DriveCLK(false)
			d.pins.DriveDATA(false)
			d.pins.DriveCTRL(false)
			for _, n := range d.numbers {
				d.cb.Reset(n)
			}
		}
		return
	}
	d.prevResetOK = true

	if !d.flags.has(flagATN) && !d.pins.ReadATN() {
		d.atnRequest()
	} else if d.flags.has(flagATN) && d.pins.ReadATN() {
		d.handleATNRise()
	}

	if d.flags.has(flagATN) {
		d.pollDolphinDetect()
	}

	switch {
	case d.sflags.has(sflagDolphinBurstEnabled):
		d.microTaskBurst(now)
	case d.flags&(flagATN|flagListening) != 0:
		d.microTaskReceive(now)
	case d.flags.has(flagTalking):
		d.microTaskTalk(now)
	}
}

func (d *Device) handleATNRise() {
	d.flags &^= flagATN
	d.pins.DriveCTRL(false)

	matched := d.claims(d.primary & 0x1F)
	switch {
	case (d.primary&0xE0) == 0x20 && matched:
		d.cb.Listen(d.primary&0x1F, d.secondary)
		d.flags = (d.flags &^ flagTalking) | flagListening
		d.state = stRecvPre
		d.pins.DriveDATA(true)
	case (d.primary&0xE0) == 0x40 && matched:
		d.cb.Talk(d.primary&0x1F, d.secondary)
		d.flags = (d.flags &^ flagListening) | flagTalking
		d.state = stTalkPre0
	case d.primary == 0x3F && d.flags.has(flagListening):
		d.flags &^= flagListening
		for _, n := range d.numbers {
			d.cb.Unlisten(n)
		}
	case d.primary == 0x5F && d.flags.has(flagTalking):
		for _, n := range d.numbers {
			d.cb.Untalk(n)
		}
		d.flags &^= flagTalking
	}

	if d.flags&(flagListening|flagTalking) == 0 {
		d.pins.DriveCLK(false)
		d.pins.DriveDATA(false)
	}
}

func (d *Device) activeDevnr() byte {
	if len(d.numbers) == 1 {
		return d.numbers[0]
	}
	return d.primary & 0x1F
}
