// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iec

import "time"

// jiffyOffset pairs a time-since-CLK-release offset with the two bit
// positions sampled (or produced) at that offset, per the table in §4.2.
// bit values of -1 mean "no data bit at this offset" (EOI / ack steps).
type jiffyOffset struct {
	at   time.Duration
	clk  int8 // bit index carried on CLK, -1 if none
	data int8 // bit index carried on DATA, -1 if none
}

var jiffyTable = []jiffyOffset{
	{14 * time.Microsecond, 4, 5},
	{27 * time.Microsecond, 6, 7},
	{38 * time.Microsecond, 3, 1},
	{51 * time.Microsecond, 2, 0},
	{64 * time.Microsecond, -1, -1}, // EOI flag sampled/driven on CLK
	{83 * time.Microsecond, -1, -1}, // ack: peer samples our DATA
}

// enterJiffyReceive switches the receive path into JiffyDOS byte timing
// once the sender has released CLK ("ready"). Called from stRecvPre.
func (d *Device) enterJiffyReceive(now time.Time) {
	d.data = 0
	d.bitIndex = 0
	d.deadline = now // "timer started at that moment" (byte-start timestamp)
	d.hasDeadline = true
	d.state = stJiffyRecvWaitStart
}

func (d *Device) microTaskJiffyReceive(now time.Time) {
	switch d.state {
	case stJiffyRecvWaitStart:
		if d.pins.ReadCLK() {
			d.deadline = now
			d.state = stJiffyRecvSample
			d.bitIndex = 0
		}

	case stJiffyRecvSample:
		if d.bitIndex >= len(jiffyTable) {
			if d.numData > 0 {
				d.cb.Write(d.activeDevnr(), d.data)
				d.pins.DriveDATA(false)
			} else {
				d.pins.DriveDATA(true)
			}
			d.state = stRecvPre
			return
		}
		step := jiffyTable[d.bitIndex]
		if now.Sub(d.deadline) < step.at {
			return
		}
		if step.clk >= 0 {
			if d.pins.ReadCLK() {
				d.data |= 1 << uint(step.clk)
			}
		}
		if step.data >= 0 {
			if d.pins.ReadDATA() {
				d.data |= 1 << uint(step.data)
			}
		}
		if step.clk < 0 && step.data < 0 && d.bitIndex == len(jiffyTable)-2 {
			// EOI step: CLK held high signals end-of-transmission; no
			// wire effect needed on the receive side beyond observing it.
			_ = d.pins.ReadCLK()
		}
		d.bitIndex++
	}
}

// enterJiffyTalk switches the talk path into JiffyDOS byte timing once
// canRead() has determined data is ready. Called from stTalkPre1.
func (d *Device) enterJiffyTalk(now time.Time) {
	d.bitIndex = 0
	d.deadline = now
	d.hasDeadline = true
	d.state = stJiffyTalkWaitReady
}

func (d *Device) microTaskJiffyTalk(now time.Time) {
	switch d.state {
	case stJiffyTalkWaitReady:
		d.pins.DriveCLK(false) // release CLK: "ready"
		d.deadline = now
		d.data = d.cb.Read(d.activeDevnr())
		d.bitIndex = 0
		d.state = stJiffyTalkSend

	case stJiffyTalkSend:
		if d.bitIndex >= len(jiffyTable) {
			if d.numData <= 1 {
				d.flags &^= flagTalking
				d.pins.DriveCLK(false)
			} else {
				d.setDeadline(now, talkerRetryDelay)
				d.state = stTalkPre1
			}
			return
		}
		step := jiffyTable[d.bitIndex]
		if now.Sub(d.deadline) < step.at {
			return
		}
		if step.clk >= 0 {
			d.pins.DriveCLK(d.data&(1<<uint(step.clk)) == 0)
		}
		if step.data >= 0 {
			d.pins.DriveDATA(d.data&(1<<uint(step.data)) == 0)
		}
		if d.bitIndex == len(jiffyTable)-2 {
			// EOI step: hold CLK asserted (driven) to signal last byte
			// when numData==1.
			d.pins.DriveCLK(d.numData == 1)
		}
		d.bitIndex++
	}
}

// EnableJiffyBlockMode toggles the block-transfer variant used when a
// TALK under JiffyDOS selects secondary 0x61 (§4.2 "Block protocol").
func (d *Device) EnableJiffyBlockMode(on bool) {
	if on {
		d.sflags.set(sflagJiffyBlock)
	} else {
		d.sflags.clear(sflagJiffyBlock)
	}
}
