// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iec

import "time"

// epyxState holds the engine-side Epyx FastLoad data-transfer bookkeeping.
// The upload-signature state machine that decides *when* to call
// ArmEpyxFastLoad lives in package iecfile (it snoops M-W/M-E on channel
// 15); this package only owns the resulting bit-banged transfer mode
// (§4.4).
type epyxState struct {
	bitIndex int
}

// epyxTable mirrors jiffyTable's shape for the Epyx byte protocol: tighter
// timing, one bit per step, sampled/driven on DATA only (CLK is asserted
// when the transfer is entered and released just before the data bits
// are driven; it carries no data).
var epyxTable = []time.Duration{
	8 * time.Microsecond,
	16 * time.Microsecond,
	24 * time.Microsecond,
	32 * time.Microsecond,
	40 * time.Microsecond,
	48 * time.Microsecond,
	56 * time.Microsecond,
	64 * time.Microsecond,
}

// ArmEpyxFastLoad is called by the file-device layer once it has matched a
// known Epyx loader's upload signature (its M-W/M-E tracking). The next
// TALK enters Epyx transfer timing instead of the standard or JiffyDOS
// byte protocol.
func (d *Device) ArmEpyxFastLoad() {
	if !d.sflags.has(sflagEpyxEnabled) {
		return
	}
	d.sflags.set(sflagEpyxArmed)
}

// DisarmEpyxFastLoad cancels a pending arm without starting a transfer,
// e.g. if the host issues another command before TALKing.
func (d *Device) DisarmEpyxFastLoad() {
	d.sflags.clear(sflagEpyxArmed)
}

func (d *Device) enterEpyxTalk(now time.Time) {
	d.epyx.bitIndex = 0
	d.pins.DriveCLK(true)
	d.deadline = now
	d.hasDeadline = true
	d.state = stEpyxTalkWaitReady
}

func (d *Device) microTaskEpyxTalk(now time.Time) {
	switch d.state {
	case stEpyxTalkWaitReady:
		d.data = d.cb.Read(d.activeDevnr())
		d.epyx.bitIndex = 0
		d.deadline = now
		d.pins.DriveCLK(false)
		d.state = stEpyxTalkSend

	case stEpyxTalkSend:
		if d.epyx.bitIndex >= len(epyxTable) {
			d.sflags.clear(sflagEpyxArmed)
			if d.numData <= 1 {
				d.flags &^= flagTalking
				d.pins.DriveCLK(false)
				d.pins.DriveDATA(false)
			} else {
				d.setDeadline(now, talkerRetryDelay)
				d.state = stTalkPre1
			}
			return
		}
		if now.Sub(d.deadline) < epyxTable[d.epyx.bitIndex] {
			return
		}
		bit := d.data&(1<<uint(d.epyx.bitIndex)) != 0
		d.pins.DriveDATA(!bit)
		d.epyx.bitIndex++
	}
}
