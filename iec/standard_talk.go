// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iec

import "time"

// microTaskTalk implements the standard IEC transmit-byte state machine
// while we hold the talker role. Ported from IECDevice::microTask's
// P_PRE0..P_FRAMEERR1 branch.
func (d *Device) microTaskTalk(now time.Time) {
	switch d.state {
	case stTalkPre0:
		if d.pins.ReadCLK() {
			// listener set CLK=1 (having first set DATA=0): begin role
			// reversal, CLK=0 DATA=1.
			d.pins.DriveCLK(true)
			d.pins.DriveDATA(false)
			d.setDeadline(now, talkerPreDelay)
			d.state = stTalkPre1
		}

	case stTalkPre1:
		if !d.timedOut(now) {
			return
		}
		d.inTaskCallback(true)
		d.numData = d.cb.CanRead(d.activeDevnr())
		d.inTaskCallback(false)

		if !d.pins.ReadATN() {
			d.atnRequest()
			return
		}
		if !d.flags.has(flagATN) && d.numData >= 0 {
			switch {
			case d.sflags.has(sflagEpyxArmed):
				d.enterEpyxTalk(now)
			case d.sflags.jiffyDetected():
				d.enterJiffyTalk(now)
			case d.pins.ReadDATA():
				// listener already signalled ready-to-receive before we
				// signalled ready-to-send: skip straight to PRE2.
				d.pins.DriveCLK(false)
				d.state = stTalkPre2
			default:
				d.pins.DriveCLK(false)
				d.state = stTalkReady
				d.setDeadline(now, talkerReadyWait)
			}
		}

	case stJiffyTalkWaitReady, stJiffyTalkSend:
		d.microTaskJiffyTalk(now)

	case stEpyxTalkWaitReady, stEpyxTalkSend:
		d.microTaskEpyxTalk(now)

	case stTalkPre2:
		if !d.pins.ReadDATA() {
			d.pins.DriveCLK(true)
			d.state = stTalkPre3
		}

	case stTalkPre3:
		if d.pins.ReadDATA() {
			if d.numData == 0 {
				d.flags &^= flagTalking
			} else {
				d.beginByte(now)
			}
		}

	case stTalkReady:
		if d.pins.ReadDATA() && now.After(d.deadline) {
			switch {
			case d.numData == 0:
				d.flags &^= flagTalking
			case d.numData == 1:
				d.state = stTalkEOIAck
			default:
				d.beginByte(now)
			}
		}

	case stTalkEOIAck:
		if !d.pins.ReadDATA() {
			d.state = stTalkEOIWait
		}

	case stTalkEOIWait:
		if d.pins.ReadDATA() {
			d.beginByte(now)
		}

	case stTalkBit:
		if d.timedOut(now) {
			bit := byte(1) << uint(d.bitIndex)
			d.pins.DriveCLK(true)
			d.pins.DriveDATA(d.data&bit == 0)
			d.setDeadline(now, bitHoldAsserted)
			d.state = stTalkBitWait
		}

	case stTalkBitWait:
		if d.timedOut(now) {
			d.pins.DriveCLK(false)
			d.setDeadline(now, bitHoldReleased)
			d.bitIndex++
			if d.bitIndex == 8 {
				d.state = stTalkDone0
			} else {
				d.state = stTalkBit
			}
		}

	case stTalkDone0:
		if d.timedOut(now) {
			d.pins.DriveCLK(true)
			d.pins.DriveDATA(false)
			d.setDeadline(now, transmitAckWait)
			d.state = stTalkDone1
		}

	case stTalkDone1:
		switch {
		case !d.pins.ReadDATA():
			// listener pulled DATA low: frame acknowledged.
			if d.numData == 1 {
				d.flags &^= flagTalking
				d.pins.DriveCLK(false)
			} else {
				d.setDeadline(now, talkerRetryDelay)
				d.state = stTalkPre1
			}
		case d.timedOut(now):
			d.pins.DriveCLK(true)
			d.setDeadline(now, frameErrPulse)
			d.state = stTalkFrameErr0
		}

	case stTalkFrameErr0:
		if d.timedOut(now) {
			d.pins.DriveCLK(false)
			d.state = stTalkFrameErr1
		}

	case stTalkFrameErr1:
		if !d.pins.ReadDATA() {
			d.hasDeadline = false
			d.state = stTalkPre1
		}
	}
}

// beginByte pulls the next byte from Callbacks.Read (or a fast-protocol
// scratch buffer mid-block) and starts the 8-bit send sequence.
func (d *Device) beginByte(now time.Time) {
	d.bitIndex = 0
	d.setDeadline(now, bitHoldAsserted)
	d.data = d.cb.Read(d.activeDevnr())
	d.bufferPreBurstLoad(d.data)
	d.state = stTalkBit
}
