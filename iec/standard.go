// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iec

import "time"

// microTaskReceive implements the standard IEC receive-byte state machine
// while we are listening (or still under ATN receiving primary/secondary).
// Ported from IECDevice::microTask's P_PRE2..P_DONE0 branch.
func (d *Device) microTaskReceive(now time.Time) {
	switch d.state {
	case stRecvPre:
		d.inTaskCallback(true)
		d.numData = d.cb.CanWrite(d.activeDevnr())
		d.inTaskCallback(false)

		switch {
		case !d.flags.has(flagATN) && !d.pins.ReadATN():
			d.atnRequest()
		case d.flags.has(flagATN) && d.hasDeadline && now.Before(d.deadline):
			// ignore activity during the 100us ATN settle window
		case !d.flags.has(flagATN) && d.numData >= 0 && d.sflags.jiffyDetected() && d.pins.ReadCLK():
			d.enterJiffyReceive(now)
		case (d.flags.has(flagATN) || d.numData >= 0) && d.pins.ReadCLK():
			d.pins.DriveDATA(false)
			d.setDeadline(now, eoiDetectWindow)
			d.state = stRecvReady
		}

	case stJiffyRecvWaitStart, stJiffyRecvSample:
		d.microTaskJiffyReceive(now)

	case stRecvReady:
		switch {
		case !d.pins.ReadCLK():
			d.state = stRecvBit
			d.bitIndex = 0
			d.data = 0
		case d.flags.has(flagATN):
			if d.timedOut(now) && d.sflags.jiffyEnabled() && !d.sflags.jiffyDetected() {
				// JiffyDOS advertises itself by delaying CLK past the
				// normal EOI window while we are still under ATN (§4.2).
				d.pins.DriveDATA(true)
				d.sflags.setJiffyDetected()
				d.setDeadline(now, eoiAckPulse)
				d.state = stRecvEOIAck
			}
		case d.timedOut(now):
			// talker didn't drop CLK within the window: EOI (never under ATN)
			d.pins.DriveDATA(true)
			d.setDeadline(now, eoiAckPulse)
			d.state = stRecvEOIAck
		}

	case stRecvEOIAck:
		if d.timedOut(now) {
			d.pins.DriveDATA(false)
			d.state = stRecvEOIWait
		}

	case stRecvEOIWait:
		if !d.pins.ReadCLK() {
			d.state = stRecvBit
			d.bitIndex = 0
			d.data = 0
		}

	case stRecvBit:
		if d.pins.ReadCLK() {
			d.data >>= 1
			if d.pins.ReadDATA() {
				d.data |= 0x80
			}
			d.state = stRecvBitWait
		}

	case stRecvBitWait:
		if !d.pins.ReadCLK() {
			d.bitIndex++
			if d.bitIndex == 8 {
				d.finishReceivedByte()
			} else {
				d.state = stRecvBit
			}
		}

	case stRecvDone:
		// waiting for the bus master to set ATN back high.
	}
}

func (d *Device) finishReceivedByte() {
	switch {
	case d.flags.has(flagATN):
		if d.primary == 0 {
			d.primary = d.data
		} else if d.secondary == 0 {
			d.secondary = d.data
		}

		if d.primary != 0x3F && d.primary != 0x5F && !d.claims(d.primary&0x1F) {
			// not addressed to us: stay silent, master sees "device not present"
			d.state = stRecvDone
		} else {
			d.pins.DriveDATA(true)
			if d.secondary == 0 {
				d.state = stRecvPre
			} else {
				d.state = stRecvDone
			}
		}

	case d.flags.has(flagListening):
		if d.numData > 0 {
			d.bufferPreBurstSave(d.data)
			d.cb.Write(d.activeDevnr(), d.data)
			d.pins.DriveDATA(true)
			d.state = stRecvPre
		} else {
			// CanWrite reported an error: release DATA, stop listening.
			d.pins.DriveDATA(false)
			d.state = stRecvDone
		}
	}
}

// inTaskCallback marks (or unmarks) that we are inside a CanRead/CanWrite
// upcall, which may take an indefinite amount of time; ATN is still
// polled while this flag is set (§5). Named distinctly from Device.inTask
// (the ISR-suppression flag) because the two serve different readers.
func (d *Device) inTaskCallback(active bool) {
	// Upcalls are synchronous in this implementation (no goroutine
	// handoff), so there is nothing to toggle beyond documenting the
	// safe-yield-point contract; kept as a named no-op so the call sites
	// above read the same as the original source's m_inMicroTask dance.
	_ = active
}
