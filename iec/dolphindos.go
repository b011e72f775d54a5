// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iec

import "time"

// pollDolphinDetect watches the parallel handshake-in line for a short
// pulse while we are under ATN receiving the secondary byte (§4.3). It is
// called once per microTask tick; it is cheap and a no-op unless Dolphin
// detection is enabled, a ParallelPins backend is wired, and detection
// hasn't already fired for this transaction.
func (d *Device) pollDolphinDetect() {
	if !d.sflags.has(sflagDolphinEnabled) || d.sflags.has(sflagDolphinDetected) {
		return
	}
	pp, ok := d.pins.(ParallelPins)
	if !ok {
		return
	}
	in := pp.ReadHandshakeIn()
	if d.dolphinPrevIn && !in {
		// falling edge seen: pulse the transmit line back and latch detected.
		pp.DriveHandshakeOut(true)
		pp.DriveHandshakeOut(false)
		d.sflags.set(sflagDolphinDetected)
	}
	d.dolphinPrevIn = in
}

// bufferPreBurstSave keeps the first two bytes of a SAVE (secondary 0x61
// LISTEN) so they can be discarded without retransmission if a burst is
// requested mid-transfer (§4.3).
func (d *Device) bufferPreBurstSave(b byte) {
	if !d.sflags.has(sflagDolphinDetected) || d.preBurstLen >= 2 {
		return
	}
	d.preBurst[d.preBurstLen] = b
	d.preBurstLen++
}

// bufferPreBurstLoad mirrors bufferPreBurstSave for the LOAD direction: the
// first two bytes sent over the regular serial protocol are kept so they
// can be replayed over the parallel cable if the host pivots into burst
// mode partway through.
func (d *Device) bufferPreBurstLoad(b byte) {
	d.bufferPreBurstSave(b)
}

// RequestBurstLoad arms a transmit burst (command-channel "XQ", load): the
// pre-buffered header bytes are replayed over the parallel cable first,
// then the remainder of the file streams through Callbacks.Read. Called by
// package iecfile when it intercepts "XQ" on channel 15.
func (d *Device) RequestBurstLoad() {
	if !d.sflags.has(sflagDolphinDetected) {
		return
	}
	d.sflags.set(sflagDolphinBurstTXRequest)
}

// RequestBurstSave arms a receive burst (command-channel "XZ", save).
func (d *Device) RequestBurstSave() {
	if !d.sflags.has(sflagDolphinDetected) {
		return
	}
	d.sflags.set(sflagDolphinBurstRXRequest)
}

// SetBurstEnabled implements the "XF+"/"XF-" channel-15 commands, which
// toggle whether burst requests are honoured at all without necessarily
// starting one immediately.
func (d *Device) SetBurstEnabled(on bool) {
	if on {
		d.sflags.set(sflagDolphinBurstEnabled)
		if pp, ok := d.pins.(ParallelPins); ok {
			pp.ParallelSetInput(d.sflags.has(sflagDolphinBurstRXRequest))
			d.pins.DriveCLK(false)
			d.pins.DriveDATA(false)
		}
	} else {
		d.sflags.clear(sflagDolphinBurstEnabled | sflagDolphinBurstTXRequest | sflagDolphinBurstRXRequest)
		d.preBurstLen = 0
	}
}

// microTaskBurst pumps one parallel-cable byte per handshake edge while
// burst mode is active, reusing CLK/DATA only as flow control per §4.3.
func (d *Device) microTaskBurst(now time.Time) {
	_ = now
	pp, ok := d.pins.(ParallelPins)
	if !ok {
		d.sflags.clear(sflagDolphinBurstEnabled)
		return
	}

	in := pp.ReadHandshakeIn()
	if in == d.dolphinPrevIn {
		return
	}
	d.dolphinPrevIn = in
	if !in {
		return // only act on the triggering edge, not its release
	}

	switch {
	case d.sflags.has(sflagDolphinBurstTXRequest):
		if d.preBurstLen > 0 {
			pp.ParallelWrite(d.preBurst[0])
			d.preBurst[0] = d.preBurst[1]
			d.preBurstLen--
		} else {
			pp.ParallelWrite(d.cb.Read(d.activeDevnr()))
		}
		pp.DriveHandshakeOut(true)
		pp.DriveHandshakeOut(false)

	case d.sflags.has(sflagDolphinBurstRXRequest):
		d.cb.Write(d.activeDevnr(), pp.ParallelRead())
		pp.DriveHandshakeOut(true)
		pp.DriveHandshakeOut(false)
	}
}
