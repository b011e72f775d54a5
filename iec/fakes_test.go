// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iec

import (
	"testing"
	"time"
)

// fakeClock lets tests control Pins.Now() deterministically instead of
// sleeping real wall-clock time.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// fakePins is a software loopback: the test plays the bus master, driving
// ATN/CLK/DATA/RESET directly, while the Device under test drives its side
// through DriveCLK/DriveDATA/DriveCTRL. Reads return the open-collector
// wire-OR of both drivers, mirroring the real bus.
type fakePins struct {
	clock *fakeClock

	masterATN, masterCLK, masterDATA bool
	masterReset                      bool

	devCLK, devDATA, devCTRL bool
}

func newFakePins(clock *fakeClock) *fakePins {
	p := &fakePins{clock: clock}
	p.masterReset = false
	return p
}

func (p *fakePins) ReadATN() bool   { return !p.masterATN }
func (p *fakePins) ReadCLK() bool   { return !(p.masterCLK || p.devCLK) }
func (p *fakePins) ReadDATA() bool  { return !(p.masterDATA || p.devDATA) }
func (p *fakePins) ReadReset() bool { return !p.masterReset }

func (p *fakePins) DriveCLK(assert bool)  { p.devCLK = assert }
func (p *fakePins) DriveDATA(assert bool) { p.devDATA = assert }
func (p *fakePins) DriveCTRL(high bool)   { p.devCTRL = high }

func (p *fakePins) Now() time.Time { return p.clock.now() }

// fakeParallelPins extends fakePins with the DolphinDOS cable for tests
// that need ParallelPins.
type fakeParallelPins struct {
	*fakePins
	bus              byte
	inputMode        bool
	masterHandshake  bool
	devHandshake     bool
}

func newFakeParallelPins(clock *fakeClock) *fakeParallelPins {
	return &fakeParallelPins{fakePins: newFakePins(clock)}
}

func (p *fakeParallelPins) ParallelWrite(b byte)       { p.bus = b }
func (p *fakeParallelPins) ParallelRead() byte         { return p.bus }
func (p *fakeParallelPins) ParallelSetInput(in bool)   { p.inputMode = in }
func (p *fakeParallelPins) ReadHandshakeIn() bool      { return p.masterHandshake }
func (p *fakeParallelPins) DriveHandshakeOut(a bool)   { p.devHandshake = a }

// fakeCallbacks records every upcall the engine makes, and lets a test
// script canned CanRead/CanWrite/Read results.
type fakeCallbacks struct {
	listens, talks, untalks, unlistens []byte
	lastSecondary                      byte

	canWrite, canRead int8
	writes            []byte
	readQueue         []byte
	readPos           int

	resets []byte
}

func (c *fakeCallbacks) Listen(devnr, secondary byte) {
	c.listens = append(c.listens, devnr)
	c.lastSecondary = secondary
}
func (c *fakeCallbacks) Talk(devnr, secondary byte) {
	c.talks = append(c.talks, devnr)
	c.lastSecondary = secondary
}
func (c *fakeCallbacks) Untalk(devnr byte)   { c.untalks = append(c.untalks, devnr) }
func (c *fakeCallbacks) Unlisten(devnr byte) { c.unlistens = append(c.unlistens, devnr) }

func (c *fakeCallbacks) CanWrite(devnr byte) int8 { return c.canWrite }
func (c *fakeCallbacks) CanRead(devnr byte) int8  { return c.canRead }

func (c *fakeCallbacks) Write(devnr byte, data byte) { c.writes = append(c.writes, data) }
func (c *fakeCallbacks) Read(devnr byte) byte {
	if c.readPos >= len(c.readQueue) {
		return 0
	}
	b := c.readQueue[c.readPos]
	c.readPos++
	return b
}

func (c *fakeCallbacks) Reset(devnr byte) { c.resets = append(c.resets, devnr) }

// pump calls Task n times, advancing the fake clock by step after each
// call, the way a real host would re-enter task() on a steady cadence.
func pump(d *Device, clock *fakeClock, n int, step time.Duration) {
	for i := 0; i < n; i++ {
		d.Task()
		clock.advance(step)
	}
}

// waitFor pumps the engine until cond is true or maxIter ticks elapse.
func waitFor(t *testing.T, d *Device, clock *fakeClock, cond func() bool, maxIter int) {
	t.Helper()
	for i := 0; i < maxIter; i++ {
		if cond() {
			return
		}
		d.Task()
		clock.advance(2 * time.Microsecond)
	}
	t.Fatalf("timeout waiting for condition, state=%d flags=%02x", d.state, d.flags)
}

// sendMasterByte plays the talker side of the standard receive handshake:
// release CLK to signal ready, wait for the listener to release DATA,
// pull CLK low to start clocking, then present each bit in turn. Leaves
// the final bit clocked but does not wait for the listener's post-byte
// state, since that differs between the ATN command-frame path and the
// regular channel-data path.
func sendMasterByte(t *testing.T, d *Device, pins *fakePins, clock *fakeClock, b byte) {
	t.Helper()

	pins.masterCLK = false // release: "ready to send"
	waitFor(t, d, clock, func() bool { return pins.ReadDATA() }, 300)

	pump(d, clock, 20, 2*time.Microsecond) // stay well under the 200us EOI window
	pins.masterCLK = true                  // pull low: begin clocking bits
	waitFor(t, d, clock, func() bool { return d.state == stRecvBit }, 300)

	for i := 0; i < 8; i++ {
		bit := (b >> uint(i)) & 1
		pins.masterDATA = bit == 0 // assert (low) encodes bit 0
		pins.masterCLK = false     // release CLK: bit valid, sample now
		waitFor(t, d, clock, func() bool { return d.state == stRecvBitWait }, 300)
		pins.masterCLK = true // pull low: prepare next bit
		if i != 7 {
			waitFor(t, d, clock, func() bool { return d.state == stRecvBit }, 300)
		}
	}
	pins.masterDATA = false
}
