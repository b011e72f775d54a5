// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sim

import (
	"errors"
	"time"
)

// Tasker is satisfied by *iec.Device and anything that embeds one (such
// as *iecfile.FileDevice): whatever must be pumped while Master drives
// the bus, since this is a single-process simulation of two sides that
// would otherwise run independently.
type Tasker interface {
	Task()
}

const (
	primaryListen   = 0x20
	primaryTalk     = 0x40
	primaryUnlisten = 0x3F
	primaryUntalk   = 0x5F
)

// Master drives the bus the way a real Commodore machine's kernal serial
// routines would: it asserts ATN and the line handshakes, never peeking
// at the device under test's internal state, only at bus-observable
// levels (§3, §4).
type Master struct {
	bus   *Bus
	clock *ManualClock
}

// NewMaster returns a master driving bus, stepped by clock.
func NewMaster(bus *Bus, clock *ManualClock) *Master {
	bus.Clock = clock.Now
	return &Master{bus: bus, clock: clock}
}

func (m *Master) driveATN(a bool)  { m.bus.drive(m.bus.atn, idMaster, a) }
func (m *Master) driveCLK(a bool)  { m.bus.drive(m.bus.clk, idMaster, a) }
func (m *Master) driveDATA(a bool) { m.bus.drive(m.bus.data, idMaster, a) }
func (m *Master) driveReset(a bool) { m.bus.drive(m.bus.reset, idMaster, a) }

func (m *Master) readCLK() bool  { return m.bus.read(m.bus.clk) }
func (m *Master) readDATA() bool { return m.bus.read(m.bus.data) }

// Pump calls dev.Task n times, advancing the clock by step after each
// call, the way a real host re-enters the bus engine on a steady cadence.
func (m *Master) Pump(dev Tasker, n int, step time.Duration) {
	for i := 0; i < n; i++ {
		dev.Task()
		m.clock.Advance(step)
	}
}

// WaitFor pumps dev until cond is true or maxIter ticks elapse.
func (m *Master) WaitFor(dev Tasker, cond func() bool, maxIter int) bool {
	for i := 0; i < maxIter; i++ {
		if cond() {
			return true
		}
		dev.Task()
		m.clock.Advance(2 * time.Microsecond)
	}
	return false
}

// ResetPulse drives RESET low for d then releases it.
func (m *Master) ResetPulse(dev Tasker, d time.Duration) {
	m.driveReset(true)
	m.Pump(dev, int(d/(2*time.Microsecond))+1, 2*time.Microsecond)
	m.driveReset(false)
}

// SendByte plays the talker side of the standard byte handshake: release
// CLK to say "ready to send", wait for the listener to release DATA,
// optionally run the EOI dance, then clock out 8 bits (§4.1).
func (m *Master) SendByte(dev Tasker, b byte, eoi bool) error {
	m.driveCLK(false)
	if !m.WaitFor(dev, m.readDATA, 600) {
		return errors.New("sim: listener never released DATA")
	}

	if eoi {
		if !m.WaitFor(dev, func() bool { return !m.readDATA() }, 600) {
			return errors.New("sim: listener never signalled its EOI acknowledgement")
		}
		if !m.WaitFor(dev, m.readDATA, 300) {
			return errors.New("sim: listener never released DATA after its EOI acknowledgement")
		}
	} else {
		m.Pump(dev, 20, 2*time.Microsecond) // stay well under the EOI detect window
	}

	m.driveCLK(true)
	m.Pump(dev, 3, 2*time.Microsecond)

	for i := 0; i < 8; i++ {
		bit := (b >> uint(i)) & 1
		m.driveDATA(bit == 0)
		m.driveCLK(false) // release: bit valid, sampled now
		m.Pump(dev, 3, 2*time.Microsecond)
		m.driveCLK(true) // reassert: prepare the next bit
		m.Pump(dev, 3, 2*time.Microsecond)
	}
	m.driveDATA(false)
	m.Pump(dev, 3, 2*time.Microsecond)
	return nil
}

// Attention asserts ATN, sends each byte of a command frame (primary
// address, optional secondary address) via SendByte, then releases ATN
// so the device acts on the accumulated frame.
func (m *Master) Attention(dev Tasker, frame ...byte) error {
	m.driveATN(true)
	m.driveDATA(false) // drop any listener-side hold left by ReceiveByte
	m.Pump(dev, 5, 2*time.Microsecond)
	for _, b := range frame {
		if err := m.SendByte(dev, b, false); err != nil {
			return err
		}
	}
	m.driveATN(false)
	m.Pump(dev, 5, 2*time.Microsecond)
	return nil
}

// Listen addresses devnr to listen, optionally opening a channel via
// secondary (e.g. 0xF0|channel for OPEN, 0x60|channel for a data
// channel).
func (m *Master) Listen(dev Tasker, devnr byte, secondary ...byte) error {
	frame := append([]byte{primaryListen | (devnr & 0x1F)}, secondary...)
	return m.Attention(dev, frame...)
}

// Unlisten sends UNLISTEN.
func (m *Master) Unlisten(dev Tasker) error {
	return m.Attention(dev, primaryUnlisten)
}

// Talk addresses devnr to talk, optionally sending a secondary (channel)
// byte, then performs the listener's half of the role reversal: DATA
// asserted, CLK released.
func (m *Master) Talk(dev Tasker, devnr byte, secondary ...byte) error {
	frame := append([]byte{primaryTalk | (devnr & 0x1F)}, secondary...)
	if err := m.Attention(dev, frame...); err != nil {
		return err
	}
	m.driveDATA(true)
	m.driveCLK(false)
	m.Pump(dev, 5, 2*time.Microsecond)
	return nil
}

// Untalk sends UNTALK.
func (m *Master) Untalk(dev Tasker) error {
	return m.Attention(dev, primaryUntalk)
}

// WriteBytes sends data to an already-LISTENing device, one byte at a
// time, marking the final byte's EOI if eoiOnLast is set.
func (m *Master) WriteBytes(dev Tasker, data []byte, eoiOnLast bool) error {
	for i, b := range data {
		last := i == len(data)-1
		if err := m.SendByte(dev, b, last && eoiOnLast); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveByte plays the listener side of the standard byte handshake: it
// never inspects the talker's internal state, only CLK/DATA levels
// (§4.1). eoi reports whether the talker signalled this as the last byte
// before presenting it.
//
// A listener that releases DATA the instant it's able to would short-
// circuit the talker past its ready-wait window (the window it uses to
// signal EOI by simply not asserting CLK within it), so ReceiveByte holds
// DATA asserted ("busy") for a fixed settle period first. That forces the
// talker onto its full ready-handshake path every time, and makes the
// EOI signal observable: if CLK hasn't gone low by the time the ready-
// wait window would have elapsed, the talker is waiting on us to
// acknowledge EOI with a DATA pulse before it proceeds.
func (m *Master) ReceiveByte(dev Tasker) (b byte, eoi bool, err error) {
	m.driveDATA(true)
	m.Pump(dev, 150, 2*time.Microsecond) // > talkerRetryDelay, forces the slow path
	m.driveDATA(false)                   // ready to receive

	if !m.WaitFor(dev, func() bool { return !m.readCLK() }, 70) { // > talkerReadyWait
		eoi = true
		m.driveDATA(true)
		m.Pump(dev, 5, 2*time.Microsecond)
		m.driveDATA(false)
		if !m.WaitFor(dev, func() bool { return !m.readCLK() }, 600) {
			return 0, false, errors.New("sim: talker never began the byte after the EOI acknowledgement")
		}
	}

	for i := 0; i < 8; i++ {
		if i > 0 {
			if !m.WaitFor(dev, func() bool { return !m.readCLK() }, 300) {
				return 0, false, errors.New("sim: timed out waiting for the next bit")
			}
		}
		if m.readDATA() {
			b |= 1 << uint(i)
		}
		if !m.WaitFor(dev, m.readCLK, 300) {
			return 0, false, errors.New("sim: timed out waiting for clock release")
		}
	}

	if !m.WaitFor(dev, func() bool { return !m.readCLK() }, 300) {
		return 0, false, errors.New("sim: timed out waiting for frame-done")
	}
	// Acknowledge the completed frame and leave DATA asserted; the next
	// ReceiveByte call's own settle-hold governs when we next look ready.
	m.driveDATA(true)
	m.Pump(dev, 5, 2*time.Microsecond)

	return b, eoi, nil
}

// ReadBytes reads n bytes from an already-TALKing device, stopping early
// if eoi is signalled.
func (m *Master) ReadBytes(dev Tasker, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		b, eoi, err := m.ReceiveByte(dev)
		if err != nil {
			return out, err
		}
		out = append(out, b)
		if eoi {
			break
		}
	}
	return out, nil
}
