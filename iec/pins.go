// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iec

import "time"

// Pins is the GPIO/timer contract the bus engine requires of its host
// environment (§6 of the specification). Implementations live under
// iecio/ (a software loopback for tests, a Linux /dev/gpiomem backend, an
// FTDI USB bit-bang backend); the engine itself never depends on any of
// them directly, only on this interface, so the bit-banged protocols stay
// generic over the transport. Unlike periph's gpio.PinIO, a line here is
// a plain bool: the engine only ever needs "is it released" and "drive it
// low/let it float", never periph's richer per-pin capability surface, so
// that surface is not carried into this contract.
//
// Read* return the wire-OR value: true means released (high), false means
// some participant is driving the line low. Drive* express the
// open-collector write: assert=true drives the line low, assert=false
// releases it (lets it float high under the pull-up).
type Pins interface {
	ReadATN() bool
	ReadCLK() bool
	ReadDATA() bool

	// ReadReset reports the RESET line state, or true (never reset) if the
	// host has no RESET line wired.
	ReadReset() bool

	DriveCLK(assert bool)
	DriveDATA(assert bool)

	// DriveCTRL drives the optional hardware ATN-to-DATA assist line high
	// (disable the assist, we are driving DATA ourselves) or low (enable
	// it). Implementations without the assist wired make this a no-op.
	DriveCTRL(high bool)

	// Now returns a monotonic timestamp used for all of the engine's
	// bounded waits. Implementations should back it with time.Now() (or an
	// equivalent monotonic microsecond counter on bare-metal targets).
	Now() time.Time
}

// ParallelPins extends Pins with the DolphinDOS 8-bit parallel cable: a
// data byte plus two handshake lines, src-release-triggered on the
// receive line.
type ParallelPins interface {
	Pins

	// ParallelRead/ParallelWrite access the 8-bit parallel data bus.
	ParallelWrite(data byte)
	ParallelRead() byte
	ParallelSetInput(in bool)

	// ReadHandshakeIn/DriveHandshakeOut are the two DolphinDOS flow-control
	// lines (independent of CLK/DATA).
	ReadHandshakeIn() bool
	DriveHandshakeOut(assert bool)
}
