// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sim is a software loopback iec.Pins backend: a shared open-
// collector Bus plus the two participants that drive it, PeripheralPins
// (the iec.Device side) and Master (a host-side stub that drives ATN and
// the byte handshakes the way a real Commodore machine would). Master is
// a first-class component here, not a test-only fake, because it is what
// lets the round-trip properties of the protocol be exercised end to end
// without real hardware.
package sim

import (
	"sync"
	"time"
)

const (
	idPeripheral = iota
	idMaster
)

// Bus models the four IEC signal lines as open-collector wires: a line
// reads released (high) unless at least one participant is driving it
// low, mirroring the real bus's wire-OR (§3).
type Bus struct {
	mu                    sync.Mutex
	atn, clk, data, reset map[int]bool

	// Clock supplies Now() for both participants. Defaults to time.Now;
	// tests substitute a *ManualClock for deterministic stepping.
	Clock func() time.Time
}

// NewBus returns a bus with every line released and a real-time clock.
func NewBus() *Bus {
	return &Bus{
		atn:   make(map[int]bool),
		clk:   make(map[int]bool),
		data:  make(map[int]bool),
		reset: make(map[int]bool),
		Clock: time.Now,
	}
}

func (b *Bus) now() time.Time {
	if b.Clock == nil {
		return time.Now()
	}
	return b.Clock()
}

func (b *Bus) drive(line map[int]bool, id int, asserted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if asserted {
		line[id] = true
	} else {
		delete(line, id)
	}
}

func (b *Bus) read(line map[int]bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(line) == 0
}

// ManualClock is an overridable time source for Bus.Clock that advances
// only when told to, letting tests step the protocol deterministically
// instead of sleeping real wall-clock time.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewManualClock returns a clock started at the Unix epoch.
func NewManualClock() *ManualClock { return &ManualClock{t: time.Unix(0, 0)} }

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
