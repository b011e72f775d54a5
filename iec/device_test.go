// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iec

import (
	"testing"
	"time"
)

func newTestDevice(t *testing.T, numbers ...byte) (*Device, *fakePins, *fakeClock, *fakeCallbacks) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(0, 0)}
	pins := newFakePins(clock)
	cb := &fakeCallbacks{canWrite: 1, canRead: 1}
	d, err := NewDevice(pins, cb, numbers...)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	d.Begin()
	return d, pins, clock, cb
}

func TestNewDeviceValidation(t *testing.T) {
	clock := &fakeClock{}
	pins := newFakePins(clock)
	cb := &fakeCallbacks{}

	if _, err := NewDevice(pins, cb); err == nil {
		t.Fatal("expected error for zero device numbers")
	}
	if _, err := NewDevice(pins, cb, 31); err == nil {
		t.Fatal("expected error for out-of-range device number")
	}
	many := make([]byte, MaxDevices+1)
	for i := range many {
		many[i] = byte(i % 30)
	}
	if _, err := NewDevice(pins, cb, many...); err == nil {
		t.Fatal("expected error exceeding MaxDevices")
	}

	d, err := NewDevice(pins, cb, 9, 8, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.numbers[0] != 8 || d.numbers[1] != 9 || d.numbers[2] != 10 {
		t.Fatalf("expected sorted claims, got %v", d.numbers)
	}
}

func TestBeginReleasesLines(t *testing.T) {
	d, pins, _, _ := newTestDevice(t, 8)
	if pins.devCLK || pins.devDATA || pins.devCTRL {
		t.Fatal("Begin must release CLK/DATA and lower CTRL")
	}
	if d.state != stIdle {
		t.Fatalf("expected stIdle after Begin, got %d", d.state)
	}
}

func TestATNAssertsDATA(t *testing.T) {
	d, pins, clock, _ := newTestDevice(t, 8)

	pins.masterATN = true
	pump(d, clock, 5, 2*time.Microsecond)

	if !d.flags.has(flagATN) {
		t.Fatal("expected flagATN set after ATN falling edge")
	}
	if pins.ReadDATA() {
		t.Fatal("expected DATA asserted under ATN (framing invariant)")
	}
	if pins.devCLK {
		t.Fatal("expected CLK released under ATN")
	}
}

func TestWrongDeviceNumberSilent(t *testing.T) {
	d, pins, clock, cb := newTestDevice(t, 8)

	pins.masterATN = true
	pump(d, clock, 60, 2*time.Microsecond) // 100us settle window

	sendMasterByte(t, d, pins, clock, 0x29) // LISTEN 9: not claimed
	waitFor(t, d, clock, func() bool { return d.state == stRecvDone }, 300)

	if d.flags.has(flagListening) || d.flags.has(flagTalking) {
		t.Fatal("unclaimed primary must not latch listening/talking")
	}

	pins.masterATN = false
	pump(d, clock, 20, 2*time.Microsecond)

	if d.flags.has(flagATN) {
		t.Fatal("expected ATN flag cleared on ATN rise")
	}
	if len(cb.listens) != 0 {
		t.Fatalf("expected zero Listen callbacks, got %d", len(cb.listens))
	}
	if pins.devDATA {
		t.Fatal("expected DATA released once idle again")
	}
}

func TestListenOpenAndReceiveByte(t *testing.T) {
	d, pins, clock, cb := newTestDevice(t, 8)

	pins.masterATN = true
	pump(d, clock, 60, 2*time.Microsecond)

	sendMasterByte(t, d, pins, clock, 0x28) // LISTEN 8
	waitFor(t, d, clock, func() bool { return d.state == stRecvPre }, 300)

	sendMasterByte(t, d, pins, clock, 0xF0) // OPEN channel 0
	waitFor(t, d, clock, func() bool { return d.state == stRecvDone }, 300)

	pins.masterATN = false
	pump(d, clock, 20, 2*time.Microsecond)

	if len(cb.listens) != 1 || cb.listens[0] != 8 {
		t.Fatalf("expected Listen(8, ...) once, got %v", cb.listens)
	}
	if cb.lastSecondary != 0xF0 {
		t.Fatalf("expected secondary 0xF0, got %#x", cb.lastSecondary)
	}
	if !d.flags.has(flagListening) {
		t.Fatal("expected flagListening set")
	}

	sendMasterByte(t, d, pins, clock, 0x41) // 'A'
	waitFor(t, d, clock, func() bool { return len(cb.writes) == 1 }, 300)

	if cb.writes[0] != 0x41 {
		t.Fatalf("expected Write(devnr, 0x41), got %#x", cb.writes[0])
	}
}

func TestRegisterISRDefersToTask(t *testing.T) {
	d, pins, clock, _ := newTestDevice(t, 8)
	pins.masterATN = true

	d.RegisterISR()
	if d.flags.has(flagATN) {
		t.Fatal("RegisterISR must not itself enter ATN handling")
	}

	d.Task()
	if !d.flags.has(flagATN) {
		t.Fatal("expected Task to service a pending ISR-flagged ATN")
	}
	_ = clock
}

func TestSourceRegistryDispatch(t *testing.T) {
	d, _, _, _ := newTestDevice(t, 8)
	defer UnregisterSource("chip0:line3")

	RegisterSource("chip0:line3", d)
	DispatchISR("chip0:line3")

	if !d.atnPending.testAndClear() {
		t.Fatal("expected DispatchISR to route to the registered Device")
	}

	UnregisterSource("chip0:line3")
	DispatchISR("chip0:line3") // must not panic on an unknown source
}

func TestSflagsEnableDisable(t *testing.T) {
	d, _, _, _ := newTestDevice(t, 8)

	d.EnableJiffyDOS(true)
	if !d.sflags.jiffyEnabled() {
		t.Fatal("expected jiffy enabled")
	}
	d.sflags.setJiffyDetected()
	d.sflags.clearDetected()
	if d.sflags.jiffyDetected() {
		t.Fatal("clearDetected must clear jiffy-detected")
	}
	if !d.sflags.jiffyEnabled() {
		t.Fatal("clearDetected must not clear the enabled bit")
	}

	d.EnableJiffyDOS(false)
	if d.sflags.jiffyEnabled() {
		t.Fatal("expected jiffy disabled")
	}

	d.EnableDolphinDOS(true)
	if !d.sflags.has(sflagDolphinEnabled) {
		t.Fatal("expected dolphin enabled")
	}
	d.EnableDolphinDOS(false)
	if d.sflags.has(sflagDolphinEnabled | sflagDolphinDetected | sflagDolphinBurstEnabled) {
		t.Fatal("expected all dolphin bits cleared")
	}

	d.EnableEpyxFastLoad(true)
	d.ArmEpyxFastLoad()
	if !d.sflags.has(sflagEpyxArmed) {
		t.Fatal("expected ArmEpyxFastLoad to set sflagEpyxArmed when enabled")
	}
	d.EnableEpyxFastLoad(false)
	if d.sflags.has(sflagEpyxEnabled | sflagEpyxArmed) {
		t.Fatal("expected epyx bits cleared")
	}
}
