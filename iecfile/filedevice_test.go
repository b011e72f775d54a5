// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iecfile

import "testing"

func TestOpenFileNotFoundSignalsImmediateEOF(t *testing.T) {
	p := newFakePersonality()
	fd := newTestFileDevice(t, p, 8)

	fd.Listen(8, 0xF2) // OPEN channel 2
	fd.Unlisten(8)
	fd.dispatch(8)

	if n := fd.CanRead(8); n != 0 {
		t.Fatalf("expected CanRead 0 for a missing file, got %d", n)
	}
}

func TestReadDeliversFileBytesThenEOF(t *testing.T) {
	p := newFakePersonality()
	p.files["PROGRAM"] = []byte{0x41, 0x42}
	fd := newTestFileDevice(t, p, 8)

	fd.Listen(8, 0xF3) // OPEN channel 3
	fd.Write(8, 'P')
	fd.Write(8, 'R')
	fd.Write(8, 'O')
	fd.Write(8, 'G')
	fd.Write(8, 'R')
	fd.Write(8, 'A')
	fd.Write(8, 'M')
	fd.Unlisten(8)
	fd.dispatch(8)

	fd.Talk(8, 3)
	if n := fd.CanRead(8); n != 2 {
		t.Fatalf("expected both look-ahead bytes primed, got CanRead=%d", n)
	}
	if b := fd.Read(8); b != 0x41 {
		t.Fatalf("expected first byte 0x41, got %#x", b)
	}
	fd.dispatch(8) // drains the cmdRead queued by the one-byte refill
	if n := fd.CanRead(8); n != 1 {
		t.Fatalf("expected one byte left (EOF already reached), got %d", n)
	}
	if b := fd.Read(8); b != 0x42 {
		t.Fatalf("expected second byte 0x42, got %#x", b)
	}
	if n := fd.CanRead(8); n != 0 {
		t.Fatalf("expected CanRead 0 once the file is exhausted, got %d", n)
	}
}

func TestWriteQueuesAndDispatchesToPersonality(t *testing.T) {
	p := newFakePersonality()
	fd := newTestFileDevice(t, p, 8)

	fd.Listen(8, 0xF5) // OPEN channel 5
	fd.Unlisten(8)
	fd.dispatch(8)

	fd.Write(8, 0x99)
	fd.dispatch(8)

	if len(p.writes) != 1 || p.writes[0] != 0x99 {
		t.Fatalf("expected the byte to reach the personality, got %v", p.writes)
	}
}

func TestCloseInvokesPersonality(t *testing.T) {
	p := newFakePersonality()
	fd := newTestFileDevice(t, p, 8)

	fd.Listen(8, 0xF1)
	fd.Unlisten(8)
	fd.dispatch(8)

	fd.Listen(8, 0xE1) // CLOSE channel 1
	fd.dispatch(8)

	if len(p.closes) != 1 || p.closes[0] != 1 {
		t.Fatalf("expected Close(channel=1), got %v", p.closes)
	}
}

func TestStatusChannelPrimesOnceAndDrains(t *testing.T) {
	p := newFakePersonality()
	p.status = "21,READ ERROR,00,00\r"
	fd := newTestFileDevice(t, p, 8)

	fd.Talk(8, 15)
	n := fd.CanRead(8)
	if n != int8(len(p.status)) {
		t.Fatalf("expected CanRead to report the full status length, got %d", n)
	}
	for i := 0; i < len(p.status); i++ {
		if b := fd.Read(8); b != p.status[i] {
			t.Fatalf("status byte %d mismatch: got %#x want %#x", i, b, p.status[i])
		}
	}
	if n := fd.CanRead(8); n != int8(len(p.status)) {
		t.Fatalf("expected a drained status buffer to refresh from GetStatus, got %d", n)
	}
}

func TestUnrecognizedCommandForwardsToExecute(t *testing.T) {
	p := newFakePersonality()
	fd := newTestFileDevice(t, p, 8)

	sendCommand(fd, 8, "S:OLDNAME")

	if len(p.execs) != 1 || p.execs[0] != "S:OLDNAME" {
		t.Fatalf("expected the scratch command forwarded to Execute, got %v", p.execs)
	}
}

func TestDolphinBurstCommandsInterceptedBeforeExecute(t *testing.T) {
	p := newFakePersonality()
	fd := newTestFileDevice(t, p, 8)
	fd.EnableDolphinDOS(true)

	sendCommand(fd, 8, "XQ")
	sendCommand(fd, 8, "XZ")
	sendCommand(fd, 8, "XF+")
	sendCommand(fd, 8, "XF-")

	if len(p.execs) != 0 {
		t.Fatalf("expected Dolphin burst commands never to reach Execute, got %v", p.execs)
	}
}

func TestEpyxSignatureSequenceHandledNotForwarded(t *testing.T) {
	p := newFakePersonality()
	fd := newTestFileDevice(t, p, 8)
	fd.EnableEpyxFastLoad(true)

	payload := make([]byte, 0x20)
	payload[0] = 0x2E // additive checksum of the payload must equal 0x2E
	mw1 := append([]byte{'M', '-', 'W', 0x80, 0x01, 0x20}, payload...)

	sendCommandBytes(fd, 8, mw1)

	if len(p.execs) != 0 {
		t.Fatalf("expected the recognized M-W stage not to reach Execute, got %v", p.execs)
	}
}

func TestResetClearsRecordAndInvokesPersonality(t *testing.T) {
	p := newFakePersonality()
	fd := newTestFileDevice(t, p, 8)

	fd.Listen(8, 0xF2)
	fd.Unlisten(8)
	fd.dispatch(8)

	fd.Reset(8)

	if !p.resetCalled {
		t.Fatal("expected Personality.Reset to be invoked")
	}
	if n := fd.CanRead(8); n != 0 {
		t.Fatalf("expected a fresh record after Reset, got CanRead=%d", n)
	}
}

// sendCommand drives a full LISTEN/channel-15/UNLISTEN sequence carrying
// cmd, as the bus engine would deliver it byte by byte.
func sendCommand(fd *FileDevice, devnr byte, cmd string) {
	sendCommandBytes(fd, devnr, append([]byte(cmd), 0x0d))
}

func sendCommandBytes(fd *FileDevice, devnr byte, cmd []byte) {
	fd.Listen(devnr, 0xF0|15)
	for _, b := range cmd {
		fd.Write(devnr, b)
	}
	if len(cmd) == 0 || cmd[len(cmd)-1] != 0x0d {
		fd.Write(devnr, 0x0d)
	}
	fd.Unlisten(devnr)
	fd.dispatch(devnr)
}
