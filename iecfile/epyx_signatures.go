// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iecfile

// epyxTracker recognizes the two M-W/M-E signature sequences Epyx
// FastLoad carts send over the command channel to upload their turbo
// receiver into drive RAM before the host expects a fast-loaded talk.
// The addresses/lengths/checksums below are opaque magic constants --
// recognized, not derived -- they are the exact bytes the real cartridge
// ROM sends and carry no meaning of their own here (original:
// IECFileDevice::checkMWcmd and the m_epyxCtr sequence in fileTask's
// IFD_EXEC case).
type epyxTracker struct {
	ctr byte
}

// track feeds one channel-15 command string through the signature state
// machine, in sequence with every other command the device receives.
// handled reports whether cmd was itself part of a recognized (partial
// or complete) sequence -- such commands are internal to the snoop and
// should not reach the personality. armed reports whether this call
// completed a sequence, meaning the caller should arm Epyx FastLoad.
func (t *epyxTracker) track(cmd string) (handled, armed bool) {
	b := []byte(cmd)
	switch {
	case t.ctr == 0 && checkMWcmd(b, 0x0180, 0x20, 0x2E): // EPYX V1, stage 1
		t.ctr = 11
		return true, false
	case t.ctr == 11 && checkMWcmd(b, 0x01A0, 0x20, 0xA5): // EPYX V1, stage 2
		t.ctr = 12
		return true, false
	case t.ctr == 12 && cmd == "M-E\xa2\x01": // EPYX V1, execute
		t.ctr = 0
		return true, true

	case t.ctr == 0 && checkMWcmd(b, 0x0180, 0x19, 0x53): // EPYX V2/V3, stage 1
		t.ctr = 21
		return true, false
	case t.ctr == 21 && checkMWcmd(b, 0x0199, 0x19, 0xA6): // EPYX V2/V3, stage 2
		t.ctr = 22
		return true, false
	case t.ctr == 22 && checkMWcmd(b, 0x01B2, 0x19, 0x8F): // EPYX V2/V3, stage 3
		t.ctr = 23
		return true, false
	case t.ctr == 23 && cmd == "M-E\xa9\x01": // EPYX V2/V3, execute
		t.ctr = 0
		return true, true

	default:
		t.ctr = 0
		return false, false
	}
}

// checkMWcmd reports whether cmd is an "M-W" memory-write command
// targeting addr with the given payload length and additive byte
// checksum.
func checkMWcmd(cmd []byte, addr uint16, length int, checksum byte) bool {
	if len(cmd) < length+6 {
		return false
	}
	if cmd[0] != 'M' || cmd[1] != '-' || cmd[2] != 'W' {
		return false
	}
	if cmd[3] != byte(addr) || cmd[4] != byte(addr>>8) {
		return false
	}
	if cmd[5] != byte(length) {
		return false
	}
	var sum byte
	for i := 0; i < length; i++ {
		sum += cmd[6+i]
	}
	return sum == checksum
}
