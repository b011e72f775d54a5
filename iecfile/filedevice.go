// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iecfile

import (
	"github.com/gocbm/iecdevice/app"
	"github.com/gocbm/iecdevice/iec"
)

// command is the pending fileTask dispatch, set by the Callbacks methods
// (which run inside the bus engine's byte-boundary safe-yield-points) and
// drained by dispatch() (original: IECFileDevice's IFD_* enum).
type command int

const (
	cmdNone command = iota
	cmdOpen
	cmdRead
	cmdWrite
	cmdClose
	cmdExec
)

const maxChannel = 15
const maxNameLen = 40
const maxStatusLen = 32

// channelState is the two-byte look-ahead buffer for one channel.
// length == -1 means "not yet primed since the last Open".
type channelState struct {
	buf    [2]byte
	length int8
}

// deviceRecord is the per-claimed-devnr bookkeeping a FileDevice keeps.
type deviceRecord struct {
	channel byte
	cmd     command
	opening bool

	nameBuf []byte
	channels [maxChannel + 1]channelState

	statusBuf []byte
	statusPtr int

	epyx epyxTracker
}

func newDeviceRecord() *deviceRecord {
	return &deviceRecord{nameBuf: make([]byte, 0, maxNameLen)}
}

// FileDevice is the file-device layer of §4.5: it owns a bus engine and
// implements iec.Callbacks itself, translating the raw handshake into
// OPEN/READ/WRITE/CLOSE/EXECUTE calls against a Personality.
type FileDevice struct {
	*iec.Device

	app app.Personality
	recs map[byte]*deviceRecord

	dolphinEnabled bool
	epyxEnabled    bool

	// deferredDispatch mirrors the original's canServeATN: when true, the
	// pending command is drained once per Task() call instead of eagerly
	// inside CanRead/CanWrite. Both paths are always safe to run here
	// (dispatch() is idempotent when no command is pending), so this
	// module runs both rather than choosing one via a hardware-capability
	// probe — see DESIGN.md for why that nuance wasn't carried forward.
	deferredDispatch bool
}

// NewFileDevice creates a file-device layer over pins, claiming numbers
// and routing all file operations to personality.
func NewFileDevice(pins iec.Pins, personality app.Personality, numbers ...byte) (*FileDevice, error) {
	fd := &FileDevice{app: personality, recs: make(map[byte]*deviceRecord, len(numbers))}
	for _, n := range numbers {
		fd.recs[n] = newDeviceRecord()
	}
	d, err := iec.NewDevice(pins, fd, numbers...)
	if err != nil {
		return nil, err
	}
	fd.Device = d
	return fd, nil
}

// EnableDolphinDOS turns on DolphinDOS burst-mode detection both in the
// bus engine and in this layer's "XQ"/"XZ"/"XF+"/"XF-" command snooping.
func (fd *FileDevice) EnableDolphinDOS(on bool) {
	fd.dolphinEnabled = on
	fd.Device.EnableDolphinDOS(on)
}

// EnableEpyxFastLoad turns on Epyx FastLoad M-W/M-E signature tracking in
// this layer and arms the engine's data-transfer mode on a match.
func (fd *FileDevice) EnableEpyxFastLoad(on bool) {
	fd.epyxEnabled = on
	fd.Device.EnableEpyxFastLoad(on)
}

// SetDeferredDispatch selects when the pending file command runs: true
// drains it once per Task() call (after the bus engine has serviced any
// ATN transition, needing a hardware DATA-assist or ATN interrupt to stay
// within the 1ms budget), false drains it eagerly inside CanRead/CanWrite.
// Task() always drains it; the flag only switches the eager pass inside
// CanRead/CanWrite off (true) or on (false).
func (fd *FileDevice) SetDeferredDispatch(on bool) { fd.deferredDispatch = on }

func (fd *FileDevice) rec(devnr byte) *deviceRecord {
	r := fd.recs[devnr]
	if r == nil {
		// a devnr the engine validated against NewDevice's claim list but
		// that was never added to recs is a construction bug, not a
		// runtime condition to recover from.
		panic("iecfile: unclaimed device number")
	}
	return r
}

// SetStatus overwrites the status buffer read back on channel 15,
// bypassing a Personality.GetStatus call the next time it's queried until
// this buffer has fully drained (original: IECFileDevice::setStatus).
func (fd *FileDevice) SetStatus(devnr byte, status string) {
	r := fd.rec(devnr)
	if len(status) > maxStatusLen {
		status = status[:maxStatusLen]
	}
	r.statusBuf = []byte(status)
	r.statusPtr = 0
}

// ClearStatus forces the next channel-15 read to invoke GetStatus again.
func (fd *FileDevice) ClearStatus(devnr byte) {
	r := fd.rec(devnr)
	r.statusBuf = nil
	r.statusPtr = 0
}

// Task runs the bus engine, then drains any pending file command.
func (fd *FileDevice) Task() {
	fd.Device.Task()
	for devnr := range fd.recs {
		fd.dispatch(devnr)
	}
}

// --- iec.Callbacks ---

func (fd *FileDevice) Listen(devnr, secondary byte) {
	r := fd.rec(devnr)
	r.channel = secondary & 0x0F
	switch {
	case r.channel == maxChannel:
		r.nameBuf = r.nameBuf[:0]
	case secondary&0xF0 == 0xF0: // OPEN
		r.opening = true
		r.nameBuf = r.nameBuf[:0]
	case secondary&0xF0 == 0xE0: // CLOSE
		r.cmd = cmdClose
	}
}

func (fd *FileDevice) Talk(devnr, secondary byte) {
	fd.rec(devnr).channel = secondary & 0x0F
}

func (fd *FileDevice) Untalk(devnr byte) {}

func (fd *FileDevice) Unlisten(devnr byte) {
	r := fd.rec(devnr)
	switch {
	case r.channel == maxChannel:
		if len(r.nameBuf) > 0 {
			if r.nameBuf[len(r.nameBuf)-1] == 0x0D {
				r.nameBuf = r.nameBuf[:len(r.nameBuf)-1]
			}
			r.cmd = cmdExec
		}
	case r.opening:
		r.opening = false
		r.cmd = cmdOpen
	}
}

func (fd *FileDevice) CanWrite(devnr byte) int8 {
	if !fd.deferredDispatch {
		fd.dispatch(devnr)
	}
	r := fd.rec(devnr)
	if r.opening || r.channel == maxChannel || r.channels[r.channel].length < 1 {
		return 1
	}
	return 0
}

func (fd *FileDevice) CanRead(devnr byte) int8 {
	if !fd.deferredDispatch {
		fd.dispatch(devnr)
	}
	r := fd.rec(devnr)

	if r.channel == maxChannel {
		if r.statusPtr >= len(r.statusBuf) {
			status := fd.app.GetStatus(devnr)
			if len(status) > maxStatusLen {
				status = status[:maxStatusLen]
			}
			r.statusBuf = []byte(status)
			r.statusPtr = 0
		}
		return int8(len(r.statusBuf) - r.statusPtr)
	}

	ch := &r.channels[r.channel]
	if ch.length < 0 {
		ch.length = fd.primeLookahead(devnr, r.channel, ch)
	}
	return ch.length
}

// primeLookahead fills a channel's two-byte buffer on the first CanRead
// after Open (§4.5: "First canRead after OPEN pre-reads up to 2 bytes").
func (fd *FileDevice) primeLookahead(devnr, channel byte, ch *channelState) int8 {
	var one [1]byte
	n, _ := fd.app.Read(devnr, channel, one[:])
	if n == 0 {
		return 0
	}
	ch.buf[0] = one[0]
	n, _ = fd.app.Read(devnr, channel, one[:])
	if n == 0 {
		return 1
	}
	ch.buf[1] = one[0]
	return 2
}

func (fd *FileDevice) Write(devnr byte, data byte) {
	r := fd.rec(devnr)
	if r.channel < maxChannel && !r.opening {
		ch := &r.channels[r.channel]
		ch.buf[0] = data
		ch.length = 1
		r.cmd = cmdWrite
	} else if len(r.nameBuf) < maxNameLen {
		r.nameBuf = append(r.nameBuf, data)
	}
}

func (fd *FileDevice) Read(devnr byte) byte {
	r := fd.rec(devnr)
	if r.channel == maxChannel {
		b := r.statusBuf[r.statusPtr]
		r.statusPtr++
		return b
	}
	ch := &r.channels[r.channel]
	b := ch.buf[0]
	if ch.length == 2 {
		ch.buf[0] = ch.buf[1]
		ch.length = 1
		r.cmd = cmdRead
	} else {
		ch.length = 0
	}
	return b
}

// Peek returns the next look-ahead byte on devnr's current channel
// without consuming it (original: IECFileDevice::peek; supplemental,
// dropped by the distillation).
func (fd *FileDevice) Peek(devnr byte) byte {
	r := fd.rec(devnr)
	if r.channel == maxChannel {
		return r.statusBuf[r.statusPtr]
	}
	return r.channels[r.channel].buf[0]
}

func (fd *FileDevice) Reset(devnr byte) {
	r := fd.rec(devnr)
	*r = *newDeviceRecord()
	fd.app.Reset()
}

// dispatch drains the one pending command for devnr against the
// personality (original: IECFileDevice::fileTask).
func (fd *FileDevice) dispatch(devnr byte) {
	r := fd.rec(devnr)
	switch r.cmd {
	case cmdOpen:
		ch := &r.channels[r.channel]
		if fd.app.Open(devnr, r.channel, string(r.nameBuf)) {
			ch.length = -1
		} else {
			ch.length = 0
		}

	case cmdRead:
		ch := &r.channels[r.channel]
		var one [1]byte
		n, _ := fd.app.Read(devnr, r.channel, one[:])
		if n > 0 {
			ch.buf[ch.length] = one[0]
			ch.length++
		}

	case cmdWrite:
		ch := &r.channels[r.channel]
		if fd.app.Write(devnr, r.channel, ch.buf[:1], false) == 1 {
			ch.length = 0
		}

	case cmdClose:
		fd.app.Close(devnr, r.channel)
		r.channels[r.channel].length = 0

	case cmdExec:
		fd.dispatchCommandChannel(devnr, r)
	}
	r.cmd = cmdNone
}
