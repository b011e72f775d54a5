// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iecfile

import "time"

// fakePins is the minimum viable iec.Pins: the tests in this package drive
// FileDevice through its Callbacks methods directly rather than through a
// bit-banged handshake, so the wire state itself is never exercised.
type fakePins struct{ t time.Time }

func (p *fakePins) ReadATN() bool   { return true }
func (p *fakePins) ReadCLK() bool   { return true }
func (p *fakePins) ReadDATA() bool  { return true }
func (p *fakePins) ReadReset() bool { return true }
func (p *fakePins) DriveCLK(bool)   {}
func (p *fakePins) DriveDATA(bool)  {}
func (p *fakePins) DriveCTRL(bool)  {}
func (p *fakePins) Now() time.Time  { return p.t }

// fakeFile is one named blob a fakePersonality serves.
type fakeFile struct {
	data []byte
	pos  int
}

// fakePersonality is a minimal scriptable app.Personality: a directory of
// named byte blobs plus a log of every call, for asserting dispatch
// behavior without a real disk-image implementation.
type fakePersonality struct {
	files  map[string][]byte
	open   map[byte]*fakeFile // channel -> open file, nil entry means "open failed"
	opened map[byte]bool

	status      string
	execs       []string
	writes      []byte
	closes      []byte
	resetCalled bool
}

func newFakePersonality() *fakePersonality {
	return &fakePersonality{
		files:  make(map[string][]byte),
		open:   make(map[byte]*fakeFile),
		opened: make(map[byte]bool),
		status: "00,OK,00,00\r",
	}
}

func (p *fakePersonality) Open(devnr, channel byte, name string) bool {
	p.opened[channel] = true
	data, ok := p.files[name]
	if !ok {
		p.open[channel] = nil
		return false
	}
	p.open[channel] = &fakeFile{data: data}
	return true
}

func (p *fakePersonality) Close(devnr, channel byte) {
	p.closes = append(p.closes, channel)
	delete(p.open, channel)
	delete(p.opened, channel)
}

func (p *fakePersonality) Read(devnr, channel byte, buf []byte) (int, bool) {
	f := p.open[channel]
	if f == nil || f.pos >= len(f.data) {
		return 0, true
	}
	n := copy(buf, f.data[f.pos:])
	f.pos += n
	return n, f.pos >= len(f.data)
}

func (p *fakePersonality) Write(devnr, channel byte, buf []byte, lastChunk bool) int {
	p.writes = append(p.writes, buf...)
	return len(buf)
}

func (p *fakePersonality) GetStatus(devnr byte) string { return p.status }

func (p *fakePersonality) Execute(devnr byte, cmd string) { p.execs = append(p.execs, cmd) }

func (p *fakePersonality) Reset() { p.resetCalled = true }

func newTestFileDevice(t interface {
	Fatalf(string, ...interface{})
}, personality *fakePersonality, numbers ...byte) *FileDevice {
	fd, err := NewFileDevice(&fakePins{}, personality, numbers...)
	if err != nil {
		t.Fatalf("NewFileDevice: %v", err)
	}
	return fd
}
