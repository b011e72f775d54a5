// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package memdisk is a minimal in-memory app.Personality: a flat
// directory of named byte blobs with channel-15 handling for I, N:, S:,
// and R:. It exists only as a reference implementation and as the
// end-to-end fixture iecio/sim's round-trip tests dispatch against -- it
// is explicitly not a FAT/SD or floppy-controller
// backend.
package memdisk

import (
	"fmt"
	"strings"

	"github.com/gocbm/iecdevice/app"
)

var _ app.Personality = (*Disk)(nil)

type channelKey struct {
	devnr   byte
	channel byte
}

type handle struct {
	name         string
	data         []byte
	pos          int
	writeStarted bool
}

// Disk is a single in-memory drive: a name-to-bytes directory plus the
// per-device-per-channel handles currently open against it.
type Disk struct {
	files map[string][]byte
	open  map[channelKey]*handle

	lastCode    int
	lastMessage string
	lastTrack   byte
	lastSector  byte
}

// New returns an empty disk with drive status "00,OK,00,00".
func New() *Disk {
	d := &Disk{files: make(map[string][]byte), open: make(map[channelKey]*handle)}
	d.setOK()
	return d
}

// Put seeds a file directly, bypassing the wire protocol. A setup
// convenience for tests, not part of app.Personality.
func (d *Disk) Put(name string, data []byte) {
	d.files[name] = append([]byte(nil), data...)
}

// Get returns a file's current contents, for asserting what a SAVE wrote.
func (d *Disk) Get(name string) ([]byte, bool) {
	data, ok := d.files[name]
	return data, ok
}

func (d *Disk) setOK() { d.setStatus(0, "OK", 0, 0) }

func (d *Disk) setStatus(code int, message string, track, sector byte) {
	d.lastCode, d.lastMessage, d.lastTrack, d.lastSector = code, message, track, sector
}

func stripFilenameQualifiers(name string) (bare string, replace bool) {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "@") {
		replace = true
		name = name[1:]
	}
	if idx := strings.IndexByte(name, ','); idx >= 0 {
		name = name[:idx]
	}
	return name, replace
}

func (d *Disk) Open(devnr, channel byte, name string) bool {
	bare, replace := stripFilenameQualifiers(name)
	key := channelKey{devnr, channel}

	// Channel 1 is the SAVE channel: a missing name there is created by the
	// first Write rather than reported as not found.
	data, ok := d.files[bare]
	if !ok && !replace && channel != 1 && bare != "" {
		d.setStatus(62, "FILE NOT FOUND", 0, 0)
		return false
	}
	d.open[key] = &handle{name: bare, data: data}
	d.setOK()
	return true
}

func (d *Disk) Close(devnr, channel byte) {
	key := channelKey{devnr, channel}
	if h := d.open[key]; h != nil && h.writeStarted {
		d.files[h.name] = append([]byte(nil), h.data...)
	}
	delete(d.open, key)
}

func (d *Disk) Read(devnr, channel byte, buf []byte) (int, bool) {
	h := d.open[channelKey{devnr, channel}]
	if h == nil || h.pos >= len(h.data) {
		return 0, true
	}
	n := copy(buf, h.data[h.pos:])
	h.pos += n
	return n, h.pos >= len(h.data)
}

func (d *Disk) Write(devnr, channel byte, buf []byte, lastChunk bool) int {
	h := d.open[channelKey{devnr, channel}]
	if h == nil {
		return 0
	}
	if !h.writeStarted {
		h.data = nil
		h.writeStarted = true
	}
	h.data = append(h.data, buf...)
	return len(buf)
}

func (d *Disk) GetStatus(devnr byte) string {
	return fmt.Sprintf("%02d,%s,%02d,%02d\r", d.lastCode, d.lastMessage, d.lastTrack, d.lastSector)
}

func (d *Disk) Execute(devnr byte, cmd string) {
	switch {
	case cmd == "I":
		d.setOK()
	case strings.HasPrefix(cmd, "N:"):
		d.files = make(map[string][]byte)
		d.setOK()
	case strings.HasPrefix(cmd, "S:"):
		d.execScratch(strings.TrimPrefix(cmd, "S:"))
	case strings.HasPrefix(cmd, "R:"):
		d.execRename(strings.TrimPrefix(cmd, "R:"))
	default:
		d.setStatus(33, "SYNTAX ERROR", 0, 0)
	}
}

func (d *Disk) execScratch(pattern string) {
	if idx := strings.IndexByte(pattern, ','); idx >= 0 {
		pattern = pattern[:idx]
	}
	var n byte
	for name := range d.files {
		if matchesPattern(name, pattern) {
			delete(d.files, name)
			n++
		}
	}
	if n == 0 {
		d.setStatus(62, "FILE NOT FOUND", 0, 0)
		return
	}
	d.setStatus(1, "FILES SCRATCHED", n, 0)
}

func (d *Disk) execRename(rest string) {
	parts := strings.SplitN(rest, "=", 2)
	if len(parts) != 2 {
		d.setStatus(33, "SYNTAX ERROR", 0, 0)
		return
	}
	newName, oldName := parts[0], parts[1]
	data, ok := d.files[oldName]
	if !ok {
		d.setStatus(62, "FILE NOT FOUND", 0, 0)
		return
	}
	if _, exists := d.files[newName]; exists {
		d.setStatus(63, "FILE EXISTS", 0, 0)
		return
	}
	d.files[newName] = data
	delete(d.files, oldName)
	d.setOK()
}

// matchesPattern implements CBM DOS wildcard matching: "*" matches the
// remainder of the name, "?" matches exactly one character.
func matchesPattern(name, pattern string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			return true
		case '?':
			if len(name) == 0 {
				return false
			}
			name, pattern = name[1:], pattern[1:]
		default:
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			name, pattern = name[1:], pattern[1:]
		}
	}
	return len(name) == 0
}

func (d *Disk) Reset() {
	d.open = make(map[channelKey]*handle)
	d.setOK()
}
