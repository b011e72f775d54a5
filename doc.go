// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package iecdevice implements the peripheral (device) side of the
// Commodore IEC serial bus: a software bus engine in iec, a virtual
// file-device layer on top of it in iecfile, and a set of interchangeable
// iec.Pins backends in iecio (an in-process simulator, a Raspberry-Pi GPIO
// register backend, and an FTDI USB bit-bang backend).
//
// Package app describes the Personality contract an application implements
// to answer OPEN/READ/WRITE/CLOSE requests, and ships a reference
// implementation, memdisk, an in-memory directory of named byte blobs.
// cmd/iecmon is a standalone bus trace
// monitor for whichever backend is attached to it.
package iecdevice
