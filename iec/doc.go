// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package iec implements the peripheral side of the Commodore IEC serial
// bus: the open-collector ATN/CLK/DATA handshake, the JiffyDOS, DolphinDOS
// and Epyx FastLoad fast-loader protocols, and the ATN-triggered command
// framing that higher layers (see package iecfile) turn into file
// operations.
//
// A Device owns the bus lines through the Pins contract and is driven by
// repeated calls to Task, which must happen at least once a millisecond
// unless ATN is wired to an interrupt-capable source (see RegisterISR).
package iec
