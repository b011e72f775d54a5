// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package iecio collects iec.Pins backends: sim (a software loopback bus
// and host-side master stub, for tests and dry runs), linux (a
// /dev/gpiomem-mapped GPIO backend) and ftdi (a USB bit-bang backend over
// an FTDI FT232H). The bus engine in package iec depends only on the
// iec.Pins/iec.ParallelPins interfaces; none of these backends are
// imported by it directly.
package iecio
