// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package main

import (
	"io"

	"github.com/gocbm/iecdevice/iec"
	iecglinux "github.com/gocbm/iecdevice/iecio/linux"
)

// defaultLinuxPins is the BCM GPIO wiring the linux backend always uses:
// chosen to sit next to the Pi's I2C/SPI header pins, out of the way of
// the more commonly used GPIO2/3/18/23 etc.
var defaultLinuxPins = iecglinux.Pins{ATN: 5, CLK: 6, DATA: 13, Reset: 19}

func openLinuxPins() (iec.Pins, io.Closer, error) {
	d, err := iecglinux.Open(defaultLinuxPins)
	if err != nil {
		return nil, nil, err
	}
	return d, d, nil
}
