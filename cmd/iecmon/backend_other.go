// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package main

import (
	"errors"
	"io"

	"github.com/gocbm/iecdevice/iec"
)

func openLinuxPins() (iec.Pins, io.Closer, error) {
	return nil, nil, errors.New("iecmon: the linux backend is only available on linux")
}
