// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// iecmon attaches to an iec.Pins backend and prints a colorized trace of
// ATN/CLK/DATA/RESET transitions to the terminal, in the spirit of
// cmd/d2xx/main.go's device-probe report and devices/screen.Dev's
// "render bus/pixel state as terminal color" trick.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/gousb"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/gocbm/iecdevice/iec"
	"github.com/gocbm/iecdevice/iecio/ftdi"
	"github.com/gocbm/iecdevice/iecio/sim"
)

var (
	colorAsserted = color.NRGBA{R: 220, G: 40, B: 40, A: 255} // line driven low
	colorReleased = color.NRGBA{R: 60, G: 200, B: 60, A: 255} // line released high
)

// block renders one bus line's level as a colored terminal cell, the same
// trick devices/screen.Dev uses to preview LED pixels on a console.
func block(released bool) string {
	if released {
		return ansi256.Default.Block(colorReleased)
	}
	return ansi256.Default.Block(colorAsserted)
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

func openBackend(name string) (iec.Pins, io.Closer, error) {
	switch name {
	case "sim":
		bus := sim.NewBus()
		return sim.NewPeripheralPins(bus), noopCloser{}, nil
	case "linux":
		return openLinuxPins()
	case "ftdi":
		d, err := ftdi.Open(gousb.ID(0x0403), gousb.ID(0x6014)) // FTDI FT232H
		if err != nil {
			return nil, nil, err
		}
		return d, d, nil
	default:
		return nil, nil, fmt.Errorf("iecmon: unknown backend %q (want sim, linux or ftdi)", name)
	}
}

func trace(w io.Writer, pins iec.Pins, poll time.Duration) error {
	var lastATN, lastCLK, lastDATA, lastReset bool
	first := true
	for {
		atn, clk, data, reset := pins.ReadATN(), pins.ReadCLK(), pins.ReadDATA(), pins.ReadReset()
		if first || atn != lastATN || clk != lastCLK || data != lastDATA || reset != lastReset {
			fmt.Fprintf(w, "%s ATN  %s CLK  %s DATA  %s RESET\033[0m\n",
				block(atn), block(clk), block(data), block(reset))
			lastATN, lastCLK, lastDATA, lastReset = atn, clk, data, reset
			first = false
		}
		time.Sleep(poll)
	}
}

func mainImpl() error {
	backend := flag.String("backend", "sim", "iec.Pins backend to attach to: sim, linux or ftdi")
	pollHz := flag.Int("hz", 1000, "poll rate, in Hz")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}
	if *pollHz <= 0 {
		return errors.New("-hz must be positive")
	}

	pins, closer, err := openBackend(*backend)
	if err != nil {
		return err
	}
	defer closer.Close()

	var w io.Writer = os.Stdout
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		w = colorable.NewColorableStdout()
	}

	log.Printf("iecmon: attached to %q backend, polling at %dHz", *backend, *pollHz)
	return trace(w, pins, time.Second/time.Duration(*pollHz))
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "iecmon: %s.\n", err)
		os.Exit(1)
	}
}
