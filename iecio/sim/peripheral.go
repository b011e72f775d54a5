// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sim

import "time"

// PeripheralPins is the iec.Pins view of the bus a device under test
// drives. It implements iec.Pins but not iec.ParallelPins: the
// simulation models the four standard serial lines only, not the
// DolphinDOS parallel cable.
type PeripheralPins struct {
	bus *Bus
}

// NewPeripheralPins returns the device-under-test's view of bus.
func NewPeripheralPins(bus *Bus) *PeripheralPins {
	return &PeripheralPins{bus: bus}
}

func (p *PeripheralPins) ReadATN() bool   { return p.bus.read(p.bus.atn) }
func (p *PeripheralPins) ReadCLK() bool   { return p.bus.read(p.bus.clk) }
func (p *PeripheralPins) ReadDATA() bool  { return p.bus.read(p.bus.data) }
func (p *PeripheralPins) ReadReset() bool { return p.bus.read(p.bus.reset) }

func (p *PeripheralPins) DriveCLK(assert bool)  { p.bus.drive(p.bus.clk, idPeripheral, assert) }
func (p *PeripheralPins) DriveDATA(assert bool) { p.bus.drive(p.bus.data, idPeripheral, assert) }

// DriveCTRL is a no-op: the simulation has no hardware ATN-to-DATA assist
// line to model.
func (p *PeripheralPins) DriveCTRL(bool) {}

func (p *PeripheralPins) Now() time.Time { return p.bus.now() }
