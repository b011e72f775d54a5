// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iec

import "sync"

// Source identifies an interrupt source an ATN line can be wired to (a
// GPIO chip+line pair, a board-specific IRQ number, ...). Backends that
// can register a genuine edge interrupt use this registry to route the
// notification back to the right Device, instead of a process-wide static
// singleton (§9: "the original code uses two static slots to route ATN
// interrupts back to instances because ISR handlers cannot close over
// self"). In Go an interrupt callback usually *can* close over a Device
// directly and should just call Device.RegisterISR itself; this registry
// exists for backends whose underlying callback mechanism only ever hands
// back an opaque source identifier (e.g. a cgo trampoline shared across
// all lines of a chip), mirroring periph-extra/hostextra/d2xx/driver.go's
// drv.all registry pattern.
type Source any

var (
	registryMu sync.Mutex
	registry   = map[Source]*Device{}
)

// RegisterSource associates an interrupt source with the Device it should
// notify. Call once when wiring up a backend's edge-interrupt mechanism.
func RegisterSource(src Source, d *Device) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[src] = d
}

// UnregisterSource removes a previously registered source, e.g. on
// shutdown or when a Device is discarded.
func UnregisterSource(src Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, src)
}

// DispatchISR looks up the Device registered for src and calls its
// RegisterISR. It is safe to call from any goroutine, including one
// fed directly by a cgo callback trampoline; it does no allocation and
// takes only a short-held mutex, per §5's latency budget for ATN
// servicing.
func DispatchISR(src Source) {
	registryMu.Lock()
	d := registry[src]
	registryMu.Unlock()
	if d != nil {
		d.RegisterISR()
	}
}
