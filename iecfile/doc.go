// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package iecfile translates the byte-oriented stream the bus engine
// (package iec) produces into framed file operations: OPEN, READ, WRITE,
// CLOSE and channel-15 EXECUTE, plus a per-device status buffer consumed
// on channel 15. It owns an *iec.Device and implements iec.Callbacks;
// application-specific behavior is delegated to an app.Personality.
package iecfile
