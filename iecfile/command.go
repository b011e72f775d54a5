// Copyright 2024 The IECDevice Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iecfile

import "strings"

// CommandKind classifies a channel-15 command string by its recognized
// prefix (spec §6's vocabulary table). iecfile does not implement DOS
// command semantics itself — that is Personality.Execute's job — but
// classifying the prefix here lets dispatch() intercept the handful of
// commands the core itself must react to (Dolphin burst mode) without
// every Personality re-parsing them.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdInitialize
	CmdNew
	CmdScratch
	CmdRename
	CmdCopy
	CmdMkdir
	CmdRmdir
	CmdChdir
	CmdReset
	CmdSoftReset
	CmdMemoryRead
	CmdMemoryWrite
	CmdMemoryExecute
	CmdBlockPointer
	CmdBlockRead
	CmdBlockWrite
	CmdExtended
	CmdDolphinBurstLoad
	CmdDolphinBurstSave
	CmdDolphinBurstOn
	CmdDolphinBurstOff
)

// ClassifyCommand maps a channel-15 command string to the vocabulary
// entry it matches, or CmdUnknown if none do.
func ClassifyCommand(s string) CommandKind {
	switch {
	case s == "I":
		return CmdInitialize
	case strings.HasPrefix(s, "N:"):
		return CmdNew
	case strings.HasPrefix(s, "S:"):
		return CmdScratch
	case strings.HasPrefix(s, "R:"):
		return CmdRename
	case strings.HasPrefix(s, "C:"):
		return CmdCopy
	case strings.HasPrefix(s, "MD:"):
		return CmdMkdir
	case strings.HasPrefix(s, "RD:"):
		return CmdRmdir
	case strings.HasPrefix(s, "CD:"), strings.HasPrefix(s, "CD_"):
		return CmdChdir
	case s == "UJ", strings.HasPrefix(s, "U:"):
		return CmdReset
	case s == "UI":
		return CmdSoftReset
	case strings.HasPrefix(s, "M-R"):
		return CmdMemoryRead
	case strings.HasPrefix(s, "M-W"):
		return CmdMemoryWrite
	case strings.HasPrefix(s, "M-E"):
		return CmdMemoryExecute
	case strings.HasPrefix(s, "B-P"):
		return CmdBlockPointer
	case strings.HasPrefix(s, "B-R"):
		return CmdBlockRead
	case strings.HasPrefix(s, "B-W"):
		return CmdBlockWrite
	case s == "XQ":
		return CmdDolphinBurstLoad
	case s == "XZ":
		return CmdDolphinBurstSave
	case s == "XF+":
		return CmdDolphinBurstOn
	case s == "XF-":
		return CmdDolphinBurstOff
	case strings.HasPrefix(s, "X+"), strings.HasPrefix(s, "XD"), strings.HasPrefix(s, "XE"), strings.HasPrefix(s, "XR"):
		return CmdExtended
	default:
		return CmdUnknown
	}
}

// dispatchCommandChannel runs the channel-15 command buffer through the
// two things the core itself must intercept — Epyx M-W/M-E signature
// tracking and the Dolphin burst commands — before forwarding anything
// left over to the personality (original: the handled/execute() split in
// IECFileDevice::fileTask's IFD_EXEC case).
func (fd *FileDevice) dispatchCommandChannel(devnr byte, r *deviceRecord) {
	name := string(r.nameBuf)

	if fd.epyxEnabled {
		handled, armed := r.epyx.track(name)
		if armed {
			fd.Device.ArmEpyxFastLoad()
		}
		if handled {
			return
		}
	}

	if fd.dolphinEnabled {
		switch ClassifyCommand(name) {
		case CmdDolphinBurstLoad:
			fd.Device.RequestBurstLoad()
			r.channel = 0
			return
		case CmdDolphinBurstSave:
			fd.Device.RequestBurstSave()
			r.channel = 1
			return
		case CmdDolphinBurstOn:
			fd.Device.SetBurstEnabled(true)
			fd.ClearStatus(devnr)
			return
		case CmdDolphinBurstOff:
			fd.Device.SetBurstEnabled(false)
			fd.ClearStatus(devnr)
			return
		}
	}

	fd.app.Execute(devnr, name)
}
