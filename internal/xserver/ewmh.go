//go:build linux

package xserver

import (
	"encoding/binary"
	"os"
)

// SetClientMachine writes the host name reported by os.Hostname as the
// WM_CLIENT_MACHINE property; the name is not resolved to a fully-qualified
// one.
func (c *Connection) SetClientMachine(window ResourceID, atoms *StandardAtoms) error {
	hostname, err := os.Hostname()
	if err != nil {
		return nil // non-fatal: some WMs don't care
	}
	return c.ChangeProperty(window, atoms.WMClientMachine, AtomString, 8, PropModeReplace, []byte(hostname))
}

// Rect is an axis-aligned rectangle in window coordinates, used for the
// opaque-region EWMH property below.
type Rect struct {
	X, Y, Width, Height int32
}

// SetOpaqueRegion writes _NET_WM_OPAQUE_REGION as a list of CARDINAL
// (x, y, width, height) tuples, one per rectangle.
func (c *Connection) SetOpaqueRegion(window ResourceID, atoms *StandardAtoms, rects []Rect) error {
	if atoms.NetWMOpaqueRegion == AtomNone {
		return nil
	}
	data := make([]byte, 0, len(rects)*16)
	for _, r := range rects {
		data = appendCardinal(data, uint32(r.X))
		data = appendCardinal(data, uint32(r.Y))
		data = appendCardinal(data, uint32(r.Width))
		data = appendCardinal(data, uint32(r.Height))
	}
	return c.ChangeProperty(window, atoms.NetWMOpaqueRegion, atoms.Cardinal, 32, PropModeReplace, data)
}

// SetFrameExtents writes _NET_FRAME_EXTENTS as the 4-CARDINAL
// (left, right, top, bottom) tuple.
func (c *Connection) SetFrameExtents(window ResourceID, atoms *StandardAtoms, left, right, top, bottom uint32) error {
	if atoms.NetFrameExtents == AtomNone {
		return nil
	}
	data := make([]byte, 0, 16)
	data = appendCardinal(data, left)
	data = appendCardinal(data, right)
	data = appendCardinal(data, top)
	data = appendCardinal(data, bottom)
	return c.ChangeProperty(window, atoms.NetFrameExtents, atoms.Cardinal, 32, PropModeReplace, data)
}

// SetBypassCompositor writes _NET_WM_BYPASS_COMPOSITOR. The hint is cleared
// (set to 0, "no preference") rather than removed when disabled, matching
// the property's defined value space.
func (c *Connection) SetBypassCompositor(window ResourceID, atoms *StandardAtoms, bypass bool) error {
	if atoms.NetWMBypassCompositor == AtomNone {
		return nil
	}
	var v uint32
	if bypass {
		v = 1
	}
	data := make([]byte, 0, 4)
	data = appendCardinal(data, v)
	return c.ChangeProperty(window, atoms.NetWMBypassCompositor, atoms.Cardinal, 32, PropModeReplace, data)
}

// SizeHints flag bits (ICCCM WM_NORMAL_HINTS, a subset).
const (
	HintPMinSize    = 1 << 4
	HintPMaxSize    = 1 << 5
	HintPResizeInc  = 1 << 6
	HintPSize       = 1 << 3
)

// SizeHints mirrors the ICCCM WM_SIZE_HINTS wire layout that WM_NORMAL_HINTS
// carries. Only the fields the toplevel role needs are exposed; reserved
// pad words are written as zero.
type SizeHints struct {
	Flags                            uint32
	X, Y                             int32
	Width, Height                    int32
	MinWidth, MinHeight              int32
	MaxWidth, MaxHeight              int32
	WidthInc, HeightInc              int32
}

// SetSizeHints writes WM_NORMAL_HINTS. The wire layout is 18 CARDINAL/INT32
// words; the aspect, base-size and gravity words after WidthInc/HeightInc
// are zeroed.
func (c *Connection) SetSizeHints(window ResourceID, atoms *StandardAtoms, hints SizeHints) error {
	data := make([]byte, 0, 18*4)
	data = appendCardinal(data, hints.Flags)
	data = appendCardinal(data, uint32(hints.X))
	data = appendCardinal(data, uint32(hints.Y))
	data = appendCardinal(data, uint32(hints.Width))
	data = appendCardinal(data, uint32(hints.Height))
	data = appendCardinal(data, uint32(hints.MinWidth))
	data = appendCardinal(data, uint32(hints.MinHeight))
	data = appendCardinal(data, uint32(hints.MaxWidth))
	data = appendCardinal(data, uint32(hints.MaxHeight))
	data = appendCardinal(data, uint32(hints.WidthInc))
	data = appendCardinal(data, uint32(hints.HeightInc))
	// min/max aspect (num,den x2) + base size (2) + win gravity (1) = 7 words, unused.
	for i := 0; i < 7; i++ {
		data = appendCardinal(data, 0)
	}
	return c.ChangeProperty(window, atoms.WMNormalHints, atoms.WMNormalHints, 32, PropModeReplace, data)
}

// Ping sends a _NET_WM_PING client message to the window, used by the
// toplevel role's liveness check.
func (c *Connection) Ping(window ResourceID, atoms *StandardAtoms, serial uint32) error {
	if atoms.NetWMPing == AtomNone {
		return nil
	}
	root := c.RootWindow()
	return c.SendClientMessage(window, root, atoms.WMProtocols, uint32(atoms.NetWMPing), serial, uint32(window), 0, 0)
}

func appendCardinal(data []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(data, b[:]...)
}
