//go:build linux

package xserver

import (
	"fmt"
	"sync"
)

// BackingConfig describes the initial geometry and decoration request for a
// backing window. One BackingWindow exists per XdgRole.
type BackingConfig struct {
	Width, Height uint16
	Resizable     bool
}

// BackingWindow is the real server window that realizes one Surface's
// xdg_toplevel role. It owns nothing GPU-related — it is strictly the
// window-manager-visible shell (geometry, properties, event subscription)
// that the role engine drives through the configure/ack handshake.
type BackingWindow struct {
	mu sync.Mutex

	conn  *Connection
	atoms *StandardAtoms
	id    ResourceID

	width, height int
	destroyed     bool
}

// CreateBackingWindow creates the server-side window for a role. The
// Connection and StandardAtoms are shared across every BackingWindow in the
// process (one X connection per bridge, many windows).
func CreateBackingWindow(conn *Connection, atoms *StandardAtoms, cfg BackingConfig) (*BackingWindow, error) {
	windowConfig := WindowConfig{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Resizable: cfg.Resizable,
	}

	id, err := conn.CreateWindow(windowConfig)
	if err != nil {
		return nil, fmt.Errorf("xserver: create backing window: %w", err)
	}

	if err := conn.SetWMProtocols(id, atoms); err != nil {
		_ = conn.DestroyWindow(id)
		return nil, fmt.Errorf("xserver: set wm protocols: %w", err)
	}
	_ = conn.SetWMPID(id, atoms)
	_ = conn.SetClientMachine(id, atoms)
	_ = conn.SetNetWMWindowType(id, atoms.NetWMWindowTypeNormal, atoms)

	return &BackingWindow{
		conn:   conn,
		atoms:  atoms,
		id:     id,
		width:  int(cfg.Width),
		height: int(cfg.Height),
	}, nil
}

// ID returns the backing window's resource id (used as the SurfaceTable key).
func (w *BackingWindow) ID() ResourceID {
	return w.id
}

// Map shows the window.
func (w *BackingWindow) Map() error {
	return w.conn.MapWindow(w.id)
}

// Unmap hides the window without destroying it.
func (w *BackingWindow) Unmap() error {
	return w.conn.UnmapWindow(w.id)
}

// Configure resizes and/or repositions the backing window. This is the
// write side of the toplevel resize choreography (§4.3): the role computes
// the new geometry and calls Configure once ack+commit land.
func (w *BackingWindow) Configure(x, y int16, width, height uint16) error {
	w.mu.Lock()
	w.width, w.height = int(width), int(height)
	w.mu.Unlock()
	return w.conn.ConfigureWindow(w.id, x, y, width, height)
}

// Size returns the last-known geometry.
func (w *BackingWindow) Size() (width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

// SetTitle writes WM_NAME and _NET_WM_NAME.
func (w *BackingWindow) SetTitle(title string) error {
	return w.conn.SetWindowTitle(w.id, title, w.atoms)
}

// SetLegacyName writes the Latin-1 WM_NAME fallback separately from the
// UTF-8 _NET_WM_NAME, for window managers that only understand ICCCM names.
func (w *BackingWindow) SetLegacyName(latin1 []byte) error {
	return w.conn.ChangeProperty(w.id, AtomWMName, AtomString, 8, PropModeReplace, latin1)
}

// SetClass writes WM_CLASS (app id mapping).
func (w *BackingWindow) SetClass(instance, class string) error {
	return w.conn.SetWMClass(w.id, instance, class)
}

// SetMotifHints writes the decoration mode as _MOTIF_WM_HINTS. A nil hints
// writes nothing and leaves the property as it was.
func (w *BackingWindow) SetMotifHints(hints *MotifWMHints) error {
	if hints == nil {
		return nil
	}
	return w.conn.SetMotifWMHints(w.id, hints, w.atoms)
}

// SetFullscreen toggles the _NET_WM_STATE_FULLSCREEN hint.
func (w *BackingWindow) SetFullscreen(fullscreen bool) error {
	return w.conn.SetFullscreen(w.id, fullscreen, w.atoms)
}

// SetMaximized toggles both _NET_WM_STATE_MAXIMIZED_VERT/HORZ hints.
func (w *BackingWindow) SetMaximized(maximized bool) error {
	return w.conn.SetMaximized(w.id, maximized, w.atoms)
}

// SetOpaqueRegion writes _NET_WM_OPAQUE_REGION from the surface's opaque
// region rectangles.
func (w *BackingWindow) SetOpaqueRegion(rects []Rect) error {
	return w.conn.SetOpaqueRegion(w.id, w.atoms, rects)
}

// SetFrameExtents writes _NET_FRAME_EXTENTS.
func (w *BackingWindow) SetFrameExtents(left, right, top, bottom uint32) error {
	return w.conn.SetFrameExtents(w.id, w.atoms, left, right, top, bottom)
}

// SetBypassCompositor writes _NET_WM_BYPASS_COMPOSITOR.
func (w *BackingWindow) SetBypassCompositor(bypass bool) error {
	return w.conn.SetBypassCompositor(w.id, w.atoms, bypass)
}

// SetSizeHints writes WM_NORMAL_HINTS.
func (w *BackingWindow) SetSizeHints(hints SizeHints) error {
	return w.conn.SetSizeHints(w.id, w.atoms, hints)
}

// Ping sends a liveness ping via _NET_WM_PING.
func (w *BackingWindow) Ping(serial uint32) error {
	return w.conn.Ping(w.id, w.atoms, serial)
}

// Destroy destroys the backing window. Safe to call more than once.
func (w *BackingWindow) Destroy() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return nil
	}
	w.destroyed = true
	return w.conn.DestroyWindow(w.id)
}
