package role

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/waybridge/internal/clock"
	"github.com/gogpu/waybridge/internal/release"
	"github.com/gogpu/waybridge/internal/surface"
	"github.com/gogpu/waybridge/internal/xserver"
)

// Window is the subset of internal/xserver.BackingWindow that XdgRole
// drives. Expressed as an interface so role logic can be tested without a
// real X connection.
type Window interface {
	ID() xserver.ResourceID
	Map() error
	Unmap() error
	Configure(x, y int16, width, height uint16) error
	SetOpaqueRegion(rects []xserver.Rect) error
	SetFrameExtents(left, right, top, bottom uint32) error
	SetBypassCompositor(bypass bool) error
	Ping(serial uint32) error
	Destroy() error
}

// ToplevelWindow extends Window with the WM-facing property setters
// ToplevelRole drives: title, class, decoration hints, fullscreen, and
// size hints. internal/xserver.BackingWindow satisfies this directly.
type ToplevelWindow interface {
	Window
	SetTitle(title string) error
	SetLegacyName(latin1 []byte) error
	SetClass(instance, class string) error
	SetMotifHints(hints *xserver.MotifWMHints) error
	SetFullscreen(fullscreen bool) error
	SetMaximized(maximized bool) error
	SetSizeHints(hints xserver.SizeHints) error
}

// ReconstrainHooks are the two callbacks external positioners (popups,
// tooltips) register: one fired when a configure is sent, one fired once
// the window is known to have actually moved or resized.
type ReconstrainHooks struct {
	OnConfigureSent func()
	OnMoveResize    func()
}

// Errors XdgRole's request handlers can raise.
var (
	ErrInvalidSerial = fmt.Errorf("role: invalid-serial")
)

// XdgRole owns the backing server window, render target collaborator,
// frame clock, and the configure/ack handshake bookkeeping. It implements
// surface.RoleHooks so a Surface can hold it as its role.
type XdgRole struct {
	refcount atomic.Int32

	surf       *surface.Surface
	window     Window
	frameClock *clock.FrameClock
	releases   *release.Tracker

	pendingGeometry surface.Rect
	currentGeometry surface.Rect
	boundsCache     surface.Rect
	tempBoundsHold  bool

	nextSerial      uint32
	confSerial      uint32
	waitingForAckConfigure bool
	waitingForAckCommit    bool

	reconstrain []ReconstrainHooks

	pendingPings []uint32

	mapped bool
}

// NewXdgRole constructs an XdgRole with an initial refcount of 1.
func NewXdgRole(surf *surface.Surface, window Window, fc *clock.FrameClock, releases *release.Tracker) *XdgRole {
	r := &XdgRole{
		surf:       surf,
		window:     window,
		frameClock: fc,
		releases:   releases,
	}
	r.refcount.Store(1)
	surf.SetRole(r)
	return r
}

// Ref bumps the retain count; backing resources free only once it returns
// to zero via Unref.
func (r *XdgRole) Ref() {
	r.refcount.Add(1)
}

// Unref releases one retain. Returns true if this was the final reference,
// in which case the caller must finish teardown (destroy the window, drain
// the release tracker).
func (r *XdgRole) Unref() bool {
	return r.refcount.Add(-1) == 0
}

// Window returns the backing server window.
func (r *XdgRole) Window() Window {
	return r.window
}

// EarlyCommit implements surface.RoleHooks: while a configure is
// outstanding, commits accumulate in cached state instead of landing on
// current.
func (r *XdgRole) EarlyCommit() bool {
	return r.waitingForAckConfigure
}

// Commit implements surface.RoleHooks, running after InternalCommit has
// merged pending into current. It clears WaitingForAckCommit and unfreezes
// the frame clock once the handshake completes.
func (r *XdgRole) Commit() {
	if r.waitingForAckCommit {
		r.waitingForAckCommit = false
		r.frameClock.Unfreeze()
	}
}

// Subframe/EndSubframe/ReleaseBuffer/Rescale/NoteFocus satisfy role.Hooks
// with the shared no-op defaults an XdgRole doesn't specialize on its own;
// ToplevelRole overrides what it needs.
func (r *XdgRole) Subframe()                                {}
func (r *XdgRole) EndSubframe()                             {}
func (r *XdgRole) ReleaseBuffer(buf surface.BufferHandle)   {}
func (r *XdgRole) Rescale()                                 {}
func (r *XdgRole) NoteFocus(focused bool)                   {}

// SendConfigure allocates the next monotonically-increasing serial, freezes
// the frame clock, marks the handshake outstanding, and returns the serial
// for the caller to encode into the compositor-protocol configure event.
func (r *XdgRole) SendConfigure() uint32 {
	r.nextSerial++
	r.confSerial = r.nextSerial
	r.waitingForAckConfigure = true
	r.waitingForAckCommit = true
	r.frameClock.Freeze()
	for _, h := range r.reconstrain {
		if h.OnConfigureSent != nil {
			h.OnConfigureSent()
		}
	}
	return r.confSerial
}

// AckConfigure validates serial against the outstanding configure and, on
// success, clears WaitingForAckConfigure (subcompositor invalidation and
// frame-callback flushing are the caller's — the XdgRole only tracks the
// handshake bits).
func (r *XdgRole) AckConfigure(serial uint32) error {
	if !r.waitingForAckConfigure || serial != r.confSerial {
		return ErrInvalidSerial
	}
	r.waitingForAckConfigure = false
	return nil
}

// WaitingForAckConfigure reports whether a configure is outstanding.
func (r *XdgRole) WaitingForAckConfigure() bool {
	return r.waitingForAckConfigure
}

// RegisterReconstrain adds a pair of positioner hooks.
func (r *XdgRole) RegisterReconstrain(h ReconstrainHooks) {
	r.reconstrain = append(r.reconstrain, h)
}

// SetBounds recomputes the server window's size from the subcompositor's
// bounding box, unless a temporary-bounds hold is in effect (suppressing
// resizes between setting a bounds size and receiving the configure).
func (r *XdgRole) SetBounds(b surface.Rect) error {
	r.boundsCache = b
	if r.tempBoundsHold {
		return nil
	}
	if err := r.window.Configure(int16(b.X), int16(b.Y), uint16(b.Width), uint16(b.Height)); err != nil {
		return err
	}
	for _, h := range r.reconstrain {
		if h.OnMoveResize != nil {
			h.OnMoveResize()
		}
	}
	return nil
}

// HoldTemporaryBounds suppresses SetBounds-driven resizes until the next
// configure event lands.
func (r *XdgRole) HoldTemporaryBounds(hold bool) {
	r.tempBoundsHold = hold
}

// SetOpaqueRegion forwards the surface's opaque region to the server
// window's _NET_WM_OPAQUE_REGION property.
func (r *XdgRole) SetOpaqueRegion(rects []xserver.Rect) error {
	return r.window.SetOpaqueRegion(rects)
}

// FrameSignal mirrors clock.FrameState for NoteFrame's argument, kept as a
// distinct type so role callers don't need to import internal/clock just
// to drive this one call.
type FrameSignal = clock.FrameState

// NoteFrame accepts compositor-manager frame-drawn/timings messages and
// drives the frame clock and bypass-compositor hint accordingly.
func (r *XdgRole) NoteFrame(signal FrameSignal, frameID uint64, millis uint32) {
	switch signal {
	case clock.Started:
		r.frameClock.StartFrame(false)
	case clock.Complete:
		if r.frameClock.NotifyDrawn(frameID, millis, false) {
			r.frameClock.EndFrame()
		}
	case clock.Presented:
		if r.frameClock.NotifyDrawn(frameID, millis, true) {
			r.frameClock.EndFrame()
			_ = r.window.SetBypassCompositor(false)
		}
	case clock.NotifyDisablePresent:
		r.frameClock.NotifyDisablePresent(frameID)
		_ = r.window.SetBypassCompositor(true)
	}
}

// Ping records a WM liveness ping and forwards it to the client through the
// wm-base; send is the caller-supplied function that actually writes the
// compositor-protocol ping request.
func (r *XdgRole) Ping(serial uint32, send func(serial uint32)) {
	r.pendingPings = append(r.pendingPings, serial)
	send(serial)
}

// HandlePong replies to every queued WM ping once the client acks — the WM
// ping protocol has no serial matching on the server side, so every
// outstanding ping is satisfied by one client pong.
func (r *XdgRole) HandlePong() {
	for _, serial := range r.pendingPings {
		_ = r.window.Ping(serial)
	}
	r.pendingPings = r.pendingPings[:0]
}

// MappingCommit implements the mapping policy from §4.3: first commit with
// no buffer unmaps; first commit with a buffer while no initial configure
// has been sent arms one via sendInitialConfigure; a configure-ack plus
// buffered commit maps.
func (r *XdgRole) MappingCommit(hasBuffer bool, sendInitialConfigure func()) error {
	switch {
	case !hasBuffer:
		if r.mapped {
			r.mapped = false
			r.surf.Unmap()
			return r.window.Unmap()
		}
		return nil
	case r.confSerial == 0 && !r.waitingForAckConfigure:
		sendInitialConfigure()
		return nil
	case !r.waitingForAckConfigure && !r.mapped:
		r.mapped = true
		return r.window.Map()
	default:
		return nil
	}
}

// Mapped reports whether the backing window is currently mapped.
func (r *XdgRole) Mapped() bool {
	return r.mapped
}

// Destroy tears down the backing window and drains the release tracker.
// Safe to call only once the refcount has reached zero.
func (r *XdgRole) Destroy() error {
	r.releases.Teardown()
	r.surf.Destroy()
	return r.window.Destroy()
}
