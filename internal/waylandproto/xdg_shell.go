//go:build linux

package waylandproto

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gogpu/waybridge/internal/clock"
	"github.com/gogpu/waybridge/internal/release"
	"github.com/gogpu/waybridge/internal/role"
	"github.com/gogpu/waybridge/internal/surface"
	"github.com/gogpu/waybridge/internal/xserver"
)

// xdg_wm_base opcodes (requests)
const (
	xdgWmBaseDestroy          Opcode = 0 // destroy()
	xdgWmBaseCreatePositioner Opcode = 1 // create_positioner(id: new_id<xdg_positioner>)
	xdgWmBaseGetXdgSurface    Opcode = 2 // get_xdg_surface(id: new_id<xdg_surface>, surface: object<wl_surface>)
	xdgWmBasePong             Opcode = 3 // pong(serial: uint)
)

// xdg_wm_base event opcodes
const (
	xdgWmBaseEventPing Opcode = 0 // ping(serial: uint)
)

// xdg_wm_base error codes.
const (
	xdgWmBaseErrorInvalidPositioner Opcode = 5 // popups are not supported by this bridge
)

// xdg_surface opcodes (requests)
const (
	xdgSurfaceDestroy           Opcode = 0 // destroy()
	xdgSurfaceGetToplevel       Opcode = 1 // get_toplevel(id: new_id<xdg_toplevel>)
	xdgSurfaceGetPopup          Opcode = 2 // get_popup(id: new_id<xdg_popup>, parent: object<xdg_surface>, positioner: object<xdg_positioner>)
	xdgSurfaceSetWindowGeometry Opcode = 3 // set_window_geometry(x: int, y: int, width: int, height: int)
	xdgSurfaceAckConfigure      Opcode = 4 // ack_configure(serial: uint)
)

// xdg_surface event opcodes
const (
	xdgSurfaceEventConfigure Opcode = 0 // configure(serial: uint)
)

// xdg_surface error codes.
const (
	xdgSurfaceErrorNotConstructed     Opcode = 1
	xdgSurfaceErrorAlreadyConstructed Opcode = 2
	xdgSurfaceErrorInvalidSerial      Opcode = 4
)

// xdg_toplevel opcodes (requests)
const (
	xdgToplevelDestroy         Opcode = 0  // destroy()
	xdgToplevelSetParent       Opcode = 1  // set_parent(parent: object<xdg_toplevel>)
	xdgToplevelSetTitle        Opcode = 2  // set_title(title: string)
	xdgToplevelSetAppID        Opcode = 3  // set_app_id(app_id: string)
	xdgToplevelShowWindowMenu  Opcode = 4  // show_window_menu(seat: object<wl_seat>, serial: uint, x: int, y: int)
	xdgToplevelMove            Opcode = 5  // move(seat: object<wl_seat>, serial: uint)
	xdgToplevelResize          Opcode = 6  // resize(seat: object<wl_seat>, serial: uint, edges: uint)
	xdgToplevelSetMaxSize      Opcode = 7  // set_max_size(width: int, height: int)
	xdgToplevelSetMinSize      Opcode = 8  // set_min_size(width: int, height: int)
	xdgToplevelSetMaximized    Opcode = 9  // set_maximized()
	xdgToplevelUnsetMaximized  Opcode = 10 // unset_maximized()
	xdgToplevelSetFullscreen   Opcode = 11 // set_fullscreen(output: object<wl_output>)
	xdgToplevelUnsetFullscreen Opcode = 12 // unset_fullscreen()
	xdgToplevelSetMinimized    Opcode = 13 // set_minimized()
)

// xdg_toplevel event opcodes
const (
	xdgToplevelEventConfigure Opcode = 0 // configure(width: int, height: int, states: array)
	xdgToplevelEventClose     Opcode = 1 // close()
)

// XdgToplevel state values, passed in the states array of the configure
// event.
const (
	XdgToplevelStateMaximized   uint32 = 1
	XdgToplevelStateFullscreen  uint32 = 2
	XdgToplevelStateResizing    uint32 = 3
	XdgToplevelStateActivated   uint32 = 4
	XdgToplevelStateTiledLeft   uint32 = 5
	XdgToplevelStateTiledRight  uint32 = 6
	XdgToplevelStateTiledTop    uint32 = 7
	XdgToplevelStateTiledBottom uint32 = 8
)

const (
	defaultToplevelWidth  = 640
	defaultToplevelHeight = 480
)

// XdgWmBase is the server side of xdg_wm_base: the entry point for turning
// a wl_surface into a window. This bridge never advertises a popup role
// (internal/role has no positioner/popup type), so create_positioner and
// xdg_surface.get_popup are rejected with a protocol error rather than
// silently accepted.
type XdgWmBase struct {
	id   ObjectID
	deps Deps

	mu         sync.Mutex
	lastPinged *role.XdgRole
}

func newXdgWmBase(id ObjectID, deps Deps) *XdgWmBase {
	return &XdgWmBase{id: id, deps: deps}
}

func (x *XdgWmBase) HandleRequest(conn *ClientConn, msg *Message) error {
	switch msg.Opcode {
	case xdgWmBaseDestroy:
		conn.DestroyObject(x.id)
		return nil
	case xdgWmBaseCreatePositioner:
		decoder := NewDecoder(msg.Args)
		if _, err := decoder.NewID(); err != nil {
			return err
		}
		return conn.SendProtocolError(x.id, xdgWmBaseErrorInvalidPositioner, "xdg_wm_base: popups are not supported")
	case xdgWmBaseGetXdgSurface:
		return x.handleGetXdgSurface(conn, msg)
	case xdgWmBasePong:
		return x.handlePong(conn, msg)
	default:
		return conn.SendProtocolError(x.id, DisplayErrorInvalidMethod, fmt.Sprintf("xdg_wm_base: unknown opcode %d", msg.Opcode))
	}
}

func (x *XdgWmBase) handleGetXdgSurface(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	id, err := decoder.NewID()
	if err != nil {
		return err
	}
	surfaceID, err := decoder.Object()
	if err != nil {
		return err
	}

	obj, ok := conn.LookupObject(surfaceID)
	if !ok {
		return conn.SendProtocolError(x.id, DisplayErrorInvalidObject, "xdg_wm_base.get_xdg_surface: no such wl_surface")
	}
	wlSurf, ok := obj.(*WlSurface)
	if !ok {
		return conn.SendProtocolError(x.id, DisplayErrorInvalidObject, "xdg_wm_base.get_xdg_surface: object is not a wl_surface")
	}

	xs := &XdgSurface{id: id, wmBase: x, wlSurface: wlSurf}
	conn.RegisterObject(id, xs)
	return nil
}

// sendPing records which role is awaiting a pong and writes the wire
// event. Intended to be driven by a future bridge-side router translating
// X11 _NET_WM_PING ClientMessages into role.Ping calls; not yet called
// anywhere in this tree (see DESIGN.md).
func (x *XdgWmBase) sendPing(conn *ClientConn, serial uint32, r *role.XdgRole) error {
	x.mu.Lock()
	x.lastPinged = r
	x.mu.Unlock()

	builder := NewMessageBuilder()
	builder.PutUint32(serial)
	return conn.SendMessage(builder.BuildMessage(x.id, xdgWmBaseEventPing))
}

func (x *XdgWmBase) handlePong(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	if _, err := decoder.Uint32(); err != nil {
		return err
	}

	x.mu.Lock()
	r := x.lastPinged
	x.lastPinged = nil
	x.mu.Unlock()

	if r != nil {
		r.HandlePong()
	}
	return nil
}

// XdgSurface is the server side of xdg_surface: the bridge between a bound
// wl_surface and the one role (currently only xdg_toplevel; popups are
// out of scope) that turns it into a window.
type XdgSurface struct {
	id        ObjectID
	wmBase    *XdgWmBase
	wlSurface *WlSurface

	mu       sync.Mutex
	xdgRole  *role.XdgRole
	toplevel *XdgToplevel
}

func (s *XdgSurface) HandleRequest(conn *ClientConn, msg *Message) error {
	switch msg.Opcode {
	case xdgSurfaceDestroy:
		return s.handleDestroy(conn, msg)
	case xdgSurfaceGetToplevel:
		return s.handleGetToplevel(conn, msg)
	case xdgSurfaceGetPopup:
		decoder := NewDecoder(msg.Args)
		if _, err := decoder.NewID(); err != nil {
			return err
		}
		return conn.SendProtocolError(s.id, xdgSurfaceErrorNotConstructed, "xdg_surface: popups are not supported")
	case xdgSurfaceSetWindowGeometry:
		return s.handleSetWindowGeometry(conn, msg)
	case xdgSurfaceAckConfigure:
		return s.handleAckConfigure(conn, msg)
	default:
		return conn.SendProtocolError(s.id, DisplayErrorInvalidMethod, fmt.Sprintf("xdg_surface: unknown opcode %d", msg.Opcode))
	}
}

func (s *XdgSurface) handleDestroy(conn *ClientConn, msg *Message) error {
	s.mu.Lock()
	r := s.xdgRole
	s.xdgRole = nil
	s.mu.Unlock()

	if r != nil {
		windowID := r.Window().ID()
		_ = r.Destroy()
		s.wmBase.deps.Surfaces.Forget(windowID)
	}
	conn.DestroyObject(s.id)
	return nil
}

func (s *XdgSurface) handleGetToplevel(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	id, err := decoder.NewID()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.xdgRole != nil {
		s.mu.Unlock()
		return conn.SendProtocolError(s.id, xdgSurfaceErrorAlreadyConstructed, "xdg_surface: already has a role")
	}
	s.mu.Unlock()

	deps := s.wmBase.deps
	window, err := xserver.CreateBackingWindow(deps.XConn, deps.Atoms, xserver.BackingConfig{
		Width:     defaultToplevelWidth,
		Height:    defaultToplevelHeight,
		Resizable: true,
	})
	if err != nil {
		return fmt.Errorf("xdg_surface.get_toplevel: %w", err)
	}

	fc := clock.NewFrameClock()
	tracker := release.NewTracker(deps.IdleRegistrar)
	xdgRole := role.NewXdgRole(s.wlSurface.core, window, fc, tracker)
	toplevelRole := role.NewToplevelRole(xdgRole, window, deps.Atoms, deps.Scheduler)
	toplevelRole.SetDirectStateChanges(deps.DirectStateChanges)

	deps.Surfaces.Register(window.ID(), xdgRole)

	t := &XdgToplevel{id: id, xdgSurface: s, role: toplevelRole}
	conn.RegisterObject(id, t)

	s.mu.Lock()
	s.xdgRole = xdgRole
	s.toplevel = t
	s.mu.Unlock()

	s.wlSurface.onDestroy = func() {
		deps.Surfaces.Forget(window.ID())
		_ = xdgRole.Destroy()
	}

	// Drives the XdgRole mapping state machine (§4.3) off of every
	// successful wl_surface.commit on the bound surface — the hook point
	// internal/surface exposes for a role whose mapping transition needs
	// a protocol-specific "send the initial configure" closure that the
	// generic RoleHooks vtable can't carry.
	s.wlSurface.core.OnCommit(func(uint32) {
		hasBuffer := s.wlSurface.core.Current().Buffer() != nil
		_ = xdgRole.MappingCommit(hasBuffer, func() {
			t.sendInitialConfigure(conn)
		})
	})

	return nil
}

func (s *XdgSurface) handleSetWindowGeometry(conn *ClientConn, msg *Message) error {
	x, y, w, h, err := decodeRect(msg.Args)
	if err != nil {
		return err
	}
	s.mu.Lock()
	r := s.xdgRole
	s.mu.Unlock()
	if r == nil {
		return conn.SendProtocolError(s.id, xdgSurfaceErrorNotConstructed, "xdg_surface.set_window_geometry: no role yet")
	}
	return r.SetBounds(surface.Rect{X: x, Y: y, Width: w, Height: h})
}

func (s *XdgSurface) handleAckConfigure(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	serial, err := decoder.Uint32()
	if err != nil {
		return err
	}
	s.mu.Lock()
	r := s.xdgRole
	s.mu.Unlock()
	if r == nil {
		return conn.SendProtocolError(s.id, xdgSurfaceErrorNotConstructed, "xdg_surface.ack_configure: no role yet")
	}
	if err := r.AckConfigure(serial); err != nil {
		return conn.SendProtocolError(s.id, xdgSurfaceErrorInvalidSerial, err.Error())
	}
	return nil
}

func (s *XdgSurface) sendConfigureEvent(conn *ClientConn, serial uint32) error {
	builder := NewMessageBuilder()
	builder.PutUint32(serial)
	return conn.SendMessage(builder.BuildMessage(s.id, xdgSurfaceEventConfigure))
}

// XdgToplevel is the server side of xdg_toplevel: it drives a
// role.ToplevelRole from decoded requests and encodes its configure/close
// events back to the client.
type XdgToplevel struct {
	id         ObjectID
	xdgSurface *XdgSurface
	role       *role.ToplevelRole
}

func (t *XdgToplevel) HandleRequest(conn *ClientConn, msg *Message) error {
	switch msg.Opcode {
	case xdgToplevelDestroy:
		conn.DestroyObject(t.id)
		return nil
	case xdgToplevelSetParent:
		return t.handleSetParent(conn, msg)
	case xdgToplevelSetTitle:
		return t.handleSetTitle(conn, msg)
	case xdgToplevelSetAppID:
		return t.handleSetAppID(conn, msg)
	case xdgToplevelShowWindowMenu, xdgToplevelMove, xdgToplevelResize:
		// Each of these requires a wl_seat object; this bridge never
		// advertises wl_seat (input routing is an explicit non-goal), so
		// a conforming client can never actually construct one. Accepted
		// as a no-op instead of erroring a request shape that can't occur.
		return nil
	case xdgToplevelSetMaxSize:
		return t.handleSetMaxSize(conn, msg)
	case xdgToplevelSetMinSize:
		return t.handleSetMinSize(conn, msg)
	case xdgToplevelSetMaximized:
		return t.wrapErr(conn, t.role.SetMaximized(true))
	case xdgToplevelUnsetMaximized:
		return t.wrapErr(conn, t.role.SetMaximized(false))
	case xdgToplevelSetFullscreen:
		decoder := NewDecoder(msg.Args)
		if _, err := decoder.Object(); err != nil {
			return err
		}
		return t.wrapErr(conn, t.role.SetFullscreen(true))
	case xdgToplevelUnsetFullscreen:
		return t.wrapErr(conn, t.role.SetFullscreen(false))
	case xdgToplevelSetMinimized:
		return nil // role.ToplevelRole has no iconify hook; accepted as a no-op
	default:
		return conn.SendProtocolError(t.id, DisplayErrorInvalidMethod, fmt.Sprintf("xdg_toplevel: unknown opcode %d", msg.Opcode))
	}
}

func (t *XdgToplevel) wrapErr(conn *ClientConn, err error) error {
	if err != nil {
		return conn.SendProtocolError(t.id, DisplayErrorImplementation, err.Error())
	}
	return nil
}

func (t *XdgToplevel) handleSetParent(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	parentID, err := decoder.Object()
	if err != nil {
		return err
	}
	if parentID == 0 {
		return t.wrapErr(conn, t.role.SetParent(nil))
	}
	obj, ok := conn.LookupObject(parentID)
	if !ok {
		return conn.SendProtocolError(t.id, DisplayErrorInvalidObject, "xdg_toplevel.set_parent: no such object")
	}
	parent, ok := obj.(*XdgToplevel)
	if !ok {
		return conn.SendProtocolError(t.id, DisplayErrorInvalidObject, "xdg_toplevel.set_parent: object is not an xdg_toplevel")
	}
	return t.wrapErr(conn, t.role.SetParent(parent.role))
}

func (t *XdgToplevel) handleSetTitle(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	title, err := decoder.String()
	if err != nil {
		return err
	}
	return t.wrapErr(conn, t.role.SetTitle(title))
}

func (t *XdgToplevel) handleSetAppID(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	appID, err := decoder.String()
	if err != nil {
		return err
	}
	return t.wrapErr(conn, t.role.SetAppId(appID))
}

func (t *XdgToplevel) handleSetMaxSize(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	w, err := decoder.Int32()
	if err != nil {
		return err
	}
	h, err := decoder.Int32()
	if err != nil {
		return err
	}
	return t.wrapErr(conn, t.role.SetMaxSize(w, h))
}

func (t *XdgToplevel) handleSetMinSize(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	w, err := decoder.Int32()
	if err != nil {
		return err
	}
	h, err := decoder.Int32()
	if err != nil {
		return err
	}
	return t.wrapErr(conn, t.role.SetMinSize(w, h))
}

// sendInitialConfigure is the closure XdgRole.MappingCommit invokes the
// first time a buffered commit arrives with no configure outstanding yet.
func (t *XdgToplevel) sendInitialConfigure(conn *ClientConn) {
	_ = t.sendConfigure(conn, 0, 0, nil)
}

// sendConfigure encodes and sends both halves of a configure: the
// xdg_toplevel.configure carrying size/state, followed by the
// xdg_surface.configure carrying the serial the client must ack.
func (t *XdgToplevel) sendConfigure(conn *ClientConn, width, height int32, states []uint32) error {
	stateBytes := make([]byte, 4*len(states))
	for i, st := range states {
		binary.LittleEndian.PutUint32(stateBytes[i*4:], st)
	}

	builder := NewMessageBuilder()
	builder.PutInt32(width)
	builder.PutInt32(height)
	builder.PutArray(stateBytes)
	if err := conn.SendMessage(builder.BuildMessage(t.id, xdgToplevelEventConfigure)); err != nil {
		return err
	}

	serial := t.role.SendConfigure()
	t.role.NoteConfigureDimensions(uint16(width), uint16(height))
	return t.xdgSurface.sendConfigureEvent(conn, serial)
}

// sendClose encodes xdg_toplevel.close, telling the client the WM wants
// this window gone (e.g. the user clicked the X11 decoration's close
// button, forwarded in as a WM_DELETE_WINDOW ClientMessage).
func (t *XdgToplevel) sendClose(conn *ClientConn) error {
	return conn.SendMessage(NewMessageBuilder().BuildMessage(t.id, xdgToplevelEventClose))
}
