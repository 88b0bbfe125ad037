//go:build linux

package waylandproto

import (
	"testing"

	"github.com/gogpu/waybridge/internal/clock"
	"github.com/gogpu/waybridge/internal/release"
	"github.com/gogpu/waybridge/internal/role"
	"github.com/gogpu/waybridge/internal/surface"
	"github.com/gogpu/waybridge/internal/xserver"
)

// fakeToplevelWindow satisfies role.ToplevelWindow without touching a real
// windowing-server connection, mirroring internal/role/toplevel_test.go's
// fakeToplevelWindow (unexported there, so this package needs its own).
type fakeToplevelWindow struct {
	id         xserver.ResourceID
	mapped     bool
	title      string
	class      string
	fullscreen bool
	maximized  bool
}

func (w *fakeToplevelWindow) ID() xserver.ResourceID { return w.id }
func (w *fakeToplevelWindow) Map() error             { w.mapped = true; return nil }
func (w *fakeToplevelWindow) Unmap() error           { w.mapped = false; return nil }
func (w *fakeToplevelWindow) Configure(x, y int16, width, height uint16) error {
	return nil
}
func (w *fakeToplevelWindow) SetOpaqueRegion(rects []xserver.Rect) error { return nil }
func (w *fakeToplevelWindow) SetFrameExtents(left, right, top, bottom uint32) error {
	return nil
}
func (w *fakeToplevelWindow) SetBypassCompositor(bypass bool) error { return nil }
func (w *fakeToplevelWindow) Ping(serial uint32) error              { return nil }
func (w *fakeToplevelWindow) Destroy() error                        { return nil }
func (w *fakeToplevelWindow) SetTitle(title string) error           { w.title = title; return nil }
func (w *fakeToplevelWindow) SetLegacyName(latin1 []byte) error     { return nil }
func (w *fakeToplevelWindow) SetClass(instance, class string) error {
	w.class = class
	return nil
}
func (w *fakeToplevelWindow) SetMotifHints(hints *xserver.MotifWMHints) error { return nil }
func (w *fakeToplevelWindow) SetFullscreen(fullscreen bool) error {
	w.fullscreen = fullscreen
	return nil
}
func (w *fakeToplevelWindow) SetMaximized(maximized bool) error {
	w.maximized = maximized
	return nil
}
func (w *fakeToplevelWindow) SetSizeHints(hints xserver.SizeHints) error { return nil }

// newTestXdgToplevel wires a role.ToplevelRole against fakeToplevelWindow
// and wraps it in the protocol-layer XdgToplevel/XdgSurface pair, the same
// shape xdg_surface.get_toplevel builds — except for the backing window,
// which real code gets from xserver.CreateBackingWindow. Exercising that
// call needs a live X11 connection, so handleGetToplevel itself isn't unit
// tested here; only the request handlers downstream of it are.
func newTestXdgToplevel(t *testing.T, id ObjectID) (*XdgToplevel, *XdgSurface, *fakeToplevelWindow) {
	t.Helper()
	renderer := &fakeRenderBackend{releaseNow: true}
	surf := surface.New(renderer, 5, 1.0)
	win := &fakeToplevelWindow{id: xserver.ResourceID(id)}
	fc := clock.NewFrameClock()
	tracker := release.NewTracker(NewNullIdleRegistrar())
	xdgRole := role.NewXdgRole(surf, win, fc, tracker)
	tr := role.NewToplevelRole(xdgRole, win, nil, nil)

	wmBase := &XdgWmBase{id: 2, deps: Deps{Surfaces: role.NewSurfaceTable()}}
	xs := &XdgSurface{id: id + 1, wmBase: wmBase, xdgRole: xdgRole}
	top := &XdgToplevel{id: id + 2, xdgSurface: xs, role: tr}
	xs.toplevel = top
	return top, xs, win
}

func TestXdgWmBaseOpcodes(t *testing.T) {
	if xdgWmBaseDestroy != 0 || xdgWmBaseCreatePositioner != 1 || xdgWmBaseGetXdgSurface != 2 || xdgWmBasePong != 3 {
		t.Fatalf("unexpected xdg_wm_base opcodes")
	}
}

func TestXdgWmBaseCreatePositionerRejected(t *testing.T) {
	conn, client := newTestConn(t)
	defer client.Close()

	wm := newXdgWmBase(2, Deps{})
	conn.RegisterObject(2, wm)

	builder := NewMessageBuilder()
	builder.PutNewID(99)
	args, _ := builder.Build()

	go func() { _ = conn.dispatch(&Message{ObjectID: 2, Opcode: xdgWmBaseCreatePositioner, Args: args}) }()

	msg := recvMessage(t, client)
	if msg.ObjectID != 1 || msg.Opcode != displayEventError {
		t.Fatalf("expected wl_display.error, got object %d opcode %d", msg.ObjectID, msg.Opcode)
	}
}

func TestXdgWmBaseGetXdgSurface(t *testing.T) {
	conn, client := newTestConn(t)
	defer client.Close()

	deps := Deps{Surfaces: role.NewSurfaceTable()}
	wm := newXdgWmBase(2, deps)
	conn.RegisterObject(2, wm)

	wlSurf := newTestWlSurface(10)
	conn.RegisterObject(10, wlSurf)

	builder := NewMessageBuilder()
	builder.PutNewID(20)
	builder.PutObject(10)
	args, _ := builder.Build()
	sendRequest(t, conn, 2, xdgWmBaseGetXdgSurface, args)

	obj, ok := conn.LookupObject(20)
	if !ok {
		t.Fatal("get_xdg_surface did not register object 20")
	}
	xs, ok := obj.(*XdgSurface)
	if !ok {
		t.Fatalf("object 20 is %T, want *XdgSurface", obj)
	}
	if xs.wlSurface != wlSurf {
		t.Fatal("xdg_surface does not reference the bound wl_surface")
	}
}

func TestXdgWmBasePongClearsLastPinged(t *testing.T) {
	conn, client := newTestConn(t)
	defer client.Close()

	_, xs, _ := newTestXdgToplevel(t, 100)
	wm := xs.wmBase

	// net.Pipe is unbuffered: read the ping event so sendPing's write completes.
	go func() { _, _ = client.Read(make([]byte, 64)) }()

	if err := wm.sendPing(conn, 42, xs.xdgRole); err != nil {
		t.Fatalf("sendPing: %v", err)
	}
	if wm.lastPinged == nil {
		t.Fatal("sendPing did not record lastPinged")
	}

	pong := NewMessageBuilder()
	pong.PutUint32(42)
	args, _ := pong.Build()
	sendRequest(t, conn, wm.id, xdgWmBasePong, args)

	if wm.lastPinged != nil {
		t.Fatal("pong did not clear lastPinged")
	}
}

func TestXdgSurfaceSetWindowGeometry(t *testing.T) {
	_, xs, _ := newTestXdgToplevel(t, 110)
	conn := &ClientConn{}

	builder := NewMessageBuilder()
	builder.PutInt32(1)
	builder.PutInt32(2)
	builder.PutInt32(300)
	builder.PutInt32(400)
	args, _ := builder.Build()

	if err := xs.HandleRequest(conn, &Message{ObjectID: xs.id, Opcode: xdgSurfaceSetWindowGeometry, Args: args}); err != nil {
		t.Fatalf("set_window_geometry: %v", err)
	}
}

func TestXdgSurfaceAckConfigureInvalidSerial(t *testing.T) {
	conn, client := newTestConn(t)
	defer client.Close()

	_, xs, _ := newTestXdgToplevel(t, 120)

	builder := NewMessageBuilder()
	builder.PutUint32(999)
	args, _ := builder.Build()

	go func() {
		_ = xs.HandleRequest(conn, &Message{ObjectID: xs.id, Opcode: xdgSurfaceAckConfigure, Args: args})
	}()

	msg := recvMessage(t, client)
	if msg.ObjectID != 1 || msg.Opcode != displayEventError {
		t.Fatalf("expected wl_display.error for an unacked serial, got object %d opcode %d", msg.ObjectID, msg.Opcode)
	}
}

func TestXdgToplevelSetTitle(t *testing.T) {
	top, _, win := newTestXdgToplevel(t, 130)
	conn := &ClientConn{}

	builder := NewMessageBuilder()
	builder.PutString("Terminal")
	args, _ := builder.Build()

	if err := top.HandleRequest(conn, &Message{ObjectID: top.id, Opcode: xdgToplevelSetTitle, Args: args}); err != nil {
		t.Fatalf("set_title: %v", err)
	}
	if win.title != "Terminal" {
		t.Fatalf("title = %q, want %q", win.title, "Terminal")
	}
}

func TestXdgToplevelSetAppID(t *testing.T) {
	top, _, win := newTestXdgToplevel(t, 140)
	conn := &ClientConn{}

	builder := NewMessageBuilder()
	builder.PutString("org.example.App")
	args, _ := builder.Build()

	if err := top.HandleRequest(conn, &Message{ObjectID: top.id, Opcode: xdgToplevelSetAppID, Args: args}); err != nil {
		t.Fatalf("set_app_id: %v", err)
	}
	if win.class != "org.example.App" {
		t.Fatalf("class = %q, want %q", win.class, "org.example.App")
	}
}

func TestXdgToplevelSetMaximizedUnset(t *testing.T) {
	top, _, win := newTestXdgToplevel(t, 150)
	conn := &ClientConn{}

	if err := top.HandleRequest(conn, &Message{ObjectID: top.id, Opcode: xdgToplevelSetMaximized}); err != nil {
		t.Fatalf("set_maximized: %v", err)
	}
	if !win.maximized {
		t.Fatal("expected window maximized after set_maximized")
	}

	if err := top.HandleRequest(conn, &Message{ObjectID: top.id, Opcode: xdgToplevelUnsetMaximized}); err != nil {
		t.Fatalf("unset_maximized: %v", err)
	}
	if win.maximized {
		t.Fatal("expected window un-maximized after unset_maximized")
	}
}

func TestXdgToplevelSetFullscreen(t *testing.T) {
	top, _, win := newTestXdgToplevel(t, 160)
	conn := &ClientConn{}

	builder := NewMessageBuilder()
	builder.PutObject(0) // no specific output requested
	args, _ := builder.Build()

	if err := top.HandleRequest(conn, &Message{ObjectID: top.id, Opcode: xdgToplevelSetFullscreen, Args: args}); err != nil {
		t.Fatalf("set_fullscreen: %v", err)
	}
	if !win.fullscreen {
		t.Fatal("expected window fullscreen after set_fullscreen")
	}

	if err := top.HandleRequest(conn, &Message{ObjectID: top.id, Opcode: xdgToplevelUnsetFullscreen}); err != nil {
		t.Fatalf("unset_fullscreen: %v", err)
	}
	if win.fullscreen {
		t.Fatal("expected window not-fullscreen after unset_fullscreen")
	}
}

func TestXdgToplevelSetParentRejectsCycle(t *testing.T) {
	top, _, _ := newTestXdgToplevel(t, 170)
	other, _, _ := newTestXdgToplevel(t, 180)
	conn := &ClientConn{}
	conn.RegisterObject(other.id, other)
	conn.RegisterObject(top.id, top)

	setParentArgs := func(parent ObjectID) []byte {
		b := NewMessageBuilder()
		b.PutObject(parent)
		args, _ := b.Build()
		return args
	}

	if err := other.HandleRequest(conn, &Message{ObjectID: other.id, Opcode: xdgToplevelSetParent, Args: setParentArgs(top.id)}); err != nil {
		t.Fatalf("set_parent: %v", err)
	}

	errConn, client := newTestConn(t)
	defer client.Close()
	errConn.RegisterObject(other.id, other)
	errConn.RegisterObject(top.id, top)

	go func() {
		_ = top.HandleRequest(errConn, &Message{ObjectID: top.id, Opcode: xdgToplevelSetParent, Args: setParentArgs(other.id)})
	}()
	msg := recvMessage(t, client)
	if msg.ObjectID != 1 || msg.Opcode != displayEventError {
		t.Fatalf("expected a protocol error for a cyclic set_parent, got object %d opcode %d", msg.ObjectID, msg.Opcode)
	}
}

func TestXdgToplevelShowWindowMenuIsNoop(t *testing.T) {
	top, _, _ := newTestXdgToplevel(t, 190)
	conn := &ClientConn{}
	if err := top.HandleRequest(conn, &Message{ObjectID: top.id, Opcode: xdgToplevelShowWindowMenu}); err != nil {
		t.Fatalf("show_window_menu should be a silent no-op (no wl_seat global ever exists), got %v", err)
	}
}

func TestXdgToplevelUnknownOpcodeSendsProtocolError(t *testing.T) {
	top, _, _ := newTestXdgToplevel(t, 200)
	conn, client := newTestConn(t)
	defer client.Close()

	go func() {
		_ = top.HandleRequest(conn, &Message{ObjectID: top.id, Opcode: 88})
	}()

	msg := recvMessage(t, client)
	if msg.ObjectID != 1 || msg.Opcode != displayEventError {
		t.Fatalf("expected wl_display.error, got object %d opcode %d", msg.ObjectID, msg.Opcode)
	}
}
