package role

import (
	"testing"

	"github.com/gogpu/waybridge/internal/clock"
	"github.com/gogpu/waybridge/internal/release"
	"github.com/gogpu/waybridge/internal/surface"
	"github.com/gogpu/waybridge/internal/xserver"
)

type fakeWindow struct {
	id                        xserver.ResourceID
	mapped                    bool
	x, y                      int16
	width, height             uint16
	configureCount            int
	destroyed                 bool
	bypassCompositor          bool
	pings                     []uint32
	opaqueRegion              []xserver.Rect
}

func (w *fakeWindow) ID() xserver.ResourceID { return w.id }
func (w *fakeWindow) Map() error             { w.mapped = true; return nil }
func (w *fakeWindow) Unmap() error           { w.mapped = false; return nil }
func (w *fakeWindow) Configure(x, y int16, width, height uint16) error {
	w.x, w.y, w.width, w.height = x, y, width, height
	w.configureCount++
	return nil
}
func (w *fakeWindow) SetOpaqueRegion(rects []xserver.Rect) error {
	w.opaqueRegion = rects
	return nil
}
func (w *fakeWindow) SetFrameExtents(left, right, top, bottom uint32) error { return nil }
func (w *fakeWindow) SetBypassCompositor(bypass bool) error {
	w.bypassCompositor = bypass
	return nil
}
func (w *fakeWindow) Ping(serial uint32) error {
	w.pings = append(w.pings, serial)
	return nil
}
func (w *fakeWindow) Destroy() error { w.destroyed = true; return nil }

// fakeRenderer satisfies surface.Renderer. fakeIdleRegistrar satisfies
// release.IdleRegistrar separately: the two collaborator interfaces are
// defined independently (surface never imports release, or vice versa) so
// a real renderer backend wires one concrete implementation to both roles
// via two thin adapters rather than one shared method set.
type fakeRenderer struct{ releaseNow bool }

func (r *fakeRenderer) ApplyBuffer(buf surface.BufferHandle, ox, oy int32) {}
func (r *fakeRenderer) ApplyScale(factor float64)                          {}
func (r *fakeRenderer) ApplyTransform(t surface.Transform)                 {}
func (r *fakeRenderer) ApplyInputRegion(rg surface.Region)                 {}
func (r *fakeRenderer) ApplyOpaqueRegion(rg surface.Region)                {}
func (r *fakeRenderer) ApplyViewport(src surface.Rect, w, h int32)         {}
func (r *fakeRenderer) ApplyBufferDamage(rg surface.Region)                {}
func (r *fakeRenderer) ApplySurfaceDamage(rg surface.Region)               {}
func (r *fakeRenderer) CanReleaseNow(buf surface.BufferHandle) bool        { return r.releaseNow }

type fakeIdleRegistrar struct{ releaseNow bool }

func (r *fakeIdleRegistrar) CanReleaseNow(buf release.Buffer) bool         { return r.releaseNow }
func (r *fakeIdleRegistrar) NotifyIdle(buf release.Buffer, cb func()) func() {
	return func() {}
}
func (r *fakeIdleRegistrar) Roundtrip() {}

func newTestXdgRole() (*XdgRole, *fakeWindow, *surface.Surface) {
	renderer := &fakeRenderer{releaseNow: true}
	surf := surface.New(renderer, 5, 1.0)
	win := &fakeWindow{id: 7}
	fc := clock.NewFrameClock()
	tracker := release.NewTracker(&fakeIdleRegistrar{releaseNow: true})
	r := NewXdgRole(surf, win, fc, tracker)
	return r, win, surf
}

func TestXdgRole_ConfigureHandshake(t *testing.T) {
	r, _, _ := newTestXdgRole()

	if r.WaitingForAckConfigure() {
		t.Fatal("no configure sent yet")
	}

	serial := r.SendConfigure()
	if !r.WaitingForAckConfigure() {
		t.Fatal("expected waiting for ack after SendConfigure")
	}
	if !r.EarlyCommit() {
		t.Fatal("commits should postpone while configure is outstanding")
	}

	if err := r.AckConfigure(serial + 1); err != ErrInvalidSerial {
		t.Fatalf("expected ErrInvalidSerial for wrong serial, got %v", err)
	}

	if err := r.AckConfigure(serial); err != nil {
		t.Fatalf("AckConfigure: %v", err)
	}
	if r.WaitingForAckConfigure() {
		t.Fatal("expected ack to clear waiting flag")
	}
}

func TestXdgRole_MappingCommit_NoBufferUnmaps(t *testing.T) {
	r, win, _ := newTestXdgRole()
	r.mapped = true

	called := false
	if err := r.MappingCommit(false, func() { called = true }); err != nil {
		t.Fatalf("MappingCommit: %v", err)
	}
	if called {
		t.Fatal("sendInitialConfigure should not fire on unmap path")
	}
	if win.mapped {
		t.Fatal("expected window to unmap")
	}
	if r.Mapped() {
		t.Fatal("expected role to record unmapped")
	}
}

func TestXdgRole_MappingCommit_FirstBufferArmsInitialConfigure(t *testing.T) {
	r, win, _ := newTestXdgRole()

	fired := false
	if err := r.MappingCommit(true, func() { fired = true }); err != nil {
		t.Fatalf("MappingCommit: %v", err)
	}
	if !fired {
		t.Fatal("expected sendInitialConfigure to fire")
	}
	if win.mapped {
		t.Fatal("should not map before ack")
	}
}

func TestXdgRole_MappingCommit_MapsAfterAckAndBuffer(t *testing.T) {
	r, win, _ := newTestXdgRole()
	serial := r.SendConfigure()
	if err := r.AckConfigure(serial); err != nil {
		t.Fatalf("AckConfigure: %v", err)
	}

	if err := r.MappingCommit(true, func() { t.Fatal("should not resend initial configure") }); err != nil {
		t.Fatalf("MappingCommit: %v", err)
	}
	if !win.mapped {
		t.Fatal("expected window to map")
	}
	if !r.Mapped() {
		t.Fatal("expected role to record mapped")
	}
}

func TestXdgRole_HandlePong_SatisfiesAllQueuedPings(t *testing.T) {
	r, win, _ := newTestXdgRole()
	r.Ping(1, func(uint32) {})
	r.Ping(2, func(uint32) {})

	r.HandlePong()

	if len(win.pings) != 2 || win.pings[0] != 1 || win.pings[1] != 2 {
		t.Fatalf("expected both pings forwarded in order, got %v", win.pings)
	}
	if len(r.pendingPings) != 0 {
		t.Fatal("expected pending pings cleared")
	}
}

func TestXdgRole_RefcountReachesZero(t *testing.T) {
	r, _, _ := newTestXdgRole()
	r.Ref()
	if r.Unref() {
		t.Fatal("expected a retained reference to survive one Unref")
	}
	if !r.Unref() {
		t.Fatal("expected final Unref to report zero")
	}
}
