package role

import (
	"testing"

	"github.com/gogpu/waybridge/internal/xserver"
)

type fakeToplevelWindow struct {
	fakeWindow
	title       string
	legacyName  []byte
	instance    string
	class       string
	motifHints  *xserver.MotifWMHints
	fullscreen  bool
	maximized   bool
	sizeHints   xserver.SizeHints
}

func (w *fakeToplevelWindow) SetTitle(title string) error       { w.title = title; return nil }
func (w *fakeToplevelWindow) SetLegacyName(b []byte) error       { w.legacyName = b; return nil }
func (w *fakeToplevelWindow) SetClass(instance, class string) error {
	w.instance, w.class = instance, class
	return nil
}
func (w *fakeToplevelWindow) SetMotifHints(h *xserver.MotifWMHints) error {
	w.motifHints = h
	return nil
}
func (w *fakeToplevelWindow) SetFullscreen(fullscreen bool) error {
	w.fullscreen = fullscreen
	return nil
}
func (w *fakeToplevelWindow) SetMaximized(maximized bool) error {
	w.maximized = maximized
	return nil
}
func (w *fakeToplevelWindow) SetSizeHints(hints xserver.SizeHints) error {
	w.sizeHints = hints
	return nil
}

type fakeScheduler struct {
	fns []func()
}

func (s *fakeScheduler) After(d uint32, fn func()) func() {
	s.fns = append(s.fns, fn)
	return func() {}
}

func (s *fakeScheduler) runAll() {
	fns := s.fns
	s.fns = nil
	for _, fn := range fns {
		fn()
	}
}

func newTestToplevelRole() (*ToplevelRole, *fakeToplevelWindow, *fakeScheduler) {
	xdg, _, _ := newTestXdgRole()
	win := &fakeToplevelWindow{fakeWindow: fakeWindow{id: 9}}
	sched := &fakeScheduler{}
	tr := NewToplevelRole(xdg, win, nil, sched)
	return tr, win, sched
}

func TestToplevelRole_SetTitle_WritesUTF8AndLatin1(t *testing.T) {
	tr, win, _ := newTestToplevelRole()

	if err := tr.SetTitle("hello"); err != nil {
		t.Fatalf("SetTitle: %v", err)
	}
	if win.title != "hello" {
		t.Fatalf("expected EWMH title set, got %q", win.title)
	}
	if string(win.legacyName) != "hello" {
		t.Fatalf("expected legacy name round-trips ASCII, got %q", win.legacyName)
	}
}

func TestToplevelRole_SetParent_RejectsCycle(t *testing.T) {
	tr, _, _ := newTestToplevelRole()
	other, _, _ := newTestToplevelRole()

	if err := other.SetParent(tr); err != nil {
		t.Fatalf("SetParent: %v", err)
	}
	if err := tr.SetParent(other); err != ErrCyclicParent {
		t.Fatalf("expected ErrCyclicParent, got %v", err)
	}
}

func TestToplevelRole_NoteWMState_BatchesThroughScheduler(t *testing.T) {
	tr, _, sched := newTestToplevelRole()

	tr.NoteWMState(true, false, true)
	maximized, _, _, _ := tr.State()
	if maximized {
		t.Fatal("expected state change to be deferred until the scheduler fires")
	}

	sched.runAll()
	maximized, _, activated, _ := tr.State()
	if !maximized || !activated {
		t.Fatal("expected state applied after scheduler callback runs")
	}
}

func TestToplevelRole_NoteWMState_AppliesImmediatelyWhileResizing(t *testing.T) {
	tr, _, sched := newTestToplevelRole()
	tr.BeginResize(false, false)

	tr.NoteWMState(true, true, true)
	maximized, fullscreen, activated, _ := tr.State()
	if !maximized || !fullscreen || !activated {
		t.Fatal("expected immediate state application while resizing")
	}
	if len(sched.fns) != 0 {
		t.Fatal("expected no scheduler callback queued while resizing")
	}
}

func TestToplevelRole_ResizeChoreography_AccumulatesDeltas(t *testing.T) {
	tr, _, _ := newTestToplevelRole()
	tr.BeginResize(true, true)
	tr.AccumulateResizeDelta(5, 3)
	tr.AccumulateResizeDelta(-2, 4)

	dx, dy := tr.ConsumeResizeDelta()
	if dx != 3 || dy != 7 {
		t.Fatalf("expected accumulated deltas (3,7), got (%d,%d)", dx, dy)
	}

	dx, dy = tr.ConsumeResizeDelta()
	if dx != 0 || dy != 0 {
		t.Fatal("expected deltas cleared after consuming")
	}
	tr.EndResize()
}

func TestToplevelRole_SetMaxSize_RejectsNegative(t *testing.T) {
	tr, _, _ := newTestToplevelRole()
	if err := tr.SetMaxSize(-1, 10); err == nil {
		t.Fatal("expected error for negative max size")
	}
}

func TestToplevelRole_SetMinMaxSize_WritesSizeHints(t *testing.T) {
	tr, win, _ := newTestToplevelRole()
	if err := tr.SetMinSize(100, 200); err != nil {
		t.Fatalf("SetMinSize: %v", err)
	}
	if err := tr.SetMaxSize(800, 600); err != nil {
		t.Fatalf("SetMaxSize: %v", err)
	}
	if win.sizeHints.MinWidth != 100 || win.sizeHints.MinHeight != 200 {
		t.Fatalf("unexpected min size hints: %+v", win.sizeHints)
	}
	if win.sizeHints.MaxWidth != 800 || win.sizeHints.MaxHeight != 600 {
		t.Fatalf("unexpected max size hints: %+v", win.sizeHints)
	}
	want := xserver.HintPMinSize | xserver.HintPMaxSize
	if win.sizeHints.Flags != uint32(want) {
		t.Fatalf("expected both size hint flags set, got %#x", win.sizeHints.Flags)
	}
}

func TestToplevelRole_SetDecorationMode_SkipsNoopTransition(t *testing.T) {
	tr, win, _ := newTestToplevelRole()
	if err := tr.SetDecorationMode(DecorationClientSide); err != nil {
		t.Fatalf("SetDecorationMode: %v", err)
	}
	if win.motifHints != nil {
		t.Fatal("expected no motif write for a no-op transition")
	}

	if err := tr.SetDecorationMode(DecorationServerSide); err != nil {
		t.Fatalf("SetDecorationMode: %v", err)
	}
	if win.motifHints == nil || win.motifHints.Decorations != xserver.MotifDecorAll {
		t.Fatalf("expected server-side decoration hints written, got %+v", win.motifHints)
	}
}

func TestToplevelRole_Capabilities_DefaultsToAllFour(t *testing.T) {
	tr, _, _ := newTestToplevelRole()
	want := CapWindowMenu | CapMaximize | CapFullscreen | CapMinimize
	if tr.Capabilities() != want {
		t.Fatalf("expected default capabilities %#x, got %#x", want, tr.Capabilities())
	}
}
