package surface

import "testing"

type fakeBuffer struct {
	w, h     int32
	format   uint32
	released bool
}

func (b *fakeBuffer) Width() int32   { return b.w }
func (b *fakeBuffer) Height() int32  { return b.h }
func (b *fakeBuffer) Format() uint32 { return b.format }
func (b *fakeBuffer) Release()       { b.released = true }

type fakeRenderer struct {
	canRelease    bool
	lastViewport  Rect
	lastDestW     int32
	lastDestH     int32
	scaleCalls    []float64
	appliedBuffer BufferHandle
}

func (r *fakeRenderer) ApplyBuffer(buf BufferHandle, offsetX, offsetY int32) { r.appliedBuffer = buf }
func (r *fakeRenderer) ApplyScale(factor float64)                           { r.scaleCalls = append(r.scaleCalls, factor) }
func (r *fakeRenderer) ApplyTransform(t Transform)                         {}
func (r *fakeRenderer) ApplyInputRegion(reg Region)                        {}
func (r *fakeRenderer) ApplyOpaqueRegion(reg Region)                       {}
func (r *fakeRenderer) ApplyViewport(src Rect, destW, destH int32) {
	r.lastViewport = src
	r.lastDestW, r.lastDestH = destW, destH
}
func (r *fakeRenderer) ApplyBufferDamage(reg Region)  {}
func (r *fakeRenderer) ApplySurfaceDamage(reg Region) {}
func (r *fakeRenderer) CanReleaseNow(buf BufferHandle) bool { return r.canRelease }

func TestSurface_Attach_RejectsNonZeroOffsetAtV5(t *testing.T) {
	s := New(&fakeRenderer{}, 5, 1)
	if err := s.Attach(&fakeBuffer{w: 10, h: 10}, 1, 0); err != ErrInvalidOffset {
		t.Errorf("got %v, want ErrInvalidOffset", err)
	}
}

func TestSurface_Attach_AllowsNonZeroOffsetBelowV5(t *testing.T) {
	s := New(&fakeRenderer{}, 4, 1)
	if err := s.Attach(&fakeBuffer{w: 10, h: 10}, 1, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSurface_Damage_ClampsToMaxCoord(t *testing.T) {
	s := New(&fakeRenderer{}, 5, 1)
	buf := &fakeBuffer{w: 128, h: 128}
	if err := s.Attach(buf, 0, 0); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	s.Damage(0, 0, 1<<31-1, 1<<31-1)

	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rects := s.Current().surfaceDamage.Rects()
	if len(rects) != 1 {
		t.Fatalf("expected 1 damage rect, got %d", len(rects))
	}
	want := Rect{X: 0, Y: 0, Width: 65535, Height: 65535}
	if rects[0] != want {
		t.Errorf("damage: got %+v, want %+v", rects[0], want)
	}
}

func TestSurface_Commit_ViewportRejection(t *testing.T) {
	renderer := &fakeRenderer{}
	s := New(renderer, 5, 1)
	buf := &fakeBuffer{w: 50, h: 50}
	if err := s.Attach(buf, 0, 0); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := s.SetBufferScale(1); err != nil {
		t.Fatalf("SetBufferScale: %v", err)
	}
	s.SetViewport(Rect{X: 0, Y: 0, Width: 60, Height: 60}, unsetViewport, unsetViewport)

	previous := s.Current().viewportSrc

	err := s.Commit()
	if err == nil {
		t.Fatalf("expected a viewport fault")
	}
	fault, ok := err.(*ViewportFault)
	if !ok {
		t.Fatalf("expected *ViewportFault, got %T", err)
	}
	if !fault.BadSize {
		t.Errorf("expected BadSize fault for scenario 3")
	}
	if s.Current().viewportSrc != previous {
		t.Errorf("current viewport should be unchanged on rejection")
	}
}

func TestSurface_Commit_EarlyBufferRelease(t *testing.T) {
	renderer := &fakeRenderer{canRelease: true}
	s := New(renderer, 5, 1)
	buf := &fakeBuffer{w: 10, h: 10}
	if err := s.Attach(buf, 0, 0); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if !buf.released {
		t.Errorf("buffer should be released immediately")
	}
	if !s.Current().BufferAlreadyReleased() {
		t.Errorf("current state should flag BufferAlreadyReleased")
	}
}

func TestSurface_Commit_EarlyCommitPostponesIntoCached(t *testing.T) {
	renderer := &fakeRenderer{}
	s := New(renderer, 5, 1)
	s.SetRole(&postponingRole{})

	buf := &fakeBuffer{w: 10, h: 10}
	if err := s.Attach(buf, 0, 0); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if s.Current().Buffer() != nil {
		t.Errorf("postponed commit should not touch current state")
	}
	if s.cached.buffer != buf {
		t.Errorf("postponed commit should merge into cached")
	}
}

type postponingRole struct{}

func (postponingRole) EarlyCommit() bool { return true }
func (postponingRole) Commit()           {}

func TestGeometryFactor(t *testing.T) {
	cases := []struct {
		b    int32
		g    float64
		want float64
	}{
		{1, 1, 1},
		{2, 3, 4},
		{2, 1, 1},
	}
	for _, c := range cases {
		if got := geometryFactor(c.b, c.g); got != c.want {
			t.Errorf("geometryFactor(%d,%v): got %v, want %v", c.b, c.g, got, c.want)
		}
	}
}
