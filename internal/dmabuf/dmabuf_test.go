package dmabuf

import (
	"os"
	"testing"
)

func devNullFD(t *testing.T) int {
	t.Helper()
	f, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return int(f.Fd())
}

func newTestImporter() *DmabufImport {
	return NewDmabufImport([]FormatModifier{
		{Format: 0x34325258, Modifier: 0}, // XR24, linear
	})
}

func TestBufferParams_Add_RejectsOutOfRangePlaneIdx(t *testing.T) {
	d := newTestImporter()
	p := d.NewParams()
	if err := p.Add(4, devNullFD(t), 0, 0, 0); err != ErrPlaneIdx {
		t.Fatalf("expected ErrPlaneIdx, got %v", err)
	}
}

func TestBufferParams_Add_RejectsDuplicatePlane(t *testing.T) {
	d := newTestImporter()
	p := d.NewParams()
	if err := p.Add(0, devNullFD(t), 0, 64, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := p.Add(0, devNullFD(t), 0, 64, 0); err != ErrPlaneSet {
		t.Fatalf("expected ErrPlaneSet, got %v", err)
	}
}

func TestBufferParams_Add_RejectsModifierMismatch(t *testing.T) {
	d := newTestImporter()
	p := d.NewParams()
	if err := p.Add(0, devNullFD(t), 0, 64, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := p.Add(1, devNullFD(t), 0, 64, 1); err != ErrInvalidFormat {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestBufferParams_Create_RejectsPlaneGap(t *testing.T) {
	d := newTestImporter()
	p := d.NewParams()
	if err := p.Add(0, devNullFD(t), 0, 64, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := p.Add(2, devNullFD(t), 0, 64, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}

	res := p.Create(100, 100, 0x34325258, 0, 3, nil)
	if !res.Failed {
		t.Fatal("expected Create to fail on a plane gap")
	}
}

func TestBufferParams_Create_RejectsBadDims(t *testing.T) {
	d := newTestImporter()
	p := d.NewParams()
	if err := p.Add(0, devNullFD(t), 0, 64, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}

	res := p.Create(70000, 100, 0x34325258, 0, 3, nil)
	if !res.Failed {
		t.Fatal("expected Create to fail on an out-of-range dimension")
	}
}

func TestBufferParams_Create_UnsupportedFormat_FailedBelowV4(t *testing.T) {
	d := newTestImporter()
	p := d.NewParams()
	if err := p.Add(0, devNullFD(t), 0, 64, 99); err != nil {
		t.Fatalf("Add: %v", err)
	}

	res := p.Create(100, 100, 0x34325258, 0, 3, nil)
	if !res.Failed || res.Protocol != nil {
		t.Fatalf("expected Failed signal (not protocol error) at v3, got %+v", res)
	}
}

func TestBufferParams_Create_UnsupportedFormat_ProtocolErrorAtV4(t *testing.T) {
	d := newTestImporter()
	p := d.NewParams()
	if err := p.Add(0, devNullFD(t), 0, 64, 99); err != nil {
		t.Fatalf("Add: %v", err)
	}

	res := p.Create(100, 100, 0x34325258, 0, 4, nil)
	if res.Protocol != ErrUnsupportedFormat {
		t.Fatalf("expected protocol error at v4, got %+v", res)
	}
}

func TestBufferParams_Create_SucceedsAndBecomesInert(t *testing.T) {
	d := newTestImporter()
	p := d.NewParams()
	if err := p.Add(0, devNullFD(t), 0, 64, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}

	res := p.Create(100, 200, 0x34325258, 0, 3, nil)
	if res.Failed || res.Buffer == nil {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Buffer.Width != 100 || res.Buffer.Height != 200 {
		t.Fatalf("unexpected buffer dims: %+v", res.Buffer)
	}

	if again := p.Create(1, 1, 0x34325258, 0, 3, nil); !again.Failed {
		t.Fatal("expected inert params to fail a second Create")
	}
}

func TestBufferParams_DestroyMidCreation_DropsResult(t *testing.T) {
	d := newTestImporter()
	p := d.NewParams()
	if err := p.Add(0, devNullFD(t), 0, 64, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}

	released := false
	doImport := func(staged *ImportedBuffer) (*ImportedBuffer, error) {
		p.Destroy()
		return staged, nil
	}
	res := p.Create(100, 100, 0x34325258, 0, 3, doImport)
	if res.Buffer != nil || res.Failed {
		t.Fatalf("expected dropped result after mid-creation destroy, got %+v", res)
	}
	_ = released
	if p.Alive() {
		t.Fatal("expected Alive()==false after Destroy")
	}
}

func TestFeedbackTable_Tranches_CoversAllEntries(t *testing.T) {
	ft := &FeedbackTable{
		MainDevice: 0x1234,
		Entries: []FormatModifier{
			{Format: 1, Modifier: 0},
			{Format: 2, Modifier: 0},
		},
	}
	tranches := ft.Tranches()
	if len(tranches) != 1 {
		t.Fatalf("expected exactly one tranche, got %d", len(tranches))
	}
	if len(tranches[0].Indices) != 2 {
		t.Fatalf("expected tranche to cover both entries, got %v", tranches[0].Indices)
	}
	if tranches[0].TargetDevice != 0x1234 {
		t.Fatalf("expected main device target, got %#x", tranches[0].TargetDevice)
	}
}

func TestFeedbackTable_LegacyFormats_Dedupes(t *testing.T) {
	ft := &FeedbackTable{
		Entries: []FormatModifier{
			{Format: 1, Modifier: 0},
			{Format: 1, Modifier: 5},
			{Format: 2, Modifier: 0},
		},
	}
	got := ft.LegacyFormats()
	if len(got) != 2 {
		t.Fatalf("expected 2 deduped formats, got %v", got)
	}
}
