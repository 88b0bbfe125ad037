package role

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/gogpu/waybridge/internal/xserver"
)

// Capabilities is the wm_capabilities bitmask negotiated for clients at
// protocol version >= 5.
type Capabilities uint32

const (
	CapWindowMenu Capabilities = 1 << iota
	CapMaximize
	CapFullscreen
	CapMinimize
)

// DecorationMode selects who draws the window's border and title bar.
type DecorationMode uint8

const (
	DecorationClientSide DecorationMode = iota
	DecorationServerSide
)

// Errors ToplevelRole's request handlers can raise.
var ErrCyclicParent = fmt.Errorf("role: invalid-parent")

// Scheduler lets ToplevelRole defer the ~10ms state/size synthesis batch
// window (§4.3's StateDelay) without owning a real timer itself — the
// bridge supplies the concrete implementation (timerScheduler, backed by
// time.AfterFunc).
type Scheduler interface {
	// After schedules fn to run once, after roughly d. It returns a cancel
	// function; canceling after fn has already run is a no-op.
	After(d uint32Millis, fn func()) (cancel func())
}

// uint32Millis documents that Scheduler durations are plain milliseconds,
// matching the rest of this core's time representation.
type uint32Millis = uint32

// dimsKey is a (maximized, fullscreen) combination used to key the history
// of observed {width,height} tuples the state-synthesis workaround consults
// when a configure arrives before the corresponding property-notify.
type dimsKey struct {
	maximized, fullscreen bool
}

type dims struct {
	width, height uint16
}

// ToplevelRole implements the WM-facing state machine on top of an
// XdgRole: maximize/fullscreen/activate/resize state, decoration mode,
// parent/transient-for links, and the resize choreography that
// accumulates edge deltas between configure and ack.
type ToplevelRole struct {
	*XdgRole

	window ToplevelWindow
	atoms  *xserver.StandardAtoms

	title string
	appID string

	maximized  bool
	fullscreen bool
	activated  bool
	resizing   bool

	capabilities Capabilities

	parent *ToplevelRole

	decoration DecorationMode

	minWidth, minHeight int32
	maxWidth, maxHeight int32

	// resize choreography: accumulated deltas from the chosen edge, applied
	// atomically once the corresponding configure is acked and committed.
	pendingDeltaX, pendingDeltaY int32

	scheduler       Scheduler
	stateDelayTimer func()
	directStateChanges bool

	history map[dimsKey]dims

	titleEncoder *charmap.Charmap
}

// NewToplevelRole constructs a ToplevelRole with the default capability set
// (all of window-menu/maximize/fullscreen/minimize) and client-side
// decorations.
func NewToplevelRole(xdg *XdgRole, window ToplevelWindow, atoms *xserver.StandardAtoms, scheduler Scheduler) *ToplevelRole {
	return &ToplevelRole{
		XdgRole:      xdg,
		window:       window,
		atoms:        atoms,
		capabilities: CapWindowMenu | CapMaximize | CapFullscreen | CapMinimize,
		scheduler:    scheduler,
		history:      make(map[dimsKey]dims),
		titleEncoder: charmap.ISO8859_1,
	}
}

// SetDirectStateChanges disables the 10ms configure batch window, matching
// the DIRECT_STATE_CHANGES environment variable (§6).
func (t *ToplevelRole) SetDirectStateChanges(direct bool) {
	t.directStateChanges = direct
}

// Capabilities returns the negotiated capability mask.
func (t *ToplevelRole) Capabilities() Capabilities {
	return t.capabilities
}

// SetTitle writes the UTF-8 EWMH name and a Latin-1 downconversion of the
// same title to the legacy WM_NAME property, truncating to the transport's
// 4-byte request quantum if the encoded form is oversize.
func (t *ToplevelRole) SetTitle(title string) error {
	t.title = title
	if err := t.window.SetTitle(title); err != nil {
		return err
	}

	encoded, err := encoding.ReplaceUnsupported(t.titleEncoder.NewEncoder()).Bytes([]byte(title))
	if err != nil {
		// Characters outside Latin-1 were replaced by the encoder's
		// configured substitute where possible; on hard failure fall back
		// to a best-effort ASCII-only copy rather than losing WM_NAME.
		encoded = asciiFallback(title)
	}
	const requestQuantum = 4
	// Largest ChangeProperty payload: the core request-length limit of
	// 0xFFFF quanta, less the request's 24-byte header.
	const maxLegacyName = 0xFFFF*requestQuantum - 24
	if len(encoded) > maxLegacyName {
		encoded = encoded[:maxLegacyName]
	}
	return t.window.SetLegacyName(encoded)
}

func asciiFallback(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r <= 0x7F {
			out = append(out, byte(r))
		} else {
			out = append(out, '?')
		}
	}
	return out
}

// SetAppId writes WM_CLASS, but only while the window is not yet mapped.
func (t *ToplevelRole) SetAppId(appID string) error {
	t.appID = appID
	if t.Mapped() {
		return nil
	}
	return t.window.SetClass(appID, appID)
}

// SetParent updates the transient-for link, refusing to create a cycle.
func (t *ToplevelRole) SetParent(parent *ToplevelRole) error {
	if parent != nil {
		for p := parent; p != nil; p = p.parent {
			if p == t {
				return ErrCyclicParent
			}
		}
	}
	t.parent = parent
	return nil
}

// Parent returns the current transient-for target, or nil.
func (t *ToplevelRole) Parent() *ToplevelRole {
	return t.parent
}

// ReparentToGrandparent is invoked when the current parent unmaps; it never
// forms a cycle since the grandparent was already validated when the
// parent's own link was set.
func (t *ToplevelRole) ReparentToGrandparent() {
	if t.parent != nil {
		t.parent = t.parent.parent
	}
}

// SetMaximized posts the corresponding _NET_WM_STATE client message; the
// authoritative state change arrives later via a WM property-notify, which
// the caller reports through NoteWMState.
func (t *ToplevelRole) SetMaximized(maximized bool) error {
	return t.window.SetMaximized(maximized)
}

// SetFullscreen posts the _NET_WM_STATE_FULLSCREEN client message.
func (t *ToplevelRole) SetFullscreen(fullscreen bool) error {
	return t.window.SetFullscreen(fullscreen)
}

// NoteWMState is called when a _NET_WM_STATE property-notify confirms a
// state change the role requested (or the WM initiated unprompted). It
// batches the observed state alongside the next configure's dimensions
// within the ~10ms StateDelay window, unless a resize drag is in progress
// or DIRECT_STATE_CHANGES is set, in which case it applies immediately.
func (t *ToplevelRole) NoteWMState(maximized, fullscreen, activated bool) {
	apply := func() {
		t.maximized, t.fullscreen, t.activated = maximized, fullscreen, activated
	}
	if t.resizing || t.directStateChanges || t.scheduler == nil {
		apply()
		return
	}
	if t.stateDelayTimer != nil {
		t.stateDelayTimer()
	}
	t.stateDelayTimer = t.scheduler.After(10, apply)
}

// NoteConfigureDimensions records {width,height} against the current
// (maximized,fullscreen) combination, and is consulted by GuessStateFromDims
// when a configure arrives before its corresponding property-notify.
func (t *ToplevelRole) NoteConfigureDimensions(width, height uint16) {
	t.history[dimsKey{t.maximized, t.fullscreen}] = dims{width, height}
}

// GuessStateFromDims looks up the most recently recorded (maximized,
// fullscreen) combination whose dimensions match, used only until the
// confirming property-notify lands.
func (t *ToplevelRole) GuessStateFromDims(width, height uint16) (maximized, fullscreen bool, ok bool) {
	for key, d := range t.history {
		if d.width == width && d.height == height {
			return key.maximized, key.fullscreen, true
		}
	}
	return false, false, false
}

// SetMinSize / SetMaxSize validate and rewrite WM_NORMAL_HINTS at once;
// the new hints are not held back until the next commit.
func (t *ToplevelRole) SetMinSize(w, h int32) error {
	if w < 0 || h < 0 {
		return fmt.Errorf("role: negative min size")
	}
	t.minWidth, t.minHeight = w, h
	return t.writeSizeHints()
}

func (t *ToplevelRole) SetMaxSize(w, h int32) error {
	if w < 0 || h < 0 {
		return fmt.Errorf("role: negative max size")
	}
	t.maxWidth, t.maxHeight = w, h
	return t.writeSizeHints()
}

func (t *ToplevelRole) writeSizeHints() error {
	var flags uint32
	if t.minWidth > 0 || t.minHeight > 0 {
		flags |= xserver.HintPMinSize
	}
	if t.maxWidth > 0 || t.maxHeight > 0 {
		flags |= xserver.HintPMaxSize
	}
	return t.window.SetSizeHints(xserver.SizeHints{
		Flags:     flags,
		MinWidth:  t.minWidth,
		MinHeight: t.minHeight,
		MaxWidth:  t.maxWidth,
		MaxHeight: t.maxHeight,
	})
}

// SetDecorationMode transitions the decoration mode, applying the motif
// hints only on an actual transition.
func (t *ToplevelRole) SetDecorationMode(mode DecorationMode) error {
	if mode == t.decoration {
		return nil
	}
	t.decoration = mode
	var hints *xserver.MotifWMHints
	if mode == DecorationServerSide {
		hints = &xserver.MotifWMHints{
			Flags:       xserver.MotifHintsDecorations,
			Decorations: xserver.MotifDecorAll,
		}
	} else {
		hints = &xserver.MotifWMHints{
			Flags:       xserver.MotifHintsDecorations,
			Decorations: 0,
		}
	}
	return t.window.SetMotifHints(hints)
}

// BeginResize arms resize-in-progress (suppressing state-delay batching).
// The edge arguments are not recorded; west/north deltas are supplied by
// the caller through AccumulateResizeDelta.
func (t *ToplevelRole) BeginResize(edgeWest, edgeNorth bool) {
	t.resizing = true
}

// AccumulateResizeDelta adds to the pending west/north deltas; repeated
// calls before the prior configure is acked accumulate rather than
// overwrite, per §4.3's resize choreography.
func (t *ToplevelRole) AccumulateResizeDelta(dx, dy int32) {
	t.pendingDeltaX += dx
	t.pendingDeltaY += dy
}

// EndResize completes the drag: once the corresponding configure is acked
// and the next commit lands, the accumulated deltas are applied atomically
// by the caller via ConsumeResizeDelta, and the resizing flag clears so
// state-delay batching resumes. EndResize itself sends nothing: the
// current states are not re-broadcast.
func (t *ToplevelRole) EndResize() {
	t.resizing = false
}

// ConsumeResizeDelta returns and clears the accumulated west/north deltas.
func (t *ToplevelRole) ConsumeResizeDelta() (dx, dy int32) {
	dx, dy = t.pendingDeltaX, t.pendingDeltaY
	t.pendingDeltaX, t.pendingDeltaY = 0, 0
	return dx, dy
}

// State returns the four WM-observable booleans.
func (t *ToplevelRole) State() (maximized, fullscreen, activated, resizing bool) {
	return t.maximized, t.fullscreen, t.activated, t.resizing
}
