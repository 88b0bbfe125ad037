package surface

// dirty bits identifying which aspects of a State are live. Named to match
// the pending-bitmask §3 describes ("PendingBuffer|PendingAttachments", …).
type dirty uint32

const (
	pendingBuffer dirty = 1 << iota
	pendingAttachments
	pendingBufferDamage
	pendingSurfaceDamage
	pendingFrameCallback
	pendingInputRegion
	pendingOpaqueRegion
	pendingTransform
	pendingScale
	pendingViewport
)

// unsetViewport is the -1 sentinel §3 specifies for an unset viewport
// source or destination.
const unsetViewport = -1

// State is one phase's worth of surface attributes: pending, cached, or
// current. Damage regions are moved (not copied) out on commit, per the
// per-phase invariant in §3.
type State struct {
	dirty dirty

	buffer       BufferHandle
	bufferReleasedEarly bool
	offsetX, offsetY int32

	bufferScale     int32
	bufferTransform Transform

	viewportSrc           Rect
	viewportDestWidth     int32
	viewportDestHeight    int32

	bufferDamage  Region
	surfaceDamage Region

	inputRegion  Region
	opaqueRegion Region

	frameCallbacks *callbackList
}

// newState returns a State with the spec's documented defaults: input
// region infinite, opaque region empty, viewport unset, scale 1.
func newState() *State {
	return &State{
		bufferScale:        1,
		viewportSrc:        Rect{X: unsetViewport},
		viewportDestWidth:  unsetViewport,
		viewportDestHeight: unsetViewport,
		inputRegion:        InfiniteRegion(),
		opaqueRegion:       NewRectRegion(),
		bufferDamage:       NewRectRegion(),
		surfaceDamage:      NewRectRegion(),
		frameCallbacks:     newCallbackList(),
	}
}

func (s *State) viewportSet() bool {
	return s.viewportSrc.X != unsetViewport
}

// BufferAlreadyReleased reports whether the early-release path fired for
// this state's buffer during commit (scenario 5).
func (s *State) BufferAlreadyReleased() bool {
	return s.bufferReleasedEarly
}

// Buffer returns the state's attached buffer, or nil if none.
func (s *State) Buffer() BufferHandle {
	return s.buffer
}
