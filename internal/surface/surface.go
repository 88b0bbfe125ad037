// Package surface implements the client surface state machine: the
// pending/cached/current triple-buffer, damage and region tracking, and
// the commit pipeline that merges pending state into current and pushes it
// to the renderer collaborator.
package surface

// RoleHooks is the vtable a Role attaches to its Surface. A surface without
// a role leaves Role nil and Commit skips these steps.
type RoleHooks interface {
	// EarlyCommit runs before InternalCommit. Returning true postpones the
	// commit: pending is merged into cached instead of current.
	EarlyCommit() (postpone bool)
	// Commit runs after InternalCommit has merged pending into current.
	Commit()
}

// Surface is one client drawing primitive: pending/cached/current state,
// sentinel-linked callback lists, and the geometry factor the renderer view
// is scaled by.
type Surface struct {
	clientVersion int

	renderer Renderer
	role     RoleHooks

	pending *State
	cached  *State
	current *State

	commitCallbacks  *callbackList
	unmapCallbacks   *callbackList
	destroyCallbacks *callbackList

	globalScale float64
	factor      float64

	destroyed bool
}

// New returns a Surface bound to renderer, speaking protocol version
// clientVersion, with an initial global (output) scale.
func New(renderer Renderer, clientVersion int, globalScale float64) *Surface {
	s := &Surface{
		clientVersion:    clientVersion,
		renderer:         renderer,
		pending:          newState(),
		cached:           newState(),
		current:          newState(),
		commitCallbacks:  newCallbackList(),
		unmapCallbacks:   newCallbackList(),
		destroyCallbacks: newCallbackList(),
		globalScale:      globalScale,
		factor:           globalScale,
	}
	return s
}

// SetRole attaches a role's hooks. A surface carries at most one role over
// its lifetime; callers are responsible for enforcing that (the protocol
// error belongs to the role-creation request, not this package).
func (s *Surface) SetRole(role RoleHooks) {
	s.role = role
}

// Current returns the surface's current (post-commit) state.
func (s *Surface) Current() *State {
	return s.current
}

// Attach records a new pending buffer and offset. offsetX/offsetY must both
// be zero once the client speaks version >= 5 (non-zero offsets were
// deprecated in favor of surface-damage-based scrolling).
func (s *Surface) Attach(buf BufferHandle, offsetX, offsetY int32) error {
	if s.clientVersion >= 5 && (offsetX != 0 || offsetY != 0) {
		return ErrInvalidOffset
	}
	s.pending.buffer = buf
	s.pending.offsetX = offsetX
	s.pending.offsetY = offsetY
	s.pending.dirty |= pendingBuffer | pendingAttachments
	return nil
}

// Damage unions (x,y,w,h) into the pending surface-space damage region,
// clamping to the 65535 square.
func (s *Surface) Damage(x, y, w, h int32) {
	s.pending.surfaceDamage = s.pending.surfaceDamage.Union(Rect{X: x, Y: y, Width: w, Height: h})
	s.pending.dirty |= pendingSurfaceDamage
}

// DamageBuffer unions (x,y,w,h) into the pending buffer-space damage
// region, clamping to the 65535 square.
func (s *Surface) DamageBuffer(x, y, w, h int32) {
	s.pending.bufferDamage = s.pending.bufferDamage.Union(Rect{X: x, Y: y, Width: w, Height: h})
	s.pending.dirty |= pendingBufferDamage
}

// Frame appends a frame-callback to pending. A postponed commit splices it
// into cached and a full commit into current; nothing in this package fires
// the current frame-callback list.
func (s *Surface) Frame(cb func(data uint32)) Handle {
	h := s.pending.frameCallbacks.Append(cb)
	s.pending.dirty |= pendingFrameCallback
	return h
}

// SetInputRegion replaces the pending input region. r == nil restores the
// infinite default.
func (s *Surface) SetInputRegion(r Region) {
	if r == nil {
		r = InfiniteRegion()
	} else {
		r = r.Intersect(Rect{X: 0, Y: 0, Width: clampCoord, Height: clampCoord})
	}
	s.pending.inputRegion = r
	s.pending.dirty |= pendingInputRegion
}

// SetOpaqueRegion replaces the pending opaque region. r == nil clears it.
func (s *Surface) SetOpaqueRegion(r Region) {
	if r == nil {
		r = NewRectRegion()
	} else {
		r = r.Intersect(Rect{X: 0, Y: 0, Width: clampCoord, Height: clampCoord})
	}
	s.pending.opaqueRegion = r
	s.pending.dirty |= pendingOpaqueRegion
}

// SetBufferTransform validates and records the pending buffer transform.
func (s *Surface) SetBufferTransform(t uint32) error {
	if !ValidTransform(t) {
		return ErrInvalidTransform
	}
	s.pending.bufferTransform = Transform(t)
	s.pending.dirty |= pendingTransform
	return nil
}

// SetBufferScale validates and records the pending buffer scale.
func (s *Surface) SetBufferScale(scale int32) error {
	if scale <= 0 {
		return ErrInvalidScale
	}
	s.pending.bufferScale = scale
	s.pending.dirty |= pendingScale
	return nil
}

// SetViewport sets the pending viewport source rectangle and destination
// size. destWidth/destHeight may be unsetViewport (-1) to mean "derive from
// src", which src itself must then supply as integer dimensions.
func (s *Surface) SetViewport(src Rect, destWidth, destHeight int32) {
	s.pending.viewportSrc = src
	s.pending.viewportDestWidth = destWidth
	s.pending.viewportDestHeight = destHeight
	s.pending.dirty |= pendingViewport
}

// geometryFactor computes the effective scale from buffer scale b and
// global scale g: e = g-b; factor = b*(e+1) when e>=0, else b/|e-1|.
func geometryFactor(b int32, g float64) float64 {
	bf := float64(b)
	e := g - bf
	if e >= 0 {
		return bf * (e + 1)
	}
	return bf / absFloat(e-1)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// OnCommit/OnUnmap/OnDestroy append to the persistent callback lists (these survive across commits, unlike the per-State frame
// callback list).
func (s *Surface) OnCommit(cb func(data uint32)) Handle {
	return s.commitCallbacks.Append(cb)
}

func (s *Surface) OnUnmap(cb func(data uint32)) Handle {
	return s.unmapCallbacks.Append(cb)
}

func (s *Surface) OnDestroy(cb func(data uint32)) Handle {
	return s.destroyCallbacks.Append(cb)
}

// Commit runs the commit algorithm documented in §4.1: acquire-fence
// handling is delegated to the caller (concurrency model, §5 — this
// package assumes the fence has already been waited on by the time Commit
// is called); this method performs steps 2-8.
func (s *Surface) Commit() error {
	if postpone := s.role != nil && s.role.EarlyCommit(); postpone {
		s.mergeIntoCached()
		return nil
	}

	if err := s.internalCommit(); err != nil {
		var fault *ViewportFault
		if ok := asViewportFault(err, &fault); ok {
			return fault
		}
		return err
	}

	s.commitCallbacks.FireAllReversed(0)

	if s.role != nil {
		s.role.Commit()
	}

	if s.renderer.CanReleaseNow(s.current.buffer) {
		if s.current.buffer != nil {
			s.current.buffer.Release()
		}
		s.current.bufferReleasedEarly = true
	}

	return nil
}

func asViewportFault(err error, out **ViewportFault) bool {
	if f, ok := err.(*ViewportFault); ok {
		*out = f
		return true
	}
	return false
}

func (s *Surface) mergeIntoCached() {
	s.cached.surfaceDamage = mergeRegions(s.cached.surfaceDamage, s.pending.surfaceDamage)
	s.cached.bufferDamage = mergeRegions(s.cached.bufferDamage, s.pending.bufferDamage)
	s.cached.frameCallbacks.splice(s.pending.frameCallbacks)

	if s.pending.dirty&pendingBuffer != 0 {
		s.cached.buffer = s.pending.buffer
		s.cached.offsetX, s.cached.offsetY = s.pending.offsetX, s.pending.offsetY
	}
	if s.pending.dirty&pendingScale != 0 {
		s.cached.bufferScale = s.pending.bufferScale
	}
	if s.pending.dirty&pendingTransform != 0 {
		s.cached.bufferTransform = s.pending.bufferTransform
	}
	if s.pending.dirty&pendingInputRegion != 0 {
		s.cached.inputRegion = s.pending.inputRegion
	}
	if s.pending.dirty&pendingOpaqueRegion != 0 {
		s.cached.opaqueRegion = s.pending.opaqueRegion
	}
	if s.pending.dirty&pendingViewport != 0 {
		s.cached.viewportSrc = s.pending.viewportSrc
		s.cached.viewportDestWidth = s.pending.viewportDestWidth
		s.cached.viewportDestHeight = s.pending.viewportDestHeight
	}
	s.cached.dirty |= s.pending.dirty

	s.pending = newState()
}

// mergeRegions folds every rectangle of src into dst via Union, since
// Region's collaborator interface only exposes per-rect merging.
func mergeRegions(dst, src Region) Region {
	for _, r := range src.Rects() {
		dst = dst.Union(r)
	}
	return dst
}

// internalCommit merges pending into current in the fixed order §4.1
// documents, applying each dirty aspect to the renderer and moving (not
// copying) damage regions out of pending.
func (s *Surface) internalCommit() error {
	p := s.pending
	c := s.current

	if p.dirty&pendingBuffer != 0 {
		c.buffer = p.buffer
		c.offsetX, c.offsetY = p.offsetX, p.offsetY
		c.bufferReleasedEarly = false
		s.renderer.ApplyBuffer(c.buffer, c.offsetX, c.offsetY)
	}

	if p.dirty&pendingScale != 0 {
		c.bufferScale = p.bufferScale
	}
	newFactor := geometryFactor(c.bufferScale, s.globalScale)
	if newFactor != s.factor {
		s.factor = newFactor
		s.renderer.ApplyScale(s.factor)
	}

	if p.dirty&pendingTransform != 0 {
		c.bufferTransform = p.bufferTransform
		s.renderer.ApplyTransform(c.bufferTransform)
	}

	if p.dirty&pendingInputRegion != 0 {
		c.inputRegion = p.inputRegion
		s.renderer.ApplyInputRegion(c.inputRegion)
	}

	if p.dirty&pendingOpaqueRegion != 0 {
		c.opaqueRegion = p.opaqueRegion
		s.renderer.ApplyOpaqueRegion(c.opaqueRegion)
	}

	if p.dirty&pendingViewport != 0 {
		src, destW, destH, err := s.resolveViewport(p, c.buffer)
		if err != nil {
			return err
		}
		c.viewportSrc = src
		c.viewportDestWidth = destW
		c.viewportDestHeight = destH
		s.renderer.ApplyViewport(src, destW, destH)
	}

	if p.dirty&pendingBufferDamage != 0 {
		c.bufferDamage = p.bufferDamage
		s.renderer.ApplyBufferDamage(c.bufferDamage)
		p.bufferDamage = NewRectRegion()
	}

	if p.dirty&pendingSurfaceDamage != 0 {
		c.surfaceDamage = p.surfaceDamage
		s.renderer.ApplySurfaceDamage(c.surfaceDamage)
		p.surfaceDamage = NewRectRegion()
	}

	if p.dirty&pendingFrameCallback != 0 {
		c.frameCallbacks.splice(p.frameCallbacks)
	}

	c.dirty = p.dirty
	s.pending = newState()
	return nil
}

// resolveViewport validates the pending viewport against buf, defaulting
// an unset destination to the (integer) source dimensions, and rejecting
// source rects that extend past the buffer's rotated extent.
func (s *Surface) resolveViewport(p *State, buf BufferHandle) (src Rect, destW, destH int32, err error) {
	if !p.viewportSet() {
		return Rect{X: unsetViewport}, unsetViewport, unsetViewport, nil
	}

	src = p.viewportSrc
	destW, destH = p.viewportDestWidth, p.viewportDestHeight

	if destW == unsetViewport {
		destW = src.Width
		destH = src.Height
	}

	if buf == nil {
		return src, destW, destH, nil
	}

	bw, bh := float64(buf.Width()), float64(buf.Height())
	if p.bufferTransform.swapsDimensions() {
		bw, bh = bh, bw
	}
	bw /= float64(p.bufferScale)
	bh /= float64(p.bufferScale)

	if srcWidth(src) > bw || srcHeight(src) > bh || src.X < 0 || src.Y < 0 {
		return Rect{}, 0, 0, &ViewportFault{BadSize: true}
	}

	return src, destW, destH, nil
}

func srcWidth(r Rect) float64  { return float64(r.Width) }
func srcHeight(r Rect) float64 { return float64(r.Height) }

// Unmap fires unmap-callbacks. The role calls this when mapping policy
// transitions a mapped surface back to unmapped (first commit with no
// buffer).
func (s *Surface) Unmap() {
	s.unmapCallbacks.FireAll(0)
}

// Destroy fires destroy-callbacks exactly once.
func (s *Surface) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.destroyCallbacks.FireAll(0)
}
