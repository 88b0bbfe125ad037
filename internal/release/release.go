// Package release implements the buffer-release tracker: deferred releases
// of client buffers once the renderer reports idleness, plus the frame
// callback nudge that fires once a drained release queue unblocks clients
// that wait on release ordering.
package release

// Buffer is the subset of a committed buffer's surface the tracker needs.
// The real buffer is owned by internal/surface; the tracker only ever
// releases it.
type Buffer interface {
	Release()
}

// IdleRegistrar is the renderer collaborator: it lets the tracker ask to be
// notified when the renderer is done reading a given buffer, and reports
// whether release can happen immediately instead.
type IdleRegistrar interface {
	// CanReleaseNow reports whether buf has already been fully consumed by
	// the renderer (e.g. a synchronous shm copy), letting the tracker skip
	// the deferred path entirely.
	CanReleaseNow(buf Buffer) bool
	// NotifyIdle registers cb to run once the renderer is done with buf.
	// It returns a cancel handle; the tracker removes it from its own
	// bookkeeping once the callback fires or the record is unlinked early.
	NotifyIdle(buf Buffer, cb func()) (cancel func())
	// Roundtrip blocks until every outstanding idle notification the
	// renderer owes this tracker has either fired or been canceled. Used
	// only by Teardown.
	Roundtrip()
}

// record is one queued deferred release, doubly linked via a sentinel head
// so it can be unlinked from an arbitrary position in O(1) — the arena/
// intrusive-list idiom this core uses throughout (see internal/surface's
// callback lists).
type record struct {
	prev, next *record
	buf        Buffer
	cancel     func()
}

// Tracker queues buffers for release once the renderer reports idleness,
// and runs pending frame callbacks once the queue drains.
type Tracker struct {
	renderer IdleRegistrar

	sentinel record // head.next is first record, head.prev is last

	frameCallbackPending bool
	onQueueDrained        func()
}

// NewTracker returns an empty Tracker bound to renderer.
func NewTracker(renderer IdleRegistrar) *Tracker {
	t := &Tracker{renderer: renderer}
	t.sentinel.next = &t.sentinel
	t.sentinel.prev = &t.sentinel
	return t
}

// SetFrameCallbackHook installs the callback the tracker invokes once the
// queue drains while a frame callback is pending — the role wires this to
// its own "run frame callbacks now" entry point.
func (t *Tracker) SetFrameCallbackHook(hook func()) {
	t.onQueueDrained = hook
}

// ArmFrameCallbackOnDrain marks that a frame callback is waiting on this
// surface's release queue to drain before it may fire, per the client
// convention of expecting frame callbacks only after all releases land.
func (t *Tracker) ArmFrameCallbackOnDrain() {
	t.frameCallbackPending = true
	if t.Empty() {
		t.fireDrainedHook()
	}
}

// Release is called on commit for the buffer a new attach is displacing. If
// the renderer can release immediately, it does so and reports true
// (callers set BufferAlreadyReleased on current state in that case).
// Otherwise the buffer is queued and Release returns false.
func (t *Tracker) Release(buf Buffer) (immediate bool) {
	if t.renderer.CanReleaseNow(buf) {
		buf.Release()
		return true
	}

	rec := &record{buf: buf}
	t.linkBack(rec)
	rec.cancel = t.renderer.NotifyIdle(buf, func() {
		t.onIdle(rec)
	})
	return false
}

func (t *Tracker) onIdle(rec *record) {
	if rec.prev == nil {
		return // already unlinked (teardown or duplicate callback)
	}
	t.unlink(rec)
	rec.buf.Release()
	if t.Empty() && t.frameCallbackPending {
		t.fireDrainedHook()
	}
}

func (t *Tracker) fireDrainedHook() {
	t.frameCallbackPending = false
	if t.onQueueDrained != nil {
		t.onQueueDrained()
	}
}

// Empty reports whether the queue holds no records.
func (t *Tracker) Empty() bool {
	return t.sentinel.next == &t.sentinel
}

// Teardown drains the queue synchronously: it round-trips the renderer so
// no idle callback can still be in flight, then releases every remaining
// buffer directly, unlinking as it goes.
func (t *Tracker) Teardown() {
	t.renderer.Roundtrip()
	for rec := t.sentinel.next; rec != &t.sentinel; {
		next := rec.next
		t.unlink(rec)
		rec.buf.Release()
		rec = next
	}
}

func (t *Tracker) linkBack(rec *record) {
	last := t.sentinel.prev
	last.next = rec
	rec.prev = last
	rec.next = &t.sentinel
	t.sentinel.prev = rec
}

func (t *Tracker) unlink(rec *record) {
	rec.prev.next = rec.next
	rec.next.prev = rec.prev
	rec.prev = nil
	rec.next = nil
}
