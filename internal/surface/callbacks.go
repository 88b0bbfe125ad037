package surface

// callbackNode is one entry in a sentinel-headed doubly-linked callback
// list — the arena/intrusive-list idiom §9's design notes call for:
// O(1) insert/remove from an arbitrary position, removable by opaque
// handle, safe to walk while the current node is removed mid-iteration.
type callbackNode struct {
	prev, next *callbackNode
	fn         func(data uint32)
}

// callbackList is FrameCallback/CommitCallback/UnmapCallback/DestroyCallback:
// a sentinel head making every list walk unconditional, per §3.
type callbackList struct {
	sentinel callbackNode
}

func newCallbackList() *callbackList {
	l := &callbackList{}
	l.sentinel.next = &l.sentinel
	l.sentinel.prev = &l.sentinel
	return l
}

// Handle is an opaque removal token for a registered callback.
type Handle struct {
	node *callbackNode
}

// Append adds fn to the end of the list (creation order is preserved,
// which commit-callback ordering depends on) and returns a handle that can
// remove it later.
func (l *callbackList) Append(fn func(data uint32)) Handle {
	node := &callbackNode{fn: fn}
	last := l.sentinel.prev
	last.next = node
	node.prev = last
	node.next = &l.sentinel
	l.sentinel.prev = node
	return Handle{node: node}
}

// Remove unlinks h's node if still present. Safe to call more than once.
func (l *callbackList) Remove(h Handle) {
	if h.node == nil || h.node.prev == nil {
		return
	}
	h.node.prev.next = h.node.next
	h.node.next.prev = h.node.prev
	h.node.prev = nil
	h.node.next = nil
}

// FireAll invokes every callback with data, in list order, then empties the
// list. The next-node pointer is captured before invoking the callback so a
// callback that removes itself (or another node) does not corrupt the walk.
func (l *callbackList) FireAll(data uint32) {
	node := l.sentinel.next
	for node != &l.sentinel {
		next := node.next
		node.prev = nil
		node.next = nil
		node.fn(data)
		node = next
	}
	l.sentinel.next = &l.sentinel
	l.sentinel.prev = &l.sentinel
}

// FireAllReversed invokes every callback in reverse creation order and
// leaves the list intact, so each callback runs again on every later call
// until it is removed. Commit-callback ordering uses this: subsurface commit
// confirmations depend on the reverse order (an ambiguity in the source
// this was distilled from, resolved here per its own noted intent — see
// DESIGN.md).
func (l *callbackList) FireAllReversed(data uint32) {
	node := l.sentinel.prev
	for node != &l.sentinel {
		prev := node.prev
		node.fn(data)
		node = prev
	}
}

// Empty reports whether the list holds no callbacks.
func (l *callbackList) Empty() bool {
	return l.sentinel.next == &l.sentinel
}

// splice moves every node from other onto the end of l, in order, leaving
// other empty. Used when a postponed commit merges its pending frame
// callbacks into the cached state's list.
func (l *callbackList) splice(other *callbackList) {
	if other.Empty() {
		return
	}
	first := other.sentinel.next
	last := other.sentinel.prev

	lLast := l.sentinel.prev
	lLast.next = first
	first.prev = lLast
	last.next = &l.sentinel
	l.sentinel.prev = last

	other.sentinel.next = &other.sentinel
	other.sentinel.prev = &other.sentinel
}
