package role

import (
	"sync"

	"github.com/gogpu/waybridge/internal/xserver"
)

// SurfaceTable is the process-wide lookup from a backing window's X resource
// ID back to the XdgRole that owns it. The protocol layer registers and
// forgets entries; the bridge's X event pump does not consult it, so X
// events are not routed to roles through it. Grounded on the teacher's
// map-keyed handle-table pattern (Connection.pendingReplies keyed by
// sequence number, Display.callbacks keyed by object ID) applied here to
// window IDs instead.
type SurfaceTable struct {
	mu    sync.Mutex
	byWin map[xserver.ResourceID]*XdgRole
}

// NewSurfaceTable constructs an empty table.
func NewSurfaceTable() *SurfaceTable {
	return &SurfaceTable{byWin: make(map[xserver.ResourceID]*XdgRole)}
}

// Register associates a role with its backing window's resource ID.
func (t *SurfaceTable) Register(id xserver.ResourceID, r *XdgRole) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byWin[id] = r
}

// Lookup returns the role owning id, if any.
func (t *SurfaceTable) Lookup(id xserver.ResourceID) (*XdgRole, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.byWin[id]
	return r, ok
}

// Forget removes the association, called once a role's refcount reaches
// zero and its backing window is destroyed.
func (t *SurfaceTable) Forget(id xserver.ResourceID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byWin, id)
}

// Len reports how many windows are currently tracked.
func (t *SurfaceTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byWin)
}

// Each calls fn once per registered role. fn must not call back into the
// table (Register/Forget) while iterating.
func (t *SurfaceTable) Each(fn func(id xserver.ResourceID, r *XdgRole)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, r := range t.byWin {
		fn(id, r)
	}
}
