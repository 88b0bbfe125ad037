// Package role implements the trait-like role system a Surface adopts at
// most once over its lifetime: XdgRole (server window ownership and the
// configure/ack handshake) and ToplevelRole (the window-manager-facing
// state machine built on top of it).
package role

import "github.com/gogpu/waybridge/internal/surface"

// Hooks is the vtable a role attaches to its surface: commit, subframe
// bracketing, buffer release notification, window lookup, rescale, and
// focus notification. Not every role kind uses every hook; unused hooks
// are no-ops. This is the "tagged variant over known role kinds" §9 calls
// for in place of dynamic vtable dispatch: in Go, that's simply a
// concrete struct (XdgRole, ToplevelRole) implementing the methods it
// needs and leaving the rest as documented no-ops.
type Hooks interface {
	surface.RoleHooks
	Subframe()
	EndSubframe()
	ReleaseBuffer(buf surface.BufferHandle)
	Rescale()
	NoteFocus(focused bool)
}

// Kind tags which concrete role a Surface has adopted.
type Kind uint8

const (
	KindNone Kind = iota
	KindXdgToplevel
	KindXdgPopup
)
