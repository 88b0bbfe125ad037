//go:build linux

package waylandproto

import (
	"fmt"

	"github.com/gogpu/waybridge/internal/dmabuf"
	"github.com/gogpu/waybridge/internal/release"
	"github.com/gogpu/waybridge/internal/role"
	"github.com/gogpu/waybridge/internal/surface"
	"github.com/gogpu/waybridge/internal/xserver"
)


// ServerObject is one live protocol object bound into a ClientConn's
// namespace. Every interface this bridge implements server-side
// (wl_display, wl_registry, wl_compositor, wl_surface, xdg_wm_base, ...)
// decodes its own requests; HandleRequest is the single entry point
// dispatch routes a decoded Message to once the object ID has been
// resolved.
type ServerObject interface {
	// HandleRequest decodes msg.Args for msg.Opcode and performs the
	// request's effect, sending any reply/event the request implies.
	HandleRequest(conn *ClientConn, msg *Message) error
}

// GlobalDescriptor is one interface this bridge advertises through
// wl_registry.global. Bind is invoked when a client issues
// wl_registry.bind for this global's name; it constructs the bound
// object, which the registry then registers under the client's new id.
type GlobalDescriptor struct {
	Interface string
	Version   uint32
	Bind      func(conn *ClientConn, id ObjectID, version uint32) ServerObject
}

// Deps collects every core-engine collaborator a protocol object's
// request handler needs to reach. One Deps is shared read-only across
// every client connection; nothing in it is client-specific.
type Deps struct {
	XConn    *xserver.Connection
	Atoms    *xserver.StandardAtoms
	Surfaces *role.SurfaceTable
	Dmabuf   *dmabuf.DmabufImport
	Feedback dmabuf.FeedbackTable

	// Renderer is the rendering/buffer-import collaborator this bridge
	// does not implement (out of scope per the surface-commit pipeline's
	// external-collaborator boundary); requests still need an object
	// satisfying surface.Renderer to construct a surface.Surface.
	//
	// IdleRegistrar answers the same "is the renderer still reading this
	// buffer" question for release.Tracker, but as its own interface with
	// its own Buffer type (internal/release never imports internal/surface
	// and vice versa) — so a real backend wires one concrete
	// implementation to both roles via two thin adapters, not one shared
	// method set.
	Renderer      surface.Renderer
	IdleRegistrar release.IdleRegistrar

	// Scheduler batches ToplevelRole's ~10ms window-state delay; nil is
	// accepted (role.ToplevelRole applies state changes immediately when
	// it has no scheduler).
	Scheduler role.Scheduler

	GlobalScale        float64
	DirectStateChanges bool
}

// bootstrapState is the per-connection data Bootstrap stashes so that
// wl_display's get_registry handler (handled by wlDisplayObject, not by
// ClientConn directly, since wl_display is itself object 1 in the
// connection's own object table) can build the registry's global list.
type bootstrapState struct {
	deps    Deps
	globals []GlobalDescriptor
}

// Bootstrap registers object ID 1 (wl_display, always pre-allocated in
// the Wayland wire protocol) and records the set of globals this
// connection will advertise once the client calls get_registry. Call
// this once, immediately after Listener.Accept, before the connection
// is added to the poll set.
func (d *ClientConn) Bootstrap(deps Deps, globals []GlobalDescriptor) {
	d.mu.Lock()
	d.bootstrap = &bootstrapState{deps: deps, globals: globals}
	d.mu.Unlock()

	d.RegisterObject(1, &wlDisplayObject{})
}

// serverSideIDBase is the first id a server is allowed to allocate on its
// own initiative (wayland.xml reserves 0xff000000..0xffffffff for this;
// client-chosen ids always stay below it).
const serverSideIDBase = 0xff000000

// AllocateServerID returns the next free id in the server-allocated range,
// for requests (like zwp_linux_buffer_params_v1.create) whose resulting
// object's id isn't supplied by the client.
func (d *ClientConn) AllocateServerID() ObjectID {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.nextServerID == 0 {
		d.nextServerID = serverSideIDBase
	}
	id := d.nextServerID
	d.nextServerID++
	return id
}

// RegisterObject binds id to obj in this connection's object namespace,
// replacing whatever (if anything) previously held that id.
func (d *ClientConn) RegisterObject(id ObjectID, obj ServerObject) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.objects == nil {
		d.objects = make(map[ObjectID]ServerObject)
	}
	d.objects[id] = obj
}

// LookupObject returns the object bound to id, if any.
func (d *ClientConn) LookupObject(id ObjectID) (ServerObject, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.objects[id]
	return obj, ok
}

// DestroyObject removes id from the namespace and sends wl_display's
// delete_id event, letting the client recycle the id. Safe to call for
// an id that is not currently bound (a no-op delete_id is still sent,
// matching real compositor behavior for client-initiated destroy
// requests on objects the server may have already torn down).
func (d *ClientConn) DestroyObject(id ObjectID) {
	d.mu.Lock()
	delete(d.objects, id)
	d.mu.Unlock()

	builder := NewMessageBuilder()
	builder.PutUint32(uint32(id))
	_ = d.SendMessage(builder.BuildMessage(1, displayEventDeleteID))
}

// SendProtocolError sends wl_display.error for objectID, matching the
// fatal-protocol-error behavior every Wayland client expects: the
// client treats this as terminal and closes its end shortly after.
func (d *ClientConn) SendProtocolError(objectID ObjectID, code Opcode, message string) error {
	builder := NewMessageBuilder()
	builder.PutObject(objectID)
	builder.PutUint32(uint32(code))
	builder.PutString(message)
	return d.SendMessage(builder.BuildMessage(1, displayEventError))
}

// wlDisplayObject implements wl_display's two requests. It is always
// object ID 1; everything else a client binds flows from get_registry.
type wlDisplayObject struct{}

func (o *wlDisplayObject) HandleRequest(conn *ClientConn, msg *Message) error {
	switch msg.Opcode {
	case displaySync:
		return o.handleSync(conn, msg)
	case displayGetRegistry:
		return o.handleGetRegistry(conn, msg)
	default:
		return conn.SendProtocolError(1, DisplayErrorInvalidMethod, fmt.Sprintf("wl_display: unknown opcode %d", msg.Opcode))
	}
}

func (o *wlDisplayObject) handleSync(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	callbackID, err := decoder.NewID()
	if err != nil {
		return err
	}
	cb := &wlCallback{id: callbackID}
	conn.RegisterObject(callbackID, cb)
	return cb.fire(conn, 0)
}

func (o *wlDisplayObject) handleGetRegistry(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	registryID, err := decoder.NewID()
	if err != nil {
		return err
	}

	conn.mu.Lock()
	bs := conn.bootstrap
	conn.mu.Unlock()
	if bs == nil {
		return conn.SendProtocolError(1, DisplayErrorImplementation, "wl_display: get_registry before bootstrap")
	}

	reg := newServerRegistry(registryID, bs.deps, bs.globals)
	conn.RegisterObject(registryID, reg)
	return reg.announceGlobals(conn)
}

// wlCallback is the server side of wl_callback: a one-shot object that
// fires its done event then deletes itself. Every server-issued
// callback (sync, wl_surface.frame) is this same type; frame callbacks
// are fired with the frame time in milliseconds, sync callbacks with 0.
type wlCallback struct {
	id ObjectID
}

func (c *wlCallback) HandleRequest(conn *ClientConn, msg *Message) error {
	// wl_callback has no requests of its own; a client that sends one
	// anyway is a protocol error.
	return conn.SendProtocolError(c.id, DisplayErrorInvalidMethod, "wl_callback: has no requests")
}

func (c *wlCallback) fire(conn *ClientConn, data uint32) error {
	builder := NewMessageBuilder()
	builder.PutUint32(data)
	if err := conn.SendMessage(builder.BuildMessage(c.id, callbackEventDone)); err != nil {
		return err
	}
	conn.DestroyObject(c.id)
	return nil
}
