//go:build linux

package waylandproto

import "fmt"

// wl_registry request opcodes.
const (
	registryBind Opcode = 0 // bind(name: uint, id: new_id)
)

// wl_registry event opcodes.
const (
	registryEventGlobal       Opcode = 0 // global(name: uint, interface: string, version: uint)
	registryEventGlobalRemove Opcode = 1 // global_remove(name: uint)
)

// Interface name strings this bridge advertises or consumes, matching
// the registered names in wayland.xml / xdg-shell.xml /
// linux-dmabuf-unstable-v1.xml.
const (
	InterfaceWlCompositor        = "wl_compositor"
	InterfaceWlShm               = "wl_shm"
	InterfaceWlSeat              = "wl_seat"
	InterfaceWlOutput            = "wl_output"
	InterfaceXdgWmBase           = "xdg_wm_base"
	InterfaceWlSubcompositor     = "wl_subcompositor"
	InterfaceWlDataDeviceManager = "wl_data_device_manager"
	InterfaceZwpLinuxDmabuf      = "zwp_linux_dmabuf_v1"
)

// Global is one entry in a wl_registry.global advertisement.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// serverRegistry is the server side of wl_registry: it is bound once
// per connection by wl_display.get_registry, immediately announces
// every configured GlobalDescriptor, and thereafter services bind
// requests by looking the name back up and invoking that global's
// Bind factory. Global names are assigned 1..N in the order Bootstrap
// was given them and never change for the lifetime of the connection
// — this bridge never hot-plugs a global, so global_remove is never
// sent.
type serverRegistry struct {
	id      ObjectID
	globals []GlobalDescriptor
	byName  map[uint32]GlobalDescriptor
}

func newServerRegistry(id ObjectID, deps Deps, globals []GlobalDescriptor) *serverRegistry {
	byName := make(map[uint32]GlobalDescriptor, len(globals))
	for i, g := range globals {
		byName[uint32(i+1)] = g
	}
	return &serverRegistry{id: id, globals: globals, byName: byName}
}

// announceGlobals sends one global event per configured descriptor, in
// Bootstrap's order, immediately after a client issues get_registry —
// matching every real compositor, which never waits to be asked before
// telling a client what it offers.
func (r *serverRegistry) announceGlobals(conn *ClientConn) error {
	for i, g := range r.globals {
		name := uint32(i + 1)
		builder := NewMessageBuilder()
		builder.PutUint32(name)
		builder.PutString(g.Interface)
		builder.PutUint32(g.Version)
		if err := conn.SendMessage(builder.BuildMessage(r.id, registryEventGlobal)); err != nil {
			return err
		}
	}
	return nil
}

func (r *serverRegistry) HandleRequest(conn *ClientConn, msg *Message) error {
	switch msg.Opcode {
	case registryBind:
		return r.handleBind(conn, msg)
	default:
		return conn.SendProtocolError(r.id, DisplayErrorInvalidMethod, fmt.Sprintf("wl_registry: unknown opcode %d", msg.Opcode))
	}
}

// handleBind decodes bind(name: uint, id: new_id). The new_id argument
// here is the generic form (the interface isn't fixed by the request
// signature), so its wire encoding carries the interface name and
// version ahead of the object id, exactly as wayland.xml specifies for
// wl_registry.bind.
func (r *serverRegistry) handleBind(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)

	name, err := decoder.Uint32()
	if err != nil {
		return err
	}
	ifaceName, err := decoder.String()
	if err != nil {
		return err
	}
	version, err := decoder.Uint32()
	if err != nil {
		return err
	}
	id, err := decoder.NewID()
	if err != nil {
		return err
	}

	desc, ok := r.byName[name]
	if !ok || desc.Interface != ifaceName {
		return conn.SendProtocolError(r.id, DisplayErrorInvalidObject,
			fmt.Sprintf("wl_registry: no global %d (%s)", name, ifaceName))
	}
	if desc.Bind == nil {
		return conn.SendProtocolError(r.id, DisplayErrorImplementation,
			fmt.Sprintf("wl_registry: global %s has no bind factory", ifaceName))
	}

	obj := desc.Bind(conn, id, version)
	conn.RegisterObject(id, obj)
	return nil
}
