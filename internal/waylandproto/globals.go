//go:build linux

package waylandproto

// StandardGlobals builds the GlobalDescriptor list this bridge advertises:
// wl_compositor, xdg_wm_base, wl_shm, and zwp_linux_dmabuf_v1. wl_seat is
// deliberately absent — input routing is out of scope, and every
// seat-carrying xdg_toplevel request decodes to a no-op precisely because
// a conforming client can never construct one against this list.
func StandardGlobals(deps Deps) []GlobalDescriptor {
	return []GlobalDescriptor{
		{
			Interface: InterfaceWlCompositor,
			Version:   4,
			Bind: func(conn *ClientConn, id ObjectID, version uint32) ServerObject {
				return newWlCompositor(id, deps)
			},
		},
		{
			Interface: InterfaceXdgWmBase,
			Version:   3,
			Bind: func(conn *ClientConn, id ObjectID, version uint32) ServerObject {
				return newXdgWmBase(id, deps)
			},
		},
		{
			Interface: InterfaceWlShm,
			Version:   1,
			Bind: func(conn *ClientConn, id ObjectID, version uint32) ServerObject {
				shm := newWlShm(id, deps)
				_ = shm.announceFormats(conn)
				return shm
			},
		},
		{
			Interface: InterfaceZwpLinuxDmabuf,
			Version:   4,
			Bind: func(conn *ClientConn, id ObjectID, version uint32) ServerObject {
				dmabuf := newWlDmabufObject(id, deps, version)
				_ = dmabuf.announceFormats(conn)
				return dmabuf
			},
		},
	}
}
