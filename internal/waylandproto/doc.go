//go:build linux

// Package waylandproto implements the server side of the compositor
// protocol: the bridge listens on the compositor-protocol unix socket and
// speaks the wire format directly, without linking libwayland-server.so.
// This enables zero-CGO builds on Linux.
//
// # Wire Protocol
//
// Wayland uses a binary wire protocol over Unix domain sockets. Messages
// consist of a header (object ID + size/opcode) followed by arguments.
// All values are encoded as 32-bit little-endian words.
//
// The wire format is:
//
//	+--------+--------+--------+--------+
//	| Object ID (4 bytes)               |
//	+--------+--------+--------+--------+
//	| Size (16 bits) | Opcode (16 bits) |
//	+--------+--------+--------+--------+
//	| Arguments...                      |
//	+--------+--------+--------+--------+
//
// # Argument Types
//
// The protocol supports several argument types:
//   - int: Signed 32-bit integer
//   - uint: Unsigned 32-bit integer
//   - fixed: Signed 24.8 fixed-point number
//   - string: Length-prefixed UTF-8 string (padded to 4 bytes)
//   - object: Object ID (uint32)
//   - new_id: New object ID (uint32), sometimes with interface+version
//   - array: Length-prefixed byte array (padded to 4 bytes)
//   - fd: File descriptor (passed via SCM_RIGHTS)
//
// # Core Interfaces
//
// This package implements the core Wayland interfaces:
//   - wl_display: The connection to the compositor (object ID 1)
//   - wl_registry: Global registry for binding to interfaces
//
// Additional interfaces (wl_compositor, wl_surface, xdg_wm_base, etc.)
// are implemented in separate files.
//
// # Usage
//
// Listen for client connections, accept one, and bootstrap it with the
// shared Deps before dispatching:
//
//	ln, err := waylandproto.Listen()
//	if err != nil {
//	    return err
//	}
//	defer ln.Close()
//
//	conn, err := ln.Accept()
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	conn.Bootstrap(deps, waylandproto.StandardGlobals(deps))
//	conn.Dispatch()
//
// # File Descriptors
//
// Wayland uses SCM_RIGHTS to pass file descriptors for shared memory
// buffers and DMA-BUF handles. This requires special socket handling
// via the golang.org/x/sys/unix package.
//
// # Thread Safety
//
// ClientConn is safe for concurrent use from multiple goroutines, but the
// bridge's single-threaded event loop is the only intended caller; the
// locking here guards against SCM_RIGHTS fd-passing reentrancy, not a
// multi-goroutine dispatch model.
package waylandproto
