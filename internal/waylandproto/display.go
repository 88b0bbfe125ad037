//go:build linux

package waylandproto

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// wl_display opcodes (requests)
const (
	displaySync        Opcode = 0 // sync(callback: new_id)
	displayGetRegistry Opcode = 1 // get_registry(registry: new_id)
)

// wl_display event opcodes
const (
	displayEventError    Opcode = 0 // error(object_id: object, code: uint, message: string)
	displayEventDeleteID Opcode = 1 // delete_id(id: uint)
)

// Display error codes (from wayland.xml).
const (
	DisplayErrorInvalidObject  Opcode = 0 // server couldn't find object
	DisplayErrorInvalidMethod  Opcode = 1 // method doesn't exist on the specified interface
	DisplayErrorNoMemory       Opcode = 2 // server is out of memory
	DisplayErrorImplementation Opcode = 3 // implementation error in compositor
)

// Callback interface opcodes (wl_callback).
const (
	callbackEventDone Opcode = 0 // done(callback_data: uint)
)

// Errors returned by ClientConn/Listener operations.
var (
	ErrDisplayNotConnected = errors.New("wayland: connection closed or never established")
	ErrNoWaylandSocket     = errors.New("wayland: no wayland socket path configured")
	ErrProtocolError       = errors.New("wayland: protocol error")
	ErrConnectionClosed    = errors.New("wayland: connection closed")
	ErrNoMessage           = errors.New("wayland: no message available")
)

// ClientConn is one accepted client connection. wl_display is always
// object ID 1 in the Wayland protocol; every other object ID in this
// connection's namespace is allocated by the CLIENT (it picks the id it
// passes as a new_id argument to create_surface, get_registry, sync,
// ...) and the server side here only ever decodes and records what the
// client asked for — the id itself always originates on the wire.
//
// This was a client dialer (Display, wrapping net.Dial) before the
// bridge became the server side of the compositor protocol; the wire
// codec and SCM_RIGHTS fd-passing machinery below are unchanged. What
// changed is the direction of everything else: instead of bookkeeping
// outstanding requests this end sent and waiting for the compositor's
// reply, ClientConn now owns the object table a real compositor owns
// and decodes the requests arriving on it.
type ClientConn struct {
	conn     net.Conn
	connFile *os.File

	// Synchronization
	mu       sync.Mutex
	readBuf  []byte
	writeBuf []byte
	fdBuf    []int
	closed   bool

	// objects is this connection's live protocol object namespace,
	// keyed by the id the client chose when it created each object.
	// Object 1 (wl_display) is always present from Bootstrap onward.
	objects map[ObjectID]ServerObject

	// nextServerID hands out ids in the server-allocated range for
	// requests whose resulting object's id the client doesn't supply
	// (e.g. zwp_linux_buffer_params_v1.create). Lazily initialized to
	// serverSideIDBase on first use.
	nextServerID ObjectID

	// bootstrap holds the deps/globals Bootstrap recorded, consulted by
	// wl_display.get_registry to build the advertised global list.
	bootstrap *bootstrapState
}

// Listener accepts client connections on the compositor-protocol unix
// socket at $XDG_RUNTIME_DIR/$WAYLAND_DISPLAY (or WAYLAND_DISPLAY's literal
// path if it is absolute).
type Listener struct {
	ln       net.Listener
	path     string
	fileOnce *os.File
}

// Listen creates the socket at the default path derived from
// XDG_RUNTIME_DIR/WAYLAND_DISPLAY, defaulting WAYLAND_DISPLAY to
// "wayland-0" if unset.
func Listen() (*Listener, error) {
	socketPath, err := getSocketPath()
	if err != nil {
		return nil, err
	}
	return ListenAt(socketPath)
}

// ListenAt creates the socket at the given path, removing a stale socket
// left behind by a prior crashed instance (a fresh bind to an in-use path
// fails with EADDRINUSE, which is the signal a live compositor is already
// there — only an unconnectable stale path is removed).
func ListenAt(socketPath string) (*Listener, error) {
	if err := tryRemoveStaleSocket(socketPath); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("wayland: failed to listen on %s: %w", socketPath, err)
	}

	l := &Listener{ln: ln, path: socketPath}
	if ul, ok := ln.(*net.UnixListener); ok {
		if f, err := ul.File(); err == nil {
			l.fileOnce = f
		}
	}
	return l, nil
}

// Fd returns a file descriptor suitable for a ppoll fd set that becomes
// readable when a client connection is pending Accept, or -1 if the
// underlying listener doesn't expose one.
func (l *Listener) Fd() int {
	if l.fileOnce == nil {
		return -1
	}
	return int(l.fileOnce.Fd())
}

// tryRemoveStaleSocket unlinks socketPath if connecting to it fails,
// leaving a live socket (one a real listener is still serving) untouched.
func tryRemoveStaleSocket(socketPath string) error {
	if _, err := os.Stat(socketPath); err != nil {
		return nil // nothing there, or a stat error a Listen attempt will surface itself
	}
	probe, err := net.Dial("unix", socketPath)
	if err == nil {
		_ = probe.Close()
		return fmt.Errorf("wayland: socket %s is already in use", socketPath)
	}
	return os.Remove(socketPath)
}

// Accept blocks until a client connects, then wraps the connection in a
// ClientConn ready for SendMessage/RecvMessage/Dispatch.
func (l *Listener) Accept() (*ClientConn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("wayland: expected unix socket, got %T", conn)
	}

	file, err := unixConn.File()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wayland: failed to get socket file: %w", err)
	}

	d := &ClientConn{
		conn:     conn,
		connFile: file,
		readBuf:  make([]byte, maxMessageSize),
		writeBuf: make([]byte, 0, 4096),
		fdBuf:    make([]int, 0, 16),
	}

	return d, nil
}

// Close removes the listening socket.
func (l *Listener) Close() error {
	if l.fileOnce != nil {
		_ = l.fileOnce.Close()
	}
	err := l.ln.Close()
	_ = os.Remove(l.path)
	return err
}

// Path returns the unix socket path this listener is bound to.
func (l *Listener) Path() string {
	return l.path
}

// getSocketPath returns the path to the compositor-protocol socket this
// bridge listens on.
func getSocketPath() (string, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("%w: XDG_RUNTIME_DIR not set", ErrNoWaylandSocket)
	}

	display := os.Getenv("WAYLAND_DISPLAY")
	if display == "" {
		display = "wayland-0"
	}

	if filepath.IsAbs(display) {
		return display, nil
	}

	return filepath.Join(runtimeDir, display), nil
}

// Close closes the client connection.
func (d *ClientConn) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.objects = nil
	d.bootstrap = nil

	// Close file and connection
	if d.connFile != nil {
		_ = d.connFile.Close()
	}
	if d.conn != nil {
		return d.conn.Close()
	}

	return nil
}

// SendMessage sends a message to the client.
func (d *ClientConn) SendMessage(msg *Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDisplayNotConnected
	}

	// Encode message
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	// Send with or without file descriptors
	if len(msg.FDs) > 0 {
		return d.sendWithFDs(data, msg.FDs)
	}

	_, err = d.conn.Write(data)
	return err
}

// sendWithFDs sends data with file descriptors via SCM_RIGHTS.
func (d *ClientConn) sendWithFDs(data []byte, fds []int) error {
	fd := int(d.connFile.Fd())

	// Build control message for SCM_RIGHTS
	rights := unix.UnixRights(fds...)

	return unix.Sendmsg(fd, data, rights, nil, 0)
}

// RecvMessage receives a message from the client.
// It may block if no message is available.
func (d *ClientConn) RecvMessage() (*Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDisplayNotConnected
	}

	fd := int(d.connFile.Fd())

	// Prepare control message buffer for SCM_RIGHTS
	// Each fd is 4 bytes, allow for up to 28 fds
	// Control message header is 16 bytes (unix.Cmsghdr), data is 28*4 bytes
	// Total buffer size: 16 + 112 = 128 bytes, rounded up to 256 for safety
	oob := make([]byte, 256)

	n, oobn, _, _, err := unix.Recvmsg(fd, d.readBuf, oob, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrNoMessage
		}
		return nil, fmt.Errorf("wayland: recvmsg failed: %w", err)
	}

	if n == 0 {
		return nil, ErrConnectionClosed
	}

	// Parse received file descriptors
	fds, err := parseFileDescriptors(oob[:oobn])
	if err != nil {
		return nil, err
	}

	// Decode message
	decoder := NewDecoder(d.readBuf[:n])
	decoder.fds = fds

	msg, err := decoder.DecodeMessage()
	if err != nil {
		return nil, err
	}

	msg.FDs = fds
	return msg, nil
}

// DispatchOne reads and dispatches a single request from the client.
func (d *ClientConn) DispatchOne() error {
	msg, err := d.RecvMessage()
	if err != nil {
		if errors.Is(err, ErrNoMessage) {
			return nil // No message available is not an error
		}
		return err
	}

	return d.dispatch(msg)
}

// Dispatch reads and dispatches all pending requests from the client.
func (d *ClientConn) Dispatch() error {
	for {
		msg, err := d.RecvMessage()
		if err != nil {
			if errors.Is(err, ErrNoMessage) {
				return nil // No more messages
			}
			return err
		}

		if err := d.dispatch(msg); err != nil {
			return err
		}
	}
}

// dispatch routes a decoded request to the object it targets. An
// unknown object id is the client referencing something it never
// created (or something already destroyed) — a fatal protocol error in
// a real compositor, which wl_display.error communicates back to the
// client rather than silently dropping the request.
func (d *ClientConn) dispatch(msg *Message) error {
	obj, ok := d.LookupObject(msg.ObjectID)
	if !ok {
		return d.SendProtocolError(msg.ObjectID, DisplayErrorInvalidObject,
			fmt.Sprintf("no such object %d", msg.ObjectID))
	}
	return obj.HandleRequest(d, msg)
}

// Flush sends any buffered data to the client.
// This is typically not needed as messages are sent immediately.
func (d *ClientConn) Flush() error {
	// Currently messages are sent immediately, so this is a no-op.
	// In a production implementation, you might want to buffer
	// messages and flush them together for efficiency.
	return nil
}

// DisplayID returns the object ID of the display (always 1).
func (d *ClientConn) DisplayID() ObjectID {
	return 1
}

// Fd returns the file descriptor of the socket connection.
// This can be used with poll/epoll for event loop integration.
func (d *ClientConn) Fd() int {
	if d.connFile == nil {
		return -1
	}
	return int(d.connFile.Fd())
}

// Ptr returns the file descriptor as a uintptr for use with Vulkan surface creation.
// This is used with VK_KHR_wayland_surface extension.
// Note: In Wayland, we pass the fd as the "display pointer" since ClientConn
// wraps a Unix socket connection, not a C pointer.
func (d *ClientConn) Ptr() uintptr {
	return uintptr(d.Fd())
}

// parseFileDescriptors extracts file descriptors from socket control messages.
func parseFileDescriptors(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}

	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("wayland: parse control message failed: %w", err)
	}

	var fds []int
	for _, scm := range scms {
		if scm.Header.Level != unix.SOL_SOCKET || scm.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		gotFDs, err := unix.ParseUnixRights(&scm)
		if err != nil {
			return nil, fmt.Errorf("wayland: parse unix rights failed: %w", err)
		}
		fds = append(fds, gotFDs...)
	}

	return fds, nil
}
