//go:build linux

package waylandproto

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/gogpu/waybridge/internal/surface"
)

// wl_shm opcodes (requests)
const (
	shmCreatePool Opcode = 0 // create_pool(id: new_id<wl_shm_pool>, fd: fd, size: int)
)

// wl_shm event opcodes
const (
	shmEventFormat Opcode = 0 // format(format: uint)
)

// wl_shm error codes.
const (
	shmErrorInvalidFormat Opcode = 0
	shmErrorInvalidStride Opcode = 1
	shmErrorInvalidFD     Opcode = 2
)

// wl_shm_pool opcodes (requests)
const (
	shmPoolCreateBuffer Opcode = 0 // create_buffer(id: new_id, offset: int, width: int, height: int, stride: int, format: uint)
	shmPoolDestroy      Opcode = 1 // destroy()
	shmPoolResize       Opcode = 2 // resize(size: int)
)

// wl_buffer opcodes (requests)
const (
	bufferDestroy Opcode = 0 // destroy()
)

// wl_buffer event opcodes
const (
	bufferEventRelease Opcode = 0 // release()
)

// ShmFormat is a pixel format supported by wl_shm, matching the
// wl_shm_format enum from wayland.xml.
type ShmFormat uint32

const (
	ShmFormatARGB8888 ShmFormat = 0
	ShmFormatXRGB8888 ShmFormat = 1
)

func (f ShmFormat) String() string {
	switch f {
	case ShmFormatARGB8888:
		return "ARGB8888"
	case ShmFormatXRGB8888:
		return "XRGB8888"
	default:
		return fmt.Sprintf("0x%08X", uint32(f))
	}
}

// advertisedShmFormats is sent as format events right after a client binds
// wl_shm; ARGB8888/XRGB8888 are the two formats wayland.xml requires every
// compositor to support unconditionally.
var advertisedShmFormats = []ShmFormat{ShmFormatARGB8888, ShmFormatXRGB8888}

// WlShm is the server side of wl_shm: it turns a client-supplied,
// memory-mapped fd into pool/buffer objects. It holds no state of its own
// beyond its id — every pool is independent.
type WlShm struct {
	id ObjectID
}

func newWlShm(id ObjectID, deps Deps) *WlShm {
	return &WlShm{id: id}
}

func (s *WlShm) announceFormats(conn *ClientConn) error {
	for _, f := range advertisedShmFormats {
		builder := NewMessageBuilder()
		builder.PutUint32(uint32(f))
		if err := conn.SendMessage(builder.BuildMessage(s.id, shmEventFormat)); err != nil {
			return err
		}
	}
	return nil
}

func (s *WlShm) HandleRequest(conn *ClientConn, msg *Message) error {
	switch msg.Opcode {
	case shmCreatePool:
		return s.handleCreatePool(conn, msg)
	default:
		return conn.SendProtocolError(s.id, DisplayErrorInvalidMethod, fmt.Sprintf("wl_shm: unknown opcode %d", msg.Opcode))
	}
}

func (s *WlShm) handleCreatePool(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	decoder.fds = msg.FDs
	id, err := decoder.NewID()
	if err != nil {
		return err
	}
	fd, err := decoder.FD()
	if err != nil {
		return err
	}
	size, err := decoder.Int32()
	if err != nil {
		return err
	}
	if size <= 0 {
		unix.Close(fd)
		return conn.SendProtocolError(s.id, shmErrorInvalidFD, "wl_shm.create_pool: non-positive size")
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	unix.Close(fd) // the mapping holds its own reference; the fd itself isn't needed after mmap
	if err != nil {
		return conn.SendProtocolError(s.id, shmErrorInvalidFD, fmt.Sprintf("wl_shm.create_pool: mmap: %v", err))
	}

	pool := &WlShmPool{id: id, data: data}
	conn.RegisterObject(id, pool)
	return nil
}

// WlShmPool is the server side of wl_shm_pool: the memory-mapped region a
// client's buffers are carved out of.
type WlShmPool struct {
	id ObjectID

	mu   sync.Mutex
	data []byte
}

func (p *WlShmPool) HandleRequest(conn *ClientConn, msg *Message) error {
	switch msg.Opcode {
	case shmPoolCreateBuffer:
		return p.handleCreateBuffer(conn, msg)
	case shmPoolDestroy:
		return p.handleDestroy(conn, msg)
	case shmPoolResize:
		return p.handleResize(conn, msg)
	default:
		return conn.SendProtocolError(p.id, DisplayErrorInvalidMethod, fmt.Sprintf("wl_shm_pool: unknown opcode %d", msg.Opcode))
	}
}

func (p *WlShmPool) handleCreateBuffer(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	id, err := decoder.NewID()
	if err != nil {
		return err
	}
	offset, err := decoder.Int32()
	if err != nil {
		return err
	}
	width, err := decoder.Int32()
	if err != nil {
		return err
	}
	height, err := decoder.Int32()
	if err != nil {
		return err
	}
	stride, err := decoder.Int32()
	if err != nil {
		return err
	}
	format, err := decoder.Uint32()
	if err != nil {
		return err
	}

	if width <= 0 || height <= 0 || stride < width*4 {
		return conn.SendProtocolError(p.id, shmErrorInvalidStride, "wl_shm_pool.create_buffer: invalid geometry")
	}

	p.mu.Lock()
	poolLen := len(p.data)
	p.mu.Unlock()
	if offset < 0 || int(offset)+int(stride)*int(height) > poolLen {
		return conn.SendProtocolError(p.id, shmErrorInvalidFD, "wl_shm_pool.create_buffer: buffer extends past pool")
	}

	buf := &WlBuffer{
		id:     id,
		conn:   conn,
		pool:   p,
		offset: offset,
		width:  width,
		height: height,
		stride: stride,
		format: format,
	}
	conn.RegisterObject(id, buf)
	return nil
}

func (p *WlShmPool) handleDestroy(conn *ClientConn, msg *Message) error {
	conn.DestroyObject(p.id)
	return nil
}

func (p *WlShmPool) handleResize(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	size, err := decoder.Int32()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if int(size) <= len(p.data) {
		return nil
	}
	// A grown pool is not remapped: that needs the fd, which create_pool
	// already closed, so the old mapping is dropped and an error is sent.
	if err := unix.Munmap(p.data); err != nil {
		return fmt.Errorf("wl_shm_pool.resize: munmap: %w", err)
	}
	p.data = nil
	return conn.SendProtocolError(p.id, shmErrorInvalidFD,
		"wl_shm_pool.resize: remapping a grown pool needs the original fd, which create_pool already closed")
}

func (p *WlShmPool) bytesAt(offset, length int32) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data[offset : offset+length]
}

// WlBuffer is the server side of wl_buffer for an shm-backed buffer: a
// view into its pool's mapping, satisfying surface.BufferHandle directly
// so WlSurface.Attach can hand it straight to the core commit pipeline.
type WlBuffer struct {
	id     ObjectID
	conn   *ClientConn
	pool   *WlShmPool
	offset int32
	width  int32
	height int32
	stride int32
	format uint32
}

func (b *WlBuffer) HandleRequest(conn *ClientConn, msg *Message) error {
	switch msg.Opcode {
	case bufferDestroy:
		conn.DestroyObject(b.id)
		return nil
	default:
		return conn.SendProtocolError(b.id, DisplayErrorInvalidMethod, fmt.Sprintf("wl_buffer: unknown opcode %d", msg.Opcode))
	}
}

func (b *WlBuffer) Width() int32    { return b.width }
func (b *WlBuffer) Height() int32   { return b.height }
func (b *WlBuffer) Format() uint32  { return b.format }

// Bytes returns the buffer's pixel data within its pool's mapping — the
// renderer collaborator's entry point for actually reading shm contents
// (out of scope for this bridge; exposed for a future ApplyBuffer backend).
func (b *WlBuffer) Bytes() []byte {
	return b.pool.bytesAt(b.offset, b.stride*b.height)
}

// Release implements surface.BufferHandle by sending wl_buffer.release,
// telling the client it may reuse or free this buffer's backing memory.
func (b *WlBuffer) Release() {
	_ = b.conn.SendMessage(NewMessageBuilder().BuildMessage(b.id, bufferEventRelease))
}

var _ surface.BufferHandle = (*WlBuffer)(nil)
