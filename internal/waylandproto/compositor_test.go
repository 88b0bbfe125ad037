//go:build linux

package waylandproto

import (
	"net"
	"testing"

	"github.com/gogpu/waybridge/internal/surface"
)

// newTestConn wires up a ClientConn against an in-memory pipe, with its
// peer side left for the test to write requests into / read events out of.
func newTestConn(t *testing.T) (*ClientConn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	conn := &ClientConn{conn: server}
	return conn, client
}

func recvMessage(t *testing.T, client net.Conn) *Message {
	t.Helper()
	header := make([]byte, 8)
	if _, err := readFull(client, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	objID := ObjectID(leUint32(header[0:4]))
	opAndSize := leUint32(header[4:8])
	opcode := Opcode(opAndSize & 0xFFFF)
	total := int(opAndSize >> 16)
	args := make([]byte, total-8)
	if len(args) > 0 {
		if _, err := readFull(client, args); err != nil {
			t.Fatalf("read args: %v", err)
		}
	}
	return &Message{ObjectID: objID, Opcode: opcode, Args: args}
}

func readFull(c net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := c.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func sendRequest(t *testing.T, conn *ClientConn, id ObjectID, opcode Opcode, args []byte) {
	t.Helper()
	msg := &Message{ObjectID: id, Opcode: opcode, Args: args}
	if err := conn.dispatch(msg); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
}

type fakeRenderBackend struct{ releaseNow bool }

func (r *fakeRenderBackend) ApplyBuffer(buf surface.BufferHandle, ox, oy int32) {}
func (r *fakeRenderBackend) ApplyScale(factor float64)                         {}
func (r *fakeRenderBackend) ApplyTransform(t surface.Transform)                {}
func (r *fakeRenderBackend) ApplyInputRegion(rg surface.Region)                {}
func (r *fakeRenderBackend) ApplyOpaqueRegion(rg surface.Region)               {}
func (r *fakeRenderBackend) ApplyViewport(src surface.Rect, w, h int32)        {}
func (r *fakeRenderBackend) ApplyBufferDamage(rg surface.Region)               {}
func (r *fakeRenderBackend) ApplySurfaceDamage(rg surface.Region)              {}
func (r *fakeRenderBackend) CanReleaseNow(buf surface.BufferHandle) bool       { return r.releaseNow }

func newTestWlSurface(id ObjectID) *WlSurface {
	deps := Deps{Renderer: &fakeRenderBackend{releaseNow: true}, GlobalScale: 1.0}
	return &WlSurface{id: id, core: surface.New(deps.Renderer, 5, deps.GlobalScale), deps: deps}
}

func TestCompositorOpcodes(t *testing.T) {
	if compositorCreateSurface != 0 || compositorCreateRegion != 1 {
		t.Fatalf("unexpected wl_compositor opcodes: %d %d", compositorCreateSurface, compositorCreateRegion)
	}
}

func TestSurfaceOpcodes(t *testing.T) {
	cases := map[string]Opcode{
		"destroy": surfaceDestroy, "attach": surfaceAttach, "damage": surfaceDamage,
		"frame": surfaceFrame, "set_opaque_region": surfaceSetOpaqueRegion,
		"set_input_region": surfaceSetInputRegion, "commit": surfaceCommit,
		"set_buffer_transform": surfaceSetBufferTransform, "set_buffer_scale": surfaceSetBufferScale,
		"damage_buffer": surfaceDamageBuffer,
	}
	want := map[string]Opcode{
		"destroy": 0, "attach": 1, "damage": 2, "frame": 3, "set_opaque_region": 4,
		"set_input_region": 5, "commit": 6, "set_buffer_transform": 7,
		"set_buffer_scale": 8, "damage_buffer": 9,
	}
	for name, got := range cases {
		if got != want[name] {
			t.Errorf("%s opcode = %d, want %d", name, got, want[name])
		}
	}
}

func TestWlCompositorCreateSurface(t *testing.T) {
	conn, client := newTestConn(t)
	defer client.Close()

	deps := Deps{Renderer: &fakeRenderBackend{releaseNow: true}, GlobalScale: 1.0}
	comp := newWlCompositor(2, deps)
	conn.RegisterObject(2, comp)

	builder := NewMessageBuilder()
	builder.PutNewID(10)
	args, _ := builder.Build()
	sendRequest(t, conn, 2, compositorCreateSurface, args)

	obj, ok := conn.LookupObject(10)
	if !ok {
		t.Fatal("create_surface did not register object 10")
	}
	if _, ok := obj.(*WlSurface); !ok {
		t.Fatalf("object 10 is %T, want *WlSurface", obj)
	}
}

func TestWlCompositorCreateRegion(t *testing.T) {
	conn, client := newTestConn(t)
	defer client.Close()

	comp := newWlCompositor(2, Deps{})
	conn.RegisterObject(2, comp)

	builder := NewMessageBuilder()
	builder.PutNewID(11)
	args, _ := builder.Build()
	sendRequest(t, conn, 2, compositorCreateRegion, args)

	obj, ok := conn.LookupObject(11)
	if !ok {
		t.Fatal("create_region did not register object 11")
	}
	if _, ok := obj.(*WlRegion); !ok {
		t.Fatalf("object 11 is %T, want *WlRegion", obj)
	}
}

func TestWlSurfaceAttachDamageCommit(t *testing.T) {
	conn, client := newTestConn(t)
	defer client.Close()

	s := newTestWlSurface(10)
	conn.RegisterObject(10, s)

	attach := NewMessageBuilder()
	attach.PutObject(0) // no buffer: a valid detach
	attach.PutInt32(0)
	attach.PutInt32(0)
	attachArgs, _ := attach.Build()
	sendRequest(t, conn, 10, surfaceAttach, attachArgs)

	damage := NewMessageBuilder()
	damage.PutInt32(0)
	damage.PutInt32(0)
	damage.PutInt32(100)
	damage.PutInt32(100)
	damageArgs, _ := damage.Build()
	sendRequest(t, conn, 10, surfaceDamage, damageArgs)

	sendRequest(t, conn, 10, surfaceCommit, nil)
}

func TestWlRegionAddAccumulates(t *testing.T) {
	conn, client := newTestConn(t)
	defer client.Close()

	r := &WlRegion{id: 20, region: surface.NewRectRegion()}
	conn.RegisterObject(20, r)

	add := NewMessageBuilder()
	add.PutInt32(0)
	add.PutInt32(0)
	add.PutInt32(50)
	add.PutInt32(50)
	addArgs, _ := add.Build()
	sendRequest(t, conn, 20, regionAdd, addArgs)

	if len(r.regionValue().Rects()) != 1 {
		t.Fatal("region.add did not accumulate a rectangle")
	}
}

func TestWlSurfaceUnknownOpcodeSendsProtocolError(t *testing.T) {
	conn, client := newTestConn(t)

	s := newTestWlSurface(10)
	conn.RegisterObject(10, s)

	go func() {
		_ = s.HandleRequest(conn, &Message{ObjectID: 10, Opcode: 99})
	}()

	msg := recvMessage(t, client)
	if msg.ObjectID != 1 || msg.Opcode != displayEventError {
		t.Fatalf("expected wl_display.error, got object %d opcode %d", msg.ObjectID, msg.Opcode)
	}
}
