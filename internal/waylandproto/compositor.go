//go:build linux

package waylandproto

import (
	"errors"
	"fmt"

	"github.com/gogpu/waybridge/internal/surface"
)

// wl_compositor opcodes (requests)
const (
	compositorCreateSurface Opcode = 0 // create_surface(id: new_id<wl_surface>)
	compositorCreateRegion  Opcode = 1 // create_region(id: new_id<wl_region>)
)

// wl_surface opcodes (requests)
const (
	surfaceDestroy            Opcode = 0 // destroy()
	surfaceAttach             Opcode = 1 // attach(buffer: object<wl_buffer>, x: int, y: int)
	surfaceDamage             Opcode = 2 // damage(x: int, y: int, width: int, height: int)
	surfaceFrame              Opcode = 3 // frame(callback: new_id<wl_callback>)
	surfaceSetOpaqueRegion    Opcode = 4 // set_opaque_region(region: object<wl_region>)
	surfaceSetInputRegion     Opcode = 5 // set_input_region(region: object<wl_region>)
	surfaceCommit             Opcode = 6 // commit()
	surfaceSetBufferTransform Opcode = 7 // set_buffer_transform(transform: int) [v2]
	surfaceSetBufferScale     Opcode = 8 // set_buffer_scale(scale: int) [v3]
	surfaceDamageBuffer       Opcode = 9 // damage_buffer(x: int, y: int, width: int, height: int) [v4]
)

// wl_surface event opcodes
const (
	surfaceEventEnter Opcode = 0 // enter(output: object<wl_output>)
	surfaceEventLeave Opcode = 1 // leave(output: object<wl_output>)
)

// wl_surface error codes.
const (
	surfaceErrorInvalidScale     Opcode = 0
	surfaceErrorInvalidTransform Opcode = 1
	surfaceErrorInvalidSize      Opcode = 2
	surfaceErrorInvalidOffset    Opcode = 3
)

// wl_region opcodes (requests)
const (
	regionDestroy  Opcode = 0 // destroy()
	regionAdd      Opcode = 1 // add(x: int, y: int, width: int, height: int)
	regionSubtract Opcode = 2 // subtract(x: int, y: int, width: int, height: int)
)

// bufferObject is what a protocol object bound to a wl_buffer id must
// satisfy: it is both a protocol object (for request dispatch) and a
// core surface.BufferHandle (for Surface.Attach).
type bufferObject interface {
	ServerObject
	surface.BufferHandle
}

// regionObject is a bound wl_region id's protocol-object view.
type regionObject interface {
	ServerObject
	regionValue() surface.Region
}

// WlCompositor is the server side of wl_compositor: its whole job is
// minting wl_surface and wl_region objects for a bound client.
type WlCompositor struct {
	id   ObjectID
	deps Deps
}

func newWlCompositor(id ObjectID, deps Deps) *WlCompositor {
	return &WlCompositor{id: id, deps: deps}
}

func (c *WlCompositor) HandleRequest(conn *ClientConn, msg *Message) error {
	switch msg.Opcode {
	case compositorCreateSurface:
		return c.handleCreateSurface(conn, msg)
	case compositorCreateRegion:
		return c.handleCreateRegion(conn, msg)
	default:
		return conn.SendProtocolError(c.id, DisplayErrorInvalidMethod, fmt.Sprintf("wl_compositor: unknown opcode %d", msg.Opcode))
	}
}

func (c *WlCompositor) handleCreateSurface(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	id, err := decoder.NewID()
	if err != nil {
		return err
	}

	core := surface.New(c.deps.Renderer, wlSurfaceClientVersion, c.deps.GlobalScale)
	s := &WlSurface{id: id, core: core, deps: c.deps}
	conn.RegisterObject(id, s)
	return nil
}

func (c *WlCompositor) handleCreateRegion(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	id, err := decoder.NewID()
	if err != nil {
		return err
	}

	r := &WlRegion{id: id, region: surface.NewRectRegion()}
	conn.RegisterObject(id, r)
	return nil
}

// wlSurfaceClientVersion is a placeholder until per-connection interface
// version negotiation is threaded through bind; every surface is
// constructed at the highest version this bridge implements.
const wlSurfaceClientVersion = 5

// WlSurface is the server side of wl_surface: it owns the core commit
// pipeline (internal/surface.Surface) that every other role (xdg_surface,
// the eventual subsurface/viewporter globals) attaches itself to, and
// decodes every request a client sends against it into that pipeline's
// API.
type WlSurface struct {
	id   ObjectID
	core *surface.Surface
	deps Deps

	// role, if non-nil, is told when this surface is destroyed so it can
	// tear down its own backing window. Set by xdg_surface.get_toplevel.
	onDestroy func()
}

func (s *WlSurface) HandleRequest(conn *ClientConn, msg *Message) error {
	switch msg.Opcode {
	case surfaceDestroy:
		return s.handleDestroy(conn, msg)
	case surfaceAttach:
		return s.handleAttach(conn, msg)
	case surfaceDamage:
		return s.handleDamage(conn, msg)
	case surfaceDamageBuffer:
		return s.handleDamageBuffer(conn, msg)
	case surfaceFrame:
		return s.handleFrame(conn, msg)
	case surfaceSetOpaqueRegion:
		return s.handleSetOpaqueRegion(conn, msg)
	case surfaceSetInputRegion:
		return s.handleSetInputRegion(conn, msg)
	case surfaceCommit:
		return s.handleCommit(conn, msg)
	case surfaceSetBufferTransform:
		return s.handleSetBufferTransform(conn, msg)
	case surfaceSetBufferScale:
		return s.handleSetBufferScale(conn, msg)
	default:
		return conn.SendProtocolError(s.id, DisplayErrorInvalidMethod, fmt.Sprintf("wl_surface: unknown opcode %d", msg.Opcode))
	}
}

func (s *WlSurface) handleDestroy(conn *ClientConn, msg *Message) error {
	s.core.Destroy()
	if s.onDestroy != nil {
		s.onDestroy()
	}
	conn.DestroyObject(s.id)
	return nil
}

func (s *WlSurface) handleAttach(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	bufferID, err := decoder.Object()
	if err != nil {
		return err
	}
	x, err := decoder.Int32()
	if err != nil {
		return err
	}
	y, err := decoder.Int32()
	if err != nil {
		return err
	}

	var buf surface.BufferHandle
	if bufferID != 0 {
		obj, ok := conn.LookupObject(bufferID)
		if !ok {
			return conn.SendProtocolError(s.id, DisplayErrorInvalidObject, "wl_surface.attach: no such buffer")
		}
		bo, ok := obj.(bufferObject)
		if !ok {
			return conn.SendProtocolError(s.id, DisplayErrorInvalidObject, "wl_surface.attach: object is not a buffer")
		}
		buf = bo
	}

	if err := s.core.Attach(buf, x, y); err != nil {
		return s.sendCommitError(conn, err)
	}
	return nil
}

func (s *WlSurface) handleDamage(conn *ClientConn, msg *Message) error {
	x, y, w, h, err := decodeRect(msg.Args)
	if err != nil {
		return err
	}
	s.core.Damage(x, y, w, h)
	return nil
}

func (s *WlSurface) handleDamageBuffer(conn *ClientConn, msg *Message) error {
	x, y, w, h, err := decodeRect(msg.Args)
	if err != nil {
		return err
	}
	s.core.DamageBuffer(x, y, w, h)
	return nil
}

func decodeRect(args []byte) (x, y, w, h int32, err error) {
	decoder := NewDecoder(args)
	if x, err = decoder.Int32(); err != nil {
		return
	}
	if y, err = decoder.Int32(); err != nil {
		return
	}
	if w, err = decoder.Int32(); err != nil {
		return
	}
	if h, err = decoder.Int32(); err != nil {
		return
	}
	return
}

func (s *WlSurface) handleFrame(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	callbackID, err := decoder.NewID()
	if err != nil {
		return err
	}

	cb := &wlCallback{id: callbackID}
	conn.RegisterObject(callbackID, cb)

	// Registers into the surface's pending frame-callback list, exactly
	// as a real compositor does; this bridge does not yet drive a frame
	// clock that fires the callback on the next presented frame (see
	// internal/surface's frameCallbacks field), so the callback is
	// queued but not yet fired by anything in this tree.
	s.core.Frame(func(data uint32) {
		_ = cb.fire(conn, data)
	})
	return nil
}

func (s *WlSurface) handleSetOpaqueRegion(conn *ClientConn, msg *Message) error {
	region, err := s.resolveRegion(conn, msg.Args)
	if err != nil {
		return err
	}
	s.core.SetOpaqueRegion(region)
	return nil
}

func (s *WlSurface) handleSetInputRegion(conn *ClientConn, msg *Message) error {
	region, err := s.resolveRegion(conn, msg.Args)
	if err != nil {
		return err
	}
	s.core.SetInputRegion(region)
	return nil
}

func (s *WlSurface) resolveRegion(conn *ClientConn, args []byte) (surface.Region, error) {
	decoder := NewDecoder(args)
	regionID, err := decoder.Object()
	if err != nil {
		return nil, err
	}
	if regionID == 0 {
		return nil, nil
	}
	obj, ok := conn.LookupObject(regionID)
	if !ok {
		return nil, conn.SendProtocolError(s.id, DisplayErrorInvalidObject, "wl_surface: no such region")
	}
	ro, ok := obj.(regionObject)
	if !ok {
		return nil, conn.SendProtocolError(s.id, DisplayErrorInvalidObject, "wl_surface: object is not a region")
	}
	return ro.regionValue(), nil
}

func (s *WlSurface) handleCommit(conn *ClientConn, msg *Message) error {
	if err := s.core.Commit(); err != nil {
		return s.sendCommitError(conn, err)
	}
	return nil
}

func (s *WlSurface) handleSetBufferTransform(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	t, err := decoder.Int32()
	if err != nil {
		return err
	}
	if err := s.core.SetBufferTransform(uint32(t)); err != nil {
		return conn.SendProtocolError(s.id, surfaceErrorInvalidTransform, err.Error())
	}
	return nil
}

func (s *WlSurface) handleSetBufferScale(conn *ClientConn, msg *Message) error {
	decoder := NewDecoder(msg.Args)
	scale, err := decoder.Int32()
	if err != nil {
		return err
	}
	if err := s.core.SetBufferScale(scale); err != nil {
		return conn.SendProtocolError(s.id, surfaceErrorInvalidScale, err.Error())
	}
	return nil
}

// sendCommitError maps a core commit-time error to the closest wl_surface
// protocol error code.
func (s *WlSurface) sendCommitError(conn *ClientConn, err error) error {
	var vf *surface.ViewportFault
	switch {
	case errors.As(err, &vf):
		return conn.SendProtocolError(s.id, surfaceErrorInvalidSize, err.Error())
	case errors.Is(err, surface.ErrInvalidOffset):
		return conn.SendProtocolError(s.id, surfaceErrorInvalidOffset, err.Error())
	case errors.Is(err, surface.ErrInvalidTransform):
		return conn.SendProtocolError(s.id, surfaceErrorInvalidTransform, err.Error())
	case errors.Is(err, surface.ErrInvalidScale):
		return conn.SendProtocolError(s.id, surfaceErrorInvalidScale, err.Error())
	default:
		return conn.SendProtocolError(s.id, DisplayErrorImplementation, err.Error())
	}
}

// WlRegion is the server side of wl_region: a client-accumulated list of
// rectangles, built up by add/subtract and read by wl_surface's
// set_opaque_region/set_input_region.
type WlRegion struct {
	id     ObjectID
	region surface.Region
}

func (r *WlRegion) HandleRequest(conn *ClientConn, msg *Message) error {
	switch msg.Opcode {
	case regionDestroy:
		conn.DestroyObject(r.id)
		return nil
	case regionAdd:
		x, y, w, h, err := decodeRect(msg.Args)
		if err != nil {
			return err
		}
		r.region = r.region.Union(surface.Rect{X: x, Y: y, Width: w, Height: h})
		return nil
	case regionSubtract:
		// RectRegion (internal/surface) is a union-only rectangle list;
		// true boolean subtraction is out of core scope (see its doc
		// comment), so subtract is accepted but does not narrow the
		// accumulated region.
		_, _, _, _, err := decodeRect(msg.Args)
		return err
	default:
		return conn.SendProtocolError(r.id, DisplayErrorInvalidMethod, fmt.Sprintf("wl_region: unknown opcode %d", msg.Opcode))
	}
}

func (r *WlRegion) regionValue() surface.Region {
	return r.region
}
