//go:build linux

package waylandproto

import (
	"github.com/gogpu/waybridge/internal/release"
	"github.com/gogpu/waybridge/internal/surface"
)

// NullRenderer is the stand-in surface.Renderer used until a real GPU/shm
// compositing backend is wired in (rendering itself is an explicit
// non-goal — see spec). Every Apply* call is a no-op; CanReleaseNow always
// reports true, so buffers release synchronously at commit time.
type NullRenderer struct{}

func NewNullRenderer() *NullRenderer { return &NullRenderer{} }

func (NullRenderer) ApplyBuffer(buf surface.BufferHandle, offsetX, offsetY int32) {}
func (NullRenderer) ApplyScale(factor float64)                                   {}
func (NullRenderer) ApplyTransform(t surface.Transform)                          {}
func (NullRenderer) ApplyInputRegion(r surface.Region)                          {}
func (NullRenderer) ApplyOpaqueRegion(r surface.Region)                         {}
func (NullRenderer) ApplyViewport(src surface.Rect, destWidth, destHeight int32) {}
func (NullRenderer) ApplyBufferDamage(r surface.Region)                        {}
func (NullRenderer) ApplySurfaceDamage(r surface.Region)                       {}
func (NullRenderer) CanReleaseNow(buf surface.BufferHandle) bool               { return true }

// NullIdleRegistrar is release.IdleRegistrar's counterpart to NullRenderer:
// same no-renderer-yet stand-in, under the distinct Buffer type
// internal/release declares so it doesn't import internal/surface.
type NullIdleRegistrar struct{}

func NewNullIdleRegistrar() *NullIdleRegistrar { return &NullIdleRegistrar{} }

func (NullIdleRegistrar) CanReleaseNow(buf release.Buffer) bool { return true }

func (NullIdleRegistrar) NotifyIdle(buf release.Buffer, cb func()) (cancel func()) {
	cb()
	return func() {}
}

func (NullIdleRegistrar) Roundtrip() {}
