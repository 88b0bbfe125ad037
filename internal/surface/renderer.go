package surface

// Renderer is the external collaborator the surface state machine pushes
// resolved, per-commit values to. It owns buffer import, offscreen content,
// and format negotiation — all explicitly out of core scope per §1.
type Renderer interface {
	ApplyBuffer(buf BufferHandle, offsetX, offsetY int32)
	ApplyScale(factor float64)
	ApplyTransform(t Transform)
	ApplyInputRegion(r Region)
	ApplyOpaqueRegion(r Region)
	ApplyViewport(src Rect, destWidth, destHeight int32)
	ApplyBufferDamage(r Region)
	ApplySurfaceDamage(r Region)

	// CanReleaseNow answers the early-release query commit step 8 makes
	// against the newly-current buffer.
	CanReleaseNow(buf BufferHandle) bool
}
