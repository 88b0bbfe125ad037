// Package dmabuf implements the linux-dmabuf import pipeline: a temporary
// per-request plane set (BufferParams) that accumulates up to 4 dmabuf file
// descriptors before Create validates and hands the result to the renderer
// collaborator for actual GPU import.
package dmabuf

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const maxPlanes = 4

// Flag bits for Create's flags argument.
type Flags uint32

const (
	FlagYInvert Flags = 1 << iota
	FlagInterlaced
	FlagBottomFirst
)

const allFlags = FlagYInvert | FlagInterlaced | FlagBottomFirst

// Errors Add/Create/CreateImmed can raise. Each is a distinct sentinel so
// callers can map it to the right protocol error code.
var (
	ErrAlreadyUsed   = fmt.Errorf("dmabuf: params already used")
	ErrPlaneIdx      = fmt.Errorf("dmabuf: plane index out of range")
	ErrPlaneSet      = fmt.Errorf("dmabuf: plane index already set")
	ErrInvalidFormat = fmt.Errorf("dmabuf: modifier mismatch across planes")
	ErrNoPlanes      = fmt.Errorf("dmabuf: no planes set")
	ErrPlaneGap      = fmt.Errorf("dmabuf: plane set has a gap")
	ErrBadDims       = fmt.Errorf("dmabuf: width or height out of range")
	ErrBadFlags      = fmt.Errorf("dmabuf: unknown flag bit set")
	ErrUnsupportedFormat = fmt.Errorf("dmabuf: format/modifier pair not advertised")
)

// Plane is one imported dmabuf plane descriptor.
type Plane struct {
	FD       int
	Offset   uint32
	Stride   uint32
	Modifier uint64
}

// ImportedBuffer is the result of a successful Create/CreateImmed, handed to
// the renderer collaborator for the actual GPU import. dmabuf never reads
// the fds itself.
type ImportedBuffer struct {
	Width, Height uint32
	Format        uint32
	Flags         Flags
	Planes        [maxPlanes]Plane
	PlaneCount    int
}

// FormatModifier is one entry in the advertised (format, modifier) table
// DmabufImport validates Create/CreateImmed requests against.
type FormatModifier struct {
	Format   uint32
	Modifier uint64
}

// DmabufImport owns the advertised format/modifier table and constructs
// BufferParams staging objects. One instance is shared process-wide; each
// client request gets its own BufferParams.
type DmabufImport struct {
	table map[FormatModifier]bool
}

// NewDmabufImport builds a DmabufImport advertising exactly the given
// (format, modifier) pairs.
func NewDmabufImport(table []FormatModifier) *DmabufImport {
	d := &DmabufImport{table: make(map[FormatModifier]bool, len(table))}
	for _, fm := range table {
		d.table[fm] = true
	}
	return d
}

// Supports reports whether (format, modifier) was advertised.
func (d *DmabufImport) Supports(format uint32, modifier uint64) bool {
	return d.table[FormatModifier{Format: format, Modifier: modifier}]
}

// NewParams starts a new temporary plane set.
func (d *DmabufImport) NewParams() *BufferParams {
	return &BufferParams{owner: d, alive: true}
}

// BufferParams is the per-request temporary plane set: up to 4 planes
// accumulate via Add, then Create/CreateImmed validates and consumes it.
// The params object becomes inert after a successful or failed Create.
type BufferParams struct {
	owner *DmabufImport

	planes   [maxPlanes]Plane
	planeSet [maxPlanes]bool
	modifier uint64
	hasAny   bool

	used  bool
	alive bool
}

// Add records one plane. On any validation error the fd is closed
// immediately — the caller never owns it past a failed Add.
func (p *BufferParams) Add(planeIdx int, fd int, offset, stride uint32, modifier uint64) error {
	if p.used {
		unix.Close(fd)
		return ErrAlreadyUsed
	}
	if planeIdx < 0 || planeIdx >= maxPlanes {
		unix.Close(fd)
		return ErrPlaneIdx
	}
	if p.planeSet[planeIdx] {
		unix.Close(fd)
		return ErrPlaneSet
	}
	if p.hasAny && modifier != p.modifier {
		unix.Close(fd)
		return ErrInvalidFormat
	}

	p.planes[planeIdx] = Plane{FD: fd, Offset: offset, Stride: stride, Modifier: modifier}
	p.planeSet[planeIdx] = true
	p.modifier = modifier
	p.hasAny = true
	return nil
}

// planeCount and gap-checking: planes must be contiguous starting at 0.
func (p *BufferParams) validatePlaneShape() (count int, err error) {
	if !p.planeSet[0] {
		return 0, ErrNoPlanes
	}
	n := 1
	for n < maxPlanes && p.planeSet[n] {
		n++
	}
	for i := n; i < maxPlanes; i++ {
		if p.planeSet[i] {
			return 0, ErrPlaneGap
		}
	}
	return n, nil
}

func validateDims(width, height uint32) error {
	const maxDim = 65535
	if width > maxDim || height > maxDim {
		return ErrBadDims
	}
	return nil
}

func validateFlags(flags Flags) error {
	if flags&^allFlags != 0 {
		return ErrBadFlags
	}
	return nil
}

// CreateResult reports the outcome of a Create.
type CreateResult struct {
	Buffer   *ImportedBuffer
	Failed   bool
	Protocol error // non-nil only when the caller must raise a protocol error instead of signaling failed
}

// Create validates the accumulated plane set and format against the
// announced table, then asks the renderer to do the actual import via
// doImport. protocolVersion gates whether a bad (format, modifier) pair is
// a protocol error (v>=4) or just a `failed` signal.
//
// The params object is marked used immediately. doImport (when non-nil)
// runs synchronously inside Create, which returns only after it does; the
// import is not deferred. If the params object is no longer alive when
// doImport returns, the imported buffer is released and dropped.
func (p *BufferParams) Create(width, height, format uint32, flags Flags, protocolVersion int, doImport func(*ImportedBuffer) (*ImportedBuffer, error)) CreateResult {
	if p.used {
		return CreateResult{Failed: true}
	}
	p.used = true

	count, err := p.validatePlaneShape()
	if err != nil {
		return CreateResult{Failed: true}
	}
	if err := validateDims(width, height); err != nil {
		return CreateResult{Failed: true}
	}
	if err := validateFlags(flags); err != nil {
		return CreateResult{Failed: true}
	}
	if !p.owner.Supports(format, p.modifier) {
		if protocolVersion >= 4 {
			return CreateResult{Protocol: ErrUnsupportedFormat}
		}
		return CreateResult{Failed: true}
	}

	staged := &ImportedBuffer{
		Width:      width,
		Height:     height,
		Format:     format,
		Flags:      flags,
		PlaneCount: count,
	}
	copy(staged.Planes[:count], p.planes[:count])

	if doImport == nil {
		return CreateResult{Buffer: staged}
	}

	imported, err := doImport(staged)
	if !p.alive {
		// Destroyed mid-creation: drop the result even if it succeeded.
		if imported != nil {
			imported.Release()
		}
		return CreateResult{}
	}
	if err != nil {
		return CreateResult{Failed: true}
	}
	return CreateResult{Buffer: imported}
}

// CreateImmed is the synchronous variant: doImport runs inline and its
// error, if any, is reported as Failed (or InvalidWLBuffer for an X-layer
// rejection the caller flags explicitly).
type ImmedResult struct {
	Buffer          *ImportedBuffer
	Failed          bool
	InvalidWLBuffer bool
}

func (p *BufferParams) CreateImmed(width, height, format uint32, flags Flags, protocolVersion int, doImport func(*ImportedBuffer) (*ImportedBuffer, error), xLayerRejected bool) ImmedResult {
	res := p.Create(width, height, format, flags, protocolVersion, doImport)
	if res.Protocol != nil {
		return ImmedResult{Failed: true}
	}
	if xLayerRejected {
		return ImmedResult{InvalidWLBuffer: true}
	}
	if res.Failed || res.Buffer == nil {
		return ImmedResult{Failed: res.Failed}
	}
	return ImmedResult{Buffer: res.Buffer}
}

// Destroy marks the params inert. If Create's import is still in flight,
// the pending completion callback observes Alive()==false and drops its
// result instead of delivering it.
func (p *BufferParams) Destroy() {
	p.alive = false
	if !p.used {
		for i, set := range p.planeSet {
			if set {
				unix.Close(p.planes[i].FD)
			}
		}
	}
}

// Alive reports whether this params object has not been destroyed — the
// "still alive" flag §4.6 requires completion callbacks to check.
func (p *BufferParams) Alive() bool {
	return p.alive
}

// Release is a placeholder hook an ImportedBuffer's owner (the renderer)
// uses to free GPU-side resources when a completed-but-orphaned import
// must be dropped. DmabufImport itself holds no GPU resources.
func (b *ImportedBuffer) Release() {}
