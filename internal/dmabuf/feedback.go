package dmabuf

import "encoding/binary"

// FeedbackTable builds the shared-memory format-table descriptor §4.6's
// feedback path advertises on bind: a main-device dev_t, one tranche
// targeting that device covering every table entry, empty tranche flags,
// and a tranche-done marker. Nothing in any example repo's dependency set
// builds this shape, so the wire layout below is hand-rolled to match the
// spec's description rather than grounded on a pack library.
type FeedbackTable struct {
	MainDevice int64
	Entries    []FormatModifier
}

// tableEntry is the 16-byte {format:u32, pad:u32, modifier:u64} record the
// shared-memory format table is an array of.
type tableEntry struct {
	format   uint32
	modifier uint64
}

const tableEntrySize = 16

// BuildTable serializes the format/modifier table as the shared-memory
// blob a client maps read-only. Byte order matches the rest of this
// bridge's wire codec (see internal/waylandproto/wire.go).
func (f *FeedbackTable) BuildTable(order binary.ByteOrder) []byte {
	buf := make([]byte, len(f.Entries)*tableEntrySize)
	for i, e := range f.Entries {
		off := i * tableEntrySize
		order.PutUint32(buf[off:off+4], e.Format)
		order.PutUint64(buf[off+8:off+16], e.Modifier)
	}
	return buf
}

// Tranche describes one feedback tranche: the target device, format flags,
// and the indices (into the serialized table) it covers.
type Tranche struct {
	TargetDevice int64
	Flags        uint32
	Indices      []uint16
}

// Tranches returns the single main-device tranche §4.6 describes for
// protocol version >= 3: every table entry, empty flags.
func (f *FeedbackTable) Tranches() []Tranche {
	indices := make([]uint16, len(f.Entries))
	for i := range f.Entries {
		indices[i] = uint16(i)
	}
	return []Tranche{{
		TargetDevice: f.MainDevice,
		Flags:        0,
		Indices:      indices,
	}}
}

// LegacyFormats returns the pre-v3 plain format-code list (no modifier
// information — the implicit/linear modifier is assumed).
func (f *FeedbackTable) LegacyFormats() []uint32 {
	seen := make(map[uint32]bool, len(f.Entries))
	out := make([]uint32, 0, len(f.Entries))
	for _, e := range f.Entries {
		if !seen[e.Format] {
			seen[e.Format] = true
			out = append(out, e.Format)
		}
	}
	return out
}
