package container

import "encoding/binary"

// PtrOffset32 is a 32-bit byte offset from some anchor address, stored
// in-place of a real pointer. InvalidOffset marks a null reference,
// mirroring the sentinel the original format uses for optional fields
// such as a track's missing default-value entry.
type PtrOffset32 uint32

// InvalidOffset is the sentinel value for a PtrOffset32 that does not
// point anywhere (the field it occupies is absent).
const InvalidOffset PtrOffset32 = 0xFFFFFFFF

// IsValid reports whether the offset refers to real data.
func (p PtrOffset32) IsValid() bool { return p != InvalidOffset }

// Resolve returns the sub-slice of buf starting at the anchor plus this
// offset. It panics if the offset is invalid; callers must check
// IsValid first, exactly as the format requires a presence bitset to be
// consulted before a PtrOffset32 is dereferenced.
func (p PtrOffset32) Resolve(buf []byte, anchor int) []byte {
	if !p.IsValid() {
		panic("container: Resolve called on an invalid PtrOffset32")
	}
	return buf[anchor+int(p):]
}

// PutPtrOffset32 writes an offset field at buf[at:at+4].
func PutPtrOffset32(buf []byte, at int, p PtrOffset32) {
	binary.LittleEndian.PutUint32(buf[at:], uint32(p))
}

// GetPtrOffset32 reads an offset field from buf[at:at+4].
func GetPtrOffset32(buf []byte, at int) PtrOffset32 {
	return PtrOffset32(binary.LittleEndian.Uint32(buf[at:]))
}

// OffsetTable writes and reads a fixed-size run of PtrOffset32 entries,
// the Go analog of a struct-of-offsets header section (e.g. the per-bone
// segment pointer table of the tracks header).
type OffsetTable struct {
	Base  int // byte offset of the table's first entry
	Count int
}

// Size is the number of bytes the table occupies.
func (t OffsetTable) Size() int { return t.Count * 4 }

// Put writes offsets[i] into entry i of the table.
func (t OffsetTable) Put(buf []byte, i int, p PtrOffset32) {
	PutPtrOffset32(buf, t.Base+i*4, p)
}

// Get reads entry i of the table.
func (t OffsetTable) Get(buf []byte, i int) PtrOffset32 {
	return GetPtrOffset32(buf, t.Base+i*4)
}

// Align4 rounds n up to the next 4-byte boundary, the padding unit
// interior sections of an artefact use. Whole buffers (and the
// database's bulk regions) align to RequiredAlignment instead.
func Align4(n int) int {
	return (n + 3) &^ 3
}

// Align rounds n up to the next multiple of RequiredAlignment, the
// alignment every complete artefact buffer must satisfy.
func Align(n int) int {
	rem := n % RequiredAlignment
	if rem == 0 {
		return n
	}
	return n + (RequiredAlignment - rem)
}
