package database

import (
	"encoding/binary"

	"github.com/motionforge/acl/internal/container"
)

// segmentMeta is the handful of compressed_tracks segment-header fields
// the builder needs to locate and size individual frames, read
// independently of the runtime package (a database is a separate tool
// operating on the same wire format, the way a standalone
// validate/inspect utility would).
type segmentMeta struct {
	dataOffset          int
	animatedPoseBitSize int
	startSample         int
	numSamples          int
	sampleIndices       uint32
}

const clipHeaderSegmentHeaderSize = 20

// prologueBytesPerTrack is the per-animated-sub-track byte cost of a
// segment's fixed prologue: one format_per_track_data byte plus three
// (min8, extent8) segment-range pairs. The prologue always stays
// inline; only the bit-packed frames that follow it are movable.
const prologueBytesPerTrack = 1 + 6

// clipMeta summarises one compressed_tracks buffer for tier assignment
// and chunk packing.
type clipMeta struct {
	hash           uint32
	numSamples     int
	numAnimated    int
	segments       []segmentMeta
	metadataOffset container.PtrOffset32
}

func parseClipMeta(buf []byte) clipMeta {
	base := container.RawBufferHeaderSize
	numSegments := int(binary.LittleEndian.Uint32(buf[base+12:]))
	numSamples := int(binary.LittleEndian.Uint32(buf[base+20:]))
	numSubTracks := int(binary.LittleEndian.Uint32(buf[base+24:]))
	offsetDefaultBitset := container.GetPtrOffset32(buf, base+32)
	offsetConstantBitset := container.GetPtrOffset32(buf, base+36)
	offsetSegmentHeaders := container.GetPtrOffset32(buf, base+52)
	metadataOffset := container.GetPtrOffset32(buf, base+56)

	numAnimated := 0
	for i := 0; i < numSubTracks; i++ {
		if container.BitSetGet(buf, int(offsetDefaultBitset), i) {
			continue
		}
		if container.BitSetGet(buf, int(offsetConstantBitset), i) {
			continue
		}
		numAnimated++
	}

	segs := make([]segmentMeta, numSegments)
	for i := 0; i < numSegments; i++ {
		at := int(offsetSegmentHeaders) + i*clipHeaderSegmentHeaderSize
		segs[i] = segmentMeta{
			animatedPoseBitSize: int(binary.LittleEndian.Uint32(buf[at:])),
			dataOffset:          int(container.GetPtrOffset32(buf, at+4)),
			startSample:         int(binary.LittleEndian.Uint32(buf[at+8:])),
			numSamples:          int(binary.LittleEndian.Uint32(buf[at+12:])),
			sampleIndices:       binary.LittleEndian.Uint32(buf[at+16:]),
		}
	}

	hdr := container.GetRawBufferHeader(buf)
	return clipMeta{
		hash:           hdr.Hash,
		numSamples:     numSamples,
		numAnimated:    numAnimated,
		segments:       segs,
		metadataOffset: metadataOffset,
	}
}

// prologueSize is the byte length of a segment's inline prologue
// (format bytes + 8-bit ranges) preceding its frame data.
func (m clipMeta) prologueSize() int {
	return m.numAnimated * prologueBytesPerTrack
}

// frameBit returns the absolute bit offset of local frame f of segment
// s within buf, assuming every frame of the segment is present (true
// for a freshly compressed clip; rewritten clips use the sample_indices
// rank instead).
func (m clipMeta) frameBit(s, f int) int {
	seg := m.segments[s]
	return (seg.dataOffset+m.prologueSize())*8 + f*seg.animatedPoseBitSize
}

// ClipContributingErrors derives a per-frame contributing-error
// estimate directly from a serialised compressed_tracks buffer, for
// callers (the CLI, batch tooling) that no longer have the raw clip or
// an errormetric pass at hand: a frame carrying more animated bits
// spans more motion and is costlier to approximate away, so every
// frame of a segment is costed at the segment's animated payload size
// and ties fall back to frame order. Anchor frames' entries are
// ignored by tier assignment regardless. The result is indexed
// [segment][local frame].
func ClipContributingErrors(buf []byte) ([][]float32, error) {
	if err := container.Validate(buf, container.TagCompressedTracks, false); err != nil {
		return nil, err
	}
	m := parseClipMeta(buf)
	out := make([][]float32, len(m.segments))
	for i, s := range m.segments {
		frames := make([]float32, s.numSamples)
		for f := range frames {
			frames[f] = float32(s.animatedPoseBitSize)
		}
		out[i] = frames
	}
	return out, nil
}
