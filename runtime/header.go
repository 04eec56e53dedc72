// Package runtime implements the decompression side of the pipeline:
// parsing a compressed_tracks buffer and walking its bit-packed data to
// reconstruct bone poses.
package runtime

import (
	"encoding/binary"
	"math"

	"github.com/motionforge/acl/internal/container"
)

const fixedHeaderSize = 4 + 2 + 2 + 4 + 4 + 4 + 4 + 4 + 4*8
const segmentHeaderSize = 20

// tracksHeader mirrors the fixed-size fields compress.WriteCompressedTracks
// writes immediately after the raw buffer header.
type tracksHeader struct {
	numBones     int
	numSegments  int
	sampleRate   float32
	numSamples   int
	numSubTracks int

	offsetSegmentStartIndices container.PtrOffset32
	offsetDefaultBitset       container.PtrOffset32
	offsetConstantBitset      container.PtrOffset32
	offsetHasScaleBitset      container.PtrOffset32
	offsetConstantData        container.PtrOffset32
	offsetClipRangeData       container.PtrOffset32
	offsetSegmentHeaders      container.PtrOffset32
	offsetMetadata            container.PtrOffset32
}

func parseTracksHeader(buf []byte) tracksHeader {
	base := container.RawBufferHeaderSize
	return tracksHeader{
		numBones:     int(binary.LittleEndian.Uint32(buf[base+8:])),
		numSegments:  int(binary.LittleEndian.Uint32(buf[base+12:])),
		sampleRate:   math.Float32frombits(binary.LittleEndian.Uint32(buf[base+16:])),
		numSamples:   int(binary.LittleEndian.Uint32(buf[base+20:])),
		numSubTracks: int(binary.LittleEndian.Uint32(buf[base+24:])),

		offsetSegmentStartIndices: container.GetPtrOffset32(buf, base+28),
		offsetDefaultBitset:       container.GetPtrOffset32(buf, base+32),
		offsetConstantBitset:      container.GetPtrOffset32(buf, base+36),
		offsetHasScaleBitset:      container.GetPtrOffset32(buf, base+40),
		offsetConstantData:        container.GetPtrOffset32(buf, base+44),
		offsetClipRangeData:       container.GetPtrOffset32(buf, base+48),
		offsetSegmentHeaders:      container.GetPtrOffset32(buf, base+52),
		offsetMetadata:            container.GetPtrOffset32(buf, base+56),
	}
}

// hasScale reports whether bone contributes a scale sub-track.
func (h tracksHeader) hasScale(buf []byte, bone int) bool {
	return container.BitSetGet(buf, int(h.offsetHasScaleBitset), bone)
}

type segmentHeader struct {
	animatedPoseBitSize int
	dataOffset          int
	startSample         int
	numSamples          int
	// sampleIndices marks which of the segment's frames are present in
	// the inline animated stream; frames a database migrated to a tier
	// have their bit cleared and live in bulk data instead.
	sampleIndices uint32
}

func (h tracksHeader) segment(buf []byte, i int) segmentHeader {
	at := int(h.offsetSegmentHeaders) + i*segmentHeaderSize
	return segmentHeader{
		animatedPoseBitSize: int(binary.LittleEndian.Uint32(buf[at:])),
		dataOffset:          int(container.GetPtrOffset32(buf, at+4)),
		startSample:         int(binary.LittleEndian.Uint32(buf[at+8:])),
		numSamples:          int(binary.LittleEndian.Uint32(buf[at+12:])),
		sampleIndices:       binary.LittleEndian.Uint32(buf[at+16:]),
	}
}

// findSegment returns the index of the segment containing sample k,
// binary-searching segment_start_indices when there is more than one
// segment.
func (h tracksHeader) findSegment(buf []byte, k int) int {
	if h.numSegments <= 1 {
		return 0
	}
	starts := int(h.offsetSegmentStartIndices)
	lo, hi := 0, h.numSegments-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		start := int(binary.LittleEndian.Uint32(buf[starts+mid*4:]))
		if start <= k {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func readFloat3(buf []byte, at int) [3]float32 {
	return [3]float32{
		math.Float32frombits(binary.LittleEndian.Uint32(buf[at:])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[at+4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[at+8:])),
	}
}
