package runtime

import (
	"math"
	"math/bits"

	"github.com/motionforge/acl/clip"
	"github.com/motionforge/acl/internal/bitio"
	"github.com/motionforge/acl/internal/ratecode"
	"github.com/motionforge/acl/qmath"
)

// readClipRange reads the idx'th (min, extent) pair out of
// clip_range_data, the full-precision per-clip range every animated
// sub-track normalises against before its segment range.
func readClipRange(buf []byte, base, idx int) clip.Range {
	at := base + idx*24
	min := readFloat3(buf, at)
	ext := readFloat3(buf, at+12)
	return clip.Range{
		Min:    qmath.Vector3{X: min[0], Y: min[1], Z: min[2]},
		Extent: qmath.Vector3{X: ext[0], Y: ext[1], Z: ext[2]},
	}
}

// readSegmentRange8 reads one sub-track's (min8, extent8) byte pairs
// out of a segment's segment_range_data section and expands them back
// to [0,1] floats.
func readSegmentRange8(buf []byte, at int) clip.Range {
	comp := func(i int) (float32, float32) {
		m := float32(buf[at+i*2]) / 255
		e := float32(buf[at+i*2+1]) / 255
		return m, e
	}
	var min, ext qmath.Vector3
	min.X, ext.X = comp(0)
	min.Y, ext.Y = comp(1)
	min.Z, ext.Z = comp(2)
	return clip.Range{Min: min, Extent: ext}
}

// readConstantValue reads the idx'th full-precision value out of
// constant_track_data: constant-but-not-default sub-tracks store
// their one value here untouched by any range reduction.
func readConstantValue(buf []byte, base, idx int) qmath.Vector3 {
	v := readFloat3(buf, base+idx*12)
	return qmath.Vector3{X: v[0], Y: v[1], Z: v[2]}
}

// dequantizeComponent inverts exactly the quantisation
// compress.writeComponent applied:
// the raw bit rate skips both ranges and reads the untouched IEEE bit
// pattern; every other rate (including 0, which reads zero bits and
// therefore always dequantises to the segment range's own Min) expands
// through the segment range and then the clip range.
func dequantizeComponent(r *bitio.Reader, clipRange, segRange clip.Range, rate ratecode.BitRate) qmath.Vector3 {
	if rate.IsRaw() {
		return qmath.Vector3{
			X: math.Float32frombits(r.ReadBits(32)),
			Y: math.Float32frombits(r.ReadBits(32)),
			Z: math.Float32frombits(r.ReadBits(32)),
		}
	}
	numBits := ratecode.NumBits(rate)
	norm := qmath.Vector3{
		X: ratecode.Dequantize(r.ReadBits(numBits), numBits),
		Y: ratecode.Dequantize(r.ReadBits(numBits), numBits),
		Z: ratecode.Dequantize(r.ReadBits(numBits), numBits),
	}
	return clipRange.Expand(segRange.Expand(norm))
}

// frameStore is one place a segment's frames can live: the inline
// animated stream of the compressed_tracks buffer, or one streamable
// tier's bulk record. mask says which local frames the store carries;
// frames are bit-packed densely in frame order, so a frame's position
// is its rank within the mask.
type frameStore struct {
	data    []byte
	mask    uint32
	baseBit int // bit offset of the store's rank-0 frame within data
}

func (fs *frameStore) has(f int) bool {
	return fs.mask&(uint32(1)<<uint(f)) != 0
}

func (fs *frameStore) rank(f int) int {
	return bits.OnesCount32(fs.mask & ((uint32(1) << uint(f)) - 1))
}

// segmentDecode precomputes, once per Seek, the per-animated-sub-track
// bit rate and bit-cursor offset for one segment, so DecompressPose and
// DecompressTrack need only an O(1) lookup per sub-track instead of
// re-scanning format_per_track_data. The prologue (format bytes and
// 8-bit ranges) always stays inline; individual frames resolve through
// stores: inline first, then each streamed-in tier record holding that
// frame.
type segmentDecode struct {
	seg        segmentHeader
	data       []byte // compressed_tracks buffer; prologue and inline frames
	base       int    // offset of format_per_track_data within data
	rates      []ratecode.BitRate
	prefixBits []int // bit offset of each animated sub-track within one frame
	stores     [3]frameStore
	numStores  int
}

func buildSegmentDecode(data []byte, seg segmentHeader, numAnimated int) segmentDecode {
	base := seg.dataOffset
	rates := make([]ratecode.BitRate, numAnimated)
	prefix := make([]int, numAnimated)
	cursor := 0
	for i := 0; i < numAnimated; i++ {
		rates[i] = ratecode.BitRate(data[base+i])
		prefix[i] = cursor
		cursor += 3 * ratecode.NumBits(rates[i])
	}
	sd := segmentDecode{
		seg:        seg,
		data:       data,
		base:       base,
		rates:      rates,
		prefixBits: prefix,
	}
	frameDataStart := base + numAnimated + numAnimated*6
	sd.stores[0] = frameStore{data: data, mask: seg.sampleIndices, baseBit: frameDataStart * 8}
	sd.numStores = 1
	return sd
}

// addStore registers a streamed-in tier record as a frame source.
func (sd *segmentDecode) addStore(data []byte, offset int, mask uint32) {
	sd.stores[sd.numStores] = frameStore{data: data, mask: mask, baseBit: offset * 8}
	sd.numStores++
}

// locate resolves local frame f to the store holding it. A frame whose
// tier is not streamed in falls back to the nearest frame that is
// available, which is always bounded by the segment's two anchor
// frames (those never leave the inline stream).
func (sd *segmentDecode) locate(f int) (*frameStore, int) {
	for d := 0; d < sd.seg.numSamples; d++ {
		for _, cand := range [2]int{f - d, f + d} {
			if cand < 0 || cand >= sd.seg.numSamples {
				continue
			}
			for si := 0; si < sd.numStores; si++ {
				if sd.stores[si].has(cand) {
					return &sd.stores[si], cand
				}
			}
			if d == 0 {
				break // f-d == f+d
			}
		}
	}
	return &sd.stores[0], 0
}

// value decodes animatedIdx's sample at localSample (0-based within
// this segment) into clip-space, applying the segment then clip range.
// tracks is the compressed_tracks buffer, which always holds the
// clip-level ranges even when the frame itself came from a bulk region.
func (sd *segmentDecode) value(tracks []byte, h tracksHeader, animatedIdx, localSample int) qmath.Vector3 {
	rate := sd.rates[animatedIdx]
	rangeAt := sd.base + len(sd.rates) + animatedIdx*6
	segRange := readSegmentRange8(sd.data, rangeAt)
	clipRange := readClipRange(tracks, int(h.offsetClipRangeData), animatedIdx)

	store, f := sd.locate(localSample)
	bitOffset := store.baseBit + store.rank(f)*sd.seg.animatedPoseBitSize + sd.prefixBits[animatedIdx]
	reader := bitio.NewReaderAt(store.data, bitOffset)
	return dequantizeComponent(reader, clipRange, segRange, rate)
}
