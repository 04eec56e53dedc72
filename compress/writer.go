package compress

import (
	"encoding/binary"
	"math"

	"github.com/motionforge/acl/clip"
	"github.com/motionforge/acl/internal/bitio"
	"github.com/motionforge/acl/internal/container"
	"github.com/motionforge/acl/qmath"
	"github.com/motionforge/acl/skeleton"
)

// subTrack names one animated channel of one bone, in the fixed
// rotation/translation/[scale] order the bitsets and per-segment data
// all share.
type subTrack struct {
	bone    int
	channel skeleton.Channel
}

// layoutSubTracks returns every sub-track in storage order: bone order,
// then rotation, translation, and (only when the bone has a non-default
// scale track) scale.
func layoutSubTracks(ctx *clip.Context) []subTrack {
	var tracks []subTrack
	for b := range ctx.Bones {
		tracks = append(tracks, subTrack{b, skeleton.ChannelRotation})
		tracks = append(tracks, subTrack{b, skeleton.ChannelTranslation})
		if ctx.Bones[b].HasScale() {
			tracks = append(tracks, subTrack{b, skeleton.ChannelScale})
		}
	}
	return tracks
}

func channelOf(ctx *clip.Context, s subTrack) *clip.Channel {
	bone := &ctx.Bones[s.bone]
	switch s.channel {
	case skeleton.ChannelRotation:
		return &bone.Rotation
	case skeleton.ChannelTranslation:
		return &bone.Translation
	default:
		return &bone.Scale
	}
}

func rangeOf(seg *clip.Segment, s subTrack) clip.Range {
	r := seg.Ranges[s.bone]
	switch s.channel {
	case skeleton.ChannelRotation:
		return r.Rotation
	case skeleton.ChannelTranslation:
		return r.Translation
	default:
		return r.Scale
	}
}

func bitRateOf(rates BoneBitRates, ch skeleton.Channel) BitRate {
	switch ch {
	case skeleton.ChannelRotation:
		return rates.Rotation
	case skeleton.ChannelTranslation:
		return rates.Translation
	default:
		return rates.Scale
	}
}

const segmentHeaderSize = 20 // AnimatedPoseBitSize(4) + SegmentDataOffset(4) + StartSample(4) + NumSamples(4) + SampleIndices(4)

// fixedHeaderSize is the size of every scalar/offset field preceding
// the variable-length sections.
//
// The eight offsets are: segment_start_indices, default_tracks_bitset,
// constant_tracks_bitset, has_scale_bitset, constant_track_data,
// clip_range_data, segment_headers, metadata. has_scale_bitset is what
// lets a reader know, per bone, whether it contributes 2 or 3
// sub-tracks to every other section.
const fixedHeaderSize = 4 /*tag*/ + 2 /*version*/ + 2 /*flags*/ +
	4 /*numBones*/ + 4 /*numSegments*/ + 4 /*sampleRate*/ + 4 /*numSamples*/ + 4 /*numSubTracks*/ +
	4*8 /*eight PtrOffset32 fields*/

// WriteCompressedTracks assembles the final compressed_tracks buffer
// for ctx given a per-segment, per-bone bit-rate assignment from
// SearchSegment. rates[s] holds one BoneBitRates per bone for
// segment s.
func WriteCompressedTracks(ctx *clip.Context, rates [][]BoneBitRates) []byte {
	return WriteCompressedTracksWithMetadata(ctx, rates, nil)
}

// WriteCompressedTracksWithMetadata additionally appends an opaque
// tagged byte blob after the animated data, reachable through its own
// offset field. The blob does not
// participate in decompression; it rides along for tooling.
func WriteCompressedTracksWithMetadata(ctx *clip.Context, rates [][]BoneBitRates, metadata []byte) []byte {
	subTracks := layoutSubTracks(ctx)
	numSubTracks := len(subTracks)

	var constantTracks, animatedTracks []subTrack
	for _, s := range subTracks {
		ch := channelOf(ctx, s)
		if ch.Default {
			continue
		}
		if ch.Constant {
			constantTracks = append(constantTracks, s)
		} else {
			animatedTracks = append(animatedTracks, s)
		}
	}

	numSegments := len(ctx.Segments)
	bitsetWords := container.BitSetWords(numSubTracks)

	cursor := container.RawBufferHeaderSize + fixedHeaderSize

	offsetSegmentStartIndices := container.InvalidOffset
	if numSegments > 1 {
		offsetSegmentStartIndices = container.PtrOffset32(cursor)
		cursor += (numSegments + 1) * 4
	}

	cursor = container.Align4(cursor)
	offsetDefaultBitset := container.PtrOffset32(cursor)
	cursor += bitsetWords * 4

	offsetConstantBitset := container.PtrOffset32(cursor)
	cursor += bitsetWords * 4

	boneBitsetWords := container.BitSetWords(len(ctx.Bones))
	offsetHasScaleBitset := container.PtrOffset32(cursor)
	cursor += boneBitsetWords * 4

	cursor = container.Align4(cursor)
	offsetConstantData := container.InvalidOffset
	if len(constantTracks) > 0 {
		offsetConstantData = container.PtrOffset32(cursor)
		cursor += len(constantTracks) * 12 // 3 IEEE floats per sub-track
	}

	cursor = container.Align4(cursor)
	offsetClipRangeData := container.InvalidOffset
	if len(animatedTracks) > 0 {
		offsetClipRangeData = container.PtrOffset32(cursor)
		cursor += len(animatedTracks) * 24 // (min,extent) x 3 floats
	}

	cursor = container.Align4(cursor)
	offsetSegmentHeaders := container.PtrOffset32(cursor)
	cursor += numSegments * segmentHeaderSize

	segmentDataOffsets := make([]int, numSegments)
	animatedPoseBitSizes := make([]int, numSegments)
	for s, seg := range ctx.Segments {
		cursor = container.Align4(cursor)
		segmentDataOffsets[s] = cursor
		cursor += len(animatedTracks) // format_per_track_data: one byte per animated sub-track
		cursor += len(animatedTracks) * 6 // segment_range_data: (min8,extent8) x 3 components

		bitSize := animatedPoseBitSize(rates[s], animatedTracks)
		animatedPoseBitSizes[s] = bitSize
		frameBytes := (bitSize*seg.NumSamples + 7) / 8
		cursor += frameBytes
	}
	cursor += bitio.TrailingPadBytes

	offsetMetadata := container.InvalidOffset
	if len(metadata) > 0 {
		cursor = container.Align4(cursor)
		offsetMetadata = container.PtrOffset32(cursor)
		cursor += 4 + len(metadata)
	}

	totalSize := container.Align(cursor)
	buf := make([]byte, totalSize)

	putU32 := func(at int, v uint32) { binary.LittleEndian.PutUint32(buf[at:], v) }
	putOffset := func(at int, v container.PtrOffset32) { container.PutPtrOffset32(buf, at, v) }

	base := container.RawBufferHeaderSize
	putU32(base, container.TagCompressedTracks)
	binary.LittleEndian.PutUint16(buf[base+4:], container.VersionLatest)
	putU32(base+8, uint32(len(ctx.Bones)))
	putU32(base+12, uint32(numSegments))
	binary.LittleEndian.PutUint32(buf[base+16:], math.Float32bits(ctx.SampleRate))
	putU32(base+20, uint32(ctx.NumSamples))
	putU32(base+24, uint32(numSubTracks))
	putOffset(base+28, offsetSegmentStartIndices)
	putOffset(base+32, offsetDefaultBitset)
	putOffset(base+36, offsetConstantBitset)
	putOffset(base+40, offsetHasScaleBitset)
	putOffset(base+44, offsetConstantData)
	putOffset(base+48, offsetClipRangeData)
	putOffset(base+52, offsetSegmentHeaders)
	putOffset(base+56, offsetMetadata)

	if offsetMetadata.IsValid() {
		at := int(offsetMetadata)
		putU32(at, uint32(len(metadata)))
		copy(buf[at+4:], metadata)
	}

	for b := range ctx.Bones {
		if ctx.Bones[b].HasScale() {
			container.BitSetSet(buf, int(offsetHasScaleBitset), b, true)
		}
	}

	if offsetSegmentStartIndices.IsValid() {
		pos := int(offsetSegmentStartIndices)
		sample := 0
		for s, seg := range ctx.Segments {
			putU32(pos+s*4, uint32(sample))
			sample += seg.NumSamples
		}
		putU32(pos+numSegments*4, uint32(ctx.NumSamples))
	}

	for i, s := range subTracks {
		ch := channelOf(ctx, s)
		if ch.Default {
			container.BitSetSet(buf, int(offsetDefaultBitset), i, true)
		}
		if ch.Constant {
			container.BitSetSet(buf, int(offsetConstantBitset), i, true)
		}
	}

	if offsetConstantData.IsValid() {
		pos := int(offsetConstantData)
		for _, s := range constantTracks {
			ch := channelOf(ctx, s)
			putFloat3(buf, pos, rawComponents(ch, 0))
			pos += 12
		}
	}

	if offsetClipRangeData.IsValid() {
		pos := int(offsetClipRangeData)
		for _, s := range animatedTracks {
			ch := channelOf(ctx, s)
			putFloat3(buf, pos, vectorToArray(ch.ClipRange.Min))
			putFloat3(buf, pos+12, vectorToArray(ch.ClipRange.Extent))
			pos += 24
		}
	}

	for s, seg := range ctx.Segments {
		hdrAt := int(offsetSegmentHeaders) + s*segmentHeaderSize
		putU32(hdrAt, uint32(animatedPoseBitSizes[s]))
		putOffset(hdrAt+4, container.PtrOffset32(segmentDataOffsets[s]))
		putU32(hdrAt+8, uint32(seg.StartSample))
		putU32(hdrAt+12, uint32(seg.NumSamples))
		// Freshly compressed clips carry every frame inline; a database
		// build clears bits here as it migrates frames to its tiers.
		putU32(hdrAt+16, fullSampleMask(seg.NumSamples))

		writeSegmentData(buf, segmentDataOffsets[s], ctx, &ctx.Segments[s], animatedTracks, rates[s], animatedPoseBitSizes[s])
	}

	hash := container.FNV1a(buf[container.RawBufferHeaderSize:])
	container.PutRawBufferHeader(buf, container.RawBufferHeader{Size: uint32(len(buf)), Hash: hash})
	return buf
}

func rawComponents(ch *clip.Channel, sampleIndex int) [3]float32 {
	v := rawVectorSample(ch, sampleIndex)
	return [3]float32{v.X, v.Y, v.Z}
}

func rawVectorSample(ch *clip.Channel, sampleIndex int) qmath.Vector3 {
	if ch.Rotations != nil {
		q := ch.Rotations[sampleIndex]
		return qmath.Vector3{X: q.X, Y: q.Y, Z: q.Z}
	}
	return ch.Vectors[sampleIndex]
}

func vectorToArray(v qmath.Vector3) [3]float32 { return [3]float32{v.X, v.Y, v.Z} }

func putFloat3(buf []byte, at int, v [3]float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[at+i*4:], math.Float32bits(f))
	}
}

// fullSampleMask sets one bit per frame of a segment. Segments never
// exceed 32 samples (clip.MaxSegmentSamples), so the mask always fits.
func fullSampleMask(n int) uint32 {
	if n >= 32 {
		return 0xFFFFFFFF
	}
	return (uint32(1) << uint(n)) - 1
}

func animatedPoseBitSize(rates []BoneBitRates, animatedTracks []subTrack) int {
	total := 0
	for _, s := range animatedTracks {
		rate := bitRateOf(rates[s.bone], s.channel)
		total += 3 * NumBits(rate)
	}
	return total
}

// writeRange8 writes a segment range as three (min8, extent8) byte
// pairs, one per component.
func writeRange8(buf []byte, at int, r clip.Range) {
	components := [3][2]float32{
		{r.Min.X, r.Extent.X},
		{r.Min.Y, r.Extent.Y},
		{r.Min.Z, r.Extent.Z},
	}
	for i, c := range components {
		buf[at+i*2] = quantizeToByte(c[0])
		buf[at+i*2+1] = quantizeToByte(c[1])
	}
}

func quantizeToByte(v float32) byte {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return byte(v*255 + 0.5)
}

func writeSegmentData(buf []byte, offset int, ctx *clip.Context, seg *clip.Segment, animatedTracks []subTrack, rates []BoneBitRates, bitSize int) {
	pos := offset
	for _, s := range animatedTracks {
		rate := bitRateOf(rates[s.bone], s.channel)
		buf[pos] = byte(rate)
		pos++
	}

	for _, s := range animatedTracks {
		segRange := rangeOf(seg, s)
		writeRange8(buf, pos, segRange)
		pos += 6
	}

	bw := bitio.NewWriter((bitSize*seg.NumSamples + 7) / 8)
	for i := seg.StartSample; i < seg.EndSample(); i++ {
		for _, s := range animatedTracks {
			ch := channelOf(ctx, s)
			segRange := rangeOf(seg, s)
			rate := bitRateOf(rates[s.bone], s.channel)
			writeComponent(bw, rawVectorSample(ch, i), ch.ClipRange, segRange, rate)
		}
	}
	frame := bw.Finish()
	copy(buf[pos:], frame)
}

// writeComponent writes one sub-track's sample at the chosen bit rate:
// a 0 bit rate contributes zero bits (its value already lives in the
// segment range block), the raw bit rate writes the untouched IEEE bit
// pattern, and every other rate quantises the clip-and-segment-
// normalised value to NumBits(rate) bits per component.
func writeComponent(bw *bitio.Writer, raw qmath.Vector3, clipRange, segRange clip.Range, rate BitRate) {
	if rate.IsConstant() {
		return
	}
	if rate.IsRaw() {
		bw.WriteBits(math.Float32bits(raw.X), 32)
		bw.WriteBits(math.Float32bits(raw.Y), 32)
		bw.WriteBits(math.Float32bits(raw.Z), 32)
		return
	}
	numBits := NumBits(rate)
	normClip := clipRange.Normalize(raw)
	normSeg := segRange.Normalize(normClip)
	bw.WriteBits(Quantize8(normSeg.X, numBits), numBits)
	bw.WriteBits(Quantize8(normSeg.Y, numBits), numBits)
	bw.WriteBits(Quantize8(normSeg.Z, numBits), numBits)
}
