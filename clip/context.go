// Package clip turns a raw, uniformly-sampled animation clip into a
// clip_context: the resampled, segmented, range-analysed, rotation-
// converted intermediate the bit-rate search and writer operate on
//.
package clip

import (
	"github.com/motionforge/acl/qmath"
	"github.com/motionforge/acl/skeleton"
)

// DefaultIdealNumSamples is the target segment length used when the
// caller's settings do not override it.
const DefaultIdealNumSamples = 16

// MaxSegmentSamples bounds a segment's length: the per-segment
// sample_indices bitmask in the container is a single u32, so a segment
// must never hold more than 32 frames. The segmenter may fold a short
// remainder into the preceding segment, so the ideal length is capped
// one below this.
const MaxSegmentSamples = 32

// DefaultTolerance is the per-component tolerance used to flag default
// and constant tracks.
const DefaultTolerance float32 = 0.00001

// Channel is one bone's samples for one animated channel, already
// rotation-converted (for rotation channels) and classified as
// default/constant.
type Channel struct {
	Rotations []qmath.Quat    // populated iff this is a rotation channel
	Vectors   []qmath.Vector3 // populated otherwise

	// Default marks a channel whose every sample is within tolerance of
	// its canonical identity value.
	Default bool
	// Constant marks a channel whose every sample is within tolerance of
	// its first sample. Default implies Constant.
	Constant bool

	// ClipRange is the tightest (min, extent) enclosing every sample in
	// the channel, computed once over the whole clip.
	ClipRange Range
}

// NumSamples returns the number of samples in the channel.
func (c *Channel) NumSamples() int {
	if c.Rotations != nil {
		return len(c.Rotations)
	}
	return len(c.Vectors)
}

// BoneStream groups the three channels belonging to one bone.
type BoneStream struct {
	Rotation    Channel
	Translation Channel
	Scale       Channel
}

// HasScale reports whether this bone contributes a scale sub-track,
// mirroring skeleton.BoneTracks.HasScale.
func (b *BoneStream) HasScale() bool {
	return !b.Scale.Default
}

// BoneSegmentRange holds one bone's three per-channel segment ranges,
// each already rounded to the 8-bit grid the container stores.
type BoneSegmentRange struct {
	Rotation    Range
	Translation Range
	Scale       Range
}

// Segment is a contiguous run of samples, the unit of range reduction
// and quantisation.
type Segment struct {
	StartSample int
	NumSamples  int

	// Ranges holds one BoneSegmentRange per bone in skeleton order.
	Ranges []BoneSegmentRange
}

// EndSample returns the index one past the segment's last sample.
func (s *Segment) EndSample() int { return s.StartSample + s.NumSamples }

// Context is the resampled, segmented, range-analysed clip the bit-rate
// search and writer consume: a clip_context.
type Context struct {
	Name       string
	Skeleton   *skeleton.Skeleton
	SampleRate float32
	NumSamples int

	// Bones holds one BoneStream per bone in skeleton order.
	Bones []BoneStream
	// Segments holds the clip's left-to-right packed segments.
	Segments []Segment
}

// BuildContext resamples raw onto its own uniform grid (already uniform
// per the RawClip contract), segments it, classifies every channel as
// default/constant, rotation-converts quaternion samples, and computes
// clip- and segment-level ranges. idealNumSamples <= 0 selects
// DefaultIdealNumSamples.
func BuildContext(raw *skeleton.RawClip, idealNumSamples int) *Context {
	if idealNumSamples <= 0 {
		idealNumSamples = DefaultIdealNumSamples
	}
	if idealNumSamples >= MaxSegmentSamples {
		idealNumSamples = MaxSegmentSamples - 1
	}

	ctx := &Context{
		Name:       raw.Name,
		Skeleton:   &raw.Skeleton,
		SampleRate: raw.SampleRate,
		NumSamples: raw.NumSamples,
		Bones:      make([]BoneStream, len(raw.Bones)),
	}

	for i := range raw.Bones {
		ctx.Bones[i] = buildBoneStream(&raw.Bones[i])
	}

	ctx.Segments = segmentClip(raw.NumSamples, idealNumSamples)
	for i := range ctx.Segments {
		computeSegmentRanges(ctx, &ctx.Segments[i])
	}
	return ctx
}

func buildBoneStream(src *skeleton.BoneTracks) BoneStream {
	return BoneStream{
		Rotation:    buildRotationChannel(&src.Rotation),
		Translation: buildVectorChannel(&src.Translation, qmath.VectorIdentityZero),
		Scale:       buildVectorChannel(&src.Scale, qmath.VectorIdentityOne),
	}
}

func buildRotationChannel(src *skeleton.Track) Channel {
	rotations := make([]qmath.Quat, len(src.Rotations))
	isDefault := true
	isConstant := true
	var first qmath.Quat
	if len(src.Rotations) > 0 {
		first = src.Rotations[0].EnsurePositiveW()
	}
	for i, q := range src.Rotations {
		// Rewrite q to -q whenever w < 0 before anything downstream
		// ever sees it, so drop-W storage and reconstruction agree.
		converted := q.EnsurePositiveW()
		rotations[i] = converted
		if !converted.NearEqual(qmath.QuatIdentity, DefaultTolerance) {
			isDefault = false
		}
		if !converted.NearEqual(first, DefaultTolerance) {
			isConstant = false
		}
	}
	if len(rotations) == 0 {
		isDefault, isConstant = true, true
	}
	return Channel{
		Rotations: rotations,
		Default:   isDefault,
		Constant:  isDefault || isConstant,
		ClipRange: rangeFromQuats(rotations),
	}
}

func buildVectorChannel(src *skeleton.Track, identity qmath.Vector3) Channel {
	vectors := make([]qmath.Vector3, len(src.Vectors))
	copy(vectors, src.Vectors)
	isDefault := true
	isConstant := true
	var first qmath.Vector3
	if len(vectors) > 0 {
		first = vectors[0]
	}
	for _, v := range vectors {
		if !v.NearEqual(identity, DefaultTolerance) {
			isDefault = false
		}
		if !v.NearEqual(first, DefaultTolerance) {
			isConstant = false
		}
	}
	if len(vectors) == 0 {
		isDefault, isConstant = true, true
	}
	return Channel{
		Vectors:   vectors,
		Default:   isDefault,
		Constant:  isDefault || isConstant,
		ClipRange: rangeFromVectors(vectors),
	}
}

// segmentClip packs [0, numSamples) left-to-right into runs of ideal
// samples, leaving a final run that may be short but has at least 2
// samples unless the whole clip is a single sample.
func segmentClip(numSamples, ideal int) []Segment {
	if numSamples <= 1 {
		return []Segment{{StartSample: 0, NumSamples: numSamples}}
	}

	var segments []Segment
	start := 0
	for start < numSamples {
		remaining := numSamples - start
		n := ideal
		switch {
		case remaining <= ideal:
			n = remaining
		case remaining-ideal < 2:
			// Taking a full ideal-sized segment here would strand a
			// final segment of fewer than 2 samples; fold the remainder
			// into this segment instead.
			n = remaining
		}
		segments = append(segments, Segment{StartSample: start, NumSamples: n})
		start += n
	}
	return segments
}

func computeSegmentRanges(ctx *Context, seg *Segment) {
	seg.Ranges = make([]BoneSegmentRange, len(ctx.Bones))
	for boneIndex := range ctx.Bones {
		bone := &ctx.Bones[boneIndex]
		seg.Ranges[boneIndex] = BoneSegmentRange{
			Rotation:    segmentChannelRange(&bone.Rotation, seg, rotationSampleAsVector),
			Translation: segmentChannelRange(&bone.Translation, seg, vectorSample),
			Scale:       segmentChannelRange(&bone.Scale, seg, vectorSample),
		}
	}
}

func rotationSampleAsVector(c *Channel, i int) qmath.Vector3 {
	q := c.Rotations[i]
	return qmath.Vector3{X: q.X, Y: q.Y, Z: q.Z}
}

func vectorSample(c *Channel, i int) qmath.Vector3 {
	return c.Vectors[i]
}

func segmentChannelRange(c *Channel, seg *Segment, sample func(*Channel, int) qmath.Vector3) Range {
	n := c.NumSamples()
	if n == 0 {
		return Range{}
	}
	end := seg.EndSample()
	if end > n {
		end = n
	}
	start := seg.StartSample
	if start >= end {
		start = end - 1
		if start < 0 {
			start = 0
		}
	}

	first := c.ClipRange.Normalize(sample(c, start))
	min, max := first, first
	for i := start + 1; i < end; i++ {
		normalized := c.ClipRange.Normalize(sample(c, i))
		min = qmath.Min(min, normalized)
		max = qmath.Max(max, normalized)
	}
	return roundSegmentRange(min, max)
}
