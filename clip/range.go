package clip

import (
	"math"

	"github.com/motionforge/acl/qmath"
)

// Range is a component-wise (min, extent) pair: the normalisation used
// throughout the pipeline to map samples into [0, 1] before
// quantisation and back out again on decompress.
type Range struct {
	Min    qmath.Vector3
	Extent qmath.Vector3
}

// Normalize maps v into [0, 1] relative to r. A zero extent component
// (a channel that never varies) normalises to 0 rather than dividing by
// zero.
func (r Range) Normalize(v qmath.Vector3) qmath.Vector3 {
	return qmath.Vector3{
		X: normalizeComponent(v.X, r.Min.X, r.Extent.X),
		Y: normalizeComponent(v.Y, r.Min.Y, r.Extent.Y),
		Z: normalizeComponent(v.Z, r.Min.Z, r.Extent.Z),
	}
}

// Expand is the inverse of Normalize: v*extent + min.
func (r Range) Expand(v qmath.Vector3) qmath.Vector3 {
	return qmath.Vector3{
		X: v.X*r.Extent.X + r.Min.X,
		Y: v.Y*r.Extent.Y + r.Min.Y,
		Z: v.Z*r.Extent.Z + r.Min.Z,
	}
}

func normalizeComponent(v, min, extent float32) float32 {
	if extent == 0 {
		return 0
	}
	return (v - min) / extent
}

// rangeFromVectors computes the tightest Range enclosing samples.
func rangeFromVectors(samples []qmath.Vector3) Range {
	if len(samples) == 0 {
		return Range{}
	}
	min, max := samples[0], samples[0]
	for _, s := range samples[1:] {
		min = qmath.Min(min, s)
		max = qmath.Max(max, s)
	}
	return Range{Min: min, Extent: max.Sub(min)}
}

// rangeFromQuats computes the tightest Range over a quaternion track's
// XYZ components; W is reconstructed at decompress time and never
// range-reduced on its own.
func rangeFromQuats(samples []qmath.Quat) Range {
	vectors := make([]qmath.Vector3, len(samples))
	for i, q := range samples {
		vectors[i] = qmath.Vector3{X: q.X, Y: q.Y, Z: q.Z}
	}
	return rangeFromVectors(vectors)
}

// eightBitQuantum is the smallest representable step of an 8-bit
// normalised value, the unit segment ranges are rounded to.
const eightBitQuantum = float32(1) / 255

// roundSegmentRange rounds (min, max), both expressed as normalised
// [0,1] coordinates relative to the clip range, out to the enclosing
// 8-bit grid cell and pads by one quantum on each side, clamped to
// [0,1]. The rounded range contains [min, max] and may be wider, so
// quantising an in-range sample and re-expanding it through the rounded
// range stays inside the clip range but not necessarily inside
// [min, max].
func roundSegmentRange(min, max qmath.Vector3) Range {
	rMin := qmath.Vector3{
		X: roundComponentDown(min.X),
		Y: roundComponentDown(min.Y),
		Z: roundComponentDown(min.Z),
	}
	rMax := qmath.Vector3{
		X: roundComponentUp(max.X),
		Y: roundComponentUp(max.Y),
		Z: roundComponentUp(max.Z),
	}
	return Range{Min: rMin, Extent: rMax.Sub(rMin)}
}

func roundComponentDown(v float32) float32 {
	floored := float32(math.Floor(float64(v)*255)) / 255
	v = floored - eightBitQuantum
	if v < 0 {
		v = 0
	}
	return v
}

func roundComponentUp(v float32) float32 {
	ceiled := float32(math.Ceil(float64(v)*255)) / 255
	v = ceiled + eightBitQuantum
	if v > 1 {
		v = 1
	}
	return v
}
