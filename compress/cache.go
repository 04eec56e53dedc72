package compress

import (
	"github.com/motionforge/acl/qmath"
	"github.com/motionforge/acl/skeleton"
)

// cacheKey identifies one (bone, channel) pair within the segment the
// cache is currently scoped to.
type cacheKey struct {
	bone    int
	channel skeleton.Channel
}

// variableSlot holds one bit rate's worth of quantise-then-dequantise
// results for every sample in the current segment. Each slot is a
// whole-segment memoisation unit rather than a per-sample bitset: the
// search always needs the segment's
// full error sweep before it can decide anything, so caching complete
// segments captures the same "don't recompute the same tuple twice"
// contract with a simpler shape.
type variableSlot struct {
	bitRate    BitRate
	generation uint32
	values     []qmath.Vector3
}

// SampleCache memoises (bone, channel, bit_rate) -> dequantised samples
// within one segment, the search's track_bit_rate_database. It is reset
// whenever the search moves to a different segment.
type SampleCache struct {
	constant   map[cacheKey]qmath.Vector3
	variable   map[cacheKey][]*variableSlot
	generation uint32
}

// NewSampleCache returns an empty cache.
func NewSampleCache() *SampleCache {
	return &SampleCache{
		constant: make(map[cacheKey]qmath.Vector3),
		variable: make(map[cacheKey][]*variableSlot),
	}
}

// maxVariableSlots is the number of bit-rate results kept per (bone,
// channel) before the least-recently-used one is evicted.
const maxVariableSlots = 4

// Reset drops every memoised value. Called when the search advances to
// a new segment.
func (c *SampleCache) Reset() {
	c.constant = make(map[cacheKey]qmath.Vector3)
	c.variable = make(map[cacheKey][]*variableSlot)
}

// GetConstant returns the cached constant/default value for (bone,
// channel), computing and storing it via compute on a miss.
func (c *SampleCache) GetConstant(bone int, channel skeleton.Channel, compute func() qmath.Vector3) qmath.Vector3 {
	key := cacheKey{bone, channel}
	if v, ok := c.constant[key]; ok {
		return v
	}
	v := compute()
	c.constant[key] = v
	return v
}

// GetVariable returns the cached per-sample values for (bone, channel,
// bitRate) across the whole segment, computing and storing them via
// compute on a miss. compute must return one value per segment sample,
// already range-reduced and dequantised exactly the way the decoder
// will re-expand them.
func (c *SampleCache) GetVariable(bone int, channel skeleton.Channel, bitRate BitRate, compute func() []qmath.Vector3) []qmath.Vector3 {
	key := cacheKey{bone, channel}
	slots := c.variable[key]

	for _, s := range slots {
		if s.bitRate == bitRate {
			c.generation++
			s.generation = c.generation
			return s.values
		}
	}

	values := compute()
	c.generation++
	newSlot := &variableSlot{bitRate: bitRate, generation: c.generation, values: values}

	if len(slots) < maxVariableSlots {
		c.variable[key] = append(slots, newSlot)
		return values
	}

	lruIndex := 0
	for i, s := range slots {
		if s.generation < slots[lruIndex].generation {
			lruIndex = i
		}
	}
	slots[lruIndex] = newSlot
	return values
}
