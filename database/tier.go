// Package database implements the tiered bulk-data builder and the
// streamer-backed decompression path behind it: moving individual
// interior keyframes of a compressed clip out into shared, chunked
// storage organised by importance, and reading them back on demand.
//
// The unit of migration is a single frame. Every segment keeps its
// first and last frame inline as anchors; its interior frames may be
// assigned to a streamable tier, extracted bit-for-bit from the
// animated stream into per-segment bulk records, and recorded in the
// segment header's sample_indices mask. A segment's record is the
// "never split" boundary for chunk packing, but tier assignment,
// residency masks, and the decoder's fallback all operate per frame.
package database

// Tier ranks a frame's importance to the pose it reconstructs. High
// frames are always inline; Medium and Low are bulk data the
// streamer may page in and out independently.
type Tier int

const (
	TierHigh Tier = iota
	TierMedium
	TierLow
)

// NumTiers is the count of streamable/bulk tiers plus the always-
// resident high tier; Medium and Low each get one tier_metadata slot
// pair per segment.
const NumTiers = 3

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return "unknown"
	}
}

// Bulk reports whether segments of this tier live in bulk storage
// (streamable) rather than always inline.
func (t Tier) Bulk() bool { return t == TierMedium || t == TierLow }
