package runtime

// Rounding selects how Seek snaps its (k0, k1, alpha) triple once the raw
// sample-space position has been computed.
type Rounding int

const (
	// RoundingNone keeps the fractional alpha as computed.
	RoundingNone Rounding = iota
	// RoundingFloor snaps to k0 (alpha = 0).
	RoundingFloor
	// RoundingCeiling snaps to k1 (k0 := k1, alpha = 0).
	RoundingCeiling
	// RoundingNearest snaps alpha to whichever of 0/1 is closer.
	RoundingNearest
)
