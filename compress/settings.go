package compress

import (
	"fmt"
	"math"

	"github.com/motionforge/acl/errormetric"
)

// Level selects how aggressively the hill-climb in phase B of the
// bit-rate search explores ancestor-chain permutations.
type Level int

const (
	LevelLowest Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelHighest
)

// RotationFormat names the rotation format a clip is compressed for.
// The writer stores rotations the same way for either value: W is
// dropped and X, Y, Z are written at the bit rate the search picked.
// The setting only decides whether phase B ends with the escalation
// step, which runs for quat_full alone; full quaternions are not stored.
type RotationFormat int

const (
	RotationFormatQuatFull RotationFormat = iota
	RotationFormatQuatDropWVariable
)

// Settings configures one call to CompressTrackList.
type Settings struct {
	CompressionLevel Level
	RotationFormat   RotationFormat
	ErrorThreshold   float32
	IdealNumSamples  int
	Metric           errormetric.Metric
}

// DefaultSettings returns the settings used when a caller supplies none:
// medium compression, drop-W variable rotations, a loose error
// threshold suitable for general gameplay animation.
func DefaultSettings() Settings {
	return Settings{
		CompressionLevel: LevelMedium,
		RotationFormat:   RotationFormatQuatDropWVariable,
		ErrorThreshold:   0.01,
		IdealNumSamples:  16,
		Metric:           errormetric.NewShellMetric(),
	}
}

// Validate checks settings for the malformed-input cases the error
// taxonomy names.
func (s Settings) Validate() error {
	if math.IsNaN(float64(s.ErrorThreshold)) || math.IsInf(float64(s.ErrorThreshold), 0) {
		return fmt.Errorf("%w: error_threshold must be finite", ErrInvalidSettings)
	}
	if s.ErrorThreshold < 0 {
		return fmt.Errorf("%w: error_threshold must be non-negative", ErrInvalidSettings)
	}
	if s.IdealNumSamples < 0 {
		return fmt.Errorf("%w: ideal_num_samples must be non-negative", ErrInvalidSettings)
	}
	if s.CompressionLevel < LevelLowest || s.CompressionLevel > LevelHighest {
		return fmt.Errorf("%w: compression_level out of range", ErrInvalidSettings)
	}
	return nil
}

// maxPermutationBudget returns the largest k (Σ Δ) phase B explores for
// the configured compression level: only level >= High
// searches beyond single-bit nudges.
func (s Settings) maxPermutationBudget() int {
	if s.CompressionLevel >= LevelHigh {
		return 3
	}
	return 1
}
