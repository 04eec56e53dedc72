package compress

import "github.com/motionforge/acl/internal/ratecode"

// BitRate indexes the fixed table of bits-per-component widths variable
// formats quantise to. 0 means "constant within the segment, the value
// is the segment range block's minimum"; the final entry means "raw, full 32-bit
// precision, ranges are not applied". It is a type
// alias of ratecode.BitRate so the compressor and the runtime decoder
// (internal/ratecode's other importer) always agree on the table and
// its IsConstant/IsRaw predicates.
type BitRate = ratecode.BitRate

// NumBitRates is the number of entries in the bit-rate table.
func NumBitRates() int { return ratecode.NumBitRates() }

// MaxBitRate is the highest valid BitRate index (the raw/full-precision
// entry).
func MaxBitRate() BitRate { return ratecode.MaxBitRate() }

// NumBits returns the number of bits per component that entry r of the
// bit-rate table encodes.
func NumBits(r BitRate) int { return ratecode.NumBits(r) }

// Quantize8 maps a normalised [0,1] value to a num-bit unsigned integer
// (0..2^numBits-1).
func Quantize8(v float32, numBits int) uint32 { return ratecode.Quantize(v, numBits) }

// Dequantize maps a numBits-wide unsigned integer back to [0,1].
func Dequantize(q uint32, numBits int) float32 { return ratecode.Dequantize(q, numBits) }
