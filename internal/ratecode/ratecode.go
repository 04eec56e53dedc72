// Package ratecode holds the fixed variable-bit-rate table shared by the
// compressor (which searches over it) and the runtime decoder (which
// must invert exactly the quantisation the search chose).
// Keeping it in its own package lets the decode path avoid importing the
// much heavier compress package it would otherwise need just for this
// table.
package ratecode

// BitRate indexes the fixed table of bits-per-component widths variable
// formats quantise to. 0 means "constant within the segment, one value
// lives in the segment range block"; the final entry means "raw,
// full 32-bit precision, ranges are not applied".
type BitRate int

// table mirrors k_bit_rate_num_bits: index 0 is the special
// constant-in-segment rate, the middle entries are the quantisation
// widths the search walks, and the last entry is the raw/full-precision
// escape hatch used by escalation.
var table = []int{
	0,
	3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19,
	32,
}

// NumBitRates is the number of entries in the bit-rate table.
func NumBitRates() int { return len(table) }

// MaxBitRate is the highest valid BitRate index (the raw/full-precision
// entry).
func MaxBitRate() BitRate { return BitRate(len(table) - 1) }

// NumBits returns the number of bits per component table[r] encodes.
func NumBits(r BitRate) int { return table[r] }

// IsConstant reports whether r stores its one value in the segment
// range block instead of the animated stream.
func (r BitRate) IsConstant() bool { return r == 0 }

// IsRaw reports whether r is the full-precision escape hatch, which
// skips both segment and clip range reduction.
func (r BitRate) IsRaw() bool { return r == MaxBitRate() }

// Quantize maps a normalised [0,1] value to a num-bit unsigned integer
// (0..2^numBits-1).
func Quantize(v float32, numBits int) uint32 {
	if numBits <= 0 {
		return 0
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	maxVal := float32((uint64(1) << uint(numBits)) - 1)
	return uint32(v*maxVal + 0.5)
}

// Dequantize maps a numBits-wide unsigned integer back to [0,1].
func Dequantize(q uint32, numBits int) float32 {
	if numBits <= 0 {
		return 0
	}
	maxVal := float32((uint64(1) << uint(numBits)) - 1)
	return float32(q) / maxVal
}
