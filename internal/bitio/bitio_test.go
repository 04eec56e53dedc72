package bitio

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	widths := []int{0, 1, 3, 5, 8, 9, 16, 17, 24, 32}

	type field struct {
		value uint32
		width int
	}
	var fields []field

	w := NewWriter(64)
	for i := 0; i < 2000; i++ {
		width := widths[rng.Intn(len(widths))]
		var v uint32
		if width > 0 {
			v = uint32(rng.Int63()) & bitMask(width)
		}
		fields = append(fields, field{v, width})
		w.WriteBits(v, width)
	}
	data := w.Finish()

	r := NewReader(data)
	for i, f := range fields {
		got := r.ReadBits(f.width)
		require.Equalf(t, f.value, got, "field %d (width %d)", i, f.width)
	}
}

func TestReaderSeek(t *testing.T) {
	w := NewWriter(16)
	w.WriteBits(0x3, 2)
	w.WriteBits(0xAB, 8)
	w.WriteBits(0x5, 4)
	data := w.Finish()

	r := NewReaderAt(data, 2)
	require.Equal(t, uint32(0xAB), r.ReadBits(8))
	require.Equal(t, uint32(0x5), r.ReadBits(4))
}

func TestBitsWrittenMatchesSum(t *testing.T) {
	w := NewWriter(16)
	total := 0
	for _, n := range []int{3, 5, 32, 1, 7} {
		w.WriteBits(0, n)
		total += n
	}
	require.Equal(t, total, w.BitsWritten())
}
