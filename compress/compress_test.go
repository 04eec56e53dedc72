package compress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionforge/acl/clip"
	"github.com/motionforge/acl/internal/container"
	"github.com/motionforge/acl/qmath"
	"github.com/motionforge/acl/skeleton"
)

// twoBoneClip: bone 0 fully default, bone 1
// with an animated translation along X.
func twoBoneClip() *skeleton.RawClip {
	numSamples := 3
	raw := &skeleton.RawClip{
		SampleRate: 30,
		NumSamples: numSamples,
		Skeleton: skeleton.Skeleton{Bones: []skeleton.Bone{
			{Name: "root", ParentIndex: skeleton.InvalidBoneIndex, OutputIndex: 0},
			{Name: "child", ParentIndex: 0, OutputIndex: 1},
		}},
	}

	identityRot := make([]qmath.Quat, numSamples)
	zeroTrans := make([]qmath.Vector3, numSamples)
	unitScale := make([]qmath.Vector3, numSamples)
	movingTrans := make([]qmath.Vector3, numSamples)
	for i := 0; i < numSamples; i++ {
		identityRot[i] = qmath.QuatIdentity
		unitScale[i] = qmath.VectorIdentityOne
		movingTrans[i] = qmath.Vector3{X: float32(i + 1)}
	}

	raw.Bones = []skeleton.BoneTracks{
		{
			Rotation:    skeleton.Track{Channel: skeleton.ChannelRotation, Rotations: identityRot},
			Translation: skeleton.Track{Channel: skeleton.ChannelTranslation, Vectors: zeroTrans},
			Scale:       skeleton.Track{Channel: skeleton.ChannelScale, Vectors: unitScale},
		},
		{
			Rotation:    skeleton.Track{Channel: skeleton.ChannelRotation, Rotations: append([]qmath.Quat(nil), identityRot...)},
			Translation: skeleton.Track{Channel: skeleton.ChannelTranslation, Vectors: movingTrans},
			Scale:       skeleton.Track{Channel: skeleton.ChannelScale, Vectors: append([]qmath.Vector3(nil), unitScale...)},
		},
	}
	return raw
}

func TestCompressFlagsDefaultAndAnimatedTracks(t *testing.T) {
	raw := twoBoneClip()
	ctx := clip.BuildContext(raw, 0)

	require.True(t, ctx.Bones[0].Rotation.Default)
	require.True(t, ctx.Bones[0].Translation.Default)
	require.True(t, ctx.Bones[0].Scale.Default)
	require.True(t, ctx.Bones[1].Rotation.Default)
	require.False(t, ctx.Bones[1].Translation.Default)
	require.False(t, ctx.Bones[1].Translation.Constant)
}

func TestCompressSmallClipStaysSmall(t *testing.T) {
	settings := DefaultSettings()
	settings.ErrorThreshold = 0.00001

	tracks, err := CompressTrackList(twoBoneClip(), settings, nil)
	require.NoError(t, err)
	defer tracks.Free()

	assert.LessOrEqual(t, len(tracks.Buf), 200, "scenario A size budget")
	require.NoError(t, container.Validate(tracks.Buf, container.TagCompressedTracks, true))
}

func TestCompressedBufferHashIsStable(t *testing.T) {
	tracks, err := CompressTrackList(twoBoneClip(), DefaultSettings(), nil)
	require.NoError(t, err)
	defer tracks.Free()

	// A byte-for-byte copy must recompute to the same hash.
	dup := make([]byte, len(tracks.Buf))
	copy(dup, tracks.Buf)
	hdr := container.GetRawBufferHeader(dup)
	require.Equal(t, hdr.Hash, container.FNV1a(dup[container.RawBufferHeaderSize:]))
	require.NoError(t, container.Validate(dup, container.TagCompressedTracks, true))
}

func TestCompressRejectsInvalidSettings(t *testing.T) {
	settings := DefaultSettings()
	settings.ErrorThreshold = float32(nan())

	_, err := CompressTrackList(twoBoneClip(), settings, nil)
	require.ErrorIs(t, err, ErrInvalidSettings)

	settings = DefaultSettings()
	settings.ErrorThreshold = -1
	_, err = CompressTrackList(twoBoneClip(), settings, nil)
	require.ErrorIs(t, err, ErrInvalidSettings)
}

func nan() float64 {
	v := 0.0
	return v / v
}

func TestCompressRejectsEmptyClip(t *testing.T) {
	raw := &skeleton.RawClip{Name: "empty", SampleRate: 30, NumSamples: 1}
	_, err := CompressTrackList(raw, DefaultSettings(), nil)
	require.ErrorIs(t, err, ErrEmptyClip)
}

func TestLocalPermutationsAreSortedByTotalBits(t *testing.T) {
	prev := -1
	for _, p := range localBitRatePermutations {
		total := totalBits(p)
		require.GreaterOrEqual(t, total, prev)
		prev = total
	}
}

func TestRaiseSmallestComponentPrefersTranslationOnTie(t *testing.T) {
	r := BoneBitRates{Rotation: 3, Translation: 3, Scale: 5}
	require.True(t, raiseSmallestComponent(&r))
	assert.Equal(t, BitRate(3), r.Rotation)
	assert.Equal(t, BitRate(4), r.Translation)

	r = BoneBitRates{Rotation: MaxBitRate(), Translation: MaxBitRate(), Scale: MaxBitRate()}
	require.False(t, raiseSmallestComponent(&r))
}

func TestSampleCacheHitIsBitExact(t *testing.T) {
	cache := NewSampleCache()
	calls := 0
	compute := func() []qmath.Vector3 {
		calls++
		return []qmath.Vector3{{X: 0.25, Y: 0.5, Z: 0.75}}
	}

	first := cache.GetVariable(0, skeleton.ChannelTranslation, 5, compute)
	second := cache.GetVariable(0, skeleton.ChannelTranslation, 5, compute)
	require.Equal(t, 1, calls, "second query must hit the cache")
	require.Equal(t, first, second)
}

func TestSampleCacheEvictsLRUBeyondFourSlots(t *testing.T) {
	cache := NewSampleCache()
	calls := make(map[BitRate]int)
	compute := func(r BitRate) func() []qmath.Vector3 {
		return func() []qmath.Vector3 {
			calls[r]++
			return []qmath.Vector3{{X: float32(r)}}
		}
	}

	for r := BitRate(1); r <= 4; r++ {
		cache.GetVariable(0, skeleton.ChannelRotation, r, compute(r))
	}
	// A fifth rate evicts the least recently used (rate 1).
	cache.GetVariable(0, skeleton.ChannelRotation, 5, compute(5))
	cache.GetVariable(0, skeleton.ChannelRotation, 1, compute(1))
	require.Equal(t, 2, calls[1], "rate 1 must have been evicted and recomputed")
}
