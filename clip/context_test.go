package clip

import (
	"testing"

	"github.com/motionforge/acl/qmath"
	"github.com/motionforge/acl/skeleton"
	"github.com/stretchr/testify/require"
)

// buildTwoBoneClip is a minimal two-bone clip for the concrete
// end-to-end tests: bone 0 fully static, bone 1 translating along X.
func buildTwoBoneClip() *skeleton.RawClip {
	identityRotations := []qmath.Quat{qmath.QuatIdentity, qmath.QuatIdentity, qmath.QuatIdentity}
	zeroTranslation := []qmath.Vector3{{}, {}, {}}
	unitScale := []qmath.Vector3{qmath.VectorIdentityOne, qmath.VectorIdentityOne, qmath.VectorIdentityOne}

	return &skeleton.RawClip{
		Name: "scenario-a",
		Skeleton: skeleton.Skeleton{
			Bones: []skeleton.Bone{
				{Name: "root", ParentIndex: skeleton.InvalidBoneIndex, OutputIndex: 0},
				{Name: "child", ParentIndex: 0, OutputIndex: 1},
			},
		},
		SampleRate: 30,
		NumSamples: 3,
		Bones: []skeleton.BoneTracks{
			{
				Rotation:    skeleton.Track{Channel: skeleton.ChannelRotation, Rotations: identityRotations},
				Translation: skeleton.Track{Channel: skeleton.ChannelTranslation, Vectors: zeroTranslation},
				Scale:       skeleton.Track{Channel: skeleton.ChannelScale, Vectors: unitScale},
			},
			{
				Rotation: skeleton.Track{Channel: skeleton.ChannelRotation, Rotations: identityRotations},
				Translation: skeleton.Track{Channel: skeleton.ChannelTranslation, Vectors: []qmath.Vector3{
					{X: 1}, {X: 2}, {X: 3},
				}},
				Scale: skeleton.Track{Channel: skeleton.ChannelScale, Vectors: unitScale},
			},
		},
	}
}

func TestBuildContextFlagsDefaultAndAnimatedTracks(t *testing.T) {
	ctx := BuildContext(buildTwoBoneClip(), DefaultIdealNumSamples)

	require.True(t, ctx.Bones[0].Rotation.Default)
	require.True(t, ctx.Bones[0].Translation.Default)
	require.True(t, ctx.Bones[0].Scale.Default)

	require.True(t, ctx.Bones[1].Rotation.Default)
	require.False(t, ctx.Bones[1].Translation.Default)
	require.False(t, ctx.Bones[1].Translation.Constant)
}

func TestBuildContextSingleSegmentForShortClip(t *testing.T) {
	ctx := BuildContext(buildTwoBoneClip(), DefaultIdealNumSamples)
	require.Len(t, ctx.Segments, 1)
	require.Equal(t, 0, ctx.Segments[0].StartSample)
	require.Equal(t, 3, ctx.Segments[0].NumSamples)
}

func TestSegmentClipPacksLeftToRightAvoidingShortTail(t *testing.T) {
	segs := segmentClip(17, 16)
	require.Len(t, segs, 1, "a 1-sample tail must be folded into the prior segment")
	require.Equal(t, 17, segs[0].NumSamples)

	segs = segmentClip(32, 16)
	require.Len(t, segs, 2)
	require.Equal(t, 16, segs[0].NumSamples)
	require.Equal(t, 16, segs[1].NumSamples)

	segs = segmentClip(1, 16)
	require.Len(t, segs, 1)
	require.Equal(t, 1, segs[0].NumSamples)
}

func TestSegmentRangeReexpandsWithinBounds(t *testing.T) {
	ctx := BuildContext(buildTwoBoneClip(), DefaultIdealNumSamples)
	bone1Translation := ctx.Segments[0].Ranges[1].Translation

	clipRange := ctx.Bones[1].Translation.ClipRange
	for _, sample := range ctx.Bones[1].Translation.Vectors {
		normalized := clipRange.Normalize(sample)
		require.GreaterOrEqual(t, normalized.X, bone1Translation.Min.X-1e-6)
		require.LessOrEqual(t, normalized.X, bone1Translation.Min.X+bone1Translation.Extent.X+1e-6)
	}
}

func TestRotationConversionEnsuresPositiveW(t *testing.T) {
	raw := buildTwoBoneClip()
	raw.Bones[0].Rotation.Rotations[1] = qmath.Quat{X: 0, Y: 0, Z: 0.6, W: -0.8}

	ctx := BuildContext(raw, DefaultIdealNumSamples)
	require.GreaterOrEqual(t, ctx.Bones[0].Rotation.Rotations[1].W, float32(0))
}
