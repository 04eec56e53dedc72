package database_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionforge/acl/compress"
	"github.com/motionforge/acl/database"
	"github.com/motionforge/acl/qmath"
	"github.com/motionforge/acl/skeleton"
)

// movingClip builds a 1-bone raw clip whose translation sweeps along X,
// offset so distinct clips compress to distinct buffers.
func movingClip(name string, numSamples int, offset float32) *skeleton.RawClip {
	raw := &skeleton.RawClip{
		Name:       name,
		SampleRate: 30,
		NumSamples: numSamples,
		Skeleton: skeleton.Skeleton{Bones: []skeleton.Bone{
			{Name: "root", ParentIndex: skeleton.InvalidBoneIndex, OutputIndex: 0},
		}},
	}
	rot := make([]qmath.Quat, numSamples)
	trans := make([]qmath.Vector3, numSamples)
	scale := make([]qmath.Vector3, numSamples)
	for i := 0; i < numSamples; i++ {
		rot[i] = qmath.QuatIdentity
		scale[i] = qmath.VectorIdentityOne
		trans[i] = qmath.Vector3{X: offset + float32(i)}
	}
	raw.Bones = []skeleton.BoneTracks{{
		Rotation:    skeleton.Track{Channel: skeleton.ChannelRotation, Rotations: rot},
		Translation: skeleton.Track{Channel: skeleton.ChannelTranslation, Vectors: trans},
		Scale:       skeleton.Track{Channel: skeleton.ChannelScale, Vectors: scale},
	}}
	return raw
}

func compressToSource(t *testing.T, raw *skeleton.RawClip) database.ClipSource {
	t.Helper()
	tracks, err := compress.CompressTrackList(raw, compress.DefaultSettings(), nil)
	require.NoError(t, err)
	buf := make([]byte, len(tracks.Buf))
	copy(buf, tracks.Buf)
	tracks.Free()

	errs, err := database.ClipContributingErrors(buf)
	require.NoError(t, err)
	return database.ClipSource{Buf: buf, ContributingError: errs}
}

func twoClipSources(t *testing.T) []database.ClipSource {
	t.Helper()
	return []database.ClipSource{
		compressToSource(t, movingClip("walk", 64, 0)),
		compressToSource(t, movingClip("run", 64, 100)),
	}
}

func TestBuildAssignsTiersByProportion(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.MediumImportanceProportion = 0.3
	cfg.LowImportanceProportion = 0.3

	rewritten, db, err := database.Build(twoClipSources(t), cfg)
	require.NoError(t, err)
	require.Len(t, rewritten, 2)

	// 64 samples at 16 per segment: 4 segments per clip, each keeping
	// its first and last frame as anchors, so 14 movable frames per
	// segment, 112 across both clips; 30% rounds down to 33 per tier.
	assert.Equal(t, 2, db.NumClips())
	assert.Equal(t, 33, db.TierFrameCount(database.TierMedium))
	assert.Equal(t, 33, db.TierFrameCount(database.TierLow))
	assert.Equal(t, 1, db.ChunkCount(database.TierMedium))
	assert.Equal(t, 1, db.ChunkCount(database.TierLow))

	// Anchor frames are immovable regardless of cost.
	for c := 0; c < 2; c++ {
		for s := 0; s < 4; s++ {
			assert.Equal(t, database.TierHigh, db.FrameTier(c, s, 0))
			assert.Equal(t, database.TierHigh, db.FrameTier(c, s, 15))
		}
	}
}

func TestBuildRejectsBadProportions(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.MediumImportanceProportion = 0.7
	cfg.LowImportanceProportion = 0.7

	_, _, err := database.Build(twoClipSources(t), cfg)
	require.ErrorIs(t, err, database.ErrInvalidProportions)
}

func TestWriteValidates(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.LowImportanceProportion = 1.0

	_, db, err := database.Build(twoClipSources(t), cfg)
	require.NoError(t, err)

	buf := db.Write()
	require.NoError(t, database.Validate(buf))

	// Corruption must be caught.
	buf[len(buf)-1] ^= 0xFF
	require.Error(t, database.Validate(buf))
}

func TestSplitThenJoinRestoresDatabase(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.MediumImportanceProportion = 0.5
	cfg.LowImportanceProportion = 0.5

	_, db, err := database.Build(twoClipSources(t), cfg)
	require.NoError(t, err)

	inline := db.Write()
	noBulk, bulkMedium, bulkLow := db.Split()
	require.NoError(t, database.Validate(noBulk))
	require.Less(t, len(noBulk), len(inline))

	joined, err := database.Join(noBulk, bulkMedium, bulkLow)
	require.NoError(t, err)
	require.True(t, bytes.Equal(inline, joined), "join must restore the inline artefact byte for byte")
}

func TestJoinRejectsInlineDatabase(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.LowImportanceProportion = 1.0
	_, db, err := database.Build(twoClipSources(t), cfg)
	require.NoError(t, err)

	_, err = database.Join(db.Write(), nil, nil)
	require.ErrorIs(t, err, database.ErrBulkInline)
}

func TestStripCommutes(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.MediumImportanceProportion = 0.5
	cfg.LowImportanceProportion = 0.5

	_, db, err := database.Build(twoClipSources(t), cfg)
	require.NoError(t, err)

	ml, err := db.Strip(database.TierMedium)
	require.NoError(t, err)
	ml, err = ml.Strip(database.TierLow)
	require.NoError(t, err)

	lm, err := db.Strip(database.TierLow)
	require.NoError(t, err)
	lm, err = lm.Strip(database.TierMedium)
	require.NoError(t, err)

	require.True(t, bytes.Equal(ml.Write(), lm.Write()), "strip order must not matter")
	require.True(t, ml.IsStripped(database.TierMedium))
	require.True(t, ml.IsStripped(database.TierLow))
}

func TestStripLowLeavesMediumIntact(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.MediumImportanceProportion = 0.5
	cfg.LowImportanceProportion = 0.5

	_, db, err := database.Build(twoClipSources(t), cfg)
	require.NoError(t, err)

	stripped, err := db.Strip(database.TierLow)
	require.NoError(t, err)

	// The medium tier's chunks, sample_indices, and bulk bytes must be
	// untouched.
	require.Equal(t, db.ChunkCount(database.TierMedium), stripped.ChunkCount(database.TierMedium))
	require.False(t, stripped.IsStripped(database.TierMedium))
	require.NoError(t, database.Validate(stripped.Write()))

	_, wantMedium, _ := db.Split()
	_, gotMedium, _ := stripped.Split()
	require.True(t, bytes.Equal(wantMedium, gotMedium))
}

func TestMergeMatchesBuildingTogether(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.LowImportanceProportion = 1.0

	sources := twoClipSources(t)

	_, together, err := database.Build(sources, cfg)
	require.NoError(t, err)

	_, dbA, err := database.Build(sources[:1], cfg)
	require.NoError(t, err)
	_, dbB, err := database.Build(sources[1:], cfg)
	require.NoError(t, err)

	merged, err := database.Merge([]*database.Database{dbA, dbB}, cfg)
	require.NoError(t, err)

	require.True(t, bytes.Equal(together.Write(), merged.Write()),
		"merging singleton databases must reproduce the combined build")
}

func TestMergeRejectsStrippedInput(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.LowImportanceProportion = 1.0

	sources := twoClipSources(t)
	_, db, err := database.Build(sources[:1], cfg)
	require.NoError(t, err)
	stripped, err := db.Strip(database.TierLow)
	require.NoError(t, err)

	_, err = database.Merge([]*database.Database{stripped}, cfg)
	require.ErrorIs(t, err, database.ErrTierStripped)
}

func TestContextStreamInAndOut(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.LowImportanceProportion = 1.0

	_, db, err := database.Build(twoClipSources(t), cfg)
	require.NoError(t, err)

	var ctx database.Context
	require.Equal(t, database.RequestNotInitialized, ctx.StreamIn(database.TierLow, 0))

	require.NoError(t, ctx.Initialize(db, nil, nil))
	require.ErrorIs(t, ctx.Initialize(db, nil, nil), database.ErrContextAlreadyBound)

	require.False(t, ctx.IsStreamedIn(database.TierLow))
	require.Equal(t, database.RequestDispatched, ctx.StreamIn(database.TierLow, 0))
	require.True(t, ctx.IsStreamedIn(database.TierLow))
	require.Equal(t, database.RequestDone, ctx.StreamIn(database.TierLow, 0))

	// The medium tier is empty under these proportions.
	require.Equal(t, database.RequestDone, ctx.StreamIn(database.TierMedium, 0))

	require.Equal(t, database.RequestDispatched, ctx.StreamOut(database.TierLow, 0))
	require.False(t, ctx.IsStreamedIn(database.TierLow))
	require.Equal(t, database.RequestDone, ctx.StreamOut(database.TierLow, 0))
}

func TestBoltStreamerRoundTrip(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.LowImportanceProportion = 1.0

	_, db, err := database.Build(twoClipSources(t), cfg)
	require.NoError(t, err)

	_, _, bulkLow := db.Split()
	path := filepath.Join(t.TempDir(), "bulk.db")
	require.NoError(t, database.SaveTierBulk(path, database.TierLow, bulkLow))

	streamer, err := database.NewBoltStreamer(path, database.TierLow)
	require.NoError(t, err)
	defer streamer.Close()

	var ctx database.Context
	require.NoError(t, ctx.Initialize(db, nil, streamer))
	require.Equal(t, database.RequestDispatched, ctx.StreamIn(database.TierLow, 0))
	require.True(t, ctx.IsStreamedIn(database.TierLow))
	require.True(t, bytes.Equal(streamer.BulkData(), bulkLow))
}
