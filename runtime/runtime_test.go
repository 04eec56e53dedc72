package runtime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionforge/acl/compress"
	"github.com/motionforge/acl/database"
	"github.com/motionforge/acl/qmath"
	"github.com/motionforge/acl/skeleton"
)

// poseCapture records every write so tests can inspect a full pose.
type poseCapture struct {
	rotations    map[int]qmath.Quat
	translations map[int]qmath.Vector3
	scales       map[int]qmath.Vector3
}

func newPoseCapture() *poseCapture {
	return &poseCapture{
		rotations:    make(map[int]qmath.Quat),
		translations: make(map[int]qmath.Vector3),
		scales:       make(map[int]qmath.Vector3),
	}
}

func (p *poseCapture) WriteRotation(bone int, q qmath.Quat)       { p.rotations[bone] = q }
func (p *poseCapture) WriteTranslation(bone int, v qmath.Vector3) { p.translations[bone] = v }
func (p *poseCapture) WriteScale(bone int, v qmath.Vector3)       { p.scales[bone] = v }

func defaultTracks(n int) (rot []qmath.Quat, trans, scale []qmath.Vector3) {
	rot = make([]qmath.Quat, n)
	trans = make([]qmath.Vector3, n)
	scale = make([]qmath.Vector3, n)
	for i := 0; i < n; i++ {
		rot[i] = qmath.QuatIdentity
		scale[i] = qmath.VectorIdentityOne
	}
	return rot, trans, scale
}

func boneTracks(rot []qmath.Quat, trans, scale []qmath.Vector3) skeleton.BoneTracks {
	return skeleton.BoneTracks{
		Rotation:    skeleton.Track{Channel: skeleton.ChannelRotation, Rotations: rot},
		Translation: skeleton.Track{Channel: skeleton.ChannelTranslation, Vectors: trans},
		Scale:       skeleton.Track{Channel: skeleton.ChannelScale, Vectors: scale},
	}
}

func singleBoneSkeleton() skeleton.Skeleton {
	return skeleton.Skeleton{Bones: []skeleton.Bone{
		{Name: "root", ParentIndex: skeleton.InvalidBoneIndex, OutputIndex: 0},
	}}
}

// scenarioAClip: 2 bones, 3 samples at 30 Hz; bone 1 translation moves
// (1,0,0) -> (3,0,0).
func scenarioAClip() *skeleton.RawClip {
	n := 3
	raw := &skeleton.RawClip{
		SampleRate: 30,
		NumSamples: n,
		Skeleton: skeleton.Skeleton{Bones: []skeleton.Bone{
			{Name: "root", ParentIndex: skeleton.InvalidBoneIndex, OutputIndex: 0},
			{Name: "child", ParentIndex: 0, OutputIndex: 1},
		}},
	}
	rot0, trans0, scale0 := defaultTracks(n)
	rot1, trans1, scale1 := defaultTracks(n)
	for i := 0; i < n; i++ {
		trans1[i] = qmath.Vector3{X: float32(i + 1)}
	}
	raw.Bones = []skeleton.BoneTracks{
		boneTracks(rot0, trans0, scale0),
		boneTracks(rot1, trans1, scale1),
	}
	return raw
}

// rotatingClip: 1 bone, numSamples of a rotation around Y sweeping one
// full turn.
func rotatingClip(numSamples int) *skeleton.RawClip {
	raw := &skeleton.RawClip{
		SampleRate: 30,
		NumSamples: numSamples,
		Skeleton:   singleBoneSkeleton(),
	}
	rot, trans, scale := defaultTracks(numSamples)
	for i := 0; i < numSamples; i++ {
		angle := 2 * math.Pi * float64(i) / float64(numSamples)
		rot[i] = qmath.FromAxisAngle(qmath.Vector3{Y: 1}, float32(angle))
	}
	raw.Bones = []skeleton.BoneTracks{boneTracks(rot, trans, scale)}
	return raw
}

// movingClip: 1 bone, translation sweeping linearly along X.
func movingClip(numSamples int) *skeleton.RawClip {
	raw := &skeleton.RawClip{
		SampleRate: 30,
		NumSamples: numSamples,
		Skeleton:   singleBoneSkeleton(),
	}
	rot, trans, scale := defaultTracks(numSamples)
	for i := 0; i < numSamples; i++ {
		trans[i] = qmath.Vector3{X: float32(i)}
	}
	raw.Bones = []skeleton.BoneTracks{boneTracks(rot, trans, scale)}
	return raw
}

func compressClip(t *testing.T, raw *skeleton.RawClip, threshold float32) []byte {
	t.Helper()
	settings := compress.DefaultSettings()
	if threshold > 0 {
		settings.ErrorThreshold = threshold
	}
	tracks, err := compress.CompressTrackList(raw, settings, nil)
	require.NoError(t, err)
	buf := make([]byte, len(tracks.Buf))
	copy(buf, tracks.Buf)
	tracks.Free()
	return buf
}

func seekAndCapture(t *testing.T, ctx *Context, at float32) *poseCapture {
	t.Helper()
	require.NoError(t, ctx.Seek(at, RoundingNone))
	pose := newPoseCapture()
	ctx.DecompressPose(pose)
	return pose
}

func TestScenarioASampling(t *testing.T) {
	buf := compressClip(t, scenarioAClip(), 0.00001)

	var ctx Context
	require.NoError(t, ctx.Initialize(buf))

	pose := seekAndCapture(t, &ctx, 1.0/60.0)
	got := pose.translations[1]
	assert.InDelta(t, 1.5, got.X, 1e-4)
	assert.InDelta(t, 0.0, got.Y, 1e-4)
	assert.InDelta(t, 0.0, got.Z, 1e-4)

	// Bone 0 is fully default.
	assert.Equal(t, qmath.QuatIdentity, pose.rotations[0])
	assert.Equal(t, qmath.VectorIdentityZero, pose.translations[0])
	assert.Equal(t, qmath.VectorIdentityOne, pose.scales[0])
}

func TestRotationRoundTripErrorBound(t *testing.T) {
	raw := rotatingClip(32)
	buf := compressClip(t, raw, 0.00005)

	var ctx Context
	require.NoError(t, ctx.Initialize(buf))

	duration := raw.Duration()
	const steps = 200
	for i := 0; i <= steps; i++ {
		at := duration * float32(i) / steps
		pose := seekAndCapture(t, &ctx, at)

		angle := 2 * math.Pi * float64(at*raw.SampleRate) / 32
		want := qmath.FromAxisAngle(qmath.Vector3{Y: 1}, float32(angle))
		err := qmath.AngleBetween(want, pose.rotations[0])
		require.LessOrEqual(t, err, float32(0.01), "sample time %f", at)
	}
}

func TestBoundarySamplesMatchRawPose(t *testing.T) {
	raw := movingClip(16)
	buf := compressClip(t, raw, 0.00001)

	var ctx Context
	require.NoError(t, ctx.Initialize(buf))

	pose := seekAndCapture(t, &ctx, 0)
	assert.InDelta(t, 0.0, pose.translations[0].X, 1e-4)

	pose = seekAndCapture(t, &ctx, raw.Duration())
	assert.InDelta(t, 15.0, pose.translations[0].X, 1e-4)
}

func TestSamplingBeyondDurationClampsToLastSample(t *testing.T) {
	raw := movingClip(16)
	buf := compressClip(t, raw, 0.00001)

	var ctx Context
	require.NoError(t, ctx.Initialize(buf))

	pose := seekAndCapture(t, &ctx, 2*raw.Duration())
	assert.InDelta(t, 15.0, pose.translations[0].X, 1e-4)

	pose = seekAndCapture(t, &ctx, -1)
	assert.InDelta(t, 0.0, pose.translations[0].X, 1e-4)
}

// A rotation constant within each segment but different across segments
// quantises to bit rate 0: the animated stream carries zero bits and
// the value decodes from the segment range block alone.
func TestConstantInSegmentRotationUsesZeroBits(t *testing.T) {
	n := 32
	raw := &skeleton.RawClip{
		SampleRate: 30,
		NumSamples: n,
		Skeleton:   singleBoneSkeleton(),
	}
	rot, trans, scale := defaultTracks(n)
	q0 := qmath.QuatIdentity
	q1 := qmath.FromAxisAngle(qmath.Vector3{Y: 1}, 0.5)
	for i := 0; i < n; i++ {
		if i < 16 {
			rot[i] = q0
		} else {
			rot[i] = q1
		}
	}
	raw.Bones = []skeleton.BoneTracks{boneTracks(rot, trans, scale)}

	buf := compressClip(t, raw, 0)

	var ctx Context
	require.NoError(t, ctx.Initialize(buf))
	require.Equal(t, 2, ctx.header.numSegments)
	for s := 0; s < ctx.header.numSegments; s++ {
		seg := ctx.header.segment(ctx.buf, s)
		assert.Equal(t, 0, seg.animatedPoseBitSize, "segment %d", s)
	}

	pose := seekAndCapture(t, &ctx, 0)
	assert.LessOrEqual(t, qmath.AngleBetween(q0, pose.rotations[0]), float32(0.05))

	pose = seekAndCapture(t, &ctx, float32(20)/30)
	assert.LessOrEqual(t, qmath.AngleBetween(q1, pose.rotations[0]), float32(0.05))
}

// The bits consumed by all sub-tracks of one keyframe must sum to the
// segment header's recorded pose bit size.
func TestAnimatedPoseBitSizeMatchesSubTrackRates(t *testing.T) {
	raw := rotatingClip(48)
	for i := 0; i < 48; i++ {
		raw.Bones[0].Translation.Vectors[i] = qmath.Vector3{X: float32(i) * 0.1, Y: float32(i) * -0.2}
	}
	buf := compressClip(t, raw, 0)

	var ctx Context
	require.NoError(t, ctx.Initialize(buf))
	require.NoError(t, ctx.Seek(0.5, RoundingNone))

	total := 0
	for _, r := range ctx.segA.rates {
		total += 3 * compress.NumBits(compress.BitRate(r))
	}
	require.Equal(t, ctx.segA.seg.animatedPoseBitSize, total)
}

func TestSeekRoundingModes(t *testing.T) {
	k0, k1, alpha := computeSeek(0.05, 30, 16, RoundingNone)
	require.Equal(t, 1, k0)
	require.Equal(t, 2, k1)
	require.InDelta(t, 0.5, alpha, 1e-6)

	_, _, alpha = computeSeek(0.05, 30, 16, RoundingFloor)
	require.Equal(t, float32(0), alpha)

	k0, _, alpha = computeSeek(0.05, 30, 16, RoundingCeiling)
	require.Equal(t, 2, k0)
	require.Equal(t, float32(0), alpha)

	_, _, alpha = computeSeek(0.05, 30, 16, RoundingNearest)
	require.Equal(t, float32(1), alpha)
}

func TestContextStateMachine(t *testing.T) {
	buf := compressClip(t, scenarioAClip(), 0.00001)

	var ctx Context
	require.ErrorIs(t, ctx.Seek(0, RoundingNone), ErrNotInitialized)

	require.NoError(t, ctx.Initialize(buf))
	require.ErrorIs(t, ctx.Initialize(buf), ErrAlreadyBound)

	_, _, _, err := ctx.DecompressTrack(0)
	require.ErrorIs(t, err, ErrNotSeeked)

	require.NoError(t, ctx.Seek(0, RoundingNone))
	rot, trans, scale, err := ctx.DecompressTrack(1)
	require.NoError(t, err)
	assert.Equal(t, qmath.QuatIdentity, rot)
	assert.InDelta(t, 1.0, trans.X, 1e-3)
	assert.Equal(t, qmath.VectorIdentityOne, scale)

	ctx.Reset()
	require.ErrorIs(t, ctx.Seek(0, RoundingNone), ErrNotInitialized)
}

func TestMetadataRoundTrip(t *testing.T) {
	raw := scenarioAClip()
	raw.Name = "scenario-a"
	settings := compress.DefaultSettings()
	tracks, err := compress.CompressTrackList(raw, settings, nil)
	require.NoError(t, err)
	defer tracks.Free()

	var ctx Context
	require.NoError(t, ctx.Initialize(tracks.Buf))
	require.Equal(t, []byte("scenario-a"), ctx.Metadata())
}

// buildDatabaseForClip compresses raw, moves every movable interior
// frame into the low tier (anchor frames stay inline), and returns the
// rewritten tracks plus a bound database context.
func buildDatabaseForClip(t *testing.T, raw *skeleton.RawClip) ([]byte, *database.Context, []byte) {
	t.Helper()
	original := compressClip(t, raw, 0.00001)

	errs, err := database.ClipContributingErrors(original)
	require.NoError(t, err)

	cfg := database.DefaultConfig()
	cfg.LowImportanceProportion = 1.0
	rewritten, db, err := database.Build([]database.ClipSource{{Buf: original, ContributingError: errs}}, cfg)
	require.NoError(t, err)

	var dbCtx database.Context
	require.NoError(t, dbCtx.Initialize(db, nil, nil))
	return rewritten[0], &dbCtx, original
}

func TestDatabaseStreamingRestoresExactSamples(t *testing.T) {
	raw := movingClip(64)
	rewritten, dbCtx, original := buildDatabaseForClip(t, raw)

	var reference Context
	require.NoError(t, reference.Initialize(original))

	var ctx Context
	require.NoError(t, ctx.InitializeWithDatabase(rewritten, dbCtx))

	require.Equal(t, database.RequestDispatched, dbCtx.StreamIn(database.TierLow, 0))
	require.True(t, dbCtx.IsStreamedIn(database.TierLow))

	// An interior-frame sample decodes bit-exactly to the
	// pre-database clip once everything is streamed in.
	at := float32(20) / 30
	want := seekAndCapture(t, &reference, at)
	got := seekAndCapture(t, &ctx, at)
	require.Equal(t, want.translations[0], got.translations[0])
}

func TestDatabaseTierMonotonicity(t *testing.T) {
	raw := movingClip(64)
	rewritten, dbCtx, original := buildDatabaseForClip(t, raw)

	var reference Context
	require.NoError(t, reference.Initialize(original))

	var ctx Context
	require.NoError(t, ctx.InitializeWithDatabase(rewritten, dbCtx))

	at := float32(24) / 30 // sample 24, a moved interior frame
	want := seekAndCapture(t, &reference, at).translations[0]

	// Before streaming, sampling clamps to the segment's nearest
	// resident frame: one of its two inline anchors.
	before := seekAndCapture(t, &ctx, at).translations[0]
	errBefore := qmath.EuclideanDistance(want, before)

	require.Equal(t, database.RequestDispatched, dbCtx.StreamIn(database.TierLow, 0))
	after := seekAndCapture(t, &ctx, at).translations[0]
	errAfter := qmath.EuclideanDistance(want, after)

	require.Greater(t, errBefore, errAfter, "streaming a tier in must reduce error")
	require.LessOrEqual(t, errAfter, float32(1e-3))
}

func TestDatabaseStreamingIsIdempotent(t *testing.T) {
	raw := movingClip(64)
	rewritten, dbCtx, _ := buildDatabaseForClip(t, raw)

	var ctx Context
	require.NoError(t, ctx.InitializeWithDatabase(rewritten, dbCtx))

	require.Equal(t, database.RequestDispatched, dbCtx.StreamIn(database.TierLow, 0))
	at := float32(20) / 30
	first := seekAndCapture(t, &ctx, at).translations[0]

	require.Equal(t, database.RequestDispatched, dbCtx.StreamOut(database.TierLow, 0))
	require.Equal(t, database.RequestDispatched, dbCtx.StreamIn(database.TierLow, 0))
	second := seekAndCapture(t, &ctx, at).translations[0]

	require.Equal(t, first, second)
}

func TestInitializeWithDatabaseRejectsForeignClip(t *testing.T) {
	raw := movingClip(64)
	_, dbCtx, _ := buildDatabaseForClip(t, raw)

	foreign := compressClip(t, scenarioAClip(), 0)
	var ctx Context
	require.ErrorIs(t, ctx.InitializeWithDatabase(foreign, dbCtx), ErrNotBound)
}
