package runtime

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/motionforge/acl/database"
	"github.com/motionforge/acl/internal/container"
	"github.com/motionforge/acl/qmath"
	"github.com/motionforge/acl/skeleton"
)

// state tracks the decompression_context lifecycle:
//
//	Uninitialised --initialize--> Bound --seek--> Seeked --decompress--> Bound
type state int

const (
	stateUninitialized state = iota
	stateBound
	stateSeeked
)

// Error taxonomy for the runtime API. Initialize, Seek and
// DecompressTrack return these; DecompressPose never returns an error,
// it silently no-ops on bad state.
var (
	ErrNotInitialized = errors.New("acl: decompression context not initialized")
	ErrNotSeeked      = errors.New("acl: decompress called before seek")
	ErrAlreadyBound   = errors.New("acl: decompression context already bound")
	ErrNotBound       = errors.New("acl: clip is not contained in the bound database")
)

// Context is a decompression_context: it borrows a compressed_tracks
// buffer by reference and must not outlive it.
type Context struct {
	state state
	buf   []byte

	header     tracksHeader
	classified classifiedTracks

	// animatedIndex/constantIndex map a sub-track's position in
	// classified.all to its position within classified.animated /
	// classified.constant, or -1 if it belongs to neither.
	animatedIndex []int
	constantIndex []int
	// posOf looks up a (bone, channel) pair's position in
	// classified.all, for DecompressTrack's single-bone queries.
	posOf map[subTrack]int

	k0, k1 int
	alpha  float32
	segA   segmentDecode
	segB   segmentDecode

	// db, when non-nil, supplies bulk-region bytes for segments a
	// database moved out of this clip; clipIndex is the clip's slot in
	// that database.
	db        *database.Context
	clipIndex int
}

// Initialize validates buf as a compressed_tracks artefact and
// binds this context to it.
// It returns ErrAlreadyBound if called on a context that is already
// bound; callers must Reset first.
func (c *Context) Initialize(buf []byte) error {
	if c.state != stateUninitialized {
		return ErrAlreadyBound
	}
	if err := container.Validate(buf, container.TagCompressedTracks, true); err != nil {
		return fmt.Errorf("acl: initialize: %w", err)
	}

	h := parseTracksHeader(buf)
	cl := classify(h, buf)

	animIdx := make([]int, len(cl.all))
	constIdx := make([]int, len(cl.all))
	posOf := make(map[subTrack]int, len(cl.all))
	ai, ci := 0, 0
	for i, st := range cl.all {
		posOf[st] = i
		animIdx[i], constIdx[i] = -1, -1
		if cl.isDefault[i] {
			continue
		}
		if cl.isConstant[i] {
			constIdx[i] = ci
			ci++
		} else {
			animIdx[i] = ai
			ai++
		}
	}

	c.buf = buf
	c.header = h
	c.classified = cl
	c.animatedIndex = animIdx
	c.constantIndex = constIdx
	c.posOf = posOf
	c.state = stateBound
	return nil
}

// InitializeWithDatabase binds the context to buf and to a database
// context holding the bulk data buf's moved segments were rewritten
// into. The clip is located in the database by its rewritten buffer
// hash;
// ErrNotBound is returned when the database does not contain it.
func (c *Context) InitializeWithDatabase(buf []byte, db *database.Context) error {
	if err := c.Initialize(buf); err != nil {
		return err
	}
	hash := container.GetRawBufferHeader(buf).Hash
	idx, ok := db.FindClip(hash)
	if !ok {
		c.Reset()
		return fmt.Errorf("acl: initialize: %w", ErrNotBound)
	}
	c.db = db
	c.clipIndex = idx
	return nil
}

// Metadata returns the opaque metadata blob the clip was compressed
// with, or nil when none was attached.
func (c *Context) Metadata() []byte {
	if c.state == stateUninitialized || !c.header.offsetMetadata.IsValid() {
		return nil
	}
	at := int(c.header.offsetMetadata)
	n := int(binary.LittleEndian.Uint32(c.buf[at:]))
	return c.buf[at+4 : at+4+n]
}

// Reset returns the context to Uninitialised, releasing its reference
// to the bound buffer.
func (c *Context) Reset() {
	*c = Context{}
}

// Seek computes the (k0, k1, alpha) sampling triple for time t and
// locates the segment(s) holding those two keyframes. It is
// valid to call Seek repeatedly on a Bound or Seeked context.
func (c *Context) Seek(t float32, rounding Rounding) error {
	if c.state == stateUninitialized {
		return ErrNotInitialized
	}

	k0, k1, alpha := computeSeek(t, c.header.sampleRate, c.header.numSamples, rounding)
	c.k0, c.k1, c.alpha = k0, k1, alpha

	segA := c.header.findSegment(c.buf, k0)
	segB := segA
	if k1 != k0 {
		segB = c.header.findSegment(c.buf, k1)
	}

	numAnimated := len(c.classified.animated)
	c.segA = c.buildDecode(segA, numAnimated)
	if segA == segB {
		c.segB = c.segA
	} else {
		c.segB = c.buildDecode(segB, numAnimated)
	}

	c.state = stateSeeked
	return nil
}

// buildDecode precomputes a segment's decode cursors and wires up its
// frame stores: the inline stream always, plus each streamed-in tier
// record holding frames the database moved out of this segment. Frames
// in a tier that is not resident fall back per frame inside
// segmentDecode, clamped to the segment's anchor frames.
func (c *Context) buildDecode(segIdx, numAnimated int) segmentDecode {
	hdr := c.header.segment(c.buf, segIdx)
	sd := buildSegmentDecode(c.buf, hdr, numAnimated)
	if c.db == nil {
		return sd
	}
	for _, tier := range []database.Tier{database.TierMedium, database.TierLow} {
		if data, off, mask, ok := c.db.SegmentData(c.clipIndex, segIdx, tier); ok {
			sd.addStore(data, off, mask)
		}
	}
	return sd
}

// computeSeek is the seek math: k0 = floor(t*r) clamped into range,
// k1 = min(k0+1, N-1), alpha the fractional remainder, then rounding
// snaps the triple. A single-sample clip is a static pose: it always
// resolves to (0, 0, 0).
func computeSeek(t, sampleRate float32, numSamples int, rounding Rounding) (k0, k1 int, alpha float32) {
	if numSamples <= 1 {
		return 0, 0, 0
	}

	raw := t * sampleRate
	k0f := math.Floor(float64(raw))
	k0 = int(k0f)
	alpha = raw - float32(k0)

	if k0 < 0 {
		k0, alpha = 0, 0
	}
	if k0 > numSamples-1 {
		k0, alpha = numSamples-1, 0
	}
	k1 = k0 + 1
	if k1 > numSamples-1 {
		k1 = numSamples - 1
	}

	switch rounding {
	case RoundingFloor:
		alpha = 0
	case RoundingCeiling:
		alpha = 0
		k0 = k1
	case RoundingNearest:
		if alpha >= 0.5 {
			alpha = 1
		} else {
			alpha = 0
		}
	}
	return k0, k1, alpha
}

// DecompressPose writes every bone's rotation/translation/[scale] for
// the time Seek last resolved, in bone storage order. It silently no-ops if the context has not been
// seeked. Afterwards the context is Bound again, so the next decompression
// needs a new Seek.
func (c *Context) DecompressPose(w Writer) {
	if c.state != stateSeeked {
		return
	}
	for bone := 0; bone < c.header.numBones; bone++ {
		c.writeBone(w, bone)
	}
	c.state = stateBound
}

func (c *Context) writeBone(w Writer, bone int) {
	rotPos, hasRot := c.posOf[subTrack{bone, skeleton.ChannelRotation}]
	if hasRot && !skipRotation(w, bone) {
		w.WriteRotation(bone, c.rotationAt(rotPos))
	}
	transPos, hasTrans := c.posOf[subTrack{bone, skeleton.ChannelTranslation}]
	if hasTrans && !skipTranslation(w, bone) {
		w.WriteTranslation(bone, c.vectorAt(transPos, qmath.VectorIdentityZero))
	}
	if skipScale(w, bone) {
		return
	}
	if scalePos, hasScale := c.posOf[subTrack{bone, skeleton.ChannelScale}]; hasScale {
		w.WriteScale(bone, c.vectorAt(scalePos, qmath.VectorIdentityOne))
	} else {
		// This bone never carried a scale sub-track at all; unit scale is the only
		// value it could ever have had.
		w.WriteScale(bone, qmath.VectorIdentityOne)
	}
}

// vectorAt resolves the decompressed value of the sub-track at position
// pos in classified.all, given the identity value to use if the
// sub-track is flagged default.
func (c *Context) vectorAt(pos int, identity qmath.Vector3) qmath.Vector3 {
	if c.classified.isDefault[pos] {
		return identity
	}
	if c.classified.isConstant[pos] {
		return readConstantValue(c.buf, int(c.header.offsetConstantData), c.constantIndex[pos])
	}
	idx := c.animatedIndex[pos]
	v0 := c.segA.value(c.buf, c.header, idx, c.k0-c.segA.seg.startSample)
	v1 := c.segB.value(c.buf, c.header, idx, c.k1-c.segB.seg.startSample)
	return qmath.Lerp(v0, v1, c.alpha)
}

func (c *Context) rotationAt(pos int) qmath.Quat {
	if c.classified.isDefault[pos] {
		return qmath.QuatIdentity
	}
	if c.classified.isConstant[pos] {
		v := readConstantValue(c.buf, int(c.header.offsetConstantData), c.constantIndex[pos])
		return qmath.Quat{X: v.X, Y: v.Y, Z: v.Z, W: qmath.ReconstructW(v.X, v.Y, v.Z)}
	}
	idx := c.animatedIndex[pos]
	v0 := c.segA.value(c.buf, c.header, idx, c.k0-c.segA.seg.startSample)
	v1 := c.segB.value(c.buf, c.header, idx, c.k1-c.segB.seg.startSample)
	q0 := qmath.Quat{X: v0.X, Y: v0.Y, Z: v0.Z, W: qmath.ReconstructW(v0.X, v0.Y, v0.Z)}
	q1 := qmath.Quat{X: v1.X, Y: v1.Y, Z: v1.Z, W: qmath.ReconstructW(v1.X, v1.Y, v1.Z)}
	return qmath.NLerp(q0, q1, c.alpha)
}

// DecompressTrack decodes a single bone's rotation, translation, and
// scale without writing a full pose, the Go analog of decompress_track
// restricted to storage-order lookup. It returns the identity
// transform and ErrNotSeeked if called before Seek.
func (c *Context) DecompressTrack(boneIndex int) (qmath.Quat, qmath.Vector3, qmath.Vector3, error) {
	if c.state != stateSeeked {
		return qmath.QuatIdentity, qmath.VectorIdentityZero, qmath.VectorIdentityOne, ErrNotSeeked
	}
	rot := qmath.QuatIdentity
	if pos, ok := c.posOf[subTrack{boneIndex, skeleton.ChannelRotation}]; ok {
		rot = c.rotationAt(pos)
	}
	trans := qmath.VectorIdentityZero
	if pos, ok := c.posOf[subTrack{boneIndex, skeleton.ChannelTranslation}]; ok {
		trans = c.vectorAt(pos, qmath.VectorIdentityZero)
	}
	scale := qmath.VectorIdentityOne
	if pos, ok := c.posOf[subTrack{boneIndex, skeleton.ChannelScale}]; ok {
		scale = c.vectorAt(pos, qmath.VectorIdentityOne)
	}
	return rot, trans, scale, nil
}
