// Package skeleton defines the raw, uncompressed animation data model:
// bone hierarchies and their per-bone rotation/translation/scale tracks
// sampled over time.
package skeleton

import (
	"math"

	"github.com/motionforge/acl/qmath"
)

// InvalidBoneIndex marks a bone with no parent (a skeleton root) or an
// output slot that has been stripped from the caller-visible pose.
const InvalidBoneIndex = -1

// Bone describes one joint of a skeleton.
type Bone struct {
	// Name identifies the bone for diagnostics; not part of the
	// compressed artefact.
	Name string

	// ParentIndex is the index of this bone's parent within the owning
	// Skeleton's Bones slice, or InvalidBoneIndex for a root bone.
	ParentIndex int32

	// OutputIndex is this bone's slot in the caller-visible pose. Bones
	// that have been stripped by the caller carry InvalidBoneIndex here;
	// strip decisions are an input to the core, never an output.
	OutputIndex int32
}

// Skeleton is an ordered list of bones. Parent indices always refer to
// an earlier position in Bones, so hierarchy order is also storage and
// iteration order.
type Skeleton struct {
	Bones []Bone
}

// NumBones returns the number of bones in the skeleton.
func (s *Skeleton) NumBones() int { return len(s.Bones) }

// IsRoot reports whether bone i has no parent.
func (s *Skeleton) IsRoot(i int) bool {
	return s.Bones[i].ParentIndex == InvalidBoneIndex
}

// AncestorChain returns the bone indices from i up to (and including)
// its root, in child-to-parent order. Used by the object-space bit-rate
// search and by errormetric.ObjectSpaceTransform.
func (s *Skeleton) AncestorChain(i int) []int {
	chain := []int{i}
	for s.Bones[i].ParentIndex != InvalidBoneIndex {
		i = int(s.Bones[i].ParentIndex)
		chain = append(chain, i)
	}
	return chain
}

// Channel identifies one of the three animated channels of a bone.
type Channel int

const (
	ChannelRotation Channel = iota
	ChannelTranslation
	ChannelScale
	NumChannels
)

func (c Channel) String() string {
	switch c {
	case ChannelRotation:
		return "rotation"
	case ChannelTranslation:
		return "translation"
	case ChannelScale:
		return "scale"
	default:
		return "unknown"
	}
}

// Track holds one bone's samples for one channel, on the clip's uniform
// sample grid. Rotation samples live in Rotations, the other two
// channels in Vectors; exactly one is populated, selected by the
// track's Channel.
type Track struct {
	Channel   Channel
	Rotations []qmath.Quat    // len == clip sample count, iff Channel == ChannelRotation
	Vectors   []qmath.Vector3 // len == clip sample count, otherwise

	// Default marks a track whose every sample equals the channel's
	// canonical identity value within tolerance.
	Default bool
	// Constant marks a track whose every sample equals its first sample
	// within tolerance. A default track is also constant.
	Constant bool
}

// NumSamples returns the number of samples in the track.
func (t *Track) NumSamples() int {
	if t.Channel == ChannelRotation {
		return len(t.Rotations)
	}
	return len(t.Vectors)
}

// BoneTracks groups the three channel tracks belonging to one bone.
type BoneTracks struct {
	Rotation    Track
	Translation Track
	Scale       Track
}

// HasScale reports whether this bone's scale track carries meaningful
// per-sample data (as opposed to being always the identity scale).
// clip.BoneStream.HasScale applies the same rule to the classified scale
// channel; the writer uses that one to decide whether a bone contributes
// 2 or 3 sub-tracks to the bitsets.
func (b *BoneTracks) HasScale() bool {
	return !b.Scale.Default
}

// RawClip is the uncompressed input to the compression pipeline: a
// skeleton, a sample rate, and one BoneTracks per bone.
type RawClip struct {
	Name       string
	Skeleton   Skeleton
	SampleRate float32 // Hz
	NumSamples int
	Bones      []BoneTracks // len == len(Skeleton.Bones)
}

// Duration returns the clip's playback length in seconds. A clip with a
// single sample has no defined duration; callers treat it as a static
// pose rather than a zero-length clip, so Duration returns +Inf in that
// case.
func (c *RawClip) Duration() float32 {
	if c.NumSamples <= 1 {
		return float32(math.Inf(1))
	}
	return float32(c.NumSamples-1) / c.SampleRate
}
