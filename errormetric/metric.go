// Package errormetric implements the pluggable error-metric interface the
// compression settings plug into the bit-rate search: given a
// raw and a lossy pose, tell the search how far apart they are, in both
// local (parent-relative) and object (world) space.
package errormetric

import (
	"github.com/motionforge/acl/qmath"
	"github.com/motionforge/acl/skeleton"
)

// Pose is a full set of local-space bone transforms on the clip's
// uniform sample grid, one per bone in skeleton storage order.
type Pose []qmath.Transform

// Metric is the error-metric collaborator plugged into compression
// settings. Implementations must be deterministic and depend only
// on their arguments, since the search memoises against the sample cache
// assuming repeatable results for a repeated query.
type Metric interface {
	// LocalBoneError measures how far lossyPose's bone boneIndex strays
	// from rawPose's, in the bone's own parent-relative space.
	// additiveBasePose is the base pose for additive clips and is nil
	// for absolute clips.
	LocalBoneError(skel *skeleton.Skeleton, rawPose, additiveBasePose, lossyPose Pose, boneIndex int) float32

	// ObjectBoneError measures the same quantity after accumulating the
	// bone's full ancestor chain into object (world) space.
	ObjectBoneError(skel *skeleton.Skeleton, rawPose, additiveBasePose, lossyPose Pose, boneIndex int) float32

	// Hash participates in settings hashing so two settings objects that
	// differ only by error metric never compare equal.
	Hash() uint32
}

// ObjectSpaceTransform accumulates pose's local transforms for bone i
// along its ancestor chain into a single object-space transform, root
// first. Shared by the default metric and by the compressor's phase B
// hill-climb, which needs object-space poses for its error sweep.
func ObjectSpaceTransform(skel *skeleton.Skeleton, pose Pose, boneIndex int) qmath.Transform {
	chain := skel.AncestorChain(boneIndex) // child-to-parent
	result := qmath.TransformIdentity
	for i := len(chain) - 1; i >= 0; i-- {
		result = result.Mul(pose[chain[i]])
	}
	return result
}
