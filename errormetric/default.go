package errormetric

import (
	"math"

	"github.com/motionforge/acl/qmath"
	"github.com/motionforge/acl/skeleton"
)

// shellPoints are sampled around a bone's origin to turn a transform
// difference into a single scalar distance: a rotation error scales with
// distance from the joint, so a fixed small offset along each axis
// (plus the origin itself, which catches pure translation error) is a
// cheap stand-in for measuring actual mesh vertices bound to the bone.
var shellPoints = [...]qmath.Vector3{
	{X: 0, Y: 0, Z: 0},
	{X: 1, Y: 0, Z: 0},
	{X: 0, Y: 1, Z: 0},
	{X: 0, Y: 0, Z: 1},
}

// DefaultShellDistance is the default radius, in the clip's native
// units, of the virtual shell used by ShellMetric.
const DefaultShellDistance float32 = 0.01

// ShellMetric is the metric used when compression settings do not
// supply one of their own: a rigid virtual shell of points around each
// bone's origin, compared in the space requested by the caller.
type ShellMetric struct {
	// ShellDistance scales shellPoints; larger values make rotation
	// error dominate over translation error and vice versa.
	ShellDistance float32
}

// NewShellMetric returns a ShellMetric with DefaultShellDistance.
func NewShellMetric() ShellMetric {
	return ShellMetric{ShellDistance: DefaultShellDistance}
}

func (m ShellMetric) shellError(raw, lossy qmath.Transform) float32 {
	var worst float32
	for _, p := range shellPoints {
		offset := p.Scale(m.ShellDistance)
		rawPoint := raw.TransformPoint(offset)
		lossyPoint := lossy.TransformPoint(offset)
		d := qmath.EuclideanDistance(rawPoint, lossyPoint)
		if d > worst {
			worst = d
		}
	}
	return worst
}

// LocalBoneError implements Metric by comparing the two poses' local
// transforms for boneIndex directly, ignoring the ancestor chain.
// additiveBasePose, when non-nil, is composed under both poses first so
// additive clips are measured against their resolved transform.
func (m ShellMetric) LocalBoneError(skel *skeleton.Skeleton, rawPose, additiveBasePose, lossyPose Pose, boneIndex int) float32 {
	raw := resolveAdditive(additiveBasePose, rawPose, boneIndex)
	lossy := resolveAdditive(additiveBasePose, lossyPose, boneIndex)
	return m.shellError(raw, lossy)
}

// ObjectBoneError implements Metric by accumulating both poses' ancestor
// chains into object space before comparing.
func (m ShellMetric) ObjectBoneError(skel *skeleton.Skeleton, rawPose, additiveBasePose, lossyPose Pose, boneIndex int) float32 {
	raw := ObjectSpaceTransform(skel, applyAdditive(additiveBasePose, rawPose), boneIndex)
	lossy := ObjectSpaceTransform(skel, applyAdditive(additiveBasePose, lossyPose), boneIndex)
	return m.shellError(raw, lossy)
}

// Hash folds ShellDistance into a settings hash contribution.
func (m ShellMetric) Hash() uint32 {
	return math.Float32bits(m.ShellDistance)*0x9e3779b1 + 1
}

func resolveAdditive(base, pose Pose, boneIndex int) qmath.Transform {
	if base == nil {
		return pose[boneIndex]
	}
	return base[boneIndex].Mul(pose[boneIndex])
}

func applyAdditive(base, pose Pose) Pose {
	if base == nil {
		return pose
	}
	out := make(Pose, len(pose))
	for i := range pose {
		out[i] = base[i].Mul(pose[i])
	}
	return out
}

