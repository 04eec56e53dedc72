package errormetric

import (
	"math"
	"testing"

	"github.com/motionforge/acl/qmath"
	"github.com/motionforge/acl/skeleton"
	"github.com/stretchr/testify/require"
)

func twoBoneChain() *skeleton.Skeleton {
	return &skeleton.Skeleton{
		Bones: []skeleton.Bone{
			{Name: "root", ParentIndex: skeleton.InvalidBoneIndex, OutputIndex: 0},
			{Name: "child", ParentIndex: 0, OutputIndex: 1},
		},
	}
}

func TestShellMetricZeroForIdenticalPoses(t *testing.T) {
	skel := twoBoneChain()
	pose := Pose{qmath.TransformIdentity, qmath.TransformIdentity}
	m := NewShellMetric()

	require.Equal(t, float32(0), m.LocalBoneError(skel, pose, nil, pose, 1))
	require.Equal(t, float32(0), m.ObjectBoneError(skel, pose, nil, pose, 1))
}

func TestShellMetricDetectsRootRotationAtChild(t *testing.T) {
	skel := twoBoneChain()
	raw := Pose{
		{Rotation: qmath.QuatIdentity, Translation: qmath.Vector3{X: 1}, Scale: qmath.VectorIdentityOne},
		{Rotation: qmath.QuatIdentity, Translation: qmath.Vector3{X: 1}, Scale: qmath.VectorIdentityOne},
	}
	lossy := append(Pose(nil), raw...)
	lossy[0] = qmath.Transform{
		Rotation:    qmath.FromAxisAngle(qmath.Vector3{Z: 1}, float32(math.Pi/2)),
		Translation: qmath.Vector3{X: 1},
		Scale:       qmath.VectorIdentityOne,
	}

	m := NewShellMetric()
	local := m.LocalBoneError(skel, raw, nil, lossy, 1)
	object := m.ObjectBoneError(skel, raw, nil, lossy, 1)

	require.Equal(t, float32(0), local, "local error ignores the ancestor chain")
	require.Greater(t, object, float32(0), "object error must see the root's rotation")
}

func TestHashDiffersByShellDistance(t *testing.T) {
	a := ShellMetric{ShellDistance: 0.01}
	b := ShellMetric{ShellDistance: 0.02}
	require.NotEqual(t, a.Hash(), b.Hash())
}
