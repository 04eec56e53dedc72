package qmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransformPointIdentity(t *testing.T) {
	p := Vector3{1, 2, 3}
	require.Equal(t, p, TransformIdentity.TransformPoint(p))
}

func TestTransformMulTranslationsAdd(t *testing.T) {
	parent := Transform{Rotation: QuatIdentity, Translation: Vector3{1, 0, 0}, Scale: VectorIdentityOne}
	child := Transform{Rotation: QuatIdentity, Translation: Vector3{0, 1, 0}, Scale: VectorIdentityOne}
	combined := parent.Mul(child)
	require.InDelta(t, float64(1), float64(combined.Translation.X), 1e-6)
	require.InDelta(t, float64(1), float64(combined.Translation.Y), 1e-6)
}

func TestRotateVectorQuarterTurn(t *testing.T) {
	q := FromAxisAngle(Vector3{0, 0, 1}, float32(math.Pi/2))
	rotated := q.RotateVector(Vector3{1, 0, 0})
	require.InDelta(t, float64(0), float64(rotated.X), 1e-5)
	require.InDelta(t, float64(1), float64(rotated.Y), 1e-5)
}
