package qmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsurePositiveW(t *testing.T) {
	q := Quat{0.1, 0.2, 0.3, -0.9}
	got := q.EnsurePositiveW()
	require.GreaterOrEqual(t, got.W, float32(0))
	require.InDelta(t, -0.1, got.X, 1e-6)
}

func TestReconstructW(t *testing.T) {
	axis := Vector3{0, 1, 0}
	q := FromAxisAngle(axis, 1.234).EnsurePositiveW()
	w := ReconstructW(q.X, q.Y, q.Z)
	require.InDelta(t, q.W, w, 1e-5)
}

func TestNLerpEndpoints(t *testing.T) {
	a := QuatIdentity
	b := FromAxisAngle(Vector3{0, 1, 0}, float32(math.Pi/2))

	require.InDelta(t, 0, AngleBetween(NLerp(a, b, 0), a), 1e-4)
	require.InDelta(t, 0, AngleBetween(NLerp(a, b, 1), b), 1e-4)
}

func TestNLerpShortPath(t *testing.T) {
	a := Quat{0, 0, 0, 1}
	b := Quat{0, 0, 0, -1} // same rotation as a, opposite hemisphere
	mid := NLerp(a, b, 0.5)
	require.InDelta(t, 0, AngleBetween(mid, a), 1e-4)
}
