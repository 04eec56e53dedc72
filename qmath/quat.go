package qmath

import "math"

// Quat is a unit quaternion storing rotation as (x, y, z, w).
type Quat struct {
	X, Y, Z, W float32
}

// QuatIdentity is the canonical default value for rotation tracks.
var QuatIdentity = Quat{0, 0, 0, 1}

// Dot returns the 4-component dot product of a and b.
func (a Quat) Dot(b Quat) float32 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z + a.W*b.W
}

// Negate returns -q, representing the same rotation as q.
func (q Quat) Negate() Quat {
	return Quat{-q.X, -q.Y, -q.Z, -q.W}
}

// Normalize returns q scaled to unit length. If q is (near) zero-length,
// QuatIdentity is returned.
func (q Quat) Normalize() Quat {
	lenSq := q.Dot(q)
	if lenSq <= 1e-20 {
		return QuatIdentity
	}
	invLen := float32(1.0 / math.Sqrt(float64(lenSq)))
	return Quat{q.X * invLen, q.Y * invLen, q.Z * invLen, q.W * invLen}
}

// EnsurePositiveW returns -q when q.W < 0 and q otherwise. Both represent
// the same rotation; this is the rekeying step required before dropping W
// for the quat_drop_w_* formats.
func (q Quat) EnsurePositiveW() Quat {
	if q.W < 0 {
		return q.Negate()
	}
	return q
}

// ReconstructW recovers the W component of a unit quaternion from its XYZ
// parts, assuming W was stored non-negative (the quat_drop_w_* contract).
func ReconstructW(x, y, z float32) float32 {
	lenSq := x*x + y*y + z*z
	rem := 1 - lenSq
	if rem < 0 {
		rem = 0
	}
	return float32(math.Sqrt(float64(rem)))
}

// NLerp performs a normalized linear interpolation between a and b by t
// in [0,1]. This is the interpolation used by the runtime decoder:
// samples are dense enough that nlerp is an adequate substitute for slerp.
func NLerp(a, b Quat, t float32) Quat {
	// Take the short path: if the dot product is negative, negating b
	// keeps the interpolation from taking the long way around the sphere.
	if a.Dot(b) < 0 {
		b = b.Negate()
	}
	raw := Quat{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
		W: a.W + (b.W-a.W)*t,
	}
	return raw.Normalize()
}

// FromAxisAngle builds a unit quaternion representing a rotation of angle
// radians around axis (which must be unit length).
func FromAxisAngle(axis Vector3, angle float32) Quat {
	half := angle * 0.5
	s := float32(math.Sin(float64(half)))
	c := float32(math.Cos(float64(half)))
	return Quat{axis.X * s, axis.Y * s, axis.Z * s, c}
}

// AngleBetween returns the angle in radians between two unit quaternions,
// taking the shortest path. Used by Quat.NearEqual.
func AngleBetween(a, b Quat) float32 {
	if a.Dot(b) < 0 {
		b = Quat{-b.X, -b.Y, -b.Z, -b.W}
	}
	// 4*atan2(|a-b|, |a+b|) equals 2*acos(a·b) for unit quaternions but
	// stays precise when a and b are nearly equal.
	dx, dy := float64(a.X)-float64(b.X), float64(a.Y)-float64(b.Y)
	dz, dw := float64(a.Z)-float64(b.Z), float64(a.W)-float64(b.W)
	sx, sy := float64(a.X)+float64(b.X), float64(a.Y)+float64(b.Y)
	sz, sw := float64(a.Z)+float64(b.Z), float64(a.W)+float64(b.W)
	diff := math.Sqrt(dx*dx + dy*dy + dz*dz + dw*dw)
	sum := math.Sqrt(sx*sx + sy*sy + sz*sz + sw*sw)
	return float32(4 * math.Atan2(diff, sum))
}

// NearEqual reports whether a and b represent rotations within tolerance
// radians of each other.
func (a Quat) NearEqual(b Quat, tolerance float32) bool {
	return AngleBetween(a, b) <= tolerance
}

// Mul composes two rotations: applying the result to a vector is
// equivalent to applying b first, then a.
func (a Quat) Mul(b Quat) Quat {
	return Quat{
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
	}
}

// RotateVector applies q's rotation to v.
func (q Quat) RotateVector(v Vector3) Vector3 {
	qv := Vector3{X: q.X, Y: q.Y, Z: q.Z}
	t := qv.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(qv.Cross(t))
}
