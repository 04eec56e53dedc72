package qmath

// Transform is a single bone's rotation/translation/scale, either in its
// parent's local space or already accumulated into object space.
type Transform struct {
	Rotation    Quat
	Translation Vector3
	Scale       Vector3 // VectorIdentityOne when the clip carries no scale track
}

// TransformIdentity is the neutral transform: identity rotation, zero
// translation, unit scale.
var TransformIdentity = Transform{
	Rotation:    QuatIdentity,
	Translation: VectorIdentityZero,
	Scale:       VectorIdentityOne,
}

// TransformPoint maps a point from the transform's local space into the
// space it is relative to: scale, then rotate, then translate.
func (t Transform) TransformPoint(p Vector3) Vector3 {
	scaled := Vector3{X: p.X * t.Scale.X, Y: p.Y * t.Scale.Y, Z: p.Z * t.Scale.Z}
	rotated := t.Rotation.RotateVector(scaled)
	return rotated.Add(t.Translation)
}

// Mul composes child relative to parent: the returned transform maps a
// point expressed in child's local space all the way into parent's
// space. Matches the child-to-parent accumulation walked by
// skeleton.Skeleton.AncestorChain.
func (parent Transform) Mul(child Transform) Transform {
	scale := Vector3{
		X: parent.Scale.X * child.Scale.X,
		Y: parent.Scale.Y * child.Scale.Y,
		Z: parent.Scale.Z * child.Scale.Z,
	}
	rotation := parent.Rotation.Mul(child.Rotation)
	translation := parent.TransformPoint(child.Translation)
	return Transform{Rotation: rotation, Translation: translation, Scale: scale}
}
