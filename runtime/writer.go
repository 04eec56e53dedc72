package runtime

import "github.com/motionforge/acl/qmath"

// Writer receives a decompressed pose one bone at a time. Methods
// are called in bone storage order by DecompressPose and in arbitrary
// order by DecompressTrack.
type Writer interface {
	WriteRotation(boneIndex int, q qmath.Quat)
	WriteTranslation(boneIndex int, v qmath.Vector3)
	WriteScale(boneIndex int, v qmath.Vector3)
}

// RotationSkipper, TranslationSkipper, and ScaleSkipper are optional
// interfaces a Writer may also implement to tell DecompressPose to skip
// decoding (not just writing) a sub-track entirely, the Go analog of
// the reference decoder's skip_* predicates.
type RotationSkipper interface {
	SkipRotation(boneIndex int) bool
}

type TranslationSkipper interface {
	SkipTranslation(boneIndex int) bool
}

type ScaleSkipper interface {
	SkipScale(boneIndex int) bool
}

func skipRotation(w Writer, bone int) bool {
	s, ok := w.(RotationSkipper)
	return ok && s.SkipRotation(bone)
}

func skipTranslation(w Writer, bone int) bool {
	s, ok := w.(TranslationSkipper)
	return ok && s.SkipTranslation(bone)
}

func skipScale(w Writer, bone int) bool {
	s, ok := w.(ScaleSkipper)
	return ok && s.SkipScale(bone)
}
