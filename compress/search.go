package compress

import (
	"github.com/motionforge/acl/clip"
	"github.com/motionforge/acl/errormetric"
	"github.com/motionforge/acl/qmath"
	"github.com/motionforge/acl/skeleton"
)

// BoneBitRates is the bit-rate triple the search chooses for one bone
// within one segment.
type BoneBitRates struct {
	Rotation    BitRate
	Translation BitRate
	Scale       BitRate
}

// localBitRatePermutations enumerates bit-rate triples in ascending
// order of total bit count, the k_local_bit_rate_permutations table of
// the local-priming phase. Built once; every bone/segment scans the
// same sequence.
var localBitRatePermutations = buildLocalPermutations()

func buildLocalPermutations() []BoneBitRates {
	var perms []BoneBitRates
	for r := 0; r < NumBitRates(); r++ {
		for t := 0; t < NumBitRates(); t++ {
			for s := 0; s < NumBitRates(); s++ {
				perms = append(perms, BoneBitRates{BitRate(r), BitRate(t), BitRate(s)})
			}
		}
	}
	// Ascending by summed bit count; Go's sort is avoided here since the
	// table is small and fixed at package init, so a simple insertion
	// sort keeps this file dependency-free.
	for i := 1; i < len(perms); i++ {
		for j := i; j > 0 && totalBits(perms[j]) < totalBits(perms[j-1]); j-- {
			perms[j], perms[j-1] = perms[j-1], perms[j]
		}
	}
	return perms
}

func totalBits(p BoneBitRates) int {
	return NumBits(p.Rotation) + NumBits(p.Translation) + NumBits(p.Scale)
}

// segmentSampler evaluates quantised-then-dequantised samples for one
// segment, backed by a SampleCache so repeated (bone, channel, bit
// rate) queries are memoised.
type segmentSampler struct {
	ctx   *clip.Context
	seg   *clip.Segment
	cache *SampleCache
}

func newSegmentSampler(ctx *clip.Context, seg *clip.Segment) *segmentSampler {
	return &segmentSampler{ctx: ctx, seg: seg, cache: NewSampleCache()}
}

// vectorAt returns the lossy value of bone's channel at absolute sample
// index i under bitRate, applying the decoder's un-range-reduction
// rules.
func (s *segmentSampler) vectorAt(bone int, channelKind skeleton.Channel, ch *clip.Channel, segRange clip.Range, i int, bitRate BitRate) qmath.Vector3 {
	if ch.Default {
		return identityFor(channelKind)
	}
	if ch.Constant {
		return s.cache.GetConstant(bone, channelKind, func() qmath.Vector3 {
			return ch.ClipRange.Expand(segRange.Min)
		})
	}

	values := s.cache.GetVariable(bone, channelKind, bitRate, func() []qmath.Vector3 {
		out := make([]qmath.Vector3, s.seg.NumSamples)
		for k := 0; k < s.seg.NumSamples; k++ {
			raw := rawVector(ch, s.seg.StartSample+k)
			out[k] = quantizeDequantizeVector(raw, ch.ClipRange, segRange, bitRate)
		}
		return out
	})
	return values[i-s.seg.StartSample]
}

func rawVector(ch *clip.Channel, sampleIndex int) qmath.Vector3 {
	if ch.Rotations != nil {
		q := ch.Rotations[sampleIndex]
		return qmath.Vector3{X: q.X, Y: q.Y, Z: q.Z}
	}
	return ch.Vectors[sampleIndex]
}

func identityFor(channelKind skeleton.Channel) qmath.Vector3 {
	if channelKind == skeleton.ChannelScale {
		return qmath.VectorIdentityOne
	}
	return qmath.VectorIdentityZero
}

// quantizeDequantizeVector applies the full clip/segment range round
// trip a bit rate of bitRate would produce at runtime:
//   - raw bit rate skips both ranges entirely.
//   - every other rate normalises by the clip range, then the segment
//     range, quantises to NumBits(bitRate), and expands back out.
func quantizeDequantizeVector(raw qmath.Vector3, clipRange, segRange clip.Range, bitRate BitRate) qmath.Vector3 {
	if bitRate.IsRaw() {
		return raw
	}
	normClip := clipRange.Normalize(raw)
	normSeg := segRange.Normalize(normClip)
	numBits := NumBits(bitRate)
	quantized := qmath.Vector3{
		X: Dequantize(Quantize8(normSeg.X, numBits), numBits),
		Y: Dequantize(Quantize8(normSeg.Y, numBits), numBits),
		Z: Dequantize(Quantize8(normSeg.Z, numBits), numBits),
	}
	expandedSeg := segRange.Expand(quantized)
	return clipRange.Expand(expandedSeg)
}

// bonePoseAt builds the lossy local-space Pose for every bone at
// absolute sample index i, given one bit-rate triple per bone.
func bonePoseAt(sampler *segmentSampler, ctx *clip.Context, seg *clip.Segment, rates []BoneBitRates, i int) errormetric.Pose {
	pose := make(errormetric.Pose, len(ctx.Bones))
	for b := range ctx.Bones {
		bone := &ctx.Bones[b]
		ranges := seg.Ranges[b]

		rotVec := sampler.vectorAt(b, skeleton.ChannelRotation, &bone.Rotation, ranges.Rotation, i, rates[b].Rotation)
		translation := sampler.vectorAt(b, skeleton.ChannelTranslation, &bone.Translation, ranges.Translation, i, rates[b].Translation)
		scale := sampler.vectorAt(b, skeleton.ChannelScale, &bone.Scale, ranges.Scale, i, rates[b].Scale)

		var rotation qmath.Quat
		if bone.Rotation.Default {
			rotation = qmath.QuatIdentity
		} else {
			rotation = qmath.Quat{X: rotVec.X, Y: rotVec.Y, Z: rotVec.Z, W: qmath.ReconstructW(rotVec.X, rotVec.Y, rotVec.Z)}
		}

		pose[b] = qmath.Transform{Rotation: rotation, Translation: translation, Scale: scale}
	}
	return pose
}

func rawPoseAt(ctx *clip.Context, i int) errormetric.Pose {
	pose := make(errormetric.Pose, len(ctx.Bones))
	for b := range ctx.Bones {
		bone := &ctx.Bones[b]
		var rotation qmath.Quat
		if bone.Rotation.Default {
			rotation = qmath.QuatIdentity
		} else {
			rotation = bone.Rotation.Rotations[i]
		}
		var translation qmath.Vector3
		if bone.Translation.Default {
			translation = qmath.VectorIdentityZero
		} else {
			translation = bone.Translation.Vectors[i]
		}
		var scale qmath.Vector3
		if bone.Scale.Default {
			scale = qmath.VectorIdentityOne
		} else {
			scale = bone.Scale.Vectors[i]
		}
		pose[b] = qmath.Transform{Rotation: rotation, Translation: translation, Scale: scale}
	}
	return pose
}

// SearchSegment chooses a bit-rate triple per bone for seg, minimising
// total bits subject to settings.ErrorThreshold.
func SearchSegment(ctx *clip.Context, seg *clip.Segment, settings Settings) []BoneBitRates {
	sampler := newSegmentSampler(ctx, seg)
	numBones := len(ctx.Bones)
	rates := make([]BoneBitRates, numBones)

	// Phase A: local-space priming, each bone independently.
	for b := 0; b < numBones; b++ {
		rates[b] = primeLocalBitRate(ctx, seg, settings, sampler, b)
	}

	// Phase B: object-space hill-climb from root to leaves.
	budget := settings.maxPermutationBudget()
	for b := 0; b < numBones; b++ {
		if ctx.Bones[b].Rotation.Default && ctx.Bones[b].Translation.Default && ctx.Bones[b].Scale.Default {
			continue
		}
		climbObjectSpace(ctx, seg, settings, sampler, rates, b, budget)
	}

	return rates
}

func primeLocalBitRate(ctx *clip.Context, seg *clip.Segment, settings Settings, sampler *segmentSampler, bone int) BoneBitRates {
	bs := &ctx.Bones[bone]
	if bs.Rotation.Default && bs.Translation.Default && bs.Scale.Default {
		return BoneBitRates{}
	}

	for _, perm := range localBitRatePermutations {
		candidate := perm
		if bs.Rotation.Default {
			candidate.Rotation = 0
		} else if bs.Rotation.Constant {
			candidate.Rotation = 0
		}
		if bs.Translation.Default || bs.Translation.Constant {
			candidate.Translation = 0
		}
		if bs.Scale.Default || bs.Scale.Constant {
			candidate.Scale = 0
		}

		worst := localErrorForBone(ctx, seg, settings, sampler, bone, candidate)
		if worst <= settings.ErrorThreshold {
			return candidate
		}
	}
	return BoneBitRates{Rotation: MaxBitRate(), Translation: MaxBitRate(), Scale: MaxBitRate()}
}

func localErrorForBone(ctx *clip.Context, seg *clip.Segment, settings Settings, sampler *segmentSampler, bone int, rates BoneBitRates) float32 {
	allRates := make([]BoneBitRates, len(ctx.Bones))
	allRates[bone] = rates
	var worst float32
	for i := seg.StartSample; i < seg.EndSample(); i++ {
		raw := rawPoseAt(ctx, i)
		lossy := bonePoseAt(sampler, ctx, seg, allRates, i)
		err := settings.Metric.LocalBoneError(ctx.Skeleton, raw, nil, lossy, bone)
		if err > worst {
			worst = err
		}
		if worst > settings.ErrorThreshold {
			break // until_error_too_high scan policy
		}
	}
	return worst
}

func objectErrorForBone(ctx *clip.Context, seg *clip.Segment, settings Settings, sampler *segmentSampler, rates []BoneBitRates, bone int) float32 {
	var worst float32
	for i := seg.StartSample; i < seg.EndSample(); i++ {
		raw := rawPoseAt(ctx, i)
		lossy := bonePoseAt(sampler, ctx, seg, rates, i)
		err := settings.Metric.ObjectBoneError(ctx.Skeleton, raw, nil, lossy, bone)
		if err > worst {
			worst = err
		}
		if worst > settings.ErrorThreshold {
			break
		}
	}
	return worst
}

// climbObjectSpace runs the object-space hill-climb for one bone:
// permutation search, greedy fallback, then escalation.
func climbObjectSpace(ctx *clip.Context, seg *clip.Segment, settings Settings, sampler *segmentSampler, rates []BoneBitRates, bone int, budget int) {
	bestErr := objectErrorForBone(ctx, seg, settings, sampler, rates, bone)
	if bestErr <= settings.ErrorThreshold {
		return
	}

	chain := ctx.Skeleton.AncestorChain(bone) // child-to-parent, includes bone itself
	ancestors := chain[1:]
	if len(ancestors) == 0 {
		ancestors = chain // single-bone skeleton: the bone is its own only knob
	}

	for k := 1; k <= budget; k++ {
		improved := false
		for _, delta := range permutationsSummingTo(len(ancestors), k) {
			trial := cloneRates(rates)
			for idx, d := range delta {
				if d == 0 {
					continue
				}
				raiseBy(&trial[ancestors[idx]], d)
			}
			err := objectErrorForBone(ctx, seg, settings, sampler, trial, bone)
			if err < bestErr {
				bestErr = err
				copy(rates, trial)
				improved = true
			}
			if bestErr <= settings.ErrorThreshold {
				return
			}
		}
		if !improved {
			break // no permutation of this budget improved things; step 4
		}
	}

	if bestErr <= settings.ErrorThreshold {
		return
	}

	// Step 5: fallback, greedy child-to-parent raise.
	for _, ancestor := range ancestors {
		for {
			prev := rates[ancestor]
			if !raiseSmallestComponent(&rates[ancestor]) {
				break
			}
			err := objectErrorForBone(ctx, seg, settings, sampler, rates, bone)
			if err > bestErr {
				// The raise made things worse: undo it and move on to
				// the next ancestor. A raise that leaves the error
				// unchanged is kept, so the climb can step past
				// components that do not affect this bone's error.
				rates[ancestor] = prev
				break
			}
			bestErr = err
			if bestErr <= settings.ErrorThreshold {
				return
			}
		}
	}

	if bestErr <= settings.ErrorThreshold {
		return
	}

	// Step 6: escalation, quat_full only.
	if settings.RotationFormat == RotationFormatQuatFull {
		for _, ancestor := range ancestors {
			rates[ancestor] = BoneBitRates{Rotation: MaxBitRate(), Translation: MaxBitRate(), Scale: MaxBitRate()}
			bestErr = objectErrorForBone(ctx, seg, settings, sampler, rates, bone)
			if bestErr <= settings.ErrorThreshold {
				return
			}
		}
	}
	// Drop-W formats: the clip may not be representable to the requested
	// precision; the compressor accepts the best budget found.
}

func cloneRates(rates []BoneBitRates) []BoneBitRates {
	out := make([]BoneBitRates, len(rates))
	copy(out, rates)
	return out
}

func raiseBy(r *BoneBitRates, delta int) {
	r.Rotation = clampBitRate(int(r.Rotation) + delta)
	r.Translation = clampBitRate(int(r.Translation) + delta)
	r.Scale = clampBitRate(int(r.Scale) + delta)
}

func clampBitRate(v int) BitRate {
	max := int(MaxBitRate())
	if v > max {
		v = max
	}
	if v < 0 {
		v = 0
	}
	return BitRate(v)
}

// raiseSmallestComponent bumps whichever of rotation/translation/scale
// currently has the smallest value by one table step, preferring
// translation on a tie. Returns false once every
// component is already at the maximum.
func raiseSmallestComponent(r *BoneBitRates) bool {
	if r.Rotation >= MaxBitRate() && r.Translation >= MaxBitRate() && r.Scale >= MaxBitRate() {
		return false
	}
	smallest := r.Rotation
	pick := &r.Rotation
	if r.Translation <= smallest {
		smallest = r.Translation
		pick = &r.Translation
	}
	if r.Scale < smallest {
		pick = &r.Scale
	}
	if *pick < MaxBitRate() {
		*pick++
	}
	return true
}

// permutationsSummingTo enumerates every vector of length n over
// non-negative integers whose entries sum to exactly k.
func permutationsSummingTo(n, k int) [][]int {
	if n == 0 {
		return nil
	}
	var out [][]int
	var rec func(remaining int, idx int, cur []int)
	rec = func(remaining int, idx int, cur []int) {
		if idx == n-1 {
			next := append(append([]int{}, cur...), remaining)
			out = append(out, next)
			return
		}
		for v := 0; v <= remaining; v++ {
			rec(remaining-v, idx+1, append(cur, v))
		}
	}
	rec(k, 0, nil)
	return out
}
