package database

import (
	"fmt"
	"sort"

	"github.com/motionforge/acl/clip"
)

// Config is the database build settings: chunk size budget and tier
// proportions of the total movable (non-anchor) frame population.
type Config struct {
	MaxChunkSize               int
	MediumImportanceProportion float32
	LowImportanceProportion    float32
}

// DefaultConfig carries the stock defaults: a 1 MiB chunk and
// no proportions set (caller must choose, since there is no sane
// universal default split between "streamable" and "always resident").
func DefaultConfig() Config {
	return Config{MaxChunkSize: 1 << 20}
}

func (c Config) validate() error {
	if c.MediumImportanceProportion < 0 || c.LowImportanceProportion < 0 {
		return ErrInvalidProportions
	}
	if c.MediumImportanceProportion+c.LowImportanceProportion > 1 {
		return ErrInvalidProportions
	}
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("acl: max_chunk_size must be positive, got %d", c.MaxChunkSize)
	}
	return nil
}

// segmentKey names one segment of one clip in a database build.
type segmentKey struct {
	clip    int
	segment int
}

// frameKey names one frame of one segment of one clip; frame is the
// local index within the segment.
type frameKey struct {
	clip    int
	segment int
	frame   int
}

// TierAssignment maps every movable frame of every input clip to the
// tier it was assigned. Frames absent from the map (anchors and
// everything left after the streamable tiers filled) are
// high-importance and stay inline.
type TierAssignment map[frameKey]Tier

// TierOf reports the tier assigned to a frame, defaulting to TierHigh.
func (a TierAssignment) TierOf(clipIndex, segment, frame int) Tier {
	if t, ok := a[frameKey{clipIndex, segment, frame}]; ok {
		return t
	}
	return TierHigh
}

type movable struct {
	key  frameKey
	cost float32
}

// isAnchorFrame reports whether local frame f of an n-sample segment is
// immovable: a segment of two or more frames keeps its first and last
// frame inline so sampling at segment boundaries always has data, and a
// single-frame segment keeps its only frame.
func isAnchorFrame(numSamples, f int) bool {
	return f == 0 || f == numSamples-1
}

// AssignTiers runs the tier assignment procedure: every interior frame
// of every segment enters a single global pool ranked by contributing
// error, ties broken by clip, then segment, then frame index. Tiers
// fill from lowest importance upward — the cheapest frames stream out
// first — with per-tier counts taken as proportions of the movable
// total. Whatever remains is high-importance and stays inline.
//
// contributingError[c][s][f] is the caller-supplied estimate for clip
// c, segment s, local frame f (ignored for anchor frames). Dimensions
// must match metas[c]'s segment layout.
func AssignTiers(metas []clipMeta, contributingError [][][]float32, cfg Config) (TierAssignment, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	for c, m := range metas {
		if len(contributingError[c]) != len(m.segments) {
			return nil, ErrMismatchedLength
		}
		for s, seg := range m.segments {
			if len(contributingError[c][s]) != seg.numSamples {
				return nil, ErrMismatchedLength
			}
		}
	}

	var pool []movable
	for c, m := range metas {
		for s, seg := range m.segments {
			for f := 0; f < seg.numSamples; f++ {
				if isAnchorFrame(seg.numSamples, f) {
					continue
				}
				pool = append(pool, movable{
					key:  frameKey{c, s, f},
					cost: contributingError[c][s][f],
				})
			}
		}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].cost != pool[j].cost {
			return pool[i].cost < pool[j].cost
		}
		if pool[i].key.clip != pool[j].key.clip {
			return pool[i].key.clip < pool[j].key.clip
		}
		if pool[i].key.segment != pool[j].key.segment {
			return pool[i].key.segment < pool[j].key.segment
		}
		return pool[i].key.frame < pool[j].key.frame
	})

	total := len(pool)
	lowCount := int(float32(total) * cfg.LowImportanceProportion)
	mediumCount := int(float32(total) * cfg.MediumImportanceProportion)
	if lowCount > total {
		lowCount = total
	}
	if lowCount+mediumCount > total {
		mediumCount = total - lowCount
	}

	assignment := make(TierAssignment, lowCount+mediumCount)
	for i, m := range pool {
		switch {
		case i < lowCount:
			assignment[m.key] = TierLow
		case i < lowCount+mediumCount:
			assignment[m.key] = TierMedium
		}
	}
	return assignment, nil
}

// RangeContributingErrors is a default contributing-error estimate for
// callers that have a clip.Context handy but have not run a full
// errormetric pass: every frame of a segment is scored by the magnitude
// of the segment's range extents, quantities the range analyser already
// computes, on the premise that frames inside wider motion are more
// expensive to approximate away. Callers with real per-frame error from
// errormetric should prefer that instead.
func RangeContributingErrors(ctx *clip.Context) [][]float32 {
	out := make([][]float32, len(ctx.Segments))
	for s, seg := range ctx.Segments {
		var total float32
		for _, r := range seg.Ranges {
			total += r.Rotation.Extent.Length() + r.Translation.Extent.Length() + r.Scale.Extent.Length()
		}
		frames := make([]float32, seg.NumSamples)
		for f := range frames {
			frames[f] = total
		}
		out[s] = frames
	}
	return out
}
