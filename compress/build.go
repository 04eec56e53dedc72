package compress

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/motionforge/acl/clip"
	"github.com/motionforge/acl/internal/pool"
	"github.com/motionforge/acl/skeleton"
)

// Tracks wraps a compressed_tracks buffer produced by CompressTrackList
//. Callers that obtained it through a custom Allocator must
// release it with Free once done; the zero value is not usable.
type Tracks struct {
	Buf   []byte
	alloc pool.Allocator
}

// Free returns the buffer to the allocator it was built with. A nil
// receiver or an already-freed Tracks is a no-op.
func (t *Tracks) Free() {
	if t == nil || t.Buf == nil {
		return
	}
	t.alloc.Free(t.Buf)
	t.Buf = nil
}

// CompressTrackList is the build API entry point:
// compress_track_list. It resamples/segments raw into a clip.Context,
// runs the per-segment bit-rate search, and writes the final
// bit-packed container.
func CompressTrackList(raw *skeleton.RawClip, settings Settings, alloc pool.Allocator) (*Tracks, error) {
	if alloc == nil {
		alloc = pool.Default
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if len(raw.Bones) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyClip, raw.Name)
	}

	logger := log.With().Str("clip", raw.Name).Logger()

	ctx := clip.BuildContext(raw, settings.IdealNumSamples)
	rates := make([][]BoneBitRates, len(ctx.Segments))
	for s := range ctx.Segments {
		rates[s] = SearchSegment(ctx, &ctx.Segments[s], settings)
		logSegmentDecision(logger, raw.Name, s, rates[s])
	}

	var metadata []byte
	if raw.Name != "" {
		metadata = []byte(raw.Name)
	}
	built := WriteCompressedTracksWithMetadata(ctx, rates, metadata)

	buf := alloc.Alloc(len(built))
	copy(buf, built)

	logger.Info().
		Int("bones", len(raw.Bones)).
		Int("segments", len(ctx.Segments)).
		Int("bytes", len(buf)).
		Msg("compressed clip")

	return &Tracks{Buf: buf, alloc: alloc}, nil
}

// logSegmentDecision emits one Debug event per segment's bit-rate
// decision, and escalates to Warn when some bone ended the search with
// rotation, translation and scale all at the maximum bit rate.
func logSegmentDecision(logger zerolog.Logger, clipName string, segment int, rates []BoneBitRates) {
	escalated := 0
	for _, r := range rates {
		if r.Rotation == MaxBitRate() && r.Translation == MaxBitRate() && r.Scale == MaxBitRate() {
			escalated++
		}
	}
	evt := logger.Debug()
	if escalated > 0 {
		evt = logger.Warn()
	}
	evt.Int("segment", segment).Int("bones", len(rates)).Int("escalated", escalated).
		Msg("bit-rate search decision")
}

// BuildAll compresses every raw clip concurrently, one goroutine per
// clip fanned out via errgroup. alloc, when non-nil, is
// shared read-only across goroutines (the pool.Allocator contract is
// concurrency-safe); pass nil to use pool.Default for every clip.
func BuildAll(raws []*skeleton.RawClip, settings Settings, alloc pool.Allocator) ([]*Tracks, error) {
	out := make([]*Tracks, len(raws))
	var g errgroup.Group
	for i, raw := range raws {
		i, raw := i, raw
		g.Go(func() error {
			tracks, err := CompressTrackList(raw, settings, alloc)
			if err != nil {
				return fmt.Errorf("clip %d (%s): %w", i, raw.Name, err)
			}
			out[i] = tracks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, t := range out {
			t.Free()
		}
		return nil, err
	}
	return out, nil
}
