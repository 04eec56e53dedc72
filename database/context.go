package database

import (
	"errors"
	"sync/atomic"
)

// ErrContextAlreadyBound is returned when Initialize is called on a
// context that is already bound.
var ErrContextAlreadyBound = errors.New("acl: database context already bound")

// residentBit marks a published tierMetadata value as valid. Bits
// 32..62 carry the record's byte offset within its tier's bulk region
// and bits 0..31 its sample_indices frame mask, so one load observes a
// consistent (offset, mask) pair.
const residentBit = uint64(1) << 63

func packMetadata(offset int, mask uint32) uint64 {
	return residentBit | uint64(offset)<<32 | uint64(mask)
}

// tierMetadata is the double-buffered atomic slot pair published per
// segment: a reader never sees a torn (offset, presence) pair
// because a publication writes the whole packed value into whichever
// slot is currently zero and then clears the other. Relaxed ordering
// (Go's atomics are stronger, which is fine) suffices because the only
// transitive state, the bulk-data pointer, is owned by the streamer and
// stable between allocation events.
type tierMetadata struct {
	slots [2]atomic.Uint64
}

func (m *tierMetadata) publish(v uint64) {
	if m.slots[0].Load() == 0 {
		m.slots[0].Store(v)
		m.slots[1].Store(0)
	} else {
		m.slots[1].Store(v)
		m.slots[0].Store(0)
	}
}

func (m *tierMetadata) clear() {
	m.slots[0].Store(0)
	m.slots[1].Store(0)
}

func (m *tierMetadata) load() uint64 {
	if v := m.slots[0].Load(); v != 0 {
		return v
	}
	return m.slots[1].Load()
}

// Context is the runtime database_context: it owns
// the bulk-data pointers supplied by the streamers and the per-segment
// residency metadata, and it is the only party that mutates the
// tier-state atomics. Decompression contexts borrow it read-only.
type Context struct {
	db          *Database
	streamers   [2]Streamer                   // indexed by tierSlot: medium, low
	bulk        [2][]byte
	meta        [2]map[segmentKey]*tierMetadata // per tier: one slot pair per segment record
	chunkOff    map[Tier][]int
	streamed    [2]int // count of resident chunks per tier, front-to-back
	inFlight    [2]atomic.Bool
	initialized bool
}

func tierSlot(t Tier) int {
	if t == TierLow {
		return 1
	}
	return 0
}

var bulkTiers = [2]Tier{TierMedium, TierLow}

// Initialize binds the context to db, wiring one streamer per bulk
// tier. Nil streamers default to in-memory streamers over the
// database's own bulk blobs. No chunk is resident until StreamIn is
// called.
func (c *Context) Initialize(db *Database, medium, low Streamer) error {
	if c.initialized {
		return ErrContextAlreadyBound
	}
	if medium == nil {
		medium = NewInMemoryStreamer(db.bulk[TierMedium])
	}
	if low == nil {
		low = NewInMemoryStreamer(db.bulk[TierLow])
	}

	c.db = db
	c.streamers[0] = medium
	c.streamers[1] = low
	c.chunkOff = make(map[Tier][]int)
	for _, tier := range bulkTiers {
		slot := tierSlot(tier)
		c.meta[slot] = make(map[segmentKey]*tierMetadata)
		c.chunkOff[tier] = db.chunkOffsets(tier)
		for _, ch := range db.chunks[tier] {
			for _, rec := range ch.segments {
				c.meta[slot][segmentKey{rec.clipIndex, rec.segmentIndex}] = &tierMetadata{}
			}
		}
	}
	c.initialized = true
	return nil
}

// IsInitialized reports whether Initialize has succeeded.
func (c *Context) IsInitialized() bool { return c.initialized }

// FindClip returns the index of the clip whose rewritten
// compressed_tracks hash matches, or false when the clip is not part of
// this database.
func (c *Context) FindClip(hash uint32) (int, bool) {
	if !c.initialized {
		return 0, false
	}
	for i, h := range c.db.clipHashes {
		if h == hash {
			return i, true
		}
	}
	return 0, false
}

// SegmentData returns the bulk buffer, the byte offset of a segment's
// record data within it, and the frame mask that record carries, for
// one streamable tier. One atomic metadata load per call; ok is false
// while the record is not resident (never streamed in, streamed out
// again, or the segment has no frames in this tier at all).
func (c *Context) SegmentData(clipIndex, segment int, tier Tier) (data []byte, offset int, mask uint32, ok bool) {
	if !tier.Bulk() {
		return nil, 0, 0, false
	}
	slot := tierSlot(tier)
	m := c.meta[slot][segmentKey{clipIndex, segment}]
	if m == nil {
		return nil, 0, 0, false
	}
	v := m.load()
	if v&residentBit == 0 {
		return nil, 0, 0, false
	}
	bulk := c.bulk[slot]
	if bulk == nil {
		return nil, 0, 0, false
	}
	offset = int((v &^ residentBit) >> 32)
	mask = uint32(v)
	return bulk, offset, mask, true
}

// IsStreamedIn reports whether every chunk of tier is resident.
func (c *Context) IsStreamedIn(tier Tier) bool {
	if !c.initialized || !tier.Bulk() {
		return c.initialized
	}
	return c.streamed[tierSlot(tier)] >= len(c.db.chunks[tier])
}

// StreamIn requests the next numChunks chunks of tier from its
// streamer; numChunks <= 0 requests everything remaining. The call
// never blocks: it returns RequestDispatched immediately and the
// streamer's continuation publishes the per-segment metadata on
// success. Failure cancels the publication.
func (c *Context) StreamIn(tier Tier, numChunks int) RequestResult {
	if !c.initialized || !tier.Bulk() {
		return RequestNotInitialized
	}
	slot := tierSlot(tier)
	chunks := c.db.chunks[tier]
	if c.streamed[slot] >= len(chunks) {
		return RequestDone
	}
	if !c.inFlight[slot].CompareAndSwap(false, true) {
		return RequestStreaming
	}

	first := c.streamed[slot]
	last := first + numChunks
	if numChunks <= 0 || last > len(chunks) {
		last = len(chunks)
	}

	offsets := c.chunkOff[tier]
	offset := offsets[first]
	end := offsets[last]
	if last == len(chunks) {
		// The final range carries the trailing SIMD pad too.
		end = len(c.db.bulk[tier])
	}

	streamer := c.streamers[slot]
	streamer.StreamIn(offset, end-offset, first == 0, func(success bool) {
		if success {
			c.bulk[slot] = streamer.BulkData()
			for ci := first; ci < last; ci++ {
				for _, rec := range chunks[ci].segments {
					m := c.meta[slot][segmentKey{rec.clipIndex, rec.segmentIndex}]
					m.publish(packMetadata(rec.samplesOffset, rec.sampleIndices))
				}
			}
			c.streamed[slot] = last
		}
		c.inFlight[slot].Store(false)
	})
	return RequestDispatched
}

// StreamOut evicts the most recently streamed numChunks chunks of tier
// (numChunks <= 0 evicts everything). Callers must guarantee no
// decompression against this tier is active.
func (c *Context) StreamOut(tier Tier, numChunks int) RequestResult {
	if !c.initialized || !tier.Bulk() {
		return RequestNotInitialized
	}
	slot := tierSlot(tier)
	chunks := c.db.chunks[tier]
	if c.streamed[slot] == 0 {
		return RequestDone
	}
	if !c.inFlight[slot].CompareAndSwap(false, true) {
		return RequestStreaming
	}

	last := c.streamed[slot]
	first := last - numChunks
	if numChunks <= 0 || first < 0 {
		first = 0
	}

	// Residency metadata is withdrawn before the bytes go away so no
	// reader can chase an offset into a released range.
	for ci := first; ci < last; ci++ {
		for _, rec := range chunks[ci].segments {
			c.meta[slot][segmentKey{rec.clipIndex, rec.segmentIndex}].clear()
		}
	}
	c.streamed[slot] = first

	offsets := c.chunkOff[tier]
	offset := offsets[first]
	end := offsets[last]
	if last == len(chunks) {
		end = len(c.db.bulk[tier])
	}

	streamer := c.streamers[slot]
	streamer.StreamOut(offset, end-offset, first == 0, func(success bool) {
		if success && first == 0 {
			c.bulk[slot] = nil
		}
		c.inFlight[slot].Store(false)
	})
	return RequestDispatched
}

// Reset returns the context to its uninitialized state. Any resident
// bulk data is abandoned to the streamers that own it.
func (c *Context) Reset() {
	*c = Context{}
}
