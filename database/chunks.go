package database

import (
	"encoding/binary"
	"math/bits"

	"github.com/rs/zerolog/log"

	"github.com/motionforge/acl/internal/bitio"
	"github.com/motionforge/acl/internal/container"
)

// segmentRecord is one chunk's per-segment bulk entry: enough to find a
// clip's frames for this segment inside the tier's bulk region again
// after Database.Write serialises it and a database Context reads it
// back. sampleIndices marks which of
// the segment's (at most 32) local frames this record carries; the
// record's data is those frames' bit-packed payloads, densely
// concatenated in frame order.
type segmentRecord struct {
	clipHash      uint32
	clipIndex     int
	segmentIndex  int
	sampleIndices uint32
	samplesOffset int // absolute offset within the tier's bulk region
	size          int

	// data is the extracted frame bytes; never serialised itself, only
	// copied into the bulk region by layoutTierBulk and carried across
	// Merge.
	data []byte
}

const segmentRecordSize = 4 /*clipHash*/ + 4 /*clipIndex*/ + 4 /*segmentIndex*/ +
	4 /*sampleIndices*/ + 4 /*samplesOffset*/ + 4 /*size*/

const chunkHeaderSize = 4 /*index*/ + 4 /*size*/ + 4 /*numSegments*/

// chunk is one size-bounded group of segment records sharing a tier,
// never split across the boundary.
type chunk struct {
	tier     Tier
	segments []segmentRecord
	dataLen  int // sum of segments[i].size
}

func (c *chunk) footprint() int {
	return chunkHeaderSize + len(c.segments)*segmentRecordSize + c.dataLen
}

// packChunks groups segs (already sorted by clip/segment ascending)
// into chunks for tier, closing the current chunk and starting a new
// one whenever the next segment would push it past cfg.MaxChunkSize. A
// segment's record is never split across a chunk boundary.
func packChunks(tier Tier, segs []segmentRecord, cfg Config) ([]chunk, error) {
	var chunks []chunk
	var cur chunk
	cur.tier = tier

	flush := func() {
		if len(cur.segments) == 0 {
			return
		}
		chunks = append(chunks, cur)
		cur = chunk{tier: tier}
	}

	for _, s := range segs {
		entryFootprint := chunkHeaderSize + segmentRecordSize + s.size
		if entryFootprint+bitio.TrailingPadBytes > cfg.MaxChunkSize {
			return nil, ErrChunkOverflow
		}
		projected := cur.footprint() + segmentRecordSize + s.size
		if len(cur.segments) > 0 && projected+bitio.TrailingPadBytes > cfg.MaxChunkSize {
			flush()
		}
		cur.segments = append(cur.segments, s)
		cur.dataLen += s.size
	}
	flush()
	return chunks, nil
}

// Database is the built compressed_database artefact in memory: the
// per-frame tier assignment, packed chunks, and the concatenated bulk
// bytes backing Medium and Low. High-importance frames stay inline in
// their owning compressed_tracks buffer and are never represented
// here.
type Database struct {
	cfg        Config
	clipHashes []uint32
	assignment TierAssignment
	chunks     map[Tier][]chunk
	bulk       map[Tier][]byte
	stripped   map[Tier]bool
}

// ClipSource is one compressed clip contributed to a database build:
// its compressed_tracks buffer and a contributing-error estimate per
// frame, indexed [segment][local frame] (anchor frames' entries are
// ignored).
type ClipSource struct {
	Buf               []byte
	ContributingError [][]float32
}

// Build assigns tiers across every clip's movable frames, extracts the
// Medium/Low frames into size-bounded chunks, and rewrites each input
// clip so the moved frames are gone from its inline animated streams:
// every segment header's sample_indices keeps only the surviving
// frames' bits and the stream is re-packed densely around them. The
// returned buffers replace the inputs — their hashes are recomputed,
// and it is those hashes the database's chunk records carry.
func Build(sources []ClipSource, cfg Config) ([][]byte, *Database, error) {
	metas := make([]clipMeta, len(sources))
	errs := make([][][]float32, len(sources))
	for i, src := range sources {
		metas[i] = parseClipMeta(src.Buf)
		errs[i] = src.ContributingError
	}

	assignment, err := AssignTiers(metas, errs, cfg)
	if err != nil {
		return nil, nil, err
	}

	// Per clip, per segment: which frames each streamable tier took and
	// which stay inline.
	tierMasks := make(map[Tier][][]uint32, 2)
	inlineMasks := make([][]uint32, len(sources))
	for _, tier := range bulkTiers {
		tierMasks[tier] = make([][]uint32, len(sources))
	}
	for c, m := range metas {
		inlineMasks[c] = make([]uint32, len(m.segments))
		for _, tier := range bulkTiers {
			tierMasks[tier][c] = make([]uint32, len(m.segments))
		}
		for s, seg := range m.segments {
			inlineMasks[c][s] = sampleIndicesMask(seg.numSamples)
		}
	}
	for key, tier := range assignment {
		bit := uint32(1) << uint(key.frame)
		tierMasks[tier][key.clip][key.segment] |= bit
		inlineMasks[key.clip][key.segment] &^= bit
	}

	rewritten := make([][]byte, len(sources))
	hashes := make([]uint32, len(sources))
	for c, src := range sources {
		rewritten[c] = rewriteTracks(src.Buf, metas[c], inlineMasks[c])
		hashes[c] = container.GetRawBufferHeader(rewritten[c]).Hash
	}

	db := &Database{
		cfg:        cfg,
		clipHashes: hashes,
		assignment: assignment,
		chunks:     make(map[Tier][]chunk),
		bulk:       make(map[Tier][]byte),
		stripped:   make(map[Tier]bool),
	}

	for _, tier := range bulkTiers {
		var recs []segmentRecord
		frames := 0
		for c, src := range sources {
			m := metas[c]
			for s := range m.segments {
				mask := tierMasks[tier][c][s]
				if mask == 0 {
					continue
				}
				data := extractFrames(src.Buf, m, s, mask)
				frames += bits.OnesCount32(mask)
				recs = append(recs, segmentRecord{
					clipHash:      hashes[c],
					clipIndex:     c,
					segmentIndex:  s,
					sampleIndices: mask,
					size:          len(data),
					data:          data,
				})
			}
		}

		chunks, err := packChunks(tier, recs, cfg)
		if err != nil {
			return nil, nil, err
		}

		db.chunks[tier] = chunks
		db.bulk[tier] = layoutTierBulk(chunks)
		log.Debug().
			Str("tier", tier.String()).
			Int("frames", frames).
			Int("chunks", len(chunks)).
			Int("bulk_bytes", len(db.bulk[tier])).
			Msg("database tier assignment")
	}

	return rewritten, db, nil
}

// sampleIndicesMask sets the low n bits (n capped at 32), the
// every-frame-present mask of a freshly compressed segment.
func sampleIndicesMask(n int) uint32 {
	if n >= 32 {
		return 0xFFFFFFFF
	}
	return (uint32(1) << uint(n)) - 1
}

// extractFrames lifts the masked frames of segment s out of src's
// animated stream, bit-packed back to back in frame order.
func extractFrames(src []byte, m clipMeta, s int, mask uint32) []byte {
	seg := m.segments[s]
	count := bits.OnesCount32(mask)
	bw := bitio.NewWriter((seg.animatedPoseBitSize*count + 7) / 8)
	for f := 0; f < seg.numSamples; f++ {
		if mask&(uint32(1)<<uint(f)) == 0 {
			continue
		}
		bitio.CopyBits(bw, src, m.frameBit(s, f), seg.animatedPoseBitSize)
	}
	return bw.Finish()
}

// rewriteTracks produces the database-bound form of a compressed clip:
// each segment keeps its prologue (format bytes and 8-bit ranges)
// untouched but its animated stream is re-packed to hold only the
// frames in inlineMasks[s], and the segment header's sample_indices is
// updated to match. Sections before the segment data keep their
// offsets; segment data offsets, the trailing metadata block, and the
// buffer hash are recomputed.
func rewriteTracks(src []byte, m clipMeta, inlineMasks []uint32) []byte {
	base := container.RawBufferHeaderSize
	offsetSegmentHeaders := int(container.GetPtrOffset32(src, base+52))
	prologue := m.prologueSize()

	firstData := len(src)
	if len(m.segments) > 0 {
		firstData = m.segments[0].dataOffset
	}

	cursor := firstData
	newOffsets := make([]int, len(m.segments))
	for s, seg := range m.segments {
		cursor = container.Align4(cursor)
		newOffsets[s] = cursor
		kept := bits.OnesCount32(inlineMasks[s])
		cursor += prologue + (seg.animatedPoseBitSize*kept+7)/8
	}
	cursor += bitio.TrailingPadBytes

	newMetadata := container.InvalidOffset
	metadataLen := 0
	if m.metadataOffset.IsValid() {
		metadataLen = int(binary.LittleEndian.Uint32(src[int(m.metadataOffset):]))
		cursor = container.Align4(cursor)
		newMetadata = container.PtrOffset32(cursor)
		cursor += 4 + metadataLen
	}

	buf := make([]byte, container.Align(cursor))
	copy(buf, src[:firstData])

	for s, seg := range m.segments {
		at := newOffsets[s]
		copy(buf[at:], src[seg.dataOffset:seg.dataOffset+prologue])

		mask := inlineMasks[s]
		kept := bits.OnesCount32(mask)
		bw := bitio.NewWriter((seg.animatedPoseBitSize*kept + 7) / 8)
		for f := 0; f < seg.numSamples; f++ {
			if mask&(uint32(1)<<uint(f)) == 0 {
				continue
			}
			bitio.CopyBits(bw, src, m.frameBit(s, f), seg.animatedPoseBitSize)
		}
		copy(buf[at+prologue:], bw.Finish())

		hdrAt := offsetSegmentHeaders + s*clipHeaderSegmentHeaderSize
		container.PutPtrOffset32(buf, hdrAt+4, container.PtrOffset32(at))
		binary.LittleEndian.PutUint32(buf[hdrAt+16:], mask)
	}

	container.PutPtrOffset32(buf, base+56, newMetadata)
	if newMetadata.IsValid() {
		at := int(newMetadata)
		binary.LittleEndian.PutUint32(buf[at:], uint32(metadataLen))
		copy(buf[at+4:], src[int(m.metadataOffset)+4:int(m.metadataOffset)+4+metadataLen])
	}

	hash := container.FNV1a(buf[container.RawBufferHeaderSize:])
	container.PutRawBufferHeader(buf, container.RawBufferHeader{Size: uint32(len(buf)), Hash: hash})
	return buf
}

// layoutTierBulk lays out one tier's bulk region: each chunk's header,
// its segment records (with samples_offset now resolved to an absolute
// position in the region), then its records' frame bytes back to back,
// followed by one trailing bitio pad for the whole region (the
// trailing SIMD pad on the last chunk). The chunks' records are
// mutated in place so later consumers (Context, Merge) see the
// resolved offsets.
func layoutTierBulk(chunks []chunk) []byte {
	if len(chunks) == 0 {
		return nil
	}

	total := 0
	for i := range chunks {
		total += chunks[i].footprint()
	}
	total += bitio.TrailingPadBytes

	buf := make([]byte, total)
	cursor := 0
	for ci := range chunks {
		c := &chunks[ci]
		headerAt := cursor
		binary.LittleEndian.PutUint32(buf[headerAt:], uint32(ci))
		binary.LittleEndian.PutUint32(buf[headerAt+4:], uint32(c.footprint()))
		binary.LittleEndian.PutUint32(buf[headerAt+8:], uint32(len(c.segments)))

		recordsAt := headerAt + chunkHeaderSize
		dataAt := recordsAt + len(c.segments)*segmentRecordSize
		for si := range c.segments {
			rec := &c.segments[si]
			rec.samplesOffset = dataAt

			at := recordsAt + si*segmentRecordSize
			binary.LittleEndian.PutUint32(buf[at:], rec.clipHash)
			binary.LittleEndian.PutUint32(buf[at+4:], uint32(rec.clipIndex))
			binary.LittleEndian.PutUint32(buf[at+8:], uint32(rec.segmentIndex))
			binary.LittleEndian.PutUint32(buf[at+12:], rec.sampleIndices)
			binary.LittleEndian.PutUint32(buf[at+16:], uint32(rec.samplesOffset))
			binary.LittleEndian.PutUint32(buf[at+20:], uint32(rec.size))

			copy(buf[dataAt:], rec.data)
			dataAt += rec.size
		}
		cursor = dataAt
	}
	return buf
}

// chunkOffsets returns the cumulative byte offset of every chunk within
// tier's bulk region, with one trailing entry marking the end of the
// last chunk's data. Stream requests are issued against these ranges.
func (db *Database) chunkOffsets(tier Tier) []int {
	chunks := db.chunks[tier]
	offsets := make([]int, len(chunks)+1)
	cursor := 0
	for i := range chunks {
		offsets[i] = cursor
		cursor += chunks[i].footprint()
	}
	offsets[len(chunks)] = cursor
	return offsets
}

// FrameTier reports the tier a frame was assigned: TierHigh unless the
// build moved it to a streamable tier.
func (db *Database) FrameTier(clipIndex, segment, frame int) Tier {
	return db.assignment.TierOf(clipIndex, segment, frame)
}

// TierFrameCount returns how many frames the build assigned to tier.
func (db *Database) TierFrameCount(tier Tier) int {
	n := 0
	for _, t := range db.assignment {
		if t == tier {
			n++
		}
	}
	return n
}

// ChunkCount returns how many chunks a tier was packed into.
func (db *Database) ChunkCount(tier Tier) int { return len(db.chunks[tier]) }

// NumClips returns the number of clips the database was built from.
func (db *Database) NumClips() int { return len(db.clipHashes) }

// IsStripped reports whether tier's bulk data has been removed by
// Strip.
func (db *Database) IsStripped(tier Tier) bool { return db.stripped[tier] }

// databaseHeaderSize covers the compressed_database header's fixed
// fields following the raw buffer header.
const databaseHeaderSize = 4 /*tag*/ + 2 /*version*/ + 2 /*flags*/ +
	4 /*numChunks (medium<<16|low)*/ +
	4 /*maxChunkSize*/ + 4 /*numClips*/ + 4 /*numSegments*/ +
	4*2 /*bulkDataSize*/ + 4*2 /*bulkDataOffset*/ + 4*2 /*bulkDataHash*/ + 4 /*isBulkDataInline*/

// Write serialises the database to a self-contained buffer: raw buffer
// header, database header, chunk descriptions, clip hash table, then
// the Medium and Low bulk regions back to back.
// is_bulk_data_inline is true for a freshly built database; Split
// flips it and omits the bulk bytes from the returned buffer.
func (db *Database) Write() []byte {
	return db.write(true)
}

func (db *Database) write(bulkInline bool) []byte {
	numChunks := [2]int{len(db.chunks[TierMedium]), len(db.chunks[TierLow])}

	cursor := container.RawBufferHeaderSize + databaseHeaderSize
	cursor = container.Align(cursor)
	offsetChunks := cursor
	cursor += (numChunks[0] + numChunks[1]) * 8 // {offset, size} per chunk

	offsetClipHashes := cursor
	cursor += len(db.clipHashes) * 4

	cursor = container.Align(cursor)

	var bulkSize, bulkOffset [2]int
	if bulkInline {
		for i, tier := range []Tier{TierMedium, TierLow} {
			bulkOffset[i] = cursor
			bulkSize[i] = len(db.bulk[tier])
			cursor += bulkSize[i]
			cursor = container.Align(cursor)
		}
	}

	total := container.Align(cursor)
	buf := make([]byte, total)

	putU32 := func(at int, v uint32) { binary.LittleEndian.PutUint32(buf[at:], v) }

	base := container.RawBufferHeaderSize
	putU32(base, container.TagCompressedDatabase)
	binary.LittleEndian.PutUint16(buf[base+4:], container.VersionLatest)
	putU32(base+8, uint32(numChunks[0])<<16|uint32(numChunks[1]))
	putU32(base+12, uint32(db.cfg.MaxChunkSize))
	putU32(base+16, uint32(len(db.clipHashes)))
	putU32(base+20, uint32(db.totalSegments()))
	putU32(base+24, uint32(bulkSize[0]))
	putU32(base+28, uint32(bulkSize[1]))
	if bulkInline {
		putU32(base+32, uint32(bulkOffset[0]))
		putU32(base+36, uint32(bulkOffset[1]))
		putU32(base+40, container.FNV1a(db.bulk[TierMedium]))
		putU32(base+44, container.FNV1a(db.bulk[TierLow]))
		putU32(base+48, 1)
	} else {
		putU32(base+32, uint32(container.InvalidOffset))
		putU32(base+36, uint32(container.InvalidOffset))
	}

	chunkAt := offsetChunks
	for _, tier := range []Tier{TierMedium, TierLow} {
		runningOffset := 0
		for _, c := range db.chunks[tier] {
			if !db.stripped[tier] {
				putU32(chunkAt, uint32(runningOffset))
				putU32(chunkAt+4, uint32(c.footprint()))
			}
			runningOffset += c.footprint()
			chunkAt += 8
		}
	}

	hashAt := offsetClipHashes
	for _, h := range db.clipHashes {
		putU32(hashAt, h)
		hashAt += 4
	}

	if bulkInline {
		copy(buf[bulkOffset[0]:], db.bulk[TierMedium])
		copy(buf[bulkOffset[1]:], db.bulk[TierLow])
	}

	hash := container.FNV1a(buf[container.RawBufferHeaderSize:])
	container.PutRawBufferHeader(buf, container.RawBufferHeader{Size: uint32(len(buf)), Hash: hash})
	return buf
}

func (db *Database) totalSegments() int {
	total := 0
	for _, tier := range []Tier{TierMedium, TierLow} {
		for _, c := range db.chunks[tier] {
			total += len(c.segments)
		}
	}
	return total
}
