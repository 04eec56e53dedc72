package database

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/motionforge/acl/internal/container"
)

// Split separates the database into an offsets-only artefact and its
// two bulk-data blobs.
// The returned database buffer has is_bulk_data_inline false and
// invalid bulk offsets; its hash is recomputed over the smaller
// content. The blobs are copies the caller may hand to streamers.
func (db *Database) Split() (dbNoBulk, bulkMedium, bulkLow []byte) {
	dbNoBulk = db.write(false)
	bulkMedium = append([]byte(nil), db.bulk[TierMedium]...)
	bulkLow = append([]byte(nil), db.bulk[TierLow]...)
	return dbNoBulk, bulkMedium, bulkLow
}

// Join reinlines bulk blobs produced by Split into the offsets-only
// buffer, reproducing the original inline artefact byte for byte. The
// blobs must be the exact pair Split returned for this buffer.
func Join(dbNoBulk, bulkMedium, bulkLow []byte) ([]byte, error) {
	if err := container.Validate(dbNoBulk, container.TagCompressedDatabase, true); err != nil {
		return nil, fmt.Errorf("acl: join: %w", err)
	}
	base := container.RawBufferHeaderSize
	if binary.LittleEndian.Uint32(dbNoBulk[base+48:]) != 0 {
		return nil, fmt.Errorf("acl: join: %w: bulk data already inline", ErrBulkInline)
	}

	// write(false)'s total is the aligned prefix write(true) starts its
	// bulk regions at, so the inline layout is the prefix plus each blob
	// at the next aligned boundary.
	cursor := len(dbNoBulk)
	var bulkSize, bulkOffset [2]int
	for i, blob := range [2][]byte{bulkMedium, bulkLow} {
		bulkOffset[i] = cursor
		bulkSize[i] = len(blob)
		cursor += len(blob)
		cursor = container.Align(cursor)
	}

	buf := make([]byte, container.Align(cursor))
	copy(buf, dbNoBulk)
	copy(buf[bulkOffset[0]:], bulkMedium)
	copy(buf[bulkOffset[1]:], bulkLow)

	putU32 := func(at int, v uint32) { binary.LittleEndian.PutUint32(buf[at:], v) }
	putU32(base+24, uint32(bulkSize[0]))
	putU32(base+28, uint32(bulkSize[1]))
	putU32(base+32, uint32(bulkOffset[0]))
	putU32(base+36, uint32(bulkOffset[1]))
	putU32(base+40, container.FNV1a(bulkMedium))
	putU32(base+44, container.FNV1a(bulkLow))
	putU32(base+48, 1)

	hash := container.FNV1a(buf[container.RawBufferHeaderSize:])
	container.PutRawBufferHeader(buf, container.RawBufferHeader{Size: uint32(len(buf)), Hash: hash})
	return buf, nil
}

// Strip returns a new database with tier's bulk data removed, its
// chunk descriptions zeroed, and its per-segment sample_indices
// cleared. Stripping commutes:
// strip(strip(db, A), B) and the reverse produce bit-identical
// artefacts, because the result depends only on the final stripped
// set.
func (db *Database) Strip(tier Tier) (*Database, error) {
	if !tier.Bulk() {
		return nil, fmt.Errorf("acl: strip: tier %s has no bulk data", tier)
	}

	out := &Database{
		cfg:        db.cfg,
		clipHashes: append([]uint32(nil), db.clipHashes...),
		assignment: db.assignment,
		chunks:     make(map[Tier][]chunk),
		bulk:       make(map[Tier][]byte),
		stripped:   make(map[Tier]bool),
	}
	for t, v := range db.stripped {
		out.stripped[t] = v
	}
	for _, t := range bulkTiers {
		if t == tier {
			out.stripped[t] = true
			// Chunk skeletons survive (the description table keeps its
			// entry count) with their sample_indices cleared.
			stripped := make([]chunk, len(db.chunks[t]))
			for i, c := range db.chunks[t] {
				recs := make([]segmentRecord, len(c.segments))
				copy(recs, c.segments)
				for j := range recs {
					recs[j].sampleIndices = 0
					recs[j].data = nil
				}
				stripped[i] = chunk{tier: t, segments: recs, dataLen: c.dataLen}
			}
			out.chunks[t] = stripped
			continue
		}
		out.chunks[t] = db.chunks[t]
		out.bulk[t] = db.bulk[t]
	}
	return out, nil
}

// Merge combines several databases into one containing all their
// chunks. Clip indices are
// rebased onto the merged clip table; partial chunks are coalesced by
// re-packing every tier's segment population under cfg, so merging two
// databases reproduces, bit for bit, a database built from their clips
// together. Stripped inputs cannot be merged.
func Merge(dbs []*Database, cfg Config) (*Database, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	out := &Database{
		cfg:        cfg,
		assignment: make(TierAssignment),
		chunks:     make(map[Tier][]chunk),
		bulk:       make(map[Tier][]byte),
		stripped:   make(map[Tier]bool),
	}

	clipBase := 0
	type rebased struct {
		rec  segmentRecord
		tier Tier
	}
	var all []rebased
	for _, src := range dbs {
		for _, tier := range bulkTiers {
			if src.stripped[tier] {
				return nil, fmt.Errorf("acl: merge: %w: %s tier was stripped", ErrTierStripped, tier)
			}
			for _, c := range src.chunks[tier] {
				for _, rec := range c.segments {
					r := rec
					r.clipIndex += clipBase
					// The bulk region owns the authoritative bytes; the
					// build-time data slice may alias a caller buffer
					// that is gone by now.
					r.data = src.bulk[tier][rec.samplesOffset : rec.samplesOffset+rec.size]
					all = append(all, rebased{rec: r, tier: tier})
				}
			}
		}
		for key, t := range src.assignment {
			out.assignment[frameKey{key.clip + clipBase, key.segment, key.frame}] = t
		}
		out.clipHashes = append(out.clipHashes, src.clipHashes...)
		clipBase += len(src.clipHashes)
	}

	for _, tier := range bulkTiers {
		var recs []segmentRecord
		for _, r := range all {
			if r.tier == tier {
				recs = append(recs, r.rec)
			}
		}
		sort.SliceStable(recs, func(i, j int) bool {
			if recs[i].clipIndex != recs[j].clipIndex {
				return recs[i].clipIndex < recs[j].clipIndex
			}
			return recs[i].segmentIndex < recs[j].segmentIndex
		})

		chunks, err := packChunks(tier, recs, cfg)
		if err != nil {
			return nil, err
		}
		out.chunks[tier] = chunks
		out.bulk[tier] = layoutTierBulk(chunks)
	}

	return out, nil
}

// Validate checks a serialised compressed_database beyond the generic
// container checks: bulk regions must lie inside the buffer, every
// chunk's records must point inside its own tier region, and the
// per-chunk sizes must agree with the record population. Used by the
// CLI's validate subcommand and by the split/strip/merge tests.
func Validate(buf []byte) error {
	if err := container.Validate(buf, container.TagCompressedDatabase, true); err != nil {
		return err
	}

	base := container.RawBufferHeaderSize
	inline := binary.LittleEndian.Uint32(buf[base+48:]) != 0
	if !inline {
		return nil // offsets-only artefact; nothing structural to walk
	}

	for i := 0; i < 2; i++ {
		size := int(binary.LittleEndian.Uint32(buf[base+24+i*4:]))
		offset := int(binary.LittleEndian.Uint32(buf[base+32+i*4:]))
		if size == 0 {
			continue
		}
		if offset < base || offset+size > len(buf) {
			return fmt.Errorf("%w: bulk region %d out of bounds", ErrCorruptDatabase, i)
		}
		region := buf[offset : offset+size]
		wantHash := binary.LittleEndian.Uint32(buf[base+40+i*4:])
		if container.FNV1a(region) != wantHash {
			return fmt.Errorf("%w: bulk region %d hash mismatch", ErrCorruptDatabase, i)
		}
		if err := validateBulkRegion(region); err != nil {
			return err
		}
	}
	return nil
}

func validateBulkRegion(region []byte) error {
	cursor := 0
	limit := len(region)
	for cursor+chunkHeaderSize <= limit {
		size := int(binary.LittleEndian.Uint32(region[cursor+4:]))
		numSegments := int(binary.LittleEndian.Uint32(region[cursor+8:]))
		if size == 0 {
			break // trailing pad
		}
		if cursor+size > limit {
			return fmt.Errorf("%w: chunk overruns its bulk region", ErrCorruptDatabase)
		}
		recordsAt := cursor + chunkHeaderSize
		dataLen := 0
		for s := 0; s < numSegments; s++ {
			at := recordsAt + s*segmentRecordSize
			samplesOffset := int(binary.LittleEndian.Uint32(region[at+16:]))
			segSize := int(binary.LittleEndian.Uint32(region[at+20:]))
			if samplesOffset < recordsAt || samplesOffset+segSize > cursor+size {
				return fmt.Errorf("%w: segment record points outside its chunk", ErrCorruptDatabase)
			}
			dataLen += segSize
		}
		if chunkHeaderSize+numSegments*segmentRecordSize+dataLen != size {
			return fmt.Errorf("%w: chunk size disagrees with its records", ErrCorruptDatabase)
		}
		cursor += size
	}
	return nil
}
