package database

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bulkKey = []byte("bulk")

// SaveTierBulk writes a tier's bulk-data blob into a bbolt database
// file, one bucket per tier. It is the build-time half of BoltStreamer:
// a pipeline that splits its databases to disk stores the two bulk
// blobs here and hands the runtime a BoltStreamer per tier.
func SaveTierBulk(path string, tier Tier, bulk []byte) error {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return fmt.Errorf("acl: open bulk store: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(tier.String()))
		if err != nil {
			return err
		}
		return b.Put(bulkKey, bulk)
	})
}

// BoltStreamer is a file-backed Streamer: tier bulk data lives in a
// bbolt bucket and is paged into a private in-memory buffer on demand.
// Completion is synchronous (bbolt reads block briefly), which the
// Streamer contract permits: the continuation simply runs before
// StreamIn returns.
type BoltStreamer struct {
	db     *bolt.DB
	bucket []byte
	size   int
	buf    []byte
}

// NewBoltStreamer opens the bulk store at path and binds to tier's
// bucket. The bucket must already hold a blob written by SaveTierBulk.
func NewBoltStreamer(path string, tier Tier) (*BoltStreamer, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("acl: open bulk store: %w", err)
	}

	s := &BoltStreamer{db: db, bucket: []byte(tier.String())}
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return fmt.Errorf("acl: bulk store has no %s tier", tier)
		}
		s.size = len(b.Get(bulkKey))
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying bbolt handle.
func (s *BoltStreamer) Close() error { return s.db.Close() }

// IsInitialized implements Streamer.
func (s *BoltStreamer) IsInitialized() bool { return s.db != nil }

// BulkData implements Streamer.
func (s *BoltStreamer) BulkData() []byte { return s.buf }

// StreamIn implements Streamer.
func (s *BoltStreamer) StreamIn(offset, size int, canAllocate bool, continuation func(bool)) {
	if offset < 0 || offset+size > s.size {
		continuation(false)
		return
	}
	if s.buf == nil {
		if !canAllocate {
			continuation(false)
			return
		}
		s.buf = make([]byte, s.size)
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return fmt.Errorf("acl: bulk store lost its %s tier", s.bucket)
		}
		blob := b.Get(bulkKey)
		if len(blob) < offset+size {
			return fmt.Errorf("acl: bulk store truncated")
		}
		copy(s.buf[offset:offset+size], blob[offset:offset+size])
		return nil
	})
	continuation(err == nil)
}

// StreamOut implements Streamer.
func (s *BoltStreamer) StreamOut(offset, size int, canDeallocate bool, continuation func(bool)) {
	if s.buf == nil {
		continuation(false)
		return
	}
	for i := offset; i < offset+size && i < len(s.buf); i++ {
		s.buf[i] = 0
	}
	if canDeallocate {
		s.buf = nil
	}
	continuation(true)
}
