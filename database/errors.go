package database

import "errors"

var (
	ErrInvalidProportions = errors.New("acl: tier proportions must be in [0,1] and sum to at most 1")
	ErrMismatchedLength   = errors.New("acl: segment error slice length does not match clip segment count")
	ErrNoAnchor           = errors.New("acl: clip has no always-resident anchor segment")
	ErrUnknownClip        = errors.New("acl: clip hash not found in database")
	ErrChunkOverflow      = errors.New("acl: a single segment exceeds max_chunk_size on its own")
	ErrBulkInline         = errors.New("acl: database bulk data state does not match the requested operation")
	ErrTierStripped       = errors.New("acl: tier bulk data was stripped")
	ErrCorruptDatabase    = errors.New("acl: database structure is corrupt")
)
