package compress

import "errors"

// Error taxonomy for the build APIs. Build APIs fail fast and
// return one of these wrapped with context via fmt.Errorf's %w.
var (
	ErrInvalidSettings = errors.New("acl: invalid settings")
	ErrEmptyClip       = errors.New("acl: clip has no bones")
	ErrNotBound        = errors.New("acl: not bound to a database")
	ErrAlreadyBound    = errors.New("acl: already bound")
)
