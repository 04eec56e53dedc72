package pool

// Allocator is the pluggable allocation collaborator: compression and
// database build APIs take one,
// and every buffer they return must be freed through the same instance
// by passing the returned slice back to Free.
type Allocator interface {
	Alloc(size int) []byte
	Free(buf []byte)
}

// Default is the package-level Allocator backed by the bucketed pools
// above. It is the allocator used when callers do not supply their own.
var Default Allocator = defaultAllocator{}

type defaultAllocator struct{}

func (defaultAllocator) Alloc(size int) []byte { return Get(size) }
func (defaultAllocator) Free(buf []byte)       { Put(buf) }
