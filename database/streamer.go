package database

// RequestResult is the immediate status a stream_in/stream_out call
// returns.
type RequestResult int

const (
	// RequestDone means there was nothing left to do: the requested
	// tier is already fully resident (or fully evicted).
	RequestDone RequestResult = iota
	// RequestDispatched means the request was handed to the streamer;
	// its continuation will publish the result.
	RequestDispatched
	// RequestStreaming means the tier already has an in-flight request;
	// the caller retries later.
	RequestStreaming
	// RequestNotInitialized means the owning context was never
	// initialized.
	RequestNotInitialized
)

func (r RequestResult) String() string {
	switch r {
	case RequestDone:
		return "done"
	case RequestDispatched:
		return "dispatched"
	case RequestStreaming:
		return "streaming"
	case RequestNotInitialized:
		return "not_initialized"
	default:
		return "unknown"
	}
}

// Streamer pages one tier's bulk data in and out on behalf of a
// Context. It is a passive resource: every call returns
// immediately and completion is reported through the continuation,
// which may run on any thread. At most one request per tier is ever in
// flight; the Context enforces that before calling.
//
// The streamer owns the bulk-data buffer it returns from BulkData. The
// pointer must stay stable between allocation events: the Context
// publishes offsets into it through relaxed atomics and readers never
// re-fetch it mid-decode.
type Streamer interface {
	IsInitialized() bool

	// BulkData returns the tier's resident buffer, or nil until the
	// first successful stream-in.
	BulkData() []byte

	// StreamIn makes buf[offset:offset+size] resident. canAllocate is
	// true on the first request after initialization or a full
	// stream-out, telling the streamer it may (re)allocate its buffer.
	StreamIn(offset, size int, canAllocate bool, continuation func(success bool))

	// StreamOut releases buf[offset:offset+size]. canDeallocate is true
	// when this request evicts the last resident chunk.
	StreamOut(offset, size int, canDeallocate bool, continuation func(success bool))
}

// InMemoryStreamer is the default Streamer: it pages ranges of an
// already-resident source blob into a private buffer, completing every
// request synchronously. It is what a database context uses when the
// caller supplies no streamer of its own (the bulk data was built
// in-process and never left memory).
type InMemoryStreamer struct {
	src []byte
	buf []byte
}

// NewInMemoryStreamer returns a streamer serving ranges of src.
func NewInMemoryStreamer(src []byte) *InMemoryStreamer {
	return &InMemoryStreamer{src: src}
}

// IsInitialized implements Streamer.
func (s *InMemoryStreamer) IsInitialized() bool { return s.src != nil }

// BulkData implements Streamer.
func (s *InMemoryStreamer) BulkData() []byte { return s.buf }

// StreamIn implements Streamer.
func (s *InMemoryStreamer) StreamIn(offset, size int, canAllocate bool, continuation func(bool)) {
	if s.src == nil || offset < 0 || offset+size > len(s.src) {
		continuation(false)
		return
	}
	if s.buf == nil {
		if !canAllocate {
			continuation(false)
			return
		}
		s.buf = make([]byte, len(s.src))
	}
	copy(s.buf[offset:offset+size], s.src[offset:offset+size])
	continuation(true)
}

// StreamOut implements Streamer.
func (s *InMemoryStreamer) StreamOut(offset, size int, canDeallocate bool, continuation func(bool)) {
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
