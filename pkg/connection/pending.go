package connection

// PendingBuffer holds payloads that arrive for a peer before its handshake
// exists. Payloads are replayed once, in arrival order.
type PendingBuffer struct {
	frames  [][]byte
	limit   int
	dropped int
}

// NewPendingBuffer creates a buffer holding at most limit payloads.
// A limit of zero or less means unbounded.
func NewPendingBuffer(limit int) *PendingBuffer {
	return &PendingBuffer{limit: limit}
}

// Push appends a copy of data. It returns false if the buffer is full and
// the payload was dropped.
func (b *PendingBuffer) Push(data []byte) bool {
	if b.limit > 0 && len(b.frames) >= b.limit {
		b.dropped++
		return false
	}
	b.frames = append(b.frames, append([]byte(nil), data...))
	return true
}

// Len returns the number of buffered payloads.
func (b *PendingBuffer) Len() int {
	return len(b.frames)
}

// Dropped returns the number of payloads refused because the buffer was full.
func (b *PendingBuffer) Dropped() int {
	return b.dropped
}

// Drain returns the buffered payloads in arrival order and empties the
// buffer.
func (b *PendingBuffer) Drain() [][]byte {
	frames := b.frames
	b.frames = nil
	return frames
}
