// Package ringbuf implements the growable byte buffer the streaming
// driver (internal/parseio) feeds from a blocking source. It is a
// single-producer single-consumer buffer: one goroutine fills it from
// a Source, the same goroutine consumes decoded prefixes from it
// (spec §3/§4.1/§5).
//
// The shape — an explicit read position and write position into one
// backing array, reclaimed by shifting or reallocating rather than
// wrapping — is grounded in the position/Head/Tail bookkeeping of the
// teacher's media/slice/queue.go ring (Buf/BufPos), adapted from a ring
// of av.Packet values that drops old entries under pressure to a ring
// of raw bytes that must never drop a byte: growth and shift are new,
// written directly against the §4.1 contract.
package ringbuf

// ChunkSize is the minimum growth increment applied when more room is
// needed and a shift alone would not free enough (spec §4.1).
const ChunkSize = 10240

// Buffer is the growable ring buffer of spec §3: it owns a contiguous
// byte region split into a consumed prefix, an unread middle region,
// and a writable tail, preserving
// position + available_data + available_space == capacity.
type Buffer struct {
	buf []byte
	pos int // read position: buf[pos:end] is unread data
	end int // write position: buf[end:] is writable space
}

// New allocates a Buffer with the given starting capacity.
func New(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, capacity)}
}

// Data returns the unread byte slice. The slice aliases the Buffer's
// backing array and is only valid until the next Fill/Consume/Shift/Grow.
func (b *Buffer) Data() []byte { return b.buf[b.pos:b.end] }

// Space returns the writable tail the producer may fill.
func (b *Buffer) Space() []byte { return b.buf[b.end:] }

// Available reports the number of unread bytes.
func (b *Buffer) Available() int { return b.end - b.pos }

// AvailableSpace reports the number of writable bytes remaining.
func (b *Buffer) AvailableSpace() int { return len(b.buf) - b.end }

// Capacity reports the size of the backing array.
func (b *Buffer) Capacity() int { return len(b.buf) }

// Fill commits n bytes written into Space() as now-readable data.
// Precondition: n <= len(Space()).
func (b *Buffer) Fill(n int) {
	if n < 0 || n > b.AvailableSpace() {
		panic("ringbuf: Fill out of range")
	}
	b.end += n
}

// Consume advances the read position past n now-decoded bytes.
// Precondition: n <= Available().
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.Available() {
		panic("ringbuf: Consume out of range")
	}
	b.pos += n
	if b.pos == b.end {
		// Nothing left to read: reset to offset 0 so the next Fill
		// has the whole backing array as Space, same effect as Shift
		// on an empty buffer but without the copy.
		b.pos, b.end = 0, 0
	}
}

// Shift relocates the unread region to offset 0, reclaiming the space
// occupied by already-consumed bytes without reallocating.
func (b *Buffer) Shift() {
	if b.pos == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.pos:b.end])
	b.pos = 0
	b.end = n
}

// Grow reallocates the backing array to newCap, preserving unread data.
// Precondition: newCap >= Available().
func (b *Buffer) Grow(newCap int) {
	if newCap < b.Available() {
		panic("ringbuf: Grow would truncate unread data")
	}
	nb := make([]byte, newCap)
	n := copy(nb, b.buf[b.pos:b.end])
	b.buf = nb
	b.pos = 0
	b.end = n
}

// MakeRoom applies the §4.1 policy for reclaiming space ahead of a
// read: shift if the consumed prefix plus existing space is already
// enough headroom, otherwise grow by a full ChunkSize.
func (b *Buffer) MakeRoom() {
	if b.pos+b.AvailableSpace() >= ChunkSize {
		b.Shift()
	} else {
		b.Grow(b.Capacity() + ChunkSize)
	}
}
