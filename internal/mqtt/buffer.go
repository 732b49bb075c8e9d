package mqtt

import "time"

// queuedMsg is a payload held while the broker is unreachable.
type queuedMsg struct {
	payload string
	queued  time.Time
}

// ringBuffer is a fixed-capacity FIFO that keeps the newest payloads.
// Not safe for concurrent use; the caller synchronizes.
type ringBuffer struct {
	buf     []queuedMsg
	head    int // next write position
	count   int
	dropped int // overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]queuedMsg, capacity)}
}

// push appends msg, overwriting the oldest entry when full.
// Reports whether an entry was dropped.
func (r *ringBuffer) push(msg queuedMsg) bool {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if r.count == len(r.buf) {
		r.dropped++
		return true
	}
	r.count++
	return false
}

// drainAll returns the queued messages oldest first and how many were
// dropped since the previous drain, then empties the buffer.
func (r *ringBuffer) drainAll() ([]queuedMsg, int) {
	dropped := r.dropped
	r.dropped = 0
	if r.count == 0 {
		return nil, dropped
	}

	out := make([]queuedMsg, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}

	r.count = 0
	r.head = 0
	return out, dropped
}

// pushFront puts msgs ahead of the queued entries, keeping their order.
// When the total exceeds capacity the oldest entries are dropped.
func (r *ringBuffer) pushFront(msgs []queuedMsg) {
	dropped := r.dropped
	queued, _ := r.drainAll()
	r.dropped = dropped
	for _, m := range msgs {
		r.push(m)
	}
	for _, m := range queued {
		r.push(m)
	}
}

func (r *ringBuffer) len() int {
	return r.count
}
