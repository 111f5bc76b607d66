package texproc

import "sync"

// tailBuffer is a bounded write sink that keeps the most recent bytes.
// Writes never fail; once the limit is exceeded the oldest bytes are
// dropped. Safe for concurrent writes (exec wires stdout and stderr from
// separate goroutines when both are non-*os.File sinks).
type tailBuffer struct {
	mu      sync.Mutex
	buf     []byte
	limit   int
	dropped int64
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	if n >= t.limit {
		// Single write larger than the whole window: keep its tail.
		t.dropped += int64(len(t.buf)) + int64(n-t.limit)
		t.buf = append(t.buf[:0], p[n-t.limit:]...)
		return n, nil
	}

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.dropped += int64(over)
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// Dropped returns the number of bytes discarded from the head.
func (t *tailBuffer) Dropped() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}
