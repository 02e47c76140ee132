package cache

import "testing"

func TestBufferPoolHandsOutDistinctBuffers(t *testing.T) {
	pool := NewFixedSizeBufferPool(4, 16)

	seen := map[uint16]bool{}

	for i := 0; i < 4; i++ {
		buf, id := pool.Get()

		if len(buf) != 16 {
			t.Fatalf("expected 16 byte buffer but got %d", len(buf))
		}
		if seen[id] {
			t.Fatalf("buffer %d handed out twice", id)
		}
		seen[id] = true

		// writes stay inside the buffer's arena slot
		if cap(buf) != 16 {
			t.Errorf("buffer %d capacity leaks into the next slot", id)
		}
	}
}

func TestBufferPoolReuse(t *testing.T) {
	pool := NewFixedSizeBufferPool(1, 8)

	buf, id := pool.Get()
	buf[0] = 42
	pool.Return(id)

	again, _ := pool.Get()
	if again[0] != 42 {
		t.Errorf("expected the same arena slot back")
	}
}
