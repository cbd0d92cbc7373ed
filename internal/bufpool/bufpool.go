// Package bufpool provides a sync.Pool-backed []byte pool for the
// transport layer, reused across message frames to avoid a fresh
// allocation per read the way the teacher protocol's buffers package did
// for its flate-compressed reader/writer pair.
package bufpool

import "sync"

// Pool hands out byte slices sized to the caller's request, reusing
// backing arrays across Get/Put cycles.
type Pool struct {
	pool sync.Pool
}

// New returns a ready-to-use Pool.
func New() *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, 4096)
				return &buf
			},
		},
	}
}

// Get returns a slice of exactly size bytes. Its contents are not zeroed.
func (p *Pool) Get(size int) []byte {
	ptr := p.pool.Get().(*[]byte)
	buf := *ptr
	if cap(buf) < size {
		buf = make([]byte, size)
	} else {
		buf = buf[:size]
	}
	return buf
}

// Put returns buf to the pool for reuse. Callers must not use buf after
// calling Put.
func (p *Pool) Put(buf []byte) {
	buf = buf[:0]
	p.pool.Put(&buf)
}
