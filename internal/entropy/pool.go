package entropy

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

const (
	// DefaultBufferCount is the number of buffers in a pool.
	DefaultBufferCount = 2
	// DefaultBufferSize is the capacity of each buffer in bytes.
	DefaultBufferSize = 1024
)

// FatalHandler is invoked when the entropy source fails during a fill.
type FatalHandler func(err error)

// Option configures a Pool.
type Option func(*Pool)

// WithBufferCount sets the number of buffers.
func WithBufferCount(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.bufferCount = n
		}
	}
}

// WithBufferSize sets the capacity of each buffer.
func WithBufferSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.bufferSize = n
		}
	}
}

// WithSource replaces crypto/rand as the entropy source.
func WithSource(r io.Reader) Option {
	return func(p *Pool) {
		if r != nil {
			p.source = r
		}
	}
}

// WithFatalHandler replaces the default panic on source failure.
func WithFatalHandler(h FatalHandler) Option {
	return func(p *Pool) {
		if h != nil {
			p.fatal = h
		}
	}
}

// buffer is one pre-filled region of random bytes.
type buffer struct {
	data      []byte
	p         int
	remaining int
	pending   bool
}

// BufferStats is a point-in-time view of one buffer.
type BufferStats struct {
	Remaining int  `json:"remaining"`
	Pending   bool `json:"pending"`
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	BufferCount int           `json:"bufferCount"`
	BufferSize  int           `json:"bufferSize"`
	SyncFills   uint64        `json:"syncFills"`
	AsyncFills  uint64        `json:"asyncFills"`
	Buffers     []BufferStats `json:"buffers"`
}

// Pool hands out random bytes from a rotating set of pre-filled buffers.
type Pool struct {
	bufferCount int
	bufferSize  int
	source      io.Reader
	fatal       FatalHandler

	mu      sync.Mutex
	buffers []*buffer

	syncFills  atomic.Uint64
	asyncFills atomic.Uint64
	inflight   sync.WaitGroup
}

// New creates a pool and starts the initial background fill of every buffer.
func New(opts ...Option) *Pool {
	p := &Pool{
		bufferCount: DefaultBufferCount,
		bufferSize:  DefaultBufferSize,
		source:      rand.Reader,
		fatal:       defaultFatal,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.buffers = make([]*buffer, p.bufferCount)
	for i := range p.buffers {
		p.buffers[i] = &buffer{pending: true}
	}

	p.mu.Lock()
	for i := range p.buffers {
		p.refillLocked(i)
	}
	p.mu.Unlock()

	return p
}

// Allocate fills dst[offset:offset+size] with random bytes.
//
// The first buffer holding at least size unread bytes serves the request.
// Buffers passed over on the way are refilled in the background. If no buffer
// can serve the request the region is filled directly from the source.
func (p *Pool) Allocate(dst []byte, offset, size int) {
	if size <= 0 {
		return
	}
	target := dst[offset : offset+size]

	p.mu.Lock()
	for i, b := range p.buffers {
		if b.remaining >= size {
			copy(target, b.data[b.p:b.p+size])
			b.p += size
			b.remaining -= size
			p.mu.Unlock()
			return
		}
		if !b.pending {
			p.refillLocked(i)
		}
	}
	p.mu.Unlock()

	if _, err := io.ReadFull(p.source, target); err != nil {
		p.fatal(fmt.Errorf("entropy: synchronous fill: %w", err))
		return
	}
	p.syncFills.Add(1)
}

// Read fills b entirely, making the pool usable as an io.Reader.
func (p *Pool) Read(b []byte) (int, error) {
	p.Allocate(b, 0, len(b))
	return len(b), nil
}

// Stats returns counters and per-buffer state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	bufs := make([]BufferStats, len(p.buffers))
	for i, b := range p.buffers {
		bufs[i] = BufferStats{Remaining: b.remaining, Pending: b.pending}
	}
	return Stats{
		BufferCount: p.bufferCount,
		BufferSize:  p.bufferSize,
		SyncFills:   p.syncFills.Load(),
		AsyncFills:  p.asyncFills.Load(),
		Buffers:     bufs,
	}
}

// SyncFills returns the number of requests served directly from the source.
func (p *Pool) SyncFills() uint64 {
	return p.syncFills.Load()
}

// AsyncFills returns the number of completed background refills.
func (p *Pool) AsyncFills() uint64 {
	return p.asyncFills.Load()
}

// Wait blocks until every background refill started so far has completed.
func (p *Pool) Wait() {
	p.inflight.Wait()
}

// refillLocked marks buffer i exhausted and fills it in the background.
// Caller must hold p.mu.
func (p *Pool) refillLocked(i int) {
	b := p.buffers[i]
	b.remaining = 0
	b.pending = true

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()

		data := make([]byte, p.bufferSize)
		if _, err := io.ReadFull(p.source, data); err != nil {
			p.fatal(fmt.Errorf("entropy: refill buffer %d: %w", i, err))
			return
		}

		p.mu.Lock()
		b.data = data
		b.p = 0
		b.remaining = p.bufferSize
		b.pending = false
		p.mu.Unlock()
		p.asyncFills.Add(1)
	}()
}

func defaultFatal(err error) {
	panic(err)
}
