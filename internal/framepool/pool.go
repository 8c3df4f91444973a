// Package framepool implements the frame buffer pool from spec.md §4.1:
// fixed-geometry pixel buffers, recycled through a handle whose Release
// returns it to the pool (or frees it once the pool is full), grounded on
// utils::FrameBufferPool in original_source/src/utils/FrameBuffer.cpp and
// generalized past cromedia's single-purpose byte buffers.
package framepool

import (
	"sync"

	"github.com/google/uuid"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/logging"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/media"
)

// Pool hands out media.Frame buffers of a fixed geometry and recycles them
// on release. Safe for concurrent use: acquire/release share one mutex
// guarding the available queue and the allocation counter, per spec.md
// §4.1's "one mutex guarding the available queue and the allocation
// counter".
var log = logging.WithComponent("framepool")

type Pool struct {
	mu        sync.Mutex
	width     int
	height    int
	format    media.PixelFormat
	poolSize  int
	available []*media.Frame
	allocated int
	warned    int
}

// New constructs a pool for the given geometry, pre-allocating up to
// poolSize/2 frames (at most 5) the way FrameBufferPool's constructor does.
func New(width, height int, format media.PixelFormat, poolSize int) (*Pool, error) {
	p := &Pool{width: width, height: height, format: format, poolSize: poolSize}

	preallocate := poolSize / 2
	if preallocate > 5 {
		preallocate = 5
	}
	for i := 0; i < preallocate; i++ {
		f, err := media.NewFrame(width, height, format)
		if err != nil {
			return nil, err
		}
		p.allocated++
		p.available = append(p.available, f)
	}

	log.Debug().
		Int("width", width).Int("height", height).
		Str("format", format.String()).
		Int("preallocated", len(p.available)).
		Msg("frame buffer pool initialized")

	return p, nil
}

// Handle is a pool-owned frame on loan to a consumer. Release returns the
// frame to the pool if capacity permits, otherwise it is discarded — the
// "custom-release handle" design note in spec.md §9: the handle holds a
// non-owning reference back to the pool, which outlives all outstanding
// handles by construction.
type Handle struct {
	pool     *Pool
	ID       string
	Frame    *media.Frame
	released bool
}

// Release returns the frame to the pool. Safe to call more than once;
// subsequent calls are no-ops.
func (h *Handle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true
	h.pool.release(h.Frame)
}

// Acquire returns a writable frame of the pool's geometry, reusing a
// recycled frame when one is available.
func (p *Pool) Acquire() (*Handle, error) {
	p.mu.Lock()
	if n := len(p.available); n > 0 {
		f := p.available[n-1]
		p.available = p.available[:n-1]
		p.mu.Unlock()
		f.Reset()
		return &Handle{pool: p, ID: uuid.NewString(), Frame: f}, nil
	}
	p.mu.Unlock()

	f, err := media.NewFrame(p.width, p.height, p.format)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.allocated++
	over := p.allocated > p.poolSize*2
	warnCount := p.warned
	if over && warnCount < 5 {
		p.warned++
	}
	p.mu.Unlock()

	if over && warnCount < 5 {
		log.Warn().
			Int("allocated", p.allocated).
			Int("pool_size", p.poolSize).
			Msg("frame buffer pool over-allocating")
	}

	return &Handle{pool: p, ID: uuid.NewString(), Frame: f}, nil
}

func (p *Pool) release(f *media.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.available) < p.poolSize {
		p.available = append(p.available, f)
		return
	}
	p.allocated--
}

// Geometry returns the pool's fixed width, height and pixel format.
func (p *Pool) Geometry() (width, height int, format media.PixelFormat) {
	return p.width, p.height, p.format
}

// Allocated returns the number of frames currently allocated by the pool
// (handed out plus idle), for tests and diagnostics.
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

// Available returns the number of idle frames currently held by the pool.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}
