// Package hardware owns the process-wide, refcounted hardware device
// context spec.md §9 calls for ("shared hardware device context... reused
// across decoders/encoders targeting the same device rather than opened
// per-stream"). Grounded on cromedia's core/hardware build-tag split
// (nvenc_linux.go vs nvenc_stub.go) for the construction-can-fail/fallback
// shape, generalized to the single `libav` tag decided in internal/libav,
// and on core/scheduler.go's mutex-guarded counters for the refcounting
// pattern itself.
package hardware

import (
	"sync"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/apperr"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/libav"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/logging"
)

var log = logging.WithComponent("hardware")

// Manager hands out references to a shared libav.DeviceContext per
// HWDeviceType, opening it lazily on first request and tearing it down
// once the last holder releases it.
type Manager struct {
	mu       sync.Mutex
	contexts map[libav.HWDeviceType]*sharedContext
}

type sharedContext struct {
	ctx      libav.DeviceContext
	refCount int
}

// New returns an empty manager. One Manager is expected to live for the
// lifetime of a single render run (constructed by the orchestrator).
func New() *Manager {
	return &Manager{contexts: make(map[libav.HWDeviceType]*sharedContext)}
}

// Handle is a caller-owned reference to a shared device context. Release
// must be called exactly once.
type Handle struct {
	mgr *Manager
	typ libav.HWDeviceType
	ctx libav.DeviceContext
}

// Context returns the underlying device context, or nil for HWDeviceNone.
func (h *Handle) Context() libav.DeviceContext { return h.ctx }

// Release drops this handle's reference; the underlying context is closed
// once no handles remain.
func (h *Handle) Release() {
	if h == nil || h.typ == libav.HWDeviceNone {
		return
	}
	h.mgr.release(h.typ)
}

// Acquire returns a Handle to the shared device context for typ, opening
// it if this is the first request. HWDeviceNone always succeeds with a
// nil-context handle (pure software path, no device to share).
func (m *Manager) Acquire(typ libav.HWDeviceType, allowFallback bool) (*Handle, error) {
	if typ == libav.HWDeviceNone {
		return &Handle{mgr: m, typ: typ}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sc, ok := m.contexts[typ]; ok {
		sc.refCount++
		return &Handle{mgr: m, typ: typ, ctx: sc.ctx}, nil
	}

	ctx, err := libav.OpenDeviceContext(typ)
	if err != nil {
		if allowFallback {
			log.Warn().Str("device", typ.String()).Err(err).Msg("hardware init failed, falling back to software")
			return &Handle{mgr: m, typ: libav.HWDeviceNone}, nil
		}
		return nil, apperr.Wrap(apperr.HardwareInitFailure, typ.String(), err)
	}

	m.contexts[typ] = &sharedContext{ctx: ctx, refCount: 1}
	log.Info().Str("device", typ.String()).Msg("opened shared hardware device context")
	return &Handle{mgr: m, typ: typ, ctx: ctx}, nil
}

func (m *Manager) release(typ libav.HWDeviceType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc, ok := m.contexts[typ]
	if !ok {
		return
	}
	sc.refCount--
	if sc.refCount <= 0 {
		if err := sc.ctx.Close(); err != nil {
			log.Warn().Str("device", typ.String()).Err(err).Msg("error closing device context")
		}
		delete(m.contexts, typ)
		log.Info().Str("device", typ.String()).Msg("closed shared hardware device context")
	}
}

// Active reports how many distinct device types currently have an open
// shared context. Used by the orchestrator's teardown check.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}
