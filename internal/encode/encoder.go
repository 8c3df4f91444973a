// Package encode implements the encoder adapter from spec.md §4.5: setup,
// the B-frame disabling policy for hardware encoders, an async write mode
// with an in-flight frame counter, and the exact teardown ordering
// contract (finalize/flush before device context release). Like
// internal/decode, it depends on the small libav.Encoder interface rather
// than cgo directly.
package encode

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/apperr"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/hardware"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/libav"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/logging"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/media"
)

var log = logging.WithComponent("encode")

// hardwareEncoderSubstrings names the ffmpeg hardware-encoder-wrapper
// naming convention the B-frame policy keys off (DESIGN.md decision 3).
var hardwareEncoderSubstrings = []string{"nvenc", "cuvid", "vaapi", "qsv"}

func isHardwareEncoderName(codec string) bool {
	lower := strings.ToLower(codec)
	for _, s := range hardwareEncoderSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// maxFramesInFlight bounds how many frames Encoder.WriteFrameAsync will
// let queue on e.frames before WriteFrameAsync blocks on the drain
// goroutine catching up, per spec.md §4.5's async mode.
const maxFramesInFlight = 8

// Encoder wraps a libav.Encoder with the async in-flight accounting and
// teardown ordering spec.md §4.5 requires.
//
// WriteFrameAsync hands frames to a single background goroutine (started by
// Open, stopped by Finalize/Close) over the buffered channel frames; that
// goroutine's sendFrameAsync/receivePacketsAsync loop runs concurrently
// with whatever the caller does next (decode and compose the following
// frame), rather than blocking the caller on the codec library's own write.
type Encoder struct {
	enc    libav.Encoder
	hw     *hardware.Handle
	params libav.EncodeParams

	frames   chan *media.Frame // buffered, capacity maxFramesInFlight
	drainErr chan error        // capacity 1, set by drain on first failure
	drained  chan struct{}     // closed once drain's range over frames returns
	stopOnce sync.Once

	mu        sync.Mutex
	finalized bool
}

// Open configures and opens an encoder for the given parameters. If
// params.Codec names a hardware encoder, DisableBFrames is forced on
// regardless of the caller's setting, matching the substring policy above.
func Open(params libav.EncodeParams, hw *hardware.Handle) (*Encoder, error) {
	if isHardwareEncoderName(params.Codec) {
		params.DisableBFrames = true
	}

	enc, err := libav.OpenEncoder(params)
	if err != nil {
		return nil, err
	}
	log.Info().Str("codec", params.Codec).Int("bitrate_kbps", params.BitrateKbps).
		Bool("disable_bframes", params.DisableBFrames).Msg("opened encoder")

	e := &Encoder{
		enc:      enc,
		hw:       hw,
		params:   params,
		frames:   make(chan *media.Frame, maxFramesInFlight),
		drainErr: make(chan error, 1),
		drained:  make(chan struct{}),
	}
	go e.drain()
	return e, nil
}

// drain is the sendFrameAsync/receivePacketsAsync goroutine: it owns the
// only call site of the underlying libav.Encoder.WriteFrame for frames
// submitted through WriteFrameAsync, so that call's blocking I/O overlaps
// with the caller's next decode/compose step instead of serializing with
// it. After the first failure it keeps ranging over frames (discarding
// them) purely to keep WriteFrameAsync from blocking forever on a full
// channel; the recorded error is surfaced by the next WriteFrameAsync or
// by Finalize.
func (e *Encoder) drain() {
	defer close(e.drained)
	failed := false
	for f := range e.frames {
		if failed {
			continue
		}
		if err := e.enc.WriteFrame(f); err != nil {
			select {
			case e.drainErr <- apperr.Wrap(apperr.EncodeFatal, "", err):
			default:
			}
			failed = true
		}
	}
}

// stopDrain closes frames exactly once, letting drain's range loop return,
// and waits for it to finish. Safe to call from both Finalize and Close.
func (e *Encoder) stopDrain() {
	e.stopOnce.Do(func() { close(e.frames) })
	<-e.drained
}

// WriteFrame writes a frame synchronously, blocking until the codec
// library has accepted it.
func (e *Encoder) WriteFrame(f *media.Frame) error {
	if err := e.enc.WriteFrame(f); err != nil {
		return apperr.Wrap(apperr.EncodeFatal, "", err)
	}
	return nil
}

// WriteFrameAsync hands f to the drain goroutine and returns as soon as
// it's queued, per spec.md §4.5's async mode. It blocks only if
// framesInFlight has reached maxFramesInFlight, to bound memory rather
// than to serialize submission with the codec library's write.
func (e *Encoder) WriteFrameAsync(f *media.Frame) error {
	select {
	case err := <-e.drainErr:
		return err
	default:
	}
	e.frames <- f
	return nil
}

// FramesInFlight reports the current async queue depth.
func (e *Encoder) FramesInFlight() int {
	return len(e.frames)
}

// Finalize drains the async queue, stops the drain goroutine, surfaces any
// write failure it recorded, then flushes any buffered frames (B-frame
// reordering, encoder lookahead). Must be called exactly once, before
// Close, per spec.md §4.5's teardown ordering contract: only once this
// returns is it safe to release the device context the encoder borrowed.
func (e *Encoder) Finalize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return fmt.Errorf("encode: Finalize called twice")
	}
	e.finalized = true

	e.stopDrain()
	select {
	case err := <-e.drainErr:
		return err
	default:
	}

	if err := e.enc.Finalize(); err != nil {
		return apperr.Wrap(apperr.EncodeFatal, "", err)
	}
	return nil
}

// Close releases the encoder and its hardware handle. It must run after
// Finalize; calling Close before Finalize risks dropping buffered frames,
// so Close itself does not call Finalize on the caller's behalf. It does
// stop the drain goroutine if Finalize never ran, so Close never leaks it.
func (e *Encoder) Close() error {
	e.stopDrain()
	err := e.enc.Close()
	if e.hw != nil {
		e.hw.Release()
	}
	return err
}
