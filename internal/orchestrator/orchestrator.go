// Package orchestrator implements spec.md §4.7: it walks the instruction
// stream one frame at a time, routes each frame through either a GPU
// passthrough path or the CPU compositor, feeds the result to the
// encoder, and reports a final summary. Per spec.md §5, frame processing
// is strictly single-threaded and sequential — no inter-frame pipelining
// — though opening per-URI decoders during setup is an I/O-bound step
// that doesn't touch that ordering and is parallelized below, adapting
// cromedia's core/scheduler.go WorkerPool for that one, narrower purpose.
package orchestrator

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/apperr"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/compositor"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/decode"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/edl"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/encode"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/hardware"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/instruction"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/libav"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/logging"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/media"
)

var log = logging.WithComponent("orchestrator")

// geometryEpsilon mirrors the compositor's own identity-geometry
// tolerance, reused here for requiresCPUProcessing per spec.md §4.7.
const geometryEpsilon = 1e-3

// Options configures a render run.
type Options struct {
	HWDevice      libav.HWDeviceType
	AllowFallback bool
	Encode        libav.EncodeParams
	FramePoolSize int
	Async         bool
}

// Summary is printed by the CLI on a successful run, per spec.md §7's
// "a successful run prints a summary (frames written, wall time, average
// fps)". RunID is logged on the orchestrator's "render starting" line and
// on the CLI's summary line; other log lines of the run do not carry it.
type Summary struct {
	RunID           string
	TotalFrames     int
	GPUPassthrough  int
	CPUProcessed    int
	GeneratedFrames int
	HardwareDevice  string
	WallTime        time.Duration
	AverageFPS      float64
}

// Orchestrator owns the per-source decoders, the shared hardware device
// manager, the compositor and the encoder for one render run.
type Orchestrator struct {
	e     *edl.EDL
	opts  Options
	runID string

	hwManager *hardware.Manager
	decoders  map[string]*decode.Decoder
	comp      *compositor.Compositor
	enc       *encode.Encoder

	// encoderUsesHardware is the "encoderUsesHardware" term of spec.md
	// §4.7's GPU passthrough gating formula: hardware encoding was
	// requested (opts.HWDevice is not HWDeviceNone), so the encoder can
	// accept a hardware frame without a CPU round-trip. It is set before
	// the device is acquired and stays true if that falls back to software.
	encoderUsesHardware bool
}

// New constructs an orchestrator for e, opening a decoder for every
// distinct source URI referenced by the EDL concurrently (setup only —
// frame processing itself stays sequential) and opening the compositor
// and encoder against the EDL's declared geometry.
func New(e *edl.EDL, opts Options) (*Orchestrator, error) {
	o := &Orchestrator{e: e, opts: opts, runID: uuid.NewString(), hwManager: hardware.New(), decoders: make(map[string]*decode.Decoder)}

	uris := distinctURIs(e)
	if err := o.openDecoders(uris); err != nil {
		o.Close()
		return nil, err
	}

	comp, err := compositor.New(e.Width, e.Height, media.PixelFormatYUV420P, opts.FramePoolSize)
	if err != nil {
		o.Close()
		return nil, err
	}
	o.comp = comp

	opts.Encode.Width, opts.Encode.Height = e.Width, e.Height
	opts.Encode.FrameRate = float64(e.FPS)
	opts.Encode.HWDevice = opts.HWDevice
	o.encoderUsesHardware = opts.HWDevice != libav.HWDeviceNone
	encHW, err := o.hwManager.Acquire(opts.HWDevice, opts.AllowFallback)
	if err != nil {
		o.Close()
		return nil, err
	}
	enc, err := encode.Open(opts.Encode, encHW)
	if err != nil {
		o.Close()
		return nil, err
	}
	o.enc = enc

	return o, nil
}

func distinctURIs(e *edl.EDL) []string {
	seen := map[string]bool{}
	var uris []string
	for _, c := range e.Clips {
		if ms, ok := c.Source.(edl.MediaSource); ok {
			if !seen[ms.URI] {
				seen[ms.URI] = true
				uris = append(uris, ms.URI)
			}
		}
	}
	return uris
}

// openResult carries one concurrent decoder-open outcome back to New.
type openResult struct {
	uri string
	dec *decode.Decoder
	err error
}

func (o *Orchestrator) openDecoders(uris []string) error {
	if len(uris) == 0 {
		return nil
	}

	jobs := make(chan string, len(uris))
	results := make(chan openResult, len(uris))
	workers := len(uris)
	if workers > 4 {
		workers = 4
	}

	for i := 0; i < workers; i++ {
		go func() {
			for uri := range jobs {
				hw, err := o.hwManager.Acquire(o.opts.HWDevice, o.opts.AllowFallback)
				if err != nil {
					results <- openResult{uri: uri, err: err}
					continue
				}
				dec, err := decode.Open(uri, o.opts.HWDevice, hw)
				results <- openResult{uri: uri, dec: dec, err: err}
			}
		}()
	}
	for _, uri := range uris {
		jobs <- uri
	}
	close(jobs)

	var firstErr error
	for range uris {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		o.decoders[r.uri] = r.dec
	}
	return firstErr
}

// Run walks every frame of the EDL's instruction stream and writes it to
// the encoder, returning a Summary on success.
func (o *Orchestrator) Run() (summary Summary, err error) {
	gen := instruction.New(o.e)
	it := gen.Iterator()

	summary.RunID = o.runID
	summary.TotalFrames = gen.TotalFrames()
	summary.HardwareDevice = o.opts.HWDevice.String()

	log.Info().Str("run_id", o.runID).Int("total_frames", summary.TotalFrames).Msg("render starting")

	started := time.Now()
	defer func() {
		summary.WallTime = time.Since(started)
		if summary.WallTime > 0 {
			framesWritten := summary.GPUPassthrough + summary.CPUProcessed + summary.GeneratedFrames
			summary.AverageFPS = float64(framesWritten) / summary.WallTime.Seconds()
		}
	}()

	for it.Next() {
		inst := it.Instruction()
		handle, processedOnCPU, err := o.processFrame(inst)
		if err != nil {
			return summary, err
		}

		if inst.Kind == instruction.KindGenerateColor {
			summary.GeneratedFrames++
		} else if processedOnCPU {
			summary.CPUProcessed++
		} else {
			summary.GPUPassthrough++
		}

		var writeErr error
		if o.opts.Async {
			writeErr = o.enc.WriteFrameAsync(handle.Frame)
		} else {
			writeErr = o.enc.WriteFrame(handle.Frame)
		}
		handle.Release()
		if writeErr != nil {
			return summary, writeErr
		}
	}

	if err := o.enc.Finalize(); err != nil {
		return summary, err
	}
	return summary, nil
}

// processFrame routes one instruction through either the GPU passthrough
// path (decoded hardware frame handed straight to the encoder, no CPU
// touch) or the compositor, per spec.md §4.7's gating formula
// useGPUPassthrough = decoder.isUsingHardware ∧ encoderUsesHardware ∧
// ¬requiresCPUProcessing ∧ kind=DrawFrame. A hardware frame that fails the
// gate is downloaded to system memory before reaching the compositor,
// since Planes on a Hardware frame aren't addressable pixel data.
func (o *Orchestrator) processFrame(inst instruction.Instruction) (handle *framepoolHandle, processedOnCPU bool, err error) {
	var input *media.Frame

	if inst.Kind == instruction.KindDrawFrame {
		dec, ok := o.decoders[inst.URI]
		if !ok {
			return nil, false, apperr.New(apperr.IoOpenFailure, inst.URI, "no decoder open for source")
		}
		input, err = dec.FrameAt(inst.SourceFrameNumber)
		if err != nil && !apperr.Is(err, apperr.DecodeEnd) {
			return nil, false, err
		}
	}

	if o.gpuPassthroughEligible(inst, input) {
		h := &framepoolHandle{Frame: input, release: func() { libav.ReleaseFrame(input) }}
		return h, false, nil
	}

	if input != nil && input.Hardware {
		// Compositing needs addressable pixels; download once and release
		// the device-side reference immediately, whether or not the
		// transfer succeeds.
		transferred, terr := libav.TransferToSystemMemory(input)
		libav.ReleaseFrame(input)
		if terr != nil {
			return nil, false, terr
		}
		input = transferred
	}

	h, err := o.comp.Process(input, inst)
	if err != nil {
		return nil, false, err
	}
	return &framepoolHandle{Frame: h.Frame, release: h.Release}, true, nil
}

// framepoolHandle adapts both framepool.Handle and a bare passthrough
// frame behind one release-on-completion shape for Run's loop.
type framepoolHandle struct {
	Frame   *media.Frame
	release func()
}

func (h *framepoolHandle) Release() { h.release() }

// gpuPassthroughEligible implements spec.md §4.7's full gating formula:
// useGPUPassthrough = decoder.isUsingHardware ∧ encoderUsesHardware ∧
// ¬requiresCPUProcessing ∧ kind=DrawFrame. decoder.isUsingHardware is
// input.Hardware (set by the decoder side when it handed back a
// device-surface frame); kind=DrawFrame is folded into requiresCPUProcessing
// (anything else always requires CPU processing).
func (o *Orchestrator) gpuPassthroughEligible(inst instruction.Instruction, input *media.Frame) bool {
	return input != nil && input.Hardware && o.encoderUsesHardware && !requiresCPUProcessing(inst)
}

// requiresCPUProcessing implements the ¬requiresCPUProcessing ∧ kind=DrawFrame
// half of spec.md §4.7's gating formula: a frame needs CPU compositing if
// its fade isn't ~1, it carries any effects, its geometry isn't within
// geometryEpsilon of identity, or it isn't a plain DrawFrame
// (GenerateColor/Transition/NoOp all go through the compositor for their
// own reasons — only an untouched DrawFrame is GPU-passthrough eligible).
// The remaining two terms, decoder.isUsingHardware and encoderUsesHardware,
// are checked in gpuPassthroughEligible against the actual frame and
// Orchestrator.encoderUsesHardware.
func requiresCPUProcessing(inst instruction.Instruction) bool {
	if inst.Kind != instruction.KindDrawFrame {
		return true
	}
	if math.Abs(inst.Fade-1.0) > geometryEpsilon {
		return true
	}
	if len(inst.Effects) > 0 {
		return true
	}
	g := inst.Geometry
	if math.Abs(g.PanX) > geometryEpsilon || math.Abs(g.PanY) > geometryEpsilon {
		return true
	}
	if math.Abs(g.ZoomX-1.0) > geometryEpsilon || math.Abs(g.ZoomY-1.0) > geometryEpsilon {
		return true
	}
	if math.Abs(g.Rotation) > geometryEpsilon {
		return true
	}
	if g.Flip {
		return true
	}
	return false
}

// Close tears down every open decoder and then the encoder (so any frames
// in flight are released back to their pools/device contexts), and
// checks the hardware manager last: its refcounts drop through the Close
// calls above, and any context still active is logged as a warning,
// matching spec.md §4.5's teardown ordering contract.
func (o *Orchestrator) Close() error {
	var firstErr error
	for _, dec := range o.decoders {
		if err := dec.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if o.enc != nil {
		if err := o.enc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if o.hwManager != nil && o.hwManager.Active() > 0 {
		log.Warn().Int("active", o.hwManager.Active()).Msg("hardware contexts still active at teardown")
	}
	return firstErr
}
