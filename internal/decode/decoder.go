// Package decode implements the decoder adapter from spec.md §4.4:
// construction/probing, a seek policy that chooses between a linear walk
// and a keyframe seek, a Closed/Open/Seeking/EndOfStream state machine,
// and a GPU-frame passthrough path. It talks to internal/libav through the
// small Decoder interface rather than importing cgo directly, so the seek
// policy and state machine are unit-testable against a fake.
package decode

import (
	"fmt"
	"math"
	"os"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/apperr"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/container"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/hardware"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/libav"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/logging"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/media"
)

var log = logging.WithComponent("decode")

// State is the decoder adapter's lifecycle per spec.md §4.4:
// Closed -> Open(frame=-1) -> (Seeking -> Open)* -> EndOfStream.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateSeeking
	StateEndOfStream
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSeeking:
		return "seeking"
	case StateEndOfStream:
		return "end-of-stream"
	default:
		return "closed"
	}
}

// linearWalkThreshold is the number of frames ahead within which the
// decoder keeps decoding forward rather than issuing a keyframe seek,
// per spec.md §4.4's seek policy.
const linearWalkThreshold = 60

// Decoder adapts one opened source URI: it tracks the current decode
// position and decides, on each request, whether to walk forward or seek.
type Decoder struct {
	uri    string
	dec    libav.Decoder
	hw     *hardware.Handle
	tracks []container.Track
	video  *container.Track

	state        State
	currentFrame int // -1 before the first decode
	lastSeek     SeekReport
}

// Open probes uri's container structure, opens the stream through libav
// (optionally against a shared hardware device context), and returns a
// Decoder in StateOpen with currentFrame == -1, matching spec.md §4.4's
// "construction probes stream info ... state becomes Open, current frame
// index -1 (nothing decoded yet)".
func Open(uri string, hwType libav.HWDeviceType, hw *hardware.Handle) (*Decoder, error) {
	d := &Decoder{uri: uri, hw: hw, state: StateClosed, currentFrame: -1}

	if tracks, err := probeContainer(uri); err != nil {
		log.Debug().Str("uri", uri).Err(err).Msg("container probe failed, seek policy will fall back to linear walk")
	} else {
		d.AttachTracks(tracks)
	}

	var hwCtx libav.DeviceContext
	if hw != nil {
		hwCtx = hw.Context()
	}
	dec, err := libav.OpenDecoder(uri, hwType, hwCtx)
	if err != nil {
		return nil, err
	}
	d.dec = dec
	d.state = StateOpen

	log.Debug().Str("uri", uri).Interface("stream_info", dec.StreamInfo()).Msg("opened decoder")
	return d, nil
}

// probeContainer opens uri as a local file and walks its MP4 box structure
// to recover per-track geometry, timing and keyframe offsets, so the seek
// policy in seekTo and the edit-list correction in editListOffsetFrames
// have a structural index to work from. uri values libav resolves to a
// non-local protocol (network sources, device URIs) simply fail os.Open
// and the decoder falls back to the no-index linear walk in seekTo.
func probeContainer(uri string) ([]container.Track, error) {
	f, err := os.Open(uri)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	atoms, err := container.Probe(f)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", uri, err)
	}
	moov := container.Find(atoms, "moov")
	if moov == nil {
		return nil, fmt.Errorf("no moov atom in %s", uri)
	}

	return container.NewDemuxer(f).ExtractTracks(*moov)
}

// StreamInfo exposes the opened stream's probed geometry and timing.
func (d *Decoder) StreamInfo() libav.StreamInfo {
	return d.dec.StreamInfo()
}

// State reports the decoder's current lifecycle state.
func (d *Decoder) State() State { return d.state }

// FrameAt decodes (walking or seeking as needed) and returns the frame at
// the given zero-based frame index, implementing spec.md §4.4's decode
// operation and seek policy in one call: if target is within
// linearWalkThreshold frames ahead of the current position, decode
// forward and discard; otherwise issue a byte-offset seek to the nearest
// keyframe at or before target and walk forward from there. A repeat
// request for the frame last decoded also seeks, as no copy of it is kept.
func (d *Decoder) FrameAt(target int) (*media.Frame, error) {
	if d.state == StateEndOfStream {
		return nil, apperr.New(apperr.DecodeEnd, d.uri, "decoder already at end of stream")
	}
	if target < 0 {
		return nil, fmt.Errorf("decode: negative frame index %d", target)
	}
	target += d.editListOffsetFrames()

	ahead := target - d.currentFrame
	if ahead <= 0 || ahead > linearWalkThreshold {
		if err := d.seekTo(target); err != nil {
			return nil, err
		}
	}

	var frame *media.Frame
	for d.currentFrame < target {
		f, err := d.decodeOne()
		if err != nil {
			return nil, err
		}
		frame = f
	}
	return frame, nil
}

func (d *Decoder) decodeOne() (*media.Frame, error) {
	f, err := d.dec.DecodeNext()
	if err != nil {
		if apperr.Is(err, apperr.DecodeEnd) {
			d.state = StateEndOfStream
		}
		return nil, err
	}
	d.currentFrame++
	return f, nil
}

// seekTo finds the nearest keyframe at or before target's presentation
// time and issues a byte-offset seek, per spec.md §4.4's seek policy.
// Without a probed container track (e.g. a generated or fake source) it
// falls back to a linear walk from the start.
func (d *Decoder) seekTo(target int) error {
	d.state = StateSeeking
	info := d.dec.StreamInfo()

	if d.video == nil || len(d.video.Samples) == 0 {
		// No structural index available: reset to the start and walk.
		if err := d.dec.SeekToByteOffset(0); err != nil {
			return apperr.Wrap(apperr.IoOpenFailure, d.uri, err)
		}
		d.currentFrame = -1
		d.state = StateOpen
		return nil
	}

	targetSeconds := float64(target) / info.FrameRate
	sample, ok := d.video.NearestKeyframeAtOrBefore(targetSeconds)
	if !ok {
		sample = d.video.Samples[0]
	}
	if err := d.dec.SeekToByteOffset(sample.Offset); err != nil {
		return apperr.Wrap(apperr.IoOpenFailure, d.uri, err)
	}
	landedFrame := int(math.Round(sample.Time * info.FrameRate))
	d.currentFrame = landedFrame - 1
	d.state = StateOpen

	report := SeekReport{
		URI:            d.uri,
		RequestedFrame: target,
		LandedFrame:    landedFrame,
		ByteOffset:     sample.Offset,
		DeltaFrames:    target - landedFrame,
	}
	if report.DeltaFrames > 1 {
		log.Debug().Str("uri", d.uri).Int("requested", target).Int("landed", landedFrame).
			Int("delta_frames", report.DeltaFrames).Msg("seek landed more than one frame before target")
	}
	d.lastSeek = report
	return nil
}

// SeekReport records how far a keyframe-aligned seek landed from the
// frame it was asked for, adapted from cromedia's core/cutter.go
// CutReport (requested vs. actual start/end, keyframe delta) but
// repurposed from "report a cut" to "report a seek".
type SeekReport struct {
	URI            string
	RequestedFrame int
	LandedFrame    int
	ByteOffset     int64
	DeltaFrames    int
}

// LastSeek returns the most recent seek's report, or the zero value if
// this decoder has never had to seek.
func (d *Decoder) LastSeek() SeekReport { return d.lastSeek }

// editListOffsetFrames converts the attached video track's elst media_time
// (if any) into a frame-count correction, so a requested source frame
// number lines up with the container's own edit list rather than its raw
// sample order. Supplements spec.md §4.4, which doesn't mention edit
// lists; grounded on original_source's edit-list-aware decoder and on
// cromedia's core/demux.go ParseElst/MediaOffset.
func (d *Decoder) editListOffsetFrames() int {
	if d.video == nil || d.video.MediaOffset == 0 || d.video.Timescale == 0 {
		return 0
	}
	info := d.dec.StreamInfo()
	offsetSeconds := float64(d.video.MediaOffset) / float64(d.video.Timescale)
	return int(math.Round(offsetSeconds * info.FrameRate))
}

// AttachTracks lets the caller supply a probed container track list (from
// internal/container), enabling the keyframe-aware seek path above. Safe
// to skip for sources without a demuxable container.
func (d *Decoder) AttachTracks(tracks []container.Track) {
	d.tracks = tracks
	for i := range tracks {
		if tracks[i].Type == container.TrackVideo {
			d.video = &tracks[i]
			return
		}
	}
}

// Close releases the underlying decoder and any hardware device handle.
func (d *Decoder) Close() error {
	if d.hw != nil {
		d.hw.Release()
	}
	if d.dec == nil {
		return nil
	}
	return d.dec.Close()
}
