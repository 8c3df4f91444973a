// Package libav is the sole boundary between this module and a real codec
// library (ffmpeg's libav* family). It generalizes cromedia's per-vendor
// cgo pattern (core/hardware/nvenc_linux.go's NVENC-only binding behind a
// `nvidia` build tag, with nvenc_stub.go's matching `!nvidia` stub) into a
// single `libav` tag covering demux, decode, scale, and encode together —
// because real libav already unifies hardware backends under one
// AVHWDeviceType enum rather than one SDK per vendor, so splitting this
// module into nvenc/vaapi/videotoolbox tags the way cromedia split its
// mocked NVENC binding would just be modeling a seam libav itself doesn't
// have. Decided here and recorded in DESIGN.md.
//
// Everything in this package is declared against small, cgo-free Go types
// (HWDeviceType, StreamInfo, EncodeParams, media.Frame) so that internal/decode and internal/encode
// can depend on an interface shape here without requiring cgo themselves;
// only this package and its `libav`-tagged implementation file touch C.
package libav

import "github.com/blackbird-aslough/edl2ffmpeg/internal/media"

// HWDeviceType names a hardware acceleration backend, mirroring libav's
// AVHWDeviceType values this module actually exercises.
type HWDeviceType int

const (
	HWDeviceNone HWDeviceType = iota
	HWDeviceCUDA
	HWDeviceVAAPI
	HWDeviceVideoToolbox
	HWDeviceQSV
)

func (t HWDeviceType) String() string {
	switch t {
	case HWDeviceCUDA:
		return "cuda"
	case HWDeviceVAAPI:
		return "vaapi"
	case HWDeviceVideoToolbox:
		return "videotoolbox"
	case HWDeviceQSV:
		return "qsv"
	default:
		return "none"
	}
}

// StreamInfo is what a Decoder exposes about the stream it opened, enough
// for the orchestrator to size its compositor and encoder.
type StreamInfo struct {
	Width, Height int
	Format        media.PixelFormat
	FrameRate     float64
	TimeBase      float64
	TotalFrames   int
	HWAccelerated bool
}

// Decoder is the minimal decode-side contract internal/decode drives.
// A real implementation wraps avformat/avcodec; DecodeNext returns
// apperr.DecodeEnd (via the implementation's error, checked with
// apperr.Is) when the stream is exhausted.
type Decoder interface {
	StreamInfo() StreamInfo
	SeekToByteOffset(offset int64) error
	DecodeNext() (*media.Frame, error)
	Close() error
}

// EncodeParams configures an Encoder at construction.
type EncodeParams struct {
	OutputPath     string
	Width, Height  int
	Format         media.PixelFormat
	FrameRate      float64
	Codec          string
	BitrateKbps    int
	Preset         string
	CRF            int
	HWDevice       HWDeviceType
	DisableBFrames bool
}

// Encoder is the minimal encode-side contract internal/encode drives.
type Encoder interface {
	WriteFrame(f *media.Frame) error
	Finalize() error
	Close() error
}

// TransferToSystemMemory and ReleaseFrame complete the GPU passthrough
// contract spec.md §4.4/§4.5 describes: a Decoder may return a
// media.Frame with Hardware set, whose Planes are not directly
// addressable (the real pixel data lives in a device surface referenced
// by HardwareHandle). TransferToSystemMemory downloads such a frame into
// an ordinary software-backed one for the compositor path; it is a no-op
// returning f unchanged when f.Hardware is already false. ReleaseFrame
// frees whatever device-side reference a hardware frame holds — callers
// must call it exactly once per hardware frame they're done with,
// whether that frame went through the GPU passthrough path untouched or
// was transferred and discarded. Both are implemented per build tag,
// like OpenDecoder/OpenEncoder (libav_cgo.go, libav_stub.go).
//
// DeviceContext is a reference-counted handle to a hardware device the
// codec library was initialized against, shared by every decoder/encoder
// that requests the same HWDeviceType (spec.md §9's "shared hardware
// device context" note, and §5's shared-resource policy).
type DeviceContext interface {
	Type() HWDeviceType
	Close() error
}
