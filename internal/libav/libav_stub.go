//go:build !libav

package libav

import (
	"github.com/blackbird-aslough/edl2ffmpeg/internal/apperr"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/media"
)

// Without the `libav` build tag there is no codec library linked in, so
// every entry point fails with CodecUnavailable — the same contract
// cromedia's nvenc_stub.go gives callers of NewNVENCTranscoder when built
// without `-tags nvidia`.

// OpenDeviceContext always fails: no codec library is linked in.
func OpenDeviceContext(typ HWDeviceType) (DeviceContext, error) {
	return nil, apperr.New(apperr.CodecUnavailable, typ.String(), "built without the libav tag; rebuild with -tags libav")
}

// OpenDecoder always fails: no codec library is linked in.
func OpenDecoder(uri string, hw HWDeviceType, hwDevice DeviceContext) (Decoder, error) {
	return nil, apperr.New(apperr.CodecUnavailable, uri, "built without the libav tag; rebuild with -tags libav")
}

// OpenEncoder always fails: no codec library is linked in.
func OpenEncoder(p EncodeParams) (Encoder, error) {
	return nil, apperr.New(apperr.CodecUnavailable, p.Codec, "built without the libav tag; rebuild with -tags libav")
}

// TransferToSystemMemory is a no-op here: without the libav tag no decoder
// can ever produce a hardware-backed media.Frame (OpenDecoder above always
// fails), so f is always already software-backed.
func TransferToSystemMemory(f *media.Frame) (*media.Frame, error) {
	return f, nil
}

// ReleaseFrame is a no-op here for the same reason TransferToSystemMemory is.
func ReleaseFrame(f *media.Frame) {}
