//go:build libav

package libav

/*
#cgo pkg-config: libavformat libavcodec libavutil libswscale
#include <libavformat/avformat.h>
#include <libavcodec/avcodec.h>
#include <libavutil/hwcontext.h>
#include <libswscale/swscale.h>
#include <stdlib.h>

static AVHWDeviceType edl2ffmpeg_hwtype(int t) {
	switch (t) {
	case 1: return AV_HWDEVICE_TYPE_CUDA;
	case 2: return AV_HWDEVICE_TYPE_VAAPI;
	case 3: return AV_HWDEVICE_TYPE_VIDEOTOOLBOX;
	case 4: return AV_HWDEVICE_TYPE_QSV;
	default: return AV_HWDEVICE_TYPE_NONE;
	}
}
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/apperr"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/media"
)

// cgoDeviceContext wraps an AVBufferRef* hardware device context, shared
// process-wide by internal/hardware's refcounted manager.
type cgoDeviceContext struct {
	typ HWDeviceType
	ref *C.AVBufferRef
}

// OpenDeviceContext creates a real hardware device context via
// av_hwdevice_ctx_create.
func OpenDeviceContext(typ HWDeviceType) (DeviceContext, error) {
	var ref *C.AVBufferRef
	ret := C.av_hwdevice_ctx_create(&ref, C.edl2ffmpeg_hwtype(C.int(typ)), nil, nil, 0)
	if ret < 0 {
		return nil, apperr.New(apperr.HardwareInitFailure, typ.String(), "av_hwdevice_ctx_create failed")
	}
	return &cgoDeviceContext{typ: typ, ref: ref}, nil
}

func (d *cgoDeviceContext) Type() HWDeviceType { return d.typ }

func (d *cgoDeviceContext) Close() error {
	if d.ref != nil {
		C.av_buffer_unref(&d.ref)
	}
	return nil
}

// cgoDecoder wraps an AVFormatContext/AVCodecContext pair for one opened
// source URI.
type cgoDecoder struct {
	mu        sync.Mutex
	fmtCtx    *C.AVFormatContext
	codecCtx  *C.AVCodecContext
	streamIdx C.int
	info      StreamInfo
}

func OpenDecoder(uri string, hw HWDeviceType, hwDevice DeviceContext) (Decoder, error) {
	d := &cgoDecoder{}
	cURI := C.CString(uri)
	defer C.free(unsafe.Pointer(cURI))

	if ret := C.avformat_open_input(&d.fmtCtx, cURI, nil, nil); ret < 0 {
		return nil, apperr.New(apperr.IoOpenFailure, uri, "avformat_open_input failed")
	}
	if ret := C.avformat_find_stream_info(d.fmtCtx, nil); ret < 0 {
		return nil, apperr.New(apperr.CodecUnavailable, uri, "avformat_find_stream_info failed")
	}

	streamIdx := C.av_find_best_stream(d.fmtCtx, C.AVMEDIA_TYPE_VIDEO, -1, -1, nil, 0)
	if streamIdx < 0 {
		return nil, apperr.New(apperr.CodecUnavailable, uri, "no video stream")
	}
	d.streamIdx = streamIdx

	stream := *(**C.AVStream)(unsafe.Pointer(uintptr(unsafe.Pointer(d.fmtCtx.streams)) + uintptr(streamIdx)*unsafe.Sizeof(uintptr(0))))
	codecPar := stream.codecpar
	codec := C.avcodec_find_decoder(codecPar.codec_id)
	if codec == nil {
		return nil, apperr.New(apperr.CodecUnavailable, uri, "no decoder for codec id")
	}
	d.codecCtx = C.avcodec_alloc_context3(codec)
	C.avcodec_parameters_to_context(d.codecCtx, codecPar)

	if hwDevice != nil {
		if ctx, ok := hwDevice.(*cgoDeviceContext); ok && ctx.ref != nil {
			d.codecCtx.hw_device_ctx = C.av_buffer_ref(ctx.ref)
		}
	}

	if ret := C.avcodec_open2(d.codecCtx, codec, nil); ret < 0 {
		return nil, apperr.New(apperr.CodecUnavailable, uri, "avcodec_open2 failed")
	}

	frameRate := C.av_q2d(C.av_guess_frame_rate(d.fmtCtx, stream, nil))
	timeBase := C.av_q2d(stream.time_base)
	d.info = StreamInfo{
		Width:         int(d.codecCtx.width),
		Height:        int(d.codecCtx.height),
		Format:        mapPixelFormat(d.codecCtx.pix_fmt),
		FrameRate:     float64(frameRate),
		TimeBase:      float64(timeBase),
		TotalFrames:   int(stream.nb_frames),
		HWAccelerated: hwDevice != nil,
	}
	return d, nil
}

func (d *cgoDecoder) StreamInfo() StreamInfo { return d.info }

func (d *cgoDecoder) SeekToByteOffset(offset int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ret := C.avformat_seek_file(d.fmtCtx, -1, C.int64_t(0), C.int64_t(offset), C.int64_t(offset), C.AVSEEK_FLAG_BYTE); ret < 0 {
		return apperr.New(apperr.IoOpenFailure, "", "seek failed")
	}
	C.avcodec_flush_buffers(d.codecCtx)
	return nil
}

func (d *cgoDecoder) DecodeNext() (*media.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pkt := C.av_packet_alloc()
	defer C.av_packet_free(&pkt)
	avFrame := C.av_frame_alloc()
	defer C.av_frame_free(&avFrame)

	for {
		ret := C.av_read_frame(d.fmtCtx, pkt)
		if ret < 0 {
			return nil, apperr.New(apperr.DecodeEnd, "", "end of stream")
		}
		if pkt.stream_index != d.streamIdx {
			C.av_packet_unref(pkt)
			continue
		}
		if sendRet := C.avcodec_send_packet(d.codecCtx, pkt); sendRet < 0 {
			C.av_packet_unref(pkt)
			return nil, apperr.New(apperr.EncodeFatal, "", "avcodec_send_packet failed")
		}
		C.av_packet_unref(pkt)

		recvRet := C.avcodec_receive_frame(d.codecCtx, avFrame)
		if recvRet == 0 {
			return frameFromAV(avFrame, d.info)
		}
	}
}

func (d *cgoDecoder) Close() error {
	if d.codecCtx != nil {
		C.avcodec_free_context(&d.codecCtx)
	}
	if d.fmtCtx != nil {
		C.avformat_close_input(&d.fmtCtx)
	}
	return nil
}

// frameFromAV converts a decoded AVFrame into a media.Frame. When avFrame
// carries a hw_frames_ctx its data[] pointers are a device surface handle,
// not CPU-addressable memory, so this takes a ref on the AVFrame instead
// of copying planes and marks the result Hardware — the GPU passthrough
// path (orchestrator.processFrame) hands it to the encoder untouched, and
// anything that needs to composite it first goes through
// TransferToSystemMemory below.
func frameFromAV(avFrame *C.AVFrame, info StreamInfo) (*media.Frame, error) {
	if avFrame.hw_frames_ctx != nil {
		ref := C.av_frame_alloc()
		if C.av_frame_ref(ref, avFrame) < 0 {
			C.av_frame_free(&ref)
			return nil, apperr.New(apperr.DecodeEnd, "", "av_frame_ref failed for hardware frame")
		}
		f, err := media.NewFrame(info.Width, info.Height, info.Format)
		if err != nil {
			C.av_frame_free(&ref)
			return nil, err
		}
		f.Hardware = true
		f.HardwareHandle = ref
		return f, nil
	}

	f, err := media.NewFrame(info.Width, info.Height, info.Format)
	if err != nil {
		return nil, err
	}
	copyPlanesFromAV(f, avFrame)
	return f, nil
}

// copyPlanesFromAV copies avFrame's plane data into f's software-backed
// buffers. Only valid when avFrame.data[] is CPU-addressable memory.
func copyPlanesFromAV(f *media.Frame, avFrame *C.AVFrame) {
	for p := 0; p < f.Format.PlaneCount(); p++ {
		_, h := f.PlaneDims(p)
		stride := int(avFrame.linesize[p])
		src := unsafe.Slice((*byte)(unsafe.Pointer(avFrame.data[p])), stride*h)
		copy(f.Planes[p], src)
	}
}

// TransferToSystemMemory downloads a hardware-backed frame's pixel data
// into an ordinary software media.Frame via av_hwframe_transfer_data, for
// callers (the compositor path) that need real, addressable plane bytes.
// A no-op returning f unchanged if f is already software-backed.
func TransferToSystemMemory(f *media.Frame) (*media.Frame, error) {
	if !f.Hardware {
		return f, nil
	}
	hwFrame, ok := f.HardwareHandle.(*C.AVFrame)
	if !ok || hwFrame == nil {
		return nil, apperr.New(apperr.DecodeEnd, "", "hardware frame missing its AVFrame handle")
	}

	swFrame := C.av_frame_alloc()
	defer C.av_frame_free(&swFrame)
	if C.av_hwframe_transfer_data(swFrame, hwFrame, 0) < 0 {
		return nil, apperr.New(apperr.DecodeEnd, "", "av_hwframe_transfer_data failed")
	}

	out, err := media.NewFrame(f.Width, f.Height, f.Format)
	if err != nil {
		return nil, err
	}
	out.Pts, out.Duration, out.Color, out.AspectW, out.AspectH = f.Pts, f.Duration, f.Color, f.AspectW, f.AspectH
	copyPlanesFromAV(out, swFrame)
	return out, nil
}

// ReleaseFrame frees the AVFrame reference a hardware frame retained.
// A no-op for software-backed frames.
func ReleaseFrame(f *media.Frame) {
	if !f.Hardware {
		return
	}
	if ref, ok := f.HardwareHandle.(*C.AVFrame); ok && ref != nil {
		C.av_frame_free(&ref)
	}
	f.HardwareHandle = nil
	f.Hardware = false
}

func mapPixelFormat(fmtID C.enum_AVPixelFormat) media.PixelFormat {
	switch fmtID {
	case C.AV_PIX_FMT_YUV420P:
		return media.PixelFormatYUV420P
	case C.AV_PIX_FMT_RGB24:
		return media.PixelFormatRGB24
	case C.AV_PIX_FMT_BGR24:
		return media.PixelFormatBGR24
	default:
		return media.PixelFormatYUV420P
	}
}

func mapPixelFormatToAV(f media.PixelFormat) C.enum_AVPixelFormat {
	switch f {
	case media.PixelFormatRGB24:
		return C.AV_PIX_FMT_RGB24
	case media.PixelFormatBGR24:
		return C.AV_PIX_FMT_BGR24
	case media.PixelFormatYUV422P:
		return C.AV_PIX_FMT_YUV422P
	case media.PixelFormatYUV444P:
		return C.AV_PIX_FMT_YUV444P
	default:
		return C.AV_PIX_FMT_YUV420P
	}
}

type cgoEncoder struct {
	codecCtx *C.AVCodecContext
	fmtCtx   *C.AVFormatContext
	stream   *C.AVStream
	params   EncodeParams
}

func OpenEncoder(p EncodeParams) (Encoder, error) {
	codec := C.avcodec_find_encoder_by_name(C.CString(p.Codec))
	if codec == nil {
		return nil, apperr.New(apperr.CodecUnavailable, p.Codec, "encoder not found")
	}
	ctx := C.avcodec_alloc_context3(codec)
	ctx.width = C.int(p.Width)
	ctx.height = C.int(p.Height)
	ctx.bit_rate = C.int64_t(p.BitrateKbps * 1000)
	if p.DisableBFrames {
		ctx.max_b_frames = 0
	}
	if ret := C.avcodec_open2(ctx, codec, nil); ret < 0 {
		return nil, apperr.New(apperr.CodecUnavailable, p.Codec, "avcodec_open2 failed")
	}

	e := &cgoEncoder{codecCtx: ctx, params: p}

	cPath := C.CString(p.OutputPath)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.avformat_alloc_output_context2(&e.fmtCtx, nil, nil, cPath); ret < 0 || e.fmtCtx == nil {
		return nil, apperr.New(apperr.IoOpenFailure, p.OutputPath, "avformat_alloc_output_context2 failed")
	}
	e.stream = C.avformat_new_stream(e.fmtCtx, nil)
	C.avcodec_parameters_from_context(e.stream.codecpar, ctx)

	if e.fmtCtx.oformat.flags&C.AVFMT_NOFILE == 0 {
		if ret := C.avio_open(&e.fmtCtx.pb, cPath, C.AVIO_FLAG_WRITE); ret < 0 {
			return nil, apperr.New(apperr.IoOpenFailure, p.OutputPath, "avio_open failed")
		}
	}
	if ret := C.avformat_write_header(e.fmtCtx, nil); ret < 0 {
		return nil, apperr.New(apperr.IoOpenFailure, p.OutputPath, "avformat_write_header failed")
	}

	return e, nil
}

// WriteFrame submits f to the encoder. A GPU-passthrough frame (f.Hardware
// set by the decoder side and handed through the orchestrator untouched)
// is ref'd straight into the AVFrame the encoder sends, with no CPU copy;
// a software frame gets a freshly allocated AVFrame with its planes
// copied in.
func (e *cgoEncoder) WriteFrame(f *media.Frame) error {
	avFrame := C.av_frame_alloc()
	defer C.av_frame_free(&avFrame)

	if f.Hardware {
		hwFrame, ok := f.HardwareHandle.(*C.AVFrame)
		if !ok || hwFrame == nil {
			return apperr.New(apperr.EncodeFatal, "", "hardware frame missing its AVFrame handle")
		}
		if C.av_frame_ref(avFrame, hwFrame) < 0 {
			return apperr.New(apperr.EncodeFatal, "", "av_frame_ref failed for hardware frame")
		}
	} else {
		avFrame.format = C.int(mapPixelFormatToAV(f.Format))
		avFrame.width = C.int(f.Width)
		avFrame.height = C.int(f.Height)
		if C.av_frame_get_buffer(avFrame, 32) < 0 {
			return apperr.New(apperr.EncodeFatal, "", "av_frame_get_buffer failed")
		}
		for p := 0; p < f.Format.PlaneCount(); p++ {
			_, h := f.PlaneDims(p)
			stride := int(avFrame.linesize[p])
			dst := unsafe.Slice((*byte)(unsafe.Pointer(avFrame.data[p])), stride*h)
			copy(dst, f.Planes[p])
		}
	}
	avFrame.pts = C.int64_t(f.Pts)

	if C.avcodec_send_frame(e.codecCtx, avFrame) < 0 {
		return apperr.New(apperr.EncodeFatal, "", "avcodec_send_frame failed")
	}

	pkt := C.av_packet_alloc()
	defer C.av_packet_free(&pkt)
	for C.avcodec_receive_packet(e.codecCtx, pkt) == 0 {
		pkt.stream_index = e.stream.index
		C.av_interleaved_write_frame(e.fmtCtx, pkt)
	}
	return nil
}

func (e *cgoEncoder) Finalize() error {
	if C.avcodec_send_frame(e.codecCtx, nil) < 0 {
		return apperr.New(apperr.EncodeFatal, "", "flush failed")
	}
	pkt := C.av_packet_alloc()
	defer C.av_packet_free(&pkt)
	for C.avcodec_receive_packet(e.codecCtx, pkt) == 0 {
		pkt.stream_index = e.stream.index
		C.av_interleaved_write_frame(e.fmtCtx, pkt)
	}
	if C.av_write_trailer(e.fmtCtx) < 0 {
		return apperr.New(apperr.EncodeFatal, "", "av_write_trailer failed")
	}
	return nil
}

func (e *cgoEncoder) Close() error {
	if e.codecCtx != nil {
		C.avcodec_free_context(&e.codecCtx)
	}
	if e.fmtCtx != nil {
		if e.fmtCtx.oformat.flags&C.AVFMT_NOFILE == 0 && e.fmtCtx.pb != nil {
			C.avio_closep(&e.fmtCtx.pb)
		}
		C.avformat_free_context(e.fmtCtx)
	}
	return nil
}
