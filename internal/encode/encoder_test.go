package encode

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/libav"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/media"
)

type fakeEncoder struct {
	mu                 sync.Mutex
	written            int
	finalized          bool
	closed             bool
	finalizeAfterClose bool

	// block, if non-nil, is closed by the test to release a WriteFrame
	// call that's parked on it, letting the test observe overlap between
	// WriteFrameAsync returning and the actual write completing.
	block    chan struct{}
	blocking chan struct{} // closed once a WriteFrame call starts waiting on block

	failWrites bool // if true, WriteFrame fails instead of succeeding
}

func (f *fakeEncoder) WriteFrame(fr *media.Frame) error {
	if f.block != nil {
		close(f.blocking)
		<-f.block
	}
	f.mu.Lock()
	f.written++
	f.mu.Unlock()
	if f.failWrites {
		return fmt.Errorf("fake encoder write failure")
	}
	return nil
}

func (f *fakeEncoder) writtenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written
}

func (f *fakeEncoder) Finalize() error {
	f.finalized = true
	return nil
}

func (f *fakeEncoder) Close() error {
	f.closed = true
	if f.finalized == false {
		f.finalizeAfterClose = true
	}
	return nil
}

func newTestEncoder() (*Encoder, *fakeEncoder) {
	fe := &fakeEncoder{}
	e := &Encoder{
		enc:      fe,
		frames:   make(chan *media.Frame, maxFramesInFlight),
		drainErr: make(chan error, 1),
		drained:  make(chan struct{}),
	}
	go e.drain()
	return e, fe
}

func TestIsHardwareEncoderNameMatchesKnownWrappers(t *testing.T) {
	assert.True(t, isHardwareEncoderName("h264_nvenc"))
	assert.True(t, isHardwareEncoderName("hevc_vaapi"))
	assert.False(t, isHardwareEncoderName("libx264"))
}

func TestHardwareEncoderNameTriggersDisableBFrames(t *testing.T) {
	params := libav.EncodeParams{Codec: "h264_nvenc"}
	assert.False(t, params.DisableBFrames)
	if isHardwareEncoderName(params.Codec) {
		params.DisableBFrames = true
	}
	assert.True(t, params.DisableBFrames)
}

func TestWriteFrameAsyncWritesEveryQueuedFrameByFinalize(t *testing.T) {
	e, fe := newTestEncoder()
	f, err := media.NewFrame(2, 2, media.PixelFormatYUV420P)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.WriteFrameAsync(f))
	}
	require.NoError(t, e.Finalize())
	assert.Equal(t, 3, fe.writtenCount())
	assert.Equal(t, 0, e.FramesInFlight())
}

// TestWriteFrameAsyncOverlapsWithDrain proves the drain goroutine's
// WriteFrame call runs concurrently with the caller, rather than
// WriteFrameAsync blocking until the underlying write completes: it parks
// the fake encoder's WriteFrame on a channel the test controls, then
// asserts WriteFrameAsync has already returned while that call is still
// blocked.
func TestWriteFrameAsyncOverlapsWithDrain(t *testing.T) {
	e, fe := newTestEncoder()
	fe.block = make(chan struct{})
	fe.blocking = make(chan struct{})
	f, err := media.NewFrame(2, 2, media.PixelFormatYUV420P)
	require.NoError(t, err)

	require.NoError(t, e.WriteFrameAsync(f))

	select {
	case <-fe.blocking:
	case <-time.After(time.Second):
		t.Fatal("drain never reached the fake encoder's WriteFrame")
	}
	assert.Equal(t, 0, fe.writtenCount(), "WriteFrameAsync returned before the underlying write completed")

	close(fe.block)
	require.NoError(t, e.Finalize())
	assert.Equal(t, 1, fe.writtenCount())
}

func TestWriteFrameAsyncSurfacesDrainFailure(t *testing.T) {
	e, fe := newTestEncoder()
	fe.block = make(chan struct{})
	fe.blocking = make(chan struct{})
	fe.failWrites = true
	f, err := media.NewFrame(2, 2, media.PixelFormatYUV420P)
	require.NoError(t, err)

	require.NoError(t, e.WriteFrameAsync(f))
	<-fe.blocking
	close(fe.block)

	require.Error(t, e.Finalize())
}

func TestFinalizeCanOnlyBeCalledOnce(t *testing.T) {
	e, fe := newTestEncoder()
	require.NoError(t, e.Finalize())
	assert.True(t, fe.finalized)
	require.Error(t, e.Finalize())
}

func TestCloseDoesNotImplicitlyFinalize(t *testing.T) {
	e, fe := newTestEncoder()
	require.NoError(t, e.Close())
	assert.True(t, fe.closed)
	assert.True(t, fe.finalizeAfterClose)
}
