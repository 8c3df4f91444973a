package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/apperr"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/libav"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/media"
)

// fakeDecoder is a cgo-free stand-in for a libav.Decoder, letting the seek
// policy and state machine be exercised without the `libav` build tag.
type fakeDecoder struct {
	info      libav.StreamInfo
	pos       int
	seekCount int
	closed    bool
}

func (f *fakeDecoder) StreamInfo() libav.StreamInfo { return f.info }

func (f *fakeDecoder) SeekToByteOffset(offset int64) error {
	f.seekCount++
	f.pos = int(offset) // test fixture: byte offset == frame index
	return nil
}

func (f *fakeDecoder) DecodeNext() (*media.Frame, error) {
	if f.pos >= f.info.TotalFrames {
		return nil, apperr.New(apperr.DecodeEnd, "", "eof")
	}
	fr, err := media.NewFrame(4, 4, media.PixelFormatYUV420P)
	if err != nil {
		return nil, err
	}
	fr.Pts = int64(f.pos)
	f.pos++
	return fr, nil
}

func (f *fakeDecoder) Close() error {
	f.closed = true
	return nil
}

func newTestDecoder(total int) (*Decoder, *fakeDecoder) {
	fd := &fakeDecoder{info: libav.StreamInfo{FrameRate: 30, TotalFrames: total}}
	d := &Decoder{uri: "fake://test", dec: fd, state: StateOpen, currentFrame: -1}
	return d, fd
}

func TestFrameAtWalksForwardWithoutSeekingWithinThreshold(t *testing.T) {
	d, fd := newTestDecoder(200)
	f, err := d.FrameAt(10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.Pts)
	assert.Equal(t, 0, fd.seekCount)
	assert.Equal(t, 10, d.currentFrame)
}

func TestFrameAtSeeksWhenTargetIsFarAhead(t *testing.T) {
	d, fd := newTestDecoder(200)
	_, err := d.FrameAt(5)
	require.NoError(t, err)

	_, err = d.FrameAt(150)
	require.NoError(t, err)
	// no container tracks attached: seekTo falls back to a reset-to-start walk
	assert.Equal(t, 1, fd.seekCount)
	assert.Equal(t, 150, d.currentFrame)
}

func TestFrameAtReachingEndSetsEndOfStreamState(t *testing.T) {
	d, _ := newTestDecoder(5)
	_, err := d.FrameAt(4)
	require.NoError(t, err)

	_, err = d.FrameAt(100)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.DecodeEnd))
	assert.Equal(t, StateEndOfStream, d.State())
}

func TestCloseReleasesUnderlyingDecoder(t *testing.T) {
	d, fd := newTestDecoder(10)
	require.NoError(t, d.Close())
	assert.True(t, fd.closed)
}
