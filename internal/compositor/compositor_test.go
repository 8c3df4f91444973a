package compositor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/instruction"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/media"
)

func TestBrightnessIdentityLUT(t *testing.T) {
	lut := buildBrightnessLUT(1.0)
	for i := 0; i < 256; i++ {
		assert.InDelta(t, i, int(lut[i]), 1, "identity brightness at %d", i)
	}
}

func TestLinearMappingIdentityLUTMatchesBrightness(t *testing.T) {
	identity := [][2]float64{{0, 0}, {1, 1}}
	lut := buildLinearMappingLUT(identity)
	brightness := buildBrightnessLUT(1.0)
	for i := 0; i < 256; i++ {
		assert.InDelta(t, int(brightness[i]), int(lut[i]), 1, "at %d", i)
	}
}

func TestContrastLUTMidpointIsFixed(t *testing.T) {
	lut := buildContrastLUT(2.0)
	assert.InDelta(t, 128, int(lut[128]), 1)
}

func TestFadeToBlackScalesLumaAndNeutralizesChroma(t *testing.T) {
	f, err := media.NewFrame(4, 4, media.PixelFormatYUV420P)
	require.NoError(t, err)
	fillColor(f, 1, 1, 1) // white
	applyFade(f, 0.0)
	for _, v := range f.Planes[0][:4] {
		assert.Equal(t, byte(0), v)
	}
	for _, v := range f.Planes[1][:2] {
		assert.Equal(t, byte(128), v)
	}
}

func TestFadeAtOneIsNoOp(t *testing.T) {
	f, err := media.NewFrame(4, 4, media.PixelFormatYUV420P)
	require.NoError(t, err)
	fillColor(f, 0.5, 0.3, 0.8)
	before := append([]byte{}, f.Planes[0]...)
	applyFade(f, 1.0)
	assert.Equal(t, before, f.Planes[0])
}

func TestGenerateColorBlackProducesZeroLuma(t *testing.T) {
	c, err := New(8, 8, media.PixelFormatYUV420P, 2)
	require.NoError(t, err)
	h, err := c.GenerateColor(instruction.Color{R: 0, G: 0, B: 0})
	require.NoError(t, err)
	defer h.Release()
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			assert.Equal(t, byte(0), h.Frame.Planes[0][row*h.Frame.Linesize[0]+col])
		}
	}
}

func TestProcessWithNilInputGeneratesBlack(t *testing.T) {
	c, err := New(8, 8, media.PixelFormatYUV420P, 2)
	require.NoError(t, err)
	h, err := c.Process(nil, instruction.Instruction{Kind: instruction.KindGenerateColor, Color: instruction.Color{}})
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, byte(0), h.Frame.Planes[0][0])
}

func TestProcessDrawFrameCopiesMatchingGeometry(t *testing.T) {
	c, err := New(4, 4, media.PixelFormatYUV420P, 2)
	require.NoError(t, err)
	input, err := media.NewFrame(4, 4, media.PixelFormatYUV420P)
	require.NoError(t, err)
	fillColor(input, 0.2, 0.6, 0.1)

	h, err := c.Process(input, instruction.Instruction{Kind: instruction.KindDrawFrame, Fade: 1, Geometry: instruction.Geometry{ZoomX: 1, ZoomY: 1}})
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, input.Planes[0][0], h.Frame.Planes[0][0])
}

func TestIdentityGeometryIsNoOp(t *testing.T) {
	assert.True(t, isIdentityGeometry(instruction.Geometry{ZoomX: 1, ZoomY: 1}))
	assert.False(t, isIdentityGeometry(instruction.Geometry{ZoomX: 1.5, ZoomY: 1}))
	assert.False(t, isIdentityGeometry(instruction.Geometry{ZoomX: 1, ZoomY: 1, Flip: true}))
}
