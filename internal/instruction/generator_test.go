package instruction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/edl"
)

func mustParse(t *testing.T, doc string) *edl.EDL {
	t.Helper()
	e, err := edl.Parse([]byte(doc))
	require.NoError(t, err)
	return e
}

func TestInstructionStreamLengthMatchesTotalFrames(t *testing.T) {
	e := mustParse(t, `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": [
			{"in": 0, "out": 3, "track": {"type": "video", "number": 1},
			 "source": {"uri": "counter.mp4", "in": 0, "out": 3}}
		]
	}`)
	gen := New(e)
	assert.Equal(t, 90, gen.TotalFrames())

	for i := 0; i < 90; i++ {
		inst := gen.InstructionAt(i)
		assert.Equal(t, KindDrawFrame, inst.Kind)
		assert.Equal(t, i, inst.SourceFrameNumber)
		assert.Equal(t, float64(1), inst.Fade)
		assert.Empty(t, inst.Effects)
	}
}

func TestFadeSchedule(t *testing.T) {
	e := mustParse(t, `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": [
			{"in": 0, "out": 5, "track": {"type": "video", "number": 1},
			 "topFade": 1, "tailFade": 1.5,
			 "source": {"uri": "a.mp4", "in": 0, "out": 5}}
		]
	}`)
	gen := New(e)

	cases := []struct {
		frame int
		want  float64
		tol   float64
	}{
		{0, 0, 1e-6},
		{15, 0.5, 1e-6},
		{30, 1.0, 1e-6},
		{90, 1.0, 1e-6},
		{135, 0.333, 1e-3},
		{149, 0.0222, 1e-3},
	}
	for _, c := range cases {
		inst := gen.InstructionAt(c.frame)
		assert.InDelta(t, c.want, inst.Fade, c.tol, "frame %d", c.frame)
	}
}

func TestSourceFPSMismatchMapsToScaledSourceFrame(t *testing.T) {
	e := mustParse(t, `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": [
			{"in": 0, "out": 2, "track": {"type": "video", "number": 1},
			 "source": {"uri": "a.mp4", "in": 0, "out": 2, "fps": 60}}
		]
	}`)
	gen := New(e)
	inst := gen.InstructionAt(15)
	assert.Equal(t, 30, inst.SourceFrameNumber)
}

func TestEffectsTrackAttachesToMainClip(t *testing.T) {
	e := mustParse(t, `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": [
			{"in": 0, "out": 4, "track": {"type": "video", "number": 1},
			 "source": {"uri": "a.mp4", "in": 0, "out": 4}},
			{"in": 1, "out": 3, "track": {"type": "video", "number": 1, "subtype": "effects"},
			 "source": {"type": "brightness", "in": 1, "out": 3, "data": {"value": 1.5}}}
		]
	}`)
	gen := New(e)
	inst := gen.InstructionAt(30)
	require.Len(t, inst.Effects, 1)
	assert.Equal(t, EffectBrightness, inst.Effects[0].Kind)
	assert.Equal(t, 1.5, inst.Effects[0].Strength)

	// outside the effects clip's window, no effect is attached
	inst0 := gen.InstructionAt(0)
	assert.Empty(t, inst0.Effects)
}

func TestNoActiveClipGeneratesBlack(t *testing.T) {
	e := mustParse(t, `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": []
	}`)
	gen := New(e)
	assert.Equal(t, 0, gen.TotalFrames())
	inst := gen.InstructionAt(0)
	assert.Equal(t, KindGenerateColor, inst.Kind)
	assert.Equal(t, Color{}, inst.Color)
}

func TestIteratorWalksTheFullStreamOnce(t *testing.T) {
	e := mustParse(t, `{
		"fps": 10, "width": 640, "height": 480,
		"clips": [
			{"in": 0, "out": 1, "track": {"type": "video", "number": 1},
			 "source": {"uri": "a.mp4", "in": 0, "out": 1}}
		]
	}`)
	gen := New(e)
	it := gen.Iterator()
	count := 0
	for it.Next() {
		assert.Equal(t, count, it.FrameNumber())
		count++
	}
	assert.Equal(t, gen.TotalFrames(), count)

	it.Reset()
	assert.True(t, it.Next())
	assert.Equal(t, 0, it.FrameNumber())
}
