package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/instruction"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/media"
)

func identityDrawFrame() instruction.Instruction {
	return instruction.Instruction{
		Kind:     instruction.KindDrawFrame,
		Fade:     1.0,
		Geometry: instruction.Geometry{ZoomX: 1, ZoomY: 1},
	}
}

func hardwareFrame(t *testing.T) *media.Frame {
	f, err := media.NewFrame(2, 2, media.PixelFormatYUV420P)
	require.NoError(t, err)
	f.Hardware = true
	return f
}

func TestRequiresCPUProcessingIdentityDrawFrameIsGPUEligible(t *testing.T) {
	inst := instruction.Instruction{
		Kind:     instruction.KindDrawFrame,
		Fade:     1.0,
		Geometry: instruction.Geometry{ZoomX: 1, ZoomY: 1},
	}
	assert.False(t, requiresCPUProcessing(inst))
}

func TestRequiresCPUProcessingFadeForcesCPU(t *testing.T) {
	inst := instruction.Instruction{
		Kind:     instruction.KindDrawFrame,
		Fade:     0.5,
		Geometry: instruction.Geometry{ZoomX: 1, ZoomY: 1},
	}
	assert.True(t, requiresCPUProcessing(inst))
}

func TestRequiresCPUProcessingEffectsForceCPU(t *testing.T) {
	inst := instruction.Instruction{
		Kind:     instruction.KindDrawFrame,
		Fade:     1.0,
		Geometry: instruction.Geometry{ZoomX: 1, ZoomY: 1},
		Effects:  []instruction.Effect{{Kind: instruction.EffectBrightness, Strength: 1.5}},
	}
	assert.True(t, requiresCPUProcessing(inst))
}

func TestRequiresCPUProcessingNonIdentityGeometryForcesCPU(t *testing.T) {
	inst := instruction.Instruction{
		Kind:     instruction.KindDrawFrame,
		Fade:     1.0,
		Geometry: instruction.Geometry{ZoomX: 1.2, ZoomY: 1},
	}
	assert.True(t, requiresCPUProcessing(inst))
}

func TestRequiresCPUProcessingNonDrawFrameAlwaysCPU(t *testing.T) {
	inst := instruction.Instruction{Kind: instruction.KindGenerateColor}
	assert.True(t, requiresCPUProcessing(inst))
}

func TestGPUPassthroughEligibleWhenEncoderUsesHardwareAndFrameIsHardware(t *testing.T) {
	o := &Orchestrator{encoderUsesHardware: true}
	assert.True(t, o.gpuPassthroughEligible(identityDrawFrame(), hardwareFrame(t)))
}

func TestGPUPassthroughEligibleFalseWhenEncoderDoesNotUseHardware(t *testing.T) {
	o := &Orchestrator{encoderUsesHardware: false}
	assert.False(t, o.gpuPassthroughEligible(identityDrawFrame(), hardwareFrame(t)))
}

func TestGPUPassthroughEligibleFalseWhenFrameIsSoftware(t *testing.T) {
	o := &Orchestrator{encoderUsesHardware: true}
	f, err := media.NewFrame(2, 2, media.PixelFormatYUV420P)
	require.NoError(t, err)
	assert.False(t, o.gpuPassthroughEligible(identityDrawFrame(), f))
}

func TestGPUPassthroughEligibleFalseWhenCPUProcessingRequired(t *testing.T) {
	o := &Orchestrator{encoderUsesHardware: true}
	inst := identityDrawFrame()
	inst.Effects = []instruction.Effect{{Kind: instruction.EffectBrightness, Strength: 1.5}}
	assert.False(t, o.gpuPassthroughEligible(inst, hardwareFrame(t)))
}

func TestGPUPassthroughEligibleFalseWhenNoFrame(t *testing.T) {
	o := &Orchestrator{encoderUsesHardware: true}
	assert.False(t, o.gpuPassthroughEligible(identityDrawFrame(), nil))
}
