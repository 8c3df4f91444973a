// Package instruction implements the lazy per-output-frame instruction
// generator described in spec.md §4.3: a pure function of (EDL,
// frameNumber) plus a thin, one-buffered-value iterator over it, grounded
// on original_source's InstructionGenerator and the "iterator with one
// buffered value" design note in spec.md §9.
package instruction

import "github.com/blackbird-aslough/edl2ffmpeg/internal/edl"

// Kind enumerates the instruction variants the orchestrator dispatches on.
type Kind int

const (
	KindNoOp Kind = iota
	KindDrawFrame
	KindGenerateColor
	KindTransition
)

func (k Kind) String() string {
	switch k {
	case KindDrawFrame:
		return "DrawFrame"
	case KindGenerateColor:
		return "GenerateColor"
	case KindTransition:
		return "Transition"
	default:
		return "NoOp"
	}
}

// EffectKind enumerates the per-pixel effects an instruction may carry.
type EffectKind int

const (
	EffectBrightness EffectKind = iota
	EffectContrast
	EffectSaturation
	EffectBlur
	EffectSharpen
)

func (k EffectKind) String() string {
	switch k {
	case EffectBrightness:
		return "Brightness"
	case EffectContrast:
		return "Contrast"
	case EffectSaturation:
		return "Saturation"
	case EffectBlur:
		return "Blur"
	case EffectSharpen:
		return "Sharpen"
	default:
		return "Unknown"
	}
}

// Effect is one per-pixel effect application carried by an instruction.
type Effect struct {
	Kind             EffectKind
	Strength         float64
	UseLinearMapping bool
	LinearMapping    [][2]float64 // (src, dst) pairs in [0,1], sorted by src
}

// Geometry carries the pan/zoom/rotation/flip parameters copied from the
// clip's motion, consumed by the
// compositor's geometric transform (spec.md §9 Open Question 1).
type Geometry struct {
	PanX, PanY   float64
	ZoomX, ZoomY float64
	Rotation     float64
	Flip         bool
}

// identityGeometry is the no-op transform: no pan, unit zoom, no rotation.
func identityGeometry() Geometry { return Geometry{ZoomX: 1, ZoomY: 1} }

// Transition carries the transition type/duration/progress an instruction
// is computed to be inside of, or the zero value (Kind == edl.TransitionNone)
// when none applies.
type Transition struct {
	Kind     edl.TransitionKind
	Duration float64
	Progress float64
}

// Color is a generated fill color in [0,1]^3.
type Color struct {
	R, G, B float64
}

// Instruction is the per-output-frame record spec.md §3 defines.
type Instruction struct {
	Kind              Kind
	TrackNumber       int
	URI               string
	SourceFrameNumber int

	Geometry   Geometry
	Fade       float64
	Effects    []Effect
	Transition Transition
	Color      Color
}
