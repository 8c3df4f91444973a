// Package edl implements the EDL data model, strict JSON parsing and
// track normalization described in spec.md §§3-4.2: a typed, immutable
// timeline with gap-filling null clips and effects-track renaming.
package edl

import "fmt"

// TrackType identifies the kind of media a track carries.
type TrackType string

const (
	TrackVideo    TrackType = "video"
	TrackAudio    TrackType = "audio"
	TrackSubtitle TrackType = "subtitle"
	TrackCaption  TrackType = "caption"
	TrackBurnin   TrackType = "burnin"
)

// Track is a track identity: type, number, and an optional subtype/
// subnumber pair used by effects/transform/colour/pan/level tracks.
type Track struct {
	Type      TrackType
	Number    int
	Subtype   string
	Subnumber int
}

// Key returns the canonical string identity used to group clips into
// tracks, e.g. "video_1" or "video_1_effects_1".
func (t Track) Key() string {
	if t.Subtype == "" {
		return fmt.Sprintf("%s_%d", t.Type, t.Number)
	}
	return fmt.Sprintf("%s_%d_%s_%d", t.Type, t.Number, t.Subtype, t.Subnumber)
}

// ParentKey returns the identity of the track this one's effects apply
// to: itself with Subtype cleared.
func (t Track) ParentKey() string {
	parent := t
	parent.Subtype = ""
	parent.Subnumber = 0
	return parent.Key()
}

// IsEffectsTrack reports whether t carries an effects-track subtype.
func (t Track) IsEffectsTrack() bool { return t.Subtype == "effects" }

// IsTransformTrack reports whether t carries one of the transform-family
// subtypes (transform, colour, pan, level).
func (t Track) IsTransformTrack() bool {
	switch t.Subtype {
	case "transform", "colour", "pan", "level":
		return true
	default:
		return false
	}
}

// Motion carries the pan/zoom/rotation/flip parameters computed into a
// composition instruction's geometry.
type Motion struct {
	PanX, PanY   float64
	ZoomX, ZoomY float64
	Rotation     float64
	Flip         bool
}

// TransitionKind enumerates the supported transition types.
type TransitionKind string

const (
	TransitionNone     TransitionKind = ""
	TransitionDissolve TransitionKind = "dissolve"
	TransitionWipe     TransitionKind = "wipe"
	TransitionSlide    TransitionKind = "slide"
)

// Transition is the EDL-level transition declaration on a clip.
type Transition struct {
	Kind     TransitionKind
	Duration float64
}

// SimpleEffectType enumerates the inline per-clip effect kinds.
type SimpleEffectType string

const (
	EffectBrightness SimpleEffectType = "brightness"
	EffectContrast   SimpleEffectType = "contrast"
	EffectSaturation SimpleEffectType = "saturation"
)

// SimpleEffect is an inline effect declared directly on a clip.
type SimpleEffect struct {
	Type     SimpleEffectType
	Strength float64
}

// Source is the tagged union of clip source variants (spec.md §3).
// Concrete types: MediaSource, GenerateSource, EffectSource,
// TransformSource, SubtitleSource. LocationSource has no Go
// representation: it is always rejected during parsing.
type Source interface {
	sourceTag()
}

// MediaSource references a decodable media file.
type MediaSource struct {
	URI     string
	In, Out float64

	TrackID  string
	Width    int
	Height   int
	FPS      int
	Speed    float64
	Gamma    float64
	AudioMix map[string]float64
}

func (MediaSource) sourceTag() {}

// GenerateKind enumerates the synthesized-source families. Only Black is
// fully supported; the others are accepted by the type system but
// rejected by the parser per spec.md §4.2.
type GenerateKind string

const (
	GenerateBlack       GenerateKind = "black"
	GenerateColour      GenerateKind = "colour"
	GenerateTestPattern GenerateKind = "test_pattern"
	GenerateDemo        GenerateKind = "demo"
)

// GenerateSource synthesizes frames rather than decoding them.
type GenerateSource struct {
	Kind       GenerateKind
	In, Out    float64
	Width      int
	Height     int
	Parameters map[string]any
}

func (GenerateSource) sourceTag() {}

// FilterKeyframe is one time-stamped piecewise-linear transfer function
// sample used by the optional linear-mapping extension in spec.md §4.3.
type FilterKeyframe struct {
	Time   float64
	Points [][2]float64 // (src, dst) pairs, both in [0,1]
}

// EffectSource carries parameters for a per-pixel effect declared on an
// "effects" subtype track.
type EffectSource struct {
	Type    SimpleEffectType
	In, Out float64
	Value   *float64
	Filter  []FilterKeyframe
}

func (EffectSource) sourceTag() {}

// TransformControlPoint is one control point in a TransformSource's
// control-point sequence.
type TransformControlPoint struct {
	Time float64
	Motion
}

// TransformSource carries a control-point sequence for a transform/
// colour/pan/level subtype track. motion.bezier is rejected at parse time.
type TransformSource struct {
	In, Out       float64
	ControlPoints []TransformControlPoint
}

func (TransformSource) sourceTag() {}

// SubtitleSource is passed through untouched; the instruction generator
// emits a NoOp for it.
type SubtitleSource struct {
	Text    string
	In, Out float64
}

func (SubtitleSource) sourceTag() {}

// Clip is a single timeline entry: a time interval on a track, a source,
// and the optional modifiers spec.md §3 lists.
type Clip struct {
	In, Out float64
	Track   Track
	Source  Source

	TopFade    float64
	TailFade   float64
	Motion     *Motion
	Transition *Transition
	TextFormat map[string]any
	ChannelMap map[int]float64
	Effects    []SimpleEffect

	// IsNullClip marks a synthesized gap-filler (spec.md §4.2/§9).
	IsNullClip bool
}

// Duration returns Out - In.
func (c Clip) Duration() float64 { return c.Out - c.In }

// EDL is the fully parsed and normalized, immutable timeline.
type EDL struct {
	FPS    int
	Width  int
	Height int

	// Clips is the flat, document-order list of parsed clips before
	// track alignment (kept for callers that want the raw list).
	Clips []Clip

	// Tracks maps a track key to its clips in track-local time order,
	// including inserted null clips, after alignment (spec.md §4.2).
	Tracks map[string][]Clip
	// TrackOrder lists track keys in first-seen document order.
	TrackOrder []string

	// Duration is the EDL's global duration in seconds:
	// max(track.lastOut) across all tracks.
	Duration float64

	// FxAppliesTo maps a renamed effects-track key ("fx_N") to the
	// parent video-track key it modifies.
	FxAppliesTo map[string]string
}

// TotalFrames returns round(Duration * FPS), the length of the
// instruction stream spec.md §8's "Total-frames" invariant requires.
func (e *EDL) TotalFrames() int {
	return int(roundHalfAwayFromZero(e.Duration * float64(e.FPS)))
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}
