package instruction

import (
	"math"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/edl"
)

// Generator produces instructions on demand from an immutable EDL
// reference, per spec.md §4.3. It holds no per-frame state: InstructionAt
// is a pure function of (e, frameNumber).
type Generator struct {
	e            *edl.EDL
	mainTrackKey string
	totalFrames  int
}

// New constructs a generator over e's default main video track (video_1),
// computing totalFrames = round(e.Duration * e.FPS) once.
func New(e *edl.EDL) *Generator {
	return &Generator{e: e, mainTrackKey: "video_1", totalFrames: e.TotalFrames()}
}

// TotalFrames returns the length of the instruction stream.
func (g *Generator) TotalFrames() int { return g.totalFrames }

// InstructionAt computes the instruction for timeline frame n. It is safe
// to call out of order and repeatedly; the result depends only on n and
// the (immutable) EDL.
func (g *Generator) InstructionAt(n int) Instruction {
	frameTime := float64(n) / float64(g.e.FPS)

	clip, found := g.findActiveMainClip(frameTime)
	if !found {
		return Instruction{Kind: KindGenerateColor, Geometry: identityGeometry()}
	}

	inst := g.synthesize(clip, frameTime, n)
	inst.TrackNumber = clip.Track.Number

	if clip.Motion != nil {
		inst.Geometry = Geometry{
			PanX: clip.Motion.PanX, PanY: clip.Motion.PanY,
			ZoomX: clip.Motion.ZoomX, ZoomY: clip.Motion.ZoomY,
			Rotation: clip.Motion.Rotation, Flip: clip.Motion.Flip,
		}
	} else {
		inst.Geometry = identityGeometry()
	}

	inst.Fade = computeFade(clip, frameTime)

	if clip.Transition != nil && clip.Transition.Duration > 0 {
		positionInClip := frameTime - clip.In
		if positionInClip < clip.Transition.Duration {
			inst.Transition = Transition{
				Kind:     clip.Transition.Kind,
				Duration: clip.Transition.Duration,
				Progress: positionInClip / clip.Transition.Duration,
			}
		}
	}

	for _, se := range clip.Effects {
		inst.Effects = append(inst.Effects, Effect{Kind: mapSimpleEffectType(se.Type), Strength: se.Strength})
	}

	if fx, ok := g.findActiveEffectsClip(clip.Track.Key(), frameTime); ok {
		if es, ok := fx.Source.(edl.EffectSource); ok {
			if eff, ok := buildFxInstructionEffect(es, frameTime); ok {
				inst.Effects = append(inst.Effects, eff)
			}
		}
	}

	return inst
}

// findActiveMainClip locates the clip active at frameTime on the generator's
// main video track, falling back to a raw scan of all parsed clips for a
// Video track with no subtype (spec.md §4.3 step 2).
func (g *Generator) findActiveMainClip(frameTime float64) (edl.Clip, bool) {
	if clips, ok := g.e.Tracks[g.mainTrackKey]; ok {
		if c, ok := findClipAt(clips, frameTime); ok {
			return c, true
		}
	}
	for _, c := range g.e.Clips {
		if c.Track.Type == edl.TrackVideo && c.Track.Subtype == "" && c.In <= frameTime && frameTime < c.Out {
			return c, true
		}
	}
	return edl.Clip{}, false
}

// findActiveEffectsClip locates a clip on an fx_N track attached to
// parentKey that is active at frameTime (spec.md §4.3 step 9).
func (g *Generator) findActiveEffectsClip(parentKey string, frameTime float64) (edl.Clip, bool) {
	for fxKey, parent := range g.e.FxAppliesTo {
		if parent != parentKey {
			continue
		}
		if c, ok := findClipAt(g.e.Tracks[fxKey], frameTime); ok && !c.IsNullClip {
			return c, true
		}
	}
	return edl.Clip{}, false
}

func findClipAt(clips []edl.Clip, frameTime float64) (edl.Clip, bool) {
	for _, c := range clips {
		if c.In <= frameTime && frameTime < c.Out {
			return c, true
		}
	}
	return edl.Clip{}, false
}

// synthesize dispatches on the clip's source variant (spec.md §4.3 step 4).
func (g *Generator) synthesize(clip edl.Clip, frameTime float64, n int) Instruction {
	if clip.IsNullClip {
		return Instruction{Kind: KindGenerateColor}
	}
	switch src := clip.Source.(type) {
	case edl.MediaSource:
		fps := src.FPS
		if fps == 0 {
			fps = g.e.FPS
		}
		sourceFrame := int(math.Floor((src.In + (frameTime - clip.In)) * float64(fps)))
		return Instruction{Kind: KindDrawFrame, URI: src.URI, SourceFrameNumber: sourceFrame}
	case edl.GenerateSource:
		if src.Kind == edl.GenerateBlack {
			return Instruction{Kind: KindGenerateColor, SourceFrameNumber: n, Color: Color{0, 0, 0}}
		}
		return Instruction{Kind: KindNoOp}
	case edl.EffectSource, edl.TransformSource, edl.SubtitleSource:
		return Instruction{Kind: KindNoOp}
	default:
		return Instruction{Kind: KindNoOp}
	}
}

// computeFade implements spec.md §4.3 step 6.
func computeFade(clip edl.Clip, frameTime float64) float64 {
	fade := 1.0
	positionInClip := frameTime - clip.In
	clipDuration := clip.Duration()

	if clip.TopFade > 0 && positionInClip < clip.TopFade {
		fade = positionInClip / clip.TopFade
	}
	if clip.TailFade > 0 && positionInClip > clipDuration-clip.TailFade {
		tailFade := (clipDuration - positionInClip) / clip.TailFade
		if tailFade < fade {
			fade = tailFade
		}
	}
	if fade < 0 {
		fade = 0
	}
	if fade > 1 {
		fade = 1
	}
	return fade
}

func mapSimpleEffectType(t edl.SimpleEffectType) EffectKind {
	switch t {
	case edl.EffectBrightness:
		return EffectBrightness
	case edl.EffectContrast:
		return EffectContrast
	case edl.EffectSaturation:
		return EffectSaturation
	default:
		return EffectBrightness
	}
}

// buildFxInstructionEffect builds the instruction effect carried by an
// active effects-track clip: a scalar strength from data.value, or a
// time-interpolated linear mapping from a filter keyframe sequence
// (spec.md §4.3 step 9).
func buildFxInstructionEffect(es edl.EffectSource, frameTime float64) (Effect, bool) {
	kind := mapSimpleEffectType(es.Type)
	if es.Value != nil {
		return Effect{Kind: kind, Strength: *es.Value}, true
	}
	if len(es.Filter) == 0 {
		return Effect{}, false
	}
	points, ok := interpolateFilter(es.Filter, frameTime)
	if !ok {
		return Effect{}, false
	}
	return Effect{Kind: kind, UseLinearMapping: true, LinearMapping: points}, true
}

// interpolateFilter finds the two keyframes surrounding t and linearly
// interpolates each of their (src,dst) pairs by time, assuming keyframes
// share the same src sample grid.
func interpolateFilter(filter []edl.FilterKeyframe, t float64) ([][2]float64, bool) {
	if len(filter) == 0 {
		return nil, false
	}
	if t <= filter[0].Time || len(filter) == 1 {
		return copyPoints(filter[0].Points), true
	}
	last := filter[len(filter)-1]
	if t >= last.Time {
		return copyPoints(last.Points), true
	}
	for i := 0; i < len(filter)-1; i++ {
		kf0, kf1 := filter[i], filter[i+1]
		if t >= kf0.Time && t <= kf1.Time {
			span := kf1.Time - kf0.Time
			frac := 0.0
			if span > 1e-9 {
				frac = (t - kf0.Time) / span
			}
			n := len(kf0.Points)
			if len(kf1.Points) < n {
				n = len(kf1.Points)
			}
			points := make([][2]float64, n)
			for idx := 0; idx < n; idx++ {
				src := kf0.Points[idx][0]
				dst := kf0.Points[idx][1] + (kf1.Points[idx][1]-kf0.Points[idx][1])*frac
				points[idx] = [2]float64{src, dst}
			}
			return points, true
		}
	}
	return nil, false
}

func copyPoints(src [][2]float64) [][2]float64 {
	out := make([][2]float64, len(src))
	copy(out, src)
	return out
}

// Iterator is a lazy, restartable, one-buffered-value walk over a
// Generator's instruction stream (spec.md §9's "iterator with one buffered
// value" design note).
type Iterator struct {
	gen *Generator
	pos int
	cur Instruction
}

// Iterator returns a fresh iterator starting at frame 0.
func (g *Generator) Iterator() *Iterator { return &Iterator{gen: g} }

// Next advances to the next instruction, returning false once the stream
// is exhausted.
func (it *Iterator) Next() bool {
	if it.pos >= it.gen.TotalFrames() {
		return false
	}
	it.cur = it.gen.InstructionAt(it.pos)
	it.pos++
	return true
}

// Instruction returns the instruction most recently produced by Next.
func (it *Iterator) Instruction() Instruction { return it.cur }

// Reset rewinds the iterator to frame 0.
func (it *Iterator) Reset() { it.pos = 0 }

// FrameNumber returns the frame number of the instruction most recently
// produced by Next, for diagnostics.
func (it *Iterator) FrameNumber() int { return it.pos - 1 }
