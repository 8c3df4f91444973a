package edl

import (
	"encoding/json"
	"fmt"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/apperr"
)

// edl-level supported keys (spec.md §6).
var edlKeys = map[string]bool{"fps": true, "width": true, "height": true, "clips": true}

// clip-level supported keys (spec.md §6).
var clipKeys = map[string]bool{
	"in": true, "out": true, "track": true, "source": true, "sources": true,
	"topFade": true, "tailFade": true, "topFadeYUV": true, "tailFadeYUV": true,
	"motion": true, "transition": true, "textFormat": true, "channelMap": true,
	"sync": true, "effects": true,
}

type rawObj = map[string]any

// Parse validates and parses a raw EDL JSON document into a typed,
// track-aligned EDL. It does not attempt partial recovery: the first
// validation failure is returned as a single *apperr.Error (spec.md
// §4.2's failure model).
func Parse(data []byte) (*EDL, error) {
	var doc rawObj
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Wrap(apperr.InvalidEdl, "$", err)
	}

	if err := rejectUnknownKeys(doc, edlKeys, "$"); err != nil {
		return nil, err
	}

	fps, err := requireInt(doc, "fps", "$.fps")
	if err != nil {
		return nil, err
	}
	if fps <= 0 {
		return nil, apperr.New(apperr.InvalidEdl, "$.fps", "must be > 0")
	}

	width, err := requireInt(doc, "width", "$.width")
	if err != nil {
		return nil, err
	}
	if width <= 0 {
		return nil, apperr.New(apperr.InvalidEdl, "$.width", "must be > 0")
	}

	height, err := requireInt(doc, "height", "$.height")
	if err != nil {
		return nil, err
	}
	if height <= 0 {
		return nil, apperr.New(apperr.InvalidEdl, "$.height", "must be > 0")
	}

	rawClips, ok := doc["clips"].([]any)
	if !ok {
		return nil, apperr.New(apperr.InvalidEdl, "$.clips", "required array")
	}

	clips := make([]Clip, 0, len(rawClips))
	for i, rc := range rawClips {
		obj, ok := rc.(rawObj)
		if !ok {
			return nil, apperr.New(apperr.InvalidEdl, fmt.Sprintf("$.clips[%d]", i), "must be an object")
		}
		clip, err := parseClip(obj, fmt.Sprintf("$.clips[%d]", i), fps)
		if err != nil {
			return nil, err
		}
		clips = append(clips, clip)
	}

	e := &EDL{FPS: fps, Width: width, Height: height, Clips: clips}
	return normalize(e)
}

func parseClip(obj rawObj, path string, edlFPS int) (Clip, error) {
	if err := rejectUnknownKeys(obj, clipKeys, path); err != nil {
		return Clip{}, err
	}

	in, err := requireFloat(obj, "in", path+".in")
	if err != nil {
		return Clip{}, err
	}
	out, err := requireFloat(obj, "out", path+".out")
	if err != nil {
		return Clip{}, err
	}
	if in < 0 {
		return Clip{}, apperr.New(apperr.InvalidEdl, path+".in", "must be >= 0")
	}
	if out <= in {
		return Clip{}, apperr.New(apperr.InvalidEdl, path+".out", "must be > in")
	}

	trackObj, ok := obj["track"].(rawObj)
	if !ok {
		return Clip{}, apperr.New(apperr.InvalidEdl, path+".track", "required object")
	}
	track, err := parseTrack(trackObj, path+".track")
	if err != nil {
		return Clip{}, err
	}

	source, err := parseSourceField(obj, path, track, edlFPS)
	if err != nil {
		return Clip{}, err
	}

	clip := Clip{In: in, Out: out, Track: track, Source: source}

	if v, ok := obj["topFade"]; ok {
		f, err := asFloat(v, path+".topFade")
		if err != nil {
			return Clip{}, err
		}
		clip.TopFade = f
	}
	if v, ok := obj["tailFade"]; ok {
		f, err := asFloat(v, path+".tailFade")
		if err != nil {
			return Clip{}, err
		}
		clip.TailFade = f
	}
	// topFadeYUV/tailFadeYUV are accepted but carry the same semantics as
	// topFade/tailFade when the plain fields are absent (spec.md §6 lists
	// both; the core only fades one channel family at a time).
	if clip.TopFade == 0 {
		if v, ok := obj["topFadeYUV"]; ok {
			f, err := asFloat(v, path+".topFadeYUV")
			if err != nil {
				return Clip{}, err
			}
			clip.TopFade = f
		}
	}
	if clip.TailFade == 0 {
		if v, ok := obj["tailFadeYUV"]; ok {
			f, err := asFloat(v, path+".tailFadeYUV")
			if err != nil {
				return Clip{}, err
			}
			clip.TailFade = f
		}
	}

	if v, ok := obj["motion"]; ok {
		m, err := parseMotion(v, path+".motion")
		if err != nil {
			return Clip{}, err
		}
		clip.Motion = m
	}

	if v, ok := obj["transition"]; ok {
		t, err := parseTransition(v, path+".transition")
		if err != nil {
			return Clip{}, err
		}
		clip.Transition = t
	}

	if v, ok := obj["textFormat"].(rawObj); ok {
		clip.TextFormat = v
	}

	if v, ok := obj["channelMap"]; ok {
		cm, err := parseChannelMap(v, path+".channelMap")
		if err != nil {
			return Clip{}, err
		}
		clip.ChannelMap = cm
	}

	if v, ok := obj["effects"]; ok {
		effects, err := parseSimpleEffects(v, path+".effects")
		if err != nil {
			return Clip{}, err
		}
		clip.Effects = effects
	}

	return clip, nil
}

func parseTrack(obj rawObj, path string) (Track, error) {
	typeStr, err := requireString(obj, "type", path+".type")
	if err != nil {
		return Track{}, err
	}
	var tt TrackType
	switch typeStr {
	case "video":
		tt = TrackVideo
	case "audio":
		tt = TrackAudio
	case "subtitle":
		tt = TrackSubtitle
	case "caption":
		tt = TrackCaption
	case "burnin":
		tt = TrackBurnin
	default:
		return Track{}, apperr.New(apperr.InvalidEdl, path+".type", "unsupported track type "+typeStr)
	}

	number, err := requireInt(obj, "number", path+".number")
	if err != nil {
		return Track{}, err
	}
	if number < 1 {
		return Track{}, apperr.New(apperr.InvalidEdl, path+".number", "must be >= 1")
	}

	subtype := ""
	if v, ok := obj["subtype"]; ok {
		s, err := asString(v, path+".subtype")
		if err != nil {
			return Track{}, err
		}
		switch s {
		case "", "effects", "transform", "colour", "pan", "level":
			subtype = s
		default:
			return Track{}, apperr.New(apperr.InvalidEdl, path+".subtype", "unsupported subtype "+s)
		}
	}

	subnumber := 1
	if v, ok := obj["subnumber"]; ok {
		n, err := asInt(v, path+".subnumber")
		if err != nil {
			return Track{}, err
		}
		if n < 1 {
			return Track{}, apperr.New(apperr.InvalidEdl, path+".subnumber", "must be >= 1")
		}
		subnumber = n
	}
	if subtype == "" && subnumber != 1 {
		return Track{}, apperr.New(apperr.InvalidEdl, path, "subnumber != 1 requires a non-empty subtype")
	}

	return Track{Type: tt, Number: number, Subtype: subtype, Subnumber: subnumber}, nil
}

// parseSourceField dispatches on track subtype/type and source shape, per
// spec.md §4.2's "Source dispatch" rules.
func parseSourceField(obj rawObj, path string, track Track, edlFPS int) (Source, error) {
	_, hasSource := obj["source"]
	_, hasSources := obj["sources"]
	if hasSource == hasSources {
		return nil, apperr.New(apperr.InvalidEdl, path, "exactly one of source/sources is required")
	}

	var srcObj rawObj
	if hasSource {
		v := obj["source"]
		if v == nil {
			return nil, apperr.New(apperr.InvalidEdl, path+".source", "must not be null")
		}
		obj2, ok := v.(rawObj)
		if !ok {
			return nil, apperr.New(apperr.InvalidEdl, path+".source", "must be an object")
		}
		srcObj = obj2
	} else {
		arr, ok := obj["sources"].([]any)
		if !ok {
			return nil, apperr.New(apperr.InvalidEdl, path+".sources", "must be an array")
		}
		if len(arr) != 1 {
			return nil, apperr.New(apperr.InvalidEdl, path+".sources", "must contain exactly one element")
		}
		obj2, ok := arr[0].(rawObj)
		if !ok {
			return nil, apperr.New(apperr.InvalidEdl, path+".sources[0]", "must be an object")
		}
		srcObj = obj2
	}

	srcPath := path + ".source"

	switch {
	case track.IsEffectsTrack():
		return parseEffectSource(srcObj, srcPath)
	case track.IsTransformTrack():
		return parseTransformSource(srcObj, srcPath)
	case track.Type == TrackSubtitle || track.Type == TrackBurnin:
		return parseSubtitleSource(srcObj, srcPath)
	}

	if _, ok := srcObj["generate"]; ok {
		return parseGenerateSource(srcObj, srcPath)
	}
	if _, ok := srcObj["location"]; ok {
		return nil, apperr.New(apperr.InvalidEdl, srcPath+".location", "location sources are not supported")
	}
	if _, ok := srcObj["uri"]; ok {
		return parseMediaSource(srcObj, srcPath, edlFPS)
	}
	return nil, apperr.New(apperr.InvalidEdl, srcPath, "could not determine source variant")
}

func parseMediaSource(obj rawObj, path string, edlFPS int) (Source, error) {
	uri, err := requireString(obj, "uri", path+".uri")
	if err != nil {
		return nil, err
	}
	in, err := requireFloat(obj, "in", path+".in")
	if err != nil {
		return nil, err
	}
	out, err := requireFloat(obj, "out", path+".out")
	if err != nil {
		return nil, err
	}
	if out <= in {
		return nil, apperr.New(apperr.InvalidEdl, path+".out", "must be > in")
	}

	m := MediaSource{URI: uri, In: in, Out: out}
	if v, ok := obj["trackId"]; ok {
		m.TrackID, err = asString(v, path+".trackId")
		if err != nil {
			return nil, err
		}
	}
	if v, ok := obj["width"]; ok {
		m.Width, err = asInt(v, path+".width")
		if err != nil {
			return nil, err
		}
	}
	if v, ok := obj["height"]; ok {
		m.Height, err = asInt(v, path+".height")
		if err != nil {
			return nil, err
		}
	}
	if v, ok := obj["fps"]; ok {
		m.FPS, err = asInt(v, path+".fps")
		if err != nil {
			return nil, err
		}
	}
	if v, ok := obj["speed"]; ok {
		m.Speed, err = asFloat(v, path+".speed")
		if err != nil {
			return nil, err
		}
	}
	if v, ok := obj["gamma"]; ok {
		m.Gamma, err = asFloat(v, path+".gamma")
		if err != nil {
			return nil, err
		}
	}
	if v, ok := obj["audiomix"].(rawObj); ok {
		m.AudioMix = map[string]float64{}
		for k, val := range v {
			f, err := asFloat(val, path+".audiomix."+k)
			if err != nil {
				return nil, err
			}
			m.AudioMix[k] = f
		}
	}
	_ = edlFPS
	return m, nil
}

func parseGenerateSource(obj rawObj, path string) (Source, error) {
	genStr, err := requireString(obj, "generate", path+".generate")
	if err != nil {
		return nil, err
	}
	var kind GenerateKind
	switch genStr {
	case "black":
		kind = GenerateBlack
	case "colour", "color":
		kind = GenerateColour
	case "test_pattern", "testPattern":
		kind = GenerateTestPattern
	case "demo":
		kind = GenerateDemo
	default:
		return nil, apperr.New(apperr.InvalidEdl, path+".generate", "unsupported generate type "+genStr)
	}
	if kind != GenerateBlack {
		return nil, apperr.New(apperr.InvalidEdl, path+".generate", "only 'black' is supported")
	}

	in, err := requireFloat(obj, "in", path+".in")
	if err != nil {
		return nil, err
	}
	out, err := requireFloat(obj, "out", path+".out")
	if err != nil {
		return nil, err
	}

	g := GenerateSource{Kind: kind, In: in, Out: out}
	if v, ok := obj["width"]; ok {
		g.Width, err = asInt(v, path+".width")
		if err != nil {
			return nil, err
		}
	}
	if v, ok := obj["height"]; ok {
		g.Height, err = asInt(v, path+".height")
		if err != nil {
			return nil, err
		}
	}
	if v, ok := obj["parameters"].(rawObj); ok {
		g.Parameters = v
	}
	return g, nil
}

func parseEffectSource(obj rawObj, path string) (Source, error) {
	typeStr, err := requireString(obj, "type", path+".type")
	if err != nil {
		return nil, err
	}
	var et SimpleEffectType
	switch typeStr {
	case "brightness":
		et = EffectBrightness
	case "contrast":
		et = EffectContrast
	case "saturation":
		et = EffectSaturation
	default:
		return nil, apperr.New(apperr.InvalidEdl, path+".type", "unsupported effect type "+typeStr)
	}

	in, err := requireFloat(obj, "in", path+".in")
	if err != nil {
		return nil, err
	}
	out, err := requireFloat(obj, "out", path+".out")
	if err != nil {
		return nil, err
	}

	e := EffectSource{Type: et, In: in, Out: out}
	dataObj, _ := obj["data"].(rawObj)
	if dataObj != nil {
		if v, ok := dataObj["value"]; ok {
			f, err := asFloat(v, path+".data.value")
			if err != nil {
				return nil, err
			}
			e.Value = &f
		}
		if arr, ok := dataObj["filter"].([]any); ok {
			for i, kv := range arr {
				kvObj, ok := kv.(rawObj)
				if !ok {
					return nil, apperr.New(apperr.InvalidEdl, fmt.Sprintf("%s.data.filter[%d]", path, i), "must be an object")
				}
				fk, err := parseFilterKeyframe(kvObj, fmt.Sprintf("%s.data.filter[%d]", path, i))
				if err != nil {
					return nil, err
				}
				e.Filter = append(e.Filter, fk)
			}
		}
	}
	return e, nil
}

func parseFilterKeyframe(obj rawObj, path string) (FilterKeyframe, error) {
	t, err := requireFloat(obj, "time", path+".time")
	if err != nil {
		return FilterKeyframe{}, err
	}
	arr, ok := obj["points"].([]any)
	if !ok {
		return FilterKeyframe{}, apperr.New(apperr.InvalidEdl, path+".points", "required array")
	}
	fk := FilterKeyframe{Time: t}
	for i, pv := range arr {
		pair, ok := pv.([]any)
		if !ok || len(pair) != 2 {
			return FilterKeyframe{}, apperr.New(apperr.InvalidEdl, fmt.Sprintf("%s.points[%d]", path, i), "must be a [src,dst] pair")
		}
		src, err := asFloat(pair[0], fmt.Sprintf("%s.points[%d][0]", path, i))
		if err != nil {
			return FilterKeyframe{}, err
		}
		dst, err := asFloat(pair[1], fmt.Sprintf("%s.points[%d][1]", path, i))
		if err != nil {
			return FilterKeyframe{}, err
		}
		fk.Points = append(fk.Points, [2]float64{src, dst})
	}
	return fk, nil
}

func parseTransformSource(obj rawObj, path string) (Source, error) {
	if _, hasBezier := obj["bezier"]; hasBezier {
		return nil, apperr.New(apperr.InvalidEdl, path+".bezier", "bezier motion is not supported")
	}
	in, err := requireFloat(obj, "in", path+".in")
	if err != nil {
		return nil, err
	}
	out, err := requireFloat(obj, "out", path+".out")
	if err != nil {
		return nil, err
	}
	t := TransformSource{In: in, Out: out}
	arr, ok := obj["controlPoints"].([]any)
	if !ok {
		return nil, apperr.New(apperr.InvalidEdl, path+".controlPoints", "required array")
	}
	for i, cpv := range arr {
		cpObj, ok := cpv.(rawObj)
		if !ok {
			return nil, apperr.New(apperr.InvalidEdl, fmt.Sprintf("%s.controlPoints[%d]", path, i), "must be an object")
		}
		if _, hasBezier := cpObj["bezier"]; hasBezier {
			return nil, apperr.New(apperr.InvalidEdl, fmt.Sprintf("%s.controlPoints[%d].bezier", path, i), "bezier motion is not supported")
		}
		cpPath := fmt.Sprintf("%s.controlPoints[%d]", path, i)
		time, err := requireFloat(cpObj, "time", cpPath+".time")
		if err != nil {
			return nil, err
		}
		m, err := parseMotionFields(cpObj, cpPath)
		if err != nil {
			return nil, err
		}
		t.ControlPoints = append(t.ControlPoints, TransformControlPoint{Time: time, Motion: m})
	}
	return t, nil
}

func parseSubtitleSource(obj rawObj, path string) (Source, error) {
	in, err := requireFloat(obj, "in", path+".in")
	if err != nil {
		return nil, err
	}
	out, err := requireFloat(obj, "out", path+".out")
	if err != nil {
		return nil, err
	}
	s := SubtitleSource{In: in, Out: out}
	if v, ok := obj["text"]; ok {
		s.Text, err = asString(v, path+".text")
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func parseMotion(v any, path string) (*Motion, error) {
	obj, ok := v.(rawObj)
	if !ok {
		return nil, apperr.New(apperr.InvalidEdl, path, "must be an object")
	}
	if _, hasBezier := obj["bezier"]; hasBezier {
		return nil, apperr.New(apperr.InvalidEdl, path+".bezier", "bezier motion is not supported")
	}
	m, err := parseMotionFields(obj, path)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func parseMotionFields(obj rawObj, path string) (Motion, error) {
	m := Motion{ZoomX: 1, ZoomY: 1}
	var err error
	if v, ok := obj["panX"]; ok {
		m.PanX, err = asFloat(v, path+".panX")
	}
	if err == nil {
		if v, ok := obj["panY"]; ok {
			m.PanY, err = asFloat(v, path+".panY")
		}
	}
	if err == nil {
		if v, ok := obj["zoomX"]; ok {
			m.ZoomX, err = asFloat(v, path+".zoomX")
		}
	}
	if err == nil {
		if v, ok := obj["zoomY"]; ok {
			m.ZoomY, err = asFloat(v, path+".zoomY")
		}
	}
	if err == nil {
		if v, ok := obj["rotation"]; ok {
			m.Rotation, err = asFloat(v, path+".rotation")
		}
	}
	if err == nil {
		if v, ok := obj["flip"]; ok {
			b, ok2 := v.(bool)
			if !ok2 {
				err = apperr.New(apperr.InvalidEdl, path+".flip", "must be a boolean")
			} else {
				m.Flip = b
			}
		}
	}
	if err != nil {
		return Motion{}, err
	}
	return m, nil
}

func parseTransition(v any, path string) (*Transition, error) {
	obj, ok := v.(rawObj)
	if !ok {
		return nil, apperr.New(apperr.InvalidEdl, path, "must be an object")
	}
	typeStr, err := requireString(obj, "type", path+".type")
	if err != nil {
		return nil, err
	}
	var kind TransitionKind
	switch typeStr {
	case "dissolve":
		kind = TransitionDissolve
	case "wipe":
		kind = TransitionWipe
	case "slide":
		kind = TransitionSlide
	default:
		return nil, apperr.New(apperr.InvalidEdl, path+".type", "unsupported transition type "+typeStr)
	}
	duration, err := requireFloat(obj, "duration", path+".duration")
	if err != nil {
		return nil, err
	}
	return &Transition{Kind: kind, Duration: duration}, nil
}

func parseChannelMap(v any, path string) (map[int]float64, error) {
	obj, ok := v.(rawObj)
	if !ok {
		return nil, apperr.New(apperr.InvalidEdl, path, "must be an object")
	}
	cm := map[int]float64{}
	for k, val := range obj {
		var ch int
		if _, err := fmt.Sscanf(k, "%d", &ch); err != nil {
			return nil, apperr.New(apperr.InvalidEdl, path+"."+k, "key must be an integer 1..128")
		}
		if ch < 1 || ch > 128 {
			return nil, apperr.New(apperr.InvalidEdl, path+"."+k, "must be in 1..128")
		}
		f, err := asFloat(val, path+"."+k)
		if err != nil {
			return nil, err
		}
		if f != 1.0 {
			return nil, apperr.New(apperr.InvalidEdl, path+"."+k, "only the value 1.0 is supported")
		}
		cm[ch] = f
	}
	return cm, nil
}

func parseSimpleEffects(v any, path string) ([]SimpleEffect, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, apperr.New(apperr.InvalidEdl, path, "must be an array")
	}
	effects := make([]SimpleEffect, 0, len(arr))
	for i, ev := range arr {
		obj, ok := ev.(rawObj)
		if !ok {
			return nil, apperr.New(apperr.InvalidEdl, fmt.Sprintf("%s[%d]", path, i), "must be an object")
		}
		typeStr, err := requireString(obj, "type", fmt.Sprintf("%s[%d].type", path, i))
		if err != nil {
			return nil, err
		}
		var et SimpleEffectType
		switch typeStr {
		case "brightness":
			et = EffectBrightness
		case "contrast":
			et = EffectContrast
		case "saturation":
			et = EffectSaturation
		default:
			return nil, apperr.New(apperr.InvalidEdl, fmt.Sprintf("%s[%d].type", path, i), "unsupported effect type "+typeStr)
		}
		strength, err := requireFloat(obj, "strength", fmt.Sprintf("%s[%d].strength", path, i))
		if err != nil {
			return nil, err
		}
		effects = append(effects, SimpleEffect{Type: et, Strength: strength})
	}
	return effects, nil
}

// --- field extraction helpers ---

func rejectUnknownKeys(obj rawObj, allowed map[string]bool, path string) error {
	for k := range obj {
		if !allowed[k] {
			return apperr.New(apperr.InvalidEdl, path+"."+k, "unknown key")
		}
	}
	return nil
}

func requireInt(obj rawObj, key, path string) (int, error) {
	v, ok := obj[key]
	if !ok {
		return 0, apperr.New(apperr.InvalidEdl, path, "required")
	}
	return asInt(v, path)
}

func requireFloat(obj rawObj, key, path string) (float64, error) {
	v, ok := obj[key]
	if !ok {
		return 0, apperr.New(apperr.InvalidEdl, path, "required")
	}
	return asFloat(v, path)
}

func requireString(obj rawObj, key, path string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", apperr.New(apperr.InvalidEdl, path, "required")
	}
	return asString(v, path)
}

func asInt(v any, path string) (int, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, apperr.New(apperr.InvalidEdl, path, "must be a number")
	}
	return int(f), nil
}

func asFloat(v any, path string) (float64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, apperr.New(apperr.InvalidEdl, path, "must be a number")
	}
	return f, nil
}

func asString(v any, path string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", apperr.New(apperr.InvalidEdl, path, "must be a string")
	}
	return s, nil
}
