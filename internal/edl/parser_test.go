package edl

import (
	"strings"
	"testing"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/apperr"
)

func TestParseSingleClipProducesExpectedTotalFrames(t *testing.T) {
	doc := `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": [
			{"in": 0, "out": 3, "track": {"type": "video", "number": 1},
			 "source": {"uri": "counter.mp4", "in": 0, "out": 3}}
		]
	}`
	e, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := e.TotalFrames(); got != 90 {
		t.Errorf("expected 90 total frames, got %d", got)
	}
	clips := e.Tracks["video_1"]
	if len(clips) != 1 {
		t.Fatalf("expected 1 clip on video_1, got %d", len(clips))
	}
	ms, ok := clips[0].Source.(MediaSource)
	if !ok {
		t.Fatalf("expected MediaSource, got %T", clips[0].Source)
	}
	if ms.URI != "counter.mp4" {
		t.Errorf("expected uri counter.mp4, got %s", ms.URI)
	}
}

func TestParseRejectsOverlappingClipsOnSameTrack(t *testing.T) {
	doc := `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": [
			{"in": 0, "out": 3, "track": {"type": "video", "number": 1},
			 "source": {"uri": "a.mp4", "in": 0, "out": 3}},
			{"in": 2, "out": 5, "track": {"type": "video", "number": 1},
			 "source": {"uri": "b.mp4", "in": 0, "out": 3}}
		]
	}`
	_, err := Parse([]byte(doc))
	if err == nil {
		t.Fatalf("expected overlap rejection, got nil error")
	}
	if !apperr.Is(err, apperr.InvalidEdl) {
		t.Errorf("expected InvalidEdl, got %v", err)
	}
	if !strings.Contains(err.Error(), "video_1") {
		t.Errorf("expected error to reference the overlapping track, got %v", err)
	}
}

func TestParseAttachesEffectsTrackToParentAndRenamesToFx(t *testing.T) {
	doc := `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": [
			{"in": 0, "out": 4, "track": {"type": "video", "number": 1},
			 "source": {"uri": "a.mp4", "in": 0, "out": 4}},
			{"in": 1, "out": 3, "track": {"type": "video", "number": 1, "subtype": "effects"},
			 "source": {"type": "brightness", "in": 1, "out": 3, "data": {"value": 1.5}}}
		]
	}`
	e, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	parent, ok := e.FxAppliesTo["fx_1"]
	if !ok {
		t.Fatalf("expected fx_1 in FxAppliesTo, got %v", e.FxAppliesTo)
	}
	if parent != "video_1" {
		t.Errorf("expected fx_1 to apply to video_1, got %s", parent)
	}
	fxClips := e.Tracks["fx_1"]
	if len(fxClips) != 3 {
		t.Fatalf("expected the fx clip between leading and trailing null clips, got %d clips", len(fxClips))
	}
	es, ok := fxClips[1].Source.(EffectSource)
	if !ok {
		t.Fatalf("expected EffectSource, got %T", fxClips[1].Source)
	}
	if es.Value == nil || *es.Value != 1.5 {
		t.Errorf("expected effect value 1.5, got %v", es.Value)
	}
}

func TestParseFillsGapsWithNullClips(t *testing.T) {
	doc := `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": [
			{"in": 1, "out": 3, "track": {"type": "video", "number": 1},
			 "source": {"uri": "a.mp4", "in": 0, "out": 2}}
		]
	}`
	e, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	clips := e.Tracks["video_1"]
	if len(clips) != 2 {
		t.Fatalf("expected leading null clip + real clip, got %d clips", len(clips))
	}
	if !clips[0].IsNullClip || clips[0].In != 0 || clips[0].Out != 1 {
		t.Errorf("expected leading null clip [0,1), got %+v", clips[0])
	}
	if clips[1].IsNullClip {
		t.Errorf("expected second clip to be the real clip")
	}
	if e.Duration != 3 {
		t.Errorf("expected duration 3, got %v", e.Duration)
	}
}

func TestParseRejectsLocationSource(t *testing.T) {
	doc := `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": [
			{"in": 0, "out": 1, "track": {"type": "video", "number": 1},
			 "source": {"location": "/mnt/media/a.mp4", "in": 0, "out": 1}}
		]
	}`
	_, err := Parse([]byte(doc))
	if err == nil || !apperr.Is(err, apperr.InvalidEdl) {
		t.Fatalf("expected InvalidEdl for location source, got %v", err)
	}
}

func TestParseRejectsUnknownTopLevelKey(t *testing.T) {
	doc := `{"fps": 30, "width": 1920, "height": 1080, "clips": [], "extra": true}`
	_, err := Parse([]byte(doc))
	if err == nil || !apperr.Is(err, apperr.InvalidEdl) {
		t.Fatalf("expected InvalidEdl for unknown key, got %v", err)
	}
}

func TestParseRejectsSourceAndSourcesTogether(t *testing.T) {
	doc := `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": [
			{"in": 0, "out": 1, "track": {"type": "video", "number": 1},
			 "source": {"uri": "a.mp4", "in": 0, "out": 1},
			 "sources": [{"uri": "a.mp4", "in": 0, "out": 1}]}
		]
	}`
	_, err := Parse([]byte(doc))
	if err == nil || !apperr.Is(err, apperr.InvalidEdl) {
		t.Fatalf("expected InvalidEdl when both source and sources are present, got %v", err)
	}
}

func TestParseAcceptsSourcesArrayOfOne(t *testing.T) {
	doc := `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": [
			{"in": 0, "out": 1, "track": {"type": "video", "number": 1},
			 "sources": [{"uri": "a.mp4", "in": 0, "out": 1}]}
		]
	}`
	e, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, ok := e.Tracks["video_1"][0].Source.(MediaSource); !ok {
		t.Errorf("expected MediaSource from sources[] singleton")
	}
}

func TestParseRejectsBezierMotion(t *testing.T) {
	doc := `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": [
			{"in": 0, "out": 1, "track": {"type": "video", "number": 1},
			 "source": {"uri": "a.mp4", "in": 0, "out": 1},
			 "motion": {"bezier": [[0,0],[1,1]]}}
		]
	}`
	_, err := Parse([]byte(doc))
	if err == nil || !apperr.Is(err, apperr.InvalidEdl) {
		t.Fatalf("expected InvalidEdl for bezier motion, got %v", err)
	}
}

func TestParseSubtitleTrackDoesNotFail(t *testing.T) {
	doc := `{
		"fps": 30, "width": 1920, "height": 1080,
		"clips": [
			{"in": 0, "out": 1, "track": {"type": "video", "number": 1},
			 "source": {"uri": "a.mp4", "in": 0, "out": 1}},
			{"in": 0, "out": 1, "track": {"type": "subtitle", "number": 1},
			 "source": {"text": "hello", "in": 0, "out": 1}}
		]
	}`
	e, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, ok := e.Tracks["subtitle_1"][0].Source.(SubtitleSource); !ok {
		t.Errorf("expected SubtitleSource on subtitle track")
	}
}
