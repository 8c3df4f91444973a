package edl

import (
	"fmt"
	"sort"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/apperr"
)

// normalize groups e.Clips into tracks, fills gaps with null clips, rejects
// overlaps, computes the global duration, and renames effects tracks to
// fx_N with an FxAppliesTo mapping back to their parent track. Grounded on
// core/cutter.go's MultiTrackCutter, which walks each track's clip list in
// order while tracking a running cursor.
func normalize(e *EDL) (*EDL, error) {
	order := make([]string, 0)
	seen := map[string]bool{}
	byKey := map[string][]Clip{}
	trackOf := map[string]Track{}

	for _, c := range e.Clips {
		key := c.Track.Key()
		if !seen[key] {
			seen[key] = true
			order = append(order, key)
			trackOf[key] = c.Track
		}
		byKey[key] = append(byKey[key], c)
	}

	for key, clips := range byKey {
		sort.SliceStable(clips, func(i, j int) bool { return clips[i].In < clips[j].In })

		aligned := make([]Clip, 0, len(clips))
		cursor := 0.0
		for _, c := range clips {
			if c.In < cursor-1e-9 {
				return nil, apperr.New(apperr.InvalidEdl, fmt.Sprintf("$.clips[track=%s]", key), "overlapping clips")
			}
			if c.In > cursor+1e-9 {
				aligned = append(aligned, nullClip(trackOf[key], cursor, c.In))
			}
			aligned = append(aligned, c)
			cursor = c.Out
		}
		byKey[key] = aligned
	}

	duration := 0.0
	for _, clips := range byKey {
		if n := len(clips); n > 0 {
			if last := clips[n-1].Out; last > duration {
				duration = last
			}
		}
	}

	for key, clips := range byKey {
		if n := len(clips); n > 0 {
			if last := clips[n-1].Out; last < duration-1e-9 {
				clips = append(clips, nullClip(trackOf[key], last, duration))
				byKey[key] = clips
			}
		}
	}

	renamed := map[string][]Clip{}
	renamedOrder := make([]string, 0, len(order))
	fxAppliesTo := map[string]string{}
	fxCounter := 0

	for _, key := range order {
		track := trackOf[key]
		outKey := key
		if track.IsEffectsTrack() {
			fxCounter++
			outKey = fmt.Sprintf("fx_%d", fxCounter)
			fxAppliesTo[outKey] = track.ParentKey()
		}
		renamed[outKey] = byKey[key]
		renamedOrder = append(renamedOrder, outKey)
	}

	e.Tracks = renamed
	e.TrackOrder = renamedOrder
	e.Duration = duration
	e.FxAppliesTo = fxAppliesTo
	return e, nil
}

// nullClip synthesizes a gap-filler clip on track spanning [in, out), per
// spec.md §4.2's "insert a null clip for the gap" rule.
func nullClip(track Track, in, out float64) Clip {
	return Clip{In: in, Out: out, Track: track, Source: nil, IsNullClip: true}
}
