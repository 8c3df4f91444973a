package compositor

import "github.com/blackbird-aslough/edl2ffmpeg/internal/media"

// applyFade implements spec.md §4.6's fade kernel: luma is scaled by fade,
// chroma is scaled toward the neutral value 128 so the result fades to
// black rather than to gray. RGB/BGR channels all scale toward 0.
func applyFade(f *media.Frame, fade float64) {
	if fade >= 1.0 {
		return
	}
	if fade < 0 {
		fade = 0
	}
	if f.Format.IsPackedRGB() {
		scalePlaneToward(f, 0, fade, 0)
		return
	}
	scalePlaneToward(f, 0, fade, 0)
	if f.Format.PlaneCount() > 1 {
		scalePlaneToward(f, 1, fade, 128)
		scalePlaneToward(f, 2, fade, 128)
	}
}

func scalePlaneToward(f *media.Frame, plane int, fade float64, neutral float64) {
	w, h := f.PlaneDims(plane)
	stride := f.Linesize[plane]
	buf := f.Planes[plane]
	for row := 0; row < h; row++ {
		rowBuf := buf[row*stride : row*stride+w]
		for i, v := range rowBuf {
			rowBuf[i] = clampByte(neutral + (float64(v)-neutral)*fade)
		}
	}
}
