package compositor

import (
	"math"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/instruction"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/media"
)

// isIdentityGeometry reports whether g has no observable effect, matching the
// orchestrator's requiresCPUProcessing epsilon (spec.md §4.7).
const geometryEpsilon = 1e-3

func isIdentityGeometry(g instruction.Geometry) bool {
	return math.Abs(g.PanX) <= geometryEpsilon &&
		math.Abs(g.PanY) <= geometryEpsilon &&
		math.Abs(g.ZoomX-1) <= geometryEpsilon &&
		math.Abs(g.ZoomY-1) <= geometryEpsilon &&
		math.Abs(g.Rotation) <= geometryEpsilon &&
		!g.Flip
}

// applyGeometry resamples f in place according to g, using inverse
// sampling with bilinear interpolation and a clamp-to-edge border policy
// (spec.md §9 Open Question: geometric transforms). scratch must have f's
// exact geometry and format; it is used as the pre-transform source so f
// can be overwritten plane by plane.
func applyGeometry(f, scratch *media.Frame, g instruction.Geometry) {
	if isIdentityGeometry(g) {
		return
	}
	copyFrame(scratch, f)

	rad := -g.Rotation * math.Pi / 180.0
	cosT, sinT := math.Cos(rad), math.Sin(rad)

	planes := f.Format.PlaneCount()
	for p := 0; p < planes; p++ {
		w, h := f.PlaneDims(p)
		if f.Format.IsPackedRGB() {
			resamplePackedPlane(f.Planes[p], scratch.Planes[p], f.Linesize[p], w/3, h, g, cosT, sinT)
			continue
		}
		resamplePlane(f.Planes[p], scratch.Planes[p], f.Linesize[p], w, h, g, cosT, sinT)
	}
}

// resamplePlane fills dst[y][x] for a single-byte-per-pixel plane by
// inverse-mapping (x,y) back into src and bilinear-sampling there.
func resamplePlane(dst, src []byte, stride, w, h int, g instruction.Geometry, cosT, sinT float64) {
	cx, cy := float64(w)/2, float64(h)/2
	for y := 0; y < h; y++ {
		row := dst[y*stride : y*stride+w]
		for x := 0; x < w; x++ {
			sx, sy := inverseMap(float64(x), float64(y), cx, cy, float64(w), float64(h), g, cosT, sinT)
			row[x] = sampleBilinear(src, stride, w, h, sx, sy)
		}
	}
}

func resamplePackedPlane(dst, src []byte, stride, w, h int, g instruction.Geometry, cosT, sinT float64) {
	cx, cy := float64(w)/2, float64(h)/2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := inverseMap(float64(x), float64(y), cx, cy, float64(w), float64(h), g, cosT, sinT)
			for c := 0; c < 3; c++ {
				dst[y*stride+x*3+c] = sampleBilinearChannel(src, stride, w, h, sx, sy, c)
			}
		}
	}
}

// inverseMap undoes pan, zoom, rotation and flip to find the source
// coordinate that maps forward onto destination pixel (x,y).
func inverseMap(x, y, cx, cy, w, h float64, g instruction.Geometry, cosT, sinT float64) (float64, float64) {
	nx := x - cx - g.PanX*w
	ny := y - cy - g.PanY*h

	zoomX, zoomY := g.ZoomX, g.ZoomY
	if zoomX == 0 {
		zoomX = 1
	}
	if zoomY == 0 {
		zoomY = 1
	}
	sx0 := nx / zoomX
	sy0 := ny / zoomY

	rx := sx0*cosT - sy0*sinT
	ry := sx0*sinT + sy0*cosT

	if g.Flip {
		rx = -rx
	}
	return rx + cx, ry + cy
}

func sampleBilinear(src []byte, stride, w, h int, x, y float64) byte {
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)

	v00 := float64(pixelClamped(src, stride, w, h, x0, y0))
	v10 := float64(pixelClamped(src, stride, w, h, x0+1, y0))
	v01 := float64(pixelClamped(src, stride, w, h, x0, y0+1))
	v11 := float64(pixelClamped(src, stride, w, h, x0+1, y0+1))

	top := v00 + (v10-v00)*fx
	bot := v01 + (v11-v01)*fx
	return clampByte(top + (bot-top)*fy)
}

func sampleBilinearChannel(src []byte, stride, w, h int, x, y float64, channel int) byte {
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)

	v00 := float64(packedPixelClamped(src, stride, w, h, x0, y0, channel))
	v10 := float64(packedPixelClamped(src, stride, w, h, x0+1, y0, channel))
	v01 := float64(packedPixelClamped(src, stride, w, h, x0, y0+1, channel))
	v11 := float64(packedPixelClamped(src, stride, w, h, x0+1, y0+1, channel))

	top := v00 + (v10-v00)*fx
	bot := v01 + (v11-v01)*fx
	return clampByte(top + (bot-top)*fy)
}

// pixelClamped reads a single-byte-per-pixel plane sample, clamping
// out-of-range coordinates to the edge (spec.md §9's documented border
// policy for the Open Question on geometric transforms).
func pixelClamped(src []byte, stride, w, h, x, y int) byte {
	if x < 0 {
		x = 0
	} else if x >= w {
		x = w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= h {
		y = h - 1
	}
	return src[y*stride+x]
}

func packedPixelClamped(src []byte, stride, w, h, x, y, channel int) byte {
	if x < 0 {
		x = 0
	} else if x >= w {
		x = w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= h {
		y = h - 1
	}
	return src[y*stride+x*3+channel]
}
