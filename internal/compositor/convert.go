package compositor

import "github.com/blackbird-aslough/edl2ffmpeg/internal/media"

// copyFrame deep-copies src's planes into dst, which must already have
// src's exact geometry and pixel format (spec.md §4.6 step 3's "else
// deep-copy planes" branch).
func copyFrame(dst, src *media.Frame) {
	planes := src.Format.PlaneCount()
	for p := 0; p < planes; p++ {
		w, h := src.PlaneDims(p)
		srcStride, dstStride := src.Linesize[p], dst.Linesize[p]
		for row := 0; row < h; row++ {
			copy(dst.Planes[p][row*dstStride:row*dstStride+w], src.Planes[p][row*srcStride:row*srcStride+w])
		}
	}
}

// scaleConvert is the swscale-equivalent scale/format conversion path
// (spec.md §4.6 step 3): src is decoded into a full-resolution RGB plane,
// then resampled and re-encoded into dst's declared geometry and pixel
// format. Grounded on the colour-space matrices in spec.md §4.6's
// generateColor (used here in both directions).
func scaleConvert(dst, src *media.Frame) {
	rgb := toRGB(src)
	fromRGB(dst, rgb, src.Width, src.Height)
}

// rgbPlane is a flat, full-resolution RGB float buffer in [0,1]^3.
type rgbPlane struct {
	w, h int
	data []float64 // w*h*3, row-major, R,G,B interleaved
}

func toRGB(f *media.Frame) rgbPlane {
	out := rgbPlane{w: f.Width, h: f.Height, data: make([]float64, f.Width*f.Height*3)}
	if f.Format.IsPackedRGB() {
		stride := f.Linesize[0]
		for y := 0; y < f.Height; y++ {
			row := f.Planes[0][y*stride : y*stride+f.Width*3]
			for x := 0; x < f.Width; x++ {
				idx := (y*f.Width + x) * 3
				if f.Format == media.PixelFormatBGR24 {
					out.data[idx+0] = float64(row[x*3+2]) / 255.0
					out.data[idx+1] = float64(row[x*3+1]) / 255.0
					out.data[idx+2] = float64(row[x*3+0]) / 255.0
				} else {
					out.data[idx+0] = float64(row[x*3+0]) / 255.0
					out.data[idx+1] = float64(row[x*3+1]) / 255.0
					out.data[idx+2] = float64(row[x*3+2]) / 255.0
				}
			}
		}
		return out
	}

	wDiv, hDiv := f.Format.ChromaSubsampling()
	yStride, uStride, vStride := f.Linesize[0], f.Linesize[1], f.Linesize[2]
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			yv := float64(f.Planes[0][y*yStride+x]) / 255.0
			cy, cx := y/hDiv, x/wDiv
			u := float64(f.Planes[1][cy*uStride+cx])/255.0 - 0.5
			v := float64(f.Planes[2][cy*vStride+cx])/255.0 - 0.5

			r := yv + 1.402*v
			g := yv - 0.344136*u - 0.714136*v
			b := yv + 1.772*u

			idx := (y*f.Width + x) * 3
			out.data[idx+0] = clamp01(r)
			out.data[idx+1] = clamp01(g)
			out.data[idx+2] = clamp01(b)
		}
	}
	return out
}

func fromRGB(dst *media.Frame, src rgbPlane, srcW, srcH int) {
	if dst.Format.IsPackedRGB() {
		stride := dst.Linesize[0]
		for y := 0; y < dst.Height; y++ {
			row := dst.Planes[0][y*stride : y*stride+dst.Width*3]
			for x := 0; x < dst.Width; x++ {
				r, g, b := sampleRGB(src, srcW, srcH, x, y, dst.Width, dst.Height)
				if dst.Format == media.PixelFormatBGR24 {
					row[x*3+0], row[x*3+1], row[x*3+2] = clampByte(b*255), clampByte(g*255), clampByte(r*255)
				} else {
					row[x*3+0], row[x*3+1], row[x*3+2] = clampByte(r*255), clampByte(g*255), clampByte(b*255)
				}
			}
		}
		return
	}

	wDiv, hDiv := dst.Format.ChromaSubsampling()
	yStride := dst.Linesize[0]
	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			r, g, b := sampleRGB(src, srcW, srcH, x, y, dst.Width, dst.Height)
			yv := 0.299*r + 0.587*g + 0.114*b
			dst.Planes[0][y*yStride+x] = clampByte(yv * 255)
		}
	}

	cw, ch := dst.PlaneDims(1)
	uStride, vStride := dst.Linesize[1], dst.Linesize[2]
	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			// average the wDiv*hDiv luma-resolution block this chroma
			// sample covers, matching standard chroma subsampling.
			var rs, gs, bs float64
			var n float64
			for dy := 0; dy < hDiv; dy++ {
				for dx := 0; dx < wDiv; dx++ {
					x, y := cx*wDiv+dx, cy*hDiv+dy
					if x >= dst.Width || y >= dst.Height {
						continue
					}
					r, g, b := sampleRGB(src, srcW, srcH, x, y, dst.Width, dst.Height)
					rs, gs, bs = rs+r, gs+g, bs+b
					n++
				}
			}
			if n == 0 {
				n = 1
			}
			r, g, b := rs/n, gs/n, bs/n
			u := -0.147*r - 0.289*g + 0.436*b + 0.5
			v := 0.615*r - 0.515*g - 0.100*b + 0.5
			dst.Planes[1][cy*uStride+cx] = clampByte(u * 255)
			dst.Planes[2][cy*vStride+cx] = clampByte(v * 255)
		}
	}
}

// sampleRGB nearest-samples src (srcW x srcH) at the position corresponding
// to (x,y) in a dstW x dstH grid.
func sampleRGB(src rgbPlane, srcW, srcH, x, y, dstW, dstH int) (r, g, b float64) {
	sx := x * srcW / dstW
	sy := y * srcH / dstH
	if sx >= srcW {
		sx = srcW - 1
	}
	if sy >= srcH {
		sy = srcH - 1
	}
	idx := (sy*srcW + sx) * 3
	return src.data[idx+0], src.data[idx+1], src.data[idx+2]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
