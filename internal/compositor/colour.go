package compositor

import "github.com/blackbird-aslough/edl2ffmpeg/internal/media"

// fillColor fills f's planes with the deterministic color f.Format calls
// for, per spec.md §4.6's generateColor: BT.601-style RGB→YUV for planar
// YUV families, packed 3-byte pixels for RGB/BGR.
func fillColor(f *media.Frame, r, g, b float64) {
	if f.Format.IsPackedRGB() {
		fillPackedColor(f, r, g, b)
		return
	}
	fillYUVColor(f, r, g, b)
}

func fillYUVColor(f *media.Frame, r, g, b float64) {
	y := 0.299*r + 0.587*g + 0.114*b
	u := -0.147*r - 0.289*g + 0.436*b + 128.0/255.0
	v := 0.615*r - 0.515*g - 0.100*b + 128.0/255.0

	fillPlane(f, 0, clampByte(y*255))
	fillPlane(f, 1, clampByte(u*255))
	fillPlane(f, 2, clampByte(v*255))
}

func fillPlane(f *media.Frame, plane int, value byte) {
	_, h := f.PlaneDims(plane)
	stride := f.Linesize[plane]
	buf := f.Planes[plane]
	for row := 0; row < h; row++ {
		rowBuf := buf[row*stride : row*stride+stride]
		for i := range rowBuf {
			rowBuf[i] = value
		}
	}
}

func fillPackedColor(f *media.Frame, r, g, b float64) {
	var rb, gb, bb byte
	if f.Format == media.PixelFormatBGR24 {
		rb, gb, bb = clampByte(b*255), clampByte(g*255), clampByte(r*255)
	} else {
		rb, gb, bb = clampByte(r*255), clampByte(g*255), clampByte(b*255)
	}
	stride := f.Linesize[0]
	buf := f.Planes[0]
	for row := 0; row < f.Height; row++ {
		rowBuf := buf[row*stride : row*stride+f.Width*3]
		for x := 0; x < f.Width; x++ {
			rowBuf[x*3+0] = rb
			rowBuf[x*3+1] = gb
			rowBuf[x*3+2] = bb
		}
	}
}
