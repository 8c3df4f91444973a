package compositor

// lutSize is the number of entries in a byte-domain lookup table.
const lutSize = 256

// buildBrightnessLUT implements spec.md §4.6's Brightness(strength):
// LUT[i] = clamp(i + (strength-1)*255, 0, 255).
func buildBrightnessLUT(strength float64) [lutSize]byte {
	var lut [lutSize]byte
	offset := (strength - 1) * 255
	for i := 0; i < lutSize; i++ {
		lut[i] = clampByte(float64(i) + offset)
	}
	return lut
}

// buildContrastLUT implements spec.md §4.6's Contrast(strength):
// LUT[i] = clamp(128 + (i-128)*strength, 0, 255).
func buildContrastLUT(strength float64) [lutSize]byte {
	var lut [lutSize]byte
	for i := 0; i < lutSize; i++ {
		lut[i] = clampByte(128 + (float64(i)-128)*strength)
	}
	return lut
}

// buildLinearMappingLUT precomputes the transfer-function table described
// in spec.md §4.6: piecewise-linear interpolation of (src,dst) sample
// pairs, both in [0,1], evaluated once per 256-entry table instead of once
// per pixel.
func buildLinearMappingLUT(points [][2]float64) [lutSize]byte {
	var lut [lutSize]byte
	if len(points) == 0 {
		for i := 0; i < lutSize; i++ {
			lut[i] = byte(i)
		}
		return lut
	}
	for i := 0; i < lutSize; i++ {
		x := float64(i) / 255.0
		y := evalPiecewiseLinear(points, x)
		lut[i] = clampByte(y * 255)
	}
	return lut
}

// evalPiecewiseLinear evaluates the piecewise-linear function defined by
// points (sorted by src) at x, per spec.md §4.6's transfer-function rule.
func evalPiecewiseLinear(points [][2]float64, x float64) float64 {
	first, last := points[0], points[len(points)-1]
	if x < first[0] {
		return first[1]
	}
	if x > last[0] {
		return last[1]
	}
	for i := 0; i < len(points)-1; i++ {
		p, n := points[i], points[i+1]
		if x >= p[0] && x <= n[0] {
			if n[0]-p[0] < 1e-4 {
				return p[1]
			}
			frac := (x - p[0]) / (n[0] - p[0])
			return p[1] + (n[1]-p[1])*frac
		}
	}
	return last[1]
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}

// applyLUT writes lut[src[i]] into dst[i] for every byte in the plane,
// unrolled 8 pixels per iteration per spec.md §4.6/§9's "non-semantic
// performance hint" — the unroll changes nothing observable, only the
// loop's shape, matching original_source's inner-loop style.
func applyLUT(dst, src []byte, lut *[lutSize]byte) {
	n := len(src)
	i := 0
	for ; i+8 <= n; i += 8 {
		dst[i] = lut[src[i]]
		dst[i+1] = lut[src[i+1]]
		dst[i+2] = lut[src[i+2]]
		dst[i+3] = lut[src[i+3]]
		dst[i+4] = lut[src[i+4]]
		dst[i+5] = lut[src[i+5]]
		dst[i+6] = lut[src[i+6]]
		dst[i+7] = lut[src[i+7]]
	}
	for ; i < n; i++ {
		dst[i] = lut[src[i]]
	}
}
