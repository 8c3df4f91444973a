package compositor

import (
	"github.com/blackbird-aslough/edl2ffmpeg/internal/instruction"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/media"
)

// applyEffect dispatches one instruction effect onto f's luma plane, per
// spec.md §4.6. Effects operate on planar YUV only; other formats are
// no-ops, and Saturation/Blur/Sharpen are reserved placeholders per the
// spec's explicit "may be no-op" allowance.
func applyEffect(f *media.Frame, eff instruction.Effect) {
	if !f.Format.IsYUV() {
		return
	}
	switch eff.Kind {
	case instruction.EffectBrightness:
		var lut [lutSize]byte
		if eff.UseLinearMapping {
			lut = buildLinearMappingLUT(eff.LinearMapping)
		} else {
			lut = buildBrightnessLUT(eff.Strength)
		}
		applyLUT(f.Planes[0], f.Planes[0], &lut)
	case instruction.EffectContrast:
		var lut [lutSize]byte
		if eff.UseLinearMapping {
			lut = buildLinearMappingLUT(eff.LinearMapping)
		} else {
			lut = buildContrastLUT(eff.Strength)
		}
		applyLUT(f.Planes[0], f.Planes[0], &lut)
	case instruction.EffectSaturation, instruction.EffectBlur, instruction.EffectSharpen:
		// reserved: no-op placeholder per spec.md §4.6.
	}
}
