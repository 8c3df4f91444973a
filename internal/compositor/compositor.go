// Package compositor implements the frame compositor from spec.md §4.6:
// fade, LUT-driven effects, color generation, format conversion, and a
// geometric transform resolving the spec's Open Question with an
// inverse-sampling bilinear resampler. Grounded on original_source's
// FrameCompositor for the operation order and on its LUT/fade/color-
// generation formulas.
package compositor

import (
	"fmt"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/framepool"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/instruction"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/media"
)

// Compositor owns an output frame pool and one scratch buffer sized to the
// configured geometry, per spec.md §4.6's "owns a frame pool for output
// frames and one scratch buffer".
type Compositor struct {
	width, height int
	format        media.PixelFormat
	pool          *framepool.Pool
	scratch       *media.Frame
}

// New constructs a compositor targeting the given output geometry and
// pixel format, backed by a pool of the given size.
func New(width, height int, format media.PixelFormat, poolSize int) (*Compositor, error) {
	pool, err := framepool.New(width, height, format, poolSize)
	if err != nil {
		return nil, fmt.Errorf("compositor: %w", err)
	}
	scratch, err := media.NewFrame(width, height, format)
	if err != nil {
		return nil, fmt.Errorf("compositor: %w", err)
	}
	return &Compositor{width: width, height: height, format: format, pool: pool, scratch: scratch}, nil
}

// Process implements spec.md §4.6's process(input, instruction) operation.
// The caller owns the returned handle and must Release it.
func (c *Compositor) Process(input *media.Frame, inst instruction.Instruction) (*framepool.Handle, error) {
	if input == nil {
		return c.GenerateColor(inst.Color)
	}

	h, err := c.pool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("compositor: acquire output frame: %w", err)
	}
	out := h.Frame

	if input.Width == out.Width && input.Height == out.Height && input.Format == out.Format {
		copyFrame(out, input)
	} else {
		scaleConvert(out, input)
	}

	if inst.Kind == instruction.KindDrawFrame {
		if inst.Fade < 1.0 {
			applyFade(out, inst.Fade)
		}
		for _, eff := range inst.Effects {
			applyEffect(out, eff)
		}
		applyGeometry(out, c.scratch, inst.Geometry)
	}

	return h, nil
}

// GenerateColor fills a freshly acquired output frame with the given
// color, per spec.md §4.6's generateColor(r,g,b).
func (c *Compositor) GenerateColor(color instruction.Color) (*framepool.Handle, error) {
	h, err := c.pool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("compositor: acquire output frame: %w", err)
	}
	fillColor(h.Frame, color.R, color.G, color.B)
	return h, nil
}

// Geometry returns the compositor's configured output geometry.
func (c *Compositor) Geometry() (width, height int, format media.PixelFormat) {
	return c.width, c.height, c.format
}
