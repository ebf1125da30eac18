package autotune

import "github.com/cwsl/vtxcore/internal/raster"

// SyntheticEmitter produces a deterministic, visually legible test frame:
// a vertical bar that sweeps left-to-right across successive frames
// (wrapping at the right edge), plus a fixed tick pixel at column Width/8
// on every row, which forms a static vertical line. No horizontal tick
// rows are drawn. It exists because the synthetic IQ source's
// Gaussian-noise-plus-tone signal never carries real video content, so a
// real FM-discriminate/line-estimate/raster pass has nothing to lock onto;
// this keeps the raster-publish pipeline exercisable without hardware.
type SyntheticEmitter struct {
	Width, Height int
	frame         int
}

// NewSyntheticEmitter returns an emitter for the given raster dimensions.
func NewSyntheticEmitter(width, height int) *SyntheticEmitter {
	return &SyntheticEmitter{Width: width, Height: height}
}

// Next renders the next frame in the sweep and advances internal state.
func (e *SyntheticEmitter) Next() raster.Frame {
	pixels := make([]uint8, e.Width*e.Height)
	barCol := 0
	if e.Width > 0 {
		barCol = e.frame % e.Width
	}
	tickCol := e.Width / 8

	for row := 0; row < e.Height; row++ {
		base := row * e.Width
		for col := 0; col < e.Width; col++ {
			v := uint8(16)
			if col == barCol {
				v = 235
			}
			if col == tickCol {
				v = 180
			}
			pixels[base+col] = v
		}
	}

	e.frame++
	return raster.Frame{
		Width:   e.Width,
		Height:  e.Height,
		Pixels:  pixels,
		Quality: 1, // synthetic pattern is definitionally self-consistent
	}
}
