// Package raster reshapes a conditioned composite-video sample stream into
// a fixed H x W image and scores its per-frame quality, using gonum/stat's
// percentile machinery the way ka9q_ubersdr's waterfall/image extensions
// normalize magnitude data into displayable pixel ranges.
package raster

import (
	"image"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Frame is one assembled raster: grayscale pixels in row-major order, plus
// the quality metric used to drive auto-tune decisions (spec §4.6, §4.7).
type Frame struct {
	Width   int
	Height  int
	Pixels  []uint8 // row-major, len == Width*Height
	Quality float64 // in [-1, 1]
}

// Assemble reshapes x (one locked line period's worth of samples per row)
// into a Height x Width raster, per spec §4.6:
//  1. split the last Height*PeriodSamp samples of x into Height rows of
//     PeriodSamp samples each, left edge-padding with x[0] when x is shorter,
//  2. horizontally resample each row from PeriodSamp samples to Width via
//     linspace index rounding,
//  3. normalize intensity using the 5th/95th percentile of the full frame,
//  4. score quality as the mean adjacent-row correlation, clamped to [-1,1].
func Assemble(x []float64, width, height int, periodSamp float64) Frame {
	if width <= 0 || height <= 0 || periodSamp <= 1 {
		return Frame{Width: width, Height: height, Pixels: make([]uint8, width*height)}
	}

	rows := make([][]float64, height)
	period := int(periodSamp + 0.5)
	if period < 1 {
		period = 1
	}

	// The tracking loop's capture buffer can hold more conditioned samples
	// than one frame needs, so only the tail of x is used; take
	// the last Height*period samples and left-pad if x is shorter than
	// that (spec §4.6 step 1, frame_from_raster).
	needed := period * height
	offset := len(x) - needed
	for r := 0; r < height; r++ {
		rowStart := offset + r*period
		row := make([]float64, period)
		for i := 0; i < period; i++ {
			idx := rowStart + i
			switch {
			case idx < 0:
				if len(x) > 0 {
					row[i] = x[0] // left edge-pad
				}
			case idx < len(x):
				row[i] = x[idx]
			default:
				if len(x) > 0 {
					row[i] = x[len(x)-1]
				}
			}
		}
		rows[r] = resampleRow(row, width)
	}

	flat := make([]float64, 0, width*height)
	for _, row := range rows {
		flat = append(flat, row...)
	}

	lo, hi := percentileBounds(flat, 0.05, 0.95)
	rng := hi - lo
	if rng <= 0 {
		rng = 1
	}

	pixels := make([]uint8, width*height)
	for r, row := range rows {
		for c, v := range row {
			n := (v - lo) / rng
			pixels[r*width+c] = toUint8(n)
		}
	}

	return Frame{
		Width:   width,
		Height:  height,
		Pixels:  pixels,
		Quality: rowCorrelationQuality(rows),
	}
}

// resampleRow linearly resamples src (length N) to exactly width samples
// via linspace index rounding (spec §4.6 step 2).
func resampleRow(src []float64, width int) []float64 {
	out := make([]float64, width)
	n := len(src)
	if n == 0 {
		return out
	}
	if n == 1 {
		for i := range out {
			out[i] = src[0]
		}
		return out
	}
	for i := 0; i < width; i++ {
		pos := float64(i) * float64(n-1) / float64(width-1)
		idx := int(pos + 0.5)
		if idx >= n {
			idx = n - 1
		}
		out[i] = src[idx]
	}
	return out
}

// percentileBounds returns the (loQ, hiQ) quantile values of data.
func percentileBounds(data []float64, loQ, hiQ float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 1
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	lo := stat.Quantile(loQ, stat.LinInterp, sorted, nil)
	hi := stat.Quantile(hiQ, stat.LinInterp, sorted, nil)
	return lo, hi
}

func toUint8(n float64) uint8 {
	if n < 0 {
		n = 0
	}
	if n > 1 {
		n = 1
	}
	return uint8(n * 255)
}

// rowCorrelationQuality scores raster coherence as the mean Pearson
// correlation between each pair of adjacent rows, clamped to [-1, 1]
// (spec §4.6 step 4). A well-locked raster has highly correlated
// consecutive lines; a mis-locked one does not.
func rowCorrelationQuality(rows [][]float64) float64 {
	if len(rows) < 2 {
		return 0
	}
	var sum float64
	count := 0
	for i := 1; i < len(rows); i++ {
		c := stat.Correlation(rows[i-1], rows[i], nil)
		if c > 1 {
			c = 1
		}
		if c < -1 {
			c = -1
		}
		sum += c
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Image converts a Frame to a standard library image.Gray for serving or
// encoding downstream (e.g. by a publisher that JPEG-encodes frames).
func (f Frame) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Pixels)
	return img
}
