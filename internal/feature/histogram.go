package feature

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	"github.com/Aman-CERP/imagedex/internal/record"
)

// FieldColorHistogram is the field written by ColorHistogram.
const FieldColorHistogram = "color_histogram"

// histogramLevels is the number of quantization levels per RGB channel.
const histogramLevels = 4

// HistogramBins is the length of a color histogram vector.
const HistogramBins = histogramLevels * histogramLevels * histogramLevels

// ColorHistogram is a reference builder producing a normalized RGB
// histogram with 4 levels per channel.
type ColorHistogram struct{}

// Verify interface implementation at compile time
var _ Builder = (*ColorHistogram)(nil)

// NewColorHistogram creates the histogram builder.
func NewColorHistogram() *ColorHistogram {
	return &ColorHistogram{}
}

// Name implements Builder.
func (h *ColorHistogram) Name() string {
	return FieldColorHistogram
}

// Extract implements Builder.
func (h *ColorHistogram) Extract(ctx context.Context, raw []byte) (record.Fields, error) {
	vec, err := Histogram(ctx, raw)
	if err != nil {
		return nil, err
	}
	return record.Fields{FieldColorHistogram: EncodeVector(vec)}, nil
}

// Histogram decodes raw and returns its normalized color histogram.
func Histogram(ctx context.Context, raw []byte) ([]float32, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("decode image: empty %s image", format)
	}

	counts := make([]float64, HistogramBins)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			counts[bin(r, g, b)]++
		}
	}

	total := float64(bounds.Dx() * bounds.Dy())
	vec := make([]float32, HistogramBins)
	for i, c := range counts {
		vec[i] = float32(c / total)
	}
	return vec, nil
}

// bin maps 16-bit channel values to a histogram index.
func bin(r, g, b uint32) int {
	q := func(v uint32) int { return int(v>>8) * histogramLevels / 256 }
	return (q(r)*histogramLevels+q(g))*histogramLevels + q(b)
}
