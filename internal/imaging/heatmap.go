package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// HeatmapOptions controls the attention overlay
type HeatmapOptions struct {
	Size  int
	Sigma float64
	Alpha float64
}

// DefaultHeatmapOptions matches the model input size
func DefaultHeatmapOptions() HeatmapOptions {
	return HeatmapOptions{Size: InputSize, Sigma: 12, Alpha: 0.45}
}

// RandomField fills a size×size matrix with uniform draws
func RandomField(rng *rand.Rand, size int) *mat.Dense {
	data := make([]float64, size*size)
	for i := range data {
		data[i] = rng.Float64()
	}
	return mat.NewDense(size, size, data)
}

// GaussianKernel returns a normalized 1-D kernel covering ±3σ
func GaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	k := make([]float64, 2*radius+1)
	for i := range k {
		d := float64(i - radius)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// Blur applies a separable Gaussian blur with clamped edges
func Blur(m *mat.Dense, sigma float64) *mat.Dense {
	if sigma <= 0 {
		return mat.DenseCopyOf(m)
	}
	k := GaussianKernel(sigma)
	radius := len(k) / 2
	rows, cols := m.Dims()

	horizontal := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			sum := 0.0
			for i, w := range k {
				sum += w * m.At(r, clamp(c+i-radius, 0, cols-1))
			}
			horizontal.Set(r, c, sum)
		}
	}

	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			sum := 0.0
			for i, w := range k {
				sum += w * horizontal.At(clamp(r+i-radius, 0, rows-1), c)
			}
			out.Set(r, c, sum)
		}
	}
	return out
}

// Normalize rescales m in place to [0,1]. A constant matrix becomes all zeros.
func Normalize(m *mat.Dense) {
	lo, hi := mat.Min(m), mat.Max(m)
	span := hi - lo
	m.Apply(func(_, _ int, v float64) float64 {
		if span == 0 {
			return 0
		}
		return (v - lo) / span
	}, m)
}

// Jet maps v in [0,1] onto a blue-cyan-yellow-red ramp
func Jet(v float64) color.RGBA {
	channel := func(center float64) uint8 {
		x := 1.5 - math.Abs(4*v-center)
		return uint8(math.Round(255 * math.Max(0, math.Min(1, x))))
	}
	return color.RGBA{R: channel(3), G: channel(2), B: channel(1), A: 255}
}

// Heatmap renders a blurred random attention map, blended over base when
// base is non-nil. Warmer colors mark "higher attention".
func Heatmap(rng *rand.Rand, base image.Image, opts HeatmapOptions) *image.RGBA {
	if opts.Size <= 0 {
		opts.Size = InputSize
	}
	field := Blur(RandomField(rng, opts.Size), opts.Sigma)
	Normalize(field)

	var background *image.RGBA
	if base != nil {
		background = Resize(base, opts.Size)
	}

	out := image.NewRGBA(image.Rect(0, 0, opts.Size, opts.Size))
	for y := 0; y < opts.Size; y++ {
		for x := 0; x < opts.Size; x++ {
			heat := Jet(field.At(y, x))
			if background == nil {
				out.SetRGBA(x, y, heat)
				continue
			}
			bg := background.RGBAAt(x, y)
			out.SetRGBA(x, y, color.RGBA{
				R: blend(bg.R, heat.R, opts.Alpha),
				G: blend(bg.G, heat.G, opts.Alpha),
				B: blend(bg.B, heat.B, opts.Alpha),
				A: 255,
			})
		}
	}
	return out
}

// EncodePNG encodes img as PNG bytes
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func blend(a, b uint8, alpha float64) uint8 {
	return uint8(math.Round((1-alpha)*float64(a) + alpha*float64(b)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
