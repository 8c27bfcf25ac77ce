package imaging

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// InputSize is the square edge length the scorer expects
const InputSize = 224

// Tensor is an HWC float image with values in [0,1]
type Tensor struct {
	Height   int
	Width    int
	Channels int
	Data     []float64
}

// At returns the value at row y, column x, channel c
func (t Tensor) At(y, x, c int) float64 {
	return t.Data[(y*t.Width+x)*t.Channels+c]
}

// Resize scales img to size×size RGBA
func Resize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Preprocess resizes to InputSize, drops alpha and scales channels to [0,1]
func Preprocess(img image.Image) Tensor {
	resized := Resize(img, InputSize)
	t := Tensor{
		Height:   InputSize,
		Width:    InputSize,
		Channels: 3,
		Data:     make([]float64, InputSize*InputSize*3),
	}
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			c := color.RGBAModel.Convert(resized.At(x, y)).(color.RGBA)
			i := (y*InputSize + x) * 3
			t.Data[i] = float64(c.R) / 255
			t.Data[i+1] = float64(c.G) / 255
			t.Data[i+2] = float64(c.B) / 255
		}
	}
	return t
}

// Pool average-pools a tensor into a grid×grid×channels feature vector
func Pool(t Tensor, grid int) []float64 {
	out := make([]float64, grid*grid*t.Channels)
	cellH := t.Height / grid
	cellW := t.Width / grid
	n := float64(cellH * cellW)
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			for c := 0; c < t.Channels; c++ {
				sum := 0.0
				for y := gy * cellH; y < (gy+1)*cellH; y++ {
					for x := gx * cellW; x < (gx+1)*cellW; x++ {
						sum += t.At(y, x, c)
					}
				}
				out[(gy*grid+gx)*t.Channels+c] = sum / n
			}
		}
	}
	return out
}
