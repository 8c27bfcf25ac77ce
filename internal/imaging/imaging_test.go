package imaging

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"biomark/domain/core"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngHeader returns a PNG signature and IHDR chunk declaring a w x h
// grayscale image with no pixel data behind it
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	crc := crc32.NewIEEE()
	chunk := append([]byte("IHDR"), ihdr...)
	crc.Write(chunk)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc.Sum32())
	return buf.Bytes()
}

func TestDecodeAcceptsWithinPixelLimit(t *testing.T) {
	u, err := Decode("a.png", encodePNG(t, solidImage(8, 8, color.RGBA{A: 255})), Limits{MaxPixels: 64})
	require.NoError(t, err)
	assert.Equal(t, 8, u.Width)
}

func TestDecodeSupportedFormats(t *testing.T) {
	img := solidImage(40, 30, color.RGBA{200, 80, 120, 255})

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, img, nil))
	var tif bytes.Buffer
	require.NoError(t, tiff.Encode(&tif, img, nil))

	tests := []struct {
		filename string
		data     []byte
		format   string
	}{
		{"slide.png", encodePNG(t, img), "PNG"},
		{"slide.JPG", jpg.Bytes(), "JPEG"},
		{"slide.tiff", tif.Bytes(), "TIFF"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			u, err := Decode(tt.filename, tt.data, Limits{})
			require.NoError(t, err)
			assert.Equal(t, tt.format, u.Format)
			assert.Equal(t, 40, u.Width)
			assert.Equal(t, 30, u.Height)
			assert.Equal(t, int64(len(tt.data)), u.Size)
			assert.Equal(t, core.NewHash(tt.data), u.Checksum)
			assert.Equal(t, tt.filename, u.Meta().Filename)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	pngData := encodePNG(t, solidImage(8, 8, color.RGBA{A: 255}))

	tests := []struct {
		name     string
		filename string
		data     []byte
		limits   Limits
	}{
		{"empty", "a.png", nil, Limits{}},
		{"not an image", "a.png", []byte("hello, this is plain text"), Limits{}},
		{"extension mismatch", "a.jpg", pngData, Limits{}},
		{"too large", "a.png", pngData, Limits{MaxBytes: 10}},
		{"too many pixels", "a.png", pngData, Limits{MaxPixels: 63}},
		{"oversized header", "bomb.png", pngHeader(12000, 12000), Limits{MaxBytes: 20 << 20, MaxPixels: DefaultMaxPixels}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.filename, tt.data, tt.limits)
			assert.ErrorIs(t, err, core.ErrUnsupportedImage)
		})
	}
}

func TestPreprocessShapeAndRange(t *testing.T) {
	tensor := Preprocess(solidImage(500, 300, color.RGBA{255, 0, 51, 255}))
	assert.Equal(t, InputSize, tensor.Height)
	assert.Equal(t, InputSize, tensor.Width)
	assert.Len(t, tensor.Data, InputSize*InputSize*3)
	assert.InDelta(t, 1.0, tensor.At(10, 10, 0), 0.01)
	assert.InDelta(t, 0.0, tensor.At(10, 10, 1), 0.01)
	assert.InDelta(t, 0.2, tensor.At(100, 100, 2), 0.01)
}

func TestPool(t *testing.T) {
	tensor := Preprocess(solidImage(64, 64, color.RGBA{255, 255, 255, 255}))
	features := Pool(tensor, 8)
	assert.Len(t, features, 8*8*3)
	for _, v := range features {
		assert.InDelta(t, 1.0, v, 0.01)
	}
}

func TestGaussianKernelNormalized(t *testing.T) {
	k := GaussianKernel(2)
	assert.Len(t, k, 13)
	assert.InDelta(t, 1.0, floats.Sum(k), 1e-12)
	assert.Greater(t, k[6], k[0])
}

func TestBlurAndNormalize(t *testing.T) {
	field := RandomField(rand.New(rand.NewSource(1)), 32)
	blurred := Blur(field, 3)
	Normalize(blurred)
	assert.InDelta(t, 0.0, mat.Min(blurred), 1e-12)
	assert.InDelta(t, 1.0, mat.Max(blurred), 1e-12)

	constant := mat.NewDense(2, 2, []float64{3, 3, 3, 3})
	Normalize(constant)
	assert.Equal(t, 0.0, mat.Max(constant))
}

func TestHeatmapDeterministicForSeed(t *testing.T) {
	opts := HeatmapOptions{Size: 48, Sigma: 4, Alpha: 0.5}
	base := solidImage(100, 100, color.RGBA{10, 20, 30, 255})

	a := Heatmap(rand.New(rand.NewSource(7)), base, opts)
	b := Heatmap(rand.New(rand.NewSource(7)), base, opts)
	assert.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, 48, a.Bounds().Dx())

	data, err := EncodePNG(a)
	require.NoError(t, err)
	_, err = Decode("heatmap.png", data, Limits{})
	assert.NoError(t, err)
}

func TestJetEndpoints(t *testing.T) {
	cold := Jet(0)
	hot := Jet(1)
	assert.Greater(t, cold.B, cold.R)
	assert.Greater(t, hot.R, hot.B)
}
