// Package imaging validates uploaded slide images, prepares model input
// tensors and renders the attention heatmap overlay.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/tiff"

	"biomark/domain/core"
	"biomark/domain/prediction"
)

// Upload is a decoded, validated image held by a session
type Upload struct {
	Filename string
	Format   string
	MIME     string
	Width    int
	Height   int
	Size     int64
	Checksum core.Hash
	Image    image.Image
	Data     []byte
}

// Meta returns the metadata recorded on prediction events
func (u *Upload) Meta() prediction.ImageMeta {
	return prediction.ImageMeta{
		Filename:  u.Filename,
		Format:    u.Format,
		Width:     u.Width,
		Height:    u.Height,
		SizeBytes: u.Size,
		Checksum:  u.Checksum,
	}
}

type format struct {
	name       string
	extensions []string
}

var supported = map[string]format{
	"image/jpeg": {name: "jpeg", extensions: []string{".jpg", ".jpeg"}},
	"image/png":  {name: "png", extensions: []string{".png"}},
	"image/tiff": {name: "tiff", extensions: []string{".tif", ".tiff"}},
}

// SupportedExtensions lists accepted file extensions for the upload form
func SupportedExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".tif", ".tiff"}
}

// DefaultMaxPixels caps decoded width*height when no limit is configured
const DefaultMaxPixels = 64 << 20

// Limits bounds an upload before and after decompression. Zero fields
// disable the corresponding check.
type Limits struct {
	MaxBytes  int64
	MaxPixels int64
}

// Decode sniffs the content type, checks that it agrees with the file
// extension and decodes the image. Dimensions are read from the header and
// checked against limits.MaxPixels before any pixel data is decoded.
func Decode(filename string, data []byte, limits Limits) (*Upload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", core.ErrUnsupportedImage)
	}
	if limits.MaxBytes > 0 && int64(len(data)) > limits.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", core.ErrUnsupportedImage, len(data), limits.MaxBytes)
	}

	detected := mimetype.Detect(data)
	var (
		f     format
		mime  string
		found bool
	)
	for candidate, spec := range supported {
		if detected.Is(candidate) {
			f, mime, found = spec, candidate, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: detected %s", core.ErrUnsupportedImage, detected.String())
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !contains(f.extensions, ext) {
		return nil, fmt.Errorf("%w: extension %q does not match %s content", core.ErrUnsupportedImage, ext, f.name)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty %dx%d image", core.ErrUnsupportedImage, cfg.Width, cfg.Height)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); limits.MaxPixels > 0 && pixels > limits.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d image exceeds limit of %d pixels", core.ErrUnsupportedImage, cfg.Width, cfg.Height, limits.MaxPixels)
	}

	img, decodedAs, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnsupportedImage, err)
	}
	if decodedAs != f.name {
		return nil, fmt.Errorf("%w: decoded as %s, expected %s", core.ErrUnsupportedImage, decodedAs, f.name)
	}

	bounds := img.Bounds()
	return &Upload{
		Filename: filepath.Base(filename),
		Format:   strings.ToUpper(f.name),
		MIME:     mime,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Size:     int64(len(data)),
		Checksum: core.NewHash(data),
		Image:    img,
		Data:     data,
	}, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
