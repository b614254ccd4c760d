// Package imageformat recognises the image types ocrbox accepts and
// validates that content actually decodes as one of them.
package imageformat

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	// Decoders registered for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

var extensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

var formats = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

// IsImageName reports whether a filename has a supported image extension.
func IsImageName(name string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// MIMETypeForName returns the MIME type implied by a filename's extension.
func MIMETypeForName(name string) string {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

// Info describes validated image content.
type Info struct {
	MIMEType string
	Width    int
	Height   int
}

// Detect decodes the image header and returns its type and dimensions.
// Content that is not a supported image wraps domain.ErrValidation.
func Detect(content []byte) (Info, error) {
	if len(content) == 0 {
		return Info{}, fmt.Errorf("%w: empty image", domain.ErrValidation)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return Info{}, fmt.Errorf("%w: unsupported image: %v", domain.ErrValidation, err)
	}
	mime, ok := formats[format]
	if !ok {
		return Info{}, fmt.Errorf("%w: unsupported image format %q", domain.ErrValidation, format)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return Info{}, fmt.Errorf("%w: image has no pixels", domain.ErrValidation)
	}
	return Info{MIMEType: mime, Width: cfg.Width, Height: cfg.Height}, nil
}
