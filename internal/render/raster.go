package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"

	"fvrip/internal/services"
)

// Raster accepts pages that are already plain images and validates they
// decode before passing them along unchanged.
type Raster struct{}

// NewRaster constructs the passthrough renderer.
func NewRaster() *Raster {
	return &Raster{}
}

// Render validates the payload decodes as an image.
func (r *Raster) Render(_ context.Context, _ string, payload []byte) (*Result, error) {
	format, err := decodeCheck(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrRenderFailed, "render", "decode page image", "", err)
	}
	return &Result{Format: format, Data: payload}, nil
}

// decodeCheck decodes the image fully and rejects empty bounds. A payload
// decrypted with the wrong key fails here rather than producing a broken
// document page.
func decodeCheck(data []byte) (string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return "", errors.New("image has empty bounds")
	}
	return format, nil
}
