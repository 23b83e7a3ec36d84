package render

import (
	"context"

	"fvrip/internal/manifest"
	"fvrip/internal/services"
)

// Result is one rendered page image.
type Result struct {
	Format string // "png", "jpeg", "gif" or "bmp"
	Data   []byte
}

// Renderer turns a decrypted object payload into a page image.
type Renderer interface {
	Render(ctx context.Context, contentType string, payload []byte) (*Result, error)
}

// Dispatcher routes payloads to the renderer matching their content type:
// Flash movies go through the decompiler, raster pages pass straight through.
type Dispatcher struct {
	flash  Renderer
	raster Renderer
}

// NewDispatcher wires the per-type renderers.
func NewDispatcher(flash, raster Renderer) *Dispatcher {
	return &Dispatcher{flash: flash, raster: raster}
}

// Unavailable is a Renderer that fails every request with a configuration
// error. It stands in for the decompiler when no binary is configured, so
// books without Flash pages still process.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Render(context.Context, string, []byte) (*Result, error) {
	return nil, services.Wrap(services.ErrConfiguration, "render", "flash", u.Reason, nil)
}

// Render dispatches on content type.
func (d *Dispatcher) Render(ctx context.Context, contentType string, payload []byte) (*Result, error) {
	switch contentType {
	case manifest.ContentTypeFlash:
		return d.flash.Render(ctx, contentType, payload)
	case manifest.ContentTypePage:
		return d.raster.Render(ctx, contentType, payload)
	default:
		return nil, services.Wrap(services.ErrRenderFailed, "render", "dispatch",
			"unsupported content type "+contentType, nil)
	}
}
