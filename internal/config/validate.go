package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateRenderer(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.CacheDir == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.MaxAttempts < 1 {
		return errors.New("fetch.max_attempts must be at least 1")
	}
	if c.Fetch.RetryBaseDelayMS < 0 || c.Fetch.RetryMaxDelayMS < 0 {
		return errors.New("fetch retry delays must not be negative")
	}
	if c.Fetch.RetryMaxDelayMS > 0 && c.Fetch.RetryMaxDelayMS < c.Fetch.RetryBaseDelayMS {
		return errors.New("fetch.retry_max_delay_ms must be >= fetch.retry_base_delay_ms")
	}
	if c.Catalog.RequestTimeout < 1 {
		return errors.New("catalog.request_timeout must be at least 1 second")
	}
	return nil
}

// An empty renderer.binary is allowed: it disables Flash rendering, so
// raster-only books still process on hosts without the decompiler.
func (c *Config) validateRenderer() error {
	if c.Renderer.Timeout < 1 {
		return errors.New("renderer.timeout must be at least 1 second")
	}
	switch c.Renderer.ExportFormat {
	case "png", "bmp", "gif", "jpg":
		return nil
	default:
		return fmt.Errorf("renderer.export_format %q not supported (png, bmp, gif, jpg)", c.Renderer.ExportFormat)
	}
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Concurrency < 1 {
		return errors.New("pipeline.concurrency must be at least 1")
	}
	return nil
}
