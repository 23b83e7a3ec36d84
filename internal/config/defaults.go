package config

const (
	defaultCacheDir         = "~/.cache/fvrip"
	defaultOutputDir        = "~/fvrip"
	defaultLogDir           = "~/.local/share/fvrip/logs"
	defaultRequestTimeout   = 30
	defaultUserAgent        = "Mozilla/5.0 (X11; Linux x86_64; rv:100.0) Gecko/20100101 Firefox/100.0"
	defaultFetchAttempts    = 4
	defaultRetryBaseDelayMS = 500
	defaultRetryMaxDelayMS  = 8000
	defaultRendererBinary   = "ffdec"
	defaultRendererTimeout  = 120
	defaultExportFormat     = "png"
	defaultConcurrency      = 4
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:  defaultCacheDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Catalog: Catalog{
			RequestTimeout: defaultRequestTimeout,
			UserAgent:      defaultUserAgent,
		},
		Fetch: Fetch{
			MaxAttempts:      defaultFetchAttempts,
			RetryBaseDelayMS: defaultRetryBaseDelayMS,
			RetryMaxDelayMS:  defaultRetryMaxDelayMS,
		},
		Renderer: Renderer{
			Binary:       defaultRendererBinary,
			Timeout:      defaultRendererTimeout,
			ExportFormat: defaultExportFormat,
		},
		Output: Output{
			PlaceholderPages: true,
		},
		Pipeline: Pipeline{
			Concurrency: defaultConcurrency,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
