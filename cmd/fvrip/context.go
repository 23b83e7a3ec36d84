package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"fvrip/internal/catalog"
	"fvrip/internal/config"
	"fvrip/internal/fetch"
	"fvrip/internal/logging"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.loggerOnce.Do(func() {
		logger, logErr := logging.NewFromConfig(cfg)
		if logErr != nil {
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger, nil
}

// sourceFlags collects the flags every book-addressing command shares.
type sourceFlags struct {
	dir    string
	name   string
	prefix string
	year   string
	month  string
	series string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dir, "dir", "", "Path to a mirrored book directory (offline mode)")
	cmd.Flags().StringVar(&f.name, "name", "", "Book document name without extension")
	cmd.Flags().StringVar(&f.prefix, "prefix", "flipbooks", "Viewer flavor path prefix")
	cmd.Flags().StringVar(&f.year, "year", "", "Publication year")
	cmd.Flags().StringVar(&f.month, "month", "", "Publication month")
	cmd.Flags().StringVar(&f.series, "series", "", "Series directory name")
}

// source builds the book source for the flags: a local mirror when --dir is
// given, the remote catalog otherwise.
func (f *sourceFlags) source(cfg *config.Config) (fetch.Source, error) {
	if strings.TrimSpace(f.dir) != "" {
		return catalog.NewDir(f.dir, strings.TrimSpace(f.name))
	}
	client, err := catalog.New(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	locator := catalog.BookLocator{
		Prefix: strings.TrimSpace(f.prefix),
		Year:   strings.TrimSpace(f.year),
		Month:  strings.TrimSpace(f.month),
		Series: strings.TrimSpace(f.series),
		Name:   strings.TrimSpace(f.name),
	}
	return client.Book(locator), nil
}
