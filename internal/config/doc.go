// Package config loads and validates fvrip's TOML configuration.
//
// Configuration resolves from an explicit --config path, then
// ~/.config/fvrip/config.toml, then ./fvrip.toml, falling back to built-in
// defaults when no file exists. All path values support ~ expansion and are
// normalized to absolute paths during load.
package config
