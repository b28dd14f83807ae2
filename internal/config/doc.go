// SPDX-License-Identifier: MPL-2.0

// Package config loads datafy's configuration with Viper, using CUE as the
// file format.
//
// The file is looked up at the path given with --config, then in the
// platform config directory (config.cue under $XDG_CONFIG_HOME/datafy,
// ~/Library/Application Support/datafy or %APPDATA%\datafy), then in the
// working directory. Files are validated against the embedded #Config
// schema (config_schema.cue) before being merged over the defaults.
// DATAFY_* environment variables override both, for example
// DATAFY_FETCH_SIZE_LIMIT.
package config
