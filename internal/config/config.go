// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

// Package config loads runtime configuration from an optional YAML file
// overridden by command-line flags.
package config

import (
	"errors"
	"io/fs"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full runtime configuration.
type Config struct {
	Prefixes      []string      `koanf:"prefixes"`
	Plugins       Plugins       `koanf:"plugins"`
	Store         Store         `koanf:"store"`
	Observability Observability `koanf:"observability"`
	Log           Log           `koanf:"log"`
}

// Plugins configures discovery of the plugin tree.
type Plugins struct {
	Root   string   `koanf:"root"`
	Watch  bool     `koanf:"watch"`
	Ignore []string `koanf:"ignore"`
}

// Store configures the durable cache backing. An empty path keeps the
// caches in memory only.
type Store struct {
	Path string `koanf:"path"`
}

// Observability configures the metrics/health endpoint. An empty address
// disables the server.
type Observability struct {
	Addr string `koanf:"addr"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text or json
}

// Default returns the configuration used when neither file nor flags
// override a value.
func Default() Config {
	return Config{
		Prefixes: []string{".", "/"},
		Plugins: Plugins{
			Root:  "plugins",
			Watch: true,
		},
		Observability: Observability{
			Addr: "localhost:9090",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load merges the YAML file at path (when it exists) and the given flag
// set over the defaults. A missing file is only an error when the path
// was set explicitly.
func Load(path string, explicit bool, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		err := k.Load(file.Provider(path), yaml.Parser())
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist) && !explicit:
			// Defaults and flags carry the run.
		default:
			return cfg, oops.Code("CONFIG_FILE").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return cfg, oops.Code("CONFIG_FLAGS").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, oops.Code("CONFIG_DECODE").Wrap(err)
	}
	return cfg, nil
}
