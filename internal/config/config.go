// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

// Package config loads the plugin host configuration.
//
// Values are layered in order: built-in defaults, an optional YAML file, then
// command-line flags that were explicitly set. Later layers win.
package config

import (
	"errors"
	"os"
	"slices"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/bluefox-game/bluefox/internal/logging"
	"github.com/bluefox-game/bluefox/internal/plugin"
	"github.com/bluefox-game/bluefox/internal/plugin/capability"
	"github.com/bluefox-game/bluefox/internal/toolchain"
	"github.com/bluefox-game/bluefox/internal/xdg"
)

// Error codes.
const (
	CodeReadFailed = "CONFIG_READ_FAILED"
	CodeInvalid    = "CONFIG_INVALID"
)

// Config is the full host configuration.
type Config struct {
	// PluginDir is scanned for plugin sources. Empty means the XDG data dir.
	PluginDir string `koanf:"plugin_dir" json:"plugin_dir,omitempty" jsonschema:"description=Directory scanned for plugin sources"`
	// Suffix marks a file as a plugin source.
	Suffix string `koanf:"suffix" json:"suffix,omitempty" jsonschema:"description=File name suffix of plugin sources,minLength=1"`
	// WorkspaceDir is the parent of the temporary build workspace. Empty
	// means the system temp dir.
	WorkspaceDir string `koanf:"workspace_dir" json:"workspace_dir,omitempty" jsonschema:"description=Parent directory of the temporary build workspace"`
	// MetricsTextfile, when set, receives the run's metrics in the
	// Prometheus text format.
	MetricsTextfile string `koanf:"metrics_textfile" json:"metrics_textfile,omitempty" jsonschema:"description=Write metrics to this file after the run"`

	Log       LogConfig       `koanf:"log" json:"log,omitempty"`
	Toolchain ToolchainConfig `koanf:"toolchain" json:"toolchain,omitempty"`
	Trust     TrustConfig     `koanf:"trust" json:"trust,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=warning,enum=error"`
}

// ToolchainConfig names the external tools and the support library.
type ToolchainConfig struct {
	LLC           string `koanf:"llc" json:"llc,omitempty" jsonschema:"description=IR to assembly compiler"`
	GCC           string `koanf:"gcc" json:"gcc,omitempty" jsonschema:"description=Assembler and linker driver"`
	SupportLibDir string `koanf:"support_lib_dir" json:"support_lib_dir,omitempty" jsonschema:"description=Directory of the support library. Relative paths resolve against the executable"`
	// SupportLib is the library name passed as -l. Empty links nothing.
	SupportLib string `koanf:"support_lib" json:"support_lib,omitempty"`
	NativeExt  string `koanf:"native_ext" json:"native_ext,omitempty" jsonschema:"minLength=1"`
}

// TrustConfig lists which plugins may be compiled and called.
type TrustConfig struct {
	Allow []string `koanf:"allow" json:"allow,omitempty" jsonschema:"description=Glob patterns over logical plugin names"`
	Pins  []Pin    `koanf:"pins" json:"pins,omitempty"`
}

// Pin binds a logical name to the SHA-256 of its source.
type Pin struct {
	Name   string `koanf:"name" json:"name" jsonschema:"minLength=1"`
	SHA256 string `koanf:"sha256" json:"sha256" jsonschema:"pattern=^[0-9a-fA-F]{64}$"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Suffix: plugin.DefaultSuffix,
		Log: LogConfig{
			Format: logging.FormatJSON,
			Level:  "info",
		},
		Toolchain: ToolchainConfig{
			LLC:           toolchain.DefaultLLC,
			GCC:           toolchain.DefaultGCC,
			SupportLibDir: toolchain.DefaultSupportLibDir,
			SupportLib:    toolchain.DefaultSupportLib,
			NativeExt:     toolchain.DefaultNativeExt,
		},
		Trust: TrustConfig{
			Allow: []string{capability.AllowAllPattern},
		},
	}
}

// flagKeys maps command-line flag names to config keys. Flags not listed
// here are not configuration.
var flagKeys = map[string]string{
	"plugin-dir":       "plugin_dir",
	"workspace-dir":    "workspace_dir",
	"metrics-textfile": "metrics_textfile",
	"log-format":       "log.format",
	"log-level":        "log.level",
	"llc":              "toolchain.llc",
	"gcc":              "toolchain.gcc",
	"support-lib-dir":  "toolchain.support_lib_dir",
	"support-lib":      "toolchain.support_lib",
	"trust":            "trust.allow",
}

// FlagKey returns the config key bound to a flag name.
func FlagKey(name string) (string, bool) {
	key, ok := flagKeys[name]
	return key, ok
}

// Load builds the configuration. path may be empty for no file. flags may be
// nil; only flags the user changed override earlier layers.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := setDefaults(k, Default()); err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, oops.Code(CodeReadFailed).With("path", path).Wrap(err)
		}
		if err := ValidateSchema(data); err != nil {
			return nil, oops.With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeReadFailed).With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		p := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(p, nil); err != nil {
			return nil, oops.Code(CodeReadFailed).With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeInvalid).Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(k *koanf.Koanf, d Config) error {
	defaults := map[string]any{
		"suffix":                    d.Suffix,
		"log.format":                d.Log.Format,
		"log.level":                 d.Log.Level,
		"toolchain.llc":             d.Toolchain.LLC,
		"toolchain.gcc":             d.Toolchain.GCC,
		"toolchain.support_lib_dir": d.Toolchain.SupportLibDir,
		"toolchain.support_lib":     d.Toolchain.SupportLib,
		"toolchain.native_ext":      d.Toolchain.NativeExt,
		"trust.allow":               slices.Clone(d.Trust.Allow),
	}
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return oops.Code(CodeInvalid).With("key", key).Wrap(err)
		}
	}
	return nil
}

// ResolveFile returns the config file to load. An explicit path is returned
// as is; otherwise the XDG config file is used if it exists.
func ResolveFile(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	path, err := xdg.ConfigFile()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code(CodeReadFailed).With("path", path).Wrap(err)
	}
	return path, nil
}

// Validate checks values the schema cannot express.
func (c *Config) Validate() error {
	if c.Suffix == "" {
		return oops.Code(CodeInvalid).With("key", "suffix").Errorf("suffix must not be empty")
	}
	if c.Toolchain.NativeExt == "" {
		return oops.Code(CodeInvalid).With("key", "toolchain.native_ext").Errorf("native extension must not be empty")
	}
	if c.Toolchain.LLC == "" || c.Toolchain.GCC == "" {
		return oops.Code(CodeInvalid).With("key", "toolchain").Errorf("llc and gcc must be set")
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatText:
	default:
		return oops.Code(CodeInvalid).With("key", "log.format", "value", c.Log.Format).
			Errorf("log format must be %q or %q", logging.FormatJSON, logging.FormatText)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.With("key", "log.level").Wrap(err)
	}
	if _, err := c.Trust.Policy(); err != nil {
		return oops.With("key", "trust").Wrap(err)
	}
	return nil
}

// Policy compiles the trust section.
// A later pin for the same name replaces an earlier one.
func (t TrustConfig) Policy() (*capability.Policy, error) {
	policy, err := capability.NewPolicy(t.Allow, nil)
	if err != nil {
		return nil, err
	}
	for _, p := range t.Pins {
		if err := policy.Pin(p.Name, p.SHA256); err != nil {
			return nil, err
		}
	}
	return policy, nil
}
