// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

package plugin

import (
	"path/filepath"
	"strings"

	"github.com/samber/oops"
)

// DefaultSuffix marks a file as plugin IR source.
const DefaultSuffix = ".bfps"

// CodeNotPluginSource is the error code for entries that are not plugin sources.
const CodeNotPluginSource = "NOT_A_PLUGIN_SOURCE"

// Source is a plugin source file and the logical name derived from it.
type Source struct {
	Path string
	Name string
}

// ParseSource checks that the final component of path contains suffix and
// derives the logical name by removing the last occurrence of it.
func ParseSource(path, suffix string) (Source, error) {
	base := filepath.Base(path)
	i := strings.LastIndex(base, suffix)
	if suffix == "" || i < 0 {
		return Source{}, oops.Code(CodeNotPluginSource).
			With("path", path, "suffix", suffix).
			Errorf("%s does not contain %q", base, suffix)
	}

	name := base[:i] + base[i+len(suffix):]
	if name == "" {
		return Source{}, oops.Code(CodeNotPluginSource).
			With("path", path).
			Errorf("%s has an empty plugin name", base)
	}
	return Source{Path: path, Name: name}, nil
}
