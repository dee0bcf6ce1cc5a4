// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

// Package errutil logs and inspects errors built with samber/oops.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level with any extra attrs.
// For oops errors the code and context are logged as separate fields.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	logger.Error(msg, append(attrs, fields(err)...)...)
}

// LogWarn is LogError at warn level.
func LogWarn(logger *slog.Logger, msg string, err error, attrs ...any) {
	logger.Warn(msg, append(attrs, fields(err)...)...)
}

func fields(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	out := []any{"error", oopsErr.Error()}
	if code := Code(err); code != "" {
		out = append(out, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		out = append(out, "context", ctx)
	}
	return out
}

// Code returns the oops code carried by err, or "" if there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// ContextValue returns the oops context value stored under key.
func ContextValue(err error, key string) (any, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil, false
	}
	v, ok := oopsErr.Context()[key]
	return v, ok
}
