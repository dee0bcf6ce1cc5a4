// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

// Package observability builds the metrics registry for a run and exports it.
package observability

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/oops"
)

// NewRegistry creates a registry with the standard Go and process collectors.
// A fresh registry avoids polluting the global one.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

// WriteTextfile writes everything g gathers to path in the Prometheus text
// format, in the shape the node exporter's textfile collector reads. The
// parent directory is created if needed.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return oops.Code("METRICS_WRITE_FAILED").With("path", path).Wrap(err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return oops.Code("METRICS_WRITE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
