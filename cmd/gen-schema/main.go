// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

// Command gen-schema generates the config file JSON Schema.
//
// Usage:
//
//	gen-schema [output]
//
// output defaults to schemas/config.schema.json; "-" writes to stdout.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bluefox-game/bluefox/internal/config"
)

const defaultOutput = "schemas/config.schema.json"

func main() {
	out := defaultOutput
	if len(os.Args) > 1 {
		out = os.Args[1]
	}
	if err := run(out, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(outPath string, stdout io.Writer) error {
	schema, err := config.GenerateSchema()
	if err != nil {
		return fmt.Errorf("generating schema: %w", err)
	}

	if outPath == "-" {
		_, err := stdout.Write(append(schema, '\n'))
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(outPath, schema, 0o600); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	fmt.Fprintf(stdout, "Generated %s\n", outPath)
	return nil
}
