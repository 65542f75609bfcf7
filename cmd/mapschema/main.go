// Command mapschema renders the JSON Schema for the map manifest format to
// a file, so map-authoring tools can validate maps/<name>.json without
// linking against this module.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"social-nav/core/vectormap/schema"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	data, err := schema.MarshalOrdered(schema.Build())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build schema: %v\n", err)
		os.Exit(1)
	}

	if err := writeSchema(outPath, data); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func writeSchema(outPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
