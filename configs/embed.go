// Package configs provides the embedded configuration template written by
// `docindex config init`.
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults (config.NewConfig)
//  2. Config file (<data-dir>/config.yaml)
//  3. Environment variables (DOCINDEX_*)
package configs

import _ "embed"

// Template is the commented example configuration. Every value matches the
// built-in default.
//
//go:embed docindex.example.yaml
var Template string
