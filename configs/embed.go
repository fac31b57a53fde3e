// Package configs provides embedded configuration templates for imagedex.
//
// The templates are used by:
//   - `imagedex config init` creates the user config at ~/.config/imagedex/config.yaml
//   - `imagedex config init --project` creates .imagedex.yaml in the project root
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults (internal/config NewConfig)
//  2. User config
//  3. Project config (.imagedex.yaml)
//  4. Environment variables (IMAGEDEX_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for machine-level configuration:
// worker counts, load rate, logging.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration:
// paths, search weights, descriptor settings.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
