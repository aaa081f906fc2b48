package config

import "errors"

// Sentinel errors, matching the teacher's per-package convention
// (pkg/config/errors.go).
var (
	// ErrConfigNotFound indicates orchestrator.yaml was not found.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrMissingCreaturesDir indicates system.creatures_dir was left empty
	// after merge.
	ErrMissingCreaturesDir = errors.New("system.creatures_dir is required")
)
