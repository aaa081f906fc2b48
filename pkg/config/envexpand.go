package config

import "os"

// ExpandEnv expands ${VAR} and $VAR references in YAML content using Go's
// standard library (teacher's pkg/config/envexpand.go). Missing variables
// expand to empty string; a field left empty that way keeps its built-in
// default when the sections are merged.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
