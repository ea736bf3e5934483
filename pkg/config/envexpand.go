package config

import "os"

// ExpandEnv expands environment variables in YAML content using shell-style
// ${VAR} / $VAR syntax. Missing variables expand to empty string; validation
// is responsible for catching required fields left empty this way.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
