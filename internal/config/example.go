package config

import _ "embed"

//go:embed example.yaml
var exampleYAML []byte

// ExampleYAML returns the documented example configuration.
func ExampleYAML() []byte {
	out := make([]byte, len(exampleYAML))
	copy(out, exampleYAML)
	return out
}

// Example parses the embedded example configuration. Tests and the coach
// CLI's "config" command use it; the server always loads an explicit file.
func Example() (*Config, error) {
	return Parse(exampleYAML)
}
