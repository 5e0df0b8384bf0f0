// Package config loads the assistant configuration from a YAML file, with secrets taken
// from the environment, and watches the file for changes.
package config
