// Package config loads the pipeline settings from defaults, an optional YAML
// file and MEDIA_* environment variables, and validates them before any
// component is built.
package config
