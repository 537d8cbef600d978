// Package config loads and validates application configuration from YAML
// files and environment variables.
package config
