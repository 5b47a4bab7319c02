// Package config handles daemon configuration loading and validation.
//
// Configuration is read from a YAML file, overlaid with environment
// variables (optionally from a .env file) and validated using struct tags.
package config
