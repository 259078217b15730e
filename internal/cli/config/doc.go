// Package config holds the authcore-cli settings file (~/.authcore/cli.yaml).
//
// Values resolve in order: defaults, the YAML file, AUTHCORE_* environment
// variables, then command-line flags.
package config
