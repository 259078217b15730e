// Package config defines the authcore-server configuration.
//
//   - spec.go: ServerConfig and its sections
//   - default.go: default values
//   - verify.go: validation run before any component is built
//   - sanitize.go: secret masking for logs and "config show"
//
// Values are loaded by internal/infra/confloader from a YAML file and
// AUTHCORE_ environment variables on top of Default().
package config
