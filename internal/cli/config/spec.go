package config

import "time"

// CLIConfig is the configuration for authcore-cli.
type CLIConfig struct {
	// Server is the authcore-server address.
	Server string `json:"server" yaml:"server"`

	// Output is the default output format: table, json or yaml.
	Output string `json:"output" yaml:"output"`

	// JarDir is the directory of the local credential jar.
	JarDir string `json:"jar_dir" yaml:"jar_dir"`

	// CACert is an extra PEM bundle trusted for https servers.
	CACert string `json:"ca_cert,omitempty" yaml:"ca_cert,omitempty"`

	// Timeout bounds each request to the server.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// RenewalInterval is how often `session watch` checks the access token.
	RenewalInterval time.Duration `json:"renewal_interval" yaml:"renewal_interval"`

	// RefreshThreshold triggers a proactive refresh when less time than
	// this remains on the access token.
	RefreshThreshold time.Duration `json:"refresh_threshold" yaml:"refresh_threshold"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:           "http://localhost:5080",
		Output:           "table",
		JarDir:           DefaultJarDir(),
		Timeout:          30 * time.Second,
		RenewalInterval:  30 * time.Second,
		RefreshThreshold: 5 * time.Minute,
	}
}
