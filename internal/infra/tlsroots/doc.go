// Package tlsroots provides TLS certificate management for authcore.
//
//   - roots.go: system certificates plus custom CA loading, used by the CLI
//     --ca-cert flag
//   - watcher.go: serving certificate hot-reload via fsnotify, used by
//     authcore-server when http.tls_cert_file is set
package tlsroots
