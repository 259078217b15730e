// Package main provides the entry point for authcore-cli.
//
// The CLI keeps an authcore session in a local Badger jar and provides:
//
//   - Login as buyer, merchant or administrator
//   - Session status, refresh, logout and watch
//   - Route and resource authorization checks
//   - The administrator access log and denial statistics
//
// Usage:
//
//	authcore-cli [global flags] command [flags] [args]
//	authcore-cli --server https://auth.example.com login buyer --email jane@example.com
//	authcore-cli -o json session status
package main
