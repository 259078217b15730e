// Package memory provides in-process storage: a namespaced SecureStore for
// server-side session entries and a principal repository seeded from
// configuration.
//
// Both are safe for concurrent use. Nothing survives a restart.
package memory
