// Package logger provides structured logging for authcore.
//
// It configures a log/slog handler with:
//
//   - JSON or text output to stdout, stderr or a file
//   - a process-wide level that can be changed at runtime (config reload)
//   - automatic redaction of credentials, JWTs and password hashes
//   - context helpers carrying the logger and request ID
package logger
