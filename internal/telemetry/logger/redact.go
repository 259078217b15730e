package logger

import (
	"log/slog"
	"strings"
)

// sensitiveKeyParts mark attribute keys whose string values never reach
// the output.
var sensitiveKeyParts = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"cookie",
	"credential",
	"passphrase",
	"hash",
}

const redactedValue = "***REDACTED***"

// redactSensitive is the ReplaceAttr hook installed by New. Recognisable
// credentials are masked whatever their key; other strings are hidden
// when the key names a secret.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if masked, ok := maskCredential(s); ok {
			return slog.String(a.Key, masked)
		}
		if s != "" && sensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, attr := range group {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// maskCredential recognises JWTs, which keep their header prefix and last
// four signature characters, and argon2 hashes, which are dropped.
func maskCredential(s string) (string, bool) {
	switch {
	case strings.HasPrefix(s, "eyJ") && strings.Count(s, ".") == 2:
		if len(s) <= 16 {
			return "eyJ***", true
		}
		return s[:6] + "..." + s[len(s)-4:], true
	case strings.HasPrefix(s, "$argon2"):
		return redactedValue, true
	}
	return s, false
}

func sensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}
