package logging

import (
	"log/slog"
	"strings"
)

// Redacted replaces sensitive values in log output.
const Redacted = "[REDACTED]"

// Keys creditd emits that carry no secret material and may pass through
// MaskField unmasked. Everything else is assumed sensitive.
var passthroughKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"addr":      {},
	"market":    {},
	"method":    {},
}

func isPassthrough(key string) bool {
	_, ok := passthroughKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue redacts a non-empty value. Empty strings pass through so absent
// configuration does not log as a redacted secret.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return Redacted
}

// MaskField builds a slog attribute whose value is redacted unless the key is
// a known non-sensitive field.
func MaskField(key, value string) slog.Attr {
	if isPassthrough(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}
