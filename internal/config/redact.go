package config

import "strings"

// RedactionMarker replaces secret-like values in snapshots and logs.
const RedactionMarker = "***REDACTED***"

var sensitiveKeywords = []string{
	"password",
	"passwd",
	"secret",
	"token_value",
	"api_key",
	"apikey",
	"private_key",
	"credential",
	"secret_key",
}

// IsSensitiveKey reports whether a setting name looks like it holds a
// secret and must never be echoed.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// RedactValue returns the redaction marker for sensitive keys with a
// non-empty value, and the value unchanged otherwise.
func RedactValue(key, value string) string {
	if value == "" {
		return value
	}
	if IsSensitiveKey(key) {
		return RedactionMarker
	}
	return value
}
