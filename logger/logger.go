package logger

import "strings"

type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}

// Redacted is logged in place of any field whose name looks like a secret.
const Redacted = "[redacted]"

var secretMarkers = []string{"private_key", "privatekey", "secret", "api_token", "auth_token", "bearer", "password", "mnemonic", "seed"}

// IsSecretField reports whether a field name must never be logged verbatim.
func IsSecretField(name string) bool {
	n := strings.ToLower(name)
	for _, m := range secretMarkers {
		if strings.Contains(n, m) {
			return true
		}
	}
	return false
}
