package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// plainKeys are emitted verbatim by MaskField. Account ids and asset symbols
// are public ledger data.
var plainKeys = map[string]bool{
	"service":     true,
	"env":         true,
	"error":       true,
	"reason":      true,
	"component":   true,
	"operation":   true,
	"kind":        true,
	"height":      true,
	"payer":       true,
	"recipient":   true,
	"asset":       true,
	"requestid":   true,
	"authenabled": true,
}

// secretKeys are masked by the handler whatever the call site passes.
var secretKeys = map[string]bool{
	"authorization": true,
	"token":         true,
	"hmacsecret":    true,
	"secret":        true,
	"remark":        true,
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsPlain reports whether key may be logged without masking.
func IsPlain(key string) bool {
	return plainKeys[normalizeKey(key)]
}

// MaskField keeps value only when key is a known plain key. Empty values are
// kept so missing configuration stays visible.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsPlain(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskBytes logs only the length of a binary value such as a payment remark.
func MaskBytes(key string, value []byte) slog.Attr {
	if len(value) == 0 {
		return slog.String(key, "")
	}
	return slog.Group(key, slog.String("value", RedactedValue), slog.Int("len", len(value)))
}

// redactSecrets is applied by the JSON handler. Groups are left alone so
// MaskBytes output survives.
func redactSecrets(attr slog.Attr) slog.Attr {
	if !secretKeys[normalizeKey(attr.Key)] || attr.Value.Kind() == slog.KindGroup {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && attr.Value.String() == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
