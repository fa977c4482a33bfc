package redis

import "strings"

const (
	keyNamespace      = "cm"
	idempotencyPrefix = "idempotency"
	cooldownPrefix    = "cooldown"
	rateLimitPrefix   = "ratelimit"
)

// Key joins non-empty parts under the "cm" namespace.
func Key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

func IdempotencyKey(scope, id string) string {
	return Key(idempotencyPrefix, scope, id)
}

func CooldownKey(scope string, parts ...string) string {
	return Key(append([]string{cooldownPrefix, scope}, parts...)...)
}

func RateLimitKey(scope string, parts ...string) string {
	return Key(append([]string{rateLimitPrefix, scope}, parts...)...)
}
