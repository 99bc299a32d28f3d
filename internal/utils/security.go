package contextutils

import (
	"net/url"
	"strings"
)

// MaskSecret masks a credential for logging purposes to prevent exposure.
// Returns a masked version that shows only first 4 and last 4 characters.
func MaskSecret(secret string) string {
	if secret == "" {
		return "[EMPTY]"
	}

	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}

	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

// MaskURLCredentials hides the password of a connection URL (postgres, redis, amqp)
// so the URL can be logged. Unparseable input is fully masked.
func MaskURLCredentials(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return MaskSecret(raw)
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return MaskSecret(email)
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}
