// Package auth validates crawl triggers against the configured shared secret.
package auth

import (
	"crypto/subtle"
	"strings"
)

const bearerPrefix = "Bearer "

// Guard checks the Authorization header of an inbound trigger.
type Guard struct {
	secret string
}

// NewGuard returns a Guard for the given secret. An empty secret disables
// authentication; callers are expected to log a warning when Open reports true.
func NewGuard(secret string) Guard {
	return Guard{secret: strings.TrimSpace(secret)}
}

// Open reports whether the guard lets every trigger through.
func (g Guard) Open() bool {
	return g.secret == ""
}

// Authorize reports whether header carries the expected bearer token.
func (g Guard) Authorize(header string) bool {
	if g.Open() {
		return true
	}
	expected := bearerPrefix + g.secret
	return subtle.ConstantTimeCompare([]byte(header), []byte(expected)) == 1
}
