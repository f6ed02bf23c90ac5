package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSigningSecret = errors.New("studio session: signing secret required")
	ErrMissingIssuer        = errors.New("studio session: issuer required")
	ErrMissingCookieName    = errors.New("studio session: cookie name required")
)

// SessionClaims is the payload of a studio session token.
type SessionClaims struct {
	UserID          string   `json:"user_id"`
	UserEmail       string   `json:"user_email"`
	UserDisplayName string   `json:"user_display_name"`
	UserAvatarURL   string   `json:"user_avatar_url"`
	UserRoles       []string `json:"user_roles"`
	jwt.RegisteredClaims
}

func (c SessionClaims) identified() bool {
	return strings.TrimSpace(c.Subject) != "" && strings.TrimSpace(c.UserID) != ""
}

// sessionKeys is the material shared by the issuer and the validator. Both
// sides must agree on all of it for a minted cookie to be accepted.
type sessionKeys struct {
	secret     []byte
	issuer     string
	cookieName string
	clock      func() time.Time
}

func newSessionKeys(secret []byte, issuer, cookieName string, clock func() time.Time) (sessionKeys, error) {
	keys := sessionKeys{
		secret:     append([]byte(nil), secret...),
		issuer:     strings.TrimSpace(issuer),
		cookieName: strings.TrimSpace(cookieName),
		clock:      clock,
	}
	switch {
	case len(keys.secret) == 0:
		return sessionKeys{}, ErrMissingSigningSecret
	case keys.issuer == "":
		return sessionKeys{}, ErrMissingIssuer
	case keys.cookieName == "":
		return sessionKeys{}, ErrMissingCookieName
	}
	if keys.clock == nil {
		keys.clock = time.Now
	}
	return keys, nil
}

func (k sessionKeys) now() time.Time {
	return k.clock().UTC()
}
