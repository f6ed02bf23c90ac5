package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSessionToken   = errors.New("studio session: token required")
	ErrInvalidSessionToken   = errors.New("studio session: invalid token")
	ErrExpiredSessionToken   = errors.New("studio session: token expired")
	ErrMissingSessionSubject = errors.New("studio session: subject required")
)

const authorizationScheme = "Bearer"

// SessionValidatorConfig describes how studio session tokens are checked.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// SessionValidator accepts HS256 session tokens from the session cookie or an
// Authorization bearer header. Tokens without an expiry are rejected.
type SessionValidator struct {
	keys   sessionKeys
	parser *jwt.Parser
}

func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	keys, err := newSessionKeys(cfg.SigningSecret, cfg.Issuer, cfg.CookieName, cfg.Clock)
	if err != nil {
		return nil, err
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(keys.issuer),
		jwt.WithTimeFunc(keys.clock),
		jwt.WithExpirationRequired(),
	)
	return &SessionValidator{keys: keys, parser: parser}, nil
}

func (v *SessionValidator) CookieName() string {
	return v.keys.cookieName
}

// ValidateToken parses a session token and returns its claims.
func (v *SessionValidator) ValidateToken(raw string) (SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	var claims SessionClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, v.signingKey); err != nil {
		return SessionClaims{}, classifyParseError(err)
	}
	if !claims.identified() {
		return SessionClaims{}, ErrMissingSessionSubject
	}
	return claims, nil
}

// ValidateRequest prefers the session cookie and falls back to a bearer token.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	raw := v.requestToken(r)
	if raw == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}
	return v.ValidateToken(raw)
}

func (v *SessionValidator) requestToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	if cookie, err := r.Cookie(v.keys.cookieName); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}
	fields := strings.Fields(r.Header.Get("Authorization"))
	if len(fields) == 2 && strings.EqualFold(fields[0], authorizationScheme) {
		return fields[1]
	}
	return ""
}

func (v *SessionValidator) signingKey(*jwt.Token) (interface{}, error) {
	return v.keys.secret, nil
}

func classifyParseError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredSessionToken
	}
	return fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
}
