package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultSessionTTL = 12 * time.Hour

var ErrMissingIdentity = errors.New("studio session: user id and email required")

// SessionIssuerConfig configures a SessionIssuer. It must share the validator's secret and issuer.
type SessionIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	SessionTTL    time.Duration
	Secure        bool
	Clock         func() time.Time
}

// SessionIssuer mints studio session tokens for test logins.
type SessionIssuer struct {
	keys   sessionKeys
	ttl    time.Duration
	secure bool
}

// Identity is the user a session is minted for.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	AvatarURL   string
}

func NewSessionIssuer(cfg SessionIssuerConfig) (*SessionIssuer, error) {
	keys, err := newSessionKeys(cfg.SigningSecret, cfg.Issuer, cfg.CookieName, cfg.Clock)
	if err != nil {
		return nil, err
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionIssuer{keys: keys, ttl: ttl, secure: cfg.Secure}, nil
}

// Issue signs a session token for identity and returns it with its expiry.
func (i *SessionIssuer) Issue(identity Identity) (string, time.Time, error) {
	userID := strings.TrimSpace(identity.UserID)
	email := strings.TrimSpace(identity.Email)
	if userID == "" || email == "" {
		return "", time.Time{}, ErrMissingIdentity
	}

	now := i.keys.now()
	expiresAt := now.Add(i.ttl)
	claims := SessionClaims{
		UserID:          userID,
		UserEmail:       email,
		UserDisplayName: strings.TrimSpace(identity.DisplayName),
		UserAvatarURL:   strings.TrimSpace(identity.AvatarURL),
		UserRoles:       []string{"user"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.keys.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.keys.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Cookie wraps a token in the session cookie.
func (i *SessionIssuer) Cookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     i.keys.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
