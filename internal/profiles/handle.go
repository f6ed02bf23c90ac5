package profiles

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	minHandleLength = 3
	maxHandleLength = 30
)

var ErrInvalidHandle = errors.New("profiles: invalid handle")

var handlePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

var reservedHandles = map[string]struct{}{
	"app": {}, "api": {}, "r": {}, "demo": {}, "signin": {}, "signout": {}, "e2e": {},
	"auth": {}, "healthz": {}, "metrics": {}, "robots.txt": {}, "sitemap.xml": {},
	"static": {}, "assets": {}, "favicon.ico": {}, "admin": {}, "settings": {},
}

// NormalizeHandle lowercases a handle and strips whitespace and a leading "@".
func NormalizeHandle(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "@")
	return strings.ToLower(strings.TrimSpace(value))
}

// ValidateHandle checks a normalized handle against length, charset, and reserved paths.
func ValidateHandle(handle string) error {
	if len(handle) < minHandleLength || len(handle) > maxHandleLength {
		return fmt.Errorf("%w: must be %d to %d characters", ErrInvalidHandle, minHandleLength, maxHandleLength)
	}
	if !handlePattern.MatchString(handle) {
		return fmt.Errorf("%w: use lowercase letters, numbers, dashes, or underscores", ErrInvalidHandle)
	}
	if _, reserved := reservedHandles[handle]; reserved {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidHandle, handle)
	}
	return nil
}

// IsReservedHandle reports whether the path segment belongs to the application.
func IsReservedHandle(handle string) bool {
	_, reserved := reservedHandles[NormalizeHandle(handle)]
	return reserved
}
