package analytics

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// IPHasher turns visitor addresses into keyed digests so raw IPs are never stored.
type IPHasher struct {
	key []byte
}

// NewIPHasher derives a BLAKE2b key from the salt. An empty salt yields unkeyed hashes.
func NewIPHasher(salt string) *IPHasher {
	if salt == "" {
		return &IPHasher{}
	}
	key := []byte(salt)
	if len(key) > blake2b.Size {
		digest := blake2b.Sum256(key)
		key = digest[:]
	}
	return &IPHasher{key: key}
}

// Hash returns the hex digest for ip, or "" when no address is known.
func (h *IPHasher) Hash(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	digest, err := blake2b.New256(h.key)
	if err != nil {
		return ""
	}
	digest.Write([]byte(ip))
	return hex.EncodeToString(digest.Sum(nil))
}
