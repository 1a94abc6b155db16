package geocode

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeAddress canonicalizes an address for cache lookup: NFKC, case
// folded, trimmed, with internal whitespace runs collapsed to one space.
func NormalizeAddress(address string) string {
	s := norm.NFKC.String(address)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// cacheKey returns the namespaced SHA-256 hex key for a normalized address.
func cacheKey(namespace, normalized string) string {
	h := sha256.Sum256([]byte(normalized))
	return namespace + ":" + hex.EncodeToString(h[:])
}
