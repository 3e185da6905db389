package proposal

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// cacheVersion tags every cache key. Bump it whenever normalization or the
// set of hashed fields changes, so stale entries are invalidated instead of
// silently returned for a different scheme.
const cacheVersion = "v1"

var whitespaceRE = regexp.MustCompile(`\s+`)

// normalize canonicalizes one field for hashing: trim, lowercase, unify
// line endings, collapse internal whitespace.
func normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return whitespaceRE.ReplaceAllString(text, " ")
}

// CacheKey derives the deterministic cache key for an input. Only fields
// semantically relevant to generation participate; volatile fields such as
// the price or the client's name must never influence the key.
func CacheKey(in Input) string {
	trade := NormalizeTrade(in.Trade)
	parts := []string{
		cacheVersion,

		normalize(trade),
		normalize(Profile(trade)),

		normalize(in.ServiceType),
		normalize(in.Scope),
		normalize(in.Tone),
		normalize(in.Timeframe),

		normalize(in.Business),
		normalize(in.ABN),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}
