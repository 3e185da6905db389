// Package token mints and verifies opaque, tamper-evident tokens used for
// cookies and time-boxed links.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Purpose scopes a token to a single use site. The signing key is derived
// per purpose, so a token minted for one purpose never verifies under
// another even with the same secret.
type Purpose string

const (
	PurposeUsage     Purpose = "free_usage"
	PurposeDevice    Purpose = "device"
	PurposeBilling   Purpose = "billing"
	PurposeMagicLink Purpose = "restore_pro"
)

// ErrInvalidToken is returned when a token fails signature or structural
// checks. Callers treat it as "absent/untrusted", not as a fault.
var ErrInvalidToken = errors.New("invalid token")

// expiryClaim carries the expiry instant as an ordinary payload field.
// The codec does not enforce it; each use site checks it against its own
// clock so time-boxing policy can vary per purpose.
const expiryClaim = "expires_at"

// Codec signs and verifies purpose-scoped HS256 tokens.
type Codec struct {
	secret []byte
}

// NewCodec creates a Codec from the application secret key.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("empty secret key")
	}
	return &Codec{secret: []byte(secret)}, nil
}

// key derives the purpose-specific signing key: HMAC(secret, purpose).
func (c *Codec) key(p Purpose) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(p))
	return mac.Sum(nil)
}

// Encode signs the payload for the given purpose.
func (c *Codec) Encode(p Purpose, payload map[string]any) (string, error) {
	claims := jwt.MapClaims{}
	for k, v := range payload {
		claims[k] = v
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.key(p))
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", p, err)
	}
	return signed, nil
}

// Decode verifies the token against the given purpose and returns its
// payload. A signature minted under any other purpose fails here.
func (c *Codec) Decode(raw string, p Purpose) (map[string]any, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := jwt.MapClaims{}
	tok, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return c.key(p), nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// WithExpiry copies payload adding the expiry instant under the well-known
// claim read back by Expiry.
func WithExpiry(payload map[string]any, expiresAt time.Time) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out[expiryClaim] = expiresAt.UTC().Format(time.RFC3339)
	return out
}

// Expiry extracts the expiry instant from a decoded payload. ok is false
// when the claim is missing or malformed.
func Expiry(payload map[string]any) (time.Time, bool) {
	raw, found := payload[expiryClaim].(string)
	if !found {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
