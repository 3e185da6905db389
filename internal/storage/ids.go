package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// randomToken returns a URL-safe random string from n bytes of entropy.
func randomToken(n int) string {
	b := make([]byte, n)
	// rand.Read never returns an error on supported platforms.
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// NewProposalID returns a short URL-safe proposal identifier.
func NewProposalID() string {
	return randomToken(16)
}

// NewAcceptToken returns a longer single-use acceptance secret.
func NewAcceptToken() string {
	return randomToken(32)
}

// ComputeProposalHash returns the SHA-256 hex digest over the trimmed,
// newline-joined parts. Used as immutability proof for a stored proposal.
func ComputeProposalHash(parts ...string) string {
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed = append(trimmed, strings.TrimSpace(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(trimmed, "\n")))
	return hex.EncodeToString(sum[:])
}
