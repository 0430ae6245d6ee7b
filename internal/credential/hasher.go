// Package credential hashes and verifies principal passwords with bcrypt.
package credential

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/avagate/internal/apperr"
)

// DefaultCost is the bcrypt cost used when none is configured. On commodity
// hardware it lands in the 50-250ms range per hash.
const DefaultCost = 12

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// ErrHashFailure indicates the hashing library itself failed. It is never
// caused by the shape of the input.
var ErrHashFailure = errors.New("credential: hash failure")

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// BcryptHasher is a stateless bcrypt Hasher with a fixed cost.
type BcryptHasher struct {
	cost     int
	generate func(password []byte, cost int) ([]byte, error)
}

// NewBcryptHasher creates a hasher with the given cost. A cost outside
// bcrypt's accepted range falls back to DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BcryptHasher{
		cost:     cost,
		generate: bcrypt.GenerateFromPassword,
	}
}

// Cost returns the configured bcrypt cost.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash returns a salted bcrypt digest of plaintext.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	digest, err := h.generate(normalize(plaintext), h.cost)
	if err != nil {
		return "", apperr.New(apperr.KindHashFailure, fmt.Errorf("%w: %w", ErrHashFailure, err))
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. The comparison inside
// bcrypt is constant time; a malformed digest simply does not match.
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), normalize(plaintext)) == nil
}

// normalize pre-hashes inputs longer than bcrypt's limit so that every
// input shape hashes without error and no suffix is silently ignored.
func normalize(plaintext string) []byte {
	if len(plaintext) <= maxPasswordBytes {
		return []byte(plaintext)
	}
	sum := sha256.Sum256([]byte(plaintext))
	return []byte(base64.RawStdEncoding.EncodeToString(sum[:]))
}
