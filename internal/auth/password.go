// Package auth provides credential hashing, token issuance and role checks.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrHashing is returned when a password cannot be hashed.
	ErrHashing = errors.New("password hashing failed")
	// ErrComparison is returned when a stored hash is malformed.
	ErrComparison = errors.New("password comparison failed")
)

// Hasher hashes and verifies passwords with bcrypt at a fixed cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using cost, or bcrypt.DefaultCost when cost is out of range.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a salted bcrypt hash of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("%w: empty password", ErrHashing)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHashing, err)
	}
	return string(hashed), nil
}

// Compare reports whether plain matches hash. A mismatch is not an error.
func (h *Hasher) Compare(plain, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", ErrComparison, err)
	}
}

var defaultHasher = NewHasher(bcrypt.DefaultCost)

// HashPassword hashes plain with the default cost.
func HashPassword(plain string) (string, error) {
	return defaultHasher.Hash(plain)
}

// ComparePassword reports whether plain matches hash.
func ComparePassword(plain, hash string) (bool, error) {
	return defaultHasher.Compare(plain, hash)
}
