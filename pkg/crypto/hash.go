package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmptySecret     = errors.New("secret cannot be empty")
	ErrSecretMismatch  = errors.New("secret does not match hash")
	ErrInvalidHash     = errors.New("invalid secret hash format")
	ErrSecretTooLong   = errors.New("secret exceeds maximum length of 72 bytes")
)

// DefaultCost is the bcrypt work factor used for stored dashboard API
// key hashes. Higher costs are slower and more resistant to brute force.
const DefaultCost = 12

// MaxSecretLength is bcrypt's hard limit.
const MaxSecretLength = 72

// HashSecret bcrypt-hashes a dashboard API key (or any other persisted
// shared secret) with DefaultCost, generating a fresh salt.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	if len(secret) > MaxSecretLength {
		return "", ErrSecretTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// HashSecretWithCost is HashSecret with an explicit bcrypt cost, clamped
// to [bcrypt.MinCost, bcrypt.MaxCost].
func HashSecretWithCost(secret string, cost int) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	if len(secret) > MaxSecretLength {
		return "", ErrSecretTooLong
	}

	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// VerifySecret checks secret against hash in constant time.
func VerifySecret(secret, hash string) error {
	if secret == "" {
		return ErrEmptySecret
	}

	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrSecretMismatch
		}
		return ErrInvalidHash
	}

	return nil
}

// CheckSecretMatch is VerifySecret collapsed to a bool, for use in
// conditionals.
func CheckSecretMatch(secret, hash string) bool {
	return VerifySecret(secret, hash) == nil
}

// GetHashCost extracts the bcrypt cost embedded in hash, used to decide
// whether a stored key needs rehashing after a DefaultCost bump.
func GetHashCost(hash string) (int, error) {
	if hash == "" {
		return 0, ErrInvalidHash
	}

	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, ErrInvalidHash
	}

	return cost, nil
}

// NeedsRehash reports whether hash's cost is below desiredCost.
func NeedsRehash(hash string, desiredCost int) bool {
	currentCost, err := GetHashCost(hash)
	if err != nil {
		return true
	}
	return currentCost < desiredCost
}

// CacheKey derives a deterministic SHA-256 cache key from parts, used by
// the AI classifier's response cache (§4.11) where lookups must be O(1)
// on the exact normalized prompt instead of a salted, slow bcrypt
// comparison.
func CacheKey(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeForCacheKey lowercases and trims a classifier input before
// hashing, so "Trava" and "trava " hit the same cache entry.
func normalizeForCacheKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizedCacheKey hashes a single classifier input after normalizing
// it (see normalizeForCacheKey).
func NormalizedCacheKey(input string) string {
	return CacheKey(normalizeForCacheKey(input))
}
