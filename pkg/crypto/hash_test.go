package crypto

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"simple key", "sk_live_abc123"},
		{"complex key", "P@ssw0rd!#$%^&*()"},
		{"unicode key", "chave-ação-123"},
		{"long key", strings.Repeat("a", 70)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashSecret(tt.secret)
			if err != nil {
				t.Fatalf("HashSecret failed: %v", err)
			}
			if hash == "" {
				t.Error("hash should not be empty")
			}
			if !strings.HasPrefix(hash, "$2a$") && !strings.HasPrefix(hash, "$2b$") {
				t.Errorf("hash should start with bcrypt prefix, got: %s", hash[:10])
			}
			if hash == tt.secret {
				t.Error("hash should not equal the secret")
			}
		})
	}
}

func TestHashSecret_EmptyError(t *testing.T) {
	if _, err := HashSecret(""); err != ErrEmptySecret {
		t.Errorf("HashSecret(\"\") error = %v, want %v", err, ErrEmptySecret)
	}
}

func TestHashSecret_TooLong(t *testing.T) {
	if _, err := HashSecret(strings.Repeat("a", 73)); err != ErrSecretTooLong {
		t.Errorf("HashSecret error = %v, want %v", err, ErrSecretTooLong)
	}
}

func TestHashSecret_DifferentHashesPerCall(t *testing.T) {
	secret := "same-secret"
	h1, _ := HashSecret(secret)
	h2, _ := HashSecret(secret)
	if h1 == h2 {
		t.Error("two hashes of the same secret should differ (different salts)")
	}
}

func TestHashSecretWithCost(t *testing.T) {
	tests := []struct {
		name         string
		cost         int
		expectedCost int
	}{
		{"min cost", bcrypt.MinCost, bcrypt.MinCost},
		{"default cost", DefaultCost, DefaultCost},
		{"below min clamps", 0, bcrypt.MinCost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashSecretWithCost("a-secret", tt.cost)
			if err != nil {
				t.Fatalf("HashSecretWithCost failed: %v", err)
			}
			got, _ := GetHashCost(hash)
			if got != tt.expectedCost {
				t.Errorf("cost = %d, want %d", got, tt.expectedCost)
			}
		})
	}
}

func TestVerifySecret(t *testing.T) {
	secret := "correct-key"
	hash, _ := HashSecret(secret)

	if err := VerifySecret(secret, hash); err != nil {
		t.Errorf("VerifySecret correct: error = %v, want nil", err)
	}
	if err := VerifySecret("wrong-key", hash); err != ErrSecretMismatch {
		t.Errorf("VerifySecret wrong: error = %v, want %v", err, ErrSecretMismatch)
	}
}

func TestVerifySecret_EmptyInputs(t *testing.T) {
	hash, _ := HashSecret("a-secret")

	if err := VerifySecret("", hash); err != ErrEmptySecret {
		t.Errorf("empty secret: error = %v, want %v", err, ErrEmptySecret)
	}
	if err := VerifySecret("a-secret", ""); err != ErrInvalidHash {
		t.Errorf("empty hash: error = %v, want %v", err, ErrInvalidHash)
	}
}

func TestVerifySecret_InvalidHash(t *testing.T) {
	tests := []string{"notahash", "$2a$12$abc", "sha256:abcdef123456"}
	for _, hash := range tests {
		t.Run(hash, func(t *testing.T) {
			if err := VerifySecret("a-secret", hash); err != ErrInvalidHash {
				t.Errorf("error = %v, want %v", err, ErrInvalidHash)
			}
		})
	}
}

func TestCheckSecretMatch(t *testing.T) {
	secret := "a-secret"
	hash, _ := HashSecret(secret)

	if !CheckSecretMatch(secret, hash) {
		t.Error("CheckSecretMatch should be true for the correct secret")
	}
	if CheckSecretMatch("wrong", hash) {
		t.Error("CheckSecretMatch should be false for the wrong secret")
	}
	if CheckSecretMatch("", hash) {
		t.Error("CheckSecretMatch should be false for an empty secret")
	}
}

func TestGetHashCost(t *testing.T) {
	hash, _ := HashSecretWithCost("a-secret", 10)
	cost, err := GetHashCost(hash)
	if err != nil {
		t.Fatalf("GetHashCost failed: %v", err)
	}
	if cost != 10 {
		t.Errorf("cost = %d, want 10", cost)
	}

	if _, err := GetHashCost(""); err != ErrInvalidHash {
		t.Errorf("empty hash: error = %v, want %v", err, ErrInvalidHash)
	}
	if _, err := GetHashCost("invalid"); err != ErrInvalidHash {
		t.Errorf("invalid hash: error = %v, want %v", err, ErrInvalidHash)
	}
}

func TestNeedsRehash(t *testing.T) {
	hash, _ := HashSecretWithCost("a-secret", 10)

	if NeedsRehash(hash, 10) {
		t.Error("should be false when cost equals desired")
	}
	if NeedsRehash(hash, 8) {
		t.Error("should be false when cost exceeds desired")
	}
	if !NeedsRehash(hash, 12) {
		t.Error("should be true when cost is below desired")
	}
	if !NeedsRehash("invalid", 10) {
		t.Error("should be true for an invalid hash")
	}
}

func TestDefaultCost(t *testing.T) {
	if DefaultCost < 10 {
		t.Errorf("DefaultCost %d is too low for production use", DefaultCost)
	}
	if DefaultCost > 14 {
		t.Errorf("DefaultCost %d may cause noticeable latency", DefaultCost)
	}
}

func TestHashSecretWithCost_EmptyAndTooLong(t *testing.T) {
	if _, err := HashSecretWithCost("", 10); err != ErrEmptySecret {
		t.Errorf("empty: error = %v, want %v", err, ErrEmptySecret)
	}
	if _, err := HashSecretWithCost(strings.Repeat("a", 73), 10); err != ErrSecretTooLong {
		t.Errorf("too long: error = %v, want %v", err, ErrSecretTooLong)
	}
}

func TestCacheKey_DeterministicAndDistinct(t *testing.T) {
	a := CacheKey("group:1", "preço")
	b := CacheKey("group:1", "preço")
	if a != b {
		t.Error("CacheKey should be deterministic for identical inputs")
	}
	c := CacheKey("group:2", "preço")
	if a == c {
		t.Error("CacheKey should differ across distinct inputs")
	}
}

func TestNormalizedCacheKey_IgnoresCaseAndWhitespace(t *testing.T) {
	a := NormalizedCacheKey("Trava")
	b := NormalizedCacheKey("  trava  ")
	if a != b {
		t.Error("NormalizedCacheKey should ignore case and surrounding whitespace")
	}
}

func BenchmarkHashSecret(b *testing.B) {
	secret := "benchmark-secret-123"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = HashSecret(secret)
	}
}

func BenchmarkHashSecretMinCost(b *testing.B) {
	secret := "benchmark-secret-123"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = HashSecretWithCost(secret, bcrypt.MinCost)
	}
}

func BenchmarkVerifySecret(b *testing.B) {
	secret := "benchmark-secret-123"
	hash, _ := HashSecretWithCost(secret, bcrypt.MinCost)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = VerifySecret(secret, hash)
	}
}

func BenchmarkCacheKey(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CacheKey("group:1", "preço do dólar hoje")
	}
}
