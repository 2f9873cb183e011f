package config

import (
	"testing"

	"otcbot/pkg/crypto"
)

func TestLoad_RequiresEncryptionKey(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail when ENCRYPTION_KEY is unset")
	}
}

func TestLoad_RejectsWrongKeyLength(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "too-short")
	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail for a non-32-byte ENCRYPTION_KEY")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Deal.DefaultQuoteTTLSeconds != 180 {
		t.Errorf("Deal.DefaultQuoteTTLSeconds = %d, want 180", cfg.Deal.DefaultQuoteTTLSeconds)
	}
	if cfg.Deal.SweepInterval.Seconds() != 10 {
		t.Errorf("Deal.SweepInterval = %v, want 10s", cfg.Deal.SweepInterval)
	}
	if cfg.Price.SanityBandUSDBRLLow != 3.0 || cfg.Price.SanityBandUSDBRLHigh != 10.0 {
		t.Errorf("Price sanity band = [%v,%v], want [3,10]", cfg.Price.SanityBandUSDBRLLow, cfg.Price.SanityBandUSDBRLHigh)
	}
	if cfg.Security.DashboardSecret != "" {
		t.Error("DashboardSecret should default empty (dev mode, open write API)")
	}
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CONTROL_GROUP_PATTERN", "operadores")
	t.Setenv("ALLOWED_ORIGINS", "https://a.test, https://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Router.ControlGroupPattern != "operadores" {
		t.Errorf("Router.ControlGroupPattern = %q, want operadores", cfg.Router.ControlGroupPattern)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Fatalf("AllowedOrigins = %v, want 2 entries", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.AllowedOrigins[0] != "https://a.test" {
		t.Errorf("AllowedOrigins[0] = %q, want https://a.test", cfg.Server.AllowedOrigins[0])
	}
}

func TestLoad_DecryptsAIAPIKeyEnc(t *testing.T) {
	key := "01234567890123456789012345678901"
	t.Setenv("ENCRYPTION_KEY", key)

	ciphertext, err := crypto.Encrypt("sk-plaintext-value", []byte(key))
	if err != nil {
		t.Fatalf("crypto.Encrypt() error = %v", err)
	}
	t.Setenv("AI_API_KEY_ENC", ciphertext)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "sk-plaintext-value" {
		t.Errorf("AI.APIKey = %q, want decrypted value", cfg.AI.APIKey)
	}
}

func TestLoad_RejectsUndecryptableAIAPIKeyEnc(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901")
	t.Setenv("AI_API_KEY_ENC", "not-valid-ciphertext")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail when AI_API_KEY_ENC can't be decrypted")
	}
}

func TestGetEnvAsDuration_InvalidFallsBackToDefault(t *testing.T) {
	t.Setenv("DEAL_SWEEP_INTERVAL", "not-a-duration")
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Deal.SweepInterval.Seconds() != 10 {
		t.Errorf("SweepInterval = %v, want default 10s on invalid input", cfg.Deal.SweepInterval)
	}
}
