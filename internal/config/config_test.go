package config

import (
	"testing"
)

func TestValidate_DevNeedsNoKey(t *testing.T) {
	cfg := &Config{Env: "development"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dev config should validate: %v", err)
	}
}

func TestValidate_ProductionRequiresKey(t *testing.T) {
	cfg := &Config{Env: "production"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing JWT_SIGNING_KEY")
	}
}

func TestValidate_RejectsShortKey(t *testing.T) {
	cfg := &Config{Env: "production", JWTSigningKey: "short"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for short signing key")
	}
}

func TestValidate_AcceptsLongKey(t *testing.T) {
	cfg := &Config{Env: "production", JWTSigningKey: "0123456789abcdef0123456789abcdef"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestIsDev(t *testing.T) {
	if !(&Config{Env: "development"}).IsDev() {
		t.Fatal("development should be dev")
	}
	if (&Config{Env: "production"}).IsDev() {
		t.Fatal("production should not be dev")
	}
}
