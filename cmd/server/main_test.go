package main

import (
	"testing"

	"kedaipos/backend/internal/config"
)

func TestValidateSecurityConfigRejectsShortSecret(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "short"}); err == nil {
		t.Fatalf("expected short auth secret to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongSecret(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger := newLogger("not-a-level")
	if logger.GetLevel().String() != "info" {
		t.Fatalf("expected info fallback, got %s", logger.GetLevel())
	}
}
