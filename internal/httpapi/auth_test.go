package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store/memory"
)

func TestParseTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("round-trip-secret-0123456789abcdef", time.Hour, nil)

	token, err := auth.sign("admin", "admin", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager("expired-secret-0123456789abcdef00", time.Hour, nil)

	token, err := auth.sign("admin", "admin", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	signer := NewAuthManager("signer-secret-0123456789abcdef000", time.Hour, nil)
	verifier := NewAuthManager("other-secret-0123456789abcdef0000", time.Hour, nil)

	token, err := signer.sign("admin", "admin", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := verifier.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}

func TestLoginUnknownUser(t *testing.T) {
	auth := NewAuthManager("login-secret-0123456789abcdef0000", time.Hour, memory.New())

	_, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "whatever"})
	if err == nil {
		t.Fatalf("expected unknown user to be rejected")
	}
}

func TestLoginIsCaseInsensitiveOnUsername(t *testing.T) {
	auth := NewAuthManager("login-secret-0123456789abcdef0000", time.Hour, memory.New())

	resp, err := auth.Login(domain.LoginRequest{Username: "  ADMIN ", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}
}

func TestLoginPicksUpNewlyCreatedUsers(t *testing.T) {
	repo := memory.New()
	auth := NewAuthManager("login-secret-0123456789abcdef0000", time.Hour, repo)

	hashed, err := hashPassword("s3cret99")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "barista",
		Password:  hashed,
		Role:      "cashier",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	resp, err := auth.Login(domain.LoginRequest{Username: "barista", Password: "s3cret99"})
	if err != nil {
		t.Fatalf("login after user creation: %v", err)
	}
	if resp.Role != "cashier" {
		t.Fatalf("expected cashier role, got %s", resp.Role)
	}
}

func TestBootstrapUpgradesPlaintextPasswords(t *testing.T) {
	repo := memory.New()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "legacy",
		Password:  "plain-old-password",
		Role:      "cashier",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	auth := NewAuthManager("upgrade-secret-0123456789abcdef00", time.Hour, repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plain-old-password"}); err != nil {
		t.Fatalf("login with upgraded password: %v", err)
	}

	stored, err := repo.GetUserByUsername(context.Background(), "legacy")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected stored password to be bcrypt-hashed, got %q", stored.Password)
	}
}

func TestVerifyPasswordRejectsPlaintextStored(t *testing.T) {
	if verifyPassword("plain", "plain") {
		t.Fatalf("plaintext stored password must never verify")
	}
	hashed, err := hashPassword("hello-world")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !verifyPassword(hashed, "hello-world") {
		t.Fatalf("expected matching password to verify")
	}
	if verifyPassword(hashed, "wrong") {
		t.Fatalf("expected mismatch to fail")
	}
}
