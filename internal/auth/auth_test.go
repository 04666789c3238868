package auth

import (
	"testing"
	"time"
)

func TestJWTResolver_RoundTrip(t *testing.T) {
	resolver := NewJWTResolver("secret")

	token, err := resolver.Sign(&Identity{
		UserID:   "u1",
		Username: "alice",
		UserType: "student",
	}, time.Hour)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	id, err := resolver.Resolve(token)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if id.UserID != "u1" || id.Username != "alice" || id.UserType != "student" {
		t.Errorf("identity mismatch: %+v", id)
	}
}

func TestJWTResolver_RejectsExpiredToken(t *testing.T) {
	resolver := NewJWTResolver("secret")

	token, err := resolver.Sign(&Identity{UserID: "u1"}, -time.Minute)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := resolver.Resolve(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTResolver_RejectsWrongSecret(t *testing.T) {
	token, err := NewJWTResolver("secret-a").Sign(&Identity{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := NewJWTResolver("secret-b").Resolve(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTResolver_RejectsEmptyToken(t *testing.T) {
	resolver := NewJWTResolver("secret")
	if _, err := resolver.Resolve(""); err != ErrMissingToken {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestJWTResolver_RejectsTokenWithoutUserID(t *testing.T) {
	resolver := NewJWTResolver("secret")

	token, err := resolver.Sign(&Identity{Username: "alice"}, time.Hour)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := resolver.Resolve(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTResolver_RejectsGarbage(t *testing.T) {
	resolver := NewJWTResolver("secret")
	if _, err := resolver.Resolve("not.a.jwt"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
