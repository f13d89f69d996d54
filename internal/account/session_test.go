package account

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParseSession(t *testing.T) {
	t.Setenv("DASHGATE_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	token, err := IssueSession("user-1", "admin", time.Minute)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	claims, err := ParseSession(token)
	if err != nil {
		t.Fatalf("parse session: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Role != "admin" {
		t.Fatalf("unexpected role %q", claims.Role)
	}
}

func TestParseSessionRejectsTampering(t *testing.T) {
	t.Setenv("DASHGATE_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	token, err := IssueSession("user-1", "user", time.Minute)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	if _, err := ParseSession(token + "x"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if _, err := ParseSession(""); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for empty token, got %v", err)
	}
}

func TestParseSessionRejectsWrongSecret(t *testing.T) {
	t.Setenv("DASHGATE_AUTH_SECRET", "first-secret")
	ResetSecretForTests()
	token, err := IssueSession("user-1", "user", time.Minute)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	t.Setenv("DASHGATE_AUTH_SECRET", "second-secret")
	ResetSecretForTests()
	defer ResetSecretForTests()

	if _, err := ParseSession(token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestIssueSessionValidation(t *testing.T) {
	t.Setenv("DASHGATE_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	if _, err := IssueSession("", "user", time.Minute); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := IssueSession("user-1", "user", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestIssueSessionMissingSecret(t *testing.T) {
	t.Setenv("DASHGATE_AUTH_SECRET", "")
	ResetSecretForTests()
	defer ResetSecretForTests()

	if _, err := IssueSession("user-1", "user", time.Minute); err == nil {
		t.Fatal("expected error when secret is not configured")
	}
}
