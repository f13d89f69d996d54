package account

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubCredentialStore struct {
	cred      Credential
	successes int
	lastLogin time.Time
}

func (s *stubCredentialStore) CredentialByEmail(_ context.Context, email string) (Credential, error) {
	if email != s.cred.Email {
		return Credential{}, errors.New("not found")
	}
	return s.cred, nil
}

func (s *stubCredentialStore) RecordLoginSuccess(_ context.Context, userID string, at time.Time) error {
	if userID != s.cred.UserID {
		return errors.New("unknown user")
	}
	s.cred.FailedAttempts = 0
	s.successes++
	s.lastLogin = at
	return nil
}

func (s *stubCredentialStore) RecordLoginFailure(_ context.Context, userID string, threshold int) (bool, error) {
	if userID != s.cred.UserID {
		return false, errors.New("unknown user")
	}
	s.cred.FailedAttempts++
	if !s.cred.Locked && s.cred.FailedAttempts >= threshold {
		s.cred.Locked = true
		return true, nil
	}
	return false, nil
}

func newStubStore(t *testing.T, password string) *stubCredentialStore {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &stubCredentialStore{cred: Credential{
		UserID:       "u1",
		Email:        "uma@example.com",
		PasswordHash: hash,
	}}
}

func TestAuthenticateSuccessResetsCounter(t *testing.T) {
	store := newStubStore(t, "correct horse")
	store.cred.FailedAttempts = 3
	guard, err := NewGuard(store)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}

	userID, err := guard.Authenticate(context.Background(), "Uma@Example.com ", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("unexpected user id %q", userID)
	}
	if store.cred.FailedAttempts != 0 {
		t.Fatalf("success must reset the counter, got %d", store.cred.FailedAttempts)
	}
	if store.lastLogin.IsZero() {
		t.Fatal("success must stamp last login")
	}
}

func TestAuthenticateLocksAtThreshold(t *testing.T) {
	store := newStubStore(t, "correct horse")
	guard, err := NewGuard(store)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	ctx := context.Background()

	for i := 1; i < LockThreshold; i++ {
		if _, err := guard.Authenticate(ctx, "uma@example.com", "wrong"); !errors.Is(err, ErrBadCredentials) {
			t.Fatalf("attempt %d: expected ErrBadCredentials, got %v", i, err)
		}
	}
	// The threshold attempt reports the lock.
	if _, err := guard.Authenticate(ctx, "uma@example.com", "wrong"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked at attempt %d, got %v", LockThreshold, err)
	}
	if !store.cred.Locked {
		t.Fatal("account must be locked")
	}
}

func TestLockedAccountRejectsCorrectPassword(t *testing.T) {
	store := newStubStore(t, "correct horse")
	store.cred.Locked = true
	store.cred.FailedAttempts = LockThreshold
	guard, err := NewGuard(store)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}

	// The lock is sticky: the credential check never runs.
	if _, err := guard.Authenticate(context.Background(), "uma@example.com", "correct horse"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if store.successes != 0 {
		t.Fatal("locked account must not record a success")
	}
}

func TestResetUnlocksAccount(t *testing.T) {
	store := newStubStore(t, "old password")
	guard, err := NewGuard(store)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < LockThreshold; i++ {
		_, _ = guard.Authenticate(ctx, "uma@example.com", "wrong")
	}
	if _, err := guard.Authenticate(ctx, "uma@example.com", "old password"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked before reset, got %v", err)
	}

	// An administrator reset installs a new hash and clears the lock.
	hash, err := HashPassword("new password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	store.cred.PasswordHash = hash
	store.cred.Locked = false
	store.cred.FailedAttempts = 0

	if _, err := guard.Authenticate(ctx, "uma@example.com", "new password"); err != nil {
		t.Fatalf("authenticate after reset: %v", err)
	}
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	store := newStubStore(t, "correct horse")
	guard, err := NewGuard(store)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}

	// Unknown email and wrong password are indistinguishable.
	if _, err := guard.Authenticate(context.Background(), "nobody@example.com", "whatever"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}

func TestAuthenticateEmptyInput(t *testing.T) {
	store := newStubStore(t, "correct horse")
	guard, err := NewGuard(store)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	if _, err := guard.Authenticate(context.Background(), "", "pw"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	if _, err := guard.Authenticate(context.Background(), "uma@example.com", ""); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}
