package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

// LockThreshold is the failed-attempt count at which an account locks.
// The lock is sticky: only an explicit password reset clears it.
const LockThreshold = 5

var (
	// ErrBadCredentials covers both unknown email and wrong password.
	ErrBadCredentials = errors.New("account: invalid email or password")
	// ErrLocked is returned for locked accounts before the credential check.
	// The response deliberately tells the caller the account is locked.
	ErrLocked = errors.New("account: account is locked")
)

// Credential is the authentication view of a user record.
type Credential struct {
	UserID         string
	Email          string
	PasswordHash   string
	FailedAttempts int
	Locked         bool
}

// CredentialStore is the persistence the guard needs.
type CredentialStore interface {
	CredentialByEmail(ctx context.Context, email string) (Credential, error)
	// RecordLoginSuccess zeroes the failure counter and stamps last_login.
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error
	// RecordLoginFailure increments the failure counter and locks the
	// account once it reaches threshold, reporting whether it locked now.
	RecordLoginFailure(ctx context.Context, userID string, threshold int) (locked bool, err error)
}

// Guard tracks login attempts and enforces the lockout state machine.
type Guard struct {
	store CredentialStore
	now   func() time.Time
}

// GuardOption configures Guard behavior.
type GuardOption func(*Guard)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewGuard constructs a Guard.
func NewGuard(store CredentialStore, opts ...GuardOption) (*Guard, error) {
	if store == nil {
		return nil, errors.New("account: credential store is required")
	}
	g := &Guard{store: store, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Authenticate verifies credentials and maintains the attempt counter.
// A locked account is rejected before the credential check, so a correct
// password does not unlock it.
func (g *Guard) Authenticate(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", ErrBadCredentials
	}
	cred, err := g.store.CredentialByEmail(ctx, email)
	if err != nil {
		return "", ErrBadCredentials
	}
	if cred.Locked {
		return "", ErrLocked
	}
	if err := VerifyPassword(cred.PasswordHash, password); err != nil {
		lockedNow, recErr := g.store.RecordLoginFailure(ctx, cred.UserID, LockThreshold)
		if recErr != nil {
			return "", recErr
		}
		if lockedNow {
			return "", ErrLocked
		}
		return "", ErrBadCredentials
	}
	if err := g.store.RecordLoginSuccess(ctx, cred.UserID, g.now().UTC()); err != nil {
		return "", err
	}
	return cred.UserID, nil
}
