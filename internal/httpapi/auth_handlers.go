package httpapi

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"dashgate.org/internal/account"
	"dashgate.org/internal/audit"
)

// Login flood control: 5 attempts per minute per client address.
const (
	loginBurst = 5
	loginRate  = rate.Limit(5.0 / 60.0)
)

// lockedMessage deliberately reveals the lock state; the recovery path is an
// administrator reset, and hiding it only generates support load.
const lockedMessage = "account is locked, contact an administrator to reset it"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := a.guard.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrLocked):
			_ = audit.LogEvent(r.Context(), "auth.login.locked", map[string]any{
				"email": req.Email,
			})
			writeError(w, r, http.StatusForbidden, lockedMessage)
		case errors.Is(err, account.ErrBadCredentials):
			writeError(w, r, http.StatusUnauthorized, "invalid email or password")
		default:
			writeError(w, r, http.StatusInternalServerError, "authentication error")
		}
		return
	}

	user, err := a.store.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}
	token, err := account.IssueSession(user.ID, string(user.Role), account.SessionTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session issue failed")
		return
	}

	expiresAt := time.Now().UTC().Add(account.SessionTTL)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	_ = audit.LogEvent(r.Context(), "auth.login.success", map[string]any{
		"user_id": user.ID,
		"role":    string(user.Role),
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    user.ID,
		Role:      string(user.Role),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

// handleForgotPassword returns guidance only: there is no self-service reset,
// an administrator installs a new password.
func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "password resets are handled by your administrator",
	})
}
