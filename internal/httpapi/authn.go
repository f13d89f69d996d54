package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"dashgate.org/internal/account"
	"dashgate.org/internal/directory"
)

const (
	authHeader    = "Authorization"
	bearer        = "Bearer "
	sessionCookie = "dashgate_session"
)

var publicPaths = []string{
	"/login",
	"/forgot-password",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

// withAuth resolves the session token (cookie or bearer header), loads the
// acting user and threads it through the context as a directory.Actor. There
// is no implicit current user anywhere below this middleware.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := sessionToken(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		claims, err := account.ParseSession(token)
		if err != nil {
			if errors.Is(err, account.ErrInvalidSession) {
				writeError(w, r, http.StatusUnauthorized, "invalid session")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		user, err := a.store.GetUser(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				// The account disappeared since the token was issued.
				writeError(w, r, http.StatusUnauthorized, "invalid session")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		if user.Locked {
			writeError(w, r, http.StatusForbidden, lockedMessage)
			return
		}

		ctx := directory.ContextWithActor(r.Context(), directory.ActorForUser(user))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionToken prefers a bearer header; any other Authorization scheme is
// ignored and the session cookie is consulted instead.
func sessionToken(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get(authHeader)); header != "" {
		if strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
			return strings.TrimSpace(header[len(bearer):])
		}
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
