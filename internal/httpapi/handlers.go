package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"dashgate.org/internal/account"
	"dashgate.org/internal/directory"
	"dashgate.org/internal/obs"
)

// ReadyProbe — простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config wires the API dependencies.
type Config struct {
	Service *directory.Service
	Guard   *account.Guard
	// Store loads the acting user on each authenticated request.
	Store       directory.ReadStore
	Ready       ReadyProbe
	Version     string
	EmbedOrigin string
}

// API — HTTP слой.
type API struct {
	mux         *http.ServeMux
	svc         *directory.Service
	guard       *account.Guard
	store       directory.ReadStore
	readyProbe  ReadyProbe
	version     string
	embedOrigin string
}

const defaultEmbedOrigin = "https://app.powerbi.com"

func New(cfg Config) *API {
	a := &API{
		mux:         http.NewServeMux(),
		svc:         cfg.Service,
		guard:       cfg.Guard,
		store:       cfg.Store,
		readyProbe:  cfg.Ready,
		version:     cfg.Version,
		embedOrigin: strings.TrimSpace(cfg.EmbedOrigin),
	}
	if a.embedOrigin == "" {
		a.embedOrigin = defaultEmbedOrigin
	}

	// health/ready
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// sessions
	a.mux.Handle("/login", RateLimit(http.HandlerFunc(a.handleLogin), loginBurst, loginRate))
	a.mux.HandleFunc("/logout", a.handleLogout)
	a.mux.HandleFunc("/forgot-password", a.handleForgotPassword)

	// dashboard display surface
	a.mux.HandleFunc("/dashboard", a.handleDashboardIndex)
	a.mux.HandleFunc("/dashboard/", a.handleDashboardScoped)

	// management surface
	a.mux.HandleFunc("/companies", a.handleCompanies)
	a.mux.HandleFunc("/companies/", a.handleCompanyResource)
	a.mux.HandleFunc("/departments", a.handleDepartments)
	a.mux.HandleFunc("/departments/", a.handleDepartmentResource)
	a.mux.HandleFunc("/dashboards/", a.handleDashboardManagement)
	a.mux.HandleFunc("/users", a.handleUsers)
	a.mux.HandleFunc("/users/", a.handleUserResource)

	// lookup API
	a.mux.HandleFunc("/api/departments", a.handleDepartmentLookup)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = SecurityHeaders(h)
	h = MaxBodyBytes(h, 1<<20)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "dashgate-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDirectoryError maps the shared error taxonomy onto HTTP statuses.
// Forbidden carries no detail on purpose.
func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, directory.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, directory.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// requireActor pulls the authenticated actor from the context. withAuth puts
// it there for every non-public path, so a miss means a wiring bug or an
// unauthenticated request that slipped through.
func requireActor(w http.ResponseWriter, r *http.Request) (directory.Actor, bool) {
	actor, ok := directory.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return directory.Actor{}, false
	}
	return actor, true
}
