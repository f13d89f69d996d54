package httpapi

import (
	"net/http"
	"strings"

	"dashgate.org/internal/account"
	"dashgate.org/internal/audit"
	"dashgate.org/internal/directory"
)

type userRequest struct {
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Password      string   `json:"password"`
	Role          string   `json:"role"`
	CompanyID     string   `json:"company_id"`
	DepartmentIDs []string `json:"department_ids"`
}

type userUpdateRequest struct {
	Name          *string  `json:"name"`
	Email         *string  `json:"email"`
	Role          *string  `json:"role"`
	CompanyID     *string  `json:"company_id"`
	DepartmentIDs []string `json:"department_ids"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	users, err := a.svc.ListUsers(r.Context(), actor)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload(users))
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/users/"), "/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] == "add":
		a.handleUserAdd(w, r)
	case len(parts) == 2 && parts[0] == "edit" && parts[1] != "":
		a.handleUserEdit(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "delete" && parts[1] != "":
		a.handleUserDelete(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "reset-password" && parts[1] != "":
		a.handleUserResetPassword(w, r, parts[1])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Password) == "" {
		writeError(w, r, http.StatusBadRequest, "password is required")
		return
	}
	hash, err := account.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	user, err := a.svc.CreateUser(r.Context(), actor, directory.NewUser{
		Name:          req.Name,
		Email:         req.Email,
		Role:          directory.Role(strings.ToLower(strings.TrimSpace(req.Role))),
		CompanyID:     req.CompanyID,
		DepartmentIDs: req.DepartmentIDs,
	}, hash)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.create", map[string]any{
		"user_id": user.ID,
		"role":    string(user.Role),
	})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUserEdit(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		user, err := a.svc.GetUser(r.Context(), actor, id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPost:
		var req userUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		upd := directory.UserUpdate{
			Name:          req.Name,
			Email:         req.Email,
			CompanyID:     req.CompanyID,
			DepartmentIDs: req.DepartmentIDs,
		}
		if req.Role != nil {
			role := directory.Role(strings.ToLower(strings.TrimSpace(*req.Role)))
			upd.Role = &role
		}
		user, err := a.svc.UpdateUser(r.Context(), actor, id, upd)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.update", map[string]any{
			"user_id": user.ID,
			"role":    string(user.Role),
		})
		writeJSON(w, http.StatusOK, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserDelete(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := a.svc.DeleteUser(r.Context(), actor, id); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.delete", map[string]any{
		"user_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserResetPassword(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		user, err := a.svc.GetUser(r.Context(), actor, id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":    user.ID,
			"email": user.Email,
		})
	case http.MethodPost:
		var req resetPasswordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(req.Password) == "" {
			writeError(w, r, http.StatusBadRequest, "password is required")
			return
		}
		hash, err := account.HashPassword(req.Password)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if err := a.svc.ResetPassword(r.Context(), actor, id, hash); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.reset_password", map[string]any{
			"user_id": id,
		})
		writeJSON(w, http.StatusOK, map[string]any{"status": "password_reset"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
