package httpapi

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"dashgate.org/internal/audit"
	"dashgate.org/internal/directory"
)

// viewTemplate embeds the external BI link in a sandboxed frame. It is the
// only HTML the service serves.
var viewTemplate = template.Must(template.New("view").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
<style>html,body,iframe{margin:0;border:0;width:100%;height:100%}</style>
</head>
<body>
<iframe src="{{.EmbedLink}}" sandbox="allow-scripts allow-same-origin" allowfullscreen></iframe>
</body>
</html>
`))

func (a *API) handleDashboardIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	dashboards, err := a.svc.ViewDashboards(r.Context(), actor, "")
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload(dashboards))
}

func (a *API) handleDashboardScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/dashboard/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch parts[0] {
	case "department":
		a.handleDashboardDepartment(w, r, parts[1])
	case "view":
		a.handleDashboardView(w, r, parts[1])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleDashboardDepartment(w http.ResponseWriter, r *http.Request, departmentID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	dashboards, err := a.svc.ViewDashboards(r.Context(), actor, departmentID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload(dashboards))
}

func (a *API) handleDashboardView(w http.ResponseWriter, r *http.Request, dashboardID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	dash, err := a.svc.ViewDashboard(r.Context(), actor, dashboardID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}

	// Strict embed policy: only the BI provider may be framed inside this
	// page, and the page itself may never be framed.
	w.Header().Set("Content-Security-Policy",
		fmt.Sprintf("default-src 'none'; style-src 'unsafe-inline'; frame-src %s; frame-ancestors 'none'", a.embedOrigin))
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = viewTemplate.Execute(w, dash)
}

// --- management surface (/dashboards/...) ---

type dashboardRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	EmbedLink    string `json:"embed_link"`
	DepartmentID string `json:"department_id"`
	Active       bool   `json:"is_active"`
}

type dashboardUpdateRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	EmbedLink    *string `json:"embed_link"`
	DepartmentID *string `json:"department_id"`
	Active       *bool   `json:"is_active"`
}

func (a *API) handleDashboardManagement(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/dashboards/"), "/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] == "manage":
		a.handleDashboardsList(w, r)
	case len(parts) == 1 && parts[0] == "add":
		a.handleDashboardAdd(w, r)
	case len(parts) == 2 && parts[0] == "edit" && parts[1] != "":
		a.handleDashboardEdit(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "delete" && parts[1] != "":
		a.handleDashboardDelete(w, r, parts[1])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleDashboardsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	dashboards, err := a.svc.ManageDashboards(r.Context(), actor)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload(dashboards))
}

func (a *API) handleDashboardAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req dashboardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	dash, err := a.svc.CreateDashboard(r.Context(), actor, directory.NewDashboard{
		Name:         req.Name,
		Description:  req.Description,
		EmbedLink:    req.EmbedLink,
		DepartmentID: req.DepartmentID,
		Active:       req.Active,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "dashboard.create", map[string]any{
		"dashboard_id":  dash.ID,
		"department_id": dash.DepartmentID,
	})
	writeJSON(w, http.StatusCreated, dash)
}

func (a *API) handleDashboardEdit(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !actor.Role.Elevated() {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		inScope, err := a.svc.Resolver().CanAccessDashboard(r.Context(), actor, id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		if !inScope {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		dash, err := a.store.GetDashboard(r.Context(), id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dash)
	case http.MethodPost:
		var req dashboardUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		dash, err := a.svc.UpdateDashboard(r.Context(), actor, id, directory.DashboardUpdate{
			Name:         req.Name,
			Description:  req.Description,
			EmbedLink:    req.EmbedLink,
			DepartmentID: req.DepartmentID,
			Active:       req.Active,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "dashboard.update", map[string]any{
			"dashboard_id": dash.ID,
		})
		writeJSON(w, http.StatusOK, dash)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleDashboardDelete(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := a.svc.DeleteDashboard(r.Context(), actor, id); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "dashboard.delete", map[string]any{
		"dashboard_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

// listPayload keeps empty listings as [] rather than null.
func listPayload[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
