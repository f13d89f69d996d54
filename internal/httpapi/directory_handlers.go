package httpapi

import (
	"net/http"
	"strings"

	"dashgate.org/internal/audit"
	"dashgate.org/internal/directory"
)

type companyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"is_active"`
}

type companyUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Active      *bool   `json:"is_active"`
}

type departmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CompanyID   string `json:"company_id"`
	Active      bool   `json:"is_active"`
}

type departmentUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	CompanyID   *string `json:"company_id"`
	Active      *bool   `json:"is_active"`
}

// --- companies (master only, enforced by the service) ---

func (a *API) handleCompanies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	companies, err := a.svc.ListCompanies(r.Context(), actor)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload(companies))
}

func (a *API) handleCompanyResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/companies/"), "/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] == "add":
		a.handleCompanyAdd(w, r)
	case len(parts) == 2 && parts[0] == "edit" && parts[1] != "":
		a.handleCompanyEdit(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "delete" && parts[1] != "":
		a.handleCompanyDelete(w, r, parts[1])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleCompanyAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req companyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	company, err := a.svc.CreateCompany(r.Context(), actor, req.Name, req.Description, req.Active)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "company.create", map[string]any{
		"company_id": company.ID,
		"name":       company.Name,
	})
	writeJSON(w, http.StatusCreated, company)
}

func (a *API) handleCompanyEdit(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		company, err := a.svc.GetCompany(r.Context(), actor, id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, company)
	case http.MethodPost:
		var req companyUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		company, err := a.svc.UpdateCompany(r.Context(), actor, id, directory.CompanyUpdate{
			Name:        req.Name,
			Description: req.Description,
			Active:      req.Active,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "company.update", map[string]any{
			"company_id": company.ID,
		})
		writeJSON(w, http.StatusOK, company)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCompanyDelete(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := a.svc.DeleteCompany(r.Context(), actor, id); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "company.delete", map[string]any{
		"company_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

// --- departments (admin/master, scoped) ---

func (a *API) handleDepartments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	departments, err := a.svc.ListDepartments(r.Context(), actor)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload(departments))
}

func (a *API) handleDepartmentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/departments/"), "/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] == "add":
		a.handleDepartmentAdd(w, r)
	case len(parts) == 2 && parts[0] == "edit" && parts[1] != "":
		a.handleDepartmentEdit(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "delete" && parts[1] != "":
		a.handleDepartmentDelete(w, r, parts[1])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleDepartmentAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req departmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	dept, err := a.svc.CreateDepartment(r.Context(), actor, directory.NewDepartment{
		Name:        req.Name,
		Description: req.Description,
		CompanyID:   req.CompanyID,
		Active:      req.Active,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "department.create", map[string]any{
		"department_id": dept.ID,
		"company_id":    dept.CompanyID,
	})
	writeJSON(w, http.StatusCreated, dept)
}

func (a *API) handleDepartmentEdit(w http.ResponseWriter, r *http.Request, id string) {
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
		inScope, err := a.svc.Resolver().CanAccessDepartment(r.Context(), actor, id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		if !inScope {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		dept, err := a.store.GetDepartment(r.Context(), id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dept)
	case http.MethodPost:
		var req departmentUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		dept, err := a.svc.UpdateDepartment(r.Context(), actor, id, directory.DepartmentUpdate{
			Name:        req.Name,
			Description: req.Description,
			CompanyID:   req.CompanyID,
			Active:      req.Active,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "department.update", map[string]any{
			"department_id": dept.ID,
			"company_id":    dept.CompanyID,
		})
		writeJSON(w, http.StatusOK, dept)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleDepartmentDelete(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := a.svc.DeleteDepartment(r.Context(), actor, id); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "department.delete", map[string]any{
		"department_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

// --- lookup API ---

type departmentOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// handleDepartmentLookup returns active departments of an accessible company.
// An inaccessible or unknown company yields an empty array, not an error.
func (a *API) handleDepartmentLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	companyID := strings.TrimSpace(r.URL.Query().Get("company_id"))
	departments, err := a.svc.ActiveDepartments(r.Context(), actor, companyID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	options := make([]departmentOption, 0, len(departments))
	for _, d := range departments {
		options = append(options, departmentOption{ID: d.ID, Name: d.Name})
	}
	writeJSON(w, http.StatusOK, options)
}
