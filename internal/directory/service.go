package directory

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// NewDepartment is the input for department creation.
type NewDepartment struct {
	Name        string
	Description string
	CompanyID   string
	Active      bool
}

// NewDashboard is the input for dashboard creation.
type NewDashboard struct {
	Name         string
	Description  string
	EmbedLink    string
	DepartmentID string
	Active       bool
}

// NewUser is the input for user creation. The credential hash is produced by
// the account package; raw passwords never reach this layer.
type NewUser struct {
	Name          string
	Email         string
	Role          Role
	CompanyID     string
	DepartmentIDs []string
}

// Service enforces the authorization model in front of the store. Every
// mutation authorizes against the acting identity, validates input, then
// delegates; the store commits the mutation together with its cascades.
type Service struct {
	store Store
	authz *Resolver
}

// NewService constructs a Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	return &Service{store: store, authz: NewResolver(store)}, nil
}

// Resolver exposes the underlying authorization resolver for read paths.
func (s *Service) Resolver() *Resolver { return s.authz }

// --- Companies (master only) ---

func (s *Service) ListCompanies(ctx context.Context, actor Actor) ([]Company, error) {
	if !actor.IsMaster() {
		return nil, ErrForbidden
	}
	return s.store.ListCompanies(ctx)
}

func (s *Service) GetCompany(ctx context.Context, actor Actor, id string) (Company, error) {
	if !actor.IsMaster() {
		return Company{}, ErrForbidden
	}
	return s.store.GetCompany(ctx, id)
}

func (s *Service) CreateCompany(ctx context.Context, actor Actor, name, description string, active bool) (Company, error) {
	if !actor.IsMaster() {
		return Company{}, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Company{}, fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}
	company := Company{Name: name, Description: strings.TrimSpace(description), Active: active}
	if err := s.store.CreateCompany(ctx, &company); err != nil {
		return Company{}, err
	}
	return company, nil
}

func (s *Service) UpdateCompany(ctx context.Context, actor Actor, id string, upd CompanyUpdate) (Company, error) {
	if !actor.IsMaster() {
		return Company{}, ErrForbidden
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return Company{}, fmt.Errorf("%w: company name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	return s.store.UpdateCompany(ctx, id, upd)
}

// DeleteCompany cascades to departments and dashboards. It refuses while
// users still reference the company; reassign or delete them first.
func (s *Service) DeleteCompany(ctx context.Context, actor Actor, id string) error {
	if !actor.IsMaster() {
		return ErrForbidden
	}
	return s.store.DeleteCompany(ctx, id)
}

// --- Departments (admin/master, scoped) ---

func (s *Service) ListDepartments(ctx context.Context, actor Actor) ([]Department, error) {
	if !actor.Role.Elevated() {
		return nil, ErrForbidden
	}
	return s.authz.VisibleDepartments(ctx, actor)
}

func (s *Service) CreateDepartment(ctx context.Context, actor Actor, input NewDepartment) (Department, error) {
	if !actor.Role.Elevated() {
		return Department{}, ErrForbidden
	}
	if !s.authz.CanAccessCompany(actor, input.CompanyID) {
		return Department{}, ErrForbidden
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Department{}, fmt.Errorf("%w: department name is required", ErrInvalidInput)
	}
	dept := Department{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		CompanyID:   input.CompanyID,
		Active:      input.Active,
	}
	if err := s.store.CreateDepartment(ctx, &dept); err != nil {
		return Department{}, err
	}
	return dept, nil
}

func (s *Service) UpdateDepartment(ctx context.Context, actor Actor, id string, upd DepartmentUpdate) (Department, error) {
	if !actor.Role.Elevated() {
		return Department{}, ErrForbidden
	}
	ok, err := s.authz.CanAccessDepartment(ctx, actor, id)
	if err != nil {
		return Department{}, err
	}
	if !ok {
		return Department{}, ErrForbidden
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return Department{}, fmt.Errorf("%w: department name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	// Reassignment needs access to both the current and the target company.
	if upd.CompanyID != nil {
		current, err := s.store.GetDepartment(ctx, id)
		if err != nil {
			return Department{}, err
		}
		if *upd.CompanyID != current.CompanyID && !s.authz.CanAccessCompany(actor, *upd.CompanyID) {
			return Department{}, ErrForbidden
		}
	}
	return s.store.UpdateDepartment(ctx, id, upd)
}

func (s *Service) DeleteDepartment(ctx context.Context, actor Actor, id string) error {
	if !actor.Role.Elevated() {
		return ErrForbidden
	}
	ok, err := s.authz.CanAccessDepartment(ctx, actor, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return s.store.DeleteDepartment(ctx, id)
}

// --- Dashboards ---

// ManageDashboards is the management listing: everything in scope including
// inactive records.
func (s *Service) ManageDashboards(ctx context.Context, actor Actor) ([]Dashboard, error) {
	if !actor.Role.Elevated() {
		return nil, ErrForbidden
	}
	return s.authz.VisibleDashboards(ctx, actor, false)
}

// ViewDashboards is the display listing: active dashboards of active
// departments only, optionally scoped to one department.
func (s *Service) ViewDashboards(ctx context.Context, actor Actor, departmentID string) ([]Dashboard, error) {
	if departmentID == "" {
		return s.authz.VisibleDashboards(ctx, actor, true)
	}
	ok, err := s.authz.CanAccessDepartment(ctx, actor, departmentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	dept, err := s.store.GetDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	if !dept.Active {
		return nil, nil
	}
	return s.store.ListDashboardsByDepartments(ctx, []string{departmentID}, true)
}

// ViewDashboard authorizes and loads one dashboard for embedding. Missing
// and out-of-scope ids are both ErrForbidden.
func (s *Service) ViewDashboard(ctx context.Context, actor Actor, id string) (Dashboard, error) {
	ok, err := s.authz.CanAccessDashboard(ctx, actor, id)
	if err != nil {
		return Dashboard{}, err
	}
	if !ok {
		return Dashboard{}, ErrForbidden
	}
	return s.store.GetDashboard(ctx, id)
}

func (s *Service) CreateDashboard(ctx context.Context, actor Actor, input NewDashboard) (Dashboard, error) {
	if !actor.Role.Elevated() {
		return Dashboard{}, ErrForbidden
	}
	ok, err := s.authz.CanAccessDepartment(ctx, actor, input.DepartmentID)
	if err != nil {
		return Dashboard{}, err
	}
	if !ok {
		return Dashboard{}, ErrForbidden
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Dashboard{}, fmt.Errorf("%w: dashboard name is required", ErrInvalidInput)
	}
	link := strings.TrimSpace(input.EmbedLink)
	if link == "" {
		return Dashboard{}, fmt.Errorf("%w: embed link is required", ErrInvalidInput)
	}
	description := strings.TrimSpace(input.Description)
	if err := validateDashboardDescription(description); err != nil {
		return Dashboard{}, err
	}
	dash := Dashboard{
		Name:         name,
		Description:  description,
		EmbedLink:    link,
		DepartmentID: input.DepartmentID,
		Active:       input.Active,
	}
	if err := s.store.CreateDashboard(ctx, &dash); err != nil {
		return Dashboard{}, err
	}
	return dash, nil
}

func (s *Service) UpdateDashboard(ctx context.Context, actor Actor, id string, upd DashboardUpdate) (Dashboard, error) {
	if !actor.Role.Elevated() {
		return Dashboard{}, ErrForbidden
	}
	current, err := s.store.GetDashboard(ctx, id)
	if err != nil {
		return Dashboard{}, err
	}
	ok, err := s.authz.CanAccessDepartment(ctx, actor, current.DepartmentID)
	if err != nil {
		return Dashboard{}, err
	}
	if !ok {
		return Dashboard{}, ErrForbidden
	}
	if upd.DepartmentID != nil && *upd.DepartmentID != current.DepartmentID {
		ok, err := s.authz.CanAccessDepartment(ctx, actor, *upd.DepartmentID)
		if err != nil {
			return Dashboard{}, err
		}
		if !ok {
			return Dashboard{}, ErrForbidden
		}
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return Dashboard{}, fmt.Errorf("%w: dashboard name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	if upd.Description != nil {
		trimmed := strings.TrimSpace(*upd.Description)
		if err := validateDashboardDescription(trimmed); err != nil {
			return Dashboard{}, err
		}
		upd.Description = &trimmed
	}
	return s.store.UpdateDashboard(ctx, id, upd)
}

func (s *Service) DeleteDashboard(ctx context.Context, actor Actor, id string) error {
	if !actor.Role.Elevated() {
		return ErrForbidden
	}
	current, err := s.store.GetDashboard(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.authz.CanAccessDepartment(ctx, actor, current.DepartmentID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return s.store.DeleteDashboard(ctx, id)
}

// --- Users (admin/master, scoped; master-only for master targets) ---

func (s *Service) ListUsers(ctx context.Context, actor Actor) ([]User, error) {
	if !actor.Role.Elevated() {
		return nil, ErrForbidden
	}
	if actor.IsMaster() {
		return s.store.ListUsers(ctx)
	}
	if actor.CompanyID == "" {
		return nil, nil
	}
	return s.store.ListUsersByCompany(ctx, actor.CompanyID)
}

func (s *Service) GetUser(ctx context.Context, actor Actor, id string) (User, error) {
	if !actor.Role.Elevated() {
		return User{}, ErrForbidden
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !canManageUser(actor, user) {
		return User{}, ErrForbidden
	}
	return user, nil
}

func (s *Service) CreateUser(ctx context.Context, actor Actor, input NewUser, passwordHash string) (User, error) {
	if !actor.Role.Elevated() {
		return User{}, ErrForbidden
	}
	if !input.Role.Valid() {
		return User{}, fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, input.Role)
	}
	// Only masters mint masters.
	if input.Role == RoleMaster && !actor.IsMaster() {
		return User{}, ErrForbidden
	}
	if input.Role != RoleMaster && input.CompanyID == "" {
		return User{}, fmt.Errorf("%w: company is required for role %s", ErrInvalidInput, input.Role)
	}
	if input.CompanyID != "" && !s.authz.CanAccessCompany(actor, input.CompanyID) {
		return User{}, ErrForbidden
	}
	if input.Role == RoleUser {
		for _, deptID := range input.DepartmentIDs {
			ok, err := s.authz.CanAccessDepartment(ctx, actor, deptID)
			if err != nil {
				return User{}, err
			}
			if !ok {
				return User{}, ErrForbidden
			}
		}
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return User{}, fmt.Errorf("%w: user name is required", ErrInvalidInput)
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return User{}, err
	}
	if passwordHash == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	user := User{
		Name:          name,
		Email:         email,
		Role:          input.Role,
		CompanyID:     input.CompanyID,
		DepartmentIDs: input.DepartmentIDs,
	}
	if err := s.store.CreateUser(ctx, &user, passwordHash); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *Service) UpdateUser(ctx context.Context, actor Actor, id string, upd UserUpdate) (User, error) {
	if !actor.Role.Elevated() {
		return User{}, ErrForbidden
	}
	target, err := s.store.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !canManageUser(actor, target) {
		return User{}, ErrForbidden
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return User{}, fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, *upd.Role)
		}
		if *upd.Role == RoleMaster && !actor.IsMaster() {
			return User{}, ErrForbidden
		}
	}
	if upd.CompanyID != nil && *upd.CompanyID != "" && !s.authz.CanAccessCompany(actor, *upd.CompanyID) {
		return User{}, ErrForbidden
	}
	// Validate the pair the update leaves behind: only masters may be
	// companyless, however the role and company arrived there.
	finalRole := target.Role
	if upd.Role != nil {
		finalRole = *upd.Role
	}
	finalCompany := target.CompanyID
	if upd.CompanyID != nil {
		finalCompany = *upd.CompanyID
	}
	if finalRole != RoleMaster && finalCompany == "" {
		return User{}, fmt.Errorf("%w: company is required for role %s", ErrInvalidInput, finalRole)
	}
	for _, deptID := range upd.DepartmentIDs {
		ok, err := s.authz.CanAccessDepartment(ctx, actor, deptID)
		if err != nil {
			return User{}, err
		}
		if !ok {
			return User{}, ErrForbidden
		}
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return User{}, fmt.Errorf("%w: user name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	if upd.Email != nil {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			return User{}, err
		}
		upd.Email = &email
	}
	return s.store.UpdateUser(ctx, id, upd)
}

func (s *Service) DeleteUser(ctx context.Context, actor Actor, id string) error {
	if !actor.Role.Elevated() {
		return ErrForbidden
	}
	if id == actor.ID {
		return fmt.Errorf("%w: cannot delete own account", ErrInvalidInput)
	}
	target, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if !canManageUser(actor, target) {
		return ErrForbidden
	}
	return s.store.DeleteUser(ctx, id)
}

// ResetPassword installs a new credential hash, unlocks the account and
// zeroes the failed-attempt counter.
func (s *Service) ResetPassword(ctx context.Context, actor Actor, id, passwordHash string) error {
	if !actor.Role.Elevated() {
		return ErrForbidden
	}
	if passwordHash == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	target, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if !canManageUser(actor, target) {
		return ErrForbidden
	}
	return s.store.SetPassword(ctx, id, passwordHash)
}

// ActiveDepartments backs the department lookup API: active departments of
// an accessible company, or nil when the company is out of scope. Silence,
// not an error, on purpose.
func (s *Service) ActiveDepartments(ctx context.Context, actor Actor, companyID string) ([]Department, error) {
	if companyID == "" || !s.authz.CanAccessCompany(actor, companyID) {
		return nil, nil
	}
	return s.store.ListDepartmentsByCompany(ctx, companyID, true)
}

func canManageUser(actor Actor, target User) bool {
	if actor.IsMaster() {
		return true
	}
	return actor.IsAdmin() && target.CompanyID == actor.CompanyID && target.Role != RoleMaster
}

func validateDashboardDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDashboardDescription {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, MaxDashboardDescription)
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return email, nil
}
