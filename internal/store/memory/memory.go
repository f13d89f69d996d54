// Package memory provides an in-process Store used by unit tests. It applies
// the same membership-repair plans as the SQL store so both implementations
// share one cascade contract.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"dashgate.org/internal/account"
	"dashgate.org/internal/directory"
	"dashgate.org/internal/ids"
)

type Store struct {
	mu          sync.RWMutex
	companies   map[string]directory.Company
	departments map[string]directory.Department
	dashboards  map[string]directory.Dashboard
	users       map[string]directory.User
	memberships map[string]map[string]struct{}
	passwords   map[string]string
	now         func() time.Time
}

var (
	_ directory.Store         = (*Store)(nil)
	_ account.CredentialStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		companies:   make(map[string]directory.Company),
		departments: make(map[string]directory.Department),
		dashboards:  make(map[string]directory.Dashboard),
		users:       make(map[string]directory.User),
		memberships: make(map[string]map[string]struct{}),
		passwords:   make(map[string]string),
		now:         time.Now,
	}
}

// --- companies ---

func (s *Store) CreateCompany(_ context.Context, c *directory.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	c.ID = ids.New()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.companies[c.ID] = *c
	return nil
}

func (s *Store) ListCompanies(_ context.Context) ([]directory.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]directory.Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetCompany(_ context.Context, id string) (directory.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return directory.Company{}, directory.ErrNotFound
	}
	return c, nil
}

func (s *Store) UpdateCompany(_ context.Context, id string, upd directory.CompanyUpdate) (directory.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return directory.Company{}, directory.ErrNotFound
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Description != nil {
		c.Description = *upd.Description
	}
	if upd.Active != nil {
		c.Active = *upd.Active
	}
	c.UpdatedAt = s.now().UTC()
	s.companies[id] = c
	return c, nil
}

func (s *Store) DeleteCompany(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[id]; !ok {
		return directory.ErrNotFound
	}
	for _, u := range s.users {
		if u.CompanyID == id {
			return directory.ErrConflict
		}
	}
	for deptID, d := range s.departments {
		if d.CompanyID != id {
			continue
		}
		s.removeDepartmentLocked(deptID)
	}
	delete(s.companies, id)
	return nil
}

// --- departments ---

func (s *Store) CreateDepartment(_ context.Context, d *directory.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[d.CompanyID]; !ok {
		return directory.ErrNotFound
	}
	now := s.now().UTC()
	d.ID = ids.New()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.departments[d.ID] = *d
	for _, change := range directory.CreateGrants(*d, s.companyUsersLocked(d.CompanyID)) {
		s.grantLocked(change.UserID, change.DepartmentID)
	}
	return nil
}

func (s *Store) ListDepartments(_ context.Context) ([]directory.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]directory.Department, 0, len(s.departments))
	for _, d := range s.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListDepartmentsByCompany(_ context.Context, companyID string, activeOnly bool) ([]directory.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []directory.Department
	for _, d := range s.departments {
		if d.CompanyID != companyID {
			continue
		}
		if activeOnly && !d.Active {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListDepartmentsByIDs(_ context.Context, idsList []string) ([]directory.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []directory.Department
	for _, id := range idsList {
		if d, ok := s.departments[id]; ok {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetDepartment(_ context.Context, id string) (directory.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.departments[id]
	if !ok {
		return directory.Department{}, directory.ErrNotFound
	}
	return d, nil
}

func (s *Store) UpdateDepartment(_ context.Context, id string, upd directory.DepartmentUpdate) (directory.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.departments[id]
	if !ok {
		return directory.Department{}, directory.ErrNotFound
	}
	oldCompanyID := d.CompanyID
	if upd.Name != nil {
		d.Name = *upd.Name
	}
	if upd.Description != nil {
		d.Description = *upd.Description
	}
	if upd.Active != nil {
		d.Active = *upd.Active
	}
	if upd.CompanyID != nil && *upd.CompanyID != oldCompanyID {
		if _, ok := s.companies[*upd.CompanyID]; !ok {
			return directory.Department{}, directory.ErrNotFound
		}
		d.CompanyID = *upd.CompanyID
		revoke, grant := directory.MovePlan(d,
			s.companyUsersLocked(oldCompanyID),
			s.companyUsersLocked(d.CompanyID))
		for _, change := range revoke {
			s.revokeLocked(change.UserID, change.DepartmentID)
		}
		for _, change := range grant {
			s.grantLocked(change.UserID, change.DepartmentID)
		}
	}
	d.UpdatedAt = s.now().UTC()
	s.departments[id] = d
	return d, nil
}

func (s *Store) DeleteDepartment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.departments[id]; !ok {
		return directory.ErrNotFound
	}
	s.removeDepartmentLocked(id)
	return nil
}

// --- dashboards ---

func (s *Store) CreateDashboard(_ context.Context, d *directory.Dashboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.departments[d.DepartmentID]; !ok {
		return directory.ErrNotFound
	}
	now := s.now().UTC()
	d.ID = ids.New()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.dashboards[d.ID] = *d
	return nil
}

func (s *Store) ListDashboards(_ context.Context) ([]directory.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]directory.Dashboard, 0, len(s.dashboards))
	for _, d := range s.dashboards {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListDashboardsByDepartments(_ context.Context, departmentIDs []string, activeOnly bool) ([]directory.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := make(map[string]struct{}, len(departmentIDs))
	for _, id := range departmentIDs {
		allowed[id] = struct{}{}
	}
	var out []directory.Dashboard
	for _, d := range s.dashboards {
		if _, ok := allowed[d.DepartmentID]; !ok {
			continue
		}
		if activeOnly && !d.Active {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetDashboard(_ context.Context, id string) (directory.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dashboards[id]
	if !ok {
		return directory.Dashboard{}, directory.ErrNotFound
	}
	return d, nil
}

func (s *Store) UpdateDashboard(_ context.Context, id string, upd directory.DashboardUpdate) (directory.Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dashboards[id]
	if !ok {
		return directory.Dashboard{}, directory.ErrNotFound
	}
	if upd.DepartmentID != nil {
		if _, ok := s.departments[*upd.DepartmentID]; !ok {
			return directory.Dashboard{}, directory.ErrNotFound
		}
		d.DepartmentID = *upd.DepartmentID
	}
	if upd.Name != nil {
		d.Name = *upd.Name
	}
	if upd.Description != nil {
		d.Description = *upd.Description
	}
	if upd.EmbedLink != nil {
		d.EmbedLink = *upd.EmbedLink
	}
	if upd.Active != nil {
		d.Active = *upd.Active
	}
	d.UpdatedAt = s.now().UTC()
	s.dashboards[id] = d
	return d, nil
}

func (s *Store) DeleteDashboard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dashboards[id]; !ok {
		return directory.ErrNotFound
	}
	delete(s.dashboards, id)
	return nil
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, u *directory.User, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return directory.ErrConflict
		}
	}
	if u.CompanyID != "" {
		if _, ok := s.companies[u.CompanyID]; !ok {
			return directory.ErrNotFound
		}
	}
	now := s.now().UTC()
	u.ID = ids.New()
	u.CreatedAt = now
	u.UpdatedAt = now
	membership := directory.MembershipFor(u.Role, u.CompanyID, s.companyDepartmentsLocked(u.CompanyID), u.DepartmentIDs)
	u.DepartmentIDs = membership
	s.users[u.ID] = *u
	s.memberships[u.ID] = make(map[string]struct{}, len(membership))
	for _, deptID := range membership {
		s.memberships[u.ID][deptID] = struct{}{}
	}
	s.passwords[u.ID] = passwordHash
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]directory.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]directory.User, 0, len(s.users))
	for id := range s.users {
		out = append(out, s.userLocked(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListUsersByCompany(_ context.Context, companyID string) ([]directory.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []directory.User
	for id, u := range s.users {
		if u.CompanyID == companyID {
			out = append(out, s.userLocked(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetUser(_ context.Context, id string) (directory.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.users[id]; !ok {
		return directory.User{}, directory.ErrNotFound
	}
	return s.userLocked(id), nil
}

func (s *Store) UpdateUser(_ context.Context, id string, upd directory.UserUpdate) (directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return directory.User{}, directory.ErrNotFound
	}
	if upd.Email != nil {
		for otherID, other := range s.users {
			if otherID != id && other.Email == *upd.Email {
				return directory.User{}, directory.ErrConflict
			}
		}
		u.Email = *upd.Email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	rebuild := upd.Role != nil || upd.CompanyID != nil || upd.DepartmentIDs != nil
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.CompanyID != nil {
		if *upd.CompanyID != "" {
			if _, ok := s.companies[*upd.CompanyID]; !ok {
				return directory.User{}, directory.ErrNotFound
			}
		}
		u.CompanyID = *upd.CompanyID
	}
	if upd.PasswordHash != nil {
		s.passwords[id] = *upd.PasswordHash
	}
	if rebuild {
		membership := directory.MembershipFor(u.Role, u.CompanyID, s.companyDepartmentsLocked(u.CompanyID), upd.DepartmentIDs)
		s.memberships[id] = make(map[string]struct{}, len(membership))
		for _, deptID := range membership {
			s.memberships[id][deptID] = struct{}{}
		}
	}
	u.UpdatedAt = s.now().UTC()
	s.users[id] = u
	return s.userLocked(id), nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return directory.ErrNotFound
	}
	delete(s.users, id)
	delete(s.memberships, id)
	delete(s.passwords, id)
	return nil
}

func (s *Store) SetPassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return directory.ErrNotFound
	}
	s.passwords[userID] = passwordHash
	u.Locked = false
	u.FailedLoginAttempts = 0
	u.UpdatedAt = s.now().UTC()
	s.users[userID] = u
	return nil
}

// --- credentials ---

func (s *Store) CredentialByEmail(_ context.Context, email string) (account.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for id, u := range s.users {
		if u.Email == email {
			return account.Credential{
				UserID:         id,
				Email:          u.Email,
				PasswordHash:   s.passwords[id],
				FailedAttempts: u.FailedLoginAttempts,
				Locked:         u.Locked,
			}, nil
		}
	}
	return account.Credential{}, directory.ErrNotFound
}

func (s *Store) RecordLoginSuccess(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return directory.ErrNotFound
	}
	u.FailedLoginAttempts = 0
	u.LastLogin = &at
	s.users[userID] = u
	return nil
}

func (s *Store) RecordLoginFailure(_ context.Context, userID string, threshold int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, directory.ErrNotFound
	}
	u.FailedLoginAttempts++
	lockedNow := false
	if !u.Locked && u.FailedLoginAttempts >= threshold {
		u.Locked = true
		lockedNow = true
	}
	s.users[userID] = u
	return lockedNow, nil
}

// --- helpers (callers hold the lock) ---

func (s *Store) userLocked(id string) directory.User {
	u := s.users[id]
	members := s.memberships[id]
	deptIDs := make([]string, 0, len(members))
	for deptID := range members {
		deptIDs = append(deptIDs, deptID)
	}
	sort.Strings(deptIDs)
	u.DepartmentIDs = deptIDs
	return u
}

func (s *Store) companyUsersLocked(companyID string) []directory.User {
	var out []directory.User
	for id, u := range s.users {
		if u.CompanyID == companyID {
			out = append(out, s.userLocked(id))
		}
	}
	return out
}

func (s *Store) companyDepartmentsLocked(companyID string) []directory.Department {
	var out []directory.Department
	for _, d := range s.departments {
		if d.CompanyID == companyID {
			out = append(out, d)
		}
	}
	return out
}

func (s *Store) grantLocked(userID, departmentID string) {
	if s.memberships[userID] == nil {
		s.memberships[userID] = make(map[string]struct{})
	}
	s.memberships[userID][departmentID] = struct{}{}
}

func (s *Store) revokeLocked(userID, departmentID string) {
	delete(s.memberships[userID], departmentID)
}

func (s *Store) removeDepartmentLocked(departmentID string) {
	for dashID, dash := range s.dashboards {
		if dash.DepartmentID == departmentID {
			delete(s.dashboards, dashID)
		}
	}
	for userID := range s.memberships {
		delete(s.memberships[userID], departmentID)
	}
	delete(s.departments, departmentID)
}
