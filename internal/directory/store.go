package directory

import "context"

// CompanyUpdate carries optional field changes; nil means keep.
type CompanyUpdate struct {
	Name        *string
	Description *string
	Active      *bool
}

// DepartmentUpdate carries optional field changes. A non-nil CompanyID that
// differs from the current owner is a reassignment and obliges the store to
// repair memberships inside the same transaction (see cascade.go).
type DepartmentUpdate struct {
	Name        *string
	Description *string
	Active      *bool
	CompanyID   *string
}

// DashboardUpdate carries optional field changes.
type DashboardUpdate struct {
	Name         *string
	Description  *string
	EmbedLink    *string
	Active       *bool
	DepartmentID *string
}

// UserUpdate carries optional field changes. When any of Role, CompanyID or
// DepartmentIDs is set, the store rebuilds the membership rows from the final
// role inside the same transaction: elevated roles receive every department
// of the company; plain users receive exactly DepartmentIDs (nil rebuilds to
// empty). When none of the three is set, memberships are left untouched.
type UserUpdate struct {
	Name          *string
	Email         *string
	Role          *Role
	CompanyID     *string
	DepartmentIDs []string
	PasswordHash  *string
}

// ReadStore is the read-only view the authorization resolver needs.
type ReadStore interface {
	ListCompanies(ctx context.Context) ([]Company, error)
	GetCompany(ctx context.Context, id string) (Company, error)

	ListDepartments(ctx context.Context) ([]Department, error)
	ListDepartmentsByCompany(ctx context.Context, companyID string, activeOnly bool) ([]Department, error)
	ListDepartmentsByIDs(ctx context.Context, ids []string) ([]Department, error)
	GetDepartment(ctx context.Context, id string) (Department, error)

	ListDashboards(ctx context.Context) ([]Dashboard, error)
	ListDashboardsByDepartments(ctx context.Context, departmentIDs []string, activeOnly bool) ([]Dashboard, error)
	GetDashboard(ctx context.Context, id string) (Dashboard, error)

	ListUsers(ctx context.Context) ([]User, error)
	ListUsersByCompany(ctx context.Context, companyID string) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
}

// Store is the persistence contract for the entity graph. Every mutating
// operation commits together with its cascading repairs or not at all.
type Store interface {
	ReadStore

	CreateCompany(ctx context.Context, c *Company) error
	UpdateCompany(ctx context.Context, id string, upd CompanyUpdate) (Company, error)
	// DeleteCompany cascades to departments and dashboards but refuses with
	// ErrConflict while any user still references the company.
	DeleteCompany(ctx context.Context, id string) error

	// CreateDepartment inserts the department and grants membership to every
	// elevated user of its company in one transaction.
	CreateDepartment(ctx context.Context, d *Department) error
	UpdateDepartment(ctx context.Context, id string, upd DepartmentUpdate) (Department, error)
	DeleteDepartment(ctx context.Context, id string) error

	CreateDashboard(ctx context.Context, d *Dashboard) error
	UpdateDashboard(ctx context.Context, id string, upd DashboardUpdate) (Dashboard, error)
	DeleteDashboard(ctx context.Context, id string) error

	// CreateUser inserts the user, credential hash and membership rows in one
	// transaction. Elevated roles are granted every department of the
	// company regardless of u.DepartmentIDs; duplicate email is ErrConflict.
	CreateUser(ctx context.Context, u *User, passwordHash string) error
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	DeleteUser(ctx context.Context, id string) error
	// SetPassword replaces the credential hash, clears the lock and zeroes
	// the failed-attempt counter.
	SetPassword(ctx context.Context, userID, passwordHash string) error
}
