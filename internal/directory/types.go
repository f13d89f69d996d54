package directory

import "time"

// Role is the fixed three-tier hierarchy. Roles are not user-definable.
type Role string

const (
	RoleMaster Role = "master"
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleMaster || r == RoleAdmin || r == RoleUser
}

// Elevated reports whether r receives automatic membership of every
// department in its company.
func (r Role) Elevated() bool {
	return r == RoleMaster || r == RoleAdmin
}

// Company is the top-level tenant boundary.
type Company struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Department belongs to exactly one company and groups dashboards.
type Department struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Dashboard is an embedded BI report belonging to exactly one department.
// Description is limited to MaxDashboardDescription runes at write time.
type Dashboard struct {
	ID           string    `json:"id"`
	DepartmentID string    `json:"department_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	EmbedLink    string    `json:"embed_link"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MaxDashboardDescription caps Dashboard.Description length.
const MaxDashboardDescription = 100

// User is an account scoped by role: masters carry no company, admins and
// plain users belong to exactly one. DepartmentIDs holds the materialized
// membership rows; for admins the cascade engine keeps it equal to the full
// department set of the company.
type User struct {
	ID                  string     `json:"id"`
	CompanyID           string     `json:"company_id,omitempty"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Role                Role       `json:"role"`
	DepartmentIDs       []string   `json:"department_ids,omitempty"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	Locked              bool       `json:"is_locked"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Actor is the authenticated identity threaded explicitly through every
// authorization decision. There is no implicit current user.
type Actor struct {
	ID          string
	Role        Role
	CompanyID   string
	Memberships map[string]struct{}
}

// ActorForUser builds an Actor snapshot from a loaded user record.
func ActorForUser(u User) Actor {
	members := make(map[string]struct{}, len(u.DepartmentIDs))
	for _, id := range u.DepartmentIDs {
		members[id] = struct{}{}
	}
	return Actor{ID: u.ID, Role: u.Role, CompanyID: u.CompanyID, Memberships: members}
}

// IsMaster reports unrestricted visibility.
func (a Actor) IsMaster() bool { return a.Role == RoleMaster }

// IsAdmin reports company-scoped administrative rights.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// MemberOf reports an explicit department membership grant.
func (a Actor) MemberOf(departmentID string) bool {
	_, ok := a.Memberships[departmentID]
	return ok
}
