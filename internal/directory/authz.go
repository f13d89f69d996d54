package directory

import (
	"context"
	"errors"
)

// Resolver answers scope questions for an explicit actor against the current
// entity graph. Decisions are uniform: a missing department or dashboard and
// an out-of-scope one both come back false, never as an error. Whether a
// listing filters inactive records is the caller's choice via displayOnly;
// the resolver never decides that silently.
type Resolver struct {
	store ReadStore
}

// NewResolver constructs a Resolver over a read-only store view.
func NewResolver(store ReadStore) *Resolver {
	return &Resolver{store: store}
}

// CanAccessCompany reports whether the actor may operate on the company.
// Plain users never access companies directly.
func (r *Resolver) CanAccessCompany(actor Actor, companyID string) bool {
	if actor.IsMaster() {
		return true
	}
	return actor.IsAdmin() && actor.CompanyID != "" && actor.CompanyID == companyID
}

// CanAccessDepartment reports whether the actor may operate on the
// department. False for a missing id; the returned error is reserved for
// infrastructure failures.
func (r *Resolver) CanAccessDepartment(ctx context.Context, actor Actor, departmentID string) (bool, error) {
	dept, err := r.store.GetDepartment(ctx, departmentID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if actor.IsMaster() {
		return true, nil
	}
	if actor.IsAdmin() && actor.CompanyID == dept.CompanyID {
		return true, nil
	}
	return actor.MemberOf(departmentID), nil
}

// CanAccessDashboard resolves the dashboard's department and applies the
// department rule. False for a missing id.
func (r *Resolver) CanAccessDashboard(ctx context.Context, actor Actor, dashboardID string) (bool, error) {
	dash, err := r.store.GetDashboard(ctx, dashboardID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.CanAccessDepartment(ctx, actor, dash.DepartmentID)
}

// VisibleCompanies lists companies the actor may browse: all for masters,
// the actor's own for admins, none for plain users.
func (r *Resolver) VisibleCompanies(ctx context.Context, actor Actor) ([]Company, error) {
	switch {
	case actor.IsMaster():
		return r.store.ListCompanies(ctx)
	case actor.IsAdmin():
		if actor.CompanyID == "" {
			return nil, nil
		}
		company, err := r.store.GetCompany(ctx, actor.CompanyID)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []Company{company}, nil
	default:
		return nil, nil
	}
}

// VisibleDepartments lists departments in the actor's scope: all for
// masters, the company's for admins, the explicit membership set for users.
func (r *Resolver) VisibleDepartments(ctx context.Context, actor Actor) ([]Department, error) {
	switch {
	case actor.IsMaster():
		return r.store.ListDepartments(ctx)
	case actor.IsAdmin():
		if actor.CompanyID == "" {
			return nil, nil
		}
		return r.store.ListDepartmentsByCompany(ctx, actor.CompanyID, false)
	default:
		return r.store.ListDepartmentsByIDs(ctx, membershipIDs(actor))
	}
}

// VisibleDashboards lists dashboards in the actor's scope. With displayOnly
// set, inactive dashboards and dashboards of inactive departments are
// excluded; management listings pass false and see everything in scope.
func (r *Resolver) VisibleDashboards(ctx context.Context, actor Actor, displayOnly bool) ([]Dashboard, error) {
	if actor.IsMaster() && !displayOnly {
		return r.store.ListDashboards(ctx)
	}

	departments, err := r.VisibleDepartments(ctx, actor)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(departments))
	for _, d := range departments {
		if displayOnly && !d.Active {
			continue
		}
		ids = append(ids, d.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return r.store.ListDashboardsByDepartments(ctx, ids, displayOnly)
}

func membershipIDs(actor Actor) []string {
	ids := make([]string, 0, len(actor.Memberships))
	for id := range actor.Memberships {
		ids = append(ids, id)
	}
	return ids
}
