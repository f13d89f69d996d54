package directory

// Membership repair plans. Structural mutations (department created, company
// reassigned, user created or re-roled) must leave invariant intact: every
// elevated user of a company holds every department of that company, and a
// plain user holds only departments of their own company. The store executes
// these plans inside the transaction of the triggering mutation.

// MembershipChange is one association row to add or remove.
type MembershipChange struct {
	UserID       string
	DepartmentID string
}

// CreateGrants returns the grants required after creating a department:
// every elevated user of the owning company receives it.
func CreateGrants(dept Department, companyUsers []User) []MembershipChange {
	var grants []MembershipChange
	for _, u := range companyUsers {
		if u.Role.Elevated() {
			grants = append(grants, MembershipChange{UserID: u.ID, DepartmentID: dept.ID})
		}
	}
	return grants
}

// MovePlan returns the revocations and grants required after moving a
// department to a new company: every user of the old company loses it, every
// elevated user of the new company gains it. Plain users of the new company
// are not auto-granted; they must be granted explicitly.
func MovePlan(dept Department, oldCompanyUsers, newCompanyUsers []User) (revoke, grant []MembershipChange) {
	for _, u := range oldCompanyUsers {
		if containsID(u.DepartmentIDs, dept.ID) {
			revoke = append(revoke, MembershipChange{UserID: u.ID, DepartmentID: dept.ID})
		}
	}
	for _, u := range newCompanyUsers {
		if u.Role.Elevated() && !containsID(u.DepartmentIDs, dept.ID) {
			grant = append(grant, MembershipChange{UserID: u.ID, DepartmentID: dept.ID})
		}
	}
	return revoke, grant
}

// MembershipFor returns the membership set a user must hold given their final
// role and company. Elevated roles receive every department of the company;
// plain users receive the requested subset filtered to their company. A
// demoted admin therefore keeps only what was explicitly requested.
func MembershipFor(role Role, companyID string, companyDepartments []Department, requested []string) []string {
	if role.Elevated() {
		out := make([]string, 0, len(companyDepartments))
		for _, d := range companyDepartments {
			out = append(out, d.ID)
		}
		return out
	}
	allowed := make(map[string]struct{}, len(companyDepartments))
	for _, d := range companyDepartments {
		if d.CompanyID == companyID {
			allowed[d.ID] = struct{}{}
		}
	}
	var out []string
	seen := make(map[string]struct{}, len(requested))
	for _, id := range requested {
		if _, ok := allowed[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
