package directory

import (
	"testing"
)

func TestCreateGrantsOnlyElevated(t *testing.T) {
	dept := Department{ID: "d1", CompanyID: "c1"}
	users := []User{
		{ID: "u-master", Role: RoleMaster, CompanyID: "c1"},
		{ID: "u-admin", Role: RoleAdmin, CompanyID: "c1"},
		{ID: "u-plain", Role: RoleUser, CompanyID: "c1"},
	}
	grants := CreateGrants(dept, users)
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(grants))
	}
	for _, g := range grants {
		if g.DepartmentID != "d1" {
			t.Fatalf("unexpected department %s", g.DepartmentID)
		}
		if g.UserID == "u-plain" {
			t.Fatal("plain user must not be auto-granted")
		}
	}
}

func TestMovePlanRevokesOldGrantsNewElevated(t *testing.T) {
	dept := Department{ID: "d1", CompanyID: "b"}
	oldUsers := []User{
		{ID: "a-admin", Role: RoleAdmin, CompanyID: "a", DepartmentIDs: []string{"d1"}},
		{ID: "a-user", Role: RoleUser, CompanyID: "a", DepartmentIDs: []string{"d1"}},
		{ID: "a-outsider", Role: RoleUser, CompanyID: "a"},
	}
	newUsers := []User{
		{ID: "b-admin", Role: RoleAdmin, CompanyID: "b"},
		{ID: "b-user", Role: RoleUser, CompanyID: "b"},
	}

	revoke, grant := MovePlan(dept, oldUsers, newUsers)

	if len(revoke) != 2 {
		t.Fatalf("expected 2 revocations, got %d", len(revoke))
	}
	for _, r := range revoke {
		if r.UserID == "a-outsider" {
			t.Fatal("user without the grant must not be revoked")
		}
	}
	if len(grant) != 1 || grant[0].UserID != "b-admin" {
		t.Fatalf("expected grant only to b-admin, got %+v", grant)
	}
}

func TestMembershipForElevatedGetsAllDepartments(t *testing.T) {
	depts := []Department{
		{ID: "d1", CompanyID: "c1"},
		{ID: "d2", CompanyID: "c1"},
	}
	got := MembershipFor(RoleAdmin, "c1", depts, []string{"d1"})
	if len(got) != 2 {
		t.Fatalf("admin must hold every department, got %v", got)
	}
}

func TestMembershipForPlainFiltersAndDedupes(t *testing.T) {
	depts := []Department{
		{ID: "d1", CompanyID: "c1"},
		{ID: "d2", CompanyID: "c1"},
	}
	got := MembershipFor(RoleUser, "c1", depts, []string{"d1", "d1", "other", "d2"})
	if len(got) != 2 || got[0] != "d1" || got[1] != "d2" {
		t.Fatalf("expected [d1 d2], got %v", got)
	}
}

func TestMembershipForDemotionDropsUnrequested(t *testing.T) {
	depts := []Department{
		{ID: "d1", CompanyID: "c1"},
		{ID: "d2", CompanyID: "c1"},
	}
	// A demoted admin keeps only what was explicitly requested; nil means none.
	if got := MembershipFor(RoleUser, "c1", depts, nil); len(got) != 0 {
		t.Fatalf("expected empty membership, got %v", got)
	}
}
