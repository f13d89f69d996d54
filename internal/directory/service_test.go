package directory_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dashgate.org/internal/directory"
)

func newService(t *testing.T, g *graph) *directory.Service {
	t.Helper()
	svc, err := directory.NewService(g.store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestCompanyRoundTripVisibility(t *testing.T) {
	g := seedGraph(t)
	ctx := context.Background()
	svc := newService(t, g)
	master := g.actor(t, g.master.ID)

	company, err := svc.CreateCompany(ctx, master, "Corex", "new tenant", true)
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	dept, err := svc.CreateDepartment(ctx, master, directory.NewDepartment{
		Name: "Finance", CompanyID: company.ID, Active: true,
	})
	if err != nil {
		t.Fatalf("create department: %v", err)
	}
	dash, err := svc.CreateDashboard(ctx, master, directory.NewDashboard{
		Name: "Spend", EmbedLink: "https://bi.example/spend", DepartmentID: dept.ID, Active: true,
	})
	if err != nil {
		t.Fatalf("create dashboard: %v", err)
	}
	admin, err := svc.CreateUser(ctx, master, directory.NewUser{
		Name: "Carol", Email: "carol@example.com", Role: directory.RoleAdmin, CompanyID: company.ID,
	}, "hash")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}

	listing, err := svc.ManageDashboards(ctx, g.actor(t, admin.ID))
	if err != nil {
		t.Fatalf("manage dashboards: %v", err)
	}
	if len(listing) != 1 || listing[0].ID != dash.ID {
		t.Fatalf("new admin must see the company dashboard, got %+v", listing)
	}
}

func TestCreateDepartmentGrantsExistingAdmins(t *testing.T) {
	g := seedGraph(t)
	ctx := context.Background()
	svc := newService(t, g)

	dept, err := svc.CreateDepartment(ctx, g.actor(t, g.adminA.ID), directory.NewDepartment{
		Name: "Marketing", CompanyID: g.companyA, Active: true,
	})
	if err != nil {
		t.Fatalf("create department: %v", err)
	}

	admin := g.actor(t, g.adminA.ID)
	if !admin.MemberOf(dept.ID) {
		t.Fatal("existing admin must be granted the new department")
	}
	user := g.actor(t, g.userA.ID)
	if user.MemberOf(dept.ID) {
		t.Fatal("plain user must not be auto-granted the new department")
	}
}

func TestMoveDepartmentRepairsMemberships(t *testing.T) {
	g := seedGraph(t)
	ctx := context.Background()
	svc := newService(t, g)
	master := g.actor(t, g.master.ID)

	if _, err := svc.UpdateDepartment(ctx, master, g.deptA1, directory.DepartmentUpdate{
		CompanyID: &g.companyB,
	}); err != nil {
		t.Fatalf("move department: %v", err)
	}

	if g.actor(t, g.userA.ID).MemberOf(g.deptA1) {
		t.Fatal("old-company user must lose the moved department")
	}
	if g.actor(t, g.adminA.ID).MemberOf(g.deptA1) {
		t.Fatal("old-company admin must lose the moved department")
	}
	if !g.actor(t, g.adminB.ID).MemberOf(g.deptA1) {
		t.Fatal("new-company admin must gain the moved department")
	}
	if g.actor(t, g.userB.ID).MemberOf(g.deptA1) {
		t.Fatal("new-company plain user must not be auto-granted")
	}
}

func TestMoveDepartmentRequiresBothScopes(t *testing.T) {
	g := seedGraph(t)
	ctx := context.Background()
	svc := newService(t, g)

	// adminA controls company A but not company B; the move must fail.
	_, err := svc.UpdateDepartment(ctx, g.actor(t, g.adminA.ID), g.deptA1, directory.DepartmentUpdate{
		CompanyID: &g.companyB,
	})
	if !errors.Is(err, directory.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestDashboardDescriptionLength(t *testing.T) {
	g := seedGraph(t)
	ctx := context.Background()
	svc := newService(t, g)
	master := g.actor(t, g.master.ID)

	long := strings.Repeat("x", directory.MaxDashboardDescription+1)
	_, err := svc.CreateDashboard(ctx, master, directory.NewDashboard{
		Name: "Too long", EmbedLink: "https://bi.example/x", DepartmentID: g.deptA1,
		Description: long, Active: true,
	})
	if !errors.Is(err, directory.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	exact := strings.Repeat("x", directory.MaxDashboardDescription)
	if _, err := svc.CreateDashboard(ctx, master, directory.NewDashboard{
		Name: "Exact", EmbedLink: "https://bi.example/x", DepartmentID: g.deptA1,
		Description: exact, Active: true,
	}); err != nil {
		t.Fatalf("boundary description must pass: %v", err)
	}
}

func TestUpdateUserDemotionRebuildsMemberships(t *testing.T) {
	g := seedGraph(t)
	ctx := context.Background()
	svc := newService(t, g)
	master := g.actor(t, g.master.ID)

	role := directory.RoleUser
	updated, err := svc.UpdateUser(ctx, master, g.adminA.ID, directory.UserUpdate{
		Role:          &role,
		DepartmentIDs: []string{g.deptA1},
	})
	if err != nil {
		t.Fatalf("demote admin: %v", err)
	}
	if len(updated.DepartmentIDs) != 1 || updated.DepartmentIDs[0] != g.deptA1 {
		t.Fatalf("demotion must rebuild to the requested subset, got %v", updated.DepartmentIDs)
	}
}

func TestDemoteCompanylessMasterRequiresCompany(t *testing.T) {
	g := seedGraph(t)
	ctx := context.Background()
	svc := newService(t, g)
	master := g.actor(t, g.master.ID)

	second, err := svc.CreateUser(ctx, master, directory.NewUser{
		Name: "Mara", Email: "mara@example.com", Role: directory.RoleMaster,
	}, "hash")
	if err != nil {
		t.Fatalf("create master: %v", err)
	}

	role := directory.RoleAdmin
	_, err = svc.UpdateUser(ctx, master, second.ID, directory.UserUpdate{Role: &role})
	if !errors.Is(err, directory.ErrInvalidInput) {
		t.Fatalf("demotion without a company must be refused, got %v", err)
	}

	// Supplying the company alongside the demotion is fine.
	demoted, err := svc.UpdateUser(ctx, master, second.ID, directory.UserUpdate{
		Role:      &role,
		CompanyID: &g.companyA,
	})
	if err != nil {
		t.Fatalf("demote with company: %v", err)
	}
	if demoted.Role != directory.RoleAdmin || demoted.CompanyID != g.companyA {
		t.Fatalf("unexpected result: %+v", demoted)
	}
}

func TestPromoteToAdminGrantsAllDepartments(t *testing.T) {
	g := seedGraph(t)
	ctx := context.Background()
	svc := newService(t, g)
	master := g.actor(t, g.master.ID)

	role := directory.RoleAdmin
	updated, err := svc.UpdateUser(ctx, master, g.userA.ID, directory.UserUpdate{Role: &role})
	if err != nil {
		t.Fatalf("promote user: %v", err)
	}
	if len(updated.DepartmentIDs) != 2 {
		t.Fatalf("promoted admin must hold every company department, got %v", updated.DepartmentIDs)
	}
}

func TestOnlyMasterMintsMasters(t *testing.T) {
	g := seedGraph(t)
	ctx := context.Background()
	svc := newService(t, g)

	_, err := svc.CreateUser(ctx, g.actor(t, g.adminA.ID), directory.NewUser{
		Name: "Eve", Email: "eve@example.com", Role: directory.RoleMaster,
	}, "hash")
	if !errors.Is(err, directory.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	role := directory.RoleMaster
	_, err = svc.UpdateUser(ctx, g.actor(t, g.adminA.ID), g.userA.ID, directory.UserUpdate{Role: &role})
	if !errors.Is(err, directory.ErrForbidden) {
		t.Fatalf("expected ErrForbidden on promotion, got %v", err)
	}
}

func TestAdminCannotTouchMasterOrOtherCompany(t *testing.T) {
	g := seedGraph(t)
	ctx := context.Background()
	svc := newService(t, g)
	admin := g.actor(t, g.adminA.ID)

	if _, err := svc.GetUser(ctx, admin, g.master.ID); !errors.Is(err, directory.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for master target, got %v", err)
	}
	if _, err := svc.GetUser(ctx, admin, g.userB.ID); !errors.Is(err, directory.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for other-company target, got %v", err)
	}
	if err := svc.DeleteUser(ctx, admin, g.userB.ID); !errors.Is(err, directory.ErrForbidden) {
		t.Fatalf("expected ErrForbidden on delete, got %v", err)
	}
}

func TestDeleteOwnAccountRefused(t *testing.T) {
	g := seedGraph(t)
	svc := newService(t, g)
	master := g.actor(t, g.master.ID)

	err := svc.DeleteUser(context.Background(), master, g.master.ID)
	if !errors.Is(err, directory.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteCompanyRefusedWhileUsersRemain(t *testing.T) {
	g := seedGraph(t)
	ctx := context.Background()
	svc := newService(t, g)
	master := g.actor(t, g.master.ID)

	if err := svc.DeleteCompany(ctx, master, g.companyA); !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// After the users are gone the cascade may proceed.
	if err := svc.DeleteUser(ctx, master, g.adminA.ID); err != nil {
		t.Fatalf("delete admin: %v", err)
	}
	if err := svc.DeleteUser(ctx, master, g.userA.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := svc.DeleteCompany(ctx, master, g.companyA); err != nil {
		t.Fatalf("delete company: %v", err)
	}
	if _, err := g.store.GetDepartment(ctx, g.deptA1); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("departments must cascade, got %v", err)
	}
	if _, err := g.store.GetDashboard(ctx, g.dashA1); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("dashboards must cascade, got %v", err)
	}
}

func TestViewDashboardsInactiveDepartmentIsEmpty(t *testing.T) {
	g := seedGraph(t)
	svc := newService(t, g)
	admin := g.actor(t, g.adminA.ID)

	dashboards, err := svc.ViewDashboards(context.Background(), admin, g.deptA2)
	if err != nil {
		t.Fatalf("view dashboards: %v", err)
	}
	if len(dashboards) != 0 {
		t.Fatalf("inactive department must display nothing, got %+v", dashboards)
	}
}

func TestViewDashboardUniformForbidden(t *testing.T) {
	g := seedGraph(t)
	ctx := context.Background()
	svc := newService(t, g)
	user := g.actor(t, g.userA.ID)

	// Out-of-scope and missing ids are indistinguishable.
	if _, err := svc.ViewDashboard(ctx, user, g.dashB1); !errors.Is(err, directory.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for out-of-scope, got %v", err)
	}
	if _, err := svc.ViewDashboard(ctx, user, "no-such-dashboard"); !errors.Is(err, directory.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for missing, got %v", err)
	}
}

func TestActiveDepartmentsSilentWhenInaccessible(t *testing.T) {
	g := seedGraph(t)
	ctx := context.Background()
	svc := newService(t, g)

	depts, err := svc.ActiveDepartments(ctx, g.actor(t, g.userA.ID), g.companyB)
	if err != nil {
		t.Fatalf("active departments: %v", err)
	}
	if len(depts) != 0 {
		t.Fatalf("inaccessible company must yield nothing, got %+v", depts)
	}

	visible, err := svc.ActiveDepartments(ctx, g.actor(t, g.adminA.ID), g.companyA)
	if err != nil {
		t.Fatalf("active departments: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != g.deptA1 {
		t.Fatalf("expected only the active department, got %+v", visible)
	}
}
