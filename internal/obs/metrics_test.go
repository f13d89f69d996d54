package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                             "/",
		"/metrics":                     "/metrics",
		"/dashboard":                   "/dashboard",
		"/dashboard/view/abc":          "/dashboard/view/:id",
		"/dashboard/department/abc":    "/dashboard/department/:id",
		"/companies/edit/abc":          "/companies/edit/:id",
		"/companies/delete/abc":        "/companies/delete/:id",
		"/departments/edit/abc":        "/departments/edit/:id",
		"/dashboards/manage":           "/dashboards/manage",
		"/dashboards/edit/abc":         "/dashboards/edit/:id",
		"/users/reset-password/abc":    "/users/reset-password/:id",
		"/api/departments?company_id=": "/api/departments",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
