package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"dashgate.org/internal/directory"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetCompanyNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select id, name, description, is_active, created_at, updated_at").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetCompany(context.Background(), "missing")
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestDeleteCompanyRestrictMapsToConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("delete from companies").
		WithArgs("c1").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	err := store.DeleteCompany(context.Background(), "c1")
	if !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestCreateDepartmentGrantsElevatedInOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("insert into departments").
		WithArgs(sqlmock.AnyArg(), "c1", "Sales", sqlmock.AnyArg(), true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "name", "description", "is_active", "created_at", "updated_at"}).
			AddRow("d1", "c1", "Sales", nil, true, now, now))
	mock.ExpectExec("insert into user_departments").
		WithArgs("d1", "c1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	dept := directory.Department{CompanyID: "c1", Name: "Sales", Active: true}
	if err := store.CreateDepartment(context.Background(), &dept); err != nil {
		t.Fatalf("create department: %v", err)
	}
	if dept.ID != "d1" {
		t.Fatalf("expected returned id, got %q", dept.ID)
	}
	expectationsMet(t, mock)
}

func TestUpdateDepartmentMoveRepairsMemberships(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	newCompany := "c2"

	mock.ExpectBegin()
	mock.ExpectQuery("select company_id from departments").
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"company_id"}).AddRow("c1"))
	mock.ExpectExec("update departments set").
		WithArgs(newCompany, "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from user_departments").
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("insert into user_departments").
		WithArgs("d1", newCompany).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("select id, company_id, name, description, is_active, created_at, updated_at").
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "name", "description", "is_active", "created_at", "updated_at"}).
			AddRow("d1", newCompany, "Sales", nil, true, now, now))

	dept, err := store.UpdateDepartment(context.Background(), "d1", directory.DepartmentUpdate{CompanyID: &newCompany})
	if err != nil {
		t.Fatalf("move department: %v", err)
	}
	if dept.CompanyID != newCompany {
		t.Fatalf("expected company %q, got %q", newCompany, dept.CompanyID)
	}
	expectationsMet(t, mock)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("insert into users").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "Uma", "uma@example.com", "user", "hash").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	user := directory.User{Name: "Uma", Email: "uma@example.com", Role: directory.RoleUser, CompanyID: "c1"}
	err := store.CreateUser(context.Background(), &user, "hash")
	if !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestRecordLoginFailureLockTransition(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	// Attempt reaching the threshold reports the lock exactly once.
	mock.ExpectQuery("update users").
		WithArgs("u1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"is_locked", "failed_login_attempts"}).AddRow(true, 5))
	locked, err := store.RecordLoginFailure(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if !locked {
		t.Fatal("expected lock transition at threshold")
	}

	mock.ExpectQuery("update users").
		WithArgs("u1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"is_locked", "failed_login_attempts"}).AddRow(true, 6))
	locked, err = store.RecordLoginFailure(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if locked {
		t.Fatal("already-locked account must not report a new transition")
	}
	expectationsMet(t, mock)
}

func TestSetPasswordUnlocks(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update users").
		WithArgs("u1", "newhash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetPassword(context.Background(), "u1", "newhash"); err != nil {
		t.Fatalf("set password: %v", err)
	}

	mock.ExpectExec("update users").
		WithArgs("missing", "newhash").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.SetPassword(context.Background(), "missing", "newhash"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}
