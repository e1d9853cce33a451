package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"bizdesk.org/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestVerifyUserFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`select id, role, status from users where id=$1`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "status"}).
			AddRow("user-1", "MANAGER", "ACTIVE"))

	record, found, err := store.VerifyUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !found || record.Role != "MANAGER" || !record.Usable() {
		t.Fatalf("unexpected record %+v found=%v", record, found)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`select id, role, status from users where id=$1`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "status"}))

	_, found, err := store.VerifyUser(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("missing row must not be an error, got %v", err)
	}
	if found {
		t.Fatal("expected found=false")
	}
}

func TestFindUserByEmailNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("from users where email=").
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "password_hash", "name", "role", "status", "created_at", "updated_at",
		}))

	_, err := store.FindUserByEmail(context.Background(), "Ghost@Example.com")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCheckPermission(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select").
		WithArgs("user-1", "customers.view").
		WillReturnRows(sqlmock.NewRows([]string{"granted"}).AddRow(true))

	granted, err := store.CheckPermission(context.Background(), "user-1", "customers.view")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !granted {
		t.Fatal("expected grant")
	}
}

func TestRolePermissions(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`select permission from role_permissions where role=$1`)).
		WithArgs("EMPLOYEE").
		WillReturnRows(sqlmock.NewRows([]string{"permission"}).
			AddRow("customers.view").
			AddRow("requests.view"))

	perms, err := store.RolePermissions(context.Background(), "EMPLOYEE")
	if err != nil {
		t.Fatalf("role permissions: %v", err)
	}
	if len(perms) != 2 || perms[1] != "requests.view" {
		t.Fatalf("unexpected permissions %v", perms)
	}
}

func TestSetUserPermissions(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`delete from user_permissions where user_id=$1`)).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_permissions").
		WithArgs("user-1", "customers.view").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_permissions").
		WithArgs("user-1", "requests.manage").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.SetUserPermissions(context.Background(), "user-1",
		[]string{"customers.view", "", "requests.manage"})
	if err != nil {
		t.Fatalf("set permissions: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSetUserPermissionsUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`delete from user_permissions where user_id=$1`)).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into user_permissions").
		WithArgs("ghost", "customers.view").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	mock.ExpectRollback()

	err := store.SetUserPermissions(context.Background(), "ghost", []string{"customers.view"})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on FK violation, got %v", err)
	}
}

func TestSetUserRole(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update users set role=").
		WithArgs("user-1", "MANAGER").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetUserRole(context.Background(), "user-1", "MANAGER"); err != nil {
		t.Fatalf("set role: %v", err)
	}
}

func TestSetUserRoleNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update users set role=").
		WithArgs("ghost", "MANAGER").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SetUserRole(context.Background(), "ghost", "MANAGER")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
