package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"bizdesk.org/internal/auth"
)

const pgErrForeignKeyViolation = "23503"

// Store is the Postgres-backed directory: the reference implementation of
// the user-lookup and permission-lookup collaborators.
type Store struct {
	db *sql.DB
}

var _ auth.UserLookup = (*Store)(nil)
var _ auth.PermissionLookup = (*Store)(nil)

// Open connects to Postgres with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection (used by tests with sqlmock).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for the readiness probe.
func (s *Store) DB() *sql.DB { return s.db }

// User is a directory row. PasswordHash is only read by the login path.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// VerifyUser returns the liveness snapshot for the user id. A missing row
// is reported as not-found, not as an error.
func (s *Store) VerifyUser(ctx context.Context, userID string) (auth.UserRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, role, status from users where id=$1`, userID)
	var record auth.UserRecord
	if err := row.Scan(&record.ID, &record.Role, &record.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.UserRecord{}, false, nil
		}
		return auth.UserRecord{}, false, err
	}
	return record, true, nil
}

// FindUserByEmail loads the full row for credential verification at login.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	row := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, name, role, status, created_at, updated_at
		from users where email=$1`, email)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, auth.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// CheckPermission reports whether the user holds the permission, either via
// an explicit grant or via the default set of the user's role.
func (s *Store) CheckPermission(ctx context.Context, userID, code string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		select
			exists(select 1 from user_permissions where user_id=$1 and permission=$2)
			or exists(
				select 1 from users u
				join role_permissions rp on rp.role = u.role
				where u.id=$1 and rp.permission=$2
			)`, userID, code)
	var granted bool
	if err := row.Scan(&granted); err != nil {
		return false, err
	}
	return granted, nil
}

// RolePermissions returns the default permission codes for a role.
func (s *Store) RolePermissions(ctx context.Context, role string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select permission from role_permissions where role=$1 order by permission`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// SetUserPermissions replaces the user's explicit grants. Callers must
// invalidate the permission cache for the user afterwards.
func (s *Store) SetUserPermissions(ctx context.Context, userID string, permissions []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from user_permissions where user_id=$1`, userID); err != nil {
		return err
	}
	for _, code := range permissions {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`insert into user_permissions(user_id, permission) values($1,$2) on conflict do nothing`,
			userID, code); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return auth.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

// SetUserRole changes the user's role. Callers must invalidate both the
// permission cache and the verification cache entry afterwards.
func (s *Store) SetUserRole(ctx context.Context, userID, role string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set role=$2, updated_at=now() where id=$1`, userID, role)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
