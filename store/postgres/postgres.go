// Package postgres is a PostgreSQL authsystem.CredentialStore over
// database/sql and the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	authsystem "github.com/neecatt/UserAuthSystem"
	"github.com/neecatt/UserAuthSystem/store/postgres/migrations"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements authsystem.CredentialStore.
type Store struct {
	db DBTX
}

// New wraps an open connection. The schema must already exist; Open applies
// migrations.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// Open connects to dsn, verifies the connection, and applies pending
// migrations. The caller closes the returned *sql.DB.
func Open(ctx context.Context, dsn string) (*Store, *sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migration error: %w", err)
	}
	return New(db), db, nil
}

func migrationsFS() embed.FS {
	return migrations.FS
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

const userColumns = `id, email, password_hash, COALESCE(two_factor_secret, ''), two_factor_enabled, created_at, updated_at`

func scanUser(row *sql.Row) (*authsystem.User, error) {
	u := &authsystem.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.TwoFactorSecret, &u.TwoFactorEnabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authsystem.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// FindByEmail implements authsystem.CredentialStore.
func (s *Store) FindByEmail(ctx context.Context, email string) (*authsystem.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(s.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
}

// FindByID implements authsystem.CredentialStore.
func (s *Store) FindByID(ctx context.Context, id string) (*authsystem.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id::text = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// Create implements authsystem.CredentialStore. The unique index on
// lower(email) makes the duplicate check and insert a single atomic step.
func (s *Store) Create(ctx context.Context, email, passwordHash string) (*authsystem.User, error) {
	query := `INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING ` + userColumns
	u, err := scanUser(s.db.QueryRowContext(ctx, query, email, passwordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, authsystem.ErrDuplicateAccount
		}
		return nil, err
	}
	return u, nil
}

// UpdatePassword implements authsystem.CredentialStore.
func (s *Store) UpdatePassword(ctx context.Context, id, newHash string) (*authsystem.User, error) {
	query := `UPDATE users SET password_hash = $2, updated_at = now() WHERE id::text = $1 RETURNING ` + userColumns
	return scanUser(s.db.QueryRowContext(ctx, query, id, newHash))
}

// UpdateTwoFactorSecret implements authsystem.CredentialStore. Writing the
// secret of an enabled account matches no row and is reported as
// ErrPreconditionFailed.
func (s *Store) UpdateTwoFactorSecret(ctx context.Context, id, secret string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET two_factor_secret = NULLIF($2, ''), updated_at = now() WHERE id::text = $1 AND NOT two_factor_enabled`,
		id, secret)
	return s.checkGuardedUpdate(ctx, res, err, id)
}

// ActivateTwoFactor implements authsystem.CredentialStore. The update only
// matches while the stored secret is still the one that was verified.
func (s *Store) ActivateTwoFactor(ctx context.Context, id, secret string) error {
	if secret == "" {
		return authsystem.ErrPreconditionFailed
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled = true, updated_at = now() WHERE id::text = $1 AND two_factor_secret = $2`,
		id, secret)
	return s.checkGuardedUpdate(ctx, res, err, id)
}

// UpdateTwoFactorEnabled implements authsystem.CredentialStore. Enabling an
// account without a secret matches no row and is reported as
// ErrPreconditionFailed.
func (s *Store) UpdateTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	if enabled {
		res, err := s.db.ExecContext(ctx,
			`UPDATE users SET two_factor_enabled = true, updated_at = now() WHERE id::text = $1 AND two_factor_secret IS NOT NULL`, id)
		return s.checkGuardedUpdate(ctx, res, err, id)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled = false, updated_at = now() WHERE id::text = $1`, id)
	return s.checkGuardedUpdate(ctx, res, err, id)
}

// checkGuardedUpdate turns a zero-row update into ErrUserNotFound or
// ErrPreconditionFailed depending on whether the user exists.
func (s *Store) checkGuardedUpdate(ctx context.Context, res sql.Result, err error, id string) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id::text = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return authsystem.ErrUserNotFound
	}
	return authsystem.ErrPreconditionFailed
}

var _ authsystem.CredentialStore = (*Store)(nil)
