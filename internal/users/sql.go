package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/docverify/pantry/db/postgres"
	"github.com/dalemusser/docverify/pantry/db/sqlite"
)

// Dialect selects SQL syntax and error classification for a driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("users: unsupported database driver %q", driver)
	}
}

// Open connects to the database for driver and returns it with its dialect.
func Open(driver, dsn string, timeout time.Duration) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, "", err
	}
	var db *sql.DB
	switch dialect {
	case DialectPostgres:
		db, err = postgres.Connect(dsn, timeout)
	default:
		db, err = sqlite.Connect(dsn, timeout)
	}
	if err != nil {
		return nil, "", fmt.Errorf("users: connect %s: %w", dialect, err)
	}
	return db, dialect, nil
}

var schema = map[Dialect][]string{
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL,
			email_key     TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			role          TEXT NOT NULL,
			provider      TEXT NOT NULL DEFAULT '',
			provider_id   TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_provider_identity
			ON users (provider, provider_id) WHERE provider <> ''`,
	},
	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL,
			email_key     TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			role          TEXT NOT NULL,
			provider      TEXT NOT NULL DEFAULT '',
			provider_id   TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_provider_identity
			ON users (provider, provider_id) WHERE provider <> ''`,
	},
}

const userColumns = `id, email, password_hash, role, provider, provider_id, created_at`

// SQLStore stores users in a SQL database through database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps db. Call Migrate before first use.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate creates the users table and indexes if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema[s.dialect] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("users: migrate: %w", err)
		}
	}
	return nil
}

// Create inserts u.
func (s *SQLStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO users
		(id, email, email_key, password_hash, role, provider, provider_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Email, NormalizeEmail(u.Email), u.PasswordHash, u.Role,
		u.Provider, u.ProviderID, u.CreatedAt.UTC(),
	)
	if s.isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("users: create: %w", err)
	}
	return nil
}

// ByID returns the user with the given ID.
func (s *SQLStore) ByID(ctx context.Context, id string) (*User, error) {
	return s.one(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// ByEmail returns the user registered under email.
func (s *SQLStore) ByEmail(ctx context.Context, email string) (*User, error) {
	return s.one(ctx, `SELECT `+userColumns+` FROM users WHERE email_key = ?`, NormalizeEmail(email))
}

// ByProvider returns the user linked to a provider identity.
func (s *SQLStore) ByProvider(ctx context.Context, provider, providerID string) (*User, error) {
	return s.one(ctx, `SELECT `+userColumns+` FROM users WHERE provider = ? AND provider_id = ?`, provider, providerID)
}

func (s *SQLStore) one(ctx context.Context, query string, args ...any) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Provider, &u.ProviderID, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users: query: %w", err)
	}
	return &u, nil
}

func (s *SQLStore) isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if s.dialect == DialectPostgres {
		return postgres.IsUniqueViolation(err)
	}
	return sqlite.IsUniqueViolation(err)
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HealthCheck pings the database.
func (s *SQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
