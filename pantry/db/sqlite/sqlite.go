// db/sqlite/sqlite.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver registered by go-sqlite3.
const DriverName = "sqlite3"

// Options configures SQLite database behavior.
type Options struct {
	// WALMode enables Write-Ahead Logging for better concurrent read performance.
	WALMode bool

	// ForeignKeys enables foreign key constraint enforcement.
	ForeignKeys bool

	// BusyTimeout sets how long to wait when the database is locked (milliseconds).
	BusyTimeout int

	// Synchronous sets the synchronous mode ("OFF", "NORMAL", "FULL").
	Synchronous string

	// MaxOpenConns limits concurrent connections. SQLite allows a single
	// writer, so one connection avoids "database is locked" errors.
	MaxOpenConns int
}

// DefaultOptions returns settings for a file-backed database served to web
// requests: WAL, foreign keys, 5s busy timeout, NORMAL sync, one connection.
func DefaultOptions() Options {
	return Options{
		WALMode:      true,
		ForeignKeys:  true,
		BusyTimeout:  5000,
		Synchronous:  "NORMAL",
		MaxOpenConns: 1,
	}
}

// InMemoryOptions returns options for ":memory:" databases. The pool is
// pinned to one connection since every new connection would see an empty
// database.
func InMemoryOptions() Options {
	opts := DefaultOptions()
	opts.WALMode = false
	opts.Synchronous = "OFF"
	return opts
}

// Connect opens a SQLite database with DefaultOptions, or InMemoryOptions
// when path is ":memory:". The caller is responsible for calling db.Close().
func Connect(path string, timeout time.Duration) (*sql.DB, error) {
	opts := DefaultOptions()
	if path == ":memory:" {
		opts = InMemoryOptions()
	}
	return ConnectWithOptions(path, opts, timeout)
}

// ConnectWithOptions opens a SQLite database, pings it and applies pragmas.
func ConnectWithOptions(path string, opts Options, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open(DriverName, buildDSN(path, opts))
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := applyPragmas(ctx, db, opts); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func buildDSN(path string, opts Options) string {
	var params []string
	if opts.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_busy_timeout=%d", opts.BusyTimeout))
	}
	if opts.ForeignKeys {
		params = append(params, "_foreign_keys=on")
	}
	if len(params) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// applyPragmas sets SQLite pragmas that must be run as SQL statements.
func applyPragmas(ctx context.Context, db *sql.DB, opts Options) error {
	if opts.WALMode {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("set journal_mode: %w", err)
		}
	}
	if opts.Synchronous != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA synchronous=%s", opts.Synchronous)); err != nil {
			return fmt.Errorf("set synchronous: %w", err)
		}
	}
	return nil
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
