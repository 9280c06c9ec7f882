package bootstrap

import (
	"database/sql"
	"sync"

	"github.com/dalemusser/docverify/internal/users"
	"github.com/dalemusser/docverify/pantry/auth/oauth2"
	dbredis "github.com/dalemusser/docverify/pantry/db/redis"
	"github.com/dalemusser/docverify/pantry/health"
	"github.com/dalemusser/docverify/pantry/session"
)

// DBDeps holds the stores docverify runs on.
type DBDeps struct {
	// SQL is nil for the memory user store and for the hosted backend.
	SQL     *sql.DB
	Dialect users.Dialect
	Users   users.Store

	// Redis is nil when sessions and OAuth state are kept in memory.
	Redis *dbredis.Client

	Sessions session.Store
	States   oauth2.StateStore

	// stopStateCleanup stops the memory state store's sweeper.
	stopStateCleanup func()

	// closers holds what BuildHandler started (the signup rate limiter).
	// It is a pointer because the app runner passes DBDeps by value.
	closers *closers
}

type closers struct {
	mu  sync.Mutex
	fns []func()
}

// onShutdown registers fn to run when the stores are closed.
func (d DBDeps) onShutdown(fn func()) {
	if d.closers == nil {
		return
	}
	d.closers.mu.Lock()
	defer d.closers.mu.Unlock()
	d.closers.fns = append(d.closers.fns, fn)
}

// runShutdown runs the registered functions once, newest first.
func (d DBDeps) runShutdown() {
	if d.closers == nil {
		return
	}
	d.closers.mu.Lock()
	fns := d.closers.fns
	d.closers.fns = nil
	d.closers.mu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// healthChecks returns a probe for each external store in use.
func (d DBDeps) healthChecks() map[string]health.Check {
	checks := map[string]health.Check{}
	if s, ok := d.Users.(*users.SQLStore); ok {
		checks["users"] = s.HealthCheck
	}
	if d.Redis != nil {
		checks["redis"] = dbredis.HealthCheck(d.Redis)
	}
	return checks
}
