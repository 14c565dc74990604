// Package database holds timeout helpers shared by the SQL-backed stores.
package database

import (
	"context"
	"time"
)

const (
	// DefaultQueryTimeout bounds single-row reads and updates.
	DefaultQueryTimeout = 5 * time.Second

	// DefaultMigrateTimeout bounds schema migration and the column check at open.
	DefaultMigrateTimeout = 30 * time.Second
)

// QueryContext creates a context with DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// MigrateContext creates a context with DefaultMigrateTimeout.
func MigrateContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultMigrateTimeout)
}
