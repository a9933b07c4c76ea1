// Package migrations contains all database migration files. Each migration
// registers itself from init(); the package is imported for side effects by
// cmd/vastra and internal/server.
package migrations
