package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migration is one forward-only schema step
// ARCHITECTURAL DISCOVERY: Versions are applied in order and recorded in
// schema_migrations so a restart only runs the steps it has not seen
type migration struct {
	Version     string
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     "001",
		Description: "broadcast audit log",
		SQL: `
			CREATE TABLE IF NOT EXISTS broadcasts (
				seq        INTEGER PRIMARY KEY AUTOINCREMENT,
				id         TEXT NOT NULL UNIQUE,
				group_name TEXT NOT NULL,
				channel    TEXT NOT NULL,
				payload    TEXT,
				created_at TIMESTAMP NOT NULL
			)`,
	},
	{
		Version:     "002",
		Description: "per-group history index",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_broadcasts_group ON broadcasts (group_name, seq)`,
	},
}

// migrate applies every pending migration, each in its own transaction
func migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sqlx.DB) (map[string]bool, error) {
	var versions []string
	if err := db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sqlx.DB, m migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }() // TECHNICAL: Always rollback unless commit succeeds

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
		return err
	}
	return tx.Commit()
}
