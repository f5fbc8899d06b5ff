package migration

import (
	"context"
)

// historyMigration owns the bookkeeping table. It is applied by the migrator
// itself before any registered migration and is never listed in a registry.
type historyMigration struct {
}

func (migration historyMigration) Version() string {
	return "0_create_migration_history"
}

func (migration historyMigration) Description() string {
	return "Create migration history table"
}

func (migration historyMigration) Up(ctx context.Context) (string, []any) {
	return `
		CREATE TABLE IF NOT EXISTS migration_history (
			rowid SERIAL NOT NULL,
			version VARCHAR(255) NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			performed_at TIMESTAMP NOT NULL,
			PRIMARY KEY (rowid)
		);
	`, nil
}

func (migration historyMigration) Down(ctx context.Context) (string, []any) {
	return `DROP TABLE IF EXISTS migration_history;`, nil
}
