package app

import (
	"context"

	"github.com/freekieb7/jet/database/migration"
)

func init() {
	if err := migration.Register(createItemsMigration{}); err != nil {
		panic(err)
	}
}

type createItemsMigration struct {
}

func (createItemsMigration) Version() string {
	return "1_create_items"
}

func (createItemsMigration) Description() string {
	return "Create items table"
}

func (createItemsMigration) Up(ctx context.Context) (string, []any) {
	return `
		CREATE TABLE items (
			id BIGSERIAL NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (id)
		);
	`, nil
}

func (createItemsMigration) Down(ctx context.Context) (string, []any) {
	return `DROP TABLE items;`, nil
}
