package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upSeenPosts, downSeenPosts)
}

func upSeenPosts(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS seen_posts (
			id           BIGINT PRIMARY KEY,
			processed_at TIMESTAMP NOT NULL
		)`)
	return err
}

func downSeenPosts(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS seen_posts`)
	return err
}
