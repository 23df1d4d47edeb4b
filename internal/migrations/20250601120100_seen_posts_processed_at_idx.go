package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upSeenPostsIdx, downSeenPostsIdx)
}

func upSeenPostsIdx(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_seen_posts_processed_at ON seen_posts (processed_at)`)
	return err
}

func downSeenPostsIdx(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP INDEX IF EXISTS idx_seen_posts_processed_at`)
	return err
}
