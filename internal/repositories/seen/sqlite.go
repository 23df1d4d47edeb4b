package seen

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/repositories"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
)

const table = "seen_posts"

type SQLite struct {
	db     *sql.DB
	clock  clockwork.Clock
	logger logger.Logger
}

func NewSQLite(db *sql.DB, clock clockwork.Clock, log logger.Logger) *SQLite {
	return &SQLite{
		db:     db,
		clock:  clock,
		logger: log.WithComponent("SeenRepoSQLite"),
	}
}

var _ Repository = (*SQLite)(nil)

func (s *SQLite) CheckAndAdmit(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		s.logger.Warn("Refusing to admit invalid post id", "id", id)
		return false, nil
	}

	query, args, err := repositories.SqliteBuilder.
		Insert(table).
		Columns("id", "processed_at").
		Values(id, s.clock.Now().UTC().Truncate(time.Second)).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, repositories.ErrBadQuery
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLite) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.clock.Now().UTC().Truncate(time.Second).Add(-time.Duration(retentionDays) * 24 * time.Hour)

	query, args, err := repositories.SqliteBuilder.
		Delete(table).
		Where(sq.Lt{"processed_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, repositories.ErrBadQuery
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLite) RecentIDs(ctx context.Context, limit int) ([]int64, error) {
	query, args, err := repositories.SqliteBuilder.
		Select("id").
		From(table).
		OrderBy("processed_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, repositories.ErrBadQuery
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
