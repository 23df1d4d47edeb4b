package seen

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/repositories"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
)

type Pgx struct {
	pg     *pgxpool.Pool
	clock  clockwork.Clock
	logger logger.Logger
}

func NewPgx(pg *pgxpool.Pool, clock clockwork.Clock, log logger.Logger) *Pgx {
	return &Pgx{
		pg:     pg,
		clock:  clock,
		logger: log.WithComponent("SeenRepoPgx"),
	}
}

var _ Repository = (*Pgx)(nil)

func (p *Pgx) CheckAndAdmit(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		p.logger.Warn("Refusing to admit invalid post id", "id", id)
		return false, nil
	}

	query, args, err := repositories.SqBuilder.
		Insert(table).
		Columns("id", "processed_at").
		Values(id, p.clock.Now().UTC()).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, repositories.ErrBadQuery
	}

	tag, err := p.pg.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Pgx) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := p.clock.Now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	query, args, err := repositories.SqBuilder.
		Delete(table).
		Where(sq.Lt{"processed_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, repositories.ErrBadQuery
	}

	tag, err := p.pg.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *Pgx) RecentIDs(ctx context.Context, limit int) ([]int64, error) {
	query, args, err := repositories.SqBuilder.
		Select("id").
		From(table).
		OrderBy("processed_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, repositories.ErrBadQuery
	}

	rows, err := p.pg.Query(ctx, query, args...)
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

// Close is a no-op: the pool lifecycle belongs to the fx hook that created it.
func (p *Pgx) Close() error {
	return nil
}
