package parserimpl

import (
	"context"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/metrics"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
)

// Cleanup drops dedup records past retention and empties the asset directory.
func (p *ParserImpl) Cleanup(ctx context.Context) error {
	rows, err := p.Store.Cleanup(ctx, p.Config.Scheduler.RetentionDays)
	if err != nil {
		return errors.Wrap(err, "clean up seen posts")
	}
	metrics.SeenCleaned.Add(float64(rows))

	files, err := p.Media.Purge()
	if err != nil {
		return errors.Wrap(err, "purge asset directory")
	}

	p.Logger.Info("Cleanup completed", "rows_deleted", rows, "files_removed", files)
	return nil
}
