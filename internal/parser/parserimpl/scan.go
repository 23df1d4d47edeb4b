package parserimpl

import (
	"context"
	"time"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/metrics"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/parser"
)

// Scan fetches one account and delivers every post not seen before, oldest first.
// A post is admitted to the store before it is handed to delivery, so a failed
// send is never retried on the next pass.
func (p *ParserImpl) Scan(ctx context.Context, ep domain.Endpoint) parser.ScanReport {
	report := parser.ScanReport{Account: ep.Name}
	log := p.Logger.With("account", ep.Name)

	posts, err := p.Fetcher.FetchWithRetry(ctx, ep)
	if err != nil {
		log.Warn("No new content", "error", err)
		report.Err = err
		return report
	}
	report.Fetched = len(posts)

	// pause is owed after a delivery and is paid before the next admission,
	// so an interrupted wait never leaves an admitted but unsent post.
	pause := false
	for i := len(posts) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			log.Info("Scan cancelled", "remaining", i+1)
			break
		}
		post := posts[i]

		if post.ID <= 0 {
			log.Warn("Skipping post without usable id", "stable_id", post.StableID())
			report.Skipped++
			metrics.PostsSkipped.WithLabelValues(ep.Name).Inc()
			continue
		}

		if pause {
			if err := p.wait(ctx, p.Config.Scheduler.ItemDelay); err != nil {
				log.Info("Scan cancelled between items", "remaining", i+1)
				break
			}
			pause = false
		}

		admitted, err := p.Store.CheckAndAdmit(ctx, post.ID)
		if err != nil {
			log.Error("Failed to record post", "post_id", post.ID, "error", err)
			report.Failed++
			continue
		}
		if !admitted {
			report.Skipped++
			metrics.PostsSkipped.WithLabelValues(ep.Name).Inc()
			continue
		}
		report.Admitted++
		metrics.PostsAdmitted.WithLabelValues(ep.Name).Inc()

		pause = true

		plan := p.Classifier.Classify(post, ep)
		res := p.Deliverer.Deliver(ctx, plan, ep)
		if res.Primary.Delivered() {
			report.Delivered++
			log.Info("Post delivered", "post_id", post.ID, "variant", res.Sent.String())
		} else {
			report.Failed++
		}
	}

	log.Info("Scan finished",
		"fetched", report.Fetched,
		"admitted", report.Admitted,
		"skipped", report.Skipped,
		"delivered", report.Delivered,
		"failed", report.Failed,
	)
	return report
}

// ScanAll scans every enabled account in name order. Concurrent calls are serialised.
func (p *ParserImpl) ScanAll(ctx context.Context) []parser.ScanReport {
	p.scanMu.Lock()
	defer p.scanMu.Unlock()

	if timeout := p.Config.Scheduler.ScanTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reports []parser.ScanReport
	for _, acc := range p.Config.SortedAccounts() {
		ep := domain.NewEndpoint(acc)
		if ep.Disabled {
			p.Logger.Info("Skipping disabled account", "account", ep.Name, "reason", ep.DisabledReason)
			continue
		}
		if ctx.Err() != nil {
			p.Logger.Warn("Scan round stopped early", "error", ctx.Err())
			break
		}
		reports = append(reports, p.Scan(ctx, ep))
	}
	return reports
}

func (p *ParserImpl) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.Clock.After(d):
		return nil
	}
}
