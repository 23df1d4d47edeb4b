package parserimpl

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const (
	statusTimeout  = time.Minute
	cleanupTimeout = 5 * time.Minute
)

func (p *ParserImpl) location() *time.Location {
	loc, err := time.LoadLocation(p.Config.App.Timezone)
	if err != nil {
		p.Logger.Warn("Failed to load timezone, using local timezone", "timezone", p.Config.App.Timezone, "error", err)
		return time.Local
	}
	return loc
}

// schedule runs task on its own scheduler until ctx is done. A tick that is still
// running when the next one fires is rescheduled rather than run in parallel.
func (p *ParserImpl) schedule(ctx context.Context, name string, def gocron.JobDefinition, task func(ctx context.Context), opts ...gocron.JobOption) error {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(p.location()))
	if err != nil {
		return fmt.Errorf("failed to create %s scheduler: %w", name, err)
	}

	opts = append(opts, gocron.WithName(name), gocron.WithSingletonMode(gocron.LimitModeReschedule))
	_, err = scheduler.NewJob(
		def,
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				p.Logger.Info("Context cancelled, skipping job", "job", name)
				return
			}
			task(ctx)
		}),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	scheduler.Start()

	go func() {
		<-ctx.Done()
		p.Logger.Info("Stopping scheduler", "job", name)
		if err := scheduler.Shutdown(); err != nil {
			p.Logger.Error("Failed to shut down scheduler", "job", name, "error", err)
		}
	}()

	return nil
}

// ScheduleScans runs a scan round right away and then every ScanInterval.
func (p *ParserImpl) ScheduleScans(ctx context.Context) error {
	interval := p.Config.Scheduler.ScanInterval
	p.Logger.Info("Scheduling scans", "interval", interval)

	return p.schedule(ctx, "scan", gocron.DurationJob(interval), func(ctx context.Context) {
		p.Logger.Info("Starting scan round")
		start := p.Clock.Now()
		reports := p.ScanAll(ctx)

		delivered := 0
		for _, r := range reports {
			delivered += r.Delivered
		}
		p.Logger.Info("Scan round finished", "accounts", len(reports), "delivered", delivered,
			"duration", p.Clock.Since(start).String())
	}, gocron.WithStartAt(gocron.WithStartImmediately()))
}

// ScheduleStatus sends the heartbeat at startup and then every StatusInterval.
func (p *ParserImpl) ScheduleStatus(ctx context.Context) error {
	if p.Config.Status.MessageWebhook == "" {
		p.Logger.Info("No status sink configured, heartbeat disabled")
		return nil
	}

	return p.schedule(ctx, "status", gocron.DurationJob(p.Config.Scheduler.StatusInterval), func(ctx context.Context) {
		statusCtx, cancel := context.WithTimeout(ctx, statusTimeout)
		defer cancel()
		if err := p.SendStatus(statusCtx); err != nil {
			p.Logger.Error("Failed to send status", "error", err)
		}
	}, gocron.WithStartAt(gocron.WithStartImmediately()))
}

// ScheduleDatabaseCleanup runs Cleanup daily at CleanupHour.
func (p *ParserImpl) ScheduleDatabaseCleanup(ctx context.Context) error {
	hour := p.Config.Scheduler.CleanupHour
	def := gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, 0, 0)))

	return p.schedule(ctx, "cleanup", def, func(ctx context.Context) {
		p.Logger.Info("Starting scheduled cleanup job")

		cleanupCtx, cancel := context.WithTimeout(ctx, cleanupTimeout)
		defer cancel()

		if err := p.Cleanup(cleanupCtx); err != nil {
			p.Logger.Error("Failed to clean up", "error", err)
		}
	})
}
