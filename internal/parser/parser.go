package parser

import (
	"context"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
)

// ScanReport summarises one pass over an account.
type ScanReport struct {
	Account   string
	Fetched   int
	Admitted  int
	Skipped   int
	Delivered int
	Failed    int
	// Err is set when nothing could be fetched; the pass reports no new content.
	Err error
}

type Client interface {
	Scan(ctx context.Context, ep domain.Endpoint) ScanReport
	ScanAll(ctx context.Context) []ScanReport
	SendStatus(ctx context.Context) error
	Cleanup(ctx context.Context) error
	ScheduleScans(ctx context.Context) error
	ScheduleStatus(ctx context.Context) error
	ScheduleDatabaseCleanup(ctx context.Context) error
}
