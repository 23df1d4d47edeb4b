package logger

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/config"
	"go.uber.org/fx"
)

var FxOption = fx.Annotate(
	func(lc fx.Lifecycle, cfg *config.Config) *Impl {
		log := New(
			Opts{
				Env:       cfg.App.Env,
				Level:     cfg.App.LogLevel,
				SentryDSN: cfg.Sentry.DSN,
			},
		)

		if cfg.Sentry.DSN != "" {
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					sentry.Flush(2 * time.Second)
					return nil
				},
			})
		}

		return log
	},
	fx.As(new(Logger)),
)
