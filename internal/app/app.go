package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/browser"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/browser/playwrightimpl"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/browser/rodimpl"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/delivery"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/extractor"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/media"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/metrics"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/parser"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/parser/parserimpl"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/ratelimit"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/render"
	repositories "github.com/orgball2608/weibo-parser-discord-bot/internal/repositories/fx"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/sink"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/sink/discordimpl"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/sink/telegramimpl"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/config"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"go.uber.org/fx"
)

const (
	sinkTimeout     = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

var Module = fx.Options(
	fx.Provide(
		config.New,
		logger.FxOption,
		clockwork.NewRealClock,
		newLimiter,
		newLauncher,
		newMediaPipeline,
		newSink,
		newClassifier,
		func(p *media.Pipeline) parserimpl.Purger { return p },
	),
	fx.Provide(
		fx.Annotate(
			extractor.New,
			fx.As(new(parserimpl.Fetcher)),
		),
		fx.Annotate(
			delivery.New,
			fx.As(new(parserimpl.Deliverer)),
		),
		fx.Annotate(
			parserimpl.New,
			fx.As(new(parser.Client)),
		),
	),
	repositories.Module,
	fx.Invoke(run),
)

func newLimiter(clock clockwork.Clock, cfg *config.Config) ratelimit.Limiter {
	return ratelimit.NewSlidingWindow(clock, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, cfg.RateLimit.PollInterval)
}

func newLauncher(lc fx.Lifecycle, cfg *config.Config, log logger.Logger) (browser.Launcher, error) {
	if cfg.Browser.Driver == "rod" {
		return rodimpl.New(rodimpl.Opts{LC: lc, Config: cfg, Logger: log}), nil
	}
	pm, err := playwrightimpl.NewPlaywrightManager(playwrightimpl.Opts{LC: lc, Config: cfg, Logger: log})
	if err != nil {
		return nil, err
	}
	return pm, nil
}

func newMediaPipeline(lc fx.Lifecycle, cfg *config.Config, log logger.Logger) (*media.Pipeline, error) {
	p, err := media.New(media.Options{
		Dir:              cfg.Images.Dir,
		MaxDownloadBytes: cfg.MaxDownloadBytes(),
		AllowedDomains:   cfg.Images.AllowedDomains,
		KeepFiles:        cfg.Images.KeepFiles,
		Workers:          cfg.Images.Workers,
		Timeout:          cfg.Images.Timeout,
		UserAgent:        cfg.Browser.UserAgent,
	}, &http.Client{Timeout: cfg.Images.Timeout}, log)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			defer p.Close()
			if cfg.Images.KeepFiles {
				return nil
			}
			n, err := p.Purge()
			if err != nil {
				return err
			}
			log.Info("Asset directory purged", "files", n)
			return nil
		},
	})
	return p, nil
}

func newSink(cfg *config.Config, log logger.Logger) (sink.Sink, error) {
	discord, err := discordimpl.New(&http.Client{Timeout: sinkTimeout}, log)
	if err != nil {
		return nil, err
	}

	var telegram sink.Sink
	if cfg.UsesTelegram() {
		tg, err := telegramimpl.New(cfg.Telegram.Token, log)
		if err != nil {
			return nil, err
		}
		telegram = tg
	}

	return sink.NewRouter(discord, telegram, cfg.Delivery.PerSecond, cfg.Delivery.Burst, log), nil
}

func newClassifier(clock clockwork.Clock, cfg *config.Config, log logger.Logger) parserimpl.Classifier {
	return render.New(clock, cfg.Extractor.DumpDir, log)
}

func run(lc fx.Lifecycle, log logger.Logger, cfg *config.Config, pClient parser.Client) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := newHttpServer(log, cfg)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info(fmt.Sprintf("Starting server on :%d", cfg.App.Port))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("Server failed to start", "error", err)
				}
			}()

			if err := pClient.ScheduleDatabaseCleanup(ctx); err != nil {
				return err
			}
			if err := pClient.ScheduleStatus(ctx); err != nil {
				return err
			}
			return pClient.ScheduleScans(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			shutdownCtx, done := context.WithTimeout(stopCtx, shutdownTimeout)
			defer done()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

func newHttpServer(log logger.Logger, cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		healthCheckHandler(w, r, log)
	})
	mux.Handle("/metrics", metrics.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request, logger logger.Logger) {
	logger.Debug("Health check request received", "Method", r.Method, "URL", r.URL.String())
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte("ok")); err != nil {
		logger.Error("Failed to write response", "Error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
