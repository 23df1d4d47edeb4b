package parserimpl

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/delivery"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/parser"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/repositories/seen"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/sink"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/config"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"go.uber.org/fx"
)

//go:generate go run go.uber.org/mock/mockgen -source=impl.go -destination=mocks/mock.go

// Fetcher obtains the current feed snapshot of one account, newest first.
type Fetcher interface {
	FetchWithRetry(ctx context.Context, ep domain.Endpoint) ([]domain.RawPost, error)
}

type Classifier interface {
	Classify(post domain.RawPost, ep domain.Endpoint) domain.RenderPlan
}

type Deliverer interface {
	Deliver(ctx context.Context, plan domain.RenderPlan, ep domain.Endpoint) delivery.Report
}

// Purger empties the asset directory.
type Purger interface {
	Purge() (int, error)
}

type Opts struct {
	fx.In

	Fetcher    Fetcher
	Store      seen.Repository
	Classifier Classifier
	Deliverer  Deliverer
	Sink       sink.Sink
	Media      Purger
	Clock      clockwork.Clock
	Config     *config.Config
	Logger     logger.Logger
}

type ParserImpl struct {
	Fetcher    Fetcher
	Store      seen.Repository
	Classifier Classifier
	Deliverer  Deliverer
	Sink       sink.Sink
	Media      Purger
	Clock      clockwork.Clock
	Config     *config.Config
	Logger     logger.Logger

	status statusMessages
	scanMu sync.Mutex
}

func New(opts Opts) *ParserImpl {
	log := opts.Logger.WithComponent("Parser")
	return &ParserImpl{
		Fetcher:    opts.Fetcher,
		Store:      opts.Store,
		Classifier: opts.Classifier,
		Deliverer:  opts.Deliverer,
		Sink:       opts.Sink,
		Media:      opts.Media,
		Clock:      opts.Clock,
		Config:     opts.Config,
		Logger:     log,
		status:     loadStatusMessages(opts.Config.Status.MessagesFile, log),
	}
}

var _ parser.Client = (*ParserImpl)(nil)
