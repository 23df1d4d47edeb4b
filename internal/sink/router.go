package sink

import (
	"context"
	"strings"
	"sync"

	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"golang.org/x/time/rate"
)

const TelegramPrefix = "telegram:"

// Router picks a sink by target and paces sends per target.
type Router struct {
	discord  Sink
	telegram Sink
	limit    rate.Limit
	burst    int
	logger   logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ Sink = (*Router)(nil)

// NewRouter builds a router. telegram may be nil when no bot token is configured.
func NewRouter(discord, telegram Sink, perSecond float64, burst int, log logger.Logger) *Router {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Router{
		discord:  discord,
		telegram: telegram,
		limit:    limit,
		burst:    burst,
		logger:   log.WithComponent("SinkRouter"),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (r *Router) limiter(target string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[target]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[target] = l
	}
	return l
}

func (r *Router) Send(ctx context.Context, msg Message) Outcome {
	if msg.Empty() {
		return NoContent()
	}

	next := r.discord
	if strings.HasPrefix(msg.Target, TelegramPrefix) {
		next = r.telegram
	}
	if next == nil {
		return Rejected(0, errors.Newf(errors.CodeValidation, "no sink configured for %q", msg.Target))
	}

	if err := r.limiter(msg.Target).Wait(ctx); err != nil {
		return TransportError(err)
	}

	out := next.Send(ctx, msg)
	if !out.Delivered() && out.Status != StatusNoContent {
		r.logger.Warn("Send failed", "status", out.Status.String(), "code", out.Code, "error", out.Err)
	}
	return out
}
