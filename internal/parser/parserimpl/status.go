package parserimpl

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"time"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/render"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/sink"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"github.com/tidwall/gjson"
)

type statusMessages struct {
	Emojis []string
	Texts  []string
	Titles []string
}

var defaultStatusMessages = statusMessages{
	Emojis: []string{"(✿ ♥‿♥)", "(｡♥‿♥｡)"},
	Texts:  []string{"ぴっかぴかに動いてるよ！", "全システム、ばっちりだよ！"},
	Titles: []string{"ぴょんぴょんアップデート！🐰", "ちゅるちゅるスクリプト！🍜"},
}

// loadStatusMessages reads kawaii_emojis, kawaii_texts and kawaii_titles from path.
// Missing or empty lists keep the built-in set.
func loadStatusMessages(path string, log logger.Logger) statusMessages {
	msgs := defaultStatusMessages
	if path == "" {
		return msgs
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("Status messages file unreadable, using defaults", "path", path, "error", err)
		return msgs
	}
	if !gjson.ValidBytes(data) {
		log.Warn("Status messages file is not valid JSON, using defaults", "path", path)
		return msgs
	}

	pick := func(key string, fallback []string) []string {
		var out []string
		for _, v := range gjson.GetBytes(data, key).Array() {
			if s := v.String(); s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return fallback
		}
		return out
	}
	msgs.Emojis = pick("kawaii_emojis", msgs.Emojis)
	msgs.Texts = pick("kawaii_texts", msgs.Texts)
	msgs.Titles = pick("kawaii_titles", msgs.Titles)
	return msgs
}

func oneOf(xs []string) string {
	return xs[rand.IntN(len(xs))]
}

func machineInfo() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s %s", host, runtime.GOARCH)
}

// StatusMessage builds the heartbeat embed.
func (p *ParserImpl) StatusMessage() sink.Message {
	loc, err := time.LoadLocation(p.Config.App.Timezone)
	if err != nil {
		loc = time.Local
	}
	now := p.Clock.Now()

	return sink.Message{
		Target: p.Config.Status.MessageWebhook,
		Embed: &sink.Embed{
			Title: oneOf(p.status.Titles),
			Description: fmt.Sprintf("%s %s @ %s -- %s",
				oneOf(p.status.Emojis),
				oneOf(p.status.Texts),
				now.In(loc).Format("2006-01-02 15:04:05 MST"),
				machineInfo(),
			),
			Timestamp: now,
			Color:     render.EmbedColor,
		},
	}
}

// SendStatus posts the heartbeat to the status sink.
func (p *ParserImpl) SendStatus(ctx context.Context) error {
	out := p.Sink.Send(ctx, p.StatusMessage())
	if !out.Delivered() {
		if out.Err != nil {
			return errors.WrapWithCode(out.Err, errors.CodeDelivery, "send status")
		}
		return errors.Newf(errors.CodeDelivery, "send status: %s", out.String())
	}
	p.Logger.Debug("Status sent")
	return nil
}
