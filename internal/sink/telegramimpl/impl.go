package telegramimpl

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/sink"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/formatter"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
)

const (
	maxText    = 4096
	maxCaption = 1024
)

type TelegramImpl struct {
	TgBot  *tgbotapi.BotAPI
	Logger logger.Logger
}

var _ sink.Sink = (*TelegramImpl)(nil)

func New(token string, log logger.Logger) (*TelegramImpl, error) {
	tgBot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Error("Error creating bot", "Error", err)
		return nil, errors.WrapWithCode(err, errors.CodeResource, "create telegram bot")
	}
	return NewWithBot(tgBot, log), nil
}

func NewWithBot(bot *tgbotapi.BotAPI, log logger.Logger) *TelegramImpl {
	return &TelegramImpl{
		TgBot:  bot,
		Logger: log.WithComponent("TelegramSink"),
	}
}

// ParseTarget extracts the chat id from telegram:<chat_id>.
func ParseTarget(target string) (int64, error) {
	raw, ok := strings.CutPrefix(target, sink.TelegramPrefix)
	if !ok {
		return 0, errors.Newf(errors.CodeValidation, "not a telegram target: %q", target)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeValidation, "parse telegram chat id")
	}
	return id, nil
}

// Send posts a photo or animation with caption when a file is attached,
// otherwise a MarkdownV2 text message. Only the first file is sent.
func (tg *TelegramImpl) Send(ctx context.Context, msg sink.Message) sink.Outcome {
	if msg.Empty() {
		return sink.NoContent()
	}
	if err := ctx.Err(); err != nil {
		return sink.TransportError(err)
	}

	chatID, err := ParseTarget(msg.Target)
	if err != nil {
		return sink.Rejected(0, err)
	}

	var c tgbotapi.Chattable
	if len(msg.Files) > 0 {
		file := msg.Files[0]
		caption := FormatText(msg.Embed, maxCaption)
		if strings.HasSuffix(strings.ToLower(file.Name), ".gif") {
			anim := tgbotapi.NewAnimation(chatID, tgbotapi.FilePath(file.Path))
			anim.Caption = caption
			anim.ParseMode = tgbotapi.ModeMarkdownV2
			c = anim
		} else {
			photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(file.Path))
			photo.Caption = caption
			photo.ParseMode = tgbotapi.ModeMarkdownV2
			c = photo
		}
	} else {
		text := tgbotapi.NewMessage(chatID, FormatText(msg.Embed, maxText))
		text.ParseMode = tgbotapi.ModeMarkdownV2
		c = text
	}

	if _, err := tg.TgBot.Send(c); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			return sink.Rejected(apiErr.Code, errors.WrapWithCode(err, errors.CodeDelivery, "telegram rejected message"))
		}
		return sink.TransportError(errors.WrapWithCode(err, errors.CodeDelivery, "telegram request failed"))
	}

	tg.Logger.Debug("Telegram message delivered", "chat_id", chatID, "files", len(msg.Files))
	return sink.Delivered()
}

// FormatText renders an embed as escaped MarkdownV2 within limit runes.
// Only raw text is ever cut, so escapes and entities stay balanced. When the
// fixed parts overflow, fields go first, then the title and footer shrink,
// and the body gets what is left.
func FormatText(e *sink.Embed, limit int) string {
	if e == nil {
		return ""
	}

	title := formatter.EscapeMarkdownV2(e.Title)
	footer := formatter.EscapeMarkdownV2(e.Footer)
	fields := e.Fields
	url := e.URL

	render := func(body string) string {
		var b strings.Builder
		if title != "" {
			b.WriteString("*" + title + "*\n\n")
		}
		b.WriteString(body)
		for _, f := range fields {
			b.WriteString("\n\n*" + formatter.EscapeMarkdownV2(f.Name) + "*\n" + formatter.EscapeMarkdownV2(f.Value))
		}
		if url != "" {
			b.WriteString("\n\n[" + formatter.EscapeMarkdownV2("View post") + "](")
			b.WriteString(strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(url) + ")")
		}
		if footer != "" {
			b.WriteString("\n_" + footer + "_")
		}
		return b.String()
	}
	over := func() int { return utf8.RuneCountInString(render("")) - limit }

	for len(fields) > 0 && over() > 0 {
		fields = fields[:len(fields)-1]
	}
	if n := over(); n > 0 && title != "" {
		title = fitEscaped(e.Title, utf8.RuneCountInString(title)-n)
	}
	if n := over(); n > 0 && footer != "" {
		footer = fitEscaped(e.Footer, utf8.RuneCountInString(footer)-n)
	}
	if over() > 0 {
		url = ""
	}

	return render(fitEscaped(e.Description, -over()))
}

// fitEscaped truncates raw so that its escaped form is at most budget runes.
func fitEscaped(raw string, budget int) string {
	for n := budget; n > 0; {
		out := formatter.EscapeMarkdownV2(formatter.Truncate(raw, n))
		extra := utf8.RuneCountInString(out) - budget
		if extra <= 0 {
			return out
		}
		n -= extra
	}
	return ""
}
