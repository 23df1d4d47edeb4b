package discordimpl

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/sink"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/formatter"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
)

// Discord hard limits, in runes.
const (
	maxTitle       = 256
	maxDescription = 4096
	maxFieldName   = 256
	maxFieldValue  = 1024
	maxFooter      = 2048
)

type DiscordImpl struct {
	session *discordgo.Session
	logger  logger.Logger
}

var _ sink.Sink = (*DiscordImpl)(nil)

// New creates a webhook-only client; no bot token or gateway connection is used.
func New(client *http.Client, log logger.Logger) (*DiscordImpl, error) {
	session, err := discordgo.New("")
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeResource, "create discord session")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	session.Client = client
	// a failed send is reported, never repeated within the scan
	session.MaxRestRetries = 0

	return &DiscordImpl{
		session: session,
		logger:  log.WithComponent("DiscordSink"),
	}, nil
}

// ParseWebhookURL splits https://discord.com/api/webhooks/{id}/{token}.
func ParseWebhookURL(target string) (id, token string, err error) {
	for _, prefix := range []string{"https://discord.com/api/webhooks/", "https://discordapp.com/api/webhooks/"} {
		rest, ok := strings.CutPrefix(target, prefix)
		if !ok {
			continue
		}
		parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return parts[0], parts[1], nil
		}
	}
	return "", "", errors.Newf(errors.CodeValidation, "not a discord webhook url")
}

func (d *DiscordImpl) Send(ctx context.Context, msg sink.Message) sink.Outcome {
	if msg.Empty() {
		return sink.NoContent()
	}

	id, token, err := ParseWebhookURL(msg.Target)
	if err != nil {
		return sink.Rejected(0, err)
	}

	params := &discordgo.WebhookParams{
		Username:  msg.Username,
		AvatarURL: msg.AvatarURL,
	}
	if msg.Embed != nil {
		params.Embeds = []*discordgo.MessageEmbed{toEmbed(msg.Embed)}
	}

	for _, f := range msg.Files {
		fh, err := os.Open(f.Path)
		if err != nil {
			return sink.Rejected(0, errors.WrapWithCode(err, errors.CodeResource, "open attachment"))
		}
		defer fh.Close()
		params.Files = append(params.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      fh,
		})
	}

	if _, err := d.session.WebhookExecute(id, token, true, params, discordgo.WithContext(ctx)); err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil {
			return sink.Rejected(restErr.Response.StatusCode,
				errors.WrapWithCode(err, errors.CodeDelivery, "webhook rejected message"))
		}
		return sink.TransportError(errors.WrapWithCode(err, errors.CodeDelivery, "webhook request failed"))
	}

	d.logger.Debug("Webhook message delivered", "webhook_id", id, "files", len(msg.Files))
	return sink.Delivered()
}

func toEmbed(e *sink.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       formatter.Truncate(e.Title, maxTitle),
		Description: formatter.Truncate(e.Description, maxDescription),
		URL:         e.URL,
		Color:       e.Color,
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: formatter.Truncate(e.Footer, maxFooter)}
	}
	if e.ImageFile != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + e.ImageFile}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   formatter.Truncate(f.Name, maxFieldName),
			Value:  formatter.Truncate(f.Value, maxFieldValue),
			Inline: f.Inline,
		})
	}
	return out
}
