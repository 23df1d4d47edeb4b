package domain

import "github.com/orgball2608/weibo-parser-discord-bot/pkg/config"

const DefaultLinkTemplate = "https://weibo.com/detail/{id}"

// Endpoint is the read-only per-account destination and presentation settings.
type Endpoint struct {
	Name           string
	ProfileURL     string
	SinkURL        string
	Title          string
	AvatarURL      string
	LinkTemplate   string
	Disabled       bool
	DisabledReason string
}

func NewEndpoint(acc config.Account) Endpoint {
	tmpl := acc.LinkTemplate
	if tmpl == "" {
		tmpl = DefaultLinkTemplate
	}
	return Endpoint{
		Name:           acc.Name,
		ProfileURL:     acc.ProfileURL,
		SinkURL:        acc.MessageWebhook,
		Title:          acc.Title,
		AvatarURL:      acc.AvatarURL,
		LinkTemplate:   tmpl,
		Disabled:       acc.Disabled,
		DisabledReason: acc.DisabledReason,
	}
}
