package fx

import (
	"github.com/orgball2608/weibo-parser-discord-bot/internal/repositories/seen"
	"go.uber.org/fx"
)

var Module = fx.Options(
	seen.Module,
)
