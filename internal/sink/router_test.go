package sink_test

import (
	"context"
	"testing"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/sink"
	mock_sink "github.com/orgball2608/weibo-parser-discord-bot/internal/sink/mocks"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestRouterDispatchesByTarget(t *testing.T) {
	ctrl := gomock.NewController(t)
	discord := mock_sink.NewMockSink(ctrl)
	telegram := mock_sink.NewMockSink(ctrl)
	router := sink.NewRouter(discord, telegram, 0, 1, logger.Nop())

	dmsg := sink.Message{Target: "https://discord.com/api/webhooks/1/a", Embed: &sink.Embed{Title: "x"}}
	tmsg := sink.Message{Target: "telegram:-100", Embed: &sink.Embed{Title: "y"}}

	discord.EXPECT().Send(gomock.Any(), dmsg).Return(sink.Delivered())
	telegram.EXPECT().Send(gomock.Any(), tmsg).Return(sink.Rejected(400, errors.New("chat not found")))

	assert.True(t, router.Send(context.Background(), dmsg).Delivered())

	out := router.Send(context.Background(), tmsg)
	assert.Equal(t, sink.StatusRejected, out.Status)
	assert.Equal(t, 400, out.Code)
}

func TestRouterEmptyMessageIsNoContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	discord := mock_sink.NewMockSink(ctrl)
	router := sink.NewRouter(discord, nil, 1, 1, logger.Nop())

	out := router.Send(context.Background(), sink.Message{Target: "https://discord.com/api/webhooks/1/a"})
	assert.Equal(t, sink.StatusNoContent, out.Status)
}

func TestRouterWithoutTelegramRejects(t *testing.T) {
	ctrl := gomock.NewController(t)
	router := sink.NewRouter(mock_sink.NewMockSink(ctrl), nil, 1, 1, logger.Nop())

	out := router.Send(context.Background(), sink.Message{Target: "telegram:1", Embed: &sink.Embed{}})
	assert.Equal(t, sink.StatusRejected, out.Status)
	assert.True(t, errors.IsValidation(out.Err))
}

func TestRouterPacingHonoursCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	discord := mock_sink.NewMockSink(ctrl)
	router := sink.NewRouter(discord, nil, 0.001, 1, logger.Nop())
	msg := sink.Message{Target: "https://discord.com/api/webhooks/1/a", Embed: &sink.Embed{}}

	discord.EXPECT().Send(gomock.Any(), msg).Return(sink.Delivered()).Times(1)
	assert.True(t, router.Send(context.Background(), msg).Delivered())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := router.Send(ctx, msg)
	assert.Equal(t, sink.StatusTransportError, out.Status)
}
