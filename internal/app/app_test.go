package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/metrics"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/config"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHttpServerRoutes(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Port = 8080
	srv := newHttpServer(logger.Nop(), cfg)
	assert.Equal(t, ":8080", srv.Addr)

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	metrics.SeenCleaned.Add(0)
	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "weibo_seen_cleaned_total")
}

func TestNewSinkWithoutTelegram(t *testing.T) {
	cfg := &config.Config{}
	cfg.Status.MessageWebhook = "https://discord.com/api/webhooks/1/abc"

	s, err := newSink(cfg, logger.Nop())
	require.NoError(t, err)
	assert.NotNil(t, s)
}
