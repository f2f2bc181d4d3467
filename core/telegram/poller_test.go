package telegram

import (
	"testing"
	"time"

	coreconfig "github.com/m3rciful/farebot/core/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestBuildPoller(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Telegram.RunMode = coreconfig.RunModeLongpoll
	lp, ok := BuildPoller(cfg).(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, lp.Timeout)

	cfg.Telegram.LongPollTimeoutSeconds = 25
	lp = BuildPoller(cfg).(*tele.LongPoller)
	assert.Equal(t, 25*time.Second, lp.Timeout)

	cfg.Telegram.RunMode = coreconfig.RunModeWebhook
	cfg.Webhook = coreconfig.WebhookConfig{Listen: "0.0.0.0", Port: 8443, URL: "https://bot.example.com/hook"}
	wh, ok := BuildPoller(cfg).(*tele.Webhook)
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0:8443", wh.Listen)
	assert.Equal(t, "https://bot.example.com/hook", wh.Endpoint.PublicURL)
}
