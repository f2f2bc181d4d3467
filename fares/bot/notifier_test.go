package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tg "github.com/m3rciful/farebot/core/telegram"
	"github.com/m3rciful/farebot/fares/tracker"

	tele "gopkg.in/telebot.v4"
)

type recordingQueue struct {
	actions []string
	jobs    []func() error
}

func (q *recordingQueue) Enqueue(_ context.Context, action, _ string, run func() error) error {
	q.actions = append(q.actions, action)
	q.jobs = append(q.jobs, run)
	return nil
}

func priceEvent() tracker.PriceChanged {
	return tracker.PriceChanged{
		Ticket:      tracker.Ticket{ChatID: 77, City: "Tashkent"},
		OldPrice:    decimal.NewFromInt(500),
		NewPrice:    decimal.NewFromInt(480),
		Direction:   tracker.Decreased,
		BookingLink: "https://book/1",
	}
}

func TestNotifierUnbound(t *testing.T) {
	n := NewNotifier()
	require.ErrorIs(t, n.NotifyPriceChanged(context.Background(), priceEvent()), ErrNotReady)

	n.Bind(tg.Runtime{})
	require.ErrorIs(t, n.NotifyPriceChanged(context.Background(), priceEvent()), ErrNotReady)
}

func TestNotifierSendsDirectly(t *testing.T) {
	api := newFakeAPI(t)
	n := NewNotifier()
	n.BindSender(api.bot(t), nil)

	require.NoError(t, n.NotifyPriceChanged(context.Background(), priceEvent()))
	calls := api.sent()
	require.Len(t, calls, 1)
	assert.Equal(t, "sendMessage", calls[0].Method)
	assert.Equal(t, "77", calls[0].Params["chat_id"])
	assert.Contains(t, calls[0].Params["text"], "has decreased to €480")
	assert.Equal(t, "HTML", calls[0].Params["parse_mode"])

	n.Unbind()
	require.ErrorIs(t, n.NotifyPriceChanged(context.Background(), priceEvent()), ErrNotReady)
}

func TestNotifierUsesQueue(t *testing.T) {
	api := newFakeAPI(t)
	q := &recordingQueue{}
	n := NewNotifier()
	n.BindSender(api.bot(t), q)

	require.NoError(t, n.NotifyPriceChanged(context.Background(), priceEvent()))
	assert.Equal(t, []string{"notify.price"}, q.actions)
	assert.Empty(t, api.sent(), "nothing is sent until the job runs")

	require.NoError(t, q.jobs[0]())
	assert.Len(t, api.sent(), 1)
}

type failingSender struct{}

func (failingSender) Send(tele.Recipient, interface{}, ...interface{}) (*tele.Message, error) {
	return nil, errors.New("blocked")
}

func TestNotifierReportsSendError(t *testing.T) {
	n := NewNotifier()
	n.BindSender(failingSender{}, nil)
	require.EqualError(t, n.NotifyPriceChanged(context.Background(), priceEvent()), "blocked")
}
