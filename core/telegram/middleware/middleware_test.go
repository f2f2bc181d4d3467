package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func newContext(u tele.Update) tele.Context {
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		panic(err)
	}
	return bot.NewContext(u)
}

func messageFrom(userID int64, updateID int) tele.Context {
	return newContext(tele.Update{
		ID: updateID,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID},
			Text:   "hi",
		},
	})
}

func callbackFrom(userID int64, updateID int) tele.Context {
	return newContext(tele.Update{
		ID: updateID,
		Callback: &tele.Callback{
			Sender:  &tele.User{ID: userID},
			Message: &tele.Message{Chat: &tele.Chat{ID: userID}},
			Data:    "\ffare|next",
		},
	})
}

func TestAdminOnlyMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		adminID  int64
		userID   int64
		allowed  bool
		rejected bool
	}{
		{name: "admin passes", adminID: 10, userID: 10, allowed: true},
		{name: "other user rejected", adminID: 10, userID: 11, rejected: true},
		{name: "no admin configured", adminID: 0, userID: 11, rejected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var allowed, rejected bool
			h := AdminOnlyMiddleware(AdminOptions{
				AdminID:  tt.adminID,
				OnReject: func(tele.Context) error { rejected = true; return nil },
			})(func(tele.Context) error { allowed = true; return nil })

			require.NoError(t, h(messageFrom(tt.userID, 1)))
			assert.Equal(t, tt.allowed, allowed)
			assert.Equal(t, tt.rejected, rejected)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	var handled, limited int
	h := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
	})(func(tele.Context) error { handled++; return nil })

	require.NoError(t, h(messageFrom(1, 1)))
	require.NoError(t, h(messageFrom(1, 2)))
	require.NoError(t, h(messageFrom(2, 3)))
	require.NoError(t, h(callbackFrom(1, 4)))

	assert.Equal(t, 3, handled)
	assert.Equal(t, 1, limited)
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(messageFrom(1, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	want := errors.New("plain")
	assert.ErrorIs(t, RecoverMiddleware(func(tele.Context) error { return want })(messageFrom(1, 2)), want)
}

func TestFirstReceipt(t *testing.T) {
	now := time.Now()
	assert.True(t, firstReceipt(987654, now))
	assert.False(t, firstReceipt(987654, now.Add(time.Second)))
	assert.True(t, firstReceipt(987654, now.Add(2*receiptTTL)))
}
