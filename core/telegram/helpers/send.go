package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/farebot/core/logger"
	"github.com/m3rciful/farebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by the send helpers.
// Passing nil makes the helpers send synchronously.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

// sendAsync queues run on the dispatcher. A saturated or closed queue falls
// back to a synchronous call so replies are not silently dropped.
func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := globalDispatcher.Load()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	err := disp.Enqueue(ctx, action, endpoint, run)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("err", err.Error()),
		)
		return run()
	default:
		return err
	}
}

// SendText sends plain text to the current chat.
func SendText(c tele.Context, text string, opts ...any) error {
	return sendAsync(c, "send.text", "sendMessage", func() error {
		return c.Send(text, opts...)
	})
}

// Outgoing is one message of a batch.
type Outgoing struct {
	Text string
	Opts []any
}

// SendBatch sends msgs in order as a single queued job so they cannot be
// reordered by the worker pool. A retried job resumes at the first message
// that was not delivered.
func SendBatch(c tele.Context, msgs ...Outgoing) error {
	next := 0
	return sendAsync(c, "send.batch", "sendMessage", func() error {
		for ; next < len(msgs); next++ {
			if err := c.Send(msgs[next].Text, msgs[next].Opts...); err != nil {
				return err
			}
		}
		return nil
	})
}

// SendMD sends Markdown text with an optional reply markup.
func SendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	return SendText(c, text, markdownOptions(markup))
}

// EditOrSendText edits the message the callback came from, or sends a new
// one when there is nothing to edit.
func EditOrSendText(c tele.Context, text string, opts ...any) error {
	return sendAsync(c, "send.edit", "editMessageText", func() error {
		return c.EditOrSend(text, opts...)
	})
}

func markdownOptions(markup []*tele.ReplyMarkup) *tele.SendOptions {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return opts
}
