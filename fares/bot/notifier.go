package bot

import (
	"context"
	"errors"
	"sync/atomic"

	tg "github.com/m3rciful/farebot/core/telegram"
	"github.com/m3rciful/farebot/fares/tracker"

	tele "gopkg.in/telebot.v4"
)

// ErrNotReady is returned by the notifier before the bot is running.
var ErrNotReady = errors.New("bot: notifier not bound to a running bot")

// Sender is the part of tele.API the notifier needs.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Queue runs sends in the background.
type Queue interface {
	Enqueue(ctx context.Context, action, endpoint string, run func() error) error
}

type binding struct {
	sender Sender
	queue  Queue
}

// Notifier delivers price alerts. It implements tracker.Notifier and is
// bound to the bot once Telegram is running.
type Notifier struct {
	b atomic.Pointer[binding]
}

// NewNotifier returns an unbound Notifier.
func NewNotifier() *Notifier { return &Notifier{} }

// Bind attaches the running bot and its dispatcher.
func (n *Notifier) Bind(rt tg.Runtime) {
	if rt.Bot == nil {
		n.Unbind()
		return
	}
	var q Queue
	if rt.Dispatcher != nil {
		q = rt.Dispatcher
	}
	n.BindSender(rt.Bot, q)
}

// BindSender attaches s directly. A nil q sends synchronously.
func (n *Notifier) BindSender(s Sender, q Queue) {
	if s == nil {
		n.b.Store(nil)
		return
	}
	n.b.Store(&binding{sender: s, queue: q})
}

// Unbind detaches the bot; later alerts fail with ErrNotReady.
func (n *Notifier) Unbind() { n.b.Store(nil) }

// NotifyPriceChanged sends the alert to the ticket's chat.
func (n *Notifier) NotifyPriceChanged(ctx context.Context, ev tracker.PriceChanged) error {
	b := n.b.Load()
	if b == nil {
		return ErrNotReady
	}
	chat := tele.ChatID(ev.Ticket.ChatID)
	text := priceAlertText(ev)
	run := func() error {
		_, err := b.sender.Send(chat, text, htmlOpts(nil))
		return err
	}
	if b.queue == nil {
		return run()
	}
	return b.queue.Enqueue(ctx, "notify.price", "sendMessage", run)
}
