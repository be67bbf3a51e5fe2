package client

import (
	"context"
	"time"
)

const (
	DefaultChatsInterval    = 30 * time.Second
	DefaultMessagesInterval = 5 * time.Second
)

// FetchFunc performs one poll. A non-zero duration replaces the polling
// interval, which lets the server tune the cadence.
type FetchFunc func(ctx context.Context) (time.Duration, error)

// Poller runs a fetch immediately, then on every tick and on every Refetch.
// Failed fetches are reported and retried on the next tick.
type Poller struct {
	interval time.Duration
	fetch    FetchFunc
	onError  func(error)
	kick     chan struct{}
}

func NewPoller(interval time.Duration, fetch FetchFunc, onError func(error)) *Poller {
	if onError == nil {
		onError = func(error) {}
	}
	return &Poller{
		interval: interval,
		fetch:    fetch,
		onError:  onError,
		kick:     make(chan struct{}, 1),
	}
}

// Refetch asks for a fetch without waiting for the next tick. Calls made
// while a refetch is already pending are merged.
func (p *Poller) Refetch() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Poller) poll(ctx context.Context, ticker *time.Ticker) {
	next, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.onError(err)
		}
		return
	}
	if next > 0 && next != p.interval {
		p.interval = next
		ticker.Reset(next)
	}
}

// Run polls until ctx is cancelled and then returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx, ticker)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx, ticker)
		case <-p.kick:
			p.poll(ctx, ticker)
		}
	}
}

// ChatList keeps the chat list view fresh.
type ChatList struct {
	*Poller
}

func (c *Client) WatchChats(onChats func([]ChatPreview), onError func(error)) *ChatList {
	fetch := func(ctx context.Context) (time.Duration, error) {
		page, err := c.ListChats(ctx)
		if err != nil {
			return 0, err
		}
		onChats(page.Chats)
		return page.PollInterval, nil
	}
	return &ChatList{Poller: NewPoller(DefaultChatsInterval, fetch, onError)}
}

// Conversation keeps an open direct or group conversation fresh. Polling a
// direct conversation is also what marks its incoming messages read.
type Conversation struct {
	*Poller
	send func(ctx context.Context, content, image string) (*Message, error)
}

// Send posts a message and refetches the conversation right away so the
// sender sees it without waiting for the next tick.
func (v *Conversation) Send(ctx context.Context, content string, image string) (*Message, error) {
	msg, err := v.send(ctx, content, image)
	if err != nil {
		return nil, err
	}
	v.Refetch()
	return msg, nil
}

func watch(list func(ctx context.Context) (*MessagesPage, error), onMessages func([]Message)) FetchFunc {
	return func(ctx context.Context) (time.Duration, error) {
		page, err := list(ctx)
		if err != nil {
			return 0, err
		}
		onMessages(page.Messages)
		return page.PollInterval, nil
	}
}

func (c *Client) WatchChat(chatID string, onMessages func([]Message), onError func(error)) *Conversation {
	list := func(ctx context.Context) (*MessagesPage, error) { return c.ListMessages(ctx, chatID) }
	return &Conversation{
		Poller: NewPoller(DefaultMessagesInterval, watch(list, onMessages), onError),
		send: func(ctx context.Context, content, image string) (*Message, error) {
			return c.SendMessage(ctx, chatID, content, image)
		},
	}
}

func (c *Client) WatchGroup(groupID string, onMessages func([]Message), onError func(error)) *Conversation {
	list := func(ctx context.Context) (*MessagesPage, error) { return c.ListGroupMessages(ctx, groupID) }
	return &Conversation{
		Poller: NewPoller(DefaultMessagesInterval, watch(list, onMessages), onError),
		send: func(ctx context.Context, content, image string) (*Message, error) {
			return c.SendGroupMessage(ctx, groupID, content, image)
		},
	}
}
