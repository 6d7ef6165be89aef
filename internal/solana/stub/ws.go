package stub

import (
	"context"
	"sync"

	"solana-infra-watch/internal/solana"
)

// WSClient implements solana.WSClient for testing. Notifications pushed via
// Publish fan out to every subscription regardless of filter.
type WSClient struct {
	mu     sync.Mutex
	subs   []chan solana.LogNotification
	closed bool

	// SubscribeErr, when set, fails the next SubscribeLogs call.
	SubscribeErr error
}

// NewWSClient creates a new stub WebSocket client.
func NewWSClient() *WSClient {
	return &WSClient{}
}

// SubscribeLogs registers a subscription channel.
func (c *WSClient) SubscribeLogs(_ context.Context, _ solana.LogsFilter) (<-chan solana.LogNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		err := c.SubscribeErr
		c.SubscribeErr = nil
		return nil, err
	}
	ch := make(chan solana.LogNotification, 64)
	c.subs = append(c.subs, ch)
	return ch, nil
}

// SubscriberCount returns the number of active subscriptions. Tests poll it
// to know the consumer finished subscribing before publishing.
func (c *WSClient) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Publish delivers a notification to all subscriptions.
func (c *WSClient) Publish(notif solana.LogNotification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, ch := range c.subs {
		ch <- notif
	}
}

// Close closes all subscription channels.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
	return nil
}
