// Package redispubsub adapts github.com/redis/go-redis/v9 to the
// fanout.PubSubClient interface. It keeps two independent connections, one
// for PUBLISH and one for SUBSCRIBE/UNSUBSCRIBE, because a connection in
// subscriber mode cannot issue ordinary commands (spec §4.7, §9).
package redispubsub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// SubscribeReply is invoked once per confirmed SUBSCRIBE, in the order the
// commands were issued, and MessageReceived once per published message on a
// subscribed channel. Both are driven from Client's single receive loop, so
// callers must not block inside them.
type SubscribeReply func(channel string)
type MessageReceived func(channel, payload string)

// Client owns the publish connection and the subscribe connection, and runs
// the blocking receive loop that turns Redis replies into fanout.Table
// callbacks.
type Client struct {
	log *slog.Logger

	pub *redis.Client
	sub *redis.Client
	ps  *redis.PubSub

	onSubscribeReply SubscribeReply
	onMessage        MessageReceived
}

// Options bundles the address and callbacks a Client needs to run.
type Options struct {
	Addr             string
	OnSubscribeReply SubscribeReply
	OnMessage        MessageReceived
}

// New creates the publish and subscribe clients and opens an empty
// subscription on the subscribe client; it reports no connection errors
// itself (spec §4.7: subscriptions are
// added and removed dynamically, never fixed up front).
func New(opts Options, log *slog.Logger) *Client {
	pub := redis.NewClient(&redis.Options{Addr: opts.Addr})
	sub := redis.NewClient(&redis.Options{Addr: opts.Addr})
	return &Client{
		log:              log,
		pub:              pub,
		sub:              sub,
		ps:               sub.Subscribe(context.Background()),
		onSubscribeReply: opts.OnSubscribeReply,
		onMessage:        opts.OnMessage,
	}
}

// Publish issues a PUBLISH on the publish connection.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.pub.Publish(ctx, channel, payload).Err()
}

// Subscribe adds channel to the subscribe connection's subscription set.
// The reply arrives asynchronously through Run's receive loop, which invokes
// onSubscribeReply.
func (c *Client) Subscribe(ctx context.Context, channel string) error {
	return c.ps.Subscribe(ctx, channel)
}

// Unsubscribe removes channel from the subscription set.
func (c *Client) Unsubscribe(ctx context.Context, channel string) error {
	return c.ps.Unsubscribe(ctx, channel)
}

// Run drives the receive loop until ctx is cancelled or the connection
// fails. It is meant to run in its own goroutine, coordinated by an
// errgroup alongside the accept loop (spec §9).
func (c *Client) Run(ctx context.Context) error {
	for {
		reply, err := c.ps.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("redispubsub: receive: %w", err)
		}
		switch m := reply.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" && c.onSubscribeReply != nil {
				c.onSubscribeReply(m.Channel)
			}
		case *redis.Message:
			if c.onMessage != nil {
				c.onMessage(m.Channel, m.Payload)
			}
		case *redis.Pong:
			// keepalive, nothing to do
		default:
			c.log.Warn("redispubsub: unexpected reply type", "type", fmt.Sprintf("%T", reply))
		}
	}
}

// Close tears down both connections.
func (c *Client) Close() error {
	err1 := c.ps.Close()
	err2 := c.sub.Close()
	err3 := c.pub.Close()
	if err1 != nil {
		return err1
	}
	if err2 != nil {
		return err2
	}
	return err3
}
