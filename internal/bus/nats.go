// internal/bus/nats.go
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultHandlerTimeout bounds a single message handler invocation.
const DefaultHandlerTimeout = 30 * time.Second

type Client struct {
	nc             *nats.Conn
	handlerTimeout time.Duration
}

func Connect(url string, opts ...nats.Option) (*Client, error) {
	base := []nats.Option{
		nats.Name("island-photos"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
	}
	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc, handlerTimeout: DefaultHandlerTimeout}, nil
}

// SetHandlerTimeout changes the per-message context deadline.
func (c *Client) SetHandlerTimeout(d time.Duration) {
	if d > 0 {
		c.handlerTimeout = d
	}
}

func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// QueueSubscribeJSON delivers each message to one member of queue.
func (c *Client) QueueSubscribeJSON(subject, queue string, handler func(ctx context.Context, data []byte)) (*nats.Subscription, error) {
	return c.nc.QueueSubscribe(subject, queue, c.wrap(handler))
}

func (c *Client) wrap(handler func(ctx context.Context, data []byte)) nats.MsgHandler {
	timeout := c.handlerTimeout
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}
	return func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		handler(ctx, msg.Data)
	}
}
