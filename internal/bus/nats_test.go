package bus

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAppliesHandlerTimeout(t *testing.T) {
	c := &Client{}
	c.SetHandlerTimeout(250 * time.Millisecond)

	var (
		gotData     []byte
		gotDeadline time.Time
		hasDeadline bool
	)
	h := c.wrap(func(ctx context.Context, data []byte) {
		gotData = data
		gotDeadline, hasDeadline = ctx.Deadline()
	})

	h(&nats.Msg{Subject: "islands.photo.changed", Data: []byte(`{"job_id":"1"}`)})

	require.True(t, hasDeadline)
	assert.Equal(t, `{"job_id":"1"}`, string(gotData))
	assert.WithinDuration(t, time.Now().Add(250*time.Millisecond), gotDeadline, 250*time.Millisecond)
}

func TestWrapDefaultsTimeout(t *testing.T) {
	c := &Client{}
	c.SetHandlerTimeout(-1)

	var deadline time.Time
	c.wrap(func(ctx context.Context, _ []byte) {
		deadline, _ = ctx.Deadline()
	})(&nats.Msg{})

	assert.WithinDuration(t, time.Now().Add(DefaultHandlerTimeout), deadline, time.Second)
}

func TestWrapCancelsAfterReturn(t *testing.T) {
	c := &Client{handlerTimeout: time.Minute}
	var captured context.Context
	c.wrap(func(ctx context.Context, _ []byte) { captured = ctx })(&nats.Msg{})

	require.NotNil(t, captured)
	assert.ErrorIs(t, captured.Err(), context.Canceled)
}

func TestCloseWithoutConnection(t *testing.T) {
	assert.NotPanics(t, func() { (&Client{}).Close() })
}
