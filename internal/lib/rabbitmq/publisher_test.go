package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu       sync.Mutex
	inFlight int
	overlap  bool
	err      error
	sent     []published
	closed   bool
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > 1 {
		f.overlap = true
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublishMessage(t *testing.T) {
	type testMsg struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	t.Run("success", func(t *testing.T) {
		ch := &fakeChannel{}
		require.NoError(t, PublishMessage(ch, ExchangeSubscriptions, RoutingKeySubscriptionUpdate, testMsg{ID: 1, Name: "Hello"}))

		require.Len(t, ch.sent, 1)
		got := ch.sent[0]
		assert.Equal(t, ExchangeSubscriptions, got.exchange)
		assert.Equal(t, RoutingKeySubscriptionUpdate, got.key)
		assert.Equal(t, "application/json", got.msg.ContentType)
		assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)

		var decoded testMsg
		require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
		assert.Equal(t, testMsg{ID: 1, Name: "Hello"}, decoded)
	})

	t.Run("marshal error", func(t *testing.T) {
		ch := &fakeChannel{}
		badMsg := struct {
			Ch chan int `json:"ch"`
		}{Ch: make(chan int)}

		err := PublishMessage(ch, ExchangeSubscriptions, "key", badMsg)
		require.Error(t, err)
		assert.Empty(t, ch.sent)
	})

	t.Run("channel error", func(t *testing.T) {
		ch := &fakeChannel{err: amqp.ErrClosed}
		err := PublishMessage(ch, ExchangeSubscriptions, "key", testMsg{})
		assert.ErrorIs(t, err, amqp.ErrClosed)
	})
}

func TestPublisher_SerializesPublishes(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, ExchangeSubscriptions)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, p.Publish(context.Background(), RoutingKeySubscriptionUpdate, map[string]int{"n": i}))
		}(i)
	}
	wg.Wait()

	assert.Len(t, ch.sent, 20)
	assert.False(t, ch.overlap)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublisher_CancelledContext(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, ExchangeSubscriptions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, RoutingKeySubscriptionUpdate, "x")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, ch.sent)
}

func TestGetSubscriptionQueues(t *testing.T) {
	queues := GetSubscriptionQueues()
	require.NotEmpty(t, queues)

	seen := map[string]bool{}
	for _, q := range queues {
		assert.NotEmpty(t, q.RoutingKey)
		assert.Falsef(t, seen[q.QueueName], "duplicate queue name: %s", q.QueueName)
		seen[q.QueueName] = true
	}
	assert.Equal(t, RoutingKeySubscriptionUpdate, queues[0].RoutingKey)
}
