package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgemunganga/shop-backend/internal/events"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestDispatchPublishesJSON(t *testing.T) {
	log, _ := test.NewNullLogger()
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, exchange: "shop.events", log: log}

	id := uuid.New()
	require.NoError(t, p.Dispatch(context.Background(), events.StatusChanged{OrderID: id, From: "PENDING", To: "PAID"}))

	require.Len(t, ch.sent, 1)
	got := ch.sent[0]
	assert.Equal(t, "shop.events", got.exchange)
	assert.Equal(t, events.TypeOrderStatusChanged, got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, id.String(), body["order_id"])
	assert.Equal(t, "PAID", body["to_status"])
}

func TestDispatchWrapsPublishError(t *testing.T) {
	log, _ := test.NewNullLogger()
	broken := errors.New("channel closed")
	p := &Publisher{ch: &fakeChannel{err: broken}, exchange: "x", log: log}

	err := p.Dispatch(context.Background(), events.StockAdjusted{ProductID: uuid.New(), Delta: -1})
	assert.ErrorIs(t, err, broken)
	assert.Contains(t, err.Error(), events.TypeStockAdjusted)
}

func TestCloseWithoutConnection(t *testing.T) {
	log, _ := test.NewNullLogger()
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, log: log}
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
