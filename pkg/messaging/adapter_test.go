package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	channels []string
	messages []interface{}
	err      error
}

func (f *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	f.channels = append(f.channels, channel)
	f.messages = append(f.messages, message)
	return f.err
}

func (f *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (f *fakeBroker) Close() error { return nil }

func TestBrokerPublisherWrapsEvents(t *testing.T) {
	b := &fakeBroker{}
	p := NewBrokerPublisher(b, "booking")

	payload := json.RawMessage(`{"reservation":{"id":"x"}}`)
	require.NoError(t, p.Publish(context.Background(), "reservation.confirmed", payload))

	assert.Equal(t, []string{"booking.reservation.confirmed"}, b.channels)
	body, err := json.Marshal(b.messages[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reservation.confirmed","payload":{"reservation":{"id":"x"}}}`, string(body))
}

func TestBrokerPublisherWithoutPrefix(t *testing.T) {
	p := NewBrokerPublisher(&fakeBroker{}, "")
	assert.Equal(t, "reservation.cancelled", p.Channel("reservation.cancelled"))
}

func TestBrokerPublisherPropagatesErrors(t *testing.T) {
	p := NewBrokerPublisher(&fakeBroker{err: errors.New("down")}, "booking")
	assert.Error(t, p.Publish(context.Background(), "x", nil))
}
