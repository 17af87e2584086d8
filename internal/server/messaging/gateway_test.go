package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/rollcall/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func TestRedisGateway_PublishToTopic(t *testing.T) {
	p := &fakePublisher{}
	g := NewRedisGateway(p, "")

	err := g.PublishToTopic(context.Background(), "all_users",
		Notification{Title: "New Event Added!", Body: "Check out the new event: Reunion"},
		map[string]string{"screen": "events_page", "eventId": "e1"})
	require.NoError(t, err)

	assert.Equal(t, "rollcall:push:topic:all_users", p.channel)

	var m Message
	require.NoError(t, json.Unmarshal(p.message, &m))
	assert.Equal(t, "all_users", m.Topic)
	assert.Equal(t, DefaultSound, m.Notification.Sound)
	assert.Equal(t, "events_page", m.Data["screen"])
}

func TestRedisGateway_PublishToDevice(t *testing.T) {
	p := &fakePublisher{}
	g := NewRedisGateway(p, "app:")

	require.NoError(t, g.PublishToDevice(context.Background(), "tok-1", Notification{Title: "t", Sound: "chime"}, nil))
	assert.Equal(t, "app:device:tok-1", p.channel)

	var m Message
	require.NoError(t, json.Unmarshal(p.message, &m))
	assert.Equal(t, "tok-1", m.Token)
	assert.Equal(t, "chime", m.Notification.Sound)
}

func TestRedisGateway_Error(t *testing.T) {
	p := &fakePublisher{err: errors.New("connection reset")}
	err := NewRedisGateway(p, "").PublishToTopic(context.Background(), "all_users", Notification{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestLogGateway(t *testing.T) {
	var buf bytes.Buffer
	g := NewLogGateway(logging.NewJSON(&buf, "info"))

	require.NoError(t, g.PublishToTopic(context.Background(), "all_users", Notification{Title: "hello"}, nil))
	require.NoError(t, g.PublishToDevice(context.Background(), "secret-token", Notification{Title: "hi"}, nil))

	out := buf.String()
	assert.Contains(t, out, "all_users")
	assert.Contains(t, out, "hello")
	assert.False(t, strings.Contains(out, "secret-token"), "device tokens are not logged")
}

type countingGateway struct{ n int }

func (c *countingGateway) PublishToTopic(context.Context, string, Notification, map[string]string) error {
	c.n++
	return nil
}
func (c *countingGateway) PublishToDevice(context.Context, string, Notification, map[string]string) error {
	c.n++
	return nil
}

func TestRateLimited(t *testing.T) {
	next := &countingGateway{}
	g := NewRateLimited(next, 1, 1)

	require.NoError(t, g.PublishToTopic(context.Background(), "t", Notification{}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := g.PublishToDevice(ctx, "tok", Notification{}, nil)
	assert.Error(t, err, "second send must wait past the deadline")
	assert.Equal(t, 1, next.n)
}
