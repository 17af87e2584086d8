// Package messaging delivers push notifications to topics and devices.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/rollcall/internal/logging"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// DefaultSound is attached to notifications that do not set one.
const DefaultSound = "default"

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound"`
}

// Message is the envelope published to delivery workers.
type Message struct {
	Topic        string            `json:"topic,omitempty"`
	Token        string            `json:"token,omitempty"`
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

func newMessage(n Notification, data map[string]string) Message {
	if n.Sound == "" {
		n.Sound = DefaultSound
	}
	return Message{Notification: n, Data: data}
}

// Gateway sends notifications.
type Gateway interface {
	PublishToTopic(ctx context.Context, topic string, n Notification, data map[string]string) error
	PublishToDevice(ctx context.Context, token string, n Notification, data map[string]string) error
}

// Publisher is the subset of go-redis used by RedisGateway.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisGateway publishes messages as JSON on "<prefix>topic:<name>" and
// "<prefix>device:<token>" channels, where delivery workers forward them to
// the push provider.
type RedisGateway struct {
	client Publisher
	prefix string
}

const DefaultChannelPrefix = "rollcall:push:"

func NewRedisGateway(client Publisher, prefix string) *RedisGateway {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisGateway{client: client, prefix: prefix}
}

func (g *RedisGateway) publish(ctx context.Context, channel string, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := g.client.Publish(ctx, g.prefix+channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

func (g *RedisGateway) PublishToTopic(ctx context.Context, topic string, n Notification, data map[string]string) error {
	m := newMessage(n, data)
	m.Topic = topic
	return g.publish(ctx, "topic:"+topic, m)
}

func (g *RedisGateway) PublishToDevice(ctx context.Context, token string, n Notification, data map[string]string) error {
	m := newMessage(n, data)
	m.Token = token
	return g.publish(ctx, "device:"+token, m)
}

// LogGateway only logs what would have been sent. Used for local runs.
type LogGateway struct {
	logger logging.Logger
}

func NewLogGateway(l logging.Logger) *LogGateway {
	return &LogGateway{logger: l.With("module", "messaging")}
}

func (g *LogGateway) PublishToTopic(ctx context.Context, topic string, n Notification, data map[string]string) error {
	m := newMessage(n, data)
	g.logger.Info(ctx, "push to topic", "topic", topic, "title", m.Notification.Title, "body", m.Notification.Body, "data", m.Data)
	return nil
}

func (g *LogGateway) PublishToDevice(ctx context.Context, token string, n Notification, data map[string]string) error {
	m := newMessage(n, data)
	g.logger.Info(ctx, "push to device", "title", m.Notification.Title, "body", m.Notification.Body, "data", m.Data)
	return nil
}

// RateLimited wraps a gateway so that sends wait for the limiter. A send
// whose context ends while waiting fails with the context error.
type RateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

func NewRateLimited(next Gateway, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) PublishToTopic(ctx context.Context, topic string, n Notification, data map[string]string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.PublishToTopic(ctx, topic, n, data)
}

func (r *RateLimited) PublishToDevice(ctx context.Context, token string, n Notification, data map[string]string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.PublishToDevice(ctx, token, n, data)
}
