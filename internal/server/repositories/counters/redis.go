package counters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/idalloc"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisKeyPrefix = "rollcall:counter:"

// Lua replies used to report refusals from scripts.
const (
	replyPolicyMismatch = "POLICY_MISMATCH"
	replyWouldLower     = "WOULD_LOWER"
)

// incrementScript checks the recorded policy and increments in one step.
var incrementScript = redis.NewScript(`
local policy = redis.call('GET', KEYS[2])
if policy and policy ~= ARGV[1] then
	return redis.error_reply('POLICY_MISMATCH')
end
if not policy then
	redis.call('SET', KEYS[2], ARGV[1])
end
return redis.call('INCR', KEYS[1])
`)

var seedScript = redis.NewScript(`
local policy = redis.call('GET', KEYS[2])
if policy and policy ~= ARGV[1] then
	return redis.error_reply('POLICY_MISMATCH')
end
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local target = tonumber(ARGV[2])
if policy and current > target then
	return redis.error_reply('WOULD_LOWER')
end
redis.call('SET', KEYS[2], ARGV[1])
redis.call('SET', KEYS[1], ARGV[2])
return target
`)

// RedisClient is the subset of go-redis used by RedisStore.
type RedisClient interface {
	redis.Scripter
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
}

// RedisStore keeps each namespace as two keys: the counter value and its
// encoded policy. Increments run as a Lua script, so policy check and INCR
// are atomic; compare-and-swap uses WATCH/MULTI/EXEC.
type RedisStore struct {
	client    RedisClient
	keyPrefix string
}

func NewRedisStore(client RedisClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

var _ idalloc.AtomicStore = (*RedisStore)(nil)
var _ idalloc.TxStore = (*RedisStore)(nil)

func (s *RedisStore) keys(namespace string) []string {
	k := s.keyPrefix + namespace
	return []string{k, k + ":policy"}
}

func encodePolicy(p idalloc.Policy) string {
	return strconv.Itoa(p.PadWidth) + "|" + p.Prefix
}

func decodePolicy(v string) (idalloc.Policy, error) {
	width, prefix, ok := strings.Cut(v, "|")
	if !ok {
		return idalloc.Policy{}, fmt.Errorf("malformed counter policy %q", v)
	}
	w, err := strconv.Atoi(width)
	if err != nil {
		return idalloc.Policy{}, fmt.Errorf("malformed counter policy %q: %w", v, err)
	}
	return idalloc.Policy{Prefix: prefix, PadWidth: w}, nil
}

func scriptError(err error) error {
	switch {
	case err == nil:
		return nil
	case strings.Contains(err.Error(), replyPolicyMismatch):
		return idalloc.ErrPolicyMismatch
	case strings.Contains(err.Error(), replyWouldLower):
		return fmt.Errorf("%w: counter would be lowered", common.ErrInvalidArgument)
	}
	return fmt.Errorf("redis error: %w", err)
}

func (s *RedisStore) Load(ctx context.Context, namespace string) (idalloc.Counter, error) {
	vals, err := s.client.MGet(ctx, s.keys(namespace)...).Result()
	if err != nil {
		return idalloc.Counter{}, fmt.Errorf("redis error: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return idalloc.Counter{}, common.ErrorNotFound
	}
	return decodeCounter(namespace, vals[0], vals[1])
}

func decodeCounter(namespace string, value, policy any) (idalloc.Counter, error) {
	raw, _ := value.(string)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return idalloc.Counter{}, fmt.Errorf("malformed counter %q: %w", namespace, err)
	}
	encoded, _ := policy.(string)
	p, err := decodePolicy(encoded)
	if err != nil {
		return idalloc.Counter{}, err
	}
	return idalloc.Counter{Namespace: namespace, Prefix: p.Prefix, PadWidth: p.PadWidth, LastIssued: n}, nil
}

func (s *RedisStore) Increment(ctx context.Context, namespace string, policy idalloc.Policy) (idalloc.Counter, error) {
	n, err := incrementScript.Run(ctx, s.client, s.keys(namespace), encodePolicy(policy)).Int64()
	if err != nil {
		return idalloc.Counter{}, scriptError(err)
	}
	return idalloc.Counter{Namespace: namespace, Prefix: policy.Prefix, PadWidth: policy.PadWidth, LastIssued: n}, nil
}

func (s *RedisStore) Seed(ctx context.Context, namespace string, policy idalloc.Policy, lastIssued int64) (idalloc.Counter, error) {
	n, err := seedScript.Run(ctx, s.client, s.keys(namespace), encodePolicy(policy), lastIssued).Int64()
	if err != nil {
		return idalloc.Counter{}, scriptError(err)
	}
	return idalloc.Counter{Namespace: namespace, Prefix: policy.Prefix, PadWidth: policy.PadWidth, LastIssued: n}, nil
}

// CompareAndSwap watches both keys, verifies the counter still equals
// expected and writes next in a MULTI block. EXEC aborts if either key
// changed after WATCH, which is reported as common.ErrConflict.
func (s *RedisStore) CompareAndSwap(ctx context.Context, expected idalloc.Counter, next int64) error {
	keys := s.keys(expected.Namespace)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("redis error: %w", err)
		}

		var current int64
		if vals[0] != nil {
			cur, err := decodeCounter(expected.Namespace, vals[0], vals[1])
			if err != nil {
				return err
			}
			if !cur.Matches(expected.Policy()) {
				return idalloc.ErrPolicyMismatch
			}
			current = cur.LastIssued
		}
		if current != expected.LastIssued {
			return common.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keys[0], next, 0)
			pipe.Set(ctx, keys[1], encodePolicy(expected.Policy()), 0)
			return nil
		})
		return err
	}, keys...)

	if errors.Is(err, redis.TxFailedErr) {
		return common.ErrConflict
	}
	return err
}
