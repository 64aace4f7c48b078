/**
 * @description
 * Typed key-value adapter over go-redis.
 * Every cached structure in the system goes through this type; there is no
 * local caching, so every call is one round trip.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 *
 * @notes
 * - Absence is reported as found=false, never as redis.Nil.
 * - Structured values are JSON. Reads go through DecodeJSON, the single
 *   deserialization boundary for values that may have been double-encoded.
 */

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	scanBatchSize = 500
	// maxDecodeDepth bounds how many layers of JSON string wrapping are peeled.
	maxDecodeDepth = 3
)

// KV wraps a Redis client with typed helpers.
type KV struct {
	Client *redis.Client
}

// ScoredMember is one sorted-set entry.
type ScoredMember struct {
	Member string
	Score  float64
}

func NewKV(client *redis.Client) *KV {
	return &KV{Client: client}
}

// DecodeJSON decodes raw into dest, unwrapping values that were stored as a
// JSON string containing JSON (e.g. "{\"id\":\"1\"}").
func DecodeJSON(raw []byte, dest interface{}) error {
	raw = bytes.TrimSpace(raw)
	for depth := 0; depth < maxDecodeDepth; depth++ {
		if len(raw) == 0 || raw[0] != '"' {
			break
		}
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return fmt.Errorf("decode wrapped value: %w", err)
		}
		trimmed := bytes.TrimSpace([]byte(inner))
		if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[' && trimmed[0] != '"') {
			// A plain string value, decode it as-is.
			break
		}
		raw = trimmed
	}
	return json.Unmarshal(raw, dest)
}

// GetJSON loads key into dest. found is false when the key does not exist.
func (k *KV) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	b, err := k.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := DecodeJSON(b, dest); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v as JSON. ttl == 0 means no expiry.
func (k *KV) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := marshalRecord(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return k.Client.Set(ctx, key, data, ttl).Err()
}

func (k *KV) GetString(ctx context.Context, key string) (string, bool, error) {
	v, err := k.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (k *KV) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	return k.Client.Set(ctx, key, value, ttl).Err()
}

// SetIfAbsent is an atomic SET NX. It reports whether the value was written.
func (k *KV) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return k.Client.SetNX(ctx, key, value, ttl).Result()
}

func (k *KV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return k.Client.Del(ctx, keys...).Err()
}

// ScanPage returns one SCAN page. A returned cursor of 0 means the scan is complete.
func (k *KV) ScanPage(ctx context.Context, pattern string, cursor uint64, count int64) ([]string, uint64, error) {
	if count <= 0 {
		count = scanBatchSize
	}
	return k.Client.Scan(ctx, cursor, pattern, count).Result()
}

// ScanKeys walks the keyspace for pattern and stops after limit distinct keys.
// truncated is true when the limit cut the walk short.
func (k *KV) ScanKeys(ctx context.Context, pattern string, limit int) (keys []string, truncated bool, err error) {
	seen := make(map[string]struct{})
	var cursor uint64
	for {
		page, next, err := k.ScanPage(ctx, pattern, cursor, scanBatchSize)
		if err != nil {
			return nil, false, err
		}
		for _, key := range page {
			if _, dup := seen[key]; dup {
				continue
			}
			if limit > 0 && len(keys) >= limit {
				return keys, true, nil
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		if next == 0 {
			return keys, false, nil
		}
		cursor = next
	}
}

// MGetRaw returns the raw value for each key, nil where the key is missing.
func (k *KV) MGetRaw(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := k.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		switch t := v.(type) {
		case string:
			out[i] = []byte(t)
		case []byte:
			out[i] = t
		}
	}
	return out, nil
}

func (k *KV) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := k.Client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (k *KV) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return k.Client.HGetAll(ctx, key).Result()
}

func (k *KV) HSet(ctx context.Context, key string, values ...interface{}) error {
	return k.Client.HSet(ctx, key, values...).Err()
}

func (k *KV) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	return k.Client.HIncrBy(ctx, key, field, incr).Result()
}

func (k *KV) HIncrByFloat(ctx context.Context, key, field string, incr float64) (float64, error) {
	return k.Client.HIncrByFloat(ctx, key, field, incr).Result()
}

func (k *KV) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	return k.Client.SAdd(ctx, key, toInterfaces(members)...).Result()
}

func (k *KV) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	return k.Client.SRem(ctx, key, toInterfaces(members)...).Result()
}

func (k *KV) SMembers(ctx context.Context, key string) ([]string, error) {
	return k.Client.SMembers(ctx, key).Result()
}

func (k *KV) SCard(ctx context.Context, key string) (int64, error) {
	return k.Client.SCard(ctx, key).Result()
}

func (k *KV) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return k.Client.SIsMember(ctx, key, member).Result()
}

func (k *KV) ZIncrBy(ctx context.Context, key, member string, incr float64) (float64, error) {
	return k.Client.ZIncrBy(ctx, key, incr, member).Result()
}

// ZRevRange returns members from highest to lowest score, inclusive bounds.
func (k *KV) ZRevRange(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	zs, err := k.Client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

func (k *KV) Publish(ctx context.Context, channel string, payload []byte) error {
	return k.Client.Publish(ctx, channel, payload).Err()
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func marshalRecord(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}
