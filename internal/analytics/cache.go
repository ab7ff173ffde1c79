package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "receivables:version"
	// BumpChannel carries cache version bumps between processes.
	BumpChannel = "receivables.bump"
)

// Cache wraps Redis based caching with versioning controls.
type Cache struct {
	client    *redis.Client
	ttl       time.Duration
	published atomic.Int64
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads a cached value into dest or populates it using the loader.
// hit reports whether the value came from Redis.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) (hit bool, err error) {
	if loader == nil {
		return false, errors.New("cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return true, json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return false, err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return false, err
		}
	}
	return false, json.Unmarshal(raw, dest)
}

// Bump invalidates the cache by incrementing the global version and publishing an event.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return 0, err
	}
	// Recorded before publishing so our own listener can recognise the echo.
	c.published.Store(ver)
	return ver, c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// PublishedHere reports whether version is the latest bump announced by this Cache.
func (c *Cache) PublishedHere(version int64) bool {
	return c != nil && version > 0 && c.published.Load() == version
}

// ListenForInvalidation subscribes to version bump notifications and calls
// onBump with each announced version until ctx is cancelled. The subscription
// is confirmed before returning.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string, onBump func(context.Context, int64)) error {
	if c == nil || c.client == nil {
		return nil
	}
	if channel == "" {
		channel = BumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("cache: subscribe %s: %w", channel, err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					ver = 0
				}
				if onBump != nil {
					onBump(ctx, ver)
				}
			}
		}
	}()
	return nil
}

func dateToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}

func keyReceivables(snapshotID string, f ReceivablesFilter) []string {
	return []string{"receivables", "aging", snapshotID, string(f.GroupBy), dateToken(f.From), dateToken(f.To), dateToken(f.AsOf)}
}

func keyBanker(snapshotID string, f PeriodFilter) []string {
	return []string{"receivables", "banker", snapshotID, dateToken(f.From), dateToken(f.To)}
}

func keyLedger(snapshotID string, f LedgerFilter) []string {
	return []string{"receivables", "ledger", snapshotID, strconv.Quote(f.Customer), dateToken(f.From), dateToken(f.To)}
}

func keySegments(snapshotID string, f SegmentFilter) []string {
	return []string{"receivables", "segments", snapshotID, strconv.Quote(f.Company)}
}

func keyDashboard(snapshotID string) []string {
	return []string{"receivables", "dashboard", snapshotID}
}
