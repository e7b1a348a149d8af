package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheConfig configures the Redis completion cache.
type CacheConfig struct {
	Addr     string        `json:"addr" yaml:"addr"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
	Prefix   string        `json:"prefix" yaml:"prefix"`
}

// cacheBackend is the subset of the Redis client the cache needs.
type cacheBackend interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedProvider memoises deterministic chat completions in Redis so that a
// rerun of a stage does not pay for calls it already made. Only requests
// with temperature 0 and a fixed seed are cached; embeddings pass through.
type CachedProvider struct {
	inner  Provider
	rdb    cacheBackend
	ttl    time.Duration
	prefix string
}

// Cache owns one Redis client shared by every provider it wraps.
type Cache struct {
	client *redis.Client
	cfg    CacheConfig
}

// NewCache creates the Redis client. It connects lazily on first use.
func NewCache(cfg CacheConfig) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		cfg: cfg,
	}
}

// Wrap returns inner behind the completion cache.
func (c *Cache) Wrap(inner Provider) *CachedProvider {
	return newCachedProvider(inner, c.client, c.cfg)
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func newCachedProvider(inner Provider, rdb cacheBackend, cfg CacheConfig) *CachedProvider {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "synqa:chat:"
	}
	return &CachedProvider{inner: inner, rdb: rdb, ttl: cfg.TTL, prefix: prefix}
}

func cacheable(req ChatRequest) bool {
	return req.Temperature == 0 && req.Seed != nil
}

// cacheKey hashes the full request, so any change to model, prompt, or
// sampling parameters misses.
func (c *CachedProvider) cacheKey(req ChatRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return c.prefix + hex.EncodeToString(sum[:]), nil
}

func (c *CachedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !cacheable(req) {
		return c.inner.Chat(ctx, req)
	}
	key, err := c.cacheKey(req)
	if err != nil {
		return c.inner.Chat(ctx, req)
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var resp ChatResponse
		if jerr := json.Unmarshal(raw, &resp); jerr == nil {
			return &resp, nil
		}
		slog.Warn("llm: discarding corrupt cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		slog.Warn("llm: cache read failed", "error", err)
	}

	resp, err := c.inner.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if data, jerr := json.Marshal(resp); jerr == nil {
		if serr := c.rdb.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			slog.Warn("llm: cache write failed", "error", serr)
		}
	}
	return resp, nil
}

func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.Embed(ctx, texts)
}
