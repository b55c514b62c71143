package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PostCache remembers the content of messages the bot posted, since the Bot
// API offers no way to read a message back. Get returns (nil, nil) on a miss.
type PostCache interface {
	Put(ctx context.Context, chatID int64, messageID int, content MessageContent) error
	Get(ctx context.Context, chatID int64, messageID int) (*MessageContent, error)
}

type postKey struct {
	chatID    int64
	messageID int
}

// MemoryPostCache keeps up to limit posts, evicting the oldest first.
type MemoryPostCache struct {
	mu    sync.Mutex
	limit int
	posts map[postKey]MessageContent
	order []postKey
}

// NewMemoryPostCache builds an in-process cache. A non-positive limit keeps
// every post.
func NewMemoryPostCache(limit int) *MemoryPostCache {
	return &MemoryPostCache{limit: limit, posts: make(map[postKey]MessageContent)}
}

func (c *MemoryPostCache) Put(ctx context.Context, chatID int64, messageID int, content MessageContent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := postKey{chatID, messageID}
	if _, ok := c.posts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.posts[key] = content
	for c.limit > 0 && len(c.order) > c.limit {
		delete(c.posts, c.order[0])
		c.order = c.order[1:]
	}
	return nil
}

func (c *MemoryPostCache) Get(ctx context.Context, chatID int64, messageID int) (*MessageContent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.posts[postKey{chatID, messageID}]
	if !ok {
		return nil, nil
	}
	return &content, nil
}

// RedisPostCache stores posts as JSON so every relay replica can annotate
// posts made by any other.
type RedisPostCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPostCache builds a Redis-backed cache with the given entry TTL.
func NewRedisPostCache(client *redis.Client, ttl time.Duration) *RedisPostCache {
	return &RedisPostCache{client: client, ttl: ttl}
}

func (c *RedisPostCache) Put(ctx context.Context, chatID int64, messageID int, content MessageContent) error {
	payload, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, postCacheKey(chatID, messageID), payload, c.ttl).Err()
}

func (c *RedisPostCache) Get(ctx context.Context, chatID int64, messageID int) (*MessageContent, error) {
	raw, err := c.client.Get(ctx, postCacheKey(chatID, messageID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var content MessageContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

func postCacheKey(chatID int64, messageID int) string {
	return fmt.Sprintf("relay:post:%d:%d", chatID, messageID)
}
