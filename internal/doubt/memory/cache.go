package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const cacheTTL = 30 * 24 * time.Hour

// CachedAnswer is the value stored on the exact-match fast path.
type CachedAnswer struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	SourceTag  string  `json:"sourceTag"`
}

// ExactCache is the low-latency exact-key lookup tried before any vector
// search: a Redis map from the normalized query+context to a stored answer,
// scoped per content item with a global fallback.
type ExactCache struct {
	rdb *redis.Client
}

// NewExactCache creates an ExactCache over the given Redis client.
func NewExactCache(rdb *redis.Client) *ExactCache {
	return &ExactCache{rdb: rdb}
}

// normalizedKey hashes the lowercased query and context into a stable key.
func normalizedKey(query, contextText string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query)) + "|" + strings.ToLower(strings.TrimSpace(contextText))))
	return hex.EncodeToString(h[:])
}

func contentKey(contentID, hash string) string {
	return fmt.Sprintf("doubt:qa:%s:%s", contentID, hash)
}

func globalKey(hash string) string {
	return fmt.Sprintf("doubt:qa:global:%s", hash)
}

// Get looks up a stored answer, trying the content-specific key first and
// the global key second. A miss returns (nil, nil).
func (c *ExactCache) Get(ctx context.Context, contentID, query, contextText string) (*CachedAnswer, error) {
	hash := normalizedKey(query, contextText)

	keys := []string{globalKey(hash)}
	if contentID != "" {
		keys = []string{contentKey(contentID, hash), globalKey(hash)}
	}

	for _, key := range keys {
		raw, err := c.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("cache lookup failed: %w", err)
		}

		var cached CachedAnswer
		if err := json.Unmarshal([]byte(raw), &cached); err != nil {
			return nil, fmt.Errorf("failed to decode cached answer: %w", err)
		}
		return &cached, nil
	}

	return nil, nil
}

// Put stores an answer under both the content-specific and global keys.
func (c *ExactCache) Put(ctx context.Context, contentID, query, contextText string, answer *CachedAnswer) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("failed to encode cached answer: %w", err)
	}

	hash := normalizedKey(query, contextText)
	if contentID != "" {
		if err := c.rdb.Set(ctx, contentKey(contentID, hash), raw, cacheTTL).Err(); err != nil {
			return fmt.Errorf("failed to store cached answer: %w", err)
		}
	}
	if err := c.rdb.Set(ctx, globalKey(hash), raw, cacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to store cached answer: %w", err)
	}
	return nil
}
