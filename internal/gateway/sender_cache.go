package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common"
)

// senderCache memoizes transaction senders. Mined senders never change,
// so entries only expire to bound memory.
type senderCache struct {
	cache *bigcache.BigCache
}

func newSenderCache(ttl time.Duration) (*senderCache, error) {
	if ttl <= 0 {
		return &senderCache{}, nil
	}

	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 16
	cfg.MaxEntriesInWindow = 10000
	cfg.MaxEntrySize = 64
	cfg.CleanWindow = ttl
	cfg.Verbose = false

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("create sender cache: %w", err)
	}
	return &senderCache{cache: cache}, nil
}

func (c *senderCache) get(hash common.Hash) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	b, err := c.cache.Get(hash.Hex())
	if err != nil {
		return "", false
	}
	return string(b), true
}

func (c *senderCache) set(hash common.Hash, sender string) {
	if c.cache == nil {
		return
	}
	_ = c.cache.Set(hash.Hex(), []byte(sender))
}

func (c *senderCache) close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}
