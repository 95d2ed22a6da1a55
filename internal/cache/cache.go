// Package cache memoizes extracted JSON results in the shared store.
//
// Entries never expire and nothing bounds their number; with the memory
// backend they live until restart. That is acceptable only while the keyed
// input space stays small (company names, say). Production use needs an
// eviction policy layered on the store. Concurrent misses for the same key
// are not coalesced: both callers compute and the last write wins.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"

	"bizapi/internal/extract"
	"bizapi/internal/store"
)

const keyPrefix = "cache:"

// Key derives a stable store key from a task name and its identifying
// parameters. Parts are length-delimited so ("ab","c") and ("a","bc") differ.
func Key(task string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(task))
	for _, p := range parts {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return keyPrefix + task + ":" + hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	JSON json.RawMessage `json:"json"`
	Raw  string          `json:"raw"`
}

type Cache struct {
	store  store.Store
	logger *slog.Logger
}

func New(s store.Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: s, logger: logger}
}

// Get returns the cached result for key. Backend or decode failures are
// logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (*extract.Result, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn("cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	value, err := extract.Decode(e.JSON)
	if err != nil {
		c.logger.Warn("cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return &extract.Result{Value: value, JSON: e.JSON, Raw: e.Raw}, true
}

// Put stores res under key. Failures are logged, never returned: a cache
// that cannot be written must not fail the request it was computed for.
func (c *Cache) Put(ctx context.Context, key string, res *extract.Result) {
	if res == nil {
		return
	}
	data, err := json.Marshal(entry{JSON: res.JSON, Raw: res.Raw})
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data); err != nil {
		c.logger.Warn("cache put failed", "key", key, "error", err)
	}
}
