package rerank

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 10000
	defaultCacheTTL  = 30 * time.Minute
)

// Cache stores ranked identifier lists keyed by query and candidate
// set, with LRU eviction and a TTL.
type Cache struct {
	lru *expirable.LRU[string, []string]
}

// NewCache builds a cache; zero values select the defaults.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{lru: expirable.NewLRU[string, []string](size, nil, ttl)}
}

func (c *Cache) Get(key string) ([]string, bool) {
	return c.lru.Get(key)
}

func (c *Cache) Add(key string, ids []string) {
	c.lru.Add(key, ids)
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// cacheKey digests the query, the candidate identifiers in order, and
// the requested depth.
func cacheKey(query string, ids []string, returnK int) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(ids, "\x00")))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(returnK)))
	return hex.EncodeToString(h.Sum(nil))
}
