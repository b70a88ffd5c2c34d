package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

const (
	DefaultCacheKey    = "github_projects"
	DefaultCacheMaxAge = 24 * time.Hour
)

// Store is the key-value persistence the cache writes through.
// Implementations must not expire values on their own.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// CacheState describes what a Load observed.
type CacheState int

const (
	CacheMissing CacheState = iota
	CacheFresh
	CacheExpired
)

func (s CacheState) String() string {
	switch s {
	case CacheFresh:
		return "fresh"
	case CacheExpired:
		return "expired"
	default:
		return "missing"
	}
}

// Cache keeps a single CacheEntry under a fixed key.
type Cache struct {
	store  Store
	key    string
	maxAge time.Duration
	now    func() time.Time
}

// NewCache creates a cache over store. Empty key and zero maxAge fall back
// to the defaults.
func NewCache(store Store, key string, maxAge time.Duration) *Cache {
	if key == "" {
		key = DefaultCacheKey
	}
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	return &Cache{
		store:  store,
		key:    key,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Load reads the entry. An expired entry is deleted from the store but still
// returned with CacheExpired so the caller can fall back to it. Unparsable
// data is deleted and reported as CacheMissing.
func (c *Cache) Load(ctx context.Context) (*CacheEntry, CacheState, error) {
	entry, state, err := c.read(ctx)
	if err != nil {
		if errors.Is(err, errMalformed) {
			log.Printf("[warn] operation=catalog.cache.load key=%s discarding malformed entry: %v", c.key, err)
			c.discard(ctx)
			return nil, CacheMissing, nil
		}
		return nil, CacheMissing, err
	}
	if state == CacheExpired {
		c.discard(ctx)
	}
	return entry, state, nil
}

// Peek is Load without side effects: nothing is deleted.
func (c *Cache) Peek(ctx context.Context) (*CacheEntry, CacheState, error) {
	entry, state, err := c.read(ctx)
	if errors.Is(err, errMalformed) {
		return nil, CacheMissing, nil
	}
	return entry, state, err
}

var errMalformed = errors.New("malformed cache entry")

func (c *Cache) read(ctx context.Context) (*CacheEntry, CacheState, error) {
	data, found, err := c.store.Get(ctx, c.key)
	if err != nil {
		return nil, CacheMissing, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if !found {
		return nil, CacheMissing, nil
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, CacheMissing, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if c.expired(entry) {
		return &entry, CacheExpired, nil
	}
	return &entry, CacheFresh, nil
}

// Save overwrites the entry with projects stamped at the current time.
func (c *Cache) Save(ctx context.Context, projects []ProjectRecord) error {
	entry := CacheEntry{
		Projects:  projects,
		Timestamp: c.now().UnixMilli(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := c.store.Set(ctx, c.key, data); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Clear removes the entry.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (c *Cache) expired(entry CacheEntry) bool {
	age := c.now().Sub(time.UnixMilli(entry.Timestamp))
	return age > c.maxAge
}

func (c *Cache) discard(ctx context.Context) {
	if err := c.store.Delete(ctx, c.key); err != nil {
		log.Printf("[warn] operation=catalog.cache.discard key=%s error=%v", c.key, err)
	}
}
