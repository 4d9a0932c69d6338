/*
 * Copyright 2025 Veritime Systems, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cache implements a short-TTL in-memory store that shields
// terminals from redundant full-state queries.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL bounds how long a cached terminal readout stays fresh.
const DefaultTTL = 5 * time.Minute

type entry[V any] struct {
	value     V
	expiresAt time.Time
	createdAt time.Time
}

// Stats is the observability readout for the web layer.
type Stats struct {
	Total   int      `json:"total_entries"`
	Active  int      `json:"active_entries"`
	Expired int      `json:"expired_entries"`
	Keys    []string `json:"cache_keys"`
}

// Cache is a TTL key/value store guarded by a single mutex. Operations are
// O(1) and never block on I/O inside the critical section.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]entry[V]
	defaultTTL time.Duration
	now        func() time.Time
}

// New creates a cache with the given default TTL; zero means DefaultTTL.
func New[V any](defaultTTL time.Duration) *Cache[V] {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	return &Cache[V]{
		entries:    make(map[string]entry[V]),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns the cached value if present and unexpired. An expired entry
// observed here is evicted lazily.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}

	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)

		var zero V

		return zero, false
	}

	return e.value, true
}

// Set stores a value with an explicit TTL; ttl <= 0 falls back to the
// cache default.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: now.Add(ttl),
		createdAt: now,
	}
}

// SetDefault stores a value under the cache's default TTL.
func (c *Cache[V]) SetDefault(key string, value V) {
	c.Set(key, value, 0)
}

// Delete removes a key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry[V])
}

// CleanupExpired removes exactly the entries whose deadline has passed and
// returns the removal count. Safe to call concurrently with Get/Set; the
// scheduler invokes it periodically.
func (c *Cache[V]) CleanupExpired() int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

// Stats counts total, active, and expired entries under the lock.
func (c *Cache[V]) Stats() Stats {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Total: len(c.entries),
		Keys:  make([]string, 0, len(c.entries)),
	}

	for key, e := range c.entries {
		stats.Keys = append(stats.Keys, key)

		if !now.Before(e.expiresAt) {
			stats.Expired++
		}
	}

	stats.Active = stats.Total - stats.Expired

	return stats
}
