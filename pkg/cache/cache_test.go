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

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNow pins the cache clock so expiry can be tested without sleeping.
func fakeNow(c *Cache[string], at *time.Time) {
	c.now = func() time.Time { return *at }
}

func TestGetSetRoundTrip(t *testing.T) {
	c := New[string](time.Minute)

	c.Set("k", "v", time.Second)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestGetAfterExpiryReturnsAbsent(t *testing.T) {
	c := New[string](time.Minute)
	now := time.Now()
	fakeNow(c, &now)

	c.Set("k", "v", time.Second)

	now = now.Add(1100 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)

	// Lazy eviction must have removed the entry entirely.
	assert.Equal(t, 0, c.Stats().Total)
}

func TestSetDefaultUsesDefaultTTL(t *testing.T) {
	c := New[string](time.Minute)
	now := time.Now()
	fakeNow(c, &now)

	c.SetDefault("k", "v")

	now = now.Add(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestCleanupExpiredRemovesOnlyExpired(t *testing.T) {
	c := New[string](time.Minute)
	now := time.Now()
	fakeNow(c, &now)

	c.Set("old", "v", time.Second)
	c.Set("fresh", "v", time.Hour)

	now = now.Add(2 * time.Second)

	removed := c.CleanupExpired()
	assert.Equal(t, 1, removed)

	_, ok := c.Get("fresh")
	assert.True(t, ok)

	// Idempotent: nothing left to remove.
	assert.Equal(t, 0, c.CleanupExpired())
}

func TestDeleteAndClear(t *testing.T) {
	c := New[string](time.Minute)

	c.SetDefault("a", "1")
	c.SetDefault("b", "2")

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Stats().Total)
}

func TestStatsCountsActiveAndExpired(t *testing.T) {
	c := New[string](time.Minute)
	now := time.Now()
	fakeNow(c, &now)

	c.Set("live", "v", time.Hour)
	c.Set("dead", "v", time.Second)

	now = now.Add(2 * time.Second)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Expired)
	assert.Len(t, stats.Keys, 2)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[string](time.Minute)

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k-%d-%d", n, j)
				c.SetDefault(key, "v")
				c.Get(key)
				c.CleanupExpired()
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 800, c.Stats().Total)
}
