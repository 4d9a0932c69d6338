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

// Package config loads and validates the service configuration from a
// JSON file. Validate fills defaults, so a minimal file with just a
// fleet definition is a working deployment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/veritime/termsync/pkg/bus"
	"github.com/veritime/termsync/pkg/conn"
	"github.com/veritime/termsync/pkg/db"
	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
)

var (
	ErrNoFleet         = errors.New("no endpoints configured and no database to load them from")
	ErrInvalidEndpoint = errors.New("endpoint requires an address")
)

const (
	defaultListenAddr        = ":8090"
	defaultReconcileInterval = 10 * time.Minute
	defaultCollectInterval   = 5 * time.Minute
	defaultCacheTTL          = 5 * time.Minute
	defaultCacheCleanup      = time.Minute
)

// Config is the whole service configuration.
type Config struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	APIKey     string `json:"api_key,omitempty"`

	// Transport selects the registered terminal dialer. The vendor
	// binding registers itself under "zk"; "memory" is the in-process
	// transport used for development.
	Transport string `json:"transport,omitempty"`

	Logging  *logger.Config `json:"logging,omitempty"`
	Database *db.Config     `json:"database,omitempty"`
	NATS     *bus.Config    `json:"nats,omitempty"`

	Connection conn.Config `json:"connection"`

	// Endpoints is the static fleet, used when no database is
	// configured or as a supplement to it.
	Endpoints []models.Endpoint `json:"endpoints,omitempty"`

	ReconcileInterval    models.Duration `json:"reconcile_interval,omitempty"`
	CollectInterval      models.Duration `json:"collect_interval,omitempty"`
	CacheTTL             models.Duration `json:"cache_ttl,omitempty"`
	CacheCleanupInterval models.Duration `json:"cache_cleanup_interval,omitempty"`

	SnapshotLimit  int  `json:"snapshot_limit,omitempty"`
	Bidirectional  bool `json:"bidirectional,omitempty"`
	RemoveInactive bool `json:"remove_inactive,omitempty"`
	IncludePhotos  bool `json:"include_photos,omitempty"`
}

// LoadFile reads, parses, and validates a config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config

	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate normalizes the configuration, filling defaults and rejecting
// setups that cannot run.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.Transport == "" {
		c.Transport = "zk"
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = models.Duration(defaultReconcileInterval)
	}

	if c.CollectInterval <= 0 {
		c.CollectInterval = models.Duration(defaultCollectInterval)
	}

	if c.CacheTTL <= 0 {
		c.CacheTTL = models.Duration(defaultCacheTTL)
	}

	if c.CacheCleanupInterval <= 0 {
		c.CacheCleanupInterval = models.Duration(defaultCacheCleanup)
	}

	if len(c.Endpoints) == 0 && c.Database == nil {
		return ErrNoFleet
	}

	for i := range c.Endpoints {
		if c.Endpoints[i].Address == "" {
			return fmt.Errorf("%w: endpoint %d", ErrInvalidEndpoint, i)
		}

		if c.Endpoints[i].Port == 0 {
			c.Endpoints[i].Port = models.DefaultTerminalPort
		}
	}

	return nil
}

// GroupedEndpoints buckets the static fleet by group for the scheduler.
// Endpoints without a group land in the default group "".
func (c *Config) GroupedEndpoints() map[string][]models.Endpoint {
	groups := make(map[string][]models.Endpoint)

	for _, ep := range c.Endpoints {
		groups[ep.GroupID] = append(groups[ep.GroupID], ep)
	}

	return groups
}
