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

package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/veritime/termsync/pkg/bus"
	"github.com/veritime/termsync/pkg/cache"
	"github.com/veritime/termsync/pkg/collector"
	"github.com/veritime/termsync/pkg/config"
	"github.com/veritime/termsync/pkg/conn"
	"github.com/veritime/termsync/pkg/db"
	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
	"github.com/veritime/termsync/pkg/reconcile"
	"github.com/veritime/termsync/pkg/scheduler"
	"github.com/veritime/termsync/pkg/terminal"
	"github.com/veritime/termsync/pkg/web"
)

func main() {
	configPath := flag.String("config", "/etc/termsync/termsync.json", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Fatal().Err(err).Msg("Service failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logg logger.Logger) error {
	var repo db.Repository

	if cfg.Database != nil {
		var err error

		repo, err = db.NewPostgres(ctx, cfg.Database, logg)
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()
	}

	publisher, err := bus.Connect(ctx, cfg.NATS, logg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	dialer, err := terminal.NewDialer(cfg.Transport)
	if err != nil {
		return err
	}

	manager := conn.NewManager(cfg.Connection, dialer, logg)
	defer manager.CloseAll()

	infoCache := cache.New[*models.DeviceInfo](time.Duration(cfg.CacheTTL))

	endpointSource := endpointSource(cfg, repo)

	server := web.NewServer(
		web.Config{ListenAddr: cfg.ListenAddr, APIKey: cfg.APIKey},
		manager,
		infoCache,
		endpointSource,
		logg,
	)

	engine := reconcile.NewEngine(manager, repo, server.Metrics(), server.Hub(), logg)
	collect := collector.New(manager, repo, publisher, logg)

	sched := scheduler.New(repo, logg)

	reconcileOpts := reconcile.Options{
		Bidirectional:  cfg.Bidirectional,
		RemoveInactive: cfg.RemoveInactive,
		IncludePhotos:  cfg.IncludePhotos,
		SnapshotLimit:  cfg.SnapshotLimit,
	}

	sched.Add("reconcile", time.Duration(cfg.ReconcileInterval), func(ctx context.Context) models.JobExecution {
		return runReconcile(ctx, engine, publisher, endpointSource, reconcileOpts, logg)
	})

	sched.Add("collect", time.Duration(cfg.CollectInterval), func(ctx context.Context) models.JobExecution {
		return runCollect(ctx, collect, server.Metrics(), endpointSource, logg)
	})

	sched.Add("cache-cleanup", time.Duration(cfg.CacheCleanupInterval), func(context.Context) models.JobExecution {
		infoCache.CleanupExpired()
		return models.JobExecution{Status: models.JobSucceeded}
	})

	sched.Start(ctx)
	defer sched.Stop()

	return server.Start(ctx)
}

// endpointSource prefers the repository fleet and falls back to the
// static config list.
func endpointSource(cfg *config.Config, repo db.Repository) web.EndpointSource {
	return func(ctx context.Context) ([]models.Endpoint, error) {
		if repo != nil {
			endpoints, err := repo.ListEndpoints(ctx, "", false)
			if err != nil {
				return nil, err
			}

			if len(endpoints) > 0 {
				return endpoints, nil
			}
		}

		return cfg.Endpoints, nil
	}
}

func runReconcile(ctx context.Context, engine *reconcile.Engine, publisher *bus.Publisher,
	source web.EndpointSource, opts reconcile.Options, logg logger.Logger) models.JobExecution {
	exec := models.JobExecution{Status: models.JobSucceeded}

	endpoints, err := source(ctx)
	if err != nil {
		exec.Status = models.JobFailed
		exec.Errors = append(exec.Errors, err.Error())

		return exec
	}

	groups := make(map[string][]models.Endpoint)
	for _, ep := range endpoints {
		groups[ep.GroupID] = append(groups[ep.GroupID], ep)
	}

	for groupID, members := range groups {
		if len(members) < 2 {
			continue
		}

		result := engine.Reconcile(ctx, groupID, members, opts)

		exec.UsersAdded += result.UsersAdded
		exec.Templates += result.TemplatesAdded
		exec.Errors = append(exec.Errors, result.Errors...)

		if result.Skipped {
			exec.Status = models.JobSkipped
		}

		publisher.PublishPassSummary(ctx, result)
	}

	if len(exec.Errors) > 0 && exec.UsersAdded == 0 && exec.Templates == 0 {
		exec.Status = models.JobFailed
	}

	logg.Debug().Int("groups", len(groups)).Msg("Reconcile job walked all groups")

	return exec
}

func runCollect(ctx context.Context, collect *collector.Collector, metrics *web.PromMetrics,
	source web.EndpointSource, logg logger.Logger) models.JobExecution {
	exec := models.JobExecution{Status: models.JobSucceeded}

	endpoints, err := source(ctx)
	if err != nil {
		exec.Status = models.JobFailed
		exec.Errors = append(exec.Errors, err.Error())

		return exec
	}

	for _, endpoint := range endpoints {
		result, err := collect.Collect(ctx, endpoint)
		if err != nil {
			exec.Errors = append(exec.Errors, err.Error())
			continue
		}

		exec.Events += result.Inserted
		exec.Errors = append(exec.Errors, result.Errors...)
		metrics.RecordAttendanceInserted(result.EndpointID, result.Inserted)
	}

	if len(exec.Errors) > 0 && exec.Events == 0 {
		exec.Status = models.JobFailed
	}

	logg.Debug().Int("endpoints", len(endpoints)).Msg("Collect job walked the fleet")

	return exec
}
