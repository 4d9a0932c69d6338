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

// Package web is the admin surface: fleet status behind the TTL cache,
// cache introspection, per-terminal actions, Prometheus metrics, and a
// websocket feed of sync progress.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veritime/termsync/pkg/cache"
	"github.com/veritime/termsync/pkg/conn"
	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
	"github.com/veritime/termsync/pkg/snapshot"
)

var errUnknownEndpoint = errors.New("unknown endpoint")

const shutdownGrace = 10 * time.Second

// EndpointSource lists the fleet for the status endpoints. Backed by the
// repository or the static config, the server does not care which.
type EndpointSource func(ctx context.Context) ([]models.Endpoint, error)

// Config tunes the admin server.
type Config struct {
	ListenAddr string
	APIKey     string
}

// Server is the admin HTTP server.
type Server struct {
	config    Config
	conns     *conn.Manager
	fetcher   *snapshot.Fetcher
	infoCache *cache.Cache[*models.DeviceInfo]
	endpoints EndpointSource
	hub       *Hub
	metrics   *PromMetrics
	logger    logger.Logger

	httpServer *http.Server
}

// deviceStatus is one row of the fleet status readout.
type deviceStatus struct {
	ID     string             `json:"id"`
	Name   string             `json:"name,omitempty"`
	Group  string             `json:"group,omitempty"`
	Online bool               `json:"online"`
	Cached bool               `json:"cached"`
	Info   *models.DeviceInfo `json:"info,omitempty"`
}

// NewServer wires the admin surface. The hub and metrics are created
// here and exposed so the caller can hand them to the engine.
func NewServer(cfg Config, conns *conn.Manager, infoCache *cache.Cache[*models.DeviceInfo],
	endpoints EndpointSource, log logger.Logger) *Server {
	s := &Server{
		config:    cfg,
		conns:     conns,
		fetcher:   snapshot.NewFetcher(log),
		infoCache: infoCache,
		endpoints: endpoints,
		hub:       NewHub(log),
		metrics:   NewPromMetrics(),
		logger:    log.WithComponent("web"),
	}

	router := mux.NewRouter()
	router.Use(requestLogMiddleware(s.logger))

	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.Handle("/ws/events", s.hub).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(apiKeyMiddleware(cfg.APIKey, s.logger))

	api.HandleFunc("/cache/stats", s.handleCacheStats).Methods(http.MethodGet)
	api.HandleFunc("/cache/clear", s.handleCacheClear).Methods(http.MethodPost)
	api.HandleFunc("/devices", s.handleDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/beep", s.handleBeep).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}/sync-time", s.handleSyncTime).Methods(http.MethodPost)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Hub returns the progress-event hub, for wiring into the engine.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Metrics returns the Prometheus-backed engine metrics.
func (s *Server) Metrics() *PromMetrics {
	return s.metrics
}

// Start serves until the context ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Admin server listening")

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"subscribers": s.hub.SubscriberCount(),
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.infoCache.Stats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	s.infoCache.Clear()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleDevices reads the fleet status through the TTL cache: cached
// terminals answer instantly, the rest cost one short dial each.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	endpoints, err := s.endpoints(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	statuses := make([]deviceStatus, 0, len(endpoints))

	for _, endpoint := range endpoints {
		status := deviceStatus{
			ID:    endpoint.ID(),
			Name:  endpoint.Name,
			Group: endpoint.GroupID,
		}

		if info, ok := s.infoCache.Get(endpoint.ID()); ok {
			status.Online = true
			status.Cached = true
			status.Info = info
			statuses = append(statuses, status)

			continue
		}

		session, err := s.conns.Connect(r.Context(), endpoint)
		if err == nil {
			status.Online = true
			status.Info = s.fetcher.FetchInfo(r.Context(), session)
			s.infoCache.SetDefault(endpoint.ID(), status.Info)
			s.conns.Release(session)
		}

		statuses = append(statuses, status)
	}

	s.writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleBeep(w http.ResponseWriter, r *http.Request) {
	endpoint, err := s.lookupEndpoint(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if err := s.conns.Beep(r.Context(), endpoint); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSyncTime(w http.ResponseWriter, r *http.Request) {
	endpoint, err := s.lookupEndpoint(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if err := s.conns.SyncTime(r.Context(), endpoint); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	// The cached readout now carries a stale device time.
	s.infoCache.Delete(endpoint.ID())

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) lookupEndpoint(r *http.Request) (models.Endpoint, error) {
	id := mux.Vars(r)["id"]

	endpoints, err := s.endpoints(r.Context())
	if err != nil {
		return models.Endpoint{}, err
	}

	for _, endpoint := range endpoints {
		if endpoint.ID() == id {
			return endpoint, nil
		}
	}

	return models.Endpoint{}, errUnknownEndpoint
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("Response write failed")
	}
}
