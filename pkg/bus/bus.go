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

// Package bus publishes engine events to NATS JetStream for downstream
// consumers (payroll ingestion, alerting). The bus is strictly optional:
// a nil Publisher is a valid no-op, and publish failures never fail the
// pass that produced the event.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
)

const (
	streamName        = "termsync-events"
	subjectAttendance = "termsync.events.attendance"
	subjectPass       = "termsync.events.pass"

	connectTimeout = 10 * time.Second
)

// Config describes the NATS connection. An empty URL disables the bus.
type Config struct {
	URL string `json:"url,omitempty"`
}

// envelope is the wire shape for every bus message.
type envelope struct {
	ID      string      `json:"id"`
	Source  string      `json:"source"`
	Type    string      `json:"type"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload"`
}

// Publisher writes events to JetStream. Methods are nil-safe.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.Logger
}

// Connect dials NATS and ensures the event stream exists. Returns a nil
// Publisher (not an error) when no URL is configured.
func Connect(ctx context.Context, cfg *Config, log logger.Logger) (*Publisher, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, nil
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"termsync.events.>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &Publisher{
		nc:     nc,
		js:     js,
		logger: log.WithComponent("bus"),
	}, nil
}

// PublishAttendance emits one collected punch.
func (p *Publisher) PublishAttendance(ctx context.Context, event models.AttendanceEvent) {
	p.publish(ctx, subjectAttendance, "com.veritime.termsync.attendance", event)
}

// PublishPassSummary emits the aggregate of a reconciliation pass.
func (p *Publisher) PublishPassSummary(ctx context.Context, summary interface{}) {
	p.publish(ctx, subjectPass, "com.veritime.termsync.pass", summary)
}

func (p *Publisher) publish(ctx context.Context, subject, eventType string, payload interface{}) {
	if p == nil {
		return
	}

	msg := envelope{
		ID:      uuid.New().String(),
		Source:  "termsync",
		Type:    eventType,
		Time:    time.Now(),
		Payload: payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error().Err(err).Str("subject", subject).Msg("Failed to marshal bus event")
		return
	}

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("Bus publish failed")
	}
}

// Close drains the connection. Nil-safe.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}

	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
