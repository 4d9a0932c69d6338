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

// Package collector pulls attendance buffers off terminals and lands the
// punches in the repository. Terminals keep their buffers, so every pull
// re-reads old punches; the repository's conditional append is what makes
// collection idempotent.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/veritime/termsync/pkg/bus"
	"github.com/veritime/termsync/pkg/conn"
	"github.com/veritime/termsync/pkg/db"
	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
)

// CollectResult summarizes one pull.
type CollectResult struct {
	EndpointID string        `json:"endpoint_id"`
	Pulled     int           `json:"pulled"`
	Inserted   int           `json:"inserted"`
	Duplicates int           `json:"duplicates"`
	Errors     []string      `json:"errors,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Collector reads attendance off terminals.
type Collector struct {
	conns  *conn.Manager
	repo   db.Repository
	bus    *bus.Publisher
	logger logger.Logger

	now func() time.Time
}

// New wires a Collector. The bus may be nil.
func New(conns *conn.Manager, repo db.Repository, publisher *bus.Publisher, log logger.Logger) *Collector {
	return &Collector{
		conns:  conns,
		repo:   repo,
		bus:    publisher,
		logger: log.WithComponent("collector"),
		now:    time.Now,
	}
}

// Collect pulls the endpoint's full attendance buffer and appends what
// the repository has not seen. Per-row insert failures are folded into
// the result; only an unreachable terminal or a failed pull errors out.
func (c *Collector) Collect(ctx context.Context, endpoint models.Endpoint) (*CollectResult, error) {
	start := c.now()

	session, err := c.conns.Connect(ctx, endpoint)
	if err != nil {
		if markErr := c.repo.MarkEndpointOnline(ctx, endpoint.ID(), false); markErr != nil {
			c.logger.Warn().Str("endpoint", endpoint.ID()).Err(markErr).Msg("Failed to record endpoint liveness")
		}

		return nil, fmt.Errorf("collect %s: %w", endpoint.ID(), err)
	}

	punches, err := session.Conn.GetAttendance(ctx)
	if err != nil {
		c.conns.Close(session)
		return nil, fmt.Errorf("collect %s: attendance pull: %w", endpoint.ID(), err)
	}

	// The terminal's part is done; everything below is repository work.
	c.conns.Release(session)

	result := &CollectResult{EndpointID: endpoint.ID(), Pulled: len(punches)}

	for _, punch := range punches {
		if punch.ExternalID == "" {
			// Punch from a slot with no enrolled user; nothing to key on.
			continue
		}

		event := models.AttendanceEvent{
			ExternalID: punch.ExternalID,
			EndpointID: endpoint.ID(),
			Timestamp:  punch.Timestamp,
			PunchCode:  punch.Code,
			Status:     models.StatusForPunchCode(punch.Code),
		}

		inserted, err := c.repo.AppendAttendanceIfAbsent(ctx, event)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s@%s: %v", event.ExternalID, event.Timestamp.Format(time.RFC3339), err))
			continue
		}

		if !inserted {
			result.Duplicates++
			continue
		}

		result.Inserted++
		c.bus.PublishAttendance(ctx, event)
	}

	if err := c.repo.MarkEndpointOnline(ctx, endpoint.ID(), true); err != nil {
		c.logger.Warn().Str("endpoint", endpoint.ID()).Err(err).Msg("Failed to record endpoint liveness")
	}

	result.Duration = c.now().Sub(start)

	c.logger.Info().
		Str("endpoint", endpoint.ID()).
		Int("pulled", result.Pulled).
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Msg("Attendance collected")

	return result, nil
}
