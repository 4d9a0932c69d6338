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

// Package db is the persistence layer behind the sync engine. The engine
// only sees the Repository interface; the production implementation runs
// on PostgreSQL via pgx.
package db

import (
	"context"

	"github.com/veritime/termsync/pkg/models"
)

//go:generate mockgen -destination=mock_db.go -package=db github.com/veritime/termsync/pkg/db Repository

// Repository persists the engine's view of terminals, users, and
// attendance. Implementations must be safe for concurrent use.
type Repository interface {
	// ListEndpoints returns the configured terminals for a group; an
	// empty groupID returns all of them. With onlineOnly set, terminals
	// last marked offline are left out.
	ListEndpoints(ctx context.Context, groupID string, onlineOnly bool) ([]models.Endpoint, error)

	// UpsertUser records a user as known, updating display fields on
	// conflict by external ID.
	UpsertUser(ctx context.Context, user models.UserRecord) error

	// ListInactiveUsers returns the external IDs marked terminated,
	// for the optional removal pass.
	ListInactiveUsers(ctx context.Context, groupID string) ([]string, error)

	// AppendAttendanceIfAbsent inserts an event unless one with the same
	// (endpoint, external ID, timestamp) already exists. Returns true
	// when a row was written.
	AppendAttendanceIfAbsent(ctx context.Context, event models.AttendanceEvent) (bool, error)

	// MarkEndpointOnline flips an endpoint's liveness flag. Marking it
	// online also stamps the last-seen time; marking it offline keeps
	// the stamp as the last time it did answer.
	MarkEndpointOnline(ctx context.Context, endpointID string, online bool) error

	// RecordJobExecution persists one scheduler run for auditing.
	RecordJobExecution(ctx context.Context, exec models.JobExecution) error

	Close() error
}
