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

package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
)

// Config describes the PostgreSQL connection for the repository.
type Config struct {
	Host            string          `json:"host"`
	Port            int             `json:"port"`
	Database        string          `json:"database"`
	Username        string          `json:"username"`
	Password        string          `json:"password"`
	SSLMode         string          `json:"ssl_mode,omitempty"`
	MaxConnections  int32           `json:"max_connections,omitempty"`
	MinConnections  int32           `json:"min_connections,omitempty"`
	MaxConnLifetime models.Duration `json:"max_conn_lifetime,omitempty"`
}

// postgresRepo implements Repository on a pgx pool.
type postgresRepo struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// NewPostgres dials the configured database, applies the schema, and
// returns the repository.
func NewPostgres(ctx context.Context, cfg *Config, log logger.Logger) (Repository, error) {
	if cfg == nil || cfg.Host == "" || cfg.Database == "" {
		return nil, ErrMissingDSN
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	connURL := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:   "/" + cfg.Database,
	}

	if cfg.Username != "" {
		if cfg.Password != "" {
			connURL.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			connURL.User = url.User(cfg.Username)
		}
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	query := connURL.Query()
	query.Set("sslmode", sslMode)
	query.Set("application_name", "termsync")
	connURL.RawQuery = query.Encode()

	poolConfig, err := pgxpool.ParseConfig(connURL.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToConnect, err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = cfg.MaxConnections
	}

	if cfg.MinConnections > 0 {
		poolConfig.MinConns = cfg.MinConnections
	}

	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxConnLifetime)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToConnect, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrFailedToConnect, err)
	}

	repo := &postgresRepo{
		pool:   pool,
		logger: log.WithComponent("db"),
	}

	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return repo, nil
}

func (r *postgresRepo) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", ErrFailedToMigrate, err)
		}
	}

	return nil
}

func (r *postgresRepo) ListEndpoints(ctx context.Context, groupID string, onlineOnly bool) ([]models.Endpoint, error) {
	const q = `SELECT address, port, variant, group_id, name
		FROM endpoints
		WHERE ($1 = '' OR group_id = $1)
		  AND (NOT $2 OR online)
		ORDER BY address, port`

	rows, err := r.pool.Query(ctx, q, groupID, onlineOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var endpoints []models.Endpoint

	for rows.Next() {
		var (
			ep      models.Endpoint
			variant int
		)

		if err := rows.Scan(&ep.Address, &ep.Port, &variant, &ep.GroupID, &ep.Name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToScan, err)
		}

		ep.Variant = models.ProtocolVariant(variant)
		endpoints = append(endpoints, ep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToQuery, err)
	}

	return endpoints, nil
}

func (r *postgresRepo) UpsertUser(ctx context.Context, user models.UserRecord) error {
	const q = `INSERT INTO users (external_id, display_name, privilege, card_number, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (external_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    privilege = EXCLUDED.privilege,
		    card_number = EXCLUDED.card_number,
		    updated_at = now()`

	if _, err := r.pool.Exec(ctx, q, user.ExternalID, user.DisplayName, user.Privilege, user.CardNumber); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToInsert, err)
	}

	return nil
}

func (r *postgresRepo) ListInactiveUsers(ctx context.Context, groupID string) ([]string, error) {
	const q = `SELECT external_id FROM users WHERE inactive AND ($1 = '' OR group_id = $1)`

	rows, err := r.pool.Query(ctx, q, groupID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string

		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToScan, err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToQuery, err)
	}

	return ids, nil
}

func (r *postgresRepo) AppendAttendanceIfAbsent(ctx context.Context, event models.AttendanceEvent) (bool, error) {
	const q = `INSERT INTO attendance_events (endpoint_id, external_id, punched_at, punch_code, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint_id, external_id, punched_at) DO NOTHING`

	tag, err := r.pool.Exec(ctx, q, event.EndpointID, event.ExternalID, event.Timestamp, event.PunchCode, event.Status)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrFailedToInsert, err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *postgresRepo) MarkEndpointOnline(ctx context.Context, endpointID string, online bool) error {
	const q = `UPDATE endpoints
		SET online = $2,
		    last_seen_at = CASE WHEN $2 THEN now() ELSE last_seen_at END
		WHERE address || ':' || port::text = $1`

	if _, err := r.pool.Exec(ctx, q, endpointID, online); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToInsert, err)
	}

	return nil
}

func (r *postgresRepo) RecordJobExecution(ctx context.Context, exec models.JobExecution) error {
	const q = `INSERT INTO job_executions
		(id, job_name, target, status, started_at, duration_ms, users_added, templates, events, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, q,
		exec.ID, exec.JobName, exec.Target, string(exec.Status), exec.StartedAt,
		exec.Duration.Milliseconds(), exec.UsersAdded, exec.Templates, exec.Events, exec.Errors)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToInsert, err)
	}

	return nil
}

func (r *postgresRepo) Close() error {
	r.pool.Close()
	return nil
}
