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

// schemaStatements is applied in order at startup. Statements are
// idempotent so restarts are safe.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS endpoints (
		address      text NOT NULL,
		port         integer NOT NULL DEFAULT 4370,
		variant      integer NOT NULL DEFAULT 0,
		group_id     text NOT NULL DEFAULT '',
		name         text NOT NULL DEFAULT '',
		online       boolean NOT NULL DEFAULT false,
		last_seen_at timestamptz,
		PRIMARY KEY (address, port)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		external_id text PRIMARY KEY,
		display_name text NOT NULL DEFAULT '',
		privilege    integer NOT NULL DEFAULT 0,
		card_number  text NOT NULL DEFAULT '',
		group_id     text NOT NULL DEFAULT '',
		inactive     boolean NOT NULL DEFAULT false,
		updated_at   timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_events (
		endpoint_id text NOT NULL,
		external_id text NOT NULL,
		punched_at  timestamptz NOT NULL,
		punch_code  integer NOT NULL,
		status      text NOT NULL,
		PRIMARY KEY (endpoint_id, external_id, punched_at)
	)`,
	`CREATE TABLE IF NOT EXISTS job_executions (
		id          uuid PRIMARY KEY,
		job_name    text NOT NULL,
		target      text NOT NULL,
		status      text NOT NULL,
		started_at  timestamptz NOT NULL,
		duration_ms bigint NOT NULL,
		users_added integer NOT NULL DEFAULT 0,
		templates   integer NOT NULL DEFAULT 0,
		events      integer NOT NULL DEFAULT 0,
		errors      text[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_external
		ON attendance_events (external_id, punched_at)`,
}
