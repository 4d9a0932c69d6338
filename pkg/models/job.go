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

package models

import "time"

// JobStatus classifies the outcome of one scheduled run.
type JobStatus string

const (
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobSkipped   JobStatus = "skipped"
)

// JobExecution is the record the scheduler writes after invoking an engine
// entry point. The engine itself only returns result values; persisting
// execution history is the caller's job.
type JobExecution struct {
	ID         string        `json:"id"`
	JobName    string        `json:"job_name"`
	Target     string        `json:"target,omitempty"`
	Status     JobStatus     `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	UsersAdded int           `json:"users_added"`
	Templates  int           `json:"templates_added"`
	Events     int           `json:"events_inserted"`
	Errors     []string      `json:"errors,omitempty"`
}
