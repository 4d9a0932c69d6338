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

// Package scheduler drives the engine on fixed intervals: reconciliation
// per group, collection per endpoint, cache cleanup. Overlap protection
// is not the scheduler's job; the engine's lease handles that.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veritime/termsync/pkg/db"
	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
)

// JobFunc runs one unit of work and reports what happened. The scheduler
// fills in identity and timing; the job fills status and counts.
type JobFunc func(ctx context.Context) models.JobExecution

type job struct {
	name     string
	interval time.Duration
	run      JobFunc
}

// Scheduler runs registered jobs, each on its own interval, and records
// every execution through the repository.
type Scheduler struct {
	clock  Clock
	repo   db.Repository
	logger logger.Logger

	mu   sync.Mutex
	jobs []job

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Scheduler on the real clock. The repository may be nil;
// execution records are then only logged.
func New(repo db.Repository, log logger.Logger) *Scheduler {
	return NewWithClock(repo, log, realClock{})
}

// NewWithClock injects the clock, for tests.
func NewWithClock(repo db.Repository, log logger.Logger, clock Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		repo:   repo,
		logger: log.WithComponent("scheduler"),
	}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(name string, interval time.Duration, run JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = append(s.jobs, job{name: name, interval: interval, run: run})
}

// Start launches every registered job. Each runs once immediately, then
// on its interval until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.mu.Lock()
	jobs := make([]job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, j := range jobs {
		s.wg.Add(1)

		go func(j job) {
			defer s.wg.Done()
			s.loop(ctx, j)
		}(j)
	}
}

// Stop cancels all jobs and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	s.execute(ctx, j)

	ticker := s.clock.Ticker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.execute(ctx, j)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, j job) {
	started := s.clock.Now()

	exec := j.run(ctx)

	exec.ID = uuid.New().String()
	exec.JobName = j.name
	exec.StartedAt = started
	exec.Duration = s.clock.Now().Sub(started)

	if exec.Status == "" {
		exec.Status = models.JobSucceeded
	}

	s.logger.Info().
		Str("job", j.name).
		Str("status", string(exec.Status)).
		Dur("duration", exec.Duration).
		Int("errors", len(exec.Errors)).
		Msg("Job finished")

	if s.repo == nil {
		return
	}

	if err := s.repo.RecordJobExecution(ctx, exec); err != nil {
		s.logger.Warn().Str("job", j.name).Err(err).Msg("Failed to record job execution")
	}
}
