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

package reconcile

import (
	"sync"
	"time"
)

// Metrics collects reconciliation pass counters.
type Metrics interface {
	RecordPassAttempt(groupID string)
	RecordPassSuccess(groupID string, usersAdded, templatesAdded int, duration time.Duration)
	RecordPassSkipped(groupID string)
	RecordPassBudgetExceeded(groupID string)
	RecordEndpointFailure(groupID string, endpointID string)

	// GetMetrics exports a snapshot for monitoring surfaces.
	GetMetrics() map[string]interface{}
}

// NoOpMetrics discards everything; used in tests.
type NoOpMetrics struct{}

func (*NoOpMetrics) RecordPassAttempt(string)                              {}
func (*NoOpMetrics) RecordPassSuccess(string, int, int, time.Duration)     {}
func (*NoOpMetrics) RecordPassSkipped(string)                              {}
func (*NoOpMetrics) RecordPassBudgetExceeded(string)                       {}
func (*NoOpMetrics) RecordEndpointFailure(string, string)                  {}
func (*NoOpMetrics) GetMetrics() map[string]interface{}                    { return map[string]interface{}{} }

// InMemoryMetrics keeps counters per group behind a mutex.
type InMemoryMetrics struct {
	mu sync.RWMutex

	passAttempts   map[string]int
	passSuccess    map[string]int
	passSkipped    map[string]int
	budgetExceeded map[string]int
	usersAdded     map[string]int
	templatesAdded map[string]int
	passDuration   map[string]time.Duration
	endpointErrors map[string]int
}

// NewInMemoryMetrics creates an empty metrics collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		passAttempts:   make(map[string]int),
		passSuccess:    make(map[string]int),
		passSkipped:    make(map[string]int),
		budgetExceeded: make(map[string]int),
		usersAdded:     make(map[string]int),
		templatesAdded: make(map[string]int),
		passDuration:   make(map[string]time.Duration),
		endpointErrors: make(map[string]int),
	}
}

func (m *InMemoryMetrics) RecordPassAttempt(groupID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.passAttempts[groupID]++
}

func (m *InMemoryMetrics) RecordPassSuccess(groupID string, usersAdded, templatesAdded int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.passSuccess[groupID]++
	m.usersAdded[groupID] += usersAdded
	m.templatesAdded[groupID] += templatesAdded
	m.passDuration[groupID] = duration
}

func (m *InMemoryMetrics) RecordPassSkipped(groupID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.passSkipped[groupID]++
}

func (m *InMemoryMetrics) RecordPassBudgetExceeded(groupID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.budgetExceeded[groupID]++
}

func (m *InMemoryMetrics) RecordEndpointFailure(groupID, endpointID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.endpointErrors[groupID+"/"+endpointID]++
}

func (m *InMemoryMetrics) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"pass_attempts":   copyCounts(m.passAttempts),
		"pass_success":    copyCounts(m.passSuccess),
		"pass_skipped":    copyCounts(m.passSkipped),
		"budget_exceeded": copyCounts(m.budgetExceeded),
		"users_added":     copyCounts(m.usersAdded),
		"templates_added": copyCounts(m.templatesAdded),
		"endpoint_errors": copyCounts(m.endpointErrors),
	}
}

func copyCounts(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}

	return dst
}
