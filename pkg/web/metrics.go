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

package web

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromMetrics implements reconcile.Metrics on a Prometheus registry, so
// pass counters show up on /metrics.
type PromMetrics struct {
	registry *prometheus.Registry

	passAttempts   *prometheus.CounterVec
	passSkipped    *prometheus.CounterVec
	budgetExceeded *prometheus.CounterVec
	usersAdded     *prometheus.CounterVec
	templatesAdded *prometheus.CounterVec
	endpointErrors *prometheus.CounterVec
	passDuration   *prometheus.HistogramVec

	attendanceInserted *prometheus.CounterVec
}

// NewPromMetrics builds and registers the engine metric set on a fresh
// registry.
func NewPromMetrics() *PromMetrics {
	m := &PromMetrics{
		registry: prometheus.NewRegistry(),
		passAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_reconcile_passes_total",
			Help: "Reconciliation passes started, per group.",
		}, []string{"group"}),
		passSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_reconcile_skipped_total",
			Help: "Passes skipped because the group lease was held.",
		}, []string{"group"}),
		budgetExceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_reconcile_budget_exceeded_total",
			Help: "Passes stopped by the wall-clock budget.",
		}, []string{"group"}),
		usersAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_users_added_total",
			Help: "Users propagated to terminals.",
		}, []string{"group"}),
		templatesAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_templates_added_total",
			Help: "Biometric templates propagated to terminals.",
		}, []string{"group"}),
		endpointErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_endpoint_failures_total",
			Help: "Terminals that failed to participate in a pass.",
		}, []string{"group", "endpoint"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "termsync_reconcile_duration_seconds",
			Help:    "Wall-clock duration of completed passes.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"group"}),
		attendanceInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_attendance_inserted_total",
			Help: "New attendance events landed in the repository.",
		}, []string{"endpoint"}),
	}

	m.registry.MustRegister(
		m.passAttempts,
		m.passSkipped,
		m.budgetExceeded,
		m.usersAdded,
		m.templatesAdded,
		m.endpointErrors,
		m.passDuration,
		m.attendanceInserted,
	)

	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *PromMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PromMetrics) RecordPassAttempt(groupID string) {
	m.passAttempts.WithLabelValues(groupID).Inc()
}

func (m *PromMetrics) RecordPassSuccess(groupID string, usersAdded, templatesAdded int, duration time.Duration) {
	m.usersAdded.WithLabelValues(groupID).Add(float64(usersAdded))
	m.templatesAdded.WithLabelValues(groupID).Add(float64(templatesAdded))
	m.passDuration.WithLabelValues(groupID).Observe(duration.Seconds())
}

func (m *PromMetrics) RecordPassSkipped(groupID string) {
	m.passSkipped.WithLabelValues(groupID).Inc()
}

func (m *PromMetrics) RecordPassBudgetExceeded(groupID string) {
	m.budgetExceeded.WithLabelValues(groupID).Inc()
}

func (m *PromMetrics) RecordEndpointFailure(groupID, endpointID string) {
	m.endpointErrors.WithLabelValues(groupID, endpointID).Inc()
}

// RecordAttendanceInserted counts collector inserts; called by the
// scheduler wiring, not the engine.
func (m *PromMetrics) RecordAttendanceInserted(endpointID string, count int) {
	m.attendanceInserted.WithLabelValues(endpointID).Add(float64(count))
}

// GetMetrics satisfies reconcile.Metrics; Prometheus owns the export
// format, so the map form stays empty.
func (m *PromMetrics) GetMetrics() map[string]interface{} {
	return map[string]interface{}{}
}
