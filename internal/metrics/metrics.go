// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes bentham's Prometheus collectors: job queue depth,
// worker utilization, credential pool health, and session pool occupancy.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector bentham registers. A nil
// *Metrics is safe to call methods on; every recording method becomes a
// no-op so callers never need to branch on whether metrics are enabled.
type Metrics struct {
	config   *Config
	registry *prometheus.Registry

	queueDepth        *prometheus.GaugeVec
	jobsDispatched    *prometheus.CounterVec
	jobsCompleted     *prometheus.CounterVec
	jobsRetried       *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	workerUtilization *prometheus.GaugeVec

	credentialsHealthy  *prometheus.GaugeVec
	credentialsCooldown *prometheus.GaugeVec
	credentialErrors    *prometheus.CounterVec

	sessionsActive     *prometheus.GaugeVec
	sessionsIdle       *prometheus.GaugeVec
	sessionsExpired    *prometheus.CounterVec
	sessionCheckoutDur *prometheus.HistogramVec
}

// New creates a Metrics instance from configuration. It returns (nil, nil)
// when metrics are disabled, so callers can unconditionally wire the
// result through and rely on the nil-receiver no-ops.
func New(cfg *Config) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	m := &Metrics{config: cfg, registry: prometheus.NewRegistry()}
	m.initOrchestratorMetrics()
	m.initCredentialMetrics()
	m.initSessionMetrics()
	return m, nil
}

func (m *Metrics) initOrchestratorMetrics() {
	m.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: "orchestrator",
			Name:      "queue_depth",
			Help:      "Number of jobs currently queued per study",
		},
		[]string{"study_id"},
	)

	m.jobsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "orchestrator",
			Name:      "jobs_dispatched_total",
			Help:      "Total number of job attempts dispatched to a worker",
		},
		[]string{"study_id", "surface_id"},
	)

	m.jobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "orchestrator",
			Name:      "jobs_completed_total",
			Help:      "Total number of job attempts reaching a terminal outcome",
		},
		[]string{"study_id", "surface_id", "outcome"},
	)

	m.jobsRetried = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "orchestrator",
			Name:      "jobs_retried_total",
			Help:      "Total number of job attempts scheduled for retry",
		},
		[]string{"study_id", "surface_id", "error_kind"},
	)

	m.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "orchestrator",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of a single job attempt",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to 204s
		},
		[]string{"study_id", "surface_id"},
	)

	m.workerUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: "orchestrator",
			Name:      "worker_busy",
			Help:      "1 if the worker is executing a job, 0 if idle",
		},
		[]string{"study_id", "worker_id"},
	)

	m.registry.MustRegister(m.queueDepth, m.jobsDispatched, m.jobsCompleted, m.jobsRetried, m.jobDuration, m.workerUtilization)
}

func (m *Metrics) initCredentialMetrics() {
	m.credentialsHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: "credential",
			Name:      "healthy",
			Help:      "Number of credentials currently eligible for use, per surface",
		},
		[]string{"surface_id"},
	)

	m.credentialsCooldown = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: "credential",
			Name:      "cooldown",
			Help:      "Number of credentials currently in cooldown, per surface",
		},
		[]string{"surface_id"},
	)

	m.credentialErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "credential",
			Name:      "errors_total",
			Help:      "Total number of credential errors reported",
		},
		[]string{"surface_id"},
	)

	m.registry.MustRegister(m.credentialsHealthy, m.credentialsCooldown, m.credentialErrors)
}

func (m *Metrics) initSessionMetrics() {
	m.sessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of sessions currently checked out, per surface",
		},
		[]string{"surface_id"},
	)

	m.sessionsIdle = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: "session",
			Name:      "idle",
			Help:      "Number of sessions currently idle in the pool, per surface",
		},
		[]string{"surface_id"},
	)

	m.sessionsExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "session",
			Name:      "expired_total",
			Help:      "Total number of sessions retired for expiry or repeated errors",
		},
		[]string{"surface_id", "reason"},
	)

	m.sessionCheckoutDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "session",
			Name:      "checkout_duration_seconds",
			Help:      "Time spent waiting for a session checkout",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to 2s
		},
		[]string{"surface_id"},
	)

	m.registry.MustRegister(m.sessionsActive, m.sessionsIdle, m.sessionsExpired, m.sessionCheckoutDur)
}

// SetQueueDepth records the current number of queued jobs for a study.
func (m *Metrics) SetQueueDepth(studyID string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(studyID).Set(float64(depth))
}

// RecordJobDispatched records a job attempt being handed to a worker.
func (m *Metrics) RecordJobDispatched(studyID, surfaceID string) {
	if m == nil {
		return
	}
	m.jobsDispatched.WithLabelValues(studyID, surfaceID).Inc()
}

// RecordJobCompleted records a job attempt reaching a terminal outcome,
// where outcome is "success" or "failed".
func (m *Metrics) RecordJobCompleted(studyID, surfaceID, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsCompleted.WithLabelValues(studyID, surfaceID, outcome).Inc()
	m.jobDuration.WithLabelValues(studyID, surfaceID).Observe(duration.Seconds())
}

// RecordJobRetried records a job attempt being scheduled for retry.
func (m *Metrics) RecordJobRetried(studyID, surfaceID, errorKind string) {
	if m == nil {
		return
	}
	m.jobsRetried.WithLabelValues(studyID, surfaceID, errorKind).Inc()
}

// SetWorkerBusy records whether a worker is currently executing a job.
func (m *Metrics) SetWorkerBusy(studyID, workerID string, busy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if busy {
		v = 1.0
	}
	m.workerUtilization.WithLabelValues(studyID, workerID).Set(v)
}

// SetCredentialHealth records the healthy and cooldown credential counts
// for a surface.
func (m *Metrics) SetCredentialHealth(surfaceID string, healthy, cooldown int) {
	if m == nil {
		return
	}
	m.credentialsHealthy.WithLabelValues(surfaceID).Set(float64(healthy))
	m.credentialsCooldown.WithLabelValues(surfaceID).Set(float64(cooldown))
}

// RecordCredentialError records a credential error report.
func (m *Metrics) RecordCredentialError(surfaceID string) {
	if m == nil {
		return
	}
	m.credentialErrors.WithLabelValues(surfaceID).Inc()
}

// SetSessionOccupancy records the active and idle session counts for a
// surface's pool.
func (m *Metrics) SetSessionOccupancy(surfaceID string, active, idle int) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(surfaceID).Set(float64(active))
	m.sessionsIdle.WithLabelValues(surfaceID).Set(float64(idle))
}

// RecordSessionExpired records a session being retired, where reason is
// "ttl", "error_threshold", or "manual".
func (m *Metrics) RecordSessionExpired(surfaceID, reason string) {
	if m == nil {
		return
	}
	m.sessionsExpired.WithLabelValues(surfaceID, reason).Inc()
}

// ObserveSessionCheckout records how long a session checkout took.
func (m *Metrics) ObserveSessionCheckout(surfaceID string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sessionCheckoutDur.WithLabelValues(surfaceID).Observe(duration.Seconds())
}

// Handler returns an HTTP handler serving the Prometheus exposition
// format. A nil Metrics serves 503 so a disabled-metrics server can still
// mount the route unconditionally.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry, or nil if metrics
// are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
