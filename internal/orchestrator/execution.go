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

package orchestrator

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kadirpekel/bentham/internal/adapter"
	"github.com/kadirpekel/bentham/internal/bherrors"
	"github.com/kadirpekel/bentham/internal/checkpoint"
	"github.com/kadirpekel/bentham/internal/core"
	"github.com/kadirpekel/bentham/internal/events"
	"github.com/kadirpekel/bentham/internal/session"
)

// workerLoop is one member of a study's fixed-size pool. It never blocks on
// I/O itself: popping a job off the queue is a lock-protected, in-memory
// operation, and every actual suspension point (credential wait, session
// checkout, the adapter call) happens only inside this single goroutine's
// own runJob call, so the other workers keep making progress.
func (o *Orchestrator) workerLoop(ctx context.Context, state *studyState, workerID int) {
	defer state.wg.Done()

	o.bus.Emit(events.Event{Type: events.TypeWorkerStarted, StudyID: state.study.ID, WorkerID: workerID})
	defer o.bus.Emit(events.Event{Type: events.TypeWorkerStopped, StudyID: state.study.ID, WorkerID: workerID})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		state.mu.Lock()
		paused := state.paused
		state.mu.Unlock()
		if paused {
			if !sleepOrDone(ctx, o.cfg.Worker.MinBackpressure) {
				return
			}
			continue
		}

		job, ok := state.queue.PopEligible(time.Now(), nil)
		if !ok {
			if atomic.LoadInt64(&state.pending) == 0 {
				return
			}
			// Nothing eligible yet: every remaining job is a retry waiting
			// out its backoff delay. Poll rather than spin.
			if !sleepOrDone(ctx, 25*time.Millisecond) {
				return
			}
			continue
		}

		o.metrics.SetWorkerBusy(state.study.ID, workerIDLabel(workerID), true)
		o.runJob(ctx, state, job)
		o.metrics.SetWorkerBusy(state.study.ID, workerIDLabel(workerID), false)
		o.metrics.SetQueueDepth(state.study.ID, state.queue.Len())
	}
}

func workerIDLabel(id int) string {
	return strconv.Itoa(id)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// runJob executes one attempt of a cell and reconciles its outcome: on
// success, records completion; on a retryable failure under budget,
// schedules a backoff retry; otherwise records a terminal failure.
func (o *Orchestrator) runJob(ctx context.Context, state *studyState, job *Job) {
	start := time.Now()
	o.bus.Emit(events.Event{
		Type: events.TypeJobStarted, StudyID: job.StudyID, JobID: job.Cell.Encode(),
		Details: map[string]any{"attempt": job.Attempt},
	})

	o.metrics.RecordJobDispatched(job.StudyID, job.Cell.SurfaceID)
	result, execErr := o.executeOnce(ctx, state, job)
	result.Metrics.TotalMs = time.Since(start).Milliseconds()
	elapsed := time.Since(start)

	if execErr == nil {
		_ = state.manager.RecordResult(job.Cell, checkpoint.CellResult{
			Status:         core.CellCompleted,
			ResponseText:   result.ResponseText,
			ResponseTimeMs: result.ResponseTimeMs,
			SessionID:      result.SessionID,
			CredentialID:   result.CredentialID,
		})
		o.bus.Emit(events.Event{
			Type: events.TypeJobCompleted, StudyID: job.StudyID, JobID: job.Cell.Encode(),
			Details: map[string]any{"attempt": job.Attempt, "responseTimeMs": result.ResponseTimeMs},
		})
		o.metrics.RecordJobCompleted(job.StudyID, job.Cell.SurfaceID, "success", elapsed)
		o.finishCell(state)
		return
	}

	bherr, ok := bherrors.AsError(execErr)
	if !ok {
		bherr = bherrors.New(bherrors.KindInternal, execErr.Error())
	}
	retryable := o.troubleshooter.IsRetryable(bherr)

	if retryable && job.Attempt <= state.study.MaxRetries {
		delay := o.nextBackoff(job.Attempt)
		o.metrics.RecordJobRetried(job.StudyID, job.Cell.SurfaceID, string(bherr.Kind))
		_ = state.manager.RecordRetry(job.Cell, job.Attempt, bherr.Message, string(bherr.Kind), false)
		state.queue.Push(&Job{
			StudyID:               job.StudyID,
			TenantID:              job.TenantID,
			Cell:                  job.Cell,
			Attempt:               job.Attempt + 1,
			Priority:              job.Priority,
			Query:                 job.Query,
			EarliestExecutionTime: time.Now().Add(delay),
		})
		o.bus.Emit(events.Event{
			Type: events.TypeJobFailed, StudyID: job.StudyID, JobID: job.Cell.Encode(),
			Details: map[string]any{"attempt": job.Attempt, "retrying": true, "delayMs": delay.Milliseconds(), "kind": string(bherr.Kind)},
		})
		return
	}

	_ = state.manager.RecordRetry(job.Cell, job.Attempt, bherr.Message, string(bherr.Kind), true)
	_ = state.manager.RecordResult(job.Cell, checkpoint.CellResult{
		Status:       core.CellFailed,
		ErrorCode:    string(bherr.Kind),
		ErrorMessage: bherr.Message,
	})
	o.metrics.RecordJobCompleted(job.StudyID, job.Cell.SurfaceID, "failed", elapsed)
	o.bus.Emit(events.Event{
		Type: events.TypeJobFailed, StudyID: job.StudyID, JobID: job.Cell.Encode(),
		Details: map[string]any{"attempt": job.Attempt, "retrying": false, "kind": string(bherr.Kind)},
	})
	o.finishCell(state)
}

func (o *Orchestrator) finishCell(state *studyState) {
	if atomic.AddInt64(&state.pending, -1) == 0 {
		o.releaseStudySessions(state)
		state.markDoneIfDrained()
	}
}

// releaseStudySessions checks in every session a per-study-isolated study
// reserved across its lifetime, once there is no more work left to use them.
func (o *Orchestrator) releaseStudySessions(state *studyState) {
	state.mu.Lock()
	cached := state.sessionCache
	state.sessionCache = nil
	state.mu.Unlock()

	for surfaceID, sess := range cached {
		o.checkInSession(state, surfaceID, sess, false, false)
	}
}

func (o *Orchestrator) nextBackoff(attempt int) time.Duration {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return computeBackoff(o.cfg.Retry.BaseDelay, o.cfg.Retry.MaxDelay, attempt, o.rng)
}

func (o *Orchestrator) jobDeadline(study *core.Study) time.Time {
	byTimeout := time.Now().Add(o.cfg.Worker.JobTimeout)
	if study.Deadline.IsZero() || study.Deadline.After(byTimeout) {
		return byTimeout
	}
	return study.Deadline
}

// executeOnce performs the per-job execution contract: adapter lookup,
// credential acquisition, optional session acquisition, the adapter call
// itself bounded by the job deadline, and quality gating, reporting the
// outcome to whichever pools were touched.
func (o *Orchestrator) executeOnce(ctx context.Context, state *studyState, job *Job) (JobResult, error) {
	ad, ok := o.adapters.Get(job.Cell.SurfaceID)
	if !ok {
		return JobResult{}, bherrors.Newf(bherrors.KindAdapterNotFound, "no adapter registered for surface %q", job.Cell.SurfaceID)
	}

	deadline := o.jobDeadline(state.study)
	jobCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	cred, err := o.credentials.GetNext(job.Cell.SurfaceID, time.Now())
	if err != nil {
		return JobResult{}, bherrors.Newf(bherrors.KindNoCredentials, "acquire credential: %v", err).WithRetryable(true)
	}

	var sess *session.Session
	var sessionWaitMs int64
	stickySession := false
	if ad.RequiredResources().Needs(adapter.ResourceSession) {
		sess, sessionWaitMs, stickySession, err = o.acquireSession(jobCtx, state, job.Cell.SurfaceID)
		o.metrics.ObserveSessionCheckout(job.Cell.SurfaceID, time.Duration(sessionWaitMs)*time.Millisecond)
		if err != nil {
			return JobResult{Metrics: ExecutionMetrics{SessionWaitMs: sessionWaitMs}},
				bherrors.Newf(bherrors.KindSessionInvalid, "checkout session: %v", err).WithRetryable(true)
		}
	}

	qc := adapter.QueryContext{
		Context:       jobCtx,
		StudyID:       job.StudyID,
		TenantID:      job.TenantID,
		Query:         job.Query,
		QueryIndex:    job.Cell.QueryIndex,
		LocationID:    job.Cell.LocationID,
		CorrelationID: job.Cell.Encode() + "#" + strconv.Itoa(job.Attempt),
		EvidenceLevel: state.study.EvidenceLevel,
		Credential:    cred,
		Session:       sess,
		Deadline:      deadline,
	}

	respStart := time.Now()
	qr, execErr := ad.ExecuteQuery(qc)
	responseMs := time.Since(respStart).Milliseconds()
	metrics := ExecutionMetrics{SessionWaitMs: sessionWaitMs, ResponseMs: responseMs}

	if execErr != nil {
		o.credentials.ReportError(job.Cell.SurfaceID, cred.ID, time.Now())
		o.metrics.RecordCredentialError(job.Cell.SurfaceID)
		o.checkInSession(state, job.Cell.SurfaceID, sess, true, stickySession)
		return JobResult{Metrics: metrics}, execErr
	}

	if gateErr := applyQualityGates(state.study.Quality, qr.ResponseText); gateErr != nil {
		o.credentials.ReportError(job.Cell.SurfaceID, cred.ID, time.Now())
		o.metrics.RecordCredentialError(job.Cell.SurfaceID)
		o.checkInSession(state, job.Cell.SurfaceID, sess, false, stickySession)
		return JobResult{Metrics: metrics}, gateErr
	}

	o.credentials.ReportSuccess(job.Cell.SurfaceID, cred.ID, time.Now())
	sessionID := ""
	if sess != nil {
		sessionID = sess.ID
	}
	o.checkInSession(state, job.Cell.SurfaceID, sess, false, stickySession)

	return JobResult{
		Success:        true,
		ResponseText:   qr.ResponseText,
		ResponseTimeMs: qr.ResponseTimeMs,
		SessionID:      sessionID,
		CredentialID:   cred.ID,
		Metrics:        metrics,
	}, nil
}

// acquireSession checks out a session for surfaceID, honoring the study's
// SessionIsolation. Under IsolationPerStudy the first cell to touch a
// surface checks out a session and every later cell of that study on the
// same surface reuses it, reported back as sticky=true so the caller skips
// checking it back in after each use.
func (o *Orchestrator) acquireSession(ctx context.Context, state *studyState, surfaceID string) (sess *session.Session, waitMs int64, sticky bool, err error) {
	if state.study.SessionIsolation == core.IsolationPerStudy {
		state.mu.Lock()
		cached, ok := state.sessionCache[surfaceID]
		state.mu.Unlock()
		if ok {
			return cached, 0, true, nil
		}
	}

	pool := o.sessions.Pool(surfaceID)
	waitStart := time.Now()
	checkoutCtx, cancel := context.WithTimeout(ctx, o.cfg.Worker.CheckoutTimeout)
	sess, err = pool.Checkout(checkoutCtx)
	cancel()
	waitMs = time.Since(waitStart).Milliseconds()
	if err != nil {
		return nil, waitMs, false, err
	}

	if state.study.SessionIsolation == core.IsolationPerStudy {
		state.mu.Lock()
		if state.sessionCache == nil {
			state.sessionCache = make(map[string]*session.Session)
		}
		state.sessionCache[surfaceID] = sess
		state.mu.Unlock()
		sticky = true
	}
	return sess, waitMs, sticky, nil
}

// checkInSession returns sess to its pool, unless sticky is true and the
// attempt succeeded, in which case it stays checked out for the study's
// next cell on surfaceID. A sticky session that errored is evicted from
// the study's cache as well as checked in, so the next cell spawns fresh.
func (o *Orchestrator) checkInSession(state *studyState, surfaceID string, sess *session.Session, markError, sticky bool) {
	if sess == nil {
		return
	}
	if markError {
		_ = sess.MarkError()
		if sticky {
			state.mu.Lock()
			delete(state.sessionCache, surfaceID)
			state.mu.Unlock()
		}
		_ = o.sessions.Pool(surfaceID).CheckIn(sess)
		return
	}
	if sticky {
		return
	}
	_ = o.sessions.Pool(surfaceID).CheckIn(sess)
}

// applyQualityGates runs the content-required gate before the min-length
// gate, both producing a retryable QUALITY_GATE_FAILED error.
func applyQualityGates(gates core.QualityGates, text string) error {
	trimmed := strings.TrimSpace(text)
	if gates.RequireActualContent && trimmed == "" {
		return bherrors.New(bherrors.KindQualityGateFailed, "response has no actual content").WithRetryable(true)
	}
	if gates.MinResponseLength > 0 && len(trimmed) < gates.MinResponseLength {
		return bherrors.Newf(bherrors.KindQualityGateFailed, "response length %d below minimum %d", len(trimmed), gates.MinResponseLength).WithRetryable(true)
	}
	return nil
}
